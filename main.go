package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"inkrelay/internal/config"
	"inkrelay/internal/handlers"
	"inkrelay/internal/recognition"
	"inkrelay/internal/registry"
	"inkrelay/internal/transport"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:           "inkrelay",
		Usage:          "Real-time drawing relay with handwriting recognition",
		DefaultCommand: "serve",
		Commands:       []*cli.Command{serveCmd()},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the websocket relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to an optional configuration file (yaml, json, toml)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Path to a dotenv file, ignored when missing",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("env-file"), c.String("config"))
			if err != nil {
				return err
			}

			app := newApp(cfg)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

func newApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			registry.New,
			recognition.NewFromConfig,
			newMessageRouter,
			transport.NewServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Invoke(registerServer),
	)
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

func newMessageRouter(reg *registry.Registry, mediator *recognition.Mediator, logger *slog.Logger) *handlers.MessageRouter {
	return handlers.NewMessageRouter(reg, mediator, logger)
}

func registerServer(lc fx.Lifecycle, srv *transport.Server) {
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
}
