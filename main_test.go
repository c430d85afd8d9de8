package main

import (
	"testing"

	"inkrelay/internal/config"
)

func TestAppGraphResolves(t *testing.T) {
	cfg := &config.Config{
		Port:     8080,
		LogLevel: "error",
		Recognition: config.Recognition{
			Provider: config.ProviderOCRSpace,
			Language: "eng",
		},
		Limits: config.Limits{MaxMessageSize: 1 << 20, MessagesPerSecond: 10, MessageBurst: 10},
	}

	app := newApp(cfg)
	if err := app.Err(); err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
}

func TestCLIHasServeCommand(t *testing.T) {
	app := newCLI()
	if app.Command("serve") == nil {
		t.Fatal("serve command missing")
	}
	if app.DefaultCommand != "serve" {
		t.Errorf("DefaultCommand = %q, want serve", app.DefaultCommand)
	}
}
