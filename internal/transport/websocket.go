package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"inkrelay/internal/handlers"
	"inkrelay/internal/message"
	"inkrelay/internal/user"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // Send pings at 90% of pong deadline
)

// HandleWebSocket: upgrades HTTP to WebSocket, registers the connection and runs its message loop
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.sessions.Add(1)
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	u := user.New(conn, s.colors.NextColor(), s.rateLimit.NewMessageLimiter())
	logger := s.logger.With("conn_id", u.ID)

	if err := s.registry.Register(u); err != nil {
		logger.Info("connection refused", "error", err)
		return
	}
	defer func() {
		s.registry.Unregister(u)
		u.Close()
		logger.Info("connection closed", "open", s.registry.Count())
	}()
	logger.Info("connection opened", "remote", r.RemoteAddr, "open", s.registry.Count())

	welcome, err := message.NewIdentity(message.TypeWelcome, u.ID, u.Color)
	if err != nil {
		logger.Error("marshal welcome", "error", err)
		return
	}
	if err := u.WriteText(welcome); err != nil {
		logger.Warn("send welcome", "error", err)
		return
	}

	s.run(conn, u)
}

// run: message loop for one connection
func (s *Server) run(conn *websocket.Conn, u *user.User) {
	logger := s.logger.With("conn_id", u.ID)

	conn.SetReadLimit(s.rateLimit.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Channel to signal when read loop exits
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := u.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read failed", "error", err)
			}
			return
		}

		if !u.RateLimiter.Allow() {
			logger.Warn("message rate limit exceeded, dropping message")
			if err := s.router.Dropped(u, msg); err != nil {
				logger.Warn("rate limited message", "error", err)
			}
			continue
		}

		if err := s.router.Route(s.baseCtx, u, msg); err != nil {
			if errors.Is(err, handlers.ErrUnknownType) {
				logger.Info("dropping message", "reason", err)
				continue
			}
			logger.Warn("error handling message", "error", err)
		}
	}
}
