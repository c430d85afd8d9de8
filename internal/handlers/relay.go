package handlers

import (
	"log/slog"

	"inkrelay/internal/user"
)

// RelayHandler forwards drawing events to every other connection
type RelayHandler struct {
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewRelayHandler(broadcaster Broadcaster, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{broadcaster: broadcaster, logger: logger}
}

// Handle relays the frame verbatim, the sender already applied it locally
func (h *RelayHandler) Handle(u *user.User, msg []byte) error {
	n := h.broadcaster.BroadcastExcept(u, msg)
	h.logger.Debug("relayed drawing event", "conn_id", u.ID, "recipients", n, "bytes", len(msg))
	return nil
}
