package handlers

import (
	"context"
	"log/slog"
	"sync"

	"inkrelay/internal/message"
	"inkrelay/internal/user"
)

// RecognizeHandler runs recognition requests and broadcasts their results to everyone
type RecognizeHandler struct {
	parser      *message.Parser
	recognizer  Recognizer
	broadcaster Broadcaster
	logger      *slog.Logger
	inflight    sync.WaitGroup
}

func NewRecognizeHandler(parser *message.Parser, recognizer Recognizer, broadcaster Broadcaster, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		parser:      parser,
		recognizer:  recognizer,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Handle validates the request and starts recognition without blocking the sender's read loop
func (h *RecognizeHandler) Handle(ctx context.Context, u *user.User, msg []byte) error {
	req, err := h.parser.RecognizeRequest(msg)
	if err != nil {
		return err
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.recognize(ctx, u, *req.Image)
	}()
	return nil
}

func (h *RecognizeHandler) recognize(ctx context.Context, u *user.User, image string) {
	text := h.recognizer.Recognize(ctx, image)

	out, err := message.NewRecognitionResult(text)
	if err != nil {
		h.logger.Error("marshal recognition result", "conn_id", u.ID, "error", err)
		return
	}

	n := h.broadcaster.BroadcastAll(out)
	h.logger.Info("broadcast recognition result", "conn_id", u.ID, "recipients", n)
}

// Wait blocks until every started recognition has been broadcast
func (h *RecognizeHandler) Wait() {
	h.inflight.Wait()
}
