package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"inkrelay/internal/message"
	"inkrelay/internal/user"
)

// ErrUnknownType is returned for messages whose type no handler claims. They are dropped.
var ErrUnknownType = errors.New("unknown message type")

var errRateLimited = errors.New("message rate limit exceeded")

// MessageRouter routes incoming messages to appropriate handlers
type MessageRouter struct {
	parser           *message.Parser
	relayHandler     *RelayHandler
	recognizeHandler *RecognizeHandler
	userHandler      *UserHandler
	logger           *slog.Logger
}

func NewMessageRouter(broadcaster Broadcaster, recognizer Recognizer, logger *slog.Logger) *MessageRouter {
	parser := message.NewParser()
	return &MessageRouter{
		parser:           parser,
		relayHandler:     NewRelayHandler(broadcaster, logger),
		recognizeHandler: NewRecognizeHandler(parser, recognizer, broadcaster, logger),
		userHandler:      NewUserHandler(),
		logger:           logger,
	}
}

// Route: process a message via appropriate handler.
// Malformed messages get an error reply to the sender only.
func (mr *MessageRouter) Route(ctx context.Context, u *user.User, msg []byte) error {
	env, err := mr.parser.Envelope(msg)
	if err != nil {
		return mr.replyError(u, err)
	}

	switch *env.Type {
	case message.TypeDraw, message.TypeClear:
		return mr.relayHandler.Handle(u, msg)
	case message.TypeRecognizeImage:
		if err := mr.recognizeHandler.Handle(ctx, u, msg); err != nil {
			return mr.replyError(u, err)
		}
		return nil
	case message.TypeGetUserID:
		return mr.userHandler.HandleGetUserID(u)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, *env.Type)
	}
}

// Dropped: reports a frame discarded by rate limiting. Drawing events are
// dropped silently, a recognition request gets the error reply since no
// result will follow.
func (mr *MessageRouter) Dropped(u *user.User, msg []byte) error {
	env, err := mr.parser.Envelope(msg)
	if err != nil || *env.Type != message.TypeRecognizeImage {
		return nil
	}
	return mr.replyError(u, errRateLimited)
}

// Wait blocks until in-flight recognitions are broadcast
func (mr *MessageRouter) Wait() {
	mr.recognizeHandler.Wait()
}

func (mr *MessageRouter) replyError(u *user.User, cause error) error {
	reply, err := message.NewServerError()
	if err != nil {
		return fmt.Errorf("marshal error reply: %w", err)
	}
	if err := u.WriteText(reply); err != nil {
		return fmt.Errorf("send error reply after %v: %w", cause, err)
	}
	return fmt.Errorf("rejected message: %w", cause)
}
