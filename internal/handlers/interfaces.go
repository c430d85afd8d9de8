package handlers

import (
	"context"

	"inkrelay/internal/user"
)

// Broadcaster defines the fan-out operations handlers need from the registry
type Broadcaster interface {
	BroadcastAll(msg []byte) int
	BroadcastExcept(sender *user.User, msg []byte) int
}

// Recognizer turns a canvas image into a result string
type Recognizer interface {
	Recognize(ctx context.Context, image string) string
}
