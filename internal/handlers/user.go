package handlers

import (
	"fmt"

	"inkrelay/internal/message"
	"inkrelay/internal/user"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// HandleGetUserID: replies with the connection's id and color
func (h *UserHandler) HandleGetUserID(u *user.User) error {
	responseMsg, err := message.NewIdentity(message.TypeUserID, u.ID, u.Color)
	if err != nil {
		return fmt.Errorf("marshal user ID response: %w", err)
	}

	return u.WriteText(responseMsg)
}
