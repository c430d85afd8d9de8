package registry

import (
	"log/slog"
	"sync"

	"inkrelay/internal/user"
)

// Connections: minimum interface for broadcasting
type Connections interface {
	Snapshot() []*user.User
	RemoveConnection(userID string)
}

// Broadcaster: fans a message out over a snapshot of connections
type Broadcaster struct {
	conns  Connections
	logger *slog.Logger
}

func NewBroadcaster(conns Connections, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{conns: conns, logger: logger}
}

// Broadcast: writes msg to every open connection except sender (nil for none).
// Returns once every write finished, so messages from one caller keep their order per recipient.
func (b *Broadcaster) Broadcast(msg []byte, sender *user.User) int {
	recipients := make([]*user.User, 0)
	for _, u := range b.conns.Snapshot() {
		if u == sender || !u.IsOpen() {
			continue
		}
		recipients = append(recipients, u)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failedUsers []*user.User

	for _, u := range recipients {
		wg.Add(1)
		go func(usr *user.User) {
			defer wg.Done()

			if err := usr.WriteText(msg); err != nil {
				b.logger.Warn("broadcast write failed", "conn_id", usr.ID, "error", err)
				mu.Lock()
				failedUsers = append(failedUsers, usr)
				mu.Unlock()
			}
		}(u)
	}

	wg.Wait()

	// Drop connections that failed mid-broadcast
	for _, u := range failedUsers {
		b.conns.RemoveConnection(u.ID)
		u.Close()
	}

	return len(recipients) - len(failedUsers)
}
