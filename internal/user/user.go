package user

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// Conn is the subset of *websocket.Conn a User writes through
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// User represents one connected client
type User struct {
	ID          string
	Color       string
	Connection  Conn
	RateLimiter *rate.Limiter

	writeMu sync.Mutex
	closed  atomic.Bool
}

// New: creates a user with a fresh id around an open connection
func New(conn Conn, color string, limiter *rate.Limiter) *User {
	return &User{
		ID:          uuid.NewString(),
		Color:       color,
		Connection:  conn,
		RateLimiter: limiter,
	}
}

// WriteMessage: serialized write, gorilla allows one concurrent writer per connection
func (u *User) WriteMessage(messageType int, data []byte) error {
	if u.closed.Load() {
		return websocket.ErrCloseSent
	}

	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	u.Connection.SetWriteDeadline(time.Now().Add(writeWait))
	return u.Connection.WriteMessage(messageType, data)
}

// WriteText: writes a text frame
func (u *User) WriteText(data []byte) error {
	return u.WriteMessage(websocket.TextMessage, data)
}

// IsOpen: false once Close has been called
func (u *User) IsOpen() bool {
	return !u.closed.Load()
}

// Close: marks the user closed and closes the transport. Safe to call more than once.
func (u *User) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	return u.Connection.Close()
}
