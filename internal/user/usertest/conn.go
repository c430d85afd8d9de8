// Package usertest provides an in-memory websocket connection for tests.
package usertest

import (
	"errors"
	"sync"
	"time"
)

// ErrBroken is returned by writes on a connection created with Broken.
var ErrBroken = errors.New("usertest: broken pipe")

// Conn records every frame written to it.
type Conn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	broken bool
}

func NewConn() *Conn {
	return &Conn{}
}

// Broken returns a connection whose writes always fail.
func Broken() *Conn {
	return &Conn{broken: true}
}

func (c *Conn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken || c.closed {
		return ErrBroken
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Frames returns a copy of the frames written so far.
func (c *Conn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
