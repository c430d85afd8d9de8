package user

import (
	"testing"

	"inkrelay/internal/user/usertest"
)

func TestColorGeneratorProducesDistinctColors(t *testing.T) {
	cg := NewColorGenerator()
	seen := make(map[string]bool)

	for i := 0; i < 20; i++ {
		color := cg.NextColor()
		if len(color) != 7 || color[0] != '#' {
			t.Fatalf("NextColor() = %q, want #rrggbb", color)
		}
		if seen[color] {
			t.Fatalf("NextColor() repeated %q after %d colors", color, i)
		}
		seen[color] = true
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(usertest.NewConn(), "#000000", nil)
	b := New(usertest.NewConn(), "#000000", nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids not unique: %q %q", a.ID, b.ID)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	conn := usertest.NewConn()
	u := New(conn, "#000000", nil)

	if err := u.WriteText([]byte("hello")); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if u.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}
	if !conn.Closed() {
		t.Error("transport not closed")
	}
	if err := u.WriteText([]byte("late")); err == nil {
		t.Error("WriteText() after Close expected error")
	}
	if got := len(conn.Frames()); got != 1 {
		t.Errorf("frames written = %d, want 1", got)
	}
}
