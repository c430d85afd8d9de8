package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"inkrelay/internal/message"
	"inkrelay/internal/recognition"
	"inkrelay/internal/registry"
	"inkrelay/internal/user"
	"inkrelay/internal/user/usertest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRecognizer struct {
	text  string
	calls atomic.Int32
}

func (s *stubRecognizer) Recognize(_ context.Context, _ string) string {
	s.calls.Add(1)
	return s.text
}

type fixture struct {
	registry *registry.Registry
	router   *MessageRouter
	users    []*user.User
	conns    []*usertest.Conn
}

func newFixture(t *testing.T, recognizer Recognizer, n int) *fixture {
	t.Helper()
	reg := registry.New(testLogger())
	f := &fixture{
		registry: reg,
		router:   NewMessageRouter(reg, recognizer, testLogger()),
	}
	for i := 0; i < n; i++ {
		conn := usertest.NewConn()
		u := user.New(conn, "#123456", nil)
		reg.Register(u)
		f.users = append(f.users, u)
		f.conns = append(f.conns, conn)
	}
	return f
}

func decode(t *testing.T, frame []byte) map[string]string {
	t.Helper()
	var got map[string]string
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
	return got
}

func TestDrawEventRelayedToOthersOnly(t *testing.T) {
	f := newFixture(t, &stubRecognizer{}, 3)
	frame := []byte(`{"type":"draw","x0":1,"y0":2,"x1":3,"y1":4,"color":"#000"}`)

	if err := f.router.Route(context.Background(), f.users[0], frame); err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if got := len(f.conns[0].Frames()); got != 0 {
		t.Errorf("sender received %d frames, want 0", got)
	}
	for i := 1; i < 3; i++ {
		frames := f.conns[i].Frames()
		if len(frames) != 1 || string(frames[0]) != string(frame) {
			t.Errorf("conn %d frames = %q, want the original frame", i, frames)
		}
	}
}

func TestClearEventRelayed(t *testing.T) {
	f := newFixture(t, &stubRecognizer{}, 2)

	if err := f.router.Route(context.Background(), f.users[1], []byte(`{"type":"clear"}`)); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(f.conns[0].Frames()) != 1 || len(f.conns[1].Frames()) != 0 {
		t.Error("clear event not relayed to the other connection only")
	}
}

func TestUnknownTypeIsDropped(t *testing.T) {
	stub := &stubRecognizer{}
	f := newFixture(t, stub, 3)

	err := f.router.Route(context.Background(), f.users[0], []byte(`{"type":"wave","data":1}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Route() error = %v, want ErrUnknownType", err)
	}

	f.router.Wait()
	for i, c := range f.conns {
		if got := len(c.Frames()); got != 0 {
			t.Errorf("conn %d received %d frames, want 0", i, got)
		}
	}
	if stub.calls.Load() != 0 {
		t.Error("recognizer called for an unknown type")
	}
}

func TestEmptyTypeIsDropped(t *testing.T) {
	f := newFixture(t, &stubRecognizer{}, 2)
	err := f.router.Route(context.Background(), f.users[0], []byte(`{"type":""}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Route() error = %v, want ErrUnknownType", err)
	}
	for i, c := range f.conns {
		if got := len(c.Frames()); got != 0 {
			t.Errorf("conn %d received %d frames, want 0", i, got)
		}
	}
}

func TestDroppedRecognitionRequestGetsErrorReply(t *testing.T) {
	stub := &stubRecognizer{}
	f := newFixture(t, stub, 2)

	if err := f.router.Dropped(f.users[0], []byte(`{"type":"draw","x":1}`)); err != nil {
		t.Errorf("Dropped(draw) error = %v", err)
	}
	if len(f.conns[0].Frames()) != 0 || len(f.conns[1].Frames()) != 0 {
		t.Fatal("dropped draw event produced frames")
	}

	if err := f.router.Dropped(f.users[0], []byte(`{"type":"recognize_image","image":"AAAA"}`)); err == nil {
		t.Error("Dropped(recognize_image) expected error")
	}
	frames := f.conns[0].Frames()
	if len(frames) != 1 {
		t.Fatalf("sender received %d frames, want 1", len(frames))
	}
	if got := decode(t, frames[0]); got["type"] != message.TypeError {
		t.Errorf("reply = %v", got)
	}
	if len(f.conns[1].Frames()) != 0 || stub.calls.Load() != 0 {
		t.Error("dropped recognition request reached others or the recognizer")
	}
}

func TestMalformedMessageRepliesToSenderOnly(t *testing.T) {
	for _, frame := range []string{`not json`, `{"no":"type"}`, `{"type":"recognize_image"}`, `{"type":"recognize_image","image":7}`} {
		t.Run(frame, func(t *testing.T) {
			f := newFixture(t, &stubRecognizer{}, 2)

			if err := f.router.Route(context.Background(), f.users[0], []byte(frame)); err == nil {
				t.Error("Route() expected error")
			}

			frames := f.conns[0].Frames()
			if len(frames) != 1 {
				t.Fatalf("sender received %d frames, want 1", len(frames))
			}
			got := decode(t, frames[0])
			if got["type"] != message.TypeError || got["message"] != message.ServerErrorText {
				t.Errorf("reply = %v", got)
			}
			if len(f.conns[1].Frames()) != 0 {
				t.Error("error reply leaked to another connection")
			}
		})
	}
}

func TestRecognitionResultBroadcastToAll(t *testing.T) {
	stub := &stubRecognizer{text: "hello"}
	f := newFixture(t, stub, 3)

	err := f.router.Route(context.Background(), f.users[2], []byte(`{"type":"recognize_image","image":"AAAA"}`))
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	f.router.Wait()

	for i, c := range f.conns {
		frames := c.Frames()
		if len(frames) != 1 {
			t.Fatalf("conn %d received %d frames, want 1", i, len(frames))
		}
		got := decode(t, frames[0])
		if got["type"] != message.TypeRecognitionResult || got["text"] != "hello" {
			t.Errorf("conn %d got %v", i, got)
		}
	}
}

func TestGetUserID(t *testing.T) {
	f := newFixture(t, &stubRecognizer{}, 2)

	if err := f.router.Route(context.Background(), f.users[0], []byte(`{"type":"getUserId"}`)); err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	frames := f.conns[0].Frames()
	if len(frames) != 1 {
		t.Fatalf("sender received %d frames, want 1", len(frames))
	}
	got := decode(t, frames[0])
	if got["type"] != message.TypeUserID || got["userId"] != f.users[0].ID || got["color"] != "#123456" {
		t.Errorf("reply = %v", got)
	}
	if len(f.conns[1].Frames()) != 0 {
		t.Error("userId reply broadcast to another connection")
	}
}

// Three connections, a 200-byte canvas: nobody calls the provider and everyone gets the blank-canvas result
func TestRecognizeBlankCanvasEndToEnd(t *testing.T) {
	engine := recognition.NewGeminiEngine("key", "http://127.0.0.1:1", "", "eng", nil)
	mediator, err := recognition.New(engine, recognition.Options{APIKey: "key", MinImageLength: 1000}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, mediator, 3)

	frame := `{"type":"recognize_image","image":"data:image/png;base64,` + strings.Repeat("A", 200) + `"}`
	if err := f.router.Route(context.Background(), f.users[0], []byte(frame)); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	f.router.Wait()

	for i, c := range f.conns {
		frames := c.Frames()
		if len(frames) != 1 {
			t.Fatalf("conn %d received %d frames, want 1", i, len(frames))
		}
		got := decode(t, frames[0])
		if got["type"] != message.TypeRecognitionResult || got["text"] != recognition.MsgTooBlank {
			t.Errorf("conn %d got %v", i, got)
		}
	}
}
