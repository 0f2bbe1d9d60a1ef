package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	if cfg.AppendRate == 0 {
		cfg.AppendRate = 1000
		cfg.AppendBurst = 1000
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Millisecond
	}
	logger := zerolog.Nop()
	return NewEngine(cfg, nil, &logger)
}

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return Event{}
}

func mustCreateRoom(t *testing.T, e *Engine, spec RoomSpec) Room {
	t.Helper()
	room, err := e.CreateRoom(context.Background(), spec)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func mustAppend(t *testing.T, e *Engine, roomID string, author Identity, content string) Message {
	t.Helper()
	msg, err := e.Append(context.Background(), roomID, author, content, MessageKindText, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return msg
}

var (
	alice = Identity{ID: "u-alice", Name: "Alice", Level: 4}
	bob   = Identity{ID: "u-bob", Name: "Bob", Level: 9, Premium: true}
	carol = Identity{ID: "u-carol", Name: "Carol", Verified: true}
)
