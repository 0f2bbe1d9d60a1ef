package sim

import (
	"context"
	"testing"
	"time"

	"github.com/pixelgrid/chatcore/internal/core"
)

func TestProduceEmitsIntoConfiguredRooms(t *testing.T) {
	src := New(Config{
		Rooms:        []string{"r1", "r2"},
		Interval:     2 * time.Millisecond,
		TypingChance: 0.5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch := src.Produce(ctx)

	rooms := map[string]struct{}{"r1": {}, "r2": {}}
	sawMessage := false
	for i := 0; i < 20; i++ {
		ev, ok := <-ch
		if !ok {
			t.Fatal("channel closed early")
		}
		if _, known := rooms[ev.RoomID]; !known {
			t.Fatalf("event for unconfigured room %q", ev.RoomID)
		}
		if ev.Author.ID == "" {
			t.Fatalf("event without author: %+v", ev)
		}
		switch ev.Kind {
		case core.FeedMessage:
			sawMessage = true
			if ev.Content == "" || ev.MsgKind != core.MessageKindText {
				t.Fatalf("malformed message event %+v", ev)
			}
		case core.FeedTyping:
		default:
			t.Fatalf("unexpected kind %v", ev.Kind)
		}
	}
	if !sawMessage {
		t.Fatal("expected at least one message among 20 events")
	}

	cancel()
	for range ch {
	}
}

func TestProduceWithoutRoomsClosesImmediately(t *testing.T) {
	src := New(Config{})
	ch := src.Produce(context.Background())
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel when no rooms are configured")
	}
}
