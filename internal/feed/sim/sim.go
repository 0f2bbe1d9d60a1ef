// Package sim is a synthetic inbound feed for development: a timer-driven
// generator that stands in for live network traffic. It produces the same
// normalized events a real transport would, so the engine cannot tell the
// difference.
package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/pixelgrid/chatcore/internal/core"
)

// Config tunes the generator.
type Config struct {
	// Rooms to post into.
	Rooms []string
	// Interval is the mean delay between events; actual delays jitter
	// between 0.5x and 1.5x.
	Interval time.Duration
	// TypingChance in [0,1] is the probability an event is a typing burst
	// instead of a message.
	TypingChance float64
}

// Source implements core.FeedSource with randomized canned traffic.
type Source struct {
	cfg     Config
	authors []core.Identity
	lines   []string
	rng     *rand.Rand
}

var defaultAuthors = []core.Identity{
	{ID: "sim-nova", Name: "Nova", Level: 12, Premium: true},
	{ID: "sim-pix", Name: "PixelPete", Level: 7},
	{ID: "sim-luna", Name: "Luna", Level: 21, Verified: true},
	{ID: "sim-rex", Name: "Rex", Level: 3},
	{ID: "sim-iris", Name: "Iris", Level: 15, Premium: true, Verified: true},
}

var defaultLines = []string{
	"anyone trading corner pixels?",
	"just grabbed a 4x4 block, feeling good",
	"gg on the tournament @Nova",
	"the center grid is getting expensive",
	"who painted the blue stripe?",
	"selling my plot, DM me",
	"this room is on fire today",
	"lol",
	"check the new rankings",
	"morning everyone",
}

// New constructs a generator. Zero-value fields fall back to defaults.
func New(cfg Config) *Source {
	if cfg.Interval <= 0 {
		cfg.Interval = 4 * time.Second
	}
	if cfg.TypingChance <= 0 {
		cfg.TypingChance = 0.3
	}
	return &Source{
		cfg:     cfg,
		authors: defaultAuthors,
		lines:   defaultLines,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Produce emits events until the context is cancelled.
func (s *Source) Produce(ctx context.Context) <-chan core.FeedEvent {
	out := make(chan core.FeedEvent)
	if len(s.cfg.Rooms) == 0 {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		for {
			delay := s.cfg.Interval/2 + time.Duration(s.rng.Int63n(int64(s.cfg.Interval)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			ev := s.next()
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}

			// A typing burst is followed shortly by the message itself,
			// like a real user finishing their thought.
			if ev.Kind == core.FeedTyping {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(s.rng.Int63n(int64(s.cfg.Interval) / 2))):
				}
				follow := core.FeedEvent{
					Kind:    core.FeedMessage,
					RoomID:  ev.RoomID,
					Author:  ev.Author,
					Content: s.lines[s.rng.Intn(len(s.lines))],
					MsgKind: core.MessageKindText,
				}
				select {
				case <-ctx.Done():
					return
				case out <- follow:
				}
			}
		}
	}()
	return out
}

func (s *Source) next() core.FeedEvent {
	author := s.authors[s.rng.Intn(len(s.authors))]
	roomID := s.cfg.Rooms[s.rng.Intn(len(s.cfg.Rooms))]
	if s.rng.Float64() < s.cfg.TypingChance {
		return core.FeedEvent{Kind: core.FeedTyping, RoomID: roomID, Author: author}
	}
	return core.FeedEvent{
		Kind:    core.FeedMessage,
		RoomID:  roomID,
		Author:  author,
		Content: s.lines[s.rng.Intn(len(s.lines))],
		MsgKind: core.MessageKindText,
	}
}
