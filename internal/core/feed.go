package core

import "context"

// FeedEventKind classifies externally-originated events.
type FeedEventKind int

const (
	// FeedMessage carries an inbound chat message.
	FeedMessage FeedEventKind = iota
	// FeedTyping carries a typing signal.
	FeedTyping
	// FeedHeartbeat carries a presence heartbeat.
	FeedHeartbeat
)

// FeedEvent is one normalized event from an inbound feed: a network frame
// in production, a synthetic generator in development. The engine pushes it
// through the same append and presence paths as any local caller.
type FeedEvent struct {
	Kind    FeedEventKind
	RoomID  string
	Author  Identity
	Content string
	MsgKind MessageKind
}

// FeedSource is the single method a host implements to feed external events
// into the engine.
type FeedSource interface {
	Produce(ctx context.Context) <-chan FeedEvent
}
