package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConcurrentSendsKeepRoomConsistent(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	var wg sync.WaitGroup
	send := func(who Identity) {
		defer wg.Done()
		if _, err := e.Append(context.Background(), room.ID, who, "hello from "+who.Name, MessageKindText, ""); err != nil {
			t.Errorf("append: %v", err)
		}
	}
	wg.Add(3)
	go send(alice)
	go send(bob)
	go send(alice)
	wg.Wait()

	history, err := e.History(room.ID, 0, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	for i, msg := range history {
		if msg.Seq != int64(i+1) {
			t.Fatalf("position %d: expected seq %d, got %d", i, i+1, msg.Seq)
		}
	}
	// Bob never read anything and skips his own message.
	if got := e.UnreadCount(room.ID, bob.ID); got != 2 {
		t.Fatalf("expected bob unread 2, got %d", got)
	}
}

func TestMessageEventsArriveInSeqOrder(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	sub := e.Subscribe(room.ID)
	defer sub.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Append(context.Background(), room.ID, alice, "burst", MessageKindText, ""); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	// Subscribers must see message seqs strictly ascending, never a later
	// seq overtaking an earlier one.
	var last int64
	seen := 0
	for seen < n {
		select {
		case ev := <-sub.C:
			if ev.Kind != EventMessageNew {
				continue
			}
			seen++
			if ev.Message.Seq != last+1 {
				t.Fatalf("event %d: expected seq %d, got %d", seen, last+1, ev.Message.Seq)
			}
			last = ev.Message.Seq
		default:
			t.Fatalf("channel drained after %d of %d message events", seen, n)
		}
	}
}

func TestSubscriptionDeliversMessageLifecycle(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	sub := e.Subscribe(room.ID)
	defer sub.Close()

	msg := mustAppend(t, e, room.ID, alice, "v1")
	ev := mustEvent(t, sub.C, EventMessageNew)
	if ev.Message == nil || ev.Message.ID != msg.ID || ev.Message.Seq != 1 {
		t.Fatalf("unexpected message event %+v", ev)
	}

	if _, err := e.Edit(msg.ID, "v2", alice.ID); err != nil {
		t.Fatalf("edit: %v", err)
	}
	ev = mustEvent(t, sub.C, EventMessageEdited)
	if ev.Message == nil || ev.Message.Content != "v2" {
		t.Fatalf("unexpected edit event %+v", ev)
	}

	added, err := e.ToggleReaction(msg.ID, bob.ID, "👍")
	if err != nil || !added {
		t.Fatalf("toggle: added=%v err=%v", added, err)
	}
	ev = mustEvent(t, sub.C, EventReactionChanged)
	if ev.MessageID != msg.ID || len(ev.Reactions) != 1 || ev.Reactions[0].Emoji != "👍" {
		t.Fatalf("unexpected reaction event %+v", ev)
	}

	if err := e.SoftDelete(msg.ID, alice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ev = mustEvent(t, sub.C, EventMessageDeleted)
	if ev.MessageID != msg.ID {
		t.Fatalf("unexpected delete event %+v", ev)
	}
}

func TestSubscriptionScopedToRoom(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	roomA := mustCreateRoom(t, e, RoomSpec{Name: "a", Kind: RoomKindGlobal})
	roomB := mustCreateRoom(t, e, RoomSpec{Name: "b", Kind: RoomKindGlobal})

	sub := e.Subscribe(roomA.ID)
	defer sub.Close()

	mustAppend(t, e, roomB.ID, alice, "other room")
	mustAppend(t, e, roomA.ID, bob, "this room")

	ev := mustEvent(t, sub.C, EventMessageNew)
	if ev.RoomID != roomA.ID || ev.Message.Author.ID != bob.ID {
		t.Fatalf("expected only roomA traffic, got %+v", ev)
	}
	select {
	case extra := <-sub.C:
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestPresenceEventsReachSubscribers(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	sub := e.Subscribe(room.ID)
	defer sub.Close()

	e.SetTyping(room.ID, alice)
	ev := mustEvent(t, sub.C, EventPresenceChanged)
	p := findPresence(t, ev.Presence, alice.ID)
	if !p.Typing {
		t.Fatalf("expected alice typing, got %+v", p)
	}

	// Sending clears the author's typing lease.
	mustAppend(t, e, room.ID, alice, "done typing")
	ev = mustEvent(t, sub.C, EventPresenceChanged)
	if p := findPresence(t, ev.Presence, alice.ID); p.Typing {
		t.Fatal("expected typing cleared after send")
	}

	e.Disconnect(room.ID, alice.ID)
	ev = mustEvent(t, sub.C, EventPresenceChanged)
	if len(ev.Presence) != 0 {
		t.Fatalf("expected empty presence after disconnect, got %+v", ev.Presence)
	}
}

func TestSweepLoopExpiresTyping(t *testing.T) {
	e := newTestEngine(t, EngineConfig{
		TypingTTL: 30 * time.Millisecond,
	})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	sub := e.Subscribe(room.ID)
	defer sub.Close()

	e.SetTyping(room.ID, alice)
	mustEvent(t, sub.C, EventPresenceChanged)

	// The sweeper pushes the expiry without any further calls.
	ev := mustEvent(t, sub.C, EventPresenceChanged)
	if p := findPresence(t, ev.Presence, alice.ID); p.Typing {
		t.Fatalf("expected typing expired by sweeper, got %+v", p)
	}
}

func TestJoinAnnouncesAndPublishes(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Announce: true})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	sub := e.Subscribe(room.ID)
	defer sub.Close()

	if err := e.Join(context.Background(), room.ID, alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustEvent(t, sub.C, EventRoomChanged)
	ev := mustEvent(t, sub.C, EventMessageNew)
	if ev.Message.Kind != MessageKindSystem || !ev.Message.Author.IsSystem() {
		t.Fatalf("expected system announcement, got %+v", ev.Message)
	}

	// Re-joining is silent.
	if err := e.Join(context.Background(), room.ID, alice); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	select {
	case extra := <-sub.C:
		t.Fatalf("re-join should publish nothing, got %+v", extra)
	default:
	}

	if err := e.Leave(context.Background(), room.ID, alice); err != nil {
		t.Fatalf("leave: %v", err)
	}
	mustEvent(t, sub.C, EventRoomChanged)
	ev = mustEvent(t, sub.C, EventMessageNew)
	if ev.Message.Kind != MessageKindSystem {
		t.Fatalf("expected leave announcement, got %+v", ev.Message)
	}
}

func TestAppendRateLimit(t *testing.T) {
	e := newTestEngine(t, EngineConfig{AppendRate: 1, AppendBurst: 1})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	mustAppend(t, e, room.ID, alice, "first")

	_, err := e.Append(context.Background(), room.ID, alice, "second", MessageKindText, "")
	if !IsCode(err, ErrCodeRateLimited) {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	var coreErr *Error
	if !errors.As(err, &coreErr) || coreErr.RetryAfter <= 0 {
		t.Fatalf("expected positive retry hint, got %v", err)
	}

	// The limiter is per author per room: bob and other rooms are unaffected.
	mustAppend(t, e, room.ID, bob, "bob speaks")
	other := mustCreateRoom(t, e, RoomSpec{Name: "other", Kind: RoomKindGlobal})
	mustAppend(t, e, other.ID, alice, "fresh bucket")

	// Rejected sends never consume a seq.
	if got := e.LatestSeq(room.ID); got != 2 {
		t.Fatalf("expected latest seq 2, got %d", got)
	}
}

type scriptedFeed struct {
	events []FeedEvent
}

func (f *scriptedFeed) Produce(ctx context.Context) <-chan FeedEvent {
	ch := make(chan FeedEvent)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func TestFeedSharesTheAppendPath(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	room := mustCreateRoom(t, e, RoomSpec{Name: "global", Kind: RoomKindGlobal})

	sub := e.Subscribe(room.ID)
	defer sub.Close()

	feeder := Identity{ID: "feed-1", Name: "Wire"}
	src := &scriptedFeed{events: []FeedEvent{
		{Kind: FeedHeartbeat, RoomID: room.ID, Author: feeder},
		{Kind: FeedTyping, RoomID: room.ID, Author: feeder},
		{Kind: FeedMessage, RoomID: room.ID, Author: feeder, Content: "external hello"},
		{Kind: FeedMessage, RoomID: room.ID, Author: feeder, Content: "   "}, // rejected, no gap
		{Kind: FeedMessage, RoomID: room.ID, Author: feeder, Content: "external again"},
	}}
	e.RunFeed(context.Background(), src)

	history, err := e.History(room.ID, 0, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Seq != 1 || history[1].Seq != 2 {
		t.Fatalf("expected 2 messages with contiguous seqs, got %+v", seqs(history))
	}
	if history[0].Author.ID != feeder.ID {
		t.Fatalf("expected feed author snapshot, got %+v", history[0].Author)
	}

	// The subscriber saw the same fan-out as for local sends.
	ev := mustEvent(t, sub.C, EventMessageNew)
	if ev.Message.Content != "external hello" {
		t.Fatalf("unexpected first event %+v", ev.Message)
	}
	if got := e.UnreadCount(room.ID, bob.ID); got != 2 {
		t.Fatalf("expected 2 unread from the feed, got %d", got)
	}
}

type recordingCatalog struct {
	mu      sync.Mutex
	state   CatalogState
	cursors map[flagKey]int64
	closed  bool
}

func newRecordingCatalog() *recordingCatalog {
	return &recordingCatalog{cursors: make(map[flagKey]int64)}
}

func (c *recordingCatalog) SaveRoom(ctx context.Context, room Room) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.state.Rooms {
		if c.state.Rooms[i].ID == room.ID {
			c.state.Rooms[i] = room
			return nil
		}
	}
	c.state.Rooms = append(c.state.Rooms, room)
	return nil
}

func (c *recordingCatalog) SaveMember(ctx context.Context, roomID, userID string, joined bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.state.Members {
		if m.RoomID == roomID && m.UserID == userID {
			if !joined {
				c.state.Members = append(c.state.Members[:i], c.state.Members[i+1:]...)
			}
			return nil
		}
	}
	if joined {
		c.state.Members = append(c.state.Members, MemberRecord{RoomID: roomID, UserID: userID})
	}
	return nil
}

func (c *recordingCatalog) SaveFlags(ctx context.Context, roomID, userID string, muted, pinned bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.state.Flags {
		if f.RoomID == roomID && f.UserID == userID {
			c.state.Flags[i].Muted = muted
			c.state.Flags[i].Pinned = pinned
			return nil
		}
	}
	c.state.Flags = append(c.state.Flags, FlagRecord{RoomID: roomID, UserID: userID, Muted: muted, Pinned: pinned})
	return nil
}

func (c *recordingCatalog) SaveCursor(ctx context.Context, roomID, userID string, seq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[flagKey{roomID, userID}] = seq
	return nil
}

func (c *recordingCatalog) Load(ctx context.Context) (CatalogState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state
	state.Cursors = nil
	for key, seq := range c.cursors {
		state.Cursors = append(state.Cursors, CursorRecord{RoomID: key.roomID, UserID: key.userID, Seq: seq})
	}
	return state, nil
}

func (c *recordingCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestCatalogRoundTripAcrossEngines(t *testing.T) {
	cat := newRecordingCatalog()
	logger := zerolog.Nop()

	first := NewEngine(EngineConfig{AppendRate: 1000, AppendBurst: 1000}, cat, &logger)
	room, err := first.CreateRoom(context.Background(), RoomSpec{Name: "persisted", Kind: RoomKindGroup})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.Join(context.Background(), room.ID, alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := first.SetPinned(context.Background(), room.ID, alice.ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if err := first.MarkRead(context.Background(), room.ID, alice.ID, 7); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	second := NewEngine(EngineConfig{AppendRate: 1000, AppendBurst: 1000}, cat, &logger)
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := second.Room(room.ID)
	if err != nil {
		t.Fatalf("room after restore: %v", err)
	}
	if got.Name != "persisted" || got.MemberCount != 1 {
		t.Fatalf("unexpected restored room %+v", got)
	}
	views := second.ListRooms(alice.ID, RoomFilter{})
	if len(views) != 1 || !views[0].IsPinned {
		t.Fatalf("expected pinned flag restored, got %+v", views)
	}
	if got := second.counter.Cursor(room.ID, alice.ID); got != 7 {
		t.Fatalf("expected cursor 7 restored, got %d", got)
	}
}
