package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pixelgrid/chatcore/internal/metrics"
)

// Catalog persists registry state between runs: rooms, membership,
// per-participant flags and read cursors. Message logs are deliberately not
// part of it. Implementations live under internal/store.
type Catalog interface {
	SaveRoom(ctx context.Context, room Room) error
	SaveMember(ctx context.Context, roomID, userID string, joined bool) error
	SaveFlags(ctx context.Context, roomID, userID string, muted, pinned bool) error
	SaveCursor(ctx context.Context, roomID, userID string, seq int64) error
	Load(ctx context.Context) (CatalogState, error)
	Close() error
}

// CatalogState is everything a catalog restores at startup.
type CatalogState struct {
	Rooms   []Room
	Members []MemberRecord
	Flags   []FlagRecord
	Cursors []CursorRecord
}

// MemberRecord is one persisted room membership.
type MemberRecord struct {
	RoomID string
	UserID string
}

// FlagRecord is one persisted per-participant flag pair.
type FlagRecord struct {
	RoomID string
	UserID string
	Muted  bool
	Pinned bool
}

// CursorRecord is one persisted read cursor.
type CursorRecord struct {
	RoomID string
	UserID string
	Seq    int64
}

// EngineConfig tunes the engine. Zero values fall back to defaults.
type EngineConfig struct {
	TypingTTL     time.Duration
	PresenceTTL   time.Duration
	SweepInterval time.Duration

	// Per-author per-room append throughput. The inbound feed is a tenant
	// like any other caller; it gets no privileged path.
	AppendRate  rate.Limit
	AppendBurst int

	// Announce emits system messages on join and leave.
	Announce bool
}

// Subscription is a per-room event stream. Events are dropped when the
// channel is full so one stalled host cannot wedge a room.
type Subscription struct {
	RoomID string
	C      chan Event

	engine *Engine
	once   sync.Once
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() { s.engine.unsubscribe(s) })
}

// Engine is the façade external callers touch. It composes the registry,
// message store, reaction aggregator, presence tracker and notification
// counter, and owns event fan-out and the inbound feed.
type Engine struct {
	cfg       EngineConfig
	log       *zerolog.Logger
	registry  *Registry
	store     *MessageStore
	reactions *ReactionAggregator
	presence  *PresenceTracker
	counter   *NotificationCounter
	catalog   Catalog

	subMu sync.RWMutex
	subs  map[string]map[*Subscription]struct{}

	limMu    sync.Mutex
	limiters map[flagKey]*rate.Limiter

	pubMu    sync.Mutex
	pubLocks map[string]*sync.Mutex
}

// NewEngine wires the core components. catalog may be nil for a fully
// ephemeral engine.
func NewEngine(cfg EngineConfig, catalog Catalog, logger *zerolog.Logger) *Engine {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.AppendRate <= 0 {
		cfg.AppendRate = 5
	}
	if cfg.AppendBurst <= 0 {
		cfg.AppendBurst = 10
	}

	registry := NewRegistry()
	store := NewMessageStore(registry)
	e := &Engine{
		cfg:       cfg,
		log:       logger,
		registry:  registry,
		store:     store,
		reactions: NewReactionAggregator(store),
		presence:  NewPresenceTracker(cfg.TypingTTL, cfg.PresenceTTL),
		counter:   NewNotificationCounter(store, registry),
		catalog:   catalog,
		subs:      make(map[string]map[*Subscription]struct{}),
		limiters:  make(map[flagKey]*rate.Limiter),
		pubLocks:  make(map[string]*sync.Mutex),
	}
	return e
}

// Restore loads the persisted catalog into the registry and counters.
// Call before serving traffic.
func (e *Engine) Restore(ctx context.Context) error {
	if e.catalog == nil {
		return nil
	}
	state, err := e.catalog.Load(ctx)
	if err != nil {
		return err
	}
	for _, room := range state.Rooms {
		room.MemberCount = 0
		e.registry.Restore(room)
	}
	for _, m := range state.Members {
		if _, err := e.registry.Join(m.RoomID, m.UserID); err != nil {
			e.log.Warn().Err(err).Str("room_id", m.RoomID).Msg("restore membership")
		}
	}
	for _, f := range state.Flags {
		e.registry.RestoreFlags(f.RoomID, f.UserID, f.Muted, f.Pinned)
	}
	for _, c := range state.Cursors {
		e.counter.RestoreCursor(c.RoomID, c.UserID, c.Seq)
	}
	e.log.Info().
		Int("rooms", len(state.Rooms)).
		Int("members", len(state.Members)).
		Int("cursors", len(state.Cursors)).
		Msg("catalog restored")
	return nil
}

// Run drives the presence sweeper until the context is cancelled. Expired
// typing and presence leases surface as presence-changed events without
// waiting for the next read.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, roomID := range e.presence.Sweep() {
				e.publishPresence(roomID)
			}
		}
	}
}

// RunFeed consumes the source until its channel closes or the context is
// cancelled. Feed events go through the exact append and presence paths as
// local callers: same validation, same seq serialization, same limits.
func (e *Engine) RunFeed(ctx context.Context, src FeedSource) {
	for ev := range src.Produce(ctx) {
		metrics.FeedEvents.Inc()
		var err error
		switch ev.Kind {
		case FeedMessage:
			_, err = e.Append(ctx, ev.RoomID, ev.Author, ev.Content, ev.MsgKind, "")
		case FeedTyping:
			e.SetTyping(ev.RoomID, ev.Author)
		case FeedHeartbeat:
			e.Heartbeat(ev.RoomID, ev.Author)
		}
		if err != nil {
			e.log.Debug().Err(err).Str("room_id", ev.RoomID).Str("author", ev.Author.ID).Msg("feed event rejected")
		}
	}
}

// CreateRoom validates and registers a room, persisting it when a catalog
// is attached.
func (e *Engine) CreateRoom(ctx context.Context, spec RoomSpec) (Room, error) {
	room, err := e.registry.Create(spec)
	if err != nil {
		return Room{}, err
	}
	e.persistRoom(ctx, room)
	e.log.Info().Str("room_id", room.ID).Str("name", room.Name).Str("kind", string(room.Kind)).Msg("room created")
	return room, nil
}

// Room returns the room's metadata.
func (e *Engine) Room(roomID string) (Room, error) {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return Room{}, coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	return room, nil
}

// ListRooms returns the viewer's rooms in contract order: pinned first,
// then unread descending, then name ascending.
func (e *Engine) ListRooms(viewerID string, filter RoomFilter) []RoomView {
	return e.registry.List(viewerID, filter, func(roomID string) int {
		return e.counter.UnreadCount(roomID, viewerID)
	})
}

// ArchiveRoom soft-archives a room; it drops out of listings but keeps state.
func (e *Engine) ArchiveRoom(ctx context.Context, roomID string) error {
	if err := e.registry.Archive(roomID); err != nil {
		return err
	}
	if room, ok := e.registry.Get(roomID); ok {
		e.persistRoom(ctx, room)
		e.publish(roomID, Event{Kind: EventRoomChanged, RoomID: roomID})
	}
	return nil
}

// Join makes the user a member of the room. Idempotent.
func (e *Engine) Join(ctx context.Context, roomID string, who Identity) error {
	joined, err := e.registry.Join(roomID, who.ID)
	if err != nil {
		return err
	}
	if !joined {
		return nil
	}
	if e.catalog != nil {
		if err := e.catalog.SaveMember(ctx, roomID, who.ID, true); err != nil {
			e.log.Warn().Err(err).Str("room_id", roomID).Msg("persist membership")
		}
	}
	if room, ok := e.registry.Get(roomID); ok {
		e.persistRoom(ctx, room)
	}
	e.publish(roomID, Event{Kind: EventRoomChanged, RoomID: roomID, UserID: who.ID})
	if e.cfg.Announce {
		e.announce(ctx, roomID, who.Name+" joined")
	}
	return nil
}

// Leave removes the user from the room.
func (e *Engine) Leave(ctx context.Context, roomID string, who Identity) error {
	if err := e.registry.Leave(roomID, who.ID); err != nil {
		return err
	}
	if e.catalog != nil {
		if err := e.catalog.SaveMember(ctx, roomID, who.ID, false); err != nil {
			e.log.Warn().Err(err).Str("room_id", roomID).Msg("persist membership")
		}
	}
	if room, ok := e.registry.Get(roomID); ok {
		e.persistRoom(ctx, room)
	}
	e.presence.Disconnect(roomID, who.ID)
	e.publish(roomID, Event{Kind: EventRoomChanged, RoomID: roomID, UserID: who.ID})
	if e.cfg.Announce {
		e.announce(ctx, roomID, who.Name+" left")
	}
	return nil
}

// SetMuted flips the viewer's mute flag.
func (e *Engine) SetMuted(ctx context.Context, roomID, userID string, muted bool) error {
	if err := e.registry.SetMuted(roomID, userID, muted); err != nil {
		return err
	}
	e.persistFlags(ctx, roomID, userID)
	e.publish(roomID, Event{Kind: EventRoomChanged, RoomID: roomID, UserID: userID})
	return nil
}

// SetPinned flips the viewer's pin flag.
func (e *Engine) SetPinned(ctx context.Context, roomID, userID string, pinned bool) error {
	if err := e.registry.SetPinned(roomID, userID, pinned); err != nil {
		return err
	}
	e.persistFlags(ctx, roomID, userID)
	e.publish(roomID, Event{Kind: EventRoomChanged, RoomID: roomID, UserID: userID})
	return nil
}

// Append sends a message into the room. Every producer, local or feed,
// passes through here: rate limit, validation, seq assignment, fan-out.
func (e *Engine) Append(ctx context.Context, roomID string, author Identity, content string, kind MessageKind, replyTo string) (Message, error) {
	if !author.IsSystem() {
		if wait := e.reserve(roomID, author.ID); wait > 0 {
			metrics.AppendRejected.WithLabelValues(ErrCodeRateLimited).Inc()
			return Message{}, retryError(ErrCodeRateLimited, "too many messages", wait)
		}
	}

	// Seq assignment and the message-new fan-out stay under one per-room
	// lock so subscribers observe seqs in order.
	lock := e.appendLock(roomID)
	lock.Lock()
	msg, err := e.store.Append(roomID, author, content, kind, replyTo)
	if err != nil {
		lock.Unlock()
		if code := ErrorCode(err); code != "" {
			metrics.AppendRejected.WithLabelValues(code).Inc()
		}
		return Message{}, err
	}
	metrics.MessagesAppended.WithLabelValues(string(msg.Kind)).Inc()
	e.publish(roomID, Event{Kind: EventMessageNew, RoomID: roomID, Message: &msg})
	lock.Unlock()

	// A send implies the author is alive and no longer typing.
	if !author.IsSystem() {
		e.presence.Heartbeat(roomID, author)
		if e.presence.ClearTyping(roomID, author.ID) {
			e.publishPresence(roomID)
		}
	}
	return msg, nil
}

// Edit rewrites the author's own message.
func (e *Engine) Edit(messageID, newContent, requesterID string) (Message, error) {
	msg, err := e.store.Edit(messageID, newContent, requesterID)
	if err != nil {
		return Message{}, err
	}
	e.publish(msg.RoomID, Event{Kind: EventMessageEdited, RoomID: msg.RoomID, Message: &msg})
	return msg, nil
}

// SoftDelete marks the author's own message deleted.
func (e *Engine) SoftDelete(messageID, requesterID string) error {
	msg, err := e.store.Get(messageID)
	if err != nil {
		return err
	}
	if err := e.store.SoftDelete(messageID, requesterID); err != nil {
		return err
	}
	e.publish(msg.RoomID, Event{Kind: EventMessageDeleted, RoomID: msg.RoomID, MessageID: messageID})
	return nil
}

// History pages the room's log, afterSeq exclusive, ascending seq.
func (e *Engine) History(roomID string, afterSeq int64, limit int) ([]Message, error) {
	return e.store.History(roomID, afterSeq, limit)
}

// ToggleReaction flips the user's emoji reaction on a message.
func (e *Engine) ToggleReaction(messageID, userID, emoji string) (bool, error) {
	added, err := e.reactions.Toggle(messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	if msg, err := e.store.Get(messageID); err == nil {
		e.publish(msg.RoomID, Event{
			Kind:      EventReactionChanged,
			RoomID:    msg.RoomID,
			MessageID: messageID,
			Reactions: e.reactions.Summary(messageID),
			UserID:    userID,
		})
	}
	return added, nil
}

// Reactions returns the message's reaction summary.
func (e *Engine) Reactions(messageID string) []ReactionCount {
	return e.reactions.Summary(messageID)
}

// MarkRead advances the user's read cursor, monotonic.
func (e *Engine) MarkRead(ctx context.Context, roomID, userID string, throughSeq int64) error {
	if err := e.counter.MarkRead(roomID, userID, throughSeq); err != nil {
		return err
	}
	if e.catalog != nil {
		if err := e.catalog.SaveCursor(ctx, roomID, userID, e.counter.Cursor(roomID, userID)); err != nil {
			e.log.Warn().Err(err).Str("room_id", roomID).Msg("persist cursor")
		}
	}
	return nil
}

// UnreadCount is the user's unread message count for one room.
func (e *Engine) UnreadCount(roomID, userID string) int {
	return e.counter.UnreadCount(roomID, userID)
}

// TotalUnread sums unread counts over the user's joined rooms.
func (e *Engine) TotalUnread(userID string) int {
	return e.counter.TotalUnread(userID)
}

// LatestSeq returns the newest seq in the room.
func (e *Engine) LatestSeq(roomID string) int64 {
	return e.store.LatestSeq(roomID)
}

// Heartbeat refreshes the user's presence lease.
func (e *Engine) Heartbeat(roomID string, who Identity) {
	if e.presence.Heartbeat(roomID, who) {
		e.publishPresence(roomID)
	}
}

// SetTyping starts or extends the user's typing lease.
func (e *Engine) SetTyping(roomID string, who Identity) {
	if e.presence.SetTyping(roomID, who) {
		e.publishPresence(roomID)
	}
}

// ClearTyping ends the typing lease early.
func (e *Engine) ClearTyping(roomID, userID string) {
	if e.presence.ClearTyping(roomID, userID) {
		e.publishPresence(roomID)
	}
}

// SetAway marks the user away until their next heartbeat.
func (e *Engine) SetAway(roomID, userID string) {
	if e.presence.SetAway(roomID, userID) {
		e.publishPresence(roomID)
	}
}

// Disconnect drops the user's presence in the room immediately.
func (e *Engine) Disconnect(roomID, userID string) {
	if e.presence.Disconnect(roomID, userID) {
		e.publishPresence(roomID)
	}
}

// PresenceSnapshot reads the room's live participants.
func (e *Engine) PresenceSnapshot(roomID string) []Presence {
	return e.presence.Snapshot(roomID)
}

// Subscribe opens a per-room event stream.
func (e *Engine) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		RoomID: roomID,
		C:      make(chan Event, 64),
		engine: e,
	}
	e.subMu.Lock()
	if e.subs[roomID] == nil {
		e.subs[roomID] = make(map[*Subscription]struct{})
	}
	e.subs[roomID][sub] = struct{}{}
	e.subMu.Unlock()
	metrics.Subscriptions.Inc()
	return sub
}

func (e *Engine) unsubscribe(sub *Subscription) {
	e.subMu.Lock()
	if set, ok := e.subs[sub.RoomID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.C)
			metrics.Subscriptions.Dec()
		}
		if len(set) == 0 {
			delete(e.subs, sub.RoomID)
		}
	}
	e.subMu.Unlock()
}

func (e *Engine) publish(roomID string, event Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for sub := range e.subs[roomID] {
		select {
		case sub.C <- event:
		default:
			// Drop if slow consumer.
			metrics.EventsDropped.Inc()
		}
	}
}

func (e *Engine) publishPresence(roomID string) {
	e.publish(roomID, Event{
		Kind:     EventPresenceChanged,
		RoomID:   roomID,
		Presence: e.presence.Snapshot(roomID),
	})
}

func (e *Engine) announce(ctx context.Context, roomID, text string) {
	if _, err := e.Append(ctx, roomID, SystemIdentity, text, MessageKindSystem, ""); err != nil {
		e.log.Warn().Err(err).Str("room_id", roomID).Msg("announce")
	}
}

func (e *Engine) persistRoom(ctx context.Context, room Room) {
	if e.catalog == nil {
		return
	}
	if err := e.catalog.SaveRoom(ctx, room); err != nil {
		e.log.Warn().Err(err).Str("room_id", room.ID).Msg("persist room")
	}
}

func (e *Engine) persistFlags(ctx context.Context, roomID, userID string) {
	if e.catalog == nil {
		return
	}
	muted, pinned := e.registry.Flags(roomID, userID)
	if err := e.catalog.SaveFlags(ctx, roomID, userID, muted, pinned); err != nil {
		e.log.Warn().Err(err).Str("room_id", roomID).Msg("persist flags")
	}
}

// appendLock returns the room's append/publish serialization point.
func (e *Engine) appendLock(roomID string) *sync.Mutex {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	lock, ok := e.pubLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		e.pubLocks[roomID] = lock
	}
	return lock
}

// reserve takes one token from the author's per-room limiter, returning the
// wait that would be needed. Zero means the send may proceed now.
func (e *Engine) reserve(roomID, authorID string) time.Duration {
	e.limMu.Lock()
	key := flagKey{roomID, authorID}
	lim, ok := e.limiters[key]
	if !ok {
		lim = rate.NewLimiter(e.cfg.AppendRate, e.cfg.AppendBurst)
		e.limiters[key] = lim
	}
	e.limMu.Unlock()

	res := lim.Reserve()
	if wait := res.Delay(); wait > 0 {
		res.Cancel()
		return wait
	}
	return 0
}
