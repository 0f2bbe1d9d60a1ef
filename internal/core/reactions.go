package core

import "sync"

// ReactionCount is one emoji's aggregate on a message.
type ReactionCount struct {
	Emoji    string
	Count    int
	Reactors []string
}

// messageReactions keeps per-emoji reactor sets for one message, plus the
// first-seen order of emojis so rendering stays stable.
type messageReactions struct {
	mu    sync.Mutex
	order []string
	sets  map[string]map[string]struct{}
}

// ReactionAggregator maintains emoji -> reactor-set maps per message.
// Toggle is the only mutator; the count is always derived from the set, so
// a stored counter can never drift from the reactor list.
type ReactionAggregator struct {
	store *MessageStore

	mu        sync.RWMutex
	byMessage map[string]*messageReactions
}

// NewReactionAggregator constructs an aggregator backed by the store for
// message existence checks.
func NewReactionAggregator(store *MessageStore) *ReactionAggregator {
	return &ReactionAggregator{
		store:     store,
		byMessage: make(map[string]*messageReactions),
	}
}

// Toggle flips userID's reaction on the message. Reacting twice with the
// same emoji removes it; there is no separate remove operation.
func (a *ReactionAggregator) Toggle(messageID, userID, emoji string) (added bool, err error) {
	if _, err := a.store.Get(messageID); err != nil {
		return false, err
	}

	a.mu.Lock()
	mr, ok := a.byMessage[messageID]
	if !ok {
		mr = &messageReactions{sets: make(map[string]map[string]struct{})}
		a.byMessage[messageID] = mr
	}
	a.mu.Unlock()

	mr.mu.Lock()
	defer mr.mu.Unlock()
	set, ok := mr.sets[emoji]
	if !ok {
		set = make(map[string]struct{})
		mr.sets[emoji] = set
		mr.order = append(mr.order, emoji)
	}
	if _, reacted := set[userID]; reacted {
		delete(set, userID)
		return false, nil
	}
	set[userID] = struct{}{}
	return true, nil
}

// Summary returns the message's reactions in first-seen emoji order.
// Emojis whose reactor set has emptied are omitted.
func (a *ReactionAggregator) Summary(messageID string) []ReactionCount {
	a.mu.RLock()
	mr, ok := a.byMessage[messageID]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	out := make([]ReactionCount, 0, len(mr.order))
	for _, emoji := range mr.order {
		set := mr.sets[emoji]
		if len(set) == 0 {
			continue
		}
		reactors := make([]string, 0, len(set))
		for userID := range set {
			reactors = append(reactors, userID)
		}
		out = append(out, ReactionCount{Emoji: emoji, Count: len(set), Reactors: reactors})
	}
	return out
}
