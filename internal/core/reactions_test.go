package core

import "testing"

func newTestReactions(t *testing.T) (*ReactionAggregator, Message) {
	t.Helper()
	_, store, room := newTestStore(t)
	agg := NewReactionAggregator(store)
	msg, err := store.Append(room.ID, alice, "react to me", MessageKindText, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return agg, msg
}

func TestToggleAddsThenRemoves(t *testing.T) {
	agg, msg := newTestReactions(t)

	added, err := agg.Toggle(msg.ID, bob.ID, "🔥")
	if err != nil || !added {
		t.Fatalf("first toggle: added=%v err=%v", added, err)
	}

	summary := agg.Summary(msg.ID)
	if len(summary) != 1 || summary[0].Emoji != "🔥" || summary[0].Count != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary[0].Reactors) != 1 || summary[0].Reactors[0] != bob.ID {
		t.Fatalf("expected bob as reactor, got %v", summary[0].Reactors)
	}

	added, err = agg.Toggle(msg.ID, bob.ID, "🔥")
	if err != nil || added {
		t.Fatalf("second toggle should remove: added=%v err=%v", added, err)
	}
	if summary := agg.Summary(msg.ID); len(summary) != 0 {
		t.Fatalf("expected emptied emoji omitted, got %+v", summary)
	}
}

func TestToggleUnknownMessage(t *testing.T) {
	agg, _ := newTestReactions(t)
	if _, err := agg.Toggle("ghost", bob.ID, "🔥"); !IsCode(err, ErrCodeMessageNotFound) {
		t.Fatalf("expected message_not_found, got %v", err)
	}
}

func TestSummaryKeepsFirstSeenOrder(t *testing.T) {
	agg, msg := newTestReactions(t)

	agg.Toggle(msg.ID, alice.ID, "👍")
	agg.Toggle(msg.ID, bob.ID, "🔥")
	agg.Toggle(msg.ID, carol.ID, "👍")
	agg.Toggle(msg.ID, alice.ID, "😂")

	summary := agg.Summary(msg.ID)
	want := []struct {
		emoji string
		count int
	}{{"👍", 2}, {"🔥", 1}, {"😂", 1}}
	if len(summary) != len(want) {
		t.Fatalf("expected %d emojis, got %+v", len(want), summary)
	}
	for i, w := range want {
		if summary[i].Emoji != w.emoji || summary[i].Count != w.count {
			t.Fatalf("position %d: expected %s x%d, got %s x%d",
				i, w.emoji, w.count, summary[i].Emoji, summary[i].Count)
		}
	}

	// Emptying the first emoji keeps the rest in place; re-adding it keeps
	// its original slot.
	agg.Toggle(msg.ID, alice.ID, "👍")
	agg.Toggle(msg.ID, carol.ID, "👍")
	summary = agg.Summary(msg.ID)
	if len(summary) != 2 || summary[0].Emoji != "🔥" {
		t.Fatalf("expected 🔥 first after 👍 emptied, got %+v", summary)
	}
	agg.Toggle(msg.ID, bob.ID, "👍")
	summary = agg.Summary(msg.ID)
	if summary[0].Emoji != "👍" {
		t.Fatalf("re-added emoji should keep its first-seen slot, got %+v", summary)
	}
}

func TestSummaryOfUnreactedMessage(t *testing.T) {
	agg, msg := newTestReactions(t)
	if summary := agg.Summary(msg.ID); len(summary) != 0 {
		t.Fatalf("expected nil summary, got %+v", summary)
	}
}
