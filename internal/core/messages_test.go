package core

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Registry, *MessageStore, Room) {
	t.Helper()
	reg := NewRegistry()
	store := NewMessageStore(reg)
	room, err := reg.Create(RoomSpec{Name: "global", Kind: RoomKindGlobal})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return reg, store, room
}

func TestAppendAssignsContiguousSeqs(t *testing.T) {
	_, store, room := newTestStore(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(room.ID, alice, "hello", MessageKindText, ""); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := store.History(room.ID, 0, n)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != n {
		t.Fatalf("expected %d messages, got %d", n, len(history))
	}
	for i, msg := range history {
		if msg.Seq != int64(i+1) {
			t.Fatalf("position %d: expected seq %d, got %d", i, i+1, msg.Seq)
		}
	}
	if store.LatestSeq(room.ID) != n {
		t.Fatalf("expected latest seq %d, got %d", n, store.LatestSeq(room.ID))
	}
}

func TestAppendRejectsEmptyText(t *testing.T) {
	_, store, room := newTestStore(t)

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := store.Append(room.ID, alice, content, MessageKindText, ""); !IsCode(err, ErrCodeEmptyMessage) {
			t.Fatalf("content %q: expected empty_message, got %v", content, err)
		}
	}
	// Rejections never consume a seq.
	if got := store.LatestSeq(room.ID); got != 0 {
		t.Fatalf("expected seq untouched, got %d", got)
	}
}

func TestAppendUnknownRoom(t *testing.T) {
	_, store, _ := newTestStore(t)
	if _, err := store.Append("ghost", alice, "hi", MessageKindText, ""); !IsCode(err, ErrCodeRoomNotFound) {
		t.Fatalf("expected room_not_found, got %v", err)
	}
}

func TestAppendHonorsRoomKindSettings(t *testing.T) {
	reg, store, _ := newTestStore(t)
	room, err := reg.Create(RoomSpec{
		Name:     "media",
		Kind:     RoomKindGroup,
		Settings: RoomSettings{AllowImages: true},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := store.Append(room.ID, alice, "cat.png", MessageKindImage, ""); err != nil {
		t.Fatalf("image should be allowed: %v", err)
	}
	if _, err := store.Append(room.ID, alice, "doc.pdf", MessageKindFile, ""); !IsCode(err, ErrCodeKindNotAllowed) {
		t.Fatalf("expected kind_not_allowed for files, got %v", err)
	}
}

func TestAppendDefaultsKindToText(t *testing.T) {
	_, store, room := newTestStore(t)
	msg, err := store.Append(room.ID, alice, "hi", "", "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Kind != MessageKindText {
		t.Fatalf("expected text kind, got %s", msg.Kind)
	}
}

func TestAppendScansMentions(t *testing.T) {
	_, store, room := newTestStore(t)

	msg, err := store.Append(room.ID, alice, "hey @bob and @carol, ping @bob again @!", MessageKindText, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	want := []string{"bob", "carol"}
	if !reflect.DeepEqual(msg.Mentions, want) {
		t.Fatalf("expected mentions %v, got %v", want, msg.Mentions)
	}
}

func TestSlowModeThrottlesPerAuthor(t *testing.T) {
	reg, store, _ := newTestStore(t)
	room, err := reg.Create(RoomSpec{
		Name:     "announcements",
		Kind:     RoomKindGlobal,
		Settings: RoomSettings{SlowModeSeconds: 10},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	if _, err := store.Append(room.ID, alice, "first", MessageKindText, ""); err != nil {
		t.Fatalf("first append: %v", err)
	}

	clock = clock.Add(4 * time.Second)
	_, err = store.Append(room.ID, alice, "too soon", MessageKindText, "")
	if !IsCode(err, ErrCodeSlowMode) {
		t.Fatalf("expected slow_mode_active, got %v", err)
	}
	var coreErr *Error
	if !errors.As(err, &coreErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if coreErr.RetryAfter != 6*time.Second {
		t.Fatalf("expected retry after 6s, got %s", coreErr.RetryAfter)
	}

	// Other authors are unaffected.
	if _, err := store.Append(room.ID, bob, "different author", MessageKindText, ""); err != nil {
		t.Fatalf("other author should pass: %v", err)
	}

	// System messages bypass slow mode and never arm it.
	if _, err := store.Append(room.ID, SystemIdentity, "notice", MessageKindSystem, ""); err != nil {
		t.Fatalf("system append: %v", err)
	}

	clock = clock.Add(7 * time.Second)
	if _, err := store.Append(room.ID, alice, "window elapsed", MessageKindText, ""); err != nil {
		t.Fatalf("append after window: %v", err)
	}
}

func TestEditIsAuthorOnly(t *testing.T) {
	_, store, room := newTestStore(t)
	msg, _ := store.Append(room.ID, alice, "draft", MessageKindText, "")

	if _, err := store.Edit(msg.ID, "hijacked", bob.ID); !IsCode(err, ErrCodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	got, _ := store.Get(msg.ID)
	if got.Content != "draft" || got.EditedAt != nil {
		t.Fatalf("rejected edit must not mutate: content=%q edited=%v", got.Content, got.EditedAt)
	}

	edited, err := store.Edit(msg.ID, "final @carol", alice.ID)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Content != "final @carol" || edited.EditedAt == nil {
		t.Fatalf("expected edited content with EditedAt, got %+v", edited)
	}
	if !reflect.DeepEqual(edited.Mentions, []string{"carol"}) {
		t.Fatalf("expected mentions rescanned, got %v", edited.Mentions)
	}
	if edited.Seq != msg.Seq {
		t.Fatalf("edit must not move seq: %d vs %d", edited.Seq, msg.Seq)
	}
}

func TestSoftDelete(t *testing.T) {
	_, store, room := newTestStore(t)
	msg, _ := store.Append(room.ID, alice, "regret", MessageKindText, "")

	if err := store.SoftDelete(msg.ID, bob.ID); !IsCode(err, ErrCodeForbidden) {
		t.Fatalf("expected forbidden for non-author, got %v", err)
	}
	if err := store.SoftDelete(msg.ID, alice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Idempotent.
	if err := store.SoftDelete(msg.ID, alice.ID); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}

	got, err := store.Get(msg.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Deleted || got.Content != "" {
		t.Fatalf("deleted message must hide content, got %+v", got)
	}
	if got.Seq != msg.Seq {
		t.Fatal("deleted message must keep its seq")
	}

	// Editing a deleted message reads as missing.
	if _, err := store.Edit(msg.ID, "resurrect", alice.ID); !IsCode(err, ErrCodeMessageNotFound) {
		t.Fatalf("expected message_not_found, got %v", err)
	}

	// History still spans the deleted seq.
	history, _ := store.History(room.ID, 0, 10)
	if len(history) != 1 || !history[0].Deleted {
		t.Fatalf("expected deleted tombstone in history, got %+v", history)
	}
}

func TestHistoryPagination(t *testing.T) {
	_, store, room := newTestStore(t)
	for i := 0; i < 7; i++ {
		if _, err := store.Append(room.ID, alice, "m", MessageKindText, ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := store.History(room.ID, 0, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 3 || page[0].Seq != 1 || page[2].Seq != 3 {
		t.Fatalf("first page wrong: %+v", seqs(page))
	}

	// afterSeq is exclusive.
	page, _ = store.History(room.ID, 3, 3)
	if len(page) != 3 || page[0].Seq != 4 {
		t.Fatalf("second page wrong: %+v", seqs(page))
	}

	page, _ = store.History(room.ID, 6, 3)
	if len(page) != 1 || page[0].Seq != 7 {
		t.Fatalf("last page wrong: %+v", seqs(page))
	}

	page, _ = store.History(room.ID, 7, 3)
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", seqs(page))
	}
}

func TestReplyMustTargetSameRoom(t *testing.T) {
	reg, store, roomA := newTestStore(t)
	roomB, _ := reg.Create(RoomSpec{Name: "other", Kind: RoomKindGlobal})

	parent, _ := store.Append(roomA.ID, alice, "parent", MessageKindText, "")

	reply, err := store.Append(roomA.ID, bob, "child", MessageKindText, parent.ID)
	if err != nil {
		t.Fatalf("same-room reply: %v", err)
	}
	if reply.ReplyTo != parent.ID {
		t.Fatalf("expected reply_to %s, got %s", parent.ID, reply.ReplyTo)
	}

	if _, err := store.Append(roomB.ID, bob, "cross", MessageKindText, parent.ID); !IsCode(err, ErrCodeMessageNotFound) {
		t.Fatalf("expected message_not_found for cross-room reply, got %v", err)
	}
	if _, err := store.Append(roomA.ID, bob, "dangling", MessageKindText, "nope"); !IsCode(err, ErrCodeMessageNotFound) {
		t.Fatalf("expected message_not_found for unknown reply target, got %v", err)
	}
}

func TestReadPathsDoNotRetainUnknownRooms(t *testing.T) {
	_, store, room := newTestStore(t)

	if got := store.LatestSeq("ghost"); got != 0 {
		t.Fatalf("expected seq 0 for unknown room, got %d", got)
	}
	if got := store.UnreadAfter("ghost", 0, ""); got != 0 {
		t.Fatalf("expected 0 unread for unknown room, got %d", got)
	}
	if _, err := store.History("ghost", 0, 10); !IsCode(err, ErrCodeRoomNotFound) {
		t.Fatalf("expected room_not_found, got %v", err)
	}

	// A registered room with no messages reads empty too.
	history, err := store.History(room.ID, 0, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", seqs(history))
	}

	store.mu.RLock()
	logs := len(store.logs)
	store.mu.RUnlock()
	if logs != 0 {
		t.Fatalf("reads must not allocate room logs, got %d", logs)
	}
}

func TestUnreadAfterSkipsDeletedAndOwn(t *testing.T) {
	_, store, room := newTestStore(t)

	store.Append(room.ID, alice, "one", MessageKindText, "")
	store.Append(room.ID, bob, "mine", MessageKindText, "")
	gone, _ := store.Append(room.ID, alice, "gone", MessageKindText, "")
	store.Append(room.ID, carol, "four", MessageKindText, "")
	store.SoftDelete(gone.ID, alice.ID)

	if got := store.UnreadAfter(room.ID, 0, bob.ID); got != 2 {
		t.Fatalf("expected 2 unread for bob, got %d", got)
	}
	if got := store.UnreadAfter(room.ID, 2, bob.ID); got != 1 {
		t.Fatalf("expected 1 unread past seq 2, got %d", got)
	}
	if got := store.UnreadAfter(room.ID, 4, bob.ID); got != 0 {
		t.Fatalf("expected 0 unread at head, got %d", got)
	}
}

func TestScanMentions(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"no mentions here", nil},
		{"@solo", []string{"solo"}},
		{"@a @b @a", []string{"a", "b"}},
		{"mid@word counts", []string{"word"}},
		{"trailing @", nil},
		{"@CamelCase42!", []string{"CamelCase42"}},
	}
	for _, tt := range tests {
		if got := scanMentions(tt.content); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("scanMentions(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func seqs(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}
