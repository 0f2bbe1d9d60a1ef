package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageKind classifies message payloads.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// Message is one entry in a room's append-only log. Author is a snapshot
// taken at send time and never re-resolved. Seq is the per-room ordering
// authority; wall-clock timestamps are informational only.
type Message struct {
	ID       string
	RoomID   string
	Author   Identity
	Content  string
	Kind     MessageKind
	SentAt   time.Time
	EditedAt *time.Time
	Deleted  bool
	ReplyTo  string
	Mentions []string
	Seq      int64
}

// roomLog serializes seq assignment and appends for one room. Different
// rooms never share this lock.
type roomLog struct {
	mu       sync.Mutex
	seq      int64
	messages []*Message
	byID     map[string]*Message
	lastSend map[string]time.Time
}

// MessageStore keeps the per-room message logs. Appends within a room are
// serialized behind the room's own mutex; cross-room operations proceed in
// parallel.
type MessageStore struct {
	reg *Registry

	mu    sync.RWMutex
	logs  map[string]*roomLog
	index map[string]string // message id -> room id

	now func() time.Time
}

// NewMessageStore constructs a store backed by the given registry for room
// existence and settings lookups.
func NewMessageStore(reg *Registry) *MessageStore {
	return &MessageStore{
		reg:   reg,
		logs:  make(map[string]*roomLog),
		index: make(map[string]string),
		now:   time.Now,
	}
}

// log returns the room's log, creating it on first write.
func (s *MessageStore) log(roomID string) *roomLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[roomID]
	if !ok {
		l = &roomLog{
			byID:     make(map[string]*Message),
			lastSend: make(map[string]time.Time),
		}
		s.logs[roomID] = l
	}
	return l
}

// peek returns the room's log without creating one. Read paths use it so
// lookups against rooms that never saw a message do not grow the map.
func (s *MessageStore) peek(roomID string) *roomLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs[roomID]
}

// Append validates, assigns the next seq and stores the message. Validation
// happens before the seq counter moves so failed sends never leave gaps.
func (s *MessageStore) Append(roomID string, author Identity, content string, kind MessageKind, replyTo string) (Message, error) {
	room, ok := s.reg.Get(roomID)
	if !ok {
		return Message{}, coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	if kind == "" {
		kind = MessageKindText
	}
	if kind == MessageKindText && strings.TrimSpace(content) == "" {
		return Message{}, coreError(ErrCodeEmptyMessage, "text message has no content")
	}
	if kind == MessageKindImage && !room.Settings.AllowImages {
		return Message{}, coreError(ErrCodeKindNotAllowed, "room does not allow images")
	}
	if kind == MessageKindFile && !room.Settings.AllowFiles {
		return Message{}, coreError(ErrCodeKindNotAllowed, "room does not allow files")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, fmt.Errorf("new message id: %w", err)
	}

	l := s.log(roomID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if replyTo != "" {
		if _, ok := l.byID[replyTo]; !ok {
			return Message{}, coreError(ErrCodeMessageNotFound, "reply target not in room")
		}
	}

	now := s.now()
	if window := time.Duration(room.Settings.SlowModeSeconds) * time.Second; window > 0 && kind != MessageKindSystem {
		if last, ok := l.lastSend[author.ID]; ok {
			if elapsed := now.Sub(last); elapsed < window {
				return Message{}, retryError(ErrCodeSlowMode, "slow mode active", window-elapsed)
			}
		}
	}

	l.seq++
	msg := &Message{
		ID:       id.String(),
		RoomID:   roomID,
		Author:   author,
		Content:  content,
		Kind:     kind,
		SentAt:   now,
		ReplyTo:  replyTo,
		Mentions: scanMentions(content),
		Seq:      l.seq,
	}
	l.messages = append(l.messages, msg)
	l.byID[msg.ID] = msg
	if kind != MessageKindSystem {
		l.lastSend[author.ID] = now
	}

	s.mu.Lock()
	s.index[msg.ID] = roomID
	s.mu.Unlock()

	return msg.snapshot(), nil
}

// Edit replaces the content of the author's own message and stamps EditedAt.
// Seq and ordering never change.
func (s *MessageStore) Edit(messageID, newContent, requesterID string) (Message, error) {
	l, msg, err := s.locate(messageID)
	if err != nil {
		return Message{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.Author.ID != requesterID {
		return Message{}, coreError(ErrCodeForbidden, "only the author may edit")
	}
	if msg.Deleted {
		return Message{}, coreError(ErrCodeMessageNotFound, "message deleted")
	}
	msg.Content = newContent
	msg.Mentions = scanMentions(newContent)
	at := s.now()
	msg.EditedAt = &at
	return msg.snapshot(), nil
}

// SoftDelete marks the author's own message deleted. Content stays in the
// log for seq continuity but is never exposed by reads. Idempotent.
func (s *MessageStore) SoftDelete(messageID, requesterID string) error {
	l, msg, err := s.locate(messageID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.Author.ID != requesterID {
		return coreError(ErrCodeForbidden, "only the author may delete")
	}
	msg.Deleted = true
	return nil
}

// History returns the room's messages in ascending seq order, afterSeq
// exclusive. This is the sole pagination primitive; offsets are unstable
// under concurrent appends.
func (s *MessageStore) History(roomID string, afterSeq int64, limit int) ([]Message, error) {
	if _, ok := s.reg.Get(roomID); !ok {
		return nil, coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	if limit <= 0 {
		limit = 50
	}

	l := s.peek(roomID)
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, 0, limit)
	for _, msg := range l.messages {
		if msg.Seq <= afterSeq {
			continue
		}
		out = append(out, msg.snapshot())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Get returns a read copy of one message.
func (s *MessageStore) Get(messageID string) (Message, error) {
	l, msg, err := s.locate(messageID)
	if err != nil {
		return Message{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return msg.snapshot(), nil
}

// LatestSeq returns the highest assigned seq for the room, zero when the
// room has no log yet.
func (s *MessageStore) LatestSeq(roomID string) int64 {
	l := s.peek(roomID)
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// UnreadAfter counts messages with seq greater than afterSeq, skipping
// deleted messages and those authored by excludeAuthor.
func (s *MessageStore) UnreadAfter(roomID string, afterSeq int64, excludeAuthor string) int {
	l := s.peek(roomID)
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for i := len(l.messages) - 1; i >= 0; i-- {
		msg := l.messages[i]
		if msg.Seq <= afterSeq {
			break
		}
		if msg.Deleted || msg.Author.ID == excludeAuthor {
			continue
		}
		count++
	}
	return count
}

func (s *MessageStore) locate(messageID string) (*roomLog, *Message, error) {
	s.mu.RLock()
	roomID, ok := s.index[messageID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, coreError(ErrCodeMessageNotFound, "unknown message "+messageID)
	}
	l := s.peek(roomID)
	if l == nil {
		return nil, nil, coreError(ErrCodeMessageNotFound, "unknown message "+messageID)
	}
	l.mu.Lock()
	msg, ok := l.byID[messageID]
	l.mu.Unlock()
	if !ok {
		return nil, nil, coreError(ErrCodeMessageNotFound, "unknown message "+messageID)
	}
	return l, msg, nil
}

// snapshot copies the message for readers, hiding deleted content.
func (m *Message) snapshot() Message {
	out := *m
	if out.Deleted {
		out.Content = ""
		out.Mentions = nil
	} else {
		out.Mentions = append([]string(nil), m.Mentions...)
	}
	return out
}

// scanMentions extracts @mentions: an alphanumeric run following '@'.
// Duplicates collapse, first occurrence order is kept.
func scanMentions(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := 0; i < len(content); i++ {
		if content[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(content) && isMentionRune(content[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		token := content[i+1 : j]
		if _, dup := seen[token]; !dup {
			seen[token] = struct{}{}
			out = append(out, token)
		}
		i = j - 1
	}
	return out
}

func isMentionRune(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
