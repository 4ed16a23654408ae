package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageFetcher is the REST collaborator used for paginated history
// fetches. Implementations must return each page in chronological order.
type MessageFetcher interface {
	ListMessages(ctx context.Context, conversationID int64, page, pageSize int) ([]*Message, PageCursor, error)
}

// MessageStore owns the ordered message sequence for each open conversation.
// It is the only writer: the realtime path and the REST path both mutate
// messages exclusively through its methods, which is what preserves the
// deduplication and ordering invariants.
type MessageStore struct {
	mu      sync.RWMutex
	fetcher MessageFetcher
	threads map[int64]*thread
}

// thread holds one conversation's messages. Insertion order is chronological
// and is never re-sorted; reconciliation replaces in place.
type thread struct {
	mu     sync.Mutex
	msgs   []*Message
	cursor PageCursor
}

// NewMessageStore creates a message store backed by the given history fetcher.
func NewMessageStore(fetcher MessageFetcher) *MessageStore {
	return &MessageStore{
		fetcher: fetcher,
		threads: make(map[int64]*thread),
	}
}

func (s *MessageStore) thread(conversationID int64) *thread {
	s.mu.RLock()
	t := s.threads[conversationID]
	s.mu.RUnlock()
	if t != nil {
		return t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t = s.threads[conversationID]; t == nil {
		t = &thread{}
		s.threads[conversationID] = t
	}
	return t
}

// FetchPage loads one page of history from the REST collaborator and merges
// it into the conversation. Page 1 replaces the visible window for a fresh
// load, carrying over messages that still hold a temporary id so a pending
// or failed send survives the user navigating away and back. Pages above 1
// are older history and are prepended. Messages that already arrived over
// the realtime channel are deduplicated by server id.
func (s *MessageStore) FetchPage(ctx context.Context, conversationID int64, page, pageSize int) (PageCursor, error) {
	if page < 1 {
		page = 1
	}
	fetched, cursor, err := s.fetcher.ListMessages(ctx, conversationID, page, pageSize)
	if err != nil {
		return PageCursor{}, fmt.Errorf("list messages: %w", err)
	}

	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	if page == 1 {
		t.replaceWindow(fetched)
	} else {
		t.prependOlder(fetched)
	}
	t.cursor = cursor
	return cursor, nil
}

// replaceWindow installs a fresh page 1, keeping temporary messages that the
// server does not know about yet (or that failed and must stay visible).
func (t *thread) replaceWindow(fetched []*Message) {
	merged := make([]*Message, 0, len(fetched))
	seen := make(map[int64]bool, len(fetched))
	nonces := make(map[string]bool)
	for _, m := range fetched {
		if m.ID != 0 && seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if m.ClientMsgID != "" {
			nonces[m.ClientMsgID] = true
		}
		merged = append(merged, m)
	}
	for _, m := range t.msgs {
		if !m.Temporary() {
			continue
		}
		// The server already confirmed this send; keep the confirmed copy.
		if m.ClientMsgID != "" && nonces[m.ClientMsgID] {
			continue
		}
		merged = append(merged, m)
	}
	t.msgs = merged
}

// prependOlder inserts an older history page before the current window.
func (t *thread) prependOlder(fetched []*Message) {
	existing := make(map[int64]bool, len(t.msgs))
	for _, m := range t.msgs {
		existing[m.ID] = true
	}
	fresh := make([]*Message, 0, len(fetched))
	for _, m := range fetched {
		if existing[m.ID] {
			continue
		}
		fresh = append(fresh, m)
	}
	t.msgs = append(fresh, t.msgs...)
}

// AppendFromRealtime appends a message received over the realtime channel.
// Re-delivery of an id the store already holds is ignored. A message whose
// client nonce matches a pending optimistic message is the sender's own
// echo racing the REST response: it reconciles that message in place
// instead of appending. Returns true if the stored sequence changed.
func (s *MessageStore) AppendFromRealtime(conversationID int64, msg *Message) bool {
	if msg == nil {
		return false
	}
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.msgs {
		if m.ID == msg.ID {
			return false
		}
		if msg.ClientMsgID != "" && m.ClientMsgID == msg.ClientMsgID {
			if m.Temporary() {
				t.replaceAt(i, msg)
				return true
			}
			return false
		}
	}
	t.msgs = append(t.msgs, msg)
	return true
}

// CreateOptimistic inserts a pending message with a temporary negative id
// derived from the current time, guaranteed not to collide with
// server-assigned positive ids. The returned copy carries the temporary id
// the caller needs for later reconciliation.
func (s *MessageStore) CreateOptimistic(conversationID int64, text string, senderID int64, localRef string, kind AttachmentKind) Message {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UnixMilli()
	tempID := -now
	for t.indexOf(tempID) >= 0 {
		tempID--
	}

	msg := &Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       senderID,
		ClientMsgID:    uuid.New().String(),
		Text:           text,
		CreatedAt:      now,
		Pending:        true,
	}
	if localRef != "" {
		msg.Attachment = &Attachment{Kind: kind, LocalRef: localRef}
	}
	t.msgs = append(t.msgs, msg)
	return *msg
}

// ReconcileSuccess replaces the message bearing tempID with the
// server-confirmed message, in the exact position the temporary one held.
// If the realtime echo already reconciled it the call is a no-op.
func (s *MessageStore) ReconcileSuccess(conversationID, tempID int64, confirmed *Message) error {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(tempID)
	if i < 0 {
		if confirmed != nil && t.indexOf(confirmed.ID) >= 0 {
			return nil
		}
		return fmt.Errorf("no pending message with id %d in conversation %d", tempID, conversationID)
	}
	if confirmed == nil {
		return fmt.Errorf("confirmed message is nil")
	}
	t.replaceAt(i, confirmed)
	return nil
}

// replaceAt swaps the message at index i for the confirmed one. The local
// file reference is carried over so an attachment preview does not flicker
// while the remote URL loads.
func (t *thread) replaceAt(i int, confirmed *Message) {
	prev := t.msgs[i]
	c := *confirmed
	c.Pending = false
	c.UploadError = ""
	if c.ClientMsgID == "" {
		c.ClientMsgID = prev.ClientMsgID
	}
	if prev.Attachment != nil && prev.Attachment.LocalRef != "" && c.Attachment != nil && c.Attachment.LocalRef == "" {
		c.Attachment.LocalRef = prev.Attachment.LocalRef
	}
	t.msgs[i] = &c
}

// ReconcileFailure marks the message bearing tempID as failed. The message
// stays in place with its local file reference so the user can see what
// failed to send.
func (s *MessageStore) ReconcileFailure(conversationID, tempID int64, reason string) error {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(tempID)
	if i < 0 {
		return fmt.Errorf("no pending message with id %d in conversation %d", tempID, conversationID)
	}
	m := *t.msgs[i]
	m.Pending = false
	m.UploadError = reason
	t.msgs[i] = &m
	return nil
}

// MarkReadThrough marks every message up to and including upToID as read.
// Used both for local optimistic marking and for read receipts arriving
// over the realtime channel. Returns the number of messages newly marked.
func (s *MessageStore) MarkReadThrough(conversationID, upToID, readAt int64) int {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.indexOf(upToID)
	if end < 0 {
		return 0
	}
	return t.markRead(0, end, readAt)
}

// MarkAllRead marks every stored message in the conversation as read.
func (s *MessageStore) MarkAllRead(conversationID, readAt int64) int {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markRead(0, len(t.msgs)-1, readAt)
}

func (t *thread) markRead(from, through int, readAt int64) int {
	marked := 0
	for i := from; i <= through && i < len(t.msgs); i++ {
		if t.msgs[i].Read {
			continue
		}
		m := *t.msgs[i]
		m.Read = true
		m.ReadAt = readAt
		t.msgs[i] = &m
		marked++
	}
	return marked
}

func (t *thread) indexOf(id int64) int {
	for i, m := range t.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Messages returns a snapshot of the conversation's messages in
// chronological order. Mutating the snapshot does not affect the store.
func (s *MessageStore) Messages(conversationID int64) []Message {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

// Cursor returns the pagination state for a conversation.
func (s *MessageStore) Cursor(conversationID int64) PageCursor {
	t := s.thread(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}
