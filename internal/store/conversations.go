package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConversationFetcher is the REST collaborator used for the paginated
// conversation list.
type ConversationFetcher interface {
	ListConversations(ctx context.Context, page, pageSize int) ([]*Conversation, PageCursor, error)
}

// ConversationStore holds the conversation summaries for the signed-in user.
type ConversationStore struct {
	mu      sync.RWMutex
	fetcher ConversationFetcher
	convs   map[int64]*Conversation
	cursor  PageCursor
}

// NewConversationStore creates a conversation store backed by the given fetcher.
func NewConversationStore(fetcher ConversationFetcher) *ConversationStore {
	return &ConversationStore{
		fetcher: fetcher,
		convs:   make(map[int64]*Conversation),
	}
}

// FetchPage loads one page of conversation summaries and merges it in.
// Page 1 resets the collection for a fresh load.
func (s *ConversationStore) FetchPage(ctx context.Context, page, pageSize int) (PageCursor, error) {
	if page < 1 {
		page = 1
	}
	fetched, cursor, err := s.fetcher.ListConversations(ctx, page, pageSize)
	if err != nil {
		return PageCursor{}, fmt.Errorf("list conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if page == 1 {
		s.convs = make(map[int64]*Conversation, len(fetched))
	}
	for _, c := range fetched {
		s.convs[c.ID] = c
	}
	s.cursor = cursor
	return cursor, nil
}

// Upsert inserts or replaces a conversation summary.
func (s *ConversationStore) Upsert(c *Conversation) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = c
}

// Get returns a conversation summary by id, or false if unknown.
func (s *ConversationStore) Get(id int64) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// ApplyMessage refreshes the last-message preview for the message's
// conversation and bumps the unread counter when the message came from the
// peer. Unknown conversations are ignored; the next list fetch picks them up.
func (s *ConversationStore) ApplyMessage(msg *Message, selfID int64) {
	if msg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[msg.ConversationID]
	if !ok {
		return
	}
	u := *c
	u.LastMessageText = preview(msg)
	u.LastMessageSenderID = msg.SenderID
	u.LastMessageAt = msg.CreatedAt
	u.UpdatedAt = time.Now().UnixMilli()
	if msg.SenderID != selfID && !msg.Read {
		u.UnreadCount++
	}
	s.convs[msg.ConversationID] = &u
}

// ClearUnread zeroes the unread counter for a conversation.
func (s *ConversationStore) ClearUnread(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		u := *c
		u.UnreadCount = 0
		s.convs[id] = &u
	}
}

// List returns conversation summaries sorted by last activity, newest first.
func (s *ConversationStore) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt != out[j].LastMessageAt {
			return out[i].LastMessageAt > out[j].LastMessageAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Search returns conversations whose peer name or last message contains the
// query, case-insensitively, sorted by last activity.
func (s *ConversationStore) Search(query string) []Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.List()
	}
	all := s.List()
	out := all[:0]
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.PeerName), q) ||
			strings.Contains(strings.ToLower(c.LastMessageText), q) {
			out = append(out, c)
		}
	}
	return out
}

// Cursor returns the pagination state of the conversation list.
func (s *ConversationStore) Cursor() PageCursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func preview(msg *Message) string {
	if msg.Text != "" {
		return truncate(msg.Text, 100)
	}
	if msg.Attachment != nil {
		return "[" + string(msg.Attachment.Kind) + "]"
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
