package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/cache"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
)

// Cache TTLs. Conversation summaries go stale slowly; the unread badge
// should feel live.
const (
	conversationsTTL = 5 * time.Minute
	unreadTTL        = 30 * time.Second

	conversationsCacheKey = "conversations:page1"
	unreadCacheKey        = "unread:total"
)

// conversationAPI is the REST collaborator surface ChatService needs.
type conversationAPI interface {
	GetOrCreateConversation(ctx context.Context, userA, userB int64) (*store.Conversation, error)
	TotalUnread(ctx context.Context) (int, error)
}

// ChatService handles the conversation list and cross-conversation state.
type ChatService struct {
	rest          conversationAPI
	conversations *store.ConversationStore
	cache         *cache.Cache
	logger        *zap.Logger
	selfID        int64
	pageSize      int
}

// NewChatService creates the chat service for the signed-in user.
func NewChatService(rest conversationAPI, conversations *store.ConversationStore, c *cache.Cache, selfID int64, pageSize int, logger *zap.Logger) *ChatService {
	return &ChatService{
		rest:          rest,
		conversations: conversations,
		cache:         c,
		logger:        logger,
		selfID:        selfID,
		pageSize:      pageSize,
	}
}

// Conversations loads one page of conversation summaries. Page 1 falls back
// to the persistent cache when the API is unreachable, so the list renders
// offline; a successful fetch refreshes the cache.
func (s *ChatService) Conversations(ctx context.Context, page int) ([]store.Conversation, store.PageCursor, error) {
	cursor, err := s.conversations.FetchPage(ctx, page, s.pageSize)
	if err != nil {
		if page <= 1 {
			if cached, ok := s.cachedConversations(); ok {
				s.logger.Warn("conversation list from cache, API unreachable", zap.Error(err))
				return cached, store.PageCursor{Page: 1, PageSize: s.pageSize}, nil
			}
		}
		return nil, store.PageCursor{}, err
	}

	list := s.conversations.List()
	if page <= 1 {
		s.cacheConversations(list)
	}
	return list, cursor, nil
}

// Search filters the loaded conversations by peer name or last message.
func (s *ChatService) Search(query string) []store.Conversation {
	return s.conversations.Search(query)
}

// OpenWith resolves the conversation with a peer, creating it on first
// contact. The endpoint is idempotent per unordered user pair.
func (s *ChatService) OpenWith(ctx context.Context, peerID int64) (*store.Conversation, error) {
	conv, err := s.rest.GetOrCreateConversation(ctx, s.selfID, peerID)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	s.conversations.Upsert(conv)
	return conv, nil
}

// UnreadTotal returns the unread badge count across all conversations,
// cached briefly to keep the badge cheap to poll.
func (s *ChatService) UnreadTotal(ctx context.Context) (int, error) {
	if data, ok, err := s.cache.Get(unreadCacheKey); err == nil && ok {
		if n, convErr := strconv.Atoi(string(data)); convErr == nil {
			return n, nil
		}
	}
	n, err := s.rest.TotalUnread(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(unreadCacheKey, []byte(strconv.Itoa(n)), unreadTTL); err != nil {
		s.logger.Warn("unread count cache write failed", zap.Error(err))
	}
	return n, nil
}

func (s *ChatService) cacheConversations(list []store.Conversation) {
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := s.cache.Set(conversationsCacheKey, data, conversationsTTL); err != nil {
		s.logger.Warn("conversation cache write failed", zap.Error(err))
	}
}

func (s *ChatService) cachedConversations() ([]store.Conversation, bool) {
	data, ok, err := s.cache.Get(conversationsCacheKey)
	if err != nil || !ok {
		return nil, false
	}
	var list []store.Conversation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, false
	}
	return list, true
}
