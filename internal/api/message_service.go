// Package api is the surface the embedding UI layer calls. Services here
// glue the connection manager, stores, REST client and orchestrator
// together; they own no message state themselves.
package api

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/deliver"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/ws"
)

// readMarker is the REST collaborator surface MessageService needs.
type readMarker interface {
	MarkConversationRead(ctx context.Context, conversationID int64) error
}

// MessageService handles everything scoped to one open conversation.
type MessageService struct {
	rest          readMarker
	messages      *store.MessageStore
	conversations *store.ConversationStore
	conn          *ws.Manager
	orchestrator  *deliver.Orchestrator
	logger        *zap.Logger
	token         string
	pageSize      int
}

// NewMessageService creates the message service.
func NewMessageService(rest readMarker, messages *store.MessageStore, conversations *store.ConversationStore, conn *ws.Manager, orchestrator *deliver.Orchestrator, token string, pageSize int, logger *zap.Logger) *MessageService {
	return &MessageService{
		rest:          rest,
		messages:      messages,
		conversations: conversations,
		conn:          conn,
		orchestrator:  orchestrator,
		logger:        logger,
		token:         token,
		pageSize:      pageSize,
	}
}

// Open brings a conversation on screen: establish the realtime connection,
// load the newest history page and clear the unread state. A failing
// connection does not block the history load or message composition — the
// connection manager keeps retrying and reports through connection.status
// events; only a failed history fetch is returned as an error.
func (s *MessageService) Open(ctx context.Context, conversationID int64) error {
	if err := s.conn.Connect(ctx, conversationID, s.token); err != nil {
		s.logger.Warn("realtime connect failed, continuing with REST only",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err))
	}

	if _, err := s.messages.FetchPage(ctx, conversationID, 1, s.pageSize); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if err := s.MarkRead(ctx, conversationID); err != nil {
		s.logger.Warn("mark read failed", zap.Error(err))
	}
	return nil
}

// Close tears down the realtime connection. The stores keep their state so
// reopening the conversation is cheap and pending sends stay visible.
func (s *MessageService) Close() {
	s.conn.Disconnect()
}

// LoadOlder fetches the next (older) history page. Returns false when no
// older page remains.
func (s *MessageService) LoadOlder(ctx context.Context, conversationID int64) (bool, error) {
	cursor := s.messages.Cursor(conversationID)
	if !cursor.HasMore() {
		return false, nil
	}
	if _, err := s.messages.FetchPage(ctx, conversationID, cursor.Page+1, s.pageSize); err != nil {
		return false, err
	}
	return true, nil
}

// Messages returns the current snapshot of the conversation.
func (s *MessageService) Messages(conversationID int64) []store.Message {
	return s.messages.Messages(conversationID)
}

// Send submits a plain text message.
func (s *MessageService) Send(ctx context.Context, conversationID int64, text string) (*store.Message, error) {
	return s.orchestrator.SendPlain(ctx, conversationID, text)
}

// SendAttachment starts an attachment send and returns the temporary id of
// the pending message.
func (s *MessageService) SendAttachment(ctx context.Context, conversationID int64, text, localPath string, kind store.AttachmentKind) (int64, error) {
	return s.orchestrator.SendWithAttachment(ctx, conversationID, text, localPath, kind)
}

// Typing forwards a typing indicator on the realtime channel. Best effort.
func (s *MessageService) Typing(isTyping bool) bool {
	return s.conn.SendTyping(isTyping)
}

// ReadUpTo marks messages read locally up to and including messageID and
// notifies the peer over the realtime channel.
func (s *MessageService) ReadUpTo(conversationID, messageID int64) {
	s.messages.MarkReadThrough(conversationID, messageID, time.Now().UnixMilli())
	s.conn.SendRead(messageID)
}

// MarkRead marks the whole conversation read, locally and on the server.
func (s *MessageService) MarkRead(ctx context.Context, conversationID int64) error {
	s.messages.MarkAllRead(conversationID, time.Now().UnixMilli())
	s.conversations.ClearUnread(conversationID)
	return s.rest.MarkConversationRead(ctx, conversationID)
}
