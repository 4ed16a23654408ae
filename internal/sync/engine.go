// Package sync applies realtime events to the stores. The connection
// manager only publishes frames; this engine is the sole consumer that
// turns them into store mutations, keeping the two fully decoupled.
package sync

import (
	"time"

	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/bus"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/wire"
)

// Engine subscribes to ws.* events and ingests them into the message and
// conversation stores.
type Engine struct {
	messages      *store.MessageStore
	conversations *store.ConversationStore
	bus           *bus.Bus
	logger        *zap.Logger
	selfID        int64

	convFn func() int64
	subs   []*bus.Subscription
}

// NewEngine creates a sync engine. selfID is the signed-in user, used to
// decide whether an inbound message bumps an unread counter.
func NewEngine(messages *store.MessageStore, conversations *store.ConversationStore, b *bus.Bus, selfID int64, logger *zap.Logger) *Engine {
	return &Engine{
		messages:      messages,
		conversations: conversations,
		bus:           b,
		logger:        logger,
		selfID:        selfID,
	}
}

// Start registers the bus handlers. Events are applied synchronously on the
// emitter's goroutine, preserving wire order.
func (e *Engine) Start() {
	e.subs = []*bus.Subscription{
		e.bus.On("ws.message", e.handleMessage),
		e.bus.On("ws."+wire.TypeMessageRead, e.handleRead),
		e.bus.On("ws."+wire.TypeTyping, e.handleTyping),
	}
}

// Stop removes the bus handlers.
func (e *Engine) Stop() {
	for _, sub := range e.subs {
		sub.Off()
	}
	e.subs = nil
}

// handleMessage ingests a full message carried on any frame. Frames without
// a message object (typing, read receipts) also land here via the generic
// channel and are skipped.
func (e *Engine) handleMessage(evt bus.Event) {
	frame, ok := evt.Payload.(*wire.Frame)
	if !ok || frame.Message == nil {
		return
	}
	msg := frame.Message
	if !e.messages.AppendFromRealtime(msg.ConversationID, msg) {
		return
	}
	e.conversations.ApplyMessage(msg, e.selfID)
	e.bus.Emit(bus.Event{
		Kind:      "message.received",
		Timestamp: time.Now(),
		Payload:   *msg,
	})
	e.logger.Debug("realtime message ingested",
		zap.Int64("conversation_id", msg.ConversationID),
		zap.Int64("message_id", msg.ID))
}

// handleRead applies a server-confirmed read receipt.
func (e *Engine) handleRead(evt bus.Event) {
	frame, ok := evt.Payload.(*wire.Frame)
	if !ok || len(frame.Data) == 0 {
		return
	}
	receipt, err := wire.DecodeReadReceipt(frame.Data)
	if err != nil {
		e.logger.Debug("dropping bad read receipt", zap.Error(err))
		return
	}
	readAt := receipt.ReadAt
	if readAt == 0 {
		readAt = time.Now().UnixMilli()
	}
	conversationID := e.activeConversation(frame)
	if conversationID == 0 {
		return
	}
	if e.messages.MarkReadThrough(conversationID, receipt.MessageID, readAt) > 0 {
		e.bus.Emit(bus.Event{
			Kind:      "message.read",
			Timestamp: time.Now(),
			Payload:   receipt,
		})
	}
}

// handleTyping republishes the peer's typing indicator as a domain event.
func (e *Engine) handleTyping(evt bus.Event) {
	frame, ok := evt.Payload.(*wire.Frame)
	if !ok || len(frame.Data) == 0 {
		return
	}
	typing, err := wire.DecodeTyping(frame.Data)
	if err != nil {
		e.logger.Debug("dropping bad typing indicator", zap.Error(err))
		return
	}
	e.bus.Emit(bus.Event{
		Kind:      "chat.typing",
		Timestamp: time.Now(),
		Payload:   typing,
	})
}

// activeConversation resolves which conversation a data-only frame belongs
// to. The connection is scoped to a single conversation, so frames that do
// not carry one inherit the session's.
func (e *Engine) activeConversation(frame *wire.Frame) int64 {
	if frame.Message != nil && frame.Message.ConversationID != 0 {
		return frame.Message.ConversationID
	}
	return e.sessionConversation()
}

func (e *Engine) sessionConversation() int64 {
	if e.convFn == nil {
		return 0
	}
	return e.convFn()
}

// BindSession wires the engine to the connection manager's session so
// data-only frames (read receipts) can be attributed to the open
// conversation.
func (e *Engine) BindSession(fn func() int64) {
	e.convFn = fn
}
