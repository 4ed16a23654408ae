// Package deliver coordinates user-initiated sends: optimistic insert,
// attachment upload, server submission and reconciliation, behind a single
// call for the UI layer.
package deliver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/bus"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/rest"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
)

// MessageSender is the REST collaborator surface the orchestrator needs.
type MessageSender interface {
	SendMessage(ctx context.Context, req *rest.SendMessageRequest) (*store.Message, error)
	SendMessageAttachment(ctx context.Context, req *rest.SendAttachmentRequest) (*store.Message, error)
}

// Orchestrator is the single entry point for sends.
type Orchestrator struct {
	sender        MessageSender
	messages      *store.MessageStore
	conversations *store.ConversationStore
	bus           *bus.Bus
	logger        *zap.Logger
	selfID        int64
}

// NewOrchestrator creates a delivery orchestrator for the signed-in user.
func NewOrchestrator(sender MessageSender, messages *store.MessageStore, conversations *store.ConversationStore, b *bus.Bus, selfID int64, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		sender:        sender,
		messages:      messages,
		conversations: conversations,
		bus:           b,
		logger:        logger,
		selfID:        selfID,
	}
}

// SendPlain submits a text-only message. No optimistic message is created:
// the round trip is short and failure is rare, so a failed send simply
// surfaces the error and the caller retries by sending again. The confirmed
// message is appended idempotently, so the socket echoing the same message
// back never duplicates it.
func (o *Orchestrator) SendPlain(ctx context.Context, conversationID int64, text string) (*store.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("send: empty message")
	}
	confirmed, err := o.sender.SendMessage(ctx, &rest.SendMessageRequest{
		ConversationID: conversationID,
		Text:           text,
		ClientMsgID:    uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	o.messages.AppendFromRealtime(conversationID, confirmed)
	o.conversations.ApplyMessage(confirmed, o.selfID)
	o.bus.Emit(bus.Event{
		Kind:      "message.send_ack",
		Timestamp: time.Now(),
		Payload:   *confirmed,
	})
	return confirmed, nil
}

// SendWithAttachment inserts a pending message immediately and returns its
// temporary id so the UI can render the bubble; the upload and submission
// continue in the background and reconcile the message in place. The
// pending state lives in the message store, so it survives the user
// navigating away and back.
func (o *Orchestrator) SendWithAttachment(ctx context.Context, conversationID int64, text, localPath string, kind store.AttachmentKind) (int64, error) {
	if localPath == "" {
		return 0, fmt.Errorf("send attachment: no file")
	}
	pending := o.messages.CreateOptimistic(conversationID, text, o.selfID, localPath, kind)
	o.bus.Emit(bus.Event{
		Kind:      "message.pending",
		Timestamp: time.Now(),
		Payload:   pending,
	})

	// The upload must not die with the caller's context when the user
	// navigates away mid-send.
	bgCtx := context.WithoutCancel(ctx)
	go o.submitAttachment(bgCtx, conversationID, pending.ID, &rest.SendAttachmentRequest{
		ConversationID: conversationID,
		Text:           text,
		ClientMsgID:    pending.ClientMsgID,
		Kind:           kind,
		FilePath:       localPath,
	})
	return pending.ID, nil
}

func (o *Orchestrator) submitAttachment(ctx context.Context, conversationID, tempID int64, req *rest.SendAttachmentRequest) {
	confirmed, err := o.sender.SendMessageAttachment(ctx, req)
	if err != nil {
		o.logger.Warn("attachment send failed",
			zap.Int64("conversation_id", conversationID),
			zap.Int64("temp_id", tempID),
			zap.Error(err))
		if rerr := o.messages.ReconcileFailure(conversationID, tempID, err.Error()); rerr != nil {
			o.logger.Error("failure reconciliation lost its message", zap.Error(rerr))
		}
		o.bus.Emit(bus.Event{
			Kind:      "message.send_failed",
			Timestamp: time.Now(),
			Payload: SendFailure{
				ConversationID: conversationID,
				TempID:         tempID,
				Reason:         err.Error(),
			},
		})
		return
	}

	if err := o.messages.ReconcileSuccess(conversationID, tempID, confirmed); err != nil {
		o.logger.Error("success reconciliation lost its message", zap.Error(err))
	}
	o.conversations.ApplyMessage(confirmed, o.selfID)
	o.logger.Info("attachment message sent",
		zap.Int64("conversation_id", conversationID),
		zap.Int64("temp_id", tempID),
		zap.Int64("message_id", confirmed.ID))
	o.bus.Emit(bus.Event{
		Kind:      "message.send_ack",
		Timestamp: time.Now(),
		Payload:   *confirmed,
	})
}

// SendFailure is the payload of message.send_failed events.
type SendFailure struct {
	ConversationID int64
	TempID         int64
	Reason         string
}
