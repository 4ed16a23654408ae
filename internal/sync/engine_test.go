package sync

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/bus"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/wire"
)

type nopMessageFetcher struct{}

func (nopMessageFetcher) ListMessages(context.Context, int64, int, int) ([]*store.Message, store.PageCursor, error) {
	return nil, store.PageCursor{}, nil
}

type nopConversationFetcher struct{}

func (nopConversationFetcher) ListConversations(context.Context, int, int) ([]*store.Conversation, store.PageCursor, error) {
	return nil, store.PageCursor{}, nil
}

type fixture struct {
	bus           *bus.Bus
	messages      *store.MessageStore
	conversations *store.ConversationStore
	engine        *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:           bus.New(),
		messages:      store.NewMessageStore(nopMessageFetcher{}),
		conversations: store.NewConversationStore(nopConversationFetcher{}),
	}
	f.engine = NewEngine(f.messages, f.conversations, f.bus, 1, zap.NewNop())
	f.engine.Start()
	t.Cleanup(f.engine.Stop)
	return f
}

func frame(t *testing.T, raw string) *wire.Frame {
	t.Helper()
	f, err := wire.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestInboundMessageIngested(t *testing.T) {
	f := newFixture(t)
	f.conversations.Upsert(&store.Conversation{ID: 7, ParticipantA: 1, ParticipantB: 2})

	var received []bus.Event
	f.bus.On("message.received", func(evt bus.Event) { received = append(received, evt) })

	f.bus.Emit(bus.Event{
		Kind:    "ws.message",
		Payload: frame(t, `{"type":"new_message","message":{"id":42,"conversation_id":7,"sender_id":2,"text":"hi","created_at":100}}`),
	})

	msgs := f.messages.Messages(7)
	if len(msgs) != 1 || msgs[0].ID != 42 {
		t.Fatalf("messages = %+v, want [42]", msgs)
	}
	conv, _ := f.conversations.Get(7)
	if conv.UnreadCount != 1 || conv.LastMessageText != "hi" {
		t.Errorf("conversation = %+v, want unread 1 with preview", conv)
	}
	if len(received) != 1 {
		t.Errorf("message.received emitted %d times, want 1", len(received))
	}
}

func TestDuplicateDeliveryIgnored(t *testing.T) {
	f := newFixture(t)
	f.conversations.Upsert(&store.Conversation{ID: 7, ParticipantA: 1, ParticipantB: 2})

	received := 0
	f.bus.On("message.received", func(bus.Event) { received++ })

	evt := bus.Event{
		Kind:    "ws.message",
		Payload: frame(t, `{"type":"new_message","message":{"id":42,"conversation_id":7,"sender_id":2,"text":"hi","created_at":100}}`),
	}
	f.bus.Emit(evt)
	f.bus.Emit(evt)

	if got := f.messages.Messages(7); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
	if received != 1 {
		t.Errorf("message.received emitted %d times, want 1", received)
	}
	conv, _ := f.conversations.Get(7)
	if conv.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 (duplicate must not double count)", conv.UnreadCount)
	}
}

func TestFramesWithoutMessageSkipped(t *testing.T) {
	f := newFixture(t)
	received := 0
	f.bus.On("message.received", func(bus.Event) { received++ })

	f.bus.Emit(bus.Event{
		Kind:    "ws.message",
		Payload: frame(t, `{"type":"typing","data":{"is_typing":true}}`),
	})

	if received != 0 {
		t.Errorf("typing frame produced %d message.received events", received)
	}
}

func TestReadReceiptApplied(t *testing.T) {
	f := newFixture(t)
	f.engine.BindSession(func() int64 { return 7 })
	f.messages.AppendFromRealtime(7, &store.Message{ID: 10, ConversationID: 7, SenderID: 1, CreatedAt: 100})
	f.messages.AppendFromRealtime(7, &store.Message{ID: 11, ConversationID: 7, SenderID: 1, CreatedAt: 200})

	var reads []bus.Event
	f.bus.On("message.read", func(evt bus.Event) { reads = append(reads, evt) })

	f.bus.Emit(bus.Event{
		Kind:    "ws.message_read",
		Payload: frame(t, `{"type":"message_read","data":{"message_id":11,"read_at":1234}}`),
	})

	msgs := f.messages.Messages(7)
	if !msgs[0].Read || !msgs[1].Read {
		t.Errorf("read flags = [%v %v], want both read", msgs[0].Read, msgs[1].Read)
	}
	if msgs[1].ReadAt != 1234 {
		t.Errorf("read_at = %d, want 1234", msgs[1].ReadAt)
	}
	if len(reads) != 1 {
		t.Fatalf("message.read emitted %d times, want 1", len(reads))
	}
	receipt := reads[0].Payload.(wire.ReadReceipt)
	if receipt.MessageID != 11 {
		t.Errorf("receipt message id = %d, want 11", receipt.MessageID)
	}
}

func TestReadReceiptWithoutSessionDropped(t *testing.T) {
	f := newFixture(t)
	reads := 0
	f.bus.On("message.read", func(bus.Event) { reads++ })

	f.bus.Emit(bus.Event{
		Kind:    "ws.message_read",
		Payload: frame(t, `{"type":"message_read","data":{"message_id":11,"read_at":1234}}`),
	})

	if reads != 0 {
		t.Errorf("message.read emitted %d times without a bound session", reads)
	}
}

func TestTypingRepublished(t *testing.T) {
	f := newFixture(t)
	var events []bus.Event
	f.bus.On("chat.typing", func(evt bus.Event) { events = append(events, evt) })

	f.bus.Emit(bus.Event{
		Kind:    "ws.typing",
		Payload: frame(t, `{"type":"typing","data":{"is_typing":true}}`),
	})

	if len(events) != 1 {
		t.Fatalf("chat.typing emitted %d times, want 1", len(events))
	}
	typing := events[0].Payload.(wire.Typing)
	if !typing.IsTyping {
		t.Error("is_typing = false, want true")
	}
}

func TestStopUnregisters(t *testing.T) {
	f := newFixture(t)
	f.engine.Stop()

	f.bus.Emit(bus.Event{
		Kind:    "ws.message",
		Payload: frame(t, `{"type":"new_message","message":{"id":42,"conversation_id":7,"sender_id":2,"created_at":100}}`),
	})

	if got := f.messages.Messages(7); len(got) != 0 {
		t.Errorf("stopped engine still ingested %d messages", len(got))
	}
}
