// Package wire defines the JSON frame shape spoken over the realtime
// connection and normalizes the loose inbound variants into strict types.
// Nothing outside this package handles raw frame JSON.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
)

// Well-known frame types.
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeMessage     = "message"
	TypeNewMessage  = "new_message"
	TypeTyping      = "typing"
	TypeMessageRead = "message_read"
	TypeError       = "error"
)

// Frame is a normalized inbound frame. Type is always populated; Message is
// set when the frame carried a full message object, Data holds the raw
// payload for everything else.
type Frame struct {
	Type    string
	Message *store.Message
	Data    json.RawMessage
	Error   string
}

// rawFrame mirrors the loose wire shape. The discriminator may arrive under
// either "type" or "event", and a message object may sit at the frame root
// or nested under data.message.
type rawFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Message *store.Message  `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type rawData struct {
	Message *store.Message `json:"message"`
}

// Parse normalizes one inbound frame. Frames without a recognizable
// discriminator are rejected; callers drop them silently.
func Parse(data []byte) (*Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	f := &Frame{
		Type:    raw.Type,
		Message: raw.Message,
		Data:    raw.Data,
		Error:   raw.Error,
	}
	if f.Type == "" {
		f.Type = raw.Event
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame has no type or event discriminator")
	}
	if f.Message == nil && len(raw.Data) > 0 {
		var d rawData
		if err := json.Unmarshal(raw.Data, &d); err == nil && d.Message != nil {
			f.Message = d.Message
		}
	}
	return f, nil
}

// Typing is the payload of a typing indicator frame.
type Typing struct {
	IsTyping bool `json:"is_typing"`
}

// ReadReceipt is the payload of a read receipt frame.
type ReadReceipt struct {
	MessageID int64 `json:"message_id"`
	ReadAt    int64 `json:"read_at"`
}

// DecodeTyping decodes a typing payload from a frame's Data.
func DecodeTyping(data json.RawMessage) (Typing, error) {
	var t Typing
	if err := json.Unmarshal(data, &t); err != nil {
		return Typing{}, fmt.Errorf("decode typing payload: %w", err)
	}
	return t, nil
}

// DecodeReadReceipt decodes a read receipt payload from a frame's Data.
func DecodeReadReceipt(data json.RawMessage) (ReadReceipt, error) {
	var r ReadReceipt
	if err := json.Unmarshal(data, &r); err != nil {
		return ReadReceipt{}, fmt.Errorf("decode read receipt payload: %w", err)
	}
	return r, nil
}

// Outbound control frames. These are best-effort writes on the realtime
// channel; message persistence always goes through the REST path.

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Ping encodes the keepalive frame.
func Ping() []byte {
	return mustMarshal(outbound{Event: TypePing})
}

// Text encodes a fire-and-forget text frame.
func Text(text string) []byte {
	return mustMarshal(outbound{
		Event: TypeMessage,
		Data:  map[string]any{"message": text},
	})
}

// TypingIndicator encodes a typing indicator frame.
func TypingIndicator(isTyping bool) []byte {
	return mustMarshal(outbound{
		Event: TypeTyping,
		Data:  Typing{IsTyping: isTyping},
	})
}

// MessageRead encodes a read notification frame.
func MessageRead(messageID int64) []byte {
	return mustMarshal(outbound{
		Event: TypeMessageRead,
		Data:  map[string]int64{"message_id": messageID},
	})
}

// mustMarshal is safe here: outbound frames are built from plain structs and
// maps that cannot fail to marshal.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
