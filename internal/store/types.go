package store

// AttachmentKind classifies a message attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
)

// Attachment is the single optional media item on a message. URL is the
// remote location once uploaded; LocalRef points at the device-local file
// used for preview while the upload is still in flight (or after it failed).
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url,omitempty"`
	LocalRef string         `json:"-"`
}

// Message is one message in a 1:1 conversation.
//
// ID is the server-assigned identifier once confirmed. While a send is in
// flight the message carries a temporary negative id instead; reconciliation
// swaps it for the server id in place. Pending, UploadError and the
// attachment LocalRef are client-only and never sent on the wire.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	SenderID       int64       `json:"sender_id"`
	ClientMsgID    string      `json:"client_msg_id,omitempty"`
	Text           string      `json:"text,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Read           bool        `json:"read"`
	ReadAt         int64       `json:"read_at,omitempty"`
	CreatedAt      int64       `json:"created_at"`

	Pending     bool   `json:"-"`
	UploadError string `json:"-"`
}

// Temporary reports whether the message still carries a client-assigned
// temporary id.
func (m *Message) Temporary() bool {
	return m.ID < 0
}

// Conversation is a 1:1 thread summary. The participant pair is unordered;
// the get-or-create endpoint guarantees at most one conversation exists per
// pair.
type Conversation struct {
	ID           int64  `json:"id"`
	ParticipantA int64  `json:"participant_a"`
	ParticipantB int64  `json:"participant_b"`
	PeerName     string `json:"peer_name,omitempty"`

	LastMessageText     string `json:"last_message_text,omitempty"`
	LastMessageSenderID int64  `json:"last_message_sender_id,omitempty"`
	LastMessageAt       int64  `json:"last_message_at,omitempty"`

	UnreadCount int   `json:"unread_count"`
	CreatedAt   int64 `json:"created_at"`
	UpdatedAt   int64 `json:"updated_at"`
}

// PageCursor tracks pagination state for a list fetched from the API.
type PageCursor struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// HasMore reports whether older pages remain to be fetched.
func (c PageCursor) HasMore() bool {
	return c.Page < c.TotalPages
}
