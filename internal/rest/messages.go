package rest

import (
	"context"
	"fmt"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
)

// SendMessageRequest is the JSON body for a plain message send. Text is
// required here: attachment sends go through SendMessageAttachment.
type SendMessageRequest struct {
	ConversationID int64  `json:"-"`
	Text           string `json:"text"`
	ClientMsgID    string `json:"client_msg_id,omitempty"`
}

// SendAttachmentRequest describes a multipart message send: an optional
// text body plus one local file uploaded as the attachment.
type SendAttachmentRequest struct {
	ConversationID int64
	Text           string
	ClientMsgID    string
	Kind           store.AttachmentKind
	FilePath       string
}

// ListMessages returns one page of a conversation's history in
// chronological order. Page 1 is the newest window; higher pages are older.
func (c *Client) ListMessages(ctx context.Context, conversationID int64, page, pageSize int) ([]*store.Message, store.PageCursor, error) {
	path := fmt.Sprintf("/api/v1/chat/conversations/%d/messages", conversationID)
	data, err := c.getJSON(ctx, path, pageQuery(page, pageSize))
	if err != nil {
		return nil, store.PageCursor{}, err
	}
	var msgs []*store.Message
	cursor, err := decodeList(data, "messages", &msgs)
	if err != nil {
		return nil, store.PageCursor{}, err
	}
	fillCursor(&cursor, page, pageSize, len(msgs))
	chronological(msgs)
	return msgs, cursor, nil
}

// SendMessage persists a plain text message and returns the confirmed
// message with its server-assigned id.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*store.Message, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("send message: empty text")
	}
	path := fmt.Sprintf("/api/v1/chat/conversations/%d/messages", req.ConversationID)
	data, err := c.postJSON(ctx, path, req)
	if err != nil {
		return nil, err
	}
	var msg store.Message
	if err := decodeObject(data, "message", &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendMessageAttachment uploads the attachment and persists the message in
// a single multipart request, returning the confirmed message.
func (c *Client) SendMessageAttachment(ctx context.Context, req *SendAttachmentRequest) (*store.Message, error) {
	if req.FilePath == "" {
		return nil, fmt.Errorf("send attachment: no file")
	}
	path := fmt.Sprintf("/api/v1/chat/conversations/%d/messages", req.ConversationID)
	fields := map[string]string{
		"kind": string(req.Kind),
	}
	if req.Text != "" {
		fields["text"] = req.Text
	}
	if req.ClientMsgID != "" {
		fields["client_msg_id"] = req.ClientMsgID
	}
	data, err := c.postMultipart(ctx, path, fields, req.FilePath)
	if err != nil {
		return nil, err
	}
	var msg store.Message
	if err := decodeObject(data, "message", &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// chronological ensures ascending creation order. Some endpoint versions
// return each page newest-first; the stores require oldest-first.
func chronological(msgs []*store.Message) {
	if len(msgs) < 2 || msgs[0].CreatedAt <= msgs[len(msgs)-1].CreatedAt {
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
