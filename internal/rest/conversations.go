package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
)

// GetOrCreateConversation returns the single conversation for an unordered
// pair of users, creating it on first contact. The endpoint is idempotent:
// the same pair always resolves to the same conversation.
func (c *Client) GetOrCreateConversation(ctx context.Context, userA, userB int64) (*store.Conversation, error) {
	body := map[string]int64{
		"user_a": userA,
		"user_b": userB,
	}
	data, err := c.postJSON(ctx, "/api/v1/chat/conversations", body)
	if err != nil {
		return nil, err
	}
	var conv store.Conversation
	if err := decodeObject(data, "conversation", &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns one page of conversation summaries, newest
// activity first.
func (c *Client) ListConversations(ctx context.Context, page, pageSize int) ([]*store.Conversation, store.PageCursor, error) {
	data, err := c.getJSON(ctx, "/api/v1/chat/conversations", pageQuery(page, pageSize))
	if err != nil {
		return nil, store.PageCursor{}, err
	}
	var convs []*store.Conversation
	cursor, err := decodeList(data, "conversations", &convs)
	if err != nil {
		return nil, store.PageCursor{}, err
	}
	fillCursor(&cursor, page, pageSize, len(convs))
	return convs, cursor, nil
}

// MarkConversationRead marks every message in the conversation as read for
// the calling user.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID int64) error {
	path := fmt.Sprintf("/api/v1/chat/conversations/%d/read", conversationID)
	_, err := c.postJSON(ctx, path, nil)
	return err
}

// UnreadCount returns the calling user's unread count for one conversation.
func (c *Client) UnreadCount(ctx context.Context, conversationID int64) (int, error) {
	path := fmt.Sprintf("/api/v1/chat/conversations/%d/unread-count", conversationID)
	data, err := c.getJSON(ctx, path, nil)
	if err != nil {
		return 0, err
	}
	return decodeCount(data)
}

// TotalUnread returns the calling user's unread count across all
// conversations.
func (c *Client) TotalUnread(ctx context.Context) (int, error) {
	data, err := c.getJSON(ctx, "/api/v1/chat/unread-count", nil)
	if err != nil {
		return 0, err
	}
	return decodeCount(data)
}

func decodeCount(data []byte) (int, error) {
	var body struct {
		Count int `json:"count"`
		Data  *struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, fmt.Errorf("decode unread count: %w", err)
	}
	if body.Data != nil {
		return body.Data.Count, nil
	}
	return body.Count, nil
}

func pageQuery(page, pageSize int) map[string]string {
	q := map[string]string{}
	if page > 0 {
		q["page"] = strconv.Itoa(page)
	}
	if pageSize > 0 {
		q["limit"] = strconv.Itoa(pageSize)
	}
	return q
}

// fillCursor backfills pagination fields for responses that omitted the
// envelope, so callers always get a usable cursor.
func fillCursor(cursor *store.PageCursor, page, pageSize, got int) {
	if cursor.Page == 0 {
		cursor.Page = page
	}
	if cursor.PageSize == 0 {
		cursor.PageSize = pageSize
	}
	if cursor.TotalPages == 0 && got == pageSize {
		// Unknown total; assume at least one more page exists.
		cursor.TotalPages = cursor.Page + 1
	}
}
