package rest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
)

// The API is not consistent about response envelopes: a list arrives as a
// bare array, as {"data": [...]}, or as {"<entity>": [...]} depending on
// the endpoint and version. Single objects likewise appear bare, under
// "data", or under the entity name. Everything here normalizes those
// variants so no other package has to care.

// envelope captures the keys an enveloped response may use.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *pagination     `json:"pagination"`

	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// decodeList extracts the entity array from any of the tolerated shapes and
// the pagination envelope when present. out must be a pointer to a slice.
func decodeList(data []byte, entity string, out any) (store.PageCursor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, out); err != nil {
			return store.PageCursor{}, fmt.Errorf("decode %s list: %w", entity, err)
		}
		return store.PageCursor{}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return store.PageCursor{}, fmt.Errorf("decode %s envelope: %w", entity, err)
	}
	cursor := env.cursor()

	list := extractList(env.Data, entity)
	if list == nil {
		// Entity-named key at the root: {"messages": [...], "page": 1, ...}.
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err == nil {
			list = extractList(keyed[entity], entity)
		}
	}
	if list == nil {
		return cursor, fmt.Errorf("decode %s list: no recognizable payload", entity)
	}
	if err := json.Unmarshal(list, out); err != nil {
		return cursor, fmt.Errorf("decode %s list: %w", entity, err)
	}
	return cursor, nil
}

// extractList resolves raw to an array, descending one level into an
// object's "data" or entity key ({"data": {"messages": [...]}}).
func extractList(raw json.RawMessage, entity string) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '[' {
		return trimmed
	}
	if trimmed[0] == '{' {
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil
		}
		if inner := bytes.TrimSpace(keyed[entity]); len(inner) > 0 && inner[0] == '[' {
			return inner
		}
		if inner := bytes.TrimSpace(keyed["data"]); len(inner) > 0 && inner[0] == '[' {
			return inner
		}
	}
	return nil
}

// decodeObject extracts a single entity object from a bare object,
// {"data": {...}}, or {"<entity>": {...}}.
func decodeObject(data []byte, entity string, out any) error {
	trimmed := bytes.TrimSpace(data)
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return fmt.Errorf("decode %s: %w", entity, err)
	}
	if inner, ok := keyed["data"]; ok && isObject(inner) {
		return unwrapObject(inner, entity, out)
	}
	if inner, ok := keyed[entity]; ok && isObject(inner) {
		return json.Unmarshal(inner, out)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode %s: %w", entity, err)
	}
	return nil
}

// unwrapObject handles {"data": {"message": {...}}} as well as a direct
// object under "data".
func unwrapObject(raw json.RawMessage, entity string, out any) error {
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err == nil {
		if inner, ok := keyed[entity]; ok && isObject(inner) {
			return json.Unmarshal(inner, out)
		}
	}
	return json.Unmarshal(raw, out)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (e envelope) cursor() store.PageCursor {
	if e.Pagination != nil {
		return store.PageCursor{
			Page:       e.Pagination.Page,
			PageSize:   e.Pagination.Limit,
			Total:      e.Pagination.Total,
			TotalPages: e.Pagination.TotalPages,
		}
	}
	return store.PageCursor{
		Page:       e.Page,
		PageSize:   e.Limit,
		Total:      e.Total,
		TotalPages: e.TotalPages,
	}
}
