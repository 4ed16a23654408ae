package store

import (
	"context"
	"errors"
	"testing"
)

// fakeMessageFetcher serves canned pages keyed by page number.
type fakeMessageFetcher struct {
	pages  map[int][]*Message
	cursor PageCursor
	err    error
	calls  int
}

func (f *fakeMessageFetcher) ListMessages(_ context.Context, _ int64, page, _ int) ([]*Message, PageCursor, error) {
	f.calls++
	if f.err != nil {
		return nil, PageCursor{}, f.err
	}
	cursor := f.cursor
	cursor.Page = page
	return f.pages[page], cursor, nil
}

func msg(id, conversationID, createdAt int64, text string) *Message {
	return &Message{ID: id, ConversationID: conversationID, SenderID: 2, Text: text, CreatedAt: createdAt}
}

func TestFetchPageLoadsHistory(t *testing.T) {
	fetcher := &fakeMessageFetcher{
		pages: map[int][]*Message{
			1: {msg(10, 7, 100, "a"), msg(11, 7, 200, "b")},
		},
		cursor: PageCursor{PageSize: 20, Total: 2, TotalPages: 1},
	}
	s := NewMessageStore(fetcher)

	cursor, err := s.FetchPage(context.Background(), 7, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if cursor.Page != 1 {
		t.Errorf("cursor page = %d, want 1", cursor.Page)
	}
	got := s.Messages(7)
	if len(got) != 2 || got[0].ID != 10 || got[1].ID != 11 {
		t.Errorf("messages = %+v, want [10 11]", got)
	}
}

func TestFetchPageError(t *testing.T) {
	fetcher := &fakeMessageFetcher{err: errors.New("api down")}
	s := NewMessageStore(fetcher)
	if _, err := s.FetchPage(context.Background(), 7, 1, 20); err == nil {
		t.Error("expected fetch error")
	}
	if len(s.Messages(7)) != 0 {
		t.Error("failed fetch must not mutate the store")
	}
}

func TestFetchOlderPagePrepends(t *testing.T) {
	fetcher := &fakeMessageFetcher{
		pages: map[int][]*Message{
			1: {msg(10, 7, 300, "newest"), msg(11, 7, 400, "newer")},
			2: {msg(8, 7, 100, "old"), msg(9, 7, 200, "older")},
		},
	}
	s := NewMessageStore(fetcher)
	if _, err := s.FetchPage(context.Background(), 7, 1, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchPage(context.Background(), 7, 2, 2); err != nil {
		t.Fatal(err)
	}

	got := s.Messages(7)
	want := []int64{8, 9, 10, 11}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("messages[%d].ID = %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestFetchOlderPageDeduplicates(t *testing.T) {
	// Page 2 overlaps page 1 by one message; the duplicate must be dropped.
	fetcher := &fakeMessageFetcher{
		pages: map[int][]*Message{
			1: {msg(10, 7, 300, "x"), msg(11, 7, 400, "y")},
			2: {msg(9, 7, 200, "z"), msg(10, 7, 300, "x")},
		},
	}
	s := NewMessageStore(fetcher)
	_, _ = s.FetchPage(context.Background(), 7, 1, 2)
	_, _ = s.FetchPage(context.Background(), 7, 2, 2)

	got := s.Messages(7)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 9 || got[1].ID != 10 || got[2].ID != 11 {
		t.Errorf("order = [%d %d %d], want [9 10 11]", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestAppendFromRealtime(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	if !s.AppendFromRealtime(7, msg(42, 7, 100, "hi")) {
		t.Error("first append should report a change")
	}
	if s.AppendFromRealtime(7, msg(42, 7, 100, "hi")) {
		t.Error("re-delivery of a known id must be ignored")
	}
	if got := s.Messages(7); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestAppendFromRealtimeReconcilesEcho(t *testing.T) {
	// The socket echoes the sender's own message back before the REST
	// response lands. The echo carries the client nonce and must replace the
	// optimistic message, not append a duplicate.
	s := NewMessageStore(&fakeMessageFetcher{})
	pending := s.CreateOptimistic(7, "photo", 1, "/tmp/cat.jpg", AttachmentImage)

	echo := msg(42, 7, 150, "photo")
	echo.SenderID = 1
	echo.ClientMsgID = pending.ClientMsgID
	if !s.AppendFromRealtime(7, echo) {
		t.Fatal("echo should reconcile the pending message")
	}

	got := s.Messages(7)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != 42 || got[0].Pending {
		t.Errorf("message = %+v, want confirmed id 42", got[0])
	}

	// The late REST response reconciling the now-gone temp id is a no-op.
	if err := s.ReconcileSuccess(7, pending.ID, echo); err != nil {
		t.Errorf("late reconcile after echo: %v", err)
	}
	if got := s.Messages(7); len(got) != 1 {
		t.Errorf("len = %d after late reconcile, want 1", len(got))
	}
}

func TestCreateOptimistic(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	pending := s.CreateOptimistic(7, "hello", 1, "/tmp/a.jpg", AttachmentImage)

	if pending.ID >= 0 {
		t.Errorf("temp id = %d, want negative", pending.ID)
	}
	if !pending.Pending {
		t.Error("pending flag not set")
	}
	if pending.ClientMsgID == "" {
		t.Error("client nonce not assigned")
	}
	if pending.Attachment == nil || pending.Attachment.LocalRef != "/tmp/a.jpg" {
		t.Errorf("attachment = %+v, want local ref /tmp/a.jpg", pending.Attachment)
	}
}

func TestReconcileSuccessPreservesPosition(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	s.AppendFromRealtime(7, msg(10, 7, 100, "before"))
	pending := s.CreateOptimistic(7, "photo", 1, "/tmp/a.jpg", AttachmentImage)
	s.AppendFromRealtime(7, msg(11, 7, 300, "after"))

	confirmed := msg(42, 7, 200, "photo")
	confirmed.SenderID = 1
	confirmed.Attachment = &Attachment{Kind: AttachmentImage, URL: "https://cdn/x.jpg"}
	if err := s.ReconcileSuccess(7, pending.ID, confirmed); err != nil {
		t.Fatal(err)
	}

	got := s.Messages(7)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (reconcile must not change length)", len(got))
	}
	if got[1].ID != 42 {
		t.Errorf("messages[1].ID = %d, want 42 (position must be preserved)", got[1].ID)
	}
	if got[1].Pending {
		t.Error("reconciled message still pending")
	}
	if got[1].Attachment.LocalRef != "/tmp/a.jpg" {
		t.Error("local ref must be carried over for preview continuity")
	}
	if got[1].Attachment.URL != "https://cdn/x.jpg" {
		t.Errorf("url = %q, want remote url", got[1].Attachment.URL)
	}
}

func TestReconcileSuccessUnknownTempID(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	if err := s.ReconcileSuccess(7, -999, msg(42, 7, 100, "x")); err == nil {
		t.Error("unknown temp id should error")
	}
}

func TestReconcileFailure(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	pending := s.CreateOptimistic(7, "photo", 1, "/tmp/a.jpg", AttachmentImage)

	if err := s.ReconcileFailure(7, pending.ID, "upload timed out"); err != nil {
		t.Fatal(err)
	}

	got := s.Messages(7)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (failed message stays visible)", len(got))
	}
	if got[0].Pending {
		t.Error("failed message still pending")
	}
	if got[0].UploadError != "upload timed out" {
		t.Errorf("upload error = %q, want reason", got[0].UploadError)
	}
	if got[0].ID != pending.ID {
		t.Error("failed message must keep its temporary id")
	}
}

func TestPageOneRefetchKeepsTemporaryMessages(t *testing.T) {
	// The user sends an attachment, navigates away and reopens the
	// conversation while the upload is still in flight. The fresh page 1
	// does not know the message; the pending bubble must survive.
	fetcher := &fakeMessageFetcher{
		pages: map[int][]*Message{
			1: {msg(10, 7, 100, "a"), msg(11, 7, 200, "b")},
		},
	}
	s := NewMessageStore(fetcher)
	_, _ = s.FetchPage(context.Background(), 7, 1, 20)
	pending := s.CreateOptimistic(7, "photo", 1, "/tmp/a.jpg", AttachmentImage)

	if _, err := s.FetchPage(context.Background(), 7, 1, 20); err != nil {
		t.Fatal(err)
	}

	got := s.Messages(7)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (pending message lost on refetch)", len(got))
	}
	if got[2].ID != pending.ID {
		t.Errorf("messages[2].ID = %d, want temp id %d", got[2].ID, pending.ID)
	}
}

func TestPageOneRefetchDropsConfirmedTemp(t *testing.T) {
	// If the server already persisted the send, the refetched page carries
	// the confirmed copy with the same client nonce; the stale temp message
	// must not be kept alongside it.
	fetcher := &fakeMessageFetcher{}
	s := NewMessageStore(fetcher)
	pending := s.CreateOptimistic(7, "photo", 1, "/tmp/a.jpg", AttachmentImage)

	confirmed := msg(42, 7, 200, "photo")
	confirmed.ClientMsgID = pending.ClientMsgID
	fetcher.pages = map[int][]*Message{1: {confirmed}}

	if _, err := s.FetchPage(context.Background(), 7, 1, 20); err != nil {
		t.Fatal(err)
	}

	got := s.Messages(7)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != 42 {
		t.Errorf("messages[0].ID = %d, want confirmed 42", got[0].ID)
	}
}

func TestMarkReadThrough(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	s.AppendFromRealtime(7, msg(10, 7, 100, "a"))
	s.AppendFromRealtime(7, msg(11, 7, 200, "b"))
	s.AppendFromRealtime(7, msg(12, 7, 300, "c"))

	if n := s.MarkReadThrough(7, 11, 1000); n != 2 {
		t.Errorf("marked %d, want 2", n)
	}
	got := s.Messages(7)
	if !got[0].Read || !got[1].Read || got[2].Read {
		t.Errorf("read flags = [%v %v %v], want [true true false]", got[0].Read, got[1].Read, got[2].Read)
	}
	if got[0].ReadAt != 1000 {
		t.Errorf("read_at = %d, want 1000", got[0].ReadAt)
	}

	// Re-marking is a no-op.
	if n := s.MarkReadThrough(7, 11, 2000); n != 0 {
		t.Errorf("re-mark counted %d, want 0", n)
	}
}

func TestMarkReadThroughUnknownID(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	s.AppendFromRealtime(7, msg(10, 7, 100, "a"))
	if n := s.MarkReadThrough(7, 999, 1000); n != 0 {
		t.Errorf("marked %d for unknown id, want 0", n)
	}
}

func TestMarkAllRead(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	s.AppendFromRealtime(7, msg(10, 7, 100, "a"))
	s.AppendFromRealtime(7, msg(11, 7, 200, "b"))

	if n := s.MarkAllRead(7, 1000); n != 2 {
		t.Errorf("marked %d, want 2", n)
	}
	for _, m := range s.Messages(7) {
		if !m.Read {
			t.Errorf("message %d not marked read", m.ID)
		}
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	s.AppendFromRealtime(7, msg(10, 7, 100, "a"))

	snap := s.Messages(7)
	snap[0].Text = "mutated"

	if s.Messages(7)[0].Text != "a" {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	s := NewMessageStore(&fakeMessageFetcher{})
	s.AppendFromRealtime(7, msg(10, 7, 100, "a"))
	s.AppendFromRealtime(8, msg(20, 8, 100, "b"))

	if len(s.Messages(7)) != 1 || len(s.Messages(8)) != 1 {
		t.Error("messages leaked across conversations")
	}
}
