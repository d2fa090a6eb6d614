package store

import (
	"errors"
	"testing"
)

func TestInsertMessageLogicalIDUnique(t *testing.T) {
	db := testDB(t)

	if err := db.InsertMessage(&Message{LocalID: "m1", ChatID: "c1", LogicalID: "L1"}); err != nil {
		t.Fatal(err)
	}

	// Same logical id in the same chat is a duplicate delivery.
	err := db.InsertMessage(&Message{LocalID: "m2", ChatID: "c1", LogicalID: "L1"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("same chat, same logical id: got %v, want ErrAlreadyExists", err)
	}

	// The same logical id in another chat is a different message.
	if err := db.InsertMessage(&Message{LocalID: "m3", ChatID: "c2", LogicalID: "L1"}); err != nil {
		t.Fatalf("other chat, same logical id: %v", err)
	}

	// Rows without a logical id are exempt from the uniqueness rule.
	if err := db.InsertMessage(&Message{LocalID: "m4", ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMessage(&Message{LocalID: "m5", ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
}

func TestMessageByLogicalID(t *testing.T) {
	db := testDB(t)

	if err := db.InsertMessage(&Message{LocalID: "m1", ChatID: "c1", LogicalID: "L1", Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	m, err := db.MessageByLogicalID("c1", "L1")
	if err != nil {
		t.Fatal(err)
	}
	if m.LocalID != "m1" || m.Content != "hi" {
		t.Errorf("got %+v", m)
	}

	if _, err := db.MessageByLogicalID("c1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing logical id: got %v, want ErrNotFound", err)
	}
	// An empty logical id never matches anything.
	if _, err := db.MessageByLogicalID("c1", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty logical id: got %v, want ErrNotFound", err)
	}
}

func TestAttachServerResultAdoptsServerIDOnce(t *testing.T) {
	db := testDB(t)

	if err := db.InsertMessage(&Message{
		LocalID: "m1", ChatID: "c1", LogicalID: "L1", Status: StatusSyncing,
	}); err != nil {
		t.Fatal(err)
	}

	if err := db.AttachServerResult("m1", "srv-1", StatusSent, 5000); err != nil {
		t.Fatal(err)
	}
	m, _ := db.MessageByLocalID("m1")
	if m.ServerID != "srv-1" || m.Status != StatusSent || m.CreatedAt != 5000 {
		t.Errorf("after ack: %+v", m)
	}
	if m.LocalID != "m1" {
		t.Error("local id must never change")
	}

	// A replayed ack must not re-assign the server id.
	if err := db.AttachServerResult("m1", "srv-2", StatusSent, 6000); err != nil {
		t.Fatal(err)
	}
	m, _ = db.MessageByLocalID("m1")
	if m.ServerID != "srv-1" {
		t.Errorf("server id reassigned: %s", m.ServerID)
	}

	if err := db.AttachServerResult("nope", "srv-3", StatusSent, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown local id: got %v, want ErrNotFound", err)
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	db := testDB(t)

	if err := db.InsertMessage(&Message{LocalID: "m1", ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	for _, status := range []string{StatusSyncing, StatusFailed, StatusPending} {
		if err := db.UpdateMessageStatus("m1", status); err != nil {
			t.Fatal(err)
		}
		m, _ := db.MessageByLocalID("m1")
		if m.Status != status {
			t.Errorf("status = %s, want %s", m.Status, status)
		}
	}
	if err := db.UpdateMessageStatus("nope", StatusSent); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown local id: got %v, want ErrNotFound", err)
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	db := testDB(t)

	for i, at := range []int64{300, 100, 200} {
		if err := db.InsertMessage(&Message{
			LocalID:   string(rune('a' + i)),
			ChatID:    "c1",
			CreatedAt: at,
		}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages("c1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt < msgs[i-1].CreatedAt {
			t.Errorf("messages out of order at %d: %d < %d", i, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}

	page, err := db.ListMessages("c1", 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].CreatedAt != 200 {
		t.Errorf("offset page = %+v", page)
	}
}

func TestPendingMessages(t *testing.T) {
	db := testDB(t)

	seed := []struct {
		id, status string
		at         int64
	}{
		{"m1", StatusSent, 100},
		{"m2", StatusPending, 200},
		{"m3", StatusFailed, 150},
		{"m4", StatusSyncing, 300},
	}
	for _, s := range seed {
		if err := db.InsertMessage(&Message{
			LocalID: s.id, ChatID: "c1", Status: s.status, CreatedAt: s.at,
		}); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := db.PendingMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].LocalID != "m3" || pending[1].LocalID != "m2" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestMessageBounds(t *testing.T) {
	db := testDB(t)

	if _, _, ok, err := db.MessageBounds("c1"); err != nil || ok {
		t.Fatalf("empty chat: ok=%v err=%v", ok, err)
	}

	for i, at := range []int64{500, 100, 300} {
		if err := db.InsertMessage(&Message{
			LocalID: string(rune('a' + i)), ChatID: "c1", CreatedAt: at,
		}); err != nil {
			t.Fatal(err)
		}
	}

	earliest, latest, ok, err := db.MessageBounds("c1")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if earliest != 100 || latest != 500 {
		t.Errorf("bounds = %d..%d, want 100..500", earliest, latest)
	}
}

func TestMessageExtrasRoundTrip(t *testing.T) {
	db := testDB(t)

	in := &Message{
		LocalID:   "m1",
		ChatID:    "c1",
		LogicalID: "L1",
		Type:      TypeImage,
		Multimedia: []Multimedia{
			{URL: "https://cdn.example/pic.jpg", MimeType: "image/jpeg", Width: 640, Height: 480},
		},
		ReplyTo:             &ReplyRef{MessageID: "L0", SenderID: "alice", Content: "original"},
		Reactions:           []Reaction{{ParticipantID: "bob", Emoji: "👍"}},
		PreparedTransaction: "tx-blob",
	}
	if err := db.InsertMessage(in); err != nil {
		t.Fatal(err)
	}

	m, err := db.MessageByLocalID("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Multimedia) != 1 || m.Multimedia[0].MimeType != "image/jpeg" {
		t.Errorf("multimedia = %+v", m.Multimedia)
	}
	if m.ReplyTo == nil || m.ReplyTo.MessageID != "L0" {
		t.Errorf("reply ref = %+v", m.ReplyTo)
	}
	if len(m.Reactions) != 1 || m.Reactions[0].Emoji != "👍" {
		t.Errorf("reactions = %+v", m.Reactions)
	}
	if m.PreparedTransaction != "tx-blob" {
		t.Errorf("prepared tx = %q", m.PreparedTransaction)
	}
}

func TestSetMessagePinnedAndReactions(t *testing.T) {
	db := testDB(t)

	if err := db.InsertMessage(&Message{LocalID: "m1", ChatID: "c1", LogicalID: "L1"}); err != nil {
		t.Fatal(err)
	}

	err := db.WithTx(func(tx *Tx) error {
		if err := tx.SetMessagePinned("c1", "L1", true); err != nil {
			return err
		}
		return tx.SetReactions("c1", "L1", []Reaction{
			{ParticipantID: "alice", Emoji: "❤️", Timestamp: 100},
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	m, _ := db.MessageByLocalID("m1")
	if !m.Pinned {
		t.Error("pin flag not set")
	}
	if len(m.Reactions) != 1 || m.Reactions[0].ParticipantID != "alice" {
		t.Errorf("reactions = %+v", m.Reactions)
	}

	err = db.WithTx(func(tx *Tx) error {
		return tx.SetMessagePinned("c1", "missing", true)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("pin on unknown logical id: got %v, want ErrNotFound", err)
	}
}

func TestMetadataCursors(t *testing.T) {
	db := testDB(t)

	if err := db.SetCursor("c1", "before", 100); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCursor("c1", "after", 900); err != nil {
		t.Fatal(err)
	}

	md, err := db.GetMetadata(ChatCursorID("c1"))
	if err != nil {
		t.Fatal(err)
	}
	if md.BeforeCursor != 100 || md.AfterCursor != 900 {
		t.Errorf("cursors = %d/%d", md.BeforeCursor, md.AfterCursor)
	}

	// Advancing one direction leaves the other alone.
	if err := db.SetCursor("c1", "before", 50); err != nil {
		t.Fatal(err)
	}
	md, _ = db.GetMetadata(ChatCursorID("c1"))
	if md.BeforeCursor != 50 || md.AfterCursor != 900 {
		t.Errorf("cursors after advance = %d/%d", md.BeforeCursor, md.AfterCursor)
	}
}

func TestChatListMetadataSingleton(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMetadata(&ChatMetadata{ID: ChatListMetadataID, CurrentPage: 1, TotalPages: 4}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMetadata(&ChatMetadata{ID: ChatListMetadataID, CurrentPage: 2, TotalPages: 4}); err != nil {
		t.Fatal(err)
	}

	md, err := db.GetMetadata(ChatListMetadataID)
	if err != nil {
		t.Fatal(err)
	}
	if md.CurrentPage != 2 || md.TotalPages != 4 {
		t.Errorf("metadata = %+v", md)
	}
}

func TestLazyMessageMigration(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`
		INSERT INTO messages (local_id, chat_id, status, schema_version)
		VALUES ('old', 'c1', 'uploading', 1)`)
	if err != nil {
		t.Fatal(err)
	}

	m, err := db.MessageByLocalID("old")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != StatusSyncing {
		t.Errorf("status = %s, want %s", m.Status, StatusSyncing)
	}
	if m.SchemaVersion != messageSchemaVersion {
		t.Errorf("schema version = %d, want %d", m.SchemaVersion, messageSchemaVersion)
	}

	var persisted string
	if err := db.QueryRow(`SELECT status FROM messages WHERE local_id = 'old'`).Scan(&persisted); err != nil {
		t.Fatal(err)
	}
	if persisted != StatusSyncing {
		t.Errorf("persisted status = %s", persisted)
	}
}
