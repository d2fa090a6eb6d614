package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yarsha/chatsync/internal/api"
	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/chatlist"
	"github.com/yarsha/chatsync/internal/config"
	"github.com/yarsha/chatsync/internal/lock"
	"github.com/yarsha/chatsync/internal/msgstream"
	"github.com/yarsha/chatsync/internal/outbox"
	"github.com/yarsha/chatsync/internal/reconnect"
	"github.com/yarsha/chatsync/internal/status"
	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// scriptedClient serves one chat list snapshot, echoes sends, and keeps
// per-chat streams open until cancelled.
type scriptedClient struct {
	mu        sync.Mutex
	snapshots chan *stream.ChatSnapshot
	sent      []*stream.SendRequest
}

func (c *scriptedClient) StreamChatList(ctx context.Context) (stream.ChatListStream, error) {
	return &scriptedChatStream{ctx: ctx, snapshots: c.snapshots}, nil
}

func (c *scriptedClient) SubscribeChat(ctx context.Context, chatID string) (stream.MessageStream, error) {
	return &blockingStream{ctx: ctx}, nil
}

func (c *scriptedClient) GetChatMessages(context.Context, *stream.BackfillRequest) (*stream.BackfillResponse, error) {
	return &stream.BackfillResponse{}, nil
}

func (c *scriptedClient) SendMessage(_ context.Context, req *stream.SendRequest) (*stream.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return &stream.SendResult{ServerID: "srv-" + req.LogicalID, SentAt: time.Now().UnixMilli()}, nil
}

func (c *scriptedClient) TogglePinChat(context.Context, string, bool) error { return nil }

func (c *scriptedClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type scriptedChatStream struct {
	ctx       context.Context
	snapshots chan *stream.ChatSnapshot
}

func (s *scriptedChatStream) Recv() (*stream.ChatSnapshot, error) {
	select {
	case snap := <-s.snapshots:
		return snap, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *scriptedChatStream) Close() error { return nil }

type blockingStream struct{ ctx context.Context }

func (s *blockingStream) Recv() (*stream.MessageEvent, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}
func (s *blockingStream) Close() error { return nil }

// TestEngineLifecycle wires the full engine by hand, the way the fx module
// does, and walks one session: lock, snapshot, queued send drained after the
// stream comes up, clean shutdown.
func TestEngineLifecycle(t *testing.T) {
	dir := t.TempDir()

	lk, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(dir, "chatsync.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine("chatlist", b)
	client := &scriptedClient{snapshots: make(chan *stream.ChatSnapshot, 1)}
	sup := reconnect.New(b, logger, time.Millisecond, 4*time.Millisecond)
	syncer := chatlist.New(db, client, b, machine, logger)
	ingest := msgstream.NewIngestor(db, b, config.ReactionAppend, logger)
	manager := msgstream.NewManager(client, ingest, sup, logger)
	defer manager.Close()
	backfill := msgstream.NewBackfiller(db, client, ingest, logger)
	sender := outbox.New(db, client, b, "me", logger)
	svc := api.New(db, b, client, sender, manager, backfill, logger)

	// Queue while offline.
	if _, err := svc.Send(&outbox.Draft{ChatID: "c1", Content: "queued offline"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx, "chatlist", syncer.Run) }()
	go func() { _ = sender.Run(ctx) }()
	go func() {
		states, unsub := b.Subscribe(bus.KindChatListState, 16)
		defer unsub()
		for {
			select {
			case evt := <-states:
				if sc, ok := evt.Payload.(status.StateChange); ok && sc.To == status.Streaming {
					sender.Wake()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	client.snapshots <- &stream.ChatSnapshot{
		Chats:       []stream.SnapshotChat{{ChatID: "c1", Name: "Alice"}},
		CurrentPage: 1,
		TotalPages:  1,
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.sentCount() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if client.sentCount() != 1 {
		t.Fatal("offline-queued message not drained after stream came up")
	}

	if _, err := svc.GetChat("c1"); err != nil {
		t.Errorf("snapshot not applied: %v", err)
	}
	msgs, err := svc.ListMessages("c1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != store.StatusSent {
		t.Errorf("outbox message = %+v", msgs)
	}

	if err := svc.OpenChat(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	svc.CloseChat("c1")

	// Second lock acquisition must fail while we hold the session.
	if _, err := lock.Acquire(dir); err == nil {
		t.Error("second lock acquisition should fail")
	}
}
