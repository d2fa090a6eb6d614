// Package api is the in-process surface the UI layer talks to. It reads
// through the store and delegates writes to the owning sync component; it
// never mutates records itself.
package api

import (
	"context"
	"errors"

	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/msgstream"
	"github.com/yarsha/chatsync/internal/outbox"
	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// Service bundles the query and command surface of one session.
type Service struct {
	db       *store.DB
	bus      *bus.Bus
	client   stream.Client
	sender   *outbox.Sender
	manager  *msgstream.Manager
	backfill *msgstream.Backfiller
	logger   *zap.Logger
}

// New creates the service facade.
func New(db *store.DB, b *bus.Bus, client stream.Client, sender *outbox.Sender,
	manager *msgstream.Manager, backfill *msgstream.Backfiller, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		bus:      b,
		client:   client,
		sender:   sender,
		manager:  manager,
		backfill: backfill,
		logger:   logger,
	}
}

// ListChats returns the chat list projection (pinned window first).
func (s *Service) ListChats(limit, offset int) ([]store.Chat, error) {
	return s.db.ListChats(limit, offset)
}

// GetChat returns one chat.
func (s *Service) GetChat(chatID string) (*store.Chat, error) {
	return s.db.GetChat(chatID)
}

// ChatListPages returns the server-side pagination counters from the last
// snapshot, or zeros before the first snapshot lands.
func (s *Service) ChatListPages() (current, total int, err error) {
	md, err := s.db.GetMetadata(store.ChatListMetadataID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return md.CurrentPage, md.TotalPages, nil
}

// ListMessages returns a chat's local message window, oldest first.
func (s *Service) ListMessages(chatID string, limit, offset int) ([]store.Message, error) {
	return s.db.ListMessages(chatID, limit, offset)
}

// OpenChat subscribes to a chat's live stream and pulls the first history
// page so a freshly opened chat is not empty.
func (s *Service) OpenChat(ctx context.Context, chatID string) error {
	s.manager.Subscribe(chatID)
	if _, err := s.backfill.Backfill(ctx, chatID, stream.DirectionAfter, 0); err != nil {
		s.logger.Warn("initial backfill failed", zap.String("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}

// CloseChat drops the chat's live stream. Stored messages stay.
func (s *Service) CloseChat(chatID string) {
	s.manager.Unsubscribe(chatID)
}

// LoadOlder extends the chat's local window into the past.
func (s *Service) LoadOlder(ctx context.Context, chatID string, limit int) (int, error) {
	return s.backfill.Backfill(ctx, chatID, stream.DirectionBefore, limit)
}

// Send queues a message for optimistic delivery.
func (s *Service) Send(d *outbox.Draft) (*store.Message, error) {
	return s.sender.Queue(d)
}

// RetrySend requeues a failed message.
func (s *Service) RetrySend(localID string) error {
	return s.sender.Retry(localID)
}

// TogglePinChat asks the server to flip a chat's pin. The local record
// changes when the next chat list snapshot confirms, so the UI should treat
// this as eventually consistent.
func (s *Service) TogglePinChat(ctx context.Context, chatID string) error {
	c, err := s.db.GetChat(chatID)
	if err != nil {
		return err
	}
	return s.client.TogglePinChat(ctx, chatID, !c.Pinned)
}

// Revision returns the store-wide revision counter for cache invalidation.
func (s *Service) Revision() int64 {
	return s.db.Revision()
}

// Watch subscribes to sync events by namespace prefix ("" for all).
func (s *Service) Watch(namespace string) (<-chan bus.Event, func()) {
	return s.bus.Subscribe(namespace, 256)
}

// Wipe deletes all local data. Used on logout and account deletion.
func (s *Service) Wipe() error {
	s.manager.Close()
	return s.db.Wipe()
}
