// Package outbox implements optimistic sending: a queued message is visible
// locally right away and moves pending -> syncing -> sent|failed as the
// server responds.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/msgstream"
	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// retryInterval bounds how long a queued message waits when no wake signal
// arrives (e.g. the daemon was offline when it was queued).
const retryInterval = 15 * time.Second

// Sender queues locally authored messages and drains them to the server.
type Sender struct {
	db       *store.DB
	client   stream.Client
	bus      *bus.Bus
	logger   *zap.Logger
	senderID string
	wake     chan struct{}
}

// New creates a sender. senderID is the local account id stamped on queued
// messages.
func New(db *store.DB, client stream.Client, b *bus.Bus, senderID string, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		client:   client,
		bus:      b,
		logger:   logger,
		senderID: senderID,
		wake:     make(chan struct{}, 1),
	}
}

// Draft is the compose-side input to Queue.
type Draft struct {
	ChatID     string
	Content    string
	Multimedia []store.Multimedia
	ReplyTo    *store.ReplyRef
}

// Queue stores a pending copy of the draft and signals the drain loop. The
// message is visible to readers immediately, before the server has seen it.
func (s *Sender) Queue(d *Draft) (*store.Message, error) {
	if d.ChatID == "" {
		return nil, fmt.Errorf("queue message: empty chat id")
	}
	msg := &store.Message{
		LocalID:    uuid.NewString(),
		ChatID:     d.ChatID,
		SenderID:   s.senderID,
		LogicalID:  uuid.NewString(),
		Content:    d.Content,
		Type:       msgstream.Classify(d.Content, d.Multimedia),
		Status:     store.StatusPending,
		Multimedia: d.Multimedia,
		ReplyTo:    d.ReplyTo,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := s.db.InsertMessage(msg); err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Timestamp: time.Now(), Payload: d.ChatID})
	s.Wake()
	return msg, nil
}

// Retry requeues a failed message for another attempt.
func (s *Sender) Retry(localID string) error {
	msg, err := s.db.MessageByLocalID(localID)
	if err != nil {
		return err
	}
	if msg.Status != store.StatusFailed {
		return fmt.Errorf("retry %s: status is %s, not %s", localID, msg.Status, store.StatusFailed)
	}
	if err := s.db.UpdateMessageStatus(localID, store.StatusPending); err != nil {
		return err
	}
	s.Wake()
	return nil
}

// Wake nudges the drain loop. Called after Queue and on reconnect.
func (s *Sender) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx ends.
func (s *Sender) Run(ctx context.Context) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Sender) drain(ctx context.Context) {
	queue, err := s.db.DraftQueue()
	if err != nil {
		s.logger.Error("outbox read failed", zap.Error(err))
		return
	}
	for i := range queue {
		if ctx.Err() != nil {
			return
		}
		s.send(ctx, &queue[i])
	}
}

// send pushes one message. Failure parks the message in failed until the
// user retries; it never blocks the rest of the queue.
func (s *Sender) send(ctx context.Context, msg *store.Message) {
	if err := s.db.UpdateMessageStatus(msg.LocalID, store.StatusSyncing); err != nil {
		s.logger.Error("outbox status update failed",
			zap.String("local_id", msg.LocalID), zap.Error(err))
		return
	}

	res, err := s.client.SendMessage(ctx, &stream.SendRequest{
		ChatID:     msg.ChatID,
		LogicalID:  msg.LogicalID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		Multimedia: msg.Multimedia,
		ReplyTo:    msg.ReplyTo,
	})
	if err != nil {
		s.logger.Warn("send failed",
			zap.String("local_id", msg.LocalID),
			zap.String("chat_id", msg.ChatID),
			zap.Error(err))
		if err := s.db.UpdateMessageStatus(msg.LocalID, store.StatusFailed); err != nil {
			s.logger.Error("outbox status update failed",
				zap.String("local_id", msg.LocalID), zap.Error(err))
		}
		s.bus.Publish(bus.Event{Kind: bus.KindMessageSendFailed, Timestamp: time.Now(), Payload: msg.LocalID})
		return
	}

	if err := s.db.AttachServerResult(msg.LocalID, res.ServerID, store.StatusSent, res.SentAt); err != nil {
		s.logger.Error("send ack not recorded",
			zap.String("local_id", msg.LocalID), zap.Error(err))
		return
	}
	s.logger.Debug("message sent",
		zap.String("local_id", msg.LocalID),
		zap.String("server_id", res.ServerID))
	s.bus.Publish(bus.Event{Kind: bus.KindMessageSendAck, Timestamp: time.Now(), Payload: msg.LocalID})
}
