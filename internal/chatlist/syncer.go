// Package chatlist reconciles the authoritative server chat list into the
// local replica. It is the only writer of chat records and of the
// denormalized lastMessage summary.
package chatlist

import (
	"context"
	"time"

	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/status"
	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// Syncer consumes chat list snapshots and reconciles the replica.
type Syncer struct {
	db      *store.DB
	client  stream.Client
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// New creates a chat list syncer.
func New(db *store.DB, client stream.Client, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Syncer {
	return &Syncer{db: db, client: client, bus: b, machine: machine, logger: logger}
}

// Run holds one chat list stream open and applies every snapshot it pushes.
// It returns when the stream breaks; the reconnect supervisor reruns it.
func (s *Syncer) Run(ctx context.Context) error {
	_ = s.machine.Transition(status.Connecting)

	cs, err := s.client.StreamChatList(ctx)
	if err != nil {
		_ = s.machine.Transition(status.Backoff)
		return err
	}
	defer func() { _ = cs.Close() }()
	_ = s.machine.Transition(status.Streaming)
	s.logger.Info("chat list stream established")

	for {
		snap, err := cs.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = s.machine.Transition(status.Backoff)
			return err
		}
		if err := s.Apply(snap); err != nil {
			// A failed reconciliation leaves the previous state intact;
			// the next snapshot gets a fresh attempt.
			s.logger.Error("snapshot reconciliation failed", zap.Error(err))
		}
	}
}

// Apply reconciles one complete snapshot in a single transaction: chats the
// server no longer lists are deleted with their messages, every listed chat
// is merge-upserted, and the pagination singleton is refreshed. Partial
// application is impossible; a reader sees the old list or the new one.
func (s *Syncer) Apply(snap *stream.ChatSnapshot) error {
	err := s.db.WithTx(func(tx *store.Tx) error {
		known, err := tx.ChatIDs()
		if err != nil {
			return err
		}
		listed := make(map[string]bool, len(snap.Chats))
		for _, c := range snap.Chats {
			listed[c.ChatID] = true
		}
		for _, id := range known {
			if !listed[id] {
				if err := tx.DeleteChat(id); err != nil {
					return err
				}
				s.logger.Debug("chat dropped by server", zap.String("chat_id", id))
			}
		}

		for i := range snap.Chats {
			if err := tx.MergeChat(snapshotPatch(&snap.Chats[i])); err != nil {
				return err
			}
		}

		return tx.UpsertMetadata(&store.ChatMetadata{
			ID:          store.ChatListMetadataID,
			CurrentPage: snap.CurrentPage,
			TotalPages:  snap.TotalPages,
		})
	})
	if err != nil {
		return err
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindChatListUpdated,
		Timestamp: time.Now(),
		Payload:   len(snap.Chats),
	})
	return nil
}

// snapshotPatch maps a snapshot chat to a full-width patch. LastMessage is
// always present: the snapshot owns that summary and overwrites it even when
// empty.
func snapshotPatch(c *stream.SnapshotChat) *store.ChatPatch {
	last := c.LastMessage
	if last.Type == "" {
		last.Type = store.TypeText
	}
	participants := c.Participants
	seen := c.SeenDetails
	return &store.ChatPatch{
		ChatID:          c.ChatID,
		Name:            &c.Name,
		Icon:            &c.Icon,
		Type:            &c.Type,
		Participants:    &participants,
		SeenDetails:     &seen,
		Pinned:          &c.Pinned,
		Muted:           &c.Muted,
		BackgroundColor: &c.BackgroundColor,
		MessageCount:    &c.MessageCount,
		LastMessage:     &last,
	}
}
