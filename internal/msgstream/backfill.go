package msgstream

import (
	"context"
	"fmt"

	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultBackfillLimit = 50

// Backfiller pulls history pages around the locally known message window.
// Concurrent requests for the same chat and direction coalesce into one
// server call; a scroll spammed by the UI costs a single fetch.
type Backfiller struct {
	db     *store.DB
	client stream.Client
	ingest *Ingestor
	group  singleflight.Group
	logger *zap.Logger
}

// NewBackfiller creates a backfiller.
func NewBackfiller(db *store.DB, client stream.Client, ingest *Ingestor, logger *zap.Logger) *Backfiller {
	return &Backfiller{db: db, client: client, ingest: ingest, logger: logger}
}

// Backfill fetches one page of history for a chat. Direction "before"
// extends the window into the past from the earliest local message,
// "after" (the default) extends it toward now from the latest. It returns
// how many rows were stored; overlap with already-known messages dedups to
// zero rather than erroring, so a stale cursor is always safe.
func (bf *Backfiller) Backfill(ctx context.Context, chatID, direction string, limit int) (int, error) {
	if direction == "" {
		direction = stream.DirectionAfter
	}
	if limit <= 0 {
		limit = defaultBackfillLimit
	}

	key := chatID + ":" + direction
	n, err, _ := bf.group.Do(key, func() (any, error) {
		return bf.fetch(ctx, chatID, direction, limit)
	})
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}

func (bf *Backfiller) fetch(ctx context.Context, chatID, direction string, limit int) (int, error) {
	earliest, latest, ok, err := bf.db.MessageBounds(chatID)
	if err != nil {
		return 0, err
	}
	var cursor int64
	if ok {
		if direction == stream.DirectionBefore {
			cursor = earliest
		} else {
			cursor = latest
		}
	}

	resp, err := bf.client.GetChatMessages(ctx, &stream.BackfillRequest{
		ChatID:    chatID,
		Cursor:    cursor,
		Limit:     limit,
		Direction: direction,
	})
	if err != nil {
		return 0, fmt.Errorf("backfill %s %s: %w", chatID, direction, err)
	}

	stored := 0
	var edge int64
	for i := range resp.Messages {
		msg := &resp.Messages[i]
		if msg.ChatID == "" {
			msg.ChatID = chatID
		}
		if err := bf.ingest.ApplyMessage(msg); err != nil {
			return stored, err
		}
		stored++
		if edge == 0 ||
			(direction == stream.DirectionBefore && msg.CreatedAt < edge) ||
			(direction == stream.DirectionAfter && msg.CreatedAt > edge) {
			edge = msg.CreatedAt
		}
	}

	// Pinned messages ride along on every page; they may sit far outside
	// the requested window.
	for i := range resp.Pinned {
		pin := &resp.Pinned[i]
		if pin.ChatID == "" {
			pin.ChatID = chatID
		}
		if pin.CreatedAt == 0 {
			pin.CreatedAt = pin.PinnedAt
		}
		if err := bf.ingest.ApplyMessage(&pin.IncomingMessage); err != nil {
			return stored, err
		}
	}

	if edge > 0 {
		if err := bf.db.SetCursor(chatID, direction, edge); err != nil {
			return stored, err
		}
	}

	bf.logger.Debug("backfill page applied",
		zap.String("chat_id", chatID),
		zap.String("direction", direction),
		zap.Int("messages", stored),
		zap.Int("pinned", len(resp.Pinned)))
	return stored, nil
}
