package msgstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/config"
	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// Ingestor turns live stream events and backfill pages into store writes.
// Transport retries may replay any event; the logical id dedup rule makes
// every path here idempotent.
type Ingestor struct {
	db     *store.DB
	bus    *bus.Bus
	policy config.ReactionPolicy
	logger *zap.Logger
}

// NewIngestor creates an ingestor with the configured reaction merge policy.
func NewIngestor(db *store.DB, b *bus.Bus, policy config.ReactionPolicy, logger *zap.Logger) *Ingestor {
	return &Ingestor{db: db, bus: b, policy: policy, logger: logger}
}

// ApplyEvent dispatches one live stream event.
func (in *Ingestor) ApplyEvent(evt *stream.MessageEvent) error {
	switch {
	case evt.Created != nil:
		return in.ApplyMessage(evt.Created)
	case evt.Pinned != nil:
		return in.applyPin(evt.Pinned)
	case evt.Unpinned != nil:
		return in.applyPin(evt.Unpinned)
	case evt.Reaction != nil:
		return in.applyReaction(evt.Reaction)
	}
	return nil
}

// ApplyMessage stores one server-confirmed message. Duplicate deliveries and
// the confirmed copy of a locally authored message both resolve to a patch
// of the existing row, never a second row.
func (in *Ingestor) ApplyMessage(msg *stream.IncomingMessage) error {
	var patched bool
	err := in.db.WithTx(func(tx *store.Tx) error {
		if msg.LogicalID != "" {
			existing, err := tx.MessageByLogicalID(msg.ChatID, msg.LogicalID)
			if err == nil {
				patched = true
				return tx.AttachServerResult(existing.LocalID, msg.ServerID, store.StatusSent, msg.CreatedAt)
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		// Automated messages carry no logical id; their server id is the
		// only identity they have.
		if msg.Automated && msg.ServerID != "" {
			if _, err := tx.MessageByLocalID(msg.ServerID); err == nil {
				patched = true
				return nil
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		record := toRecord(msg)
		if err := tx.InsertMessage(record); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				// Lost the race against a concurrent delivery of the same
				// message. The row exists, which is all we wanted.
				patched = true
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ingest message %s/%s: %w", msg.ChatID, msg.LogicalID, err)
	}

	kind := bus.KindMessageUpserted
	if patched {
		kind = bus.KindMessagePatched
	}
	in.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: msg.ChatID})
	return nil
}

func (in *Ingestor) applyPin(pin *stream.PinEvent) error {
	err := in.db.WithTx(func(tx *store.Tx) error {
		return tx.SetMessagePinned(pin.ChatID, pin.LogicalID, pin.Pinned)
	})
	if errors.Is(err, store.ErrNotFound) {
		// Pin event for a message outside the local window. Nothing to
		// update; backfill will bring the flag along with the message.
		in.logger.Debug("pin event for unknown message",
			zap.String("chat_id", pin.ChatID), zap.String("logical_id", pin.LogicalID))
		return nil
	}
	if err != nil {
		return err
	}
	in.bus.Publish(bus.Event{Kind: bus.KindMessagePatched, Timestamp: time.Now(), Payload: pin.ChatID})
	return nil
}

func (in *Ingestor) applyReaction(re *stream.ReactionEvent) error {
	err := in.db.WithTx(func(tx *store.Tx) error {
		msg, err := tx.MessageByLogicalID(re.ChatID, re.LogicalID)
		if err != nil {
			return err
		}
		reactions := msg.Reactions
		if in.policy == config.ReactionReplace {
			kept := reactions[:0]
			for _, r := range reactions {
				if r.ParticipantID != re.Reaction.ParticipantID {
					kept = append(kept, r)
				}
			}
			reactions = kept
		}
		reactions = append(reactions, re.Reaction)
		return tx.SetReactions(re.ChatID, re.LogicalID, reactions)
	})
	if errors.Is(err, store.ErrNotFound) {
		in.logger.Debug("reaction for unknown message",
			zap.String("chat_id", re.ChatID), zap.String("logical_id", re.LogicalID))
		return nil
	}
	if err != nil {
		return err
	}
	in.bus.Publish(bus.Event{Kind: bus.KindMessagePatched, Timestamp: time.Now(), Payload: re.ChatID})
	return nil
}

// toRecord maps a confirmed remote message to a store row. The server id
// doubles as the local primary key for rows born remotely.
func toRecord(msg *stream.IncomingMessage) *store.Message {
	localID := msg.ServerID
	if localID == "" {
		localID = uuid.NewString()
	}
	return &store.Message{
		LocalID:             localID,
		ChatID:              msg.ChatID,
		SenderID:            msg.SenderID,
		LogicalID:           msg.LogicalID,
		ServerID:            msg.ServerID,
		Content:             msg.Content,
		Type:                Classify(msg.Content, msg.Multimedia),
		Status:              store.StatusSent,
		Automated:           msg.Automated,
		Pinned:              msg.Pinned,
		Multimedia:          msg.Multimedia,
		ReplyTo:             msg.ReplyTo,
		Reactions:           msg.Reactions,
		PreparedTransaction: msg.PreparedTransaction,
		CreatedAt:           msg.CreatedAt,
		UpdatedAt:           msg.UpdatedAt,
	}
}
