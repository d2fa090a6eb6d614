package stream

import "github.com/yarsha/chatsync/internal/store"

// ChatSnapshot is one complete chat list as pushed by the server.
type ChatSnapshot struct {
	Chats       []SnapshotChat
	CurrentPage int
	TotalPages  int
}

// SnapshotChat is one chat inside a snapshot, already normalized from the
// wire encoding.
type SnapshotChat struct {
	ChatID          string
	Name            string
	Icon            string
	Type            string
	Participants    []string
	SeenDetails     []store.SeenDetail
	Pinned          bool
	Muted           bool
	BackgroundColor string
	MessageCount    int
	LastMessage     store.LastMessage
}

// MessageEvent is one live event from a chat subscription. Exactly one field
// is set.
type MessageEvent struct {
	Created  *IncomingMessage
	Pinned   *PinEvent
	Unpinned *PinEvent
	Reaction *ReactionEvent
}

// IncomingMessage is a server-confirmed message, from either a live stream
// or a backfill page.
type IncomingMessage struct {
	ServerID            string
	ChatID              string
	SenderID            string
	LogicalID           string
	Content             string
	Automated           bool
	Pinned              bool
	Multimedia          []store.Multimedia
	ReplyTo             *store.ReplyRef
	Reactions           []store.Reaction
	PreparedTransaction string
	CreatedAt           int64
	UpdatedAt           int64
}

// PinEvent flips the pin flag on one message.
type PinEvent struct {
	ChatID    string
	LogicalID string
	Pinned    bool
}

// ReactionEvent adds a participant's reaction to one message.
type ReactionEvent struct {
	ChatID    string
	LogicalID string
	Reaction  store.Reaction
}

// Backfill directions.
const (
	DirectionBefore = "before"
	DirectionAfter  = "after"
)

// BackfillRequest asks for a page of history around a cursor. A zero Cursor
// means "from the edge". An unset Direction defaults to after.
type BackfillRequest struct {
	ChatID    string
	Cursor    int64
	Limit     int
	Direction string
}

// BackfillResponse is one page of history plus the chat's pinned messages.
type BackfillResponse struct {
	Messages []IncomingMessage
	Pinned   []PinnedMessage
}

// PinnedMessage is a pinned message as returned by backfill, carrying pin
// provenance instead of the usual timestamps.
type PinnedMessage struct {
	IncomingMessage
	PinnedBy string
	PinnedAt int64
}

// SendRequest carries a locally authored message to the server. LogicalID is
// minted client-side and echoes back on the confirmed copy.
type SendRequest struct {
	ChatID     string
	LogicalID  string
	SenderID   string
	Content    string
	Multimedia []store.Multimedia
	ReplyTo    *store.ReplyRef
}

// SendResult is the server's acceptance of a send.
type SendResult struct {
	ServerID string
	SentAt   int64
}
