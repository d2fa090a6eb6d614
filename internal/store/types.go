package store

import "errors"

// Sentinel errors for the store contract.
var (
	// ErrNotFound is returned when a record lookup misses.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by insert-only writes when the key is taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// MaxPinnedChats caps the pinned section of the chat list. Enforcement is a
// read-time projection, never a deletion.
const MaxPinnedChats = 5

// Message status values. A locally authored message moves
// pending -> syncing -> sent|failed and acquires a server id exactly once.
const (
	StatusPending = "pending"
	StatusSyncing = "syncing"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message content types.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVideo = "video"
	TypeFile  = "file"
	TypeGif   = "gif"
	TypeBlink = "blink"
)

// Chat types.
const (
	ChatIndividual = "individual"
	ChatGroup      = "group"
	ChatCommunity  = "community"
)

// LastMessage is the denormalized most-recent-message summary carried on a
// Chat. It is server-authoritative: chat-list reconciliation overwrites it
// unconditionally, and nothing else writes it.
type LastMessage struct {
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	Type       string
	Timestamp  int64
}

// SeenDetail tracks one participant's read position in a chat.
type SeenDetail struct {
	ParticipantID string `json:"participant_id"`
	SeenCount     int    `json:"seen_count"`
	Timestamp     int64  `json:"timestamp"`
}

// Chat is one conversation. ChatID is the server-assigned primary key; at
// most one record exists per ChatID.
type Chat struct {
	ChatID          string
	Name            string
	Icon            string
	Type            string
	Participants    []string
	SeenDetails     []SeenDetail
	Pinned          bool
	PinnedAt        int64
	Muted           bool
	BackgroundColor string
	MessageCount    int
	LastMessage     LastMessage
	SchemaVersion   int
	CreatedAt       int64
	UpdatedAt       int64
}

// ChatPatch is a typed partial update: nil fields are left untouched by
// MergeChat. PinnedAt is derived, not patchable: it is stamped when Pinned
// flips to true and cleared when it flips to false.
type ChatPatch struct {
	ChatID          string
	Name            *string
	Icon            *string
	Type            *string
	Participants    *[]string
	SeenDetails     *[]SeenDetail
	Pinned          *bool
	Muted           *bool
	BackgroundColor *string
	MessageCount    *int
	LastMessage     *LastMessage
}

// Multimedia describes one attachment on a message.
type Multimedia struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ReplyRef points at the message a message replies to.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Reaction is one participant's reaction to a message.
type Reaction struct {
	ParticipantID string `json:"participant_id"`
	Emoji         string `json:"emoji"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// Message is one chat message.
//
// Identity is threefold: LocalID is the client-generated primary key, stable
// once created; ServerID is assigned when the server accepts the message;
// LogicalID is shared between a locally authored copy and its
// server-confirmed counterpart, and no two rows in one chat may carry the
// same non-empty LogicalID.
type Message struct {
	LocalID             string
	ChatID              string
	SenderID            string
	LogicalID           string
	ServerID            string
	Content             string
	Type                string
	Status              string
	Automated           bool
	Pinned              bool
	Multimedia          []Multimedia
	ReplyTo             *ReplyRef
	Reactions           []Reaction
	PreparedTransaction string
	SchemaVersion       int
	CreatedAt           int64
	UpdatedAt           int64
}

// ChatMetadata is a singleton-per-scope pagination record. ID "chatlist"
// holds the chat-list page counters; "chat:<id>" rows hold per-chat
// backfill cursors per direction.
type ChatMetadata struct {
	ID            string
	CurrentPage   int
	TotalPages    int
	BeforeCursor  int64
	AfterCursor   int64
	SchemaVersion int
	UpdatedAt     int64
}

// ChatListMetadataID keys the chat-list pagination singleton.
const ChatListMetadataID = "chatlist"

// ChatCursorID keys the backfill cursor record for one chat.
func ChatCursorID(chatID string) string {
	return "chat:" + chatID
}
