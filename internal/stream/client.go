// Package stream is the transport edge: it speaks the server's gRPC surface
// and hands normalized domain events to the sync layer. Nothing in here
// touches the store.
package stream

import "context"

// Client is the server connection as the sync components see it.
type Client interface {
	// StreamChatList opens the server-push chat list stream. Each received
	// snapshot is the complete authoritative chat list.
	StreamChatList(ctx context.Context) (ChatListStream, error)

	// SubscribeChat opens the per-chat live message stream.
	SubscribeChat(ctx context.Context, chatID string) (MessageStream, error)

	// GetChatMessages fetches a backfill page around a cursor.
	GetChatMessages(ctx context.Context, req *BackfillRequest) (*BackfillResponse, error)

	// SendMessage submits a locally authored message and returns the
	// server's acceptance.
	SendMessage(ctx context.Context, req *SendRequest) (*SendResult, error)

	// TogglePinChat flips the pinned flag of a chat server-side. The local
	// record is only updated when the next chat list snapshot confirms it.
	TogglePinChat(ctx context.Context, chatID string, pinned bool) error
}

// ChatListStream yields chat list snapshots until the stream breaks.
type ChatListStream interface {
	Recv() (*ChatSnapshot, error)
	Close() error
}

// MessageStream yields live message events for one chat.
type MessageStream interface {
	Recv() (*MessageEvent, error)
	Close() error
}

// TokenSource supplies the bearer token attached to every call.
type TokenSource interface {
	Token() (string, error)
}
