package bus

import "time"

// Event kinds published by the sync engine. Subscribers filter by
// namespace prefix, e.g. "message." receives every message event.
const (
	KindChatListUpdated = "chatlist.updated"
	KindChatListState   = "chatlist.state_changed"

	KindMessageUpserted   = "message.upserted"
	KindMessagePatched    = "message.patched"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"

	KindStoreRevision = "store.revision"

	// KindSessionInvalidated is the one-shot logout signal raised when the
	// server rejects the credential. Never retried.
	KindSessionInvalidated = "session.invalidated"
)

// Event is a domain event carried on the in-process bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
