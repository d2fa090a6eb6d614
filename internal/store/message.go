package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const messageColumns = `local_id, chat_id, sender_id, logical_id, server_id,
	content, msg_type, status, automated, pinned,
	multimedia, reply_to, reactions, prepared_tx,
	schema_version, created_at, updated_at`

// InsertMessage creates a message record. It fails with ErrAlreadyExists
// when the local id is taken or another row in the chat already carries the
// same logical id.
func (db *DB) InsertMessage(m *Message) error {
	if err := insertMessage(db.DB, m); err != nil {
		return err
	}
	db.bump()
	return nil
}

func (tx *Tx) InsertMessage(m *Message) error {
	return insertMessage(tx.tx, m)
}

func insertMessage(q querier, m *Message) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.SchemaVersion == 0 {
		m.SchemaVersion = messageSchemaVersion
	}
	if m.Type == "" {
		m.Type = TypeText
	}
	if m.Status == "" {
		m.Status = StatusPending
	}

	multimedia, err := jsonSlice(m.Multimedia)
	if err != nil {
		return fmt.Errorf("marshal multimedia: %w", err)
	}
	replyTo, err := jsonPtr(m.ReplyTo)
	if err != nil {
		return fmt.Errorf("marshal reply ref: %w", err)
	}
	reactions, err := jsonSlice(m.Reactions)
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}

	_, err = q.Exec(`
		INSERT INTO messages (local_id, chat_id, sender_id, logical_id, server_id,
			content, msg_type, status, automated, pinned,
			multimedia, reply_to, reactions, prepared_tx,
			schema_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.LocalID, m.ChatID, m.SenderID, m.LogicalID, m.ServerID,
		m.Content, m.Type, m.Status, m.Automated, m.Pinned,
		multimedia, replyTo, reactions, m.PreparedTransaction,
		m.SchemaVersion, m.CreatedAt, m.UpdatedAt)
	if isConstraintErr(err) {
		return fmt.Errorf("message %s: %w", m.LocalID, ErrAlreadyExists)
	}
	return err
}

// MessageByLocalID looks a message up by its client-generated primary key.
func (db *DB) MessageByLocalID(localID string) (*Message, error) {
	return db.messageBy(`local_id = ?`, localID)
}

func (tx *Tx) MessageByLocalID(localID string) (*Message, error) {
	m, err := scanMessage(tx.tx.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE local_id = ?`, localID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %s: %w", localID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	tx.db.migrateMessage(m)
	return m, nil
}

// MessageByLogicalID finds the row in a chat carrying the given logical id.
// This is the dedup lookup: at most one row can match.
func (db *DB) MessageByLogicalID(chatID, logicalID string) (*Message, error) {
	return db.messageBy(`chat_id = ? AND logical_id = ? AND logical_id != ''`, chatID, logicalID)
}

func (tx *Tx) MessageByLogicalID(chatID, logicalID string) (*Message, error) {
	m, err := scanMessage(tx.tx.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? AND logical_id = ? AND logical_id != ''`,
		chatID, logicalID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %s/%s: %w", chatID, logicalID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	tx.db.migrateMessage(m)
	return m, nil
}

func (db *DB) messageBy(where string, args ...any) (*Message, error) {
	m, err := scanMessage(db.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	db.migrateMessage(m)
	return m, nil
}

// AttachServerResult records the server's acceptance of a locally authored
// message: the server id is adopted (exactly once) and the status advances.
// The local id never changes.
func (db *DB) AttachServerResult(localID, serverID, status string, sentAt int64) error {
	if err := attachServerResult(db.DB, localID, serverID, status, sentAt); err != nil {
		return err
	}
	db.bump()
	return nil
}

func (tx *Tx) AttachServerResult(localID, serverID, status string, sentAt int64) error {
	return attachServerResult(tx.tx, localID, serverID, status, sentAt)
}

func attachServerResult(q querier, localID, serverID, status string, sentAt int64) error {
	now := time.Now().UnixMilli()
	res, err := q.Exec(`
		UPDATE messages SET
			server_id = CASE WHEN server_id = '' THEN ? ELSE server_id END,
			status = ?,
			created_at = CASE WHEN ? > 0 THEN ? ELSE created_at END,
			updated_at = ?
		WHERE local_id = ?`,
		serverID, status, sentAt, sentAt, now, localID)
	if err != nil {
		return err
	}
	return requireRow(res, localID)
}

// UpdateMessageStatus moves a message through the send lifecycle.
func (db *DB) UpdateMessageStatus(localID, status string) error {
	if err := updateMessageStatus(db.DB, localID, status); err != nil {
		return err
	}
	db.bump()
	return nil
}

func (tx *Tx) UpdateMessageStatus(localID, status string) error {
	return updateMessageStatus(tx.tx, localID, status)
}

func updateMessageStatus(q querier, localID, status string) error {
	res, err := q.Exec(`UPDATE messages SET status = ?, updated_at = ? WHERE local_id = ?`,
		status, time.Now().UnixMilli(), localID)
	if err != nil {
		return err
	}
	return requireRow(res, localID)
}

// SetMessagePinned flips the pin flag on the row identified by logical id.
func (tx *Tx) SetMessagePinned(chatID, logicalID string, pinned bool) error {
	res, err := tx.tx.Exec(`
		UPDATE messages SET pinned = ?, updated_at = ?
		WHERE chat_id = ? AND logical_id = ? AND logical_id != ''`,
		pinned, time.Now().UnixMilli(), chatID, logicalID)
	if err != nil {
		return err
	}
	return requireRow(res, chatID+"/"+logicalID)
}

// SetReactions replaces the reaction list on the row identified by logical id.
// The policy decision (append vs replace per participant) is the caller's.
func (tx *Tx) SetReactions(chatID, logicalID string, reactions []Reaction) error {
	data, err := jsonSlice(reactions)
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}
	res, err := tx.tx.Exec(`
		UPDATE messages SET reactions = ?, updated_at = ?
		WHERE chat_id = ? AND logical_id = ? AND logical_id != ''`,
		data, time.Now().UnixMilli(), chatID, logicalID)
	if err != nil {
		return err
	}
	return requireRow(res, chatID+"/"+logicalID)
}

// ListMessages returns a chat's messages ordered oldest first. Offset pages
// from the start of the window.
func (db *DB) ListMessages(chatID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, local_id ASC
		LIMIT ? OFFSET ?`, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		db.migrateMessage(m)
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// PendingMessages returns locally authored messages still waiting for the
// server, oldest first. The outbox drains these on reconnect.
func (db *DB) PendingMessages(chatID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ? AND status IN (?, ?)
		ORDER BY created_at ASC`, chatID, StatusPending, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		db.migrateMessage(m)
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// DraftQueue returns every pending message across all chats, oldest first.
// The outbox drains this on connect and whenever a send is queued.
func (db *DB) DraftQueue() ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE status = ?
		ORDER BY created_at ASC`, StatusPending)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		db.migrateMessage(m)
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// MessageBounds returns the created_at timestamps of the oldest and newest
// messages in a chat. ok is false when the chat holds no messages yet.
func (db *DB) MessageBounds(chatID string) (earliest, latest int64, ok bool, err error) {
	var count int
	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(MIN(created_at), 0), COALESCE(MAX(created_at), 0)
		FROM messages WHERE chat_id = ?`, chatID).Scan(&count, &earliest, &latest)
	if err != nil {
		return 0, 0, false, err
	}
	return earliest, latest, count > 0, nil
}

func requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", key, ErrNotFound)
	}
	return nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var multimedia, replyTo, reactions sql.NullString
	err := row.Scan(&m.LocalID, &m.ChatID, &m.SenderID, &m.LogicalID, &m.ServerID,
		&m.Content, &m.Type, &m.Status, &m.Automated, &m.Pinned,
		&multimedia, &replyTo, &reactions, &m.PreparedTransaction,
		&m.SchemaVersion, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if multimedia.Valid && multimedia.String != "" {
		if err := json.Unmarshal([]byte(multimedia.String), &m.Multimedia); err != nil {
			return nil, fmt.Errorf("message %s multimedia: %w", m.LocalID, err)
		}
	}
	if replyTo.Valid && replyTo.String != "" {
		m.ReplyTo = &ReplyRef{}
		if err := json.Unmarshal([]byte(replyTo.String), m.ReplyTo); err != nil {
			return nil, fmt.Errorf("message %s reply ref: %w", m.LocalID, err)
		}
	}
	if reactions.Valid && reactions.String != "" {
		if err := json.Unmarshal([]byte(reactions.String), &m.Reactions); err != nil {
			return nil, fmt.Errorf("message %s reactions: %w", m.LocalID, err)
		}
	}
	return &m, nil
}

// jsonSlice marshals a slice column, mapping an empty slice to SQL NULL.
func jsonSlice[T any](s []T) (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
