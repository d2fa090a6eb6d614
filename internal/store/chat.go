package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const chatColumns = `chat_id, name, icon, chat_type, participants, seen_details,
	pinned, COALESCE(pinned_at, 0), muted, background_color, message_count,
	last_msg_id, last_msg_sender_id, last_msg_sender_name, last_msg_text, last_msg_type, last_msg_at,
	schema_version, created_at, updated_at`

// InsertChat creates a chat record, failing with ErrAlreadyExists if the
// chat id is taken.
func (db *DB) InsertChat(c *Chat) error {
	if err := insertChat(db.DB, c); err != nil {
		return err
	}
	db.bump()
	return nil
}

// InsertChat is the insert-only upsert mode inside a transaction.
func (tx *Tx) InsertChat(c *Chat) error {
	return insertChat(tx.tx, c)
}

func insertChat(q querier, c *Chat) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.SchemaVersion == 0 {
		c.SchemaVersion = chatSchemaVersion
	}
	participants, err := json.Marshal(orEmpty(c.Participants))
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	seen, err := json.Marshal(orEmptySeen(c.SeenDetails))
	if err != nil {
		return fmt.Errorf("marshal seen details: %w", err)
	}

	var pinnedAt any
	if c.Pinned {
		pinnedAt = c.PinnedAt
	}
	_, err = q.Exec(`
		INSERT INTO chats (chat_id, name, icon, chat_type, participants, seen_details,
			pinned, pinned_at, muted, background_color, message_count,
			last_msg_id, last_msg_sender_id, last_msg_sender_name, last_msg_text, last_msg_type, last_msg_at,
			schema_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChatID, c.Name, c.Icon, c.Type, string(participants), string(seen),
		c.Pinned, pinnedAt, c.Muted, c.BackgroundColor, c.MessageCount,
		c.LastMessage.MessageID, c.LastMessage.SenderID, c.LastMessage.SenderName,
		c.LastMessage.Text, c.LastMessage.Type, c.LastMessage.Timestamp,
		c.SchemaVersion, c.CreatedAt, c.UpdatedAt)
	if isConstraintErr(err) {
		return fmt.Errorf("chat %s: %w", c.ChatID, ErrAlreadyExists)
	}
	return err
}

// MergeChat is the insert-or-merge upsert mode: it creates the chat if
// absent, otherwise applies only the fields present in the patch. PinnedAt
// is stamped on the unpinned->pinned transition and cleared on unpin, so
// pin order stays stable across repeated snapshots.
func (db *DB) MergeChat(p *ChatPatch) error {
	if err := mergeChat(db.DB, p); err != nil {
		return err
	}
	db.bump()
	return nil
}

// MergeChat applies a typed partial update inside a transaction.
func (tx *Tx) MergeChat(p *ChatPatch) error {
	return mergeChat(tx.tx, p)
}

func mergeChat(q querier, p *ChatPatch) error {
	now := time.Now().UnixMilli()

	participants, err := jsonPtr(p.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	seen, err := jsonPtr(p.SeenDetails)
	if err != nil {
		return fmt.Errorf("marshal seen details: %w", err)
	}

	var lastID, lastSender, lastSenderName, lastText, lastType any
	var lastAt any
	if p.LastMessage != nil {
		lastID = p.LastMessage.MessageID
		lastSender = p.LastMessage.SenderID
		lastSenderName = p.LastMessage.SenderName
		lastText = p.LastMessage.Text
		lastType = p.LastMessage.Type
		lastAt = p.LastMessage.Timestamp
	}

	_, err = q.Exec(`
		INSERT INTO chats (chat_id, name, icon, chat_type, participants, seen_details,
			pinned, pinned_at, muted, background_color, message_count,
			last_msg_id, last_msg_sender_id, last_msg_sender_name, last_msg_text, last_msg_type, last_msg_at,
			schema_version, created_at, updated_at)
		VALUES (?1, COALESCE(?2, ''), COALESCE(?3, ''), COALESCE(?4, 'individual'),
			COALESCE(?5, '[]'), COALESCE(?6, '[]'),
			COALESCE(?7, 0), CASE WHEN COALESCE(?7, 0) THEN ?18 ELSE NULL END,
			COALESCE(?8, 0), COALESCE(?9, ''), COALESCE(?10, 0),
			COALESCE(?11, ''), COALESCE(?12, ''), COALESCE(?13, ''), COALESCE(?14, ''),
			COALESCE(?15, 'text'), COALESCE(?16, 0),
			?17, ?18, ?18)
		ON CONFLICT(chat_id) DO UPDATE SET
			name = COALESCE(?2, chats.name),
			icon = COALESCE(?3, chats.icon),
			chat_type = COALESCE(?4, chats.chat_type),
			participants = COALESCE(?5, chats.participants),
			seen_details = COALESCE(?6, chats.seen_details),
			pinned_at = CASE
				WHEN ?7 IS NULL THEN chats.pinned_at
				WHEN ?7 AND NOT chats.pinned THEN ?18
				WHEN NOT ?7 THEN NULL
				ELSE chats.pinned_at END,
			pinned = COALESCE(?7, chats.pinned),
			muted = COALESCE(?8, chats.muted),
			background_color = COALESCE(?9, chats.background_color),
			message_count = COALESCE(?10, chats.message_count),
			last_msg_id = COALESCE(?11, chats.last_msg_id),
			last_msg_sender_id = COALESCE(?12, chats.last_msg_sender_id),
			last_msg_sender_name = COALESCE(?13, chats.last_msg_sender_name),
			last_msg_text = COALESCE(?14, chats.last_msg_text),
			last_msg_type = COALESCE(?15, chats.last_msg_type),
			last_msg_at = COALESCE(?16, chats.last_msg_at),
			schema_version = ?17,
			updated_at = ?18`,
		p.ChatID, p.Name, p.Icon, p.Type, participants, seen,
		p.Pinned, p.Muted, p.BackgroundColor, p.MessageCount,
		lastID, lastSender, lastSenderName, lastText, lastType, lastAt,
		chatSchemaVersion, now)
	return err
}

// GetChat returns a single chat, applying lazy record migration.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	c, err := scanChat(db.QueryRow(
		`SELECT `+chatColumns+` FROM chats WHERE chat_id = ?`, chatID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	db.migrateChat(c)
	return c, nil
}

// ListChats returns the chat list projection: pinned chats first, sorted by
// pinnedAt descending and capped at MaxPinnedChats, then unpinned chats by
// lastMessage timestamp descending. Pinned chats beyond the cap are evicted
// from the projection only; the rows stay.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}

	var chats []Chat
	if offset == 0 {
		pinned, err := db.queryChats(`
			SELECT `+chatColumns+` FROM chats
			WHERE pinned = 1
			ORDER BY pinned_at DESC
			LIMIT ?`, MaxPinnedChats)
		if err != nil {
			return nil, err
		}
		chats = pinned
	}

	rest, err := db.queryChats(`
		SELECT `+chatColumns+` FROM chats
		WHERE pinned = 0
		ORDER BY last_msg_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return append(chats, rest...), nil
}

func (db *DB) queryChats(query string, args ...any) ([]Chat, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		db.migrateChat(c)
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// ChatIDs returns every locally known chat id.
func (tx *Tx) ChatIDs() ([]string, error) {
	rows, err := tx.tx.Query(`SELECT chat_id FROM chats`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChat removes a chat together with its messages and backfill cursor.
func (tx *Tx) DeleteChat(chatID string) error {
	if _, err := tx.tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	if _, err := tx.tx.Exec(`DELETE FROM chat_metadata WHERE id = ?`, ChatCursorID(chatID)); err != nil {
		return err
	}
	_, err := tx.tx.Exec(`DELETE FROM chats WHERE chat_id = ?`, chatID)
	return err
}

// Wipe deletes every record family. Used on logout and account deletion.
func (db *DB) Wipe() error {
	return db.WithTx(func(tx *Tx) error {
		for _, stmt := range []string{
			`DELETE FROM messages`,
			`DELETE FROM chat_metadata`,
			`DELETE FROM chats`,
		} {
			if _, err := tx.tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*Chat, error) {
	var c Chat
	var participants, seen string
	err := row.Scan(&c.ChatID, &c.Name, &c.Icon, &c.Type, &participants, &seen,
		&c.Pinned, &c.PinnedAt, &c.Muted, &c.BackgroundColor, &c.MessageCount,
		&c.LastMessage.MessageID, &c.LastMessage.SenderID, &c.LastMessage.SenderName,
		&c.LastMessage.Text, &c.LastMessage.Type, &c.LastMessage.Timestamp,
		&c.SchemaVersion, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return nil, fmt.Errorf("chat %s participants: %w", c.ChatID, err)
	}
	if err := json.Unmarshal([]byte(seen), &c.SeenDetails); err != nil {
		return nil, fmt.Errorf("chat %s seen details: %w", c.ChatID, err)
	}
	return &c, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptySeen(s []SeenDetail) []SeenDetail {
	if s == nil {
		return []SeenDetail{}
	}
	return s
}

// jsonPtr marshals a patch field, mapping an absent field to SQL NULL.
func jsonPtr[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(*v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
