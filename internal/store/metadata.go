package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertMetadata writes a pagination record, creating it if absent.
func (db *DB) UpsertMetadata(md *ChatMetadata) error {
	if err := upsertMetadata(db.DB, md); err != nil {
		return err
	}
	db.bump()
	return nil
}

func (tx *Tx) UpsertMetadata(md *ChatMetadata) error {
	return upsertMetadata(tx.tx, md)
}

func upsertMetadata(q querier, md *ChatMetadata) error {
	if md.SchemaVersion == 0 {
		md.SchemaVersion = 1
	}
	md.UpdatedAt = time.Now().UnixMilli()
	_, err := q.Exec(`
		INSERT INTO chat_metadata (id, current_page, total_pages, before_cursor, after_cursor, schema_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_page = excluded.current_page,
			total_pages = excluded.total_pages,
			before_cursor = excluded.before_cursor,
			after_cursor = excluded.after_cursor,
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at`,
		md.ID, md.CurrentPage, md.TotalPages, md.BeforeCursor, md.AfterCursor,
		md.SchemaVersion, md.UpdatedAt)
	return err
}

// GetMetadata reads a pagination record by id.
func (db *DB) GetMetadata(id string) (*ChatMetadata, error) {
	return getMetadata(db.DB, id)
}

func (tx *Tx) GetMetadata(id string) (*ChatMetadata, error) {
	return getMetadata(tx.tx, id)
}

func getMetadata(q querier, id string) (*ChatMetadata, error) {
	var md ChatMetadata
	err := q.QueryRow(`
		SELECT id, current_page, total_pages, before_cursor, after_cursor, schema_version, updated_at
		FROM chat_metadata WHERE id = ?`, id).
		Scan(&md.ID, &md.CurrentPage, &md.TotalPages, &md.BeforeCursor, &md.AfterCursor,
			&md.SchemaVersion, &md.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("metadata %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

// SetCursor advances one backfill cursor for a chat, creating the record on
// first use. Direction is "before" or "after".
func (db *DB) SetCursor(chatID, direction string, cursor int64) error {
	if err := setCursor(db.DB, chatID, direction, cursor); err != nil {
		return err
	}
	db.bump()
	return nil
}

func (tx *Tx) SetCursor(chatID, direction string, cursor int64) error {
	return setCursor(tx.tx, chatID, direction, cursor)
}

func setCursor(q querier, chatID, direction string, cursor int64) error {
	col := "after_cursor"
	if direction == "before" {
		col = "before_cursor"
	}
	now := time.Now().UnixMilli()
	_, err := q.Exec(`
		INSERT INTO chat_metadata (id, `+col+`, schema_version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			`+col+` = excluded.`+col+`,
			updated_at = excluded.updated_at`,
		ChatCursorID(chatID), cursor, now)
	return err
}
