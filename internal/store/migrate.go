package store

import (
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/yarsha/chatsync/internal/store/migrations"
	"go.uber.org/zap"
)

// Current record schema versions. Rows below these are fixed up lazily on
// read (migrateChat/migrateMessage), never eagerly.
const (
	chatSchemaVersion    = 3
	messageSchemaVersion = 2
)

// MigrateResult describes what happened during schema migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate runs all pending schema migrations on the database.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

// migrateChat applies forward record migrations to a chat read from an older
// install and persists the bump. A persist failure is logged and the record
// is still returned in its migrated in-memory form; it is never deleted.
func (db *DB) migrateChat(c *Chat) {
	if c.SchemaVersion >= chatSchemaVersion {
		return
	}
	now := time.Now().UnixMilli()
	if c.SchemaVersion < 2 && c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.SchemaVersion < 3 && !c.Pinned {
		c.PinnedAt = 0
	}
	c.SchemaVersion = chatSchemaVersion

	_, err := db.Exec(`
		UPDATE chats SET schema_version = ?, created_at = ?, pinned_at = CASE WHEN pinned = 1 THEN pinned_at ELSE NULL END
		WHERE chat_id = ?`,
		chatSchemaVersion, c.CreatedAt, c.ChatID)
	if err != nil {
		db.logger.Warn("chat record migration not persisted",
			zap.String("chat_id", c.ChatID), zap.Error(err))
	}
}

// migrateMessage normalizes messages written before the status vocabulary
// settled ("uploading" collapsed into "syncing" in v2).
func (db *DB) migrateMessage(m *Message) {
	if m.SchemaVersion >= messageSchemaVersion {
		return
	}
	if m.Status == "uploading" {
		m.Status = StatusSyncing
	}
	m.SchemaVersion = messageSchemaVersion

	_, err := db.Exec(`UPDATE messages SET schema_version = ?, status = ? WHERE local_id = ?`,
		messageSchemaVersion, m.Status, m.LocalID)
	if err != nil {
		db.logger.Warn("message record migration not persisted",
			zap.String("local_id", m.LocalID), zap.Error(err))
	}
}
