package relay

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/signaling"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS rooms (
  id      TEXT PRIMARY KEY,
  created INTEGER NOT NULL,
  doc     BLOB NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_rooms_created ON rooms (created);
`,
}

// SQLiteStore keeps rooms in a SQLite database so they survive a relay
// restart. Documents are stored as msgpack blobs.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) enableWALMode() error {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", mode)
	}
	return nil
}

func (s *SQLiteStore) Create(id string, room *signaling.Room) error {
	doc, err := msgpack.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %q: %w", id, err)
	}
	res, err := s.db.Exec(
		`INSERT INTO rooms (id, created, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, room.Created, doc,
	)
	if err != nil {
		return fmt.Errorf("insert room %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", signaling.ErrRoomExists, id)
	}
	return nil
}

func (s *SQLiteStore) Load(id string) (*signaling.Room, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT doc FROM rooms WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", signaling.ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %q: %w", id, err)
	}

	var room signaling.Room
	if err := msgpack.Unmarshal(doc, &room); err != nil {
		return nil, fmt.Errorf("decode room %q: %w", id, err)
	}
	return &room, nil
}

func (s *SQLiteStore) Save(id string, room *signaling.Room) error {
	doc, err := msgpack.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %q: %w", id, err)
	}
	res, err := s.db.Exec(`UPDATE rooms SET doc = ? WHERE id = ?`, doc, id)
	if err != nil {
		return fmt.Errorf("save room %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", signaling.ErrRoomNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Prune(cutoff time.Time) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin prune: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.Query(`SELECT id FROM rooms WHERE created < ? ORDER BY id`, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("select expired rooms: %w", err)
	}
	var pruned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired room: %w", err)
		}
		pruned = append(pruned, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired rooms: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM rooms WHERE created < ?`, cutoff.UnixMilli()); err != nil {
		return nil, fmt.Errorf("delete expired rooms: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit prune: %w", err)
	}
	return pruned, nil
}

func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM rooms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
