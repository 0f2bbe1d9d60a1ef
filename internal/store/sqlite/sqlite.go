// Package sqlite persists the room catalog: rooms, membership,
// per-participant flags and read cursors. Message logs never touch the
// database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pixelgrid/chatcore/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	kind              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	allow_images      BOOLEAN NOT NULL DEFAULT 0,
	allow_files       BOOLEAN NOT NULL DEFAULT 0,
	allow_voice       BOOLEAN NOT NULL DEFAULT 0,
	slow_mode_seconds INTEGER NOT NULL DEFAULT 0,
	moderation        TEXT NOT NULL DEFAULT 'low',
	archived          BOOLEAN NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS room_flags (
	room_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	muted   BOOLEAN NOT NULL DEFAULT 0,
	pinned  BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS read_cursors (
	room_id       TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	last_read_seq INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, user_id)
);
`

// Store implements core.Catalog on SQLite.
type Store struct {
	db *sql.DB
}

// New opens the catalog database and bootstraps the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithSetup opens the catalog and runs a setup function after the schema
// bootstrap. Useful for tests seeding fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*Store, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRoom upserts the room row.
func (s *Store) SaveRoom(ctx context.Context, room core.Room) error {
	query := `
		INSERT INTO rooms (id, name, kind, description, allow_images, allow_files, allow_voice, slow_mode_seconds, moderation, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			allow_images = excluded.allow_images,
			allow_files = excluded.allow_files,
			allow_voice = excluded.allow_voice,
			slow_mode_seconds = excluded.slow_mode_seconds,
			moderation = excluded.moderation,
			archived = excluded.archived
	`
	_, err := s.db.ExecContext(ctx, query,
		room.ID, room.Name, string(room.Kind), room.Description,
		room.Settings.AllowImages, room.Settings.AllowFiles, room.Settings.AllowVoice,
		room.Settings.SlowModeSeconds, string(room.Settings.Moderation),
		room.Archived, room.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

// SaveMember records or erases a membership.
func (s *Store) SaveMember(ctx context.Context, roomID, userID string, joined bool) error {
	var err error
	if joined {
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`, roomID, userID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	}
	if err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

// SaveFlags upserts the viewer's mute/pin flags for one room.
func (s *Store) SaveFlags(ctx context.Context, roomID, userID string, muted, pinned bool) error {
	query := `
		INSERT INTO room_flags (room_id, user_id, muted, pinned)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			muted = excluded.muted,
			pinned = excluded.pinned
	`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID, muted, pinned); err != nil {
		return fmt.Errorf("upsert flags: %w", err)
	}
	return nil
}

// SaveCursor upserts a read cursor, keeping it monotonic even if callers
// race: the row only moves forward.
func (s *Store) SaveCursor(ctx context.Context, roomID, userID string, seq int64) error {
	query := `
		INSERT INTO read_cursors (room_id, user_id, last_read_seq)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			last_read_seq = MAX(last_read_seq, excluded.last_read_seq)
	`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID, seq); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// Load reads the full catalog for engine startup.
func (s *Store) Load(ctx context.Context) (core.CatalogState, error) {
	var state core.CatalogState

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, description, allow_images, allow_files, allow_voice, slow_mode_seconds, moderation, archived, created_at
		FROM rooms
	`)
	if err != nil {
		return state, fmt.Errorf("load rooms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var room core.Room
		var kind, moderation string
		var createdAt time.Time
		if err := rows.Scan(
			&room.ID, &room.Name, &kind, &room.Description,
			&room.Settings.AllowImages, &room.Settings.AllowFiles, &room.Settings.AllowVoice,
			&room.Settings.SlowModeSeconds, &moderation, &room.Archived, &createdAt,
		); err != nil {
			return state, fmt.Errorf("scan room: %w", err)
		}
		room.Kind = core.RoomKind(kind)
		room.Settings.Moderation = core.ModerationLevel(moderation)
		room.CreatedAt = createdAt
		state.Rooms = append(state.Rooms, room)
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("iterate rooms: %w", err)
	}

	memberRows, err := s.db.QueryContext(ctx, `SELECT room_id, user_id FROM room_members`)
	if err != nil {
		return state, fmt.Errorf("load members: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var m core.MemberRecord
		if err := memberRows.Scan(&m.RoomID, &m.UserID); err != nil {
			return state, fmt.Errorf("scan member: %w", err)
		}
		state.Members = append(state.Members, m)
	}
	if err := memberRows.Err(); err != nil {
		return state, fmt.Errorf("iterate members: %w", err)
	}

	flagRows, err := s.db.QueryContext(ctx, `SELECT room_id, user_id, muted, pinned FROM room_flags`)
	if err != nil {
		return state, fmt.Errorf("load flags: %w", err)
	}
	defer flagRows.Close()
	for flagRows.Next() {
		var f core.FlagRecord
		if err := flagRows.Scan(&f.RoomID, &f.UserID, &f.Muted, &f.Pinned); err != nil {
			return state, fmt.Errorf("scan flags: %w", err)
		}
		state.Flags = append(state.Flags, f)
	}
	if err := flagRows.Err(); err != nil {
		return state, fmt.Errorf("iterate flags: %w", err)
	}

	cursorRows, err := s.db.QueryContext(ctx, `SELECT room_id, user_id, last_read_seq FROM read_cursors`)
	if err != nil {
		return state, fmt.Errorf("load cursors: %w", err)
	}
	defer cursorRows.Close()
	for cursorRows.Next() {
		var c core.CursorRecord
		if err := cursorRows.Scan(&c.RoomID, &c.UserID, &c.Seq); err != nil {
			return state, fmt.Errorf("scan cursor: %w", err)
		}
		state.Cursors = append(state.Cursors, c)
	}
	if err := cursorRows.Err(); err != nil {
		return state, fmt.Errorf("iterate cursors: %w", err)
	}

	return state, nil
}
