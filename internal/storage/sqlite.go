package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/pwalder/cospace/backend/internal/model/space"
)

//go:embed schema.sql
var embeddedSchema embed.FS

var ErrNotFound = errors.New("not found")

// Store persists session records and their notes in sqlite. One row per
// session, one row per (session, note); joined users are never persisted.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = s.db.Exec(schema)
	return err
}

// ---------- Sessions ----------

func (s *Store) SaveSession(ctx context.Context, rec space.SessionRecord) error {
	cfg, err := json.Marshal(rec.ObjectConfig)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions(id, host, session_name, object_config)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    host = excluded.host,
    session_name = excluded.session_name,
    object_config = excluded.object_config
`, rec.ID, rec.Host, rec.SessionName, string(cfg))
	return err
}

func (s *Store) GetSession(ctx context.Context, id int) (space.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, host, session_name, object_config FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *Store) ListSessions(ctx context.Context) ([]space.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, host, session_name, object_config FROM sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []space.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) DeleteSession(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (space.SessionRecord, error) {
	var rec space.SessionRecord
	var cfg string
	if err := row.Scan(&rec.ID, &rec.Host, &rec.SessionName, &cfg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return space.SessionRecord{}, ErrNotFound
		}
		return space.SessionRecord{}, err
	}
	if err := json.Unmarshal([]byte(cfg), &rec.ObjectConfig); err != nil {
		return space.SessionRecord{}, err
	}
	return rec, nil
}

// ---------- Notes ----------

func (s *Store) SaveNote(ctx context.Context, sessionID int, n space.Note) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO notes(session_id, note_id, kind, content, pos_x, pos_y, pos_z)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, note_id) DO UPDATE SET
    kind = excluded.kind,
    content = excluded.content,
    pos_x = excluded.pos_x,
    pos_y = excluded.pos_y,
    pos_z = excluded.pos_z
`, sessionID, n.ID, n.Kind, n.Content, n.Position.X, n.Position.Y, n.Position.Z)
	return err
}

func (s *Store) ListNotes(ctx context.Context, sessionID int) ([]space.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT note_id, kind, content, pos_x, pos_y, pos_z
FROM notes
WHERE session_id = ?
ORDER BY note_id
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []space.Note
	for rows.Next() {
		var n space.Note
		if err := rows.Scan(&n.ID, &n.Kind, &n.Content, &n.Position.X, &n.Position.Y, &n.Position.Z); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *Store) DeleteNote(ctx context.Context, sessionID, noteID int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE session_id = ? AND note_id = ?`, sessionID, noteID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
