package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
)

// SQLiteStore implements Store on modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "oasis.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extractions (
	id             TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL DEFAULT '',
	mode           TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	digest         TEXT NOT NULL DEFAULT '',
	result         TEXT NOT NULL,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id             TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL DEFAULT '',
	event          TEXT NOT NULL,
	error          TEXT NOT NULL,
	class          TEXT NOT NULL,
	attempts       INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at);
CREATE INDEX IF NOT EXISTS idx_extractions_interaction ON extractions(interaction_id);
CREATE INDEX IF NOT EXISTS idx_dead_letters_class ON dead_letters(class);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveExtraction(ctx context.Context, r *model.ExtractionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO extractions (id, interaction_id, mode, model, digest, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InteractionID, string(r.Meta.Mode), r.Meta.Model, r.Meta.Digest, string(raw), r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save extraction %s", r.ID)
}

func (s *SQLiteStore) GetExtraction(ctx context.Context, id string) (*model.ExtractionResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM extractions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: extraction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get extraction %s", id)
	}
	return decodeExtraction([]byte(raw))
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, f Filter) ([]model.ExtractionResult, error) {
	var (
		where []string
		args  []any
	)
	if f.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, string(f.Mode))
	}
	if f.InteractionID != "" {
		where = append(where, "interaction_id = ?")
		args = append(args, f.InteractionID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	q := `SELECT result FROM extractions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.limit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var out []model.ExtractionResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		r, err := decodeExtraction([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate extractions")
}

func (s *SQLiteStore) SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error {
	ev, err := json.Marshal(dl.Event)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dead_letters (id, interaction_id, event, error, class, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.InteractionID, string(ev), dl.Error, string(dl.Class), dl.Attempts, dl.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save dead letter %s", dl.ID)
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, f resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	q := `SELECT id, interaction_id, event, error, class, attempts, created_at FROM dead_letters`
	var args []any
	if f.Class != "" {
		q += ` WHERE class = ?`
		args = append(args, string(f.Class))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close()

	var out []resilience.DeadLetter
	for rows.Next() {
		var (
			dl    resilience.DeadLetter
			ev    string
			class string
		)
		if err := rows.Scan(&dl.ID, &dl.InteractionID, &ev, &dl.Error, &class, &dl.Attempts, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dead letter")
		}
		if err := json.Unmarshal([]byte(ev), &dl.Event); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event")
		}
		dl.Class = resilience.ErrorClass(class)
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate dead letters")
}

func decodeExtraction(raw []byte) (*model.ExtractionResult, error) {
	var r model.ExtractionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal extraction")
	}
	return &r, nil
}
