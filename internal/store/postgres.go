package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/oasis-extract/internal/db"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to dsn.
func NewPostgres(ctx context.Context, dsn string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, dsn, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extractions (
	id             TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL DEFAULT '',
	mode           TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	digest         TEXT NOT NULL DEFAULT '',
	result         JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id             TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL DEFAULT '',
	event          JSONB NOT NULL,
	error          TEXT NOT NULL,
	class          TEXT NOT NULL,
	attempts       INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extractions_interaction ON extractions(interaction_id);
CREATE INDEX IF NOT EXISTS idx_dead_letters_class ON dead_letters(class);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveExtraction(ctx context.Context, r *model.ExtractionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO extractions (id, interaction_id, mode, model, digest, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			interaction_id = EXCLUDED.interaction_id, mode = EXCLUDED.mode, model = EXCLUDED.model,
			digest = EXCLUDED.digest, result = EXCLUDED.result`,
		r.ID, r.InteractionID, string(r.Meta.Mode), r.Meta.Model, r.Meta.Digest, raw, r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save extraction %s", r.ID)
}

func (s *PostgresStore) GetExtraction(ctx context.Context, id string) (*model.ExtractionResult, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM extractions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: extraction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get extraction %s", id)
	}
	return decodeExtraction(raw)
}

func (s *PostgresStore) ListExtractions(ctx context.Context, f Filter) ([]model.ExtractionResult, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Mode != "" {
		where = append(where, "mode = "+arg(string(f.Mode)))
	}
	if f.InteractionID != "" {
		where = append(where, "interaction_id = "+arg(f.InteractionID))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= "+arg(f.Since.UTC()))
	}

	q := `SELECT result FROM extractions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id LIMIT " + arg(f.limit())
	q += " OFFSET " + arg(f.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var out []model.ExtractionResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		r, err := decodeExtraction(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate extractions")
}

func (s *PostgresStore) SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error {
	ev, err := json.Marshal(dl.Event)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, interaction_id, event, error, class, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET error = EXCLUDED.error, class = EXCLUDED.class, attempts = EXCLUDED.attempts`,
		dl.ID, dl.InteractionID, ev, dl.Error, string(dl.Class), dl.Attempts, dl.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save dead letter %s", dl.ID)
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, f resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := `SELECT id, interaction_id, event, error, class, attempts, created_at FROM dead_letters`
	args := []any{}
	if f.Class != "" {
		q += ` WHERE class = $1`
		args = append(args, string(f.Class))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var out []resilience.DeadLetter
	for rows.Next() {
		var (
			dl    resilience.DeadLetter
			ev    []byte
			class string
		)
		if err := rows.Scan(&dl.ID, &dl.InteractionID, &ev, &dl.Error, &class, &dl.Attempts, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dead letter")
		}
		if err := json.Unmarshal(ev, &dl.Event); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal event")
		}
		dl.Class = resilience.ErrorClass(class)
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate dead letters")
}
