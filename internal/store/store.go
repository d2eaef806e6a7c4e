// Package store persists extraction results and dead-lettered transcript
// events for audit and review.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oasis-extract/internal/db"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
)

// ErrNotFound is returned when an extraction id is unknown.
var ErrNotFound = eris.New("store: not found")

// DefaultLimit bounds list queries without an explicit limit.
const DefaultLimit = 50

// Filter narrows ListExtractions. Zero fields match everything.
type Filter struct {
	Mode          model.Mode
	InteractionID string
	Since         time.Time
	Limit         int
	Offset        int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Store is the audit store.
type Store interface {
	// SaveExtraction inserts r, replacing any row with the same id.
	SaveExtraction(ctx context.Context, r *model.ExtractionResult) error
	GetExtraction(ctx context.Context, id string) (*model.ExtractionResult, error)
	// ListExtractions returns matches newest first.
	ListExtractions(ctx context.Context, f Filter) ([]model.ExtractionResult, error)

	SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error
	ListDeadLetters(ctx context.Context, f resilience.DeadLetterFilter) ([]resilience.DeadLetter, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string        `yaml:"driver" mapstructure:"driver"`
	DSN    string        `yaml:"dsn" mapstructure:"dsn"`
	Pool   db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open returns a migrated store for cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.DSN)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DSN, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
