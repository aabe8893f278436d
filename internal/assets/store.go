// File: internal/assets/store.go
package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// ErrNotFound is returned by lookups for ids absent from the store.
var ErrNotFound = errors.New("assets: not found")

// Store is the asset ledger: an append-only event/report log plus
// upsertable gene and capsule tables. Implementations assume a single
// writer; callers must serialize invocations externally.
type Store interface {
	// AppendEvent appends one immutable event to the audit trail.
	AppendEvent(ctx context.Context, e Event) error
	// AppendReport appends one validation report alongside the events.
	AppendReport(ctx context.Context, r ValidationReport) error
	// Events returns all recorded events in append order.
	Events(ctx context.Context) ([]Event, error)
	// LastEventID returns the most recent event id for parent-chaining,
	// or "" when the ledger is empty.
	LastEventID(ctx context.Context) (string, error)

	UpsertGene(ctx context.Context, g Gene) error
	GetGene(ctx context.Context, id string) (*Gene, error)
	Genes(ctx context.Context) ([]Gene, error)

	UpsertCapsule(ctx context.Context, c Capsule) error
	GetCapsule(ctx context.Context, id string) (*Capsule, error)
}

// Open connects the configured store backend. It returns the store, a
// cleanup function (nil for the file backend) and an error.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Type {
	case "", "file":
		if cfg.Type == "" {
			logger.Warn("No store type configured; defaulting to the file-backed ledger.")
		}
		st, err := NewFileStore(cfg.DataDir, logger)
		return st, nil, err

	case "postgres":
		logger.Info("Initializing PostgreSQL asset store.", zap.String("host", cfg.Postgres.Host))
		poolConfig, err := pgxpool.ParseConfig(cfg.Postgres.ConnString())
		if err != nil {
			return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
		}
		poolConfig.MaxConns = 4
		poolConfig.MaxConnLifetime = 1 * time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
		}

		st := NewPostgresStore(pool, logger)
		cleanup := func() {
			logger.Info("Closing PostgreSQL connection pool (asset store).")
			pool.Close()
		}
		return st, cleanup, nil
	}

	return nil, nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
}

// TailEvents returns the most recent n events, oldest first.
func TailEvents(events []Event, n int) []Event {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
