// File: internal/assets/pgstore.go
package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable backend for multi-node deployments. The
// event and report tables are append-only (a bigserial seq preserves
// write order); genes and capsules upsert on id.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore wraps an established pool.
func NewPostgresStore(pool DBPool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: logger.Named("pgstore")}
}

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evolution_events (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			doc JSONB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS validation_reports (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			doc JSONB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS genes (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS capsules (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e Event) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO evolution_events (id, doc) VALUES ($1, $2);`, e.ID, doc); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendReport(ctx context.Context, r ValidationReport) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO validation_reports (id, doc) VALUES ($1, $2);`, r.ID, doc); err != nil {
		return fmt.Errorf("failed to append report: %w", err)
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM evolution_events ORDER BY seq ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		var e Event
		if err := json.Unmarshal(doc, &e); err != nil {
			s.log.Warn("Skipping corrupt event document.", zap.Error(err))
			continue
		}
		if e.Schema != SchemaVersion {
			s.log.Warn("Skipping event with unknown schema.", zap.String("schema", e.Schema))
			continue
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during event iteration: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) LastEventID(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM evolution_events ORDER BY seq DESC LIMIT 1;`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last event id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) upsertDoc(ctx context.Context, table, id string, record any) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}
	sql := fmt.Sprintf(
		`INSERT INTO %s (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc;`, table)
	if _, err := s.pool.Exec(ctx, sql, id, doc); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) getDoc(ctx context.Context, table, id string, dst any) error {
	var doc []byte
	sql := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1;`, table)
	err := s.pool.QueryRow(ctx, sql, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s document: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) UpsertGene(ctx context.Context, g Gene) error {
	return s.upsertDoc(ctx, "genes", g.ID, g)
}

func (s *PostgresStore) GetGene(ctx context.Context, id string) (*Gene, error) {
	var g Gene
	if err := s.getDoc(ctx, "genes", id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) Genes(ctx context.Context) ([]Gene, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM genes;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query genes: %w", err)
	}
	defer rows.Close()

	var genes []Gene
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan gene row: %w", err)
		}
		var g Gene
		if err := json.Unmarshal(doc, &g); err != nil {
			s.log.Warn("Skipping corrupt gene document.", zap.Error(err))
			continue
		}
		genes = append(genes, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during gene iteration: %w", err)
	}
	return genes, nil
}

func (s *PostgresStore) UpsertCapsule(ctx context.Context, c Capsule) error {
	return s.upsertDoc(ctx, "capsules", c.ID, c)
}

func (s *PostgresStore) GetCapsule(ctx context.Context, id string) (*Capsule, error) {
	var c Capsule
	if err := s.getDoc(ctx, "capsules", id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
