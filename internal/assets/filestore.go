// File: internal/assets/filestore.go
package assets

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const (
	eventsFile   = "events.ndjson"
	reportsFile  = "reports.ndjson"
	genesFile    = "genes.json"
	capsulesFile = "capsules.json"
)

// FileStore persists the ledger under a data directory: newline-delimited
// JSON for the append-only logs, keyed JSON documents for the gene and
// capsule tables. Table replacement is atomic (write-temp-then-rename).
type FileStore struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

// NewFileStore creates the data directory if needed and returns the store.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		dir = ".crucible"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, log: logger.Named("filestore")}, nil
}

func (s *FileStore) path(name string) string { return filepath.Join(s.dir, name) }

// appendLine marshals the record and appends it as one NDJSON line.
func (s *FileStore) appendLine(name string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return f.Sync()
}

func (s *FileStore) AppendEvent(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLine(eventsFile, e)
}

func (s *FileStore) AppendReport(_ context.Context, r ValidationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLine(reportsFile, r)
}

func (s *FileStore) Events(_ context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(eventsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			// A corrupt line is skipped, not fatal: the ledger favors safe
			// defaults over raising on damaged state.
			s.log.Warn("Skipping corrupt event record.", zap.Int("line", line), zap.Error(err))
			continue
		}
		if e.Schema != SchemaVersion {
			s.log.Warn("Skipping event with unknown schema.", zap.Int("line", line), zap.String("schema", e.Schema))
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading event log: %w", err)
	}
	return events, nil
}

func (s *FileStore) LastEventID(ctx context.Context) (string, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].ID, nil
}

// readTable loads a keyed JSON document into dst (a pointer to a map).
// A missing or corrupt table yields an empty map.
func (s *FileStore) readTable(name string, dst any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn("Table is corrupt; starting from an empty table.", zap.String("file", name), zap.Error(err))
	}
	return nil
}

// writeTable atomically replaces a table document.
func (s *FileStore) writeTable(name string, table any) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) UpsertGene(_ context.Context, g Gene) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := map[string]Gene{}
	if err := s.readTable(genesFile, &table); err != nil {
		return err
	}
	table[g.ID] = g
	return s.writeTable(genesFile, table)
}

func (s *FileStore) GetGene(_ context.Context, id string) (*Gene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := map[string]Gene{}
	if err := s.readTable(genesFile, &table); err != nil {
		return nil, err
	}
	g, ok := table[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (s *FileStore) Genes(_ context.Context) ([]Gene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := map[string]Gene{}
	if err := s.readTable(genesFile, &table); err != nil {
		return nil, err
	}
	genes := make([]Gene, 0, len(table))
	for _, g := range table {
		genes = append(genes, g)
	}
	return genes, nil
}

func (s *FileStore) UpsertCapsule(_ context.Context, c Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := map[string]Capsule{}
	if err := s.readTable(capsulesFile, &table); err != nil {
		return err
	}
	table[c.ID] = c
	return s.writeTable(capsulesFile, table)
}

func (s *FileStore) GetCapsule(_ context.Context, id string) (*Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := map[string]Capsule{}
	if err := s.readTable(capsulesFile, &table); err != nil {
		return nil, err
	}
	c, ok := table[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}
