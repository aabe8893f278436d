// File: internal/state/state.go

// Package state persists the prior-cycle state document consumed at the
// start of each solidify call. The file is replaced atomically
// (write-temp-then-rename); a missing or corrupt file yields safe
// defaults rather than an error.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Mutation describes the change the external agent claims to have made.
type Mutation struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	RiskLevel string `json:"risk_level"`
}

// Personality is the behavioral-state descriptor gating high-risk
// actions, plus the running attempt tally the engine maintains.
type Personality struct {
	// Classification is e.g. "stable", "cautious" or "high_risk".
	Classification string `json:"classification"`
	// AllowHighRisk must be explicitly true for a high-risk mutation to pass.
	AllowHighRisk bool `json:"allow_high_risk"`
	Attempts      int  `json:"attempts"`
	Successes     int  `json:"successes"`
	Failures      int  `json:"failures"`
}

// Task references an externally claimed hub task being serviced.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// CycleState is the single JSON document carried between cycles.
type CycleState struct {
	Schema            string       `json:"schema"`
	GeneID            string       `json:"gene_id,omitempty"`
	ParentEventID     string       `json:"parent_event_id,omitempty"`
	Signals           []string     `json:"signals,omitempty"`
	Mutation          *Mutation    `json:"mutation,omitempty"`
	Personality       *Personality `json:"personality,omitempty"`
	BaselineUntracked []string     `json:"baseline_untracked,omitempty"`
	CapsuleID         string       `json:"capsule_id,omitempty"`
	SourceType        string       `json:"source_type,omitempty"`
	ReusedAssetID     string       `json:"reused_asset_id,omitempty"`
	ActiveTask        *Task        `json:"active_task,omitempty"`
}

const schemaVersion = "crucible/v1"

// Load reads the state file. Missing or corrupt files fall back to an
// empty state; the engine re-derives what it needs from signals.
func Load(path string, logger *zap.Logger) *CycleState {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read state file; starting fresh.", zap.String("path", path), zap.Error(err))
		}
		return &CycleState{Schema: schemaVersion}
	}

	var s CycleState
	if err := json.Unmarshal(data, &s); err != nil {
		logger.Warn("State file is corrupt; starting fresh.", zap.String("path", path), zap.Error(err))
		return &CycleState{Schema: schemaVersion}
	}
	if s.Schema != "" && s.Schema != schemaVersion {
		logger.Warn("State file has unknown schema; starting fresh.", zap.String("schema", s.Schema))
		return &CycleState{Schema: schemaVersion}
	}
	s.Schema = schemaVersion
	return &s
}

// Save atomically replaces the state file so a concurrent reader never
// observes a partial document.
func Save(path string, s *CycleState) error {
	s.Schema = schemaVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
