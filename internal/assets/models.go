// File: internal/assets/models.go
package assets

import "time"

// SchemaVersion tags every persisted record. Records carrying an unknown
// schema are rejected on read rather than trusted.
const SchemaVersion = "crucible/v1"

// Category classifies what a gene tries to achieve.
type Category string

const (
	CategoryRepair   Category = "repair"
	CategoryOptimize Category = "optimize"
	CategoryInnovate Category = "innovate"
)

// Status is the outcome status of a solidification attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Constraints are the gene-declared blast-radius limits. They are
// author-controlled and therefore never the only safety mechanism; the
// hardcoded critical-path protection always applies on top.
type Constraints struct {
	MaxFiles       int      `json:"max_files"`
	ForbiddenPaths []string `json:"forbidden_paths,omitempty"`
}

// Gene is a reusable strategy descriptor matched to signal combinations.
// Genes are never deleted; a content change produces a new asset id.
type Gene struct {
	Schema        string      `json:"schema"`
	ID            string      `json:"id"`
	Category      Category    `json:"category"`
	SignalsMatch  []string    `json:"signals_match"`
	Preconditions []string    `json:"preconditions,omitempty"`
	Strategy      []string    `json:"strategy,omitempty"`
	Constraints   Constraints `json:"constraints"`
	Validation    []string    `json:"validation,omitempty"`
	AssetID       string      `json:"asset_id"`
}

// BlastRadius is the measured size of a change relative to a baseline.
type BlastRadius struct {
	Files int `json:"files"`
	Lines int `json:"lines"`
}

// Outcome is the status/score pair recorded for an attempt.
type Outcome struct {
	Status Status  `json:"status"`
	Score  float64 `json:"score"`
}

// Broadcast carries the derived publish eligibility of a capsule.
type Broadcast struct {
	EligibleToBroadcast bool `json:"eligible_to_broadcast"`
}

// Capsule records a successful solidification outcome. It is created once
// and upserted as later cycles referencing the same capsule succeed again.
type Capsule struct {
	Schema         string      `json:"schema"`
	ID             string      `json:"id"`
	Trigger        []string    `json:"trigger"`
	Gene           string      `json:"gene"`
	Summary        string      `json:"summary"`
	Confidence     float64     `json:"confidence"`
	BlastRadius    BlastRadius `json:"blast_radius"`
	Outcome        Outcome     `json:"outcome"`
	SuccessStreak  int         `json:"success_streak"`
	EnvFingerprint string      `json:"env_fingerprint"`
	A2A            Broadcast   `json:"a2a"`
	AssetID        string      `json:"asset_id"`
}

// Event is the immutable unit of the audit trail: one record per
// solidification attempt, success or failure alike, chained via Parent.
type Event struct {
	Schema             string         `json:"schema"`
	ID                 string         `json:"id"`
	Parent             string         `json:"parent,omitempty"`
	Intent             Category       `json:"intent"`
	Signals            []string       `json:"signals"`
	GenesUsed          []string       `json:"genes_used"`
	MutationID         string         `json:"mutation_id,omitempty"`
	PersonalityState   string         `json:"personality_state,omitempty"`
	BlastRadius        BlastRadius    `json:"blast_radius"`
	Outcome            Outcome        `json:"outcome"`
	CapsuleID          string         `json:"capsule_id,omitempty"`
	ValidationReportID string         `json:"validation_report_id,omitempty"`
	Meta               map[string]any `json:"meta,omitempty"`
	At                 time.Time      `json:"at"`
	AssetID            string         `json:"asset_id"`
}

// CommandResult captures a single validation command execution.
type CommandResult struct {
	Command    string `json:"command"`
	OK         bool   `json:"ok"`
	Blocked    bool   `json:"blocked"`
	Reason     string `json:"reason,omitempty"`
	Output     string `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ValidationReport is the machine-readable record of a validation run,
// referenced by id from the event and stored in the same append-only log.
type ValidationReport struct {
	Schema         string          `json:"schema"`
	ID             string          `json:"id"`
	OK             bool            `json:"ok"`
	Results        []CommandResult `json:"results"`
	EnvFingerprint string          `json:"env_fingerprint"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}
