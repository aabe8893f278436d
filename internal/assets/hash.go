// File: internal/assets/hash.go
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// json is the shared serializer for canonical hashing and ledger I/O.
// The std-compatible config keeps struct field order deterministic.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// assetID hashes the canonical serialization of a payload. Identical
// semantic content always produces an identical id, which makes the id
// usable both for deduplication and as the external reference key.
func assetID(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// Canonical payloads are plain structs of strings and numbers;
		// marshalling them cannot fail at runtime.
		panic(fmt.Sprintf("assets: canonical marshal: %v", err))
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// geneCanonical is the asset-id-relevant content of a gene. The id field
// is excluded so a renamed gene with identical content dedupes.
type geneCanonical struct {
	Schema        string      `json:"schema"`
	Category      Category    `json:"category"`
	SignalsMatch  []string    `json:"signals_match"`
	Preconditions []string    `json:"preconditions"`
	Strategy      []string    `json:"strategy"`
	Constraints   Constraints `json:"constraints"`
	Validation    []string    `json:"validation"`
}

// GeneAssetID computes the content address of a gene.
func GeneAssetID(g Gene) string {
	return assetID(geneCanonical{
		Schema:        SchemaVersion,
		Category:      g.Category,
		SignalsMatch:  g.SignalsMatch,
		Preconditions: g.Preconditions,
		Strategy:      g.Strategy,
		Constraints:   g.Constraints,
		Validation:    g.Validation,
	})
}

// capsuleCanonical excludes success_streak, broadcast eligibility and the
// environment fingerprint: those are derived, cycle-local fields that must
// not churn the content address on every upsert.
type capsuleCanonical struct {
	Schema      string      `json:"schema"`
	Trigger     []string    `json:"trigger"`
	Gene        string      `json:"gene"`
	Summary     string      `json:"summary"`
	Confidence  float64     `json:"confidence"`
	BlastRadius BlastRadius `json:"blast_radius"`
	Outcome     Outcome     `json:"outcome"`
}

// CapsuleAssetID computes the content address of a capsule.
func CapsuleAssetID(c Capsule) string {
	return assetID(capsuleCanonical{
		Schema:      SchemaVersion,
		Trigger:     c.Trigger,
		Gene:        c.Gene,
		Summary:     c.Summary,
		Confidence:  c.Confidence,
		BlastRadius: c.BlastRadius,
		Outcome:     c.Outcome,
	})
}

// eventCanonical excludes id, timestamp and meta: two events with
// identical semantic content may differ only in those fields.
type eventCanonical struct {
	Schema             string      `json:"schema"`
	Parent             string      `json:"parent"`
	Intent             Category    `json:"intent"`
	Signals            []string    `json:"signals"`
	GenesUsed          []string    `json:"genes_used"`
	MutationID         string      `json:"mutation_id"`
	PersonalityState   string      `json:"personality_state"`
	BlastRadius        BlastRadius `json:"blast_radius"`
	Outcome            Outcome     `json:"outcome"`
	CapsuleID          string      `json:"capsule_id"`
	ValidationReportID string      `json:"validation_report_id"`
}

// EventAssetID computes the content address of an event.
func EventAssetID(e Event) string {
	return assetID(eventCanonical{
		Schema:             SchemaVersion,
		Parent:             e.Parent,
		Intent:             e.Intent,
		Signals:            e.Signals,
		GenesUsed:          e.GenesUsed,
		MutationID:         e.MutationID,
		PersonalityState:   e.PersonalityState,
		BlastRadius:        e.BlastRadius,
		Outcome:            e.Outcome,
		CapsuleID:          e.CapsuleID,
		ValidationReportID: e.ValidationReportID,
	})
}

// DeriveGeneID builds a stable gene id from a signal set, so that the
// same unmatched signal combination always synthesizes the same gene.
func DeriveGeneID(signalKeys []string) string {
	keys := make([]string, len(signalKeys))
	copy(keys, signalKeys)
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return "gene-" + hex.EncodeToString(sum[:6])
}

// DeriveCapsuleID builds a stable capsule id from a gene id, so repeated
// successes of the same strategy land on the same capsule record.
func DeriveCapsuleID(geneID string) string {
	sum := sha256.Sum256([]byte("capsule:" + geneID))
	return "capsule-" + hex.EncodeToString(sum[:6])
}
