// File: internal/engine/engine.go

// Package engine runs the solidification transaction: extract signals,
// resolve a gene, measure the blast radius, enforce constraints, run
// validation, then commit the outcome to the asset ledger or roll the
// working tree back. One call covers exactly one attempt; every attempt
// leaves exactly one event in the ledger unless dry-run is requested.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/blast"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/corpus"
	"github.com/xkilldash9x/crucible-cli/internal/hub"
	"github.com/xkilldash9x/crucible-cli/internal/signals"
	"github.com/xkilldash9x/crucible-cli/internal/state"
	"github.com/xkilldash9x/crucible-cli/internal/validation"
)

const (
	// scoreSuccess and scoreFailure are the fixed outcome scores. Graded
	// scoring needs signal quality data the engine does not yet collect.
	scoreSuccess = 0.85
	scoreFailure = 0.2

	// broadcastMinScore and broadcastMinStreak gate capsule eligibility.
	broadcastMinScore  = 0.7
	broadcastMinStreak = 2
)

// Engine wires the solidification pipeline together.
type Engine struct {
	logger    *zap.Logger
	cfg       config.Interface
	store     assets.Store
	extractor *signals.Extractor
	collector *corpus.Collector
	measurer  *blast.Measurer
	checker   *blast.Checker
	hub       hub.Client
}

// New assembles an Engine from its collaborators. hubClient may be nil
// when no hub is configured; publishing is then skipped.
func New(logger *zap.Logger, cfg config.Interface, store assets.Store, hubClient hub.Client) *Engine {
	policy := blast.DefaultPolicy()
	policy.Extend(cfg.Policy())
	timeout := cfg.Engine().CommandTimeout

	return &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		store:     store,
		extractor: signals.NewExtractor(logger),
		collector: corpus.NewCollector(logger, cfg.Corpus()),
		measurer:  blast.NewMeasurer(logger, policy, timeout),
		checker:   blast.NewChecker(logger),
		hub:       hubClient,
	}
}

// PublishStatus reports what happened to the post-commit broadcast.
type PublishStatus struct {
	Attempted bool   `json:"attempted"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Result is the full outcome of one Solidify call.
type Result struct {
	DryRun     bool                    `json:"dry_run"`
	Signals    []string                `json:"signals"`
	Gene       assets.Gene             `json:"gene"`
	Radius     blast.Radius            `json:"radius"`
	Check      blast.CheckResult       `json:"check"`
	Report     assets.ValidationReport `json:"report"`
	Event      assets.Event            `json:"event"`
	Capsule    *assets.Capsule         `json:"capsule,omitempty"`
	Committed  bool                    `json:"committed"`
	RolledBack bool                    `json:"rolled_back"`
	Publish    PublishStatus           `json:"publish"`
}

// Options tune a single Solidify invocation.
type Options struct {
	// DryRun evaluates everything but persists nothing and never reverts
	// the tree.
	DryRun bool
	// FreshSignals ignores signals carried in the state file and always
	// re-extracts from the corpus.
	FreshSignals bool
}

// Solidify runs one full transaction.
func (e *Engine) Solidify(ctx context.Context, opts Options) (*Result, error) {
	dryRun := opts.DryRun
	engineCfg := e.cfg.Engine()
	st := state.Load(engineCfg.StateFile, e.logger)

	events, err := e.store.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event history: %w", err)
	}
	history := signals.Analyze(events)

	sigs := st.Signals
	if len(sigs) == 0 || opts.FreshSignals {
		sigs = e.extractor.Extract(e.collector.Collect(), history)
	}

	gene, reused, err := e.resolveGene(ctx, sigs, st)
	if err != nil {
		return nil, err
	}

	tree := blast.Tree{
		Root:              engineCfg.RepoRoot,
		BaselineUntracked: st.BaselineUntracked,
	}
	radius, err := e.measurer.Measure(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("failed to measure blast radius: %w", err)
	}

	check := e.checker.Check(gene, radius, tree)
	e.checkMutationProtocol(st, gene, &check)

	result := &Result{
		DryRun:  dryRun,
		Signals: sigs,
		Gene:    gene,
		Radius:  radius,
		Check:   check,
	}

	// Validation only runs when the change passed the constraint gate; a
	// tree that already violated constraints gets reverted, not verified.
	if check.OK {
		runner := validation.NewRunner(e.logger, engineCfg.RepoRoot, engineCfg.CommandTimeout, EnvFingerprint())
		result.Report = runner.Run(ctx, gene.Validation)
	} else {
		now := time.Now().UTC()
		result.Report = assets.ValidationReport{
			Schema:     assets.SchemaVersion,
			ID:         uuid.New().String(),
			OK:         false,
			StartedAt:  now,
			FinishedAt: now,
		}
	}

	success := check.OK && result.Report.OK
	result.Event = e.buildEvent(ctx, st, gene, sigs, radius, check, result.Report, success)

	if dryRun {
		e.logger.Info("Dry run complete; nothing persisted.",
			zap.Bool("would_succeed", success),
			zap.Strings("signals", sigs),
		)
		return result, nil
	}

	if !reused {
		if err := e.store.UpsertGene(ctx, gene); err != nil {
			return nil, fmt.Errorf("failed to persist gene: %w", err)
		}
	}

	if success {
		err = e.commit(ctx, st, result, radius)
	} else {
		err = e.fail(ctx, st, result, tree)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveGene picks the gene for this cycle: the state-referenced gene
// if it still exists, else the stored gene with the best signal overlap,
// else a synthesized one derived from the signal set.
func (e *Engine) resolveGene(ctx context.Context, sigs []string, st *state.CycleState) (assets.Gene, bool, error) {
	if st.GeneID != "" {
		g, err := e.store.GetGene(ctx, st.GeneID)
		if err == nil {
			return *g, true, nil
		}
		if err != assets.ErrNotFound {
			return assets.Gene{}, false, fmt.Errorf("failed to load gene %s: %w", st.GeneID, err)
		}
		e.logger.Warn("State references an unknown gene; re-resolving.", zap.String("gene_id", st.GeneID))
	}

	genes, err := e.store.Genes(ctx)
	if err != nil {
		return assets.Gene{}, false, fmt.Errorf("failed to list genes: %w", err)
	}

	keys := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		keys[signals.NormalizeKey(s)] = true
	}

	var best *assets.Gene
	bestOverlap := 0
	for i := range genes {
		overlap := 0
		for _, m := range genes[i].SignalsMatch {
			if keys[signals.NormalizeKey(m)] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		// Ties break toward the lexicographically smaller id so repeated
		// runs over the same store resolve identically.
		if overlap > bestOverlap || (overlap == bestOverlap && genes[i].ID < best.ID) {
			best = &genes[i]
			bestOverlap = overlap
		}
	}
	if best != nil {
		e.logger.Debug("Matched stored gene.",
			zap.String("gene_id", best.ID),
			zap.Int("overlap", bestOverlap),
		)
		return *best, true, nil
	}

	return e.synthesizeGene(sigs), false, nil
}

// synthesizeGene builds a gene for a signal combination no stored gene
// covers. The derived id is stable: the same combination always lands on
// the same gene record.
func (e *Engine) synthesizeGene(sigs []string) assets.Gene {
	normalized := make([]string, 0, len(sigs))
	seen := make(map[string]bool)
	for _, s := range sigs {
		key := signals.NormalizeKey(s)
		if !seen[key] {
			seen[key] = true
			normalized = append(normalized, key)
		}
	}
	sort.Strings(normalized)

	g := assets.Gene{
		Schema:       assets.SchemaVersion,
		ID:           assets.DeriveGeneID(normalized),
		Category:     categorize(sigs),
		SignalsMatch: normalized,
		Constraints:  assets.Constraints{MaxFiles: e.cfg.Engine().MaxFiles},
	}
	g.AssetID = assets.GeneAssetID(g)

	e.logger.Info("Synthesized gene for unmatched signal combination.",
		zap.String("gene_id", g.ID),
		zap.String("category", string(g.Category)),
	)
	return g
}

// categorize derives the gene category from the signal set. The forced
// innovation breakers always win; error-bearing signals mean repair.
func categorize(sigs []string) assets.Category {
	hasError := false
	for _, s := range sigs {
		switch {
		case s == signals.SigForceInnovation || s == signals.SigEmptyCycleLoop:
			return assets.CategoryInnovate
		case s == signals.SigLogError || s == signals.SigMissingResource ||
			s == signals.SigRecurringError ||
			strings.HasPrefix(s, "errsig:") || strings.HasPrefix(s, "recurring_errsig"):
			hasError = true
		}
	}
	if hasError {
		return assets.CategoryRepair
	}
	return assets.CategoryOptimize
}

// checkMutationProtocol appends descriptor-level violations. Both the
// mutation descriptor and the personality-state descriptor must be
// present; a high-risk mutation needs explicit permission and an
// innovation is rejected while the behavioral state is high_risk.
func (e *Engine) checkMutationProtocol(st *state.CycleState, gene assets.Gene, check *blast.CheckResult) {
	if st.Mutation == nil {
		check.Violations = append(check.Violations, "mutation_descriptor_missing")
	} else if st.Mutation.RiskLevel == "high" {
		if st.Personality == nil || !st.Personality.AllowHighRisk {
			check.Violations = append(check.Violations, "high_risk_mutation_not_permitted")
		}
	}
	if st.Personality == nil {
		check.Violations = append(check.Violations, "personality_descriptor_missing")
	} else if gene.Category == assets.CategoryInnovate && st.Personality.Classification == "high_risk" {
		check.Violations = append(check.Violations, "innovation_rejected_in_high_risk_state")
	}
	check.OK = len(check.Violations) == 0 && len(check.Destructive) == 0
}

// buildEvent assembles the immutable event for this attempt. The parent
// is the most recent ledger event; the state's parent pointer is only a
// fallback for an empty or unreadable ledger tail.
func (e *Engine) buildEvent(ctx context.Context, st *state.CycleState, gene assets.Gene, sigs []string,
	radius blast.Radius, check blast.CheckResult, report assets.ValidationReport, success bool) assets.Event {

	parent, err := e.store.LastEventID(ctx)
	if err != nil || parent == "" {
		parent = st.ParentEventID
	}

	outcome := assets.Outcome{Status: assets.StatusFailed, Score: scoreFailure}
	if success {
		outcome = assets.Outcome{Status: assets.StatusSuccess, Score: scoreSuccess}
	}

	ev := assets.Event{
		Schema:             assets.SchemaVersion,
		ID:                 uuid.New().String(),
		Parent:             parent,
		Intent:             gene.Category,
		Signals:            sigs,
		GenesUsed:          []string{gene.ID},
		BlastRadius:        radius.BlastRadius(),
		Outcome:            outcome,
		ValidationReportID: report.ID,
		At:                 time.Now().UTC(),
	}
	if st.Mutation != nil {
		ev.MutationID = st.Mutation.ID
	}
	if st.Personality != nil {
		ev.PersonalityState = st.Personality.Classification
	}

	meta := map[string]any{}
	if len(radius.Files) == 0 && radius.Lines == 0 {
		meta["empty_cycle"] = true
	}
	if len(check.Violations) > 0 {
		meta["violations"] = check.Violations
	}
	if len(check.Destructive) > 0 {
		meta["destructive"] = check.Destructive
	}
	if st.ReusedAssetID != "" {
		meta["reused_asset_id"] = st.ReusedAssetID
	}
	if len(meta) > 0 {
		ev.Meta = meta
	}

	ev.AssetID = assets.EventAssetID(ev)
	return ev
}

// commit persists the success path: capsule upsert, report, event,
// personality tally and the next-cycle state document. The capsule id is
// set on the event before appending so the audit trail links both ways.
func (e *Engine) commit(ctx context.Context, st *state.CycleState, result *Result, radius blast.Radius) error {
	capsule, err := e.upsertCapsule(ctx, result)
	if err != nil {
		return err
	}
	result.Capsule = capsule
	result.Event.CapsuleID = capsule.ID
	result.Event.AssetID = assets.EventAssetID(result.Event)

	if err := e.store.AppendReport(ctx, result.Report); err != nil {
		return fmt.Errorf("failed to persist validation report: %w", err)
	}
	if err := e.store.AppendEvent(ctx, result.Event); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	result.Committed = true

	e.tallyPersonality(st, true)
	next := &state.CycleState{
		GeneID:        result.Gene.ID,
		ParentEventID: result.Event.ID,
		Personality:   st.Personality,
		CapsuleID:     capsule.ID,
		// Files created this cycle are part of the next baseline.
		BaselineUntracked: mergeBaseline(st.BaselineUntracked, radius.NewUntracked),
	}
	if err := state.Save(e.cfg.Engine().StateFile, next); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	e.logger.Info("Solidification committed.",
		zap.String("event_id", result.Event.ID),
		zap.String("capsule_id", capsule.ID),
		zap.Int("files", len(radius.Files)),
		zap.Int("lines", radius.Lines),
	)

	result.Publish = e.publishAndComplete(ctx, st, result)
	return nil
}

// fail persists the failure path and reverts the working tree. The event
// is appended first: a rollback error must not erase the audit record.
func (e *Engine) fail(ctx context.Context, st *state.CycleState, result *Result, tree blast.Tree) error {
	if err := e.store.AppendReport(ctx, result.Report); err != nil {
		return fmt.Errorf("failed to persist validation report: %w", err)
	}
	if err := e.store.AppendEvent(ctx, result.Event); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	result.Committed = true

	if err := Rollback(ctx, e.logger, tree, e.cfg.Engine().CommandTimeout); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	result.RolledBack = true

	e.tallyPersonality(st, false)
	next := &state.CycleState{
		ParentEventID:     result.Event.ID,
		Personality:       st.Personality,
		BaselineUntracked: st.BaselineUntracked,
		// A claimed hub task outlives a failed attempt; only completion
		// or a new claim replaces it.
		ActiveTask: st.ActiveTask,
	}
	if err := state.Save(e.cfg.Engine().StateFile, next); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	e.logger.Warn("Solidification failed; working tree reverted.",
		zap.String("event_id", result.Event.ID),
		zap.Strings("violations", result.Check.Violations),
		zap.Strings("destructive", result.Check.Destructive),
	)
	return nil
}

// upsertCapsule creates or refreshes the capsule for the gene, bumping
// the success streak and recomputing broadcast eligibility.
func (e *Engine) upsertCapsule(ctx context.Context, result *Result) (*assets.Capsule, error) {
	id := assets.DeriveCapsuleID(result.Gene.ID)

	streak := 1
	existing, err := e.store.GetCapsule(ctx, id)
	switch err {
	case nil:
		streak = existing.SuccessStreak + 1
	case assets.ErrNotFound:
	default:
		return nil, fmt.Errorf("failed to load capsule %s: %w", id, err)
	}

	engineCfg := e.cfg.Engine()
	c := assets.Capsule{
		Schema:         assets.SchemaVersion,
		ID:             id,
		Trigger:        result.Signals,
		Gene:           result.Gene.ID,
		Summary:        capsuleSummary(result.Gene, result.Radius),
		Confidence:     result.Event.Outcome.Score,
		BlastRadius:    result.Radius.BlastRadius(),
		Outcome:        result.Event.Outcome,
		SuccessStreak:  streak,
		EnvFingerprint: EnvFingerprint(),
		A2A: assets.Broadcast{
			EligibleToBroadcast: len(result.Radius.Files) <= engineCfg.MaxFiles &&
				result.Radius.Lines <= engineCfg.MaxLines &&
				result.Event.Outcome.Score >= broadcastMinScore &&
				streak >= broadcastMinStreak,
		},
	}
	c.AssetID = assets.CapsuleAssetID(c)

	if err := e.store.UpsertCapsule(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to persist capsule: %w", err)
	}
	return &c, nil
}

func capsuleSummary(gene assets.Gene, radius blast.Radius) string {
	return fmt.Sprintf("%s strategy %s solidified across %d file(s), %d line(s)",
		gene.Category, gene.ID, len(radius.Files), radius.Lines)
}

// tallyPersonality keeps the running attempt counters on the behavioral
// state descriptor carried between cycles.
func (e *Engine) tallyPersonality(st *state.CycleState, success bool) {
	if st.Personality == nil {
		st.Personality = &state.Personality{Classification: "stable"}
	}
	st.Personality.Attempts++
	if success {
		st.Personality.Successes++
	} else {
		st.Personality.Failures++
	}
}

// mergeBaseline unions the old baseline with newly created files,
// keeping the result sorted and deduplicated.
func mergeBaseline(baseline, created []string) []string {
	set := make(map[string]bool, len(baseline)+len(created))
	for _, p := range baseline {
		set[p] = true
	}
	for _, p := range created {
		set[p] = true
	}
	merged := make([]string, 0, len(set))
	for p := range set {
		merged = append(merged, p)
	}
	sort.Strings(merged)
	return merged
}

// EnvFingerprint identifies the runtime environment a validation ran in.
// Capsules from incompatible environments should not be trusted blindly.
func EnvFingerprint() string {
	raw := runtime.GOOS + "/" + runtime.GOARCH + "/" + runtime.Version()
	sum := sha256.Sum256([]byte(raw))
	return "env-" + hex.EncodeToString(sum[:8])
}
