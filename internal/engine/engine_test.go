// File: internal/engine/engine_test.go
package engine_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/blast"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/engine"
	"github.com/xkilldash9x/crucible-cli/internal/hub"
	"github.com/xkilldash9x/crucible-cli/internal/state"
)

// testConfig implements config.Interface with direct field values.
type testConfig struct {
	engine config.EngineConfig
	store  config.StoreConfig
	hub    config.HubConfig
	policy config.PolicyConfig
	corpus config.CorpusConfig
	logger config.LoggerConfig
}

func (c *testConfig) Logger() config.LoggerConfig { return c.logger }
func (c *testConfig) Engine() config.EngineConfig { return c.engine }
func (c *testConfig) Store() config.StoreConfig   { return c.store }
func (c *testConfig) Hub() config.HubConfig       { return c.hub }
func (c *testConfig) Policy() config.PolicyConfig { return c.policy }
func (c *testConfig) Corpus() config.CorpusConfig { return c.corpus }

// fakeHub records publish and completion calls.
type fakeHub struct {
	mu        sync.Mutex
	published []hub.Bundle
	completed []string
}

func (f *fakeHub) FetchTasks(context.Context) ([]hub.Task, error) { return nil, nil }
func (f *fakeHub) ClaimTask(context.Context, string) bool         { return false }

func (f *fakeHub) CompleteTask(_ context.Context, taskID, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, taskID)
	return true
}

func (f *fakeHub) PublishBundle(_ context.Context, b hub.Bundle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, b)
	return nil
}

func (f *fakeHub) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type harness struct {
	cfg       *testConfig
	store     assets.Store
	hub       *fakeHub
	engine    *engine.Engine
	repoRoot  string
	stateFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	repoRoot := t.TempDir()
	repo, err := git.PlainInit(repoRoot, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(repoRoot, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "src", "app.js"), []byte("original\n"), 0o644))
	_, err = wt.Add("src/app.js")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	require.NoError(t, err)

	dataDir := t.TempDir()
	stateFile := filepath.Join(dataDir, "state.json")
	cfg := &testConfig{
		engine: config.EngineConfig{
			MaxFiles:       8,
			MaxLines:       400,
			CommandTimeout: 30 * time.Second,
			StateFile:      stateFile,
			RepoRoot:       repoRoot,
			PublishDrain:   2 * time.Second,
		},
		hub: config.HubConfig{
			AutoPublish:     true,
			Visibility:      "public",
			MinPublishScore: 0.7,
			RequestTimeout:  time.Second,
		},
	}

	logger := zaptest.NewLogger(t)
	store, err := assets.NewFileStore(filepath.Join(dataDir, "ledger"), logger)
	require.NoError(t, err)

	fh := &fakeHub{}
	return &harness{
		cfg:       cfg,
		store:     store,
		hub:       fh,
		engine:    engine.New(logger, cfg, store, fh),
		repoRoot:  repoRoot,
		stateFile: stateFile,
	}
}

// seedState writes a cycle state carrying the mutation and personality
// descriptors, the way the external agent records its change before
// requesting solidification.
func (h *harness) seedState(t *testing.T, st *state.CycleState) {
	t.Helper()
	if st.Mutation == nil {
		st.Mutation = &state.Mutation{ID: "mut-1", Category: "optimize", RiskLevel: "low"}
	}
	if st.Personality == nil {
		st.Personality = &state.Personality{Classification: "stable"}
	}
	require.NoError(t, state.Save(h.stateFile, st))
}

func TestSolidify_DryRunPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.seedState(t, &state.CycleState{})

	result, err := h.engine.Solidify(context.Background(), engine.Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.False(t, result.Committed)
	assert.False(t, result.RolledBack)
	assert.Equal(t, assets.StatusSuccess, result.Event.Outcome.Status)

	events, err := h.store.Events(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events, "dry run must not write to the ledger")

	genes, err := h.store.Genes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, genes, "dry run must not persist the synthesized gene")
}

func TestSolidify_CommitSuccess(t *testing.T) {
	h := newHarness(t)
	h.seedState(t, &state.CycleState{})

	// One small counted change.
	require.NoError(t, os.WriteFile(filepath.Join(h.repoRoot, "src", "app.js"), []byte("original\nimproved\n"), 0o644))

	result, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)

	assert.True(t, result.Committed)
	assert.False(t, result.RolledBack)
	assert.Equal(t, assets.StatusSuccess, result.Event.Outcome.Status)
	assert.InDelta(t, 0.85, result.Event.Outcome.Score, 1e-9)
	require.NotNil(t, result.Capsule)
	assert.Equal(t, 1, result.Capsule.SuccessStreak)
	assert.False(t, result.Capsule.A2A.EligibleToBroadcast, "first success must not be broadcast-eligible")
	assert.Equal(t, result.Capsule.ID, result.Event.CapsuleID)

	events, err := h.store.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, result.Event.ID, events[0].ID)
	assert.Empty(t, events[0].Parent)

	next := state.Load(h.stateFile, zaptest.NewLogger(t))
	assert.Equal(t, result.Gene.ID, next.GeneID)
	assert.Equal(t, result.Event.ID, next.ParentEventID)
	require.NotNil(t, next.Personality)
	assert.Equal(t, 1, next.Personality.Successes)
}

func TestSolidify_MissingMutationDescriptorFailsAndRollsBack(t *testing.T) {
	h := newHarness(t)
	// No state file at all: no mutation descriptor.

	target := filepath.Join(h.repoRoot, "src", "app.js")
	require.NoError(t, os.WriteFile(target, []byte("tampered\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.repoRoot, "src", "junk.js"), []byte("left behind\n"), 0o644))

	result, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, assets.StatusFailed, result.Event.Outcome.Status)
	assert.InDelta(t, 0.2, result.Event.Outcome.Score, 1e-9)
	assert.Contains(t, result.Check.Violations, "mutation_descriptor_missing")
	assert.True(t, result.RolledBack)

	// The tree is back at HEAD and the created file is gone.
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))
	_, err = os.Stat(filepath.Join(h.repoRoot, "src", "junk.js"))
	assert.True(t, os.IsNotExist(err))

	// The failure is still on the audit trail.
	events, err := h.store.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, assets.StatusFailed, events[0].Outcome.Status)
}

func TestSolidify_MissingPersonalityDescriptorFails(t *testing.T) {
	h := newHarness(t)
	// Mutation descriptor present, personality descriptor absent.
	require.NoError(t, state.Save(h.stateFile, &state.CycleState{
		Mutation: &state.Mutation{ID: "mut-1", Category: "optimize", RiskLevel: "low"},
	}))

	result, err := h.engine.Solidify(context.Background(), engine.Options{DryRun: true})
	require.NoError(t, err)

	assert.Contains(t, result.Check.Violations, "personality_descriptor_missing")
	assert.Equal(t, assets.StatusFailed, result.Event.Outcome.Status)
}

func TestSolidify_FailureKeepsActiveTask(t *testing.T) {
	h := newHarness(t)
	h.seedState(t, &state.CycleState{
		Mutation:   &state.Mutation{ID: "mut-risky", RiskLevel: "high"},
		ActiveTask: &state.Task{ID: "task-42"},
	})

	result, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, assets.StatusFailed, result.Event.Outcome.Status)
	assert.True(t, result.RolledBack)

	// The claim survives the failed attempt for a later retry.
	next := state.Load(h.stateFile, zaptest.NewLogger(t))
	require.NotNil(t, next.ActiveTask)
	assert.Equal(t, "task-42", next.ActiveTask.ID)
}

func TestSolidify_HighRiskMutationNeedsPermission(t *testing.T) {
	h := newHarness(t)
	h.seedState(t, &state.CycleState{
		Mutation:    &state.Mutation{ID: "mut-risky", RiskLevel: "high"},
		Personality: &state.Personality{Classification: "stable", AllowHighRisk: false},
	})

	result, err := h.engine.Solidify(context.Background(), engine.Options{DryRun: true})
	require.NoError(t, err)

	assert.Contains(t, result.Check.Violations, "high_risk_mutation_not_permitted")
	assert.Equal(t, assets.StatusFailed, result.Event.Outcome.Status)
}

func TestSolidify_StreakBuildsEligibilityAndPublishes(t *testing.T) {
	h := newHarness(t)

	// First successful cycle: streak 1, not eligible, nothing published.
	h.seedState(t, &state.CycleState{})
	first, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)
	require.NotNil(t, first.Capsule)
	assert.False(t, first.Capsule.A2A.EligibleToBroadcast)
	assert.False(t, first.Publish.Attempted)

	// Second cycle on the same gene: the descriptor is re-seeded the way
	// the agent would before its next request.
	next := state.Load(h.stateFile, zaptest.NewLogger(t))
	h.seedState(t, next)

	second, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)
	require.NotNil(t, second.Capsule)
	assert.Equal(t, first.Capsule.ID, second.Capsule.ID)
	assert.Equal(t, 2, second.Capsule.SuccessStreak)
	assert.True(t, second.Capsule.A2A.EligibleToBroadcast)
	assert.True(t, second.Publish.Attempted)
	assert.True(t, second.Publish.OK)
	assert.Equal(t, 1, h.hub.publishCount())
}

func TestSolidify_ChainsEvents(t *testing.T) {
	h := newHarness(t)

	h.seedState(t, &state.CycleState{})
	first, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)

	h.seedState(t, state.Load(h.stateFile, zaptest.NewLogger(t)))
	second, err := h.engine.Solidify(context.Background(), engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Event.ID, second.Event.Parent)
}

func TestRollback_PreservesBaselineAndCriticalPaths(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, os.WriteFile(filepath.Join(h.repoRoot, "src", "app.js"), []byte("broken\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.repoRoot, "scratch.txt"), []byte("pre-existing\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.repoRoot, "junk.txt"), []byte("new junk\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.repoRoot, ".env"), []byte("SECRET=1\n"), 0o644))

	tree := blast.Tree{Root: h.repoRoot, BaselineUntracked: []string{"scratch.txt"}}
	require.NoError(t, engine.Rollback(context.Background(), zaptest.NewLogger(t), tree, 30*time.Second))

	data, err := os.ReadFile(filepath.Join(h.repoRoot, "src", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))

	_, err = os.Stat(filepath.Join(h.repoRoot, "junk.txt"))
	assert.True(t, os.IsNotExist(err), "new untracked junk must be removed")

	assert.FileExists(t, filepath.Join(h.repoRoot, "scratch.txt"), "baseline untracked file must survive")
	assert.FileExists(t, filepath.Join(h.repoRoot, ".env"), "critical path must never be deleted")

	data, err = os.ReadFile(filepath.Join(h.repoRoot, "scratch.txt"))
	require.NoError(t, err)
	assert.Equal(t, "pre-existing\n", string(data))
}

func TestEnvFingerprint_Stable(t *testing.T) {
	assert.Equal(t, engine.EnvFingerprint(), engine.EnvFingerprint())
	assert.NotEmpty(t, engine.EnvFingerprint())
}
