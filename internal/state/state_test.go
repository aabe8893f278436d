// File: internal/state/state_test.go
package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "state.json")

	st := state.Load(path, zaptest.NewLogger(t))

	require.NotNil(t, st)
	assert.Empty(t, st.GeneID)
	assert.Nil(t, st.Mutation)
}

func TestLoad_CorruptFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{{not json"), 0o644))

	st := state.Load(path, zaptest.NewLogger(t))

	require.NotNil(t, st)
	assert.Empty(t, st.GeneID)
}

func TestLoad_UnknownSchemaYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema":"crucible/v42","gene_id":"gene-x"}`), 0o644))

	st := state.Load(path, zaptest.NewLogger(t))

	assert.Empty(t, st.GeneID)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := &state.CycleState{
		GeneID:        "gene-abc",
		ParentEventID: "event-9",
		Signals:       []string{"log_error"},
		Mutation:      &state.Mutation{ID: "mut-1", Category: "repair", RiskLevel: "low"},
		Personality: &state.Personality{
			Classification: "stable",
			AllowHighRisk:  false,
			Attempts:       3,
			Successes:      2,
			Failures:       1,
		},
		BaselineUntracked: []string{"src/scratch.js"},
		ActiveTask:        &state.Task{ID: "task-7", Title: "fix flaky worker"},
	}
	require.NoError(t, state.Save(path, in))

	out := state.Load(path, zaptest.NewLogger(t))

	assert.Equal(t, "gene-abc", out.GeneID)
	assert.Equal(t, "event-9", out.ParentEventID)
	require.NotNil(t, out.Mutation)
	assert.Equal(t, "low", out.Mutation.RiskLevel)
	require.NotNil(t, out.Personality)
	assert.Equal(t, 3, out.Personality.Attempts)
	require.NotNil(t, out.ActiveTask)
	assert.Equal(t, "task-7", out.ActiveTask.ID)
}

func TestSave_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, state.Save(path, &state.CycleState{GeneID: "first"}))
	require.NoError(t, state.Save(path, &state.CycleState{GeneID: "second"}))

	st := state.Load(path, zaptest.NewLogger(t))
	assert.Equal(t, "second", st.GeneID)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
