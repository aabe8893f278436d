// File: internal/validation/runner_test.go
package validation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/validation"
)

func TestVetCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		blocked bool
	}{
		{"allowed go test", "go test ./...", false},
		{"allowed npm", "npm test", false},
		{"allowed pytest", "pytest -x tests/", false},
		{"allowed node with quoted semicolon", `node -e "console.log('a;b')"`, false},
		{"empty", "   ", true},
		{"disallowed head rm", "rm -rf /", true},
		{"disallowed head curl", "curl http://evil.example", true},
		{"subshell", "go test $(cat cmds)", true},
		{"backtick", "go test `cat cmds`", true},
		{"chained", "go test; rm -rf /", true},
		{"piped", "go test | tee out", true},
		{"redirect", "go test > /etc/passwd", true},
		{"background", "npm test & rm x", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason := validation.VetCommand(tc.command)
			if tc.blocked {
				assert.NotEmpty(t, reason, "expected %q to be blocked", tc.command)
			} else {
				assert.Empty(t, reason, "expected %q to pass, got %q", tc.command, reason)
			}
		})
	}
}

func TestRun_BlockedCommandNeverSpawns(t *testing.T) {
	r := validation.NewRunner(zaptest.NewLogger(t), t.TempDir(), 5*time.Second, "env-test")

	report := r.Run(context.Background(), []string{"rm -rf /"})

	assert.False(t, report.OK)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.True(t, res.Blocked)
	assert.Contains(t, res.Reason, "BLOCKED")
	assert.Empty(t, res.Output)
	assert.Zero(t, res.DurationMS)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	r := validation.NewRunner(zaptest.NewLogger(t), t.TempDir(), 5*time.Second, "env-test")

	// The first command is blocked; the second must never run.
	report := r.Run(context.Background(), []string{"curl http://example.com", "go version"})

	assert.False(t, report.OK)
	assert.Len(t, report.Results, 1)
}

func TestRun_EmptyCommandList(t *testing.T) {
	r := validation.NewRunner(zaptest.NewLogger(t), t.TempDir(), 5*time.Second, "env-test")

	report := r.Run(context.Background(), nil)

	assert.True(t, report.OK)
	assert.Empty(t, report.Results)
	assert.Equal(t, assets.SchemaVersion, report.Schema)
	assert.Equal(t, "env-test", report.EnvFingerprint)
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_FreshReportIDPerRun(t *testing.T) {
	r := validation.NewRunner(zaptest.NewLogger(t), t.TempDir(), 5*time.Second, "env-test")

	first := r.Run(context.Background(), nil)
	second := r.Run(context.Background(), nil)

	assert.NotEqual(t, first.ID, second.ID)
}
