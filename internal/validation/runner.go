// File: internal/validation/runner.go

// Package validation executes a gene's declared verification commands
// under a strict safety gate. Commands are run sequentially, stopping at
// the first failure; a command rejected by the gate is reported as
// BLOCKED and never spawns a process.
package validation

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
)

// allowedPrefixes are the only invocation heads a validation command may
// start with. Everything else is blocked outright.
var allowedPrefixes = []string{"node", "npm", "npx", "go", "python3", "pytest"}

// shellMetaChars are rejected outside quoted string literals. Since they
// are banned, commands can be executed directly without a shell.
const shellMetaChars = ";&|><"

// Runner executes validation commands inside a working tree.
type Runner struct {
	logger  *zap.Logger
	root    string
	timeout time.Duration
	envFP   string
}

// NewRunner builds a Runner rooted at the working tree. envFingerprint
// is recorded on every report.
func NewRunner(logger *zap.Logger, root string, timeout time.Duration, envFingerprint string) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{
		logger:  logger.Named("validation"),
		root:    root,
		timeout: timeout,
		envFP:   envFingerprint,
	}
}

// VetCommand applies the safety gate. It returns a non-empty reason when
// the command must not be executed.
func VetCommand(command string) string {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "empty command"
	}

	head := strings.Fields(trimmed)[0]
	allowed := false
	for _, prefix := range allowedPrefixes {
		if head == prefix {
			allowed = true
			break
		}
	}
	if !allowed {
		return "invocation prefix not allow-listed: " + head
	}

	if strings.Contains(trimmed, "$(") || strings.Contains(trimmed, "`") {
		return "subshell substitution is not permitted"
	}

	if i := strings.IndexAny(stripQuoted(trimmed), shellMetaChars); i >= 0 {
		return "shell metacharacters are not permitted"
	}
	return ""
}

// stripQuoted blanks out single- and double-quoted string literals so
// metacharacter scanning only sees the command structure.
func stripQuoted(s string) string {
	out := []rune(s)
	var quote rune
	for i, r := range out {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			out[i] = ' '
		case r == '\'' || r == '"':
			quote = r
			out[i] = ' '
		}
	}
	return string(out)
}

// Run executes the declared commands and returns an aggregate report.
// The report id is fresh per run; callers persist it alongside the event.
func (r *Runner) Run(ctx context.Context, commands []string) assets.ValidationReport {
	report := assets.ValidationReport{
		Schema:         assets.SchemaVersion,
		ID:             uuid.New().String(),
		OK:             true,
		EnvFingerprint: r.envFP,
		StartedAt:      time.Now().UTC(),
	}

	for _, command := range commands {
		result := r.runOne(ctx, command)
		report.Results = append(report.Results, result)
		if !result.OK {
			report.OK = false
			break // stop at first failure
		}
	}

	report.FinishedAt = time.Now().UTC()
	r.logger.Info("Validation run finished.",
		zap.Bool("ok", report.OK),
		zap.Int("commands", len(report.Results)),
	)
	return report
}

func (r *Runner) runOne(ctx context.Context, command string) assets.CommandResult {
	if reason := VetCommand(command); reason != "" {
		r.logger.Warn("Validation command blocked.",
			zap.String("command", command),
			zap.String("reason", reason),
		)
		return assets.CommandResult{
			Command: command,
			Blocked: true,
			Reason:  "BLOCKED: " + reason,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields := strings.Fields(command)
	started := time.Now()
	// Metacharacters are banned by the gate, so no shell is involved.
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = r.root
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(started)

	result := assets.CommandResult{
		Command:    command,
		OK:         err == nil,
		Output:     truncateOutput(string(output)),
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Reason = "timeout after " + r.timeout.String()
		} else {
			result.Reason = err.Error()
		}
	}
	return result
}

// truncateOutput bounds captured output so one chatty command cannot
// bloat the report log.
func truncateOutput(s string) string {
	const max = 8 * 1024
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}
