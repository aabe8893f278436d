// File: internal/blast/radius.go

// Package blast measures the file/line size of an already-applied edit
// against a recorded baseline and enforces the safety constraints that
// gate solidification. The working tree root and the baseline untracked
// list are always explicit parameters; nothing here relies on the
// process working directory.
package blast

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
)

// Tree identifies the working tree under measurement: its root and the
// untracked files that were already present before the edit began.
type Tree struct {
	Root              string
	BaselineUntracked []string
}

// baselineSet returns the baseline untracked paths as a lookup set.
func (t Tree) baselineSet() map[string]bool {
	set := make(map[string]bool, len(t.BaselineUntracked))
	for _, p := range t.BaselineUntracked {
		set[p] = true
	}
	return set
}

// Radius is the measured change. Files and Lines cover counted paths
// only; AllChangedFiles and IgnoredFiles are diagnostic supersets.
type Radius struct {
	Files           []string `json:"files"`
	Lines           int      `json:"lines"`
	NewUntracked    []string `json:"new_untracked,omitempty"`
	IgnoredFiles    []string `json:"ignored_files,omitempty"`
	AllChangedFiles []string `json:"all_changed_files,omitempty"`
}

// BlastRadius converts to the persisted ledger shape.
func (r Radius) BlastRadius() assets.BlastRadius {
	return assets.BlastRadius{Files: len(r.Files), Lines: r.Lines}
}

// Measurer computes blast radii for a working tree.
type Measurer struct {
	logger  *zap.Logger
	policy  *PathPolicy
	timeout time.Duration
}

// NewMeasurer builds a Measurer with the given path policy and a
// per-subprocess timeout.
func NewMeasurer(logger *zap.Logger, policy *PathPolicy, timeout time.Duration) *Measurer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Measurer{logger: logger.Named("blast"), policy: policy, timeout: timeout}
}

// Measure computes the diff of the working tree against HEAD plus newly
// untracked files relative to the baseline.
func (m *Measurer) Measure(ctx context.Context, tree Tree) (Radius, error) {
	repo, err := git.PlainOpen(tree.Root)
	if err != nil {
		return Radius{}, fmt.Errorf("failed to open repository at %s: %w", tree.Root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return Radius{}, fmt.Errorf("failed to resolve worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return Radius{}, fmt.Errorf("failed to read worktree status: %w", err)
	}

	baseline := tree.baselineSet()
	changed := make(map[string]bool)
	newUntracked := make(map[string]bool)

	for path, st := range status {
		if st.Worktree == git.Untracked {
			if !baseline[path] {
				newUntracked[path] = true
				changed[path] = true
			}
			continue
		}
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			changed[path] = true
		}
	}

	r := Radius{}
	for path := range changed {
		r.AllChangedFiles = append(r.AllChangedFiles, path)
		if m.policy.Counted(path) {
			r.Files = append(r.Files, path)
		} else {
			r.IgnoredFiles = append(r.IgnoredFiles, path)
		}
	}
	for path := range newUntracked {
		r.NewUntracked = append(r.NewUntracked, path)
	}
	sort.Strings(r.Files)
	sort.Strings(r.IgnoredFiles)
	sort.Strings(r.AllChangedFiles)
	sort.Strings(r.NewUntracked)

	counted := make(map[string]bool, len(r.Files))
	for _, p := range r.Files {
		counted[p] = true
	}

	// Lines: unstaged + staged diffs for counted tracked paths, plus the
	// full line count of newly created counted files.
	for _, args := range [][]string{
		{"diff", "--numstat"},
		{"diff", "--cached", "--numstat"},
	} {
		lines, err := m.gitNumstat(ctx, tree.Root, args, counted)
		if err != nil {
			return Radius{}, err
		}
		r.Lines += lines
	}
	for path := range newUntracked {
		if !counted[path] {
			continue
		}
		n, err := countFileLines(tree.Root + "/" + path)
		if err != nil {
			m.logger.Warn("Failed to count lines of new file.", zap.String("path", path), zap.Error(err))
			continue
		}
		r.Lines += n
	}

	m.logger.Debug("Blast radius measured.",
		zap.Int("files", len(r.Files)),
		zap.Int("lines", r.Lines),
		zap.Int("ignored", len(r.IgnoredFiles)),
	)
	return r, nil
}

// gitNumstat shells out to git and sums added+deleted lines for counted
// paths. The subprocess is bounded by the measurer timeout.
func (m *Measurer) gitNumstat(ctx context.Context, root string, args []string, counted map[string]bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}

	total := 0
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 3)
		if len(fields) != 3 || !counted[fields[2]] {
			continue
		}
		// Binary files report "-"; they count as zero lines.
		added, _ := strconv.Atoi(fields[0])
		deleted, _ := strconv.Atoi(fields[1])
		total += added + deleted
	}
	return total, scanner.Err()
}

// countFileLines counts newline-terminated lines in a file.
func countFileLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n, nil
}
