// File: internal/engine/rollback.go
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/blast"
)

// Rollback reverts a failed attempt: tracked files are hard-reset to
// HEAD and files created since the baseline are removed. Files that were
// already untracked before the attempt survive, and critical protected
// paths are never deleted even if they appear newly created.
func Rollback(ctx context.Context, logger *zap.Logger, tree blast.Tree, timeout time.Duration) error {
	log := logger.Named("rollback")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// The reset must leave untracked files in place; only the selective
	// deletion below may remove them. go-git's HardReset deletes them
	// wholesale, so the reset goes through the git binary instead.
	resetCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(resetCtx, "git", "reset", "--hard", "HEAD")
	cmd.Dir = tree.Root
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git reset --hard failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	repo, err := git.PlainOpen(tree.Root)
	if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", tree.Root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to resolve worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status after reset: %w", err)
	}

	baseline := make(map[string]bool, len(tree.BaselineUntracked))
	for _, p := range tree.BaselineUntracked {
		baseline[p] = true
	}

	removed := 0
	for path, st := range status {
		if st.Worktree != git.Untracked || baseline[path] {
			continue
		}
		if blast.IsCriticalPath(path) {
			log.Warn("Leaving newly created critical path in place.", zap.String("path", path))
			continue
		}
		if err := os.Remove(filepath.Join(tree.Root, path)); err != nil {
			log.Warn("Failed to remove created file during rollback.",
				zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	log.Info("Working tree reverted.", zap.Int("created_files_removed", removed))
	return nil
}
