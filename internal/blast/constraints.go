// File: internal/blast/constraints.go
package blast

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
)

// CriticalProtectedPaths is the fixed list of collaborator skill
// directories and root identity/configuration files the engine must
// never delete or empty. It is hardcoded on purpose: gene-declared
// forbidden_paths are author-controlled and cannot be trusted alone.
// Entries ending in "/" protect a whole directory.
var CriticalProtectedPaths = []string{
	"skills/common/",
	"skills/wallet/",
	"skills/bank/",
	"skills/tasks/",
	"USER.md",
	"IDENTITY.md",
	"SOUL.md",
	"AGENTS.md",
	"config.yaml",
	".env",
}

// IsCriticalPath reports whether a repo-relative path is protected.
func IsCriticalPath(rel string) bool {
	rel = strings.ReplaceAll(rel, "\\", "/")
	for _, p := range CriticalProtectedPaths {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(rel, p) {
				return true
			}
		} else if rel == p {
			return true
		}
	}
	return false
}

// CheckResult aggregates constraint and destructive-change findings.
// Destructive findings force failure regardless of gene constraints.
type CheckResult struct {
	OK          bool     `json:"ok"`
	Violations  []string `json:"violations,omitempty"`
	Destructive []string `json:"destructive,omitempty"`
}

// Checker evaluates gene-declared constraints and the always-on
// destructive-change detection.
type Checker struct {
	logger *zap.Logger
}

// NewChecker returns a Checker.
func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{logger: logger.Named("constraints")}
}

// Check evaluates the measured radius against the gene's constraints and
// the critical-path protections.
func (c *Checker) Check(gene assets.Gene, radius Radius, tree Tree) CheckResult {
	result := CheckResult{}

	if gene.Constraints.MaxFiles > 0 && len(radius.Files) > gene.Constraints.MaxFiles {
		result.Violations = append(result.Violations,
			fmt.Sprintf("max_files_exceeded: %d > %d", len(radius.Files), gene.Constraints.MaxFiles))
	}

	for _, path := range radius.AllChangedFiles {
		for _, forbidden := range gene.Constraints.ForbiddenPaths {
			if path == forbidden || strings.HasPrefix(path, strings.TrimSuffix(forbidden, "/")+"/") {
				result.Violations = append(result.Violations,
					fmt.Sprintf("forbidden_path_modified: %s", path))
				break
			}
		}
		if IsCriticalPath(path) && gene.Category != assets.CategoryRepair {
			result.Violations = append(result.Violations,
				fmt.Sprintf("critical_path_modified_without_repair_intent: %s", path))
		}
	}

	result.Destructive = c.DetectDestructiveChanges(tree, radius)
	result.OK = len(result.Violations) == 0 && len(result.Destructive) == 0

	if !result.OK {
		c.logger.Warn("Constraint check failed.",
			zap.Strings("violations", result.Violations),
			zap.Strings("destructive", result.Destructive),
		)
	}
	return result
}

// DetectDestructiveChanges inspects every changed critical path that
// existed before the baseline. A missing file is a deletion; a
// zero-length file is an emptied one. This check runs independently of
// gene-declared constraints.
func (c *Checker) DetectDestructiveChanges(tree Tree, radius Radius) []string {
	newlyCreated := make(map[string]bool, len(radius.NewUntracked))
	for _, p := range radius.NewUntracked {
		newlyCreated[p] = true
	}

	var findings []string
	for _, path := range radius.AllChangedFiles {
		if !IsCriticalPath(path) || newlyCreated[path] {
			continue
		}
		info, err := os.Stat(filepath.Join(tree.Root, path))
		if err != nil {
			if os.IsNotExist(err) {
				findings = append(findings, "CRITICAL_FILE_DELETED: "+path)
			}
			continue
		}
		if info.Size() == 0 {
			findings = append(findings, "CRITICAL_FILE_EMPTIED: "+path)
		}
	}
	return findings
}
