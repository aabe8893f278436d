// File: internal/blast/constraints_test.go
package blast_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/blast"
)

func TestIsCriticalPath(t *testing.T) {
	assert.True(t, blast.IsCriticalPath("skills/wallet/keys.js"))
	assert.True(t, blast.IsCriticalPath("skills/common/util.js"))
	assert.True(t, blast.IsCriticalPath("USER.md"))
	assert.True(t, blast.IsCriticalPath(".env"))

	assert.False(t, blast.IsCriticalPath("skills/experimental/new.js"))
	assert.False(t, blast.IsCriticalPath("src/USER.md"))
	assert.False(t, blast.IsCriticalPath("readme.md"))
}

func TestCheck_MaxFilesExceeded(t *testing.T) {
	checker := blast.NewChecker(zaptest.NewLogger(t))
	gene := assets.Gene{Category: assets.CategoryOptimize, Constraints: assets.Constraints{MaxFiles: 2}}
	radius := blast.Radius{
		Files:           []string{"src/a.js", "src/b.js", "src/c.js"},
		AllChangedFiles: []string{"src/a.js", "src/b.js", "src/c.js"},
	}

	result := checker.Check(gene, radius, blast.Tree{Root: t.TempDir()})

	assert.False(t, result.OK)
	require.Len(t, result.Violations, 1)
	assert.Contains(t, result.Violations[0], "max_files_exceeded")
}

func TestCheck_ForbiddenPath(t *testing.T) {
	checker := blast.NewChecker(zaptest.NewLogger(t))
	gene := assets.Gene{
		Category:    assets.CategoryOptimize,
		Constraints: assets.Constraints{ForbiddenPaths: []string{"vendor/"}},
	}
	radius := blast.Radius{
		Files:           []string{"vendor/dep/code.go"},
		AllChangedFiles: []string{"vendor/dep/code.go"},
	}

	result := checker.Check(gene, radius, blast.Tree{Root: t.TempDir()})

	assert.False(t, result.OK)
	assert.Contains(t, result.Violations[0], "forbidden_path_modified")
}

func TestCheck_CriticalPathRequiresRepairIntent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills", "wallet"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "wallet", "keys.js"), []byte("ok\n"), 0o644))

	checker := blast.NewChecker(zaptest.NewLogger(t))
	radius := blast.Radius{
		Files:           []string{"skills/wallet/keys.js"},
		AllChangedFiles: []string{"skills/wallet/keys.js"},
	}
	tree := blast.Tree{Root: root}

	optimize := assets.Gene{Category: assets.CategoryOptimize}
	result := checker.Check(optimize, radius, tree)
	assert.False(t, result.OK)
	assert.Contains(t, result.Violations[0], "critical_path_modified_without_repair_intent")

	repair := assets.Gene{Category: assets.CategoryRepair}
	result = checker.Check(repair, radius, tree)
	assert.True(t, result.OK)
}

func TestDetectDestructiveChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills", "bank"), 0o755))
	// SOUL.md emptied, skills/bank/ledger.js deleted (never written).
	require.NoError(t, os.WriteFile(filepath.Join(root, "SOUL.md"), nil, 0o644))

	checker := blast.NewChecker(zaptest.NewLogger(t))
	radius := blast.Radius{
		AllChangedFiles: []string{"SOUL.md", "skills/bank/ledger.js", "src/fine.js"},
	}

	findings := checker.DetectDestructiveChanges(blast.Tree{Root: root}, radius)

	require.Len(t, findings, 2)
	assert.Contains(t, findings, "CRITICAL_FILE_EMPTIED: SOUL.md")
	assert.Contains(t, findings, "CRITICAL_FILE_DELETED: skills/bank/ledger.js")
}

func TestDetectDestructiveChanges_SkipsNewlyCreated(t *testing.T) {
	root := t.TempDir()
	checker := blast.NewChecker(zaptest.NewLogger(t))

	// A critical path that never existed before this cycle is a creation,
	// not a deletion.
	radius := blast.Radius{
		AllChangedFiles: []string{"skills/tasks/new_skill.js"},
		NewUntracked:    []string{"skills/tasks/new_skill.js"},
	}

	findings := checker.DetectDestructiveChanges(blast.Tree{Root: root}, radius)
	assert.Empty(t, findings)
}

func TestCheck_DestructiveForcesFailureEvenForRepair(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "IDENTITY.md"), nil, 0o644))

	checker := blast.NewChecker(zaptest.NewLogger(t))
	gene := assets.Gene{Category: assets.CategoryRepair}
	radius := blast.Radius{
		Files:           []string{"IDENTITY.md"},
		AllChangedFiles: []string{"IDENTITY.md"},
	}

	result := checker.Check(gene, radius, blast.Tree{Root: root})

	assert.False(t, result.OK)
	assert.Empty(t, result.Violations)
	require.Len(t, result.Destructive, 1)
	assert.Contains(t, result.Destructive[0], "CRITICAL_FILE_EMPTIED")
}
