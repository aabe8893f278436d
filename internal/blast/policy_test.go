// File: internal/blast/policy_test.go
package blast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/crucible-cli/internal/blast"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

func TestPolicy_Defaults(t *testing.T) {
	p := blast.DefaultPolicy()

	tests := []struct {
		path    string
		counted bool
	}{
		{"skills/wallet/handler.js", true},
		{"src/index.ts", true},
		{"internal/engine/engine.go", true},
		{"USER.md", true},
		{"notes.md", true},
		{"config.yaml", true},
		{"node_modules/left-pad/index.js", false},
		{".git/HEAD", false},
		{".crucible/state.json", false},
		{"logs/session.log", false},
		{"debug.log", false},
		{"editor_backup.go~", false},
		{"package-lock.json", false},
		{"go.sum", false},
		{"random.bin", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.counted, p.Counted(tc.path), "path %q", tc.path)
	}
}

func TestPolicy_IgnoreBeatsCount(t *testing.T) {
	p := blast.DefaultPolicy()

	// Inside a counted prefix but matching an ignore rule.
	assert.False(t, p.Counted("src/server.log"))
	assert.False(t, p.Counted("skills/common/go.sum"))
}

func TestPolicy_ExtendIsAdditive(t *testing.T) {
	p := blast.DefaultPolicy()
	p.Extend(config.PolicyConfig{
		IgnorePrefixes:  []string{"generated/"},
		CountPrefixes:   []string{"plugins/"},
		CountExtensions: []string{"rs", ".toml"},
	})

	assert.False(t, p.Counted("generated/schema.go"))
	assert.True(t, p.Counted("plugins/hello.bin"))
	assert.True(t, p.Counted("main.rs"))
	assert.True(t, p.Counted("Cargo.toml"))

	// Defaults survive extension.
	assert.True(t, p.Counted("internal/x.go"))
	assert.False(t, p.Counted("node_modules/x.js"))
}
