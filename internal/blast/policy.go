// File: internal/blast/policy.go
package blast

import (
	"path"
	"regexp"
	"strings"

	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// PathPolicy classifies changed paths as counted or ignored. The
// hardcoded defaults always apply; configuration extends them but can
// never remove an ignore rule.
type PathPolicy struct {
	ignorePrefixes []string
	ignoreNames    map[string]bool
	ignoreRegexps  []*regexp.Regexp

	countPrefixes   []string
	countNames      map[string]bool
	countExtensions map[string]bool
}

// DefaultPolicy returns the built-in counted-path policy.
func DefaultPolicy() *PathPolicy {
	return &PathPolicy{
		ignorePrefixes: []string{
			".git/", ".crucible/", "node_modules/", "logs/", "tmp/",
			".cache/", "dist/", "build/", "coverage/",
		},
		ignoreNames: map[string]bool{
			".DS_Store":         true,
			"package-lock.json": true,
			"yarn.lock":         true,
			"go.sum":            true,
		},
		ignoreRegexps: []*regexp.Regexp{
			regexp.MustCompile(`\.log$`),
			regexp.MustCompile(`\.tmp$`),
			regexp.MustCompile(`~$`),
		},
		countPrefixes: []string{
			"skills/", "src/", "lib/", "internal/", "cmd/", "scripts/",
		},
		countNames: map[string]bool{
			"USER.md":     true,
			"IDENTITY.md": true,
			"SOUL.md":     true,
			"config.yaml": true,
			"go.mod":      true,
			"package.json": true,
		},
		countExtensions: map[string]bool{
			".go": true, ".js": true, ".ts": true, ".py": true,
			".json": true, ".md": true, ".sh": true,
			".yaml": true, ".yml": true,
		},
	}
}

// Extend adds configuration-supplied rules on top of the defaults.
func (p *PathPolicy) Extend(cfg config.PolicyConfig) {
	p.ignorePrefixes = append(p.ignorePrefixes, cfg.IgnorePrefixes...)
	for _, n := range cfg.IgnoreNames {
		p.ignoreNames[n] = true
	}
	p.countPrefixes = append(p.countPrefixes, cfg.CountPrefixes...)
	for _, ext := range cfg.CountExtensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.countExtensions[ext] = true
	}
}

// Counted reports whether a path participates in the blast radius.
// Ignore rules win over count rules; a path matching neither is ignored.
func (p *PathPolicy) Counted(rel string) bool {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))

	for _, prefix := range p.ignorePrefixes {
		if strings.HasPrefix(rel, prefix) {
			return false
		}
	}
	base := path.Base(rel)
	if p.ignoreNames[base] {
		return false
	}
	for _, re := range p.ignoreRegexps {
		if re.MatchString(rel) {
			return false
		}
	}

	if p.countNames[base] {
		return true
	}
	for _, prefix := range p.countPrefixes {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return p.countExtensions[path.Ext(rel)]
}
