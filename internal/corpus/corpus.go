// File: internal/corpus/corpus.go

// Package corpus assembles the raw text the signal extractor reads:
// the session transcript, the daily activity log and the memory and
// user context snippets. A missing memory snippet is recorded in the
// corpus itself so downstream analysis can surface it.
package corpus

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// MissingMemoryMarker is injected into the corpus when the memory
// snippet file cannot be read.
const MissingMemoryMarker = "[memory file missing]"

// maxSourceBytes bounds how much of a single source file is included.
// Only the tail is kept; recent lines carry the actionable signal.
const maxSourceBytes = 256 * 1024

// Collector reads the configured sources into one analysis corpus.
type Collector struct {
	logger *zap.Logger
	cfg    config.CorpusConfig
}

// NewCollector returns a Collector for the configured sources.
func NewCollector(logger *zap.Logger, cfg config.CorpusConfig) *Collector {
	return &Collector{logger: logger.Named("corpus"), cfg: cfg}
}

// Collect concatenates the four sources under section headers. Sources
// that are missing or unreadable contribute an empty section, except
// the memory snippet, whose absence is marked in the text.
func (c *Collector) Collect() string {
	var b strings.Builder

	b.WriteString("=== session transcript ===\n")
	b.WriteString(c.readTail(c.cfg.SessionTranscript))
	b.WriteString("\n=== daily log ===\n")
	b.WriteString(c.readTail(c.cfg.DailyLog))

	b.WriteString("\n=== memory ===\n")
	memory, ok := c.read(c.cfg.MemorySnippet)
	if !ok {
		b.WriteString(MissingMemoryMarker + "\n")
	} else {
		b.WriteString(memory)
	}

	b.WriteString("\n=== user context ===\n")
	user, _ := c.read(c.cfg.UserSnippet)
	b.WriteString(user)

	return b.String()
}

// read returns the file contents and whether the file was readable.
func (c *Collector) read(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to read corpus source.", zap.String("path", path), zap.Error(err))
		}
		return "", false
	}
	return string(data), true
}

// readTail returns the file contents bounded to the trailing
// maxSourceBytes, cut at a line boundary.
func (c *Collector) readTail(path string) string {
	data, ok := c.read(path)
	if !ok {
		return ""
	}
	if len(data) <= maxSourceBytes {
		return data
	}
	tail := data[len(data)-maxSourceBytes:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return tail
}
