// File: internal/corpus/watcher_test.go
package corpus_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/corpus"
)

func TestNewWatcher_RequiresPaths(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := corpus.NewWatcher(logger, config.CorpusConfig{DailyLog: "daily.log"})
	assert.Error(t, err)

	_, err = corpus.NewWatcher(logger, config.CorpusConfig{SessionTranscript: "session.log"})
	assert.Error(t, err)
}

func TestWatcher_AppendsErrorExcerpts(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.log")
	dailyPath := filepath.Join(dir, "daily.log")
	require.NoError(t, os.WriteFile(sessionPath, []byte("INFO booted\n"), 0o644))

	w, err := corpus.NewWatcher(zaptest.NewLogger(t), config.CorpusConfig{
		SessionTranscript: sessionPath,
		DailyLog:          dailyPath,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Give the tailer time to seek to the end, then append an error burst.
	time.Sleep(300 * time.Millisecond)
	f, err := os.OpenFile(sessionPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("ERROR worker crashed\n\tat worker.js:10\nINFO recovered\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Poll for the excerpt to land in the daily log.
	deadline := time.Now().Add(5 * time.Second)
	var content string
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(dailyPath)
		content = string(data)
		if strings.Contains(content, "worker crashed") {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, content, "worker crashed")
	assert.Contains(t, content, "worker.js:10")
	assert.NotContains(t, content, "recovered")
}
