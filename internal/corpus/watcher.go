// File: internal/corpus/watcher.go
package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/config"
)

var (
	errorLineRegex = regexp.MustCompile(`(?i)("level":"(error|panic|fatal)"|\bpanic:|\[ERROR\]|\bERROR\b)`)
	newEntryRegex  = regexp.MustCompile(`^(\d{4}[-/]\d{2}[-/]\d{2}|\{.*"ts":|INFO|WARN|ERROR|DEBUG|panic:)`)
)

// Watcher tails the session transcript and appends error and panic
// excerpts to the daily log, keeping it fresh as extraction input
// without re-reading the whole transcript each cycle.
type Watcher struct {
	logger     *zap.Logger
	sourcePath string
	dailyPath  string
}

// NewWatcher builds a Watcher from the corpus configuration. The
// session transcript must be configured.
func NewWatcher(logger *zap.Logger, cfg config.CorpusConfig) (*Watcher, error) {
	if cfg.SessionTranscript == "" {
		return nil, fmt.Errorf("corpus.session_transcript must be configured for watching")
	}
	if cfg.DailyLog == "" {
		return nil, fmt.Errorf("corpus.daily_log must be configured for watching")
	}
	return &Watcher{
		logger:     logger.Named("corpus-watcher"),
		sourcePath: cfg.SessionTranscript,
		dailyPath:  cfg.DailyLog,
	}, nil
}

// Start tails the transcript from its current end and blocks until the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Watching session transcript for error excerpts.",
		zap.String("source", w.sourcePath),
		zap.String("daily_log", w.dailyPath),
	)

	t, err := tail.TailFile(w.sourcePath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail session transcript: %w", err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	// Excerpt buffering mirrors multi-line stack traces: an error line
	// opens an excerpt, continuation lines extend it, and either a new
	// distinct entry or a quiet period closes it.
	var excerpt []string
	flushTimer := time.NewTimer(200 * time.Millisecond)
	if !flushTimer.Stop() {
		<-flushTimer.C
	}

	flush := func() {
		if len(excerpt) == 0 {
			return
		}
		if err := w.appendExcerpt(excerpt); err != nil {
			w.logger.Warn("Failed to append excerpt to daily log.", zap.Error(err))
		}
		excerpt = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			w.logger.Info("Stopping corpus watcher.")
			return nil

		case line, ok := <-t.Lines:
			if !ok {
				flush()
				return nil
			}
			if line.Err != nil {
				w.logger.Warn("Error reading from transcript.", zap.Error(line.Err))
				continue
			}

			text := line.Text
			if len(excerpt) > 0 && newEntryRegex.MatchString(text) && !errorLineRegex.MatchString(text) {
				flush()
				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}
			}

			switch {
			case errorLineRegex.MatchString(text):
				excerpt = append(excerpt, text)
				flushTimer.Reset(200 * time.Millisecond)
			case len(excerpt) > 0:
				excerpt = append(excerpt, text)
				flushTimer.Reset(200 * time.Millisecond)
			}

		case <-flushTimer.C:
			flush()
		}
	}
}

// appendExcerpt writes one timestamped excerpt block to the daily log.
func (w *Watcher) appendExcerpt(lines []string) error {
	if err := os.MkdirAll(filepath.Dir(w.dailyPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.dailyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	stamp := time.Now().UTC().Format(time.RFC3339)
	block := fmt.Sprintf("--- excerpt %s ---\n%s\n", stamp, strings.Join(lines, "\n"))
	_, err = f.WriteString(block)
	return err
}
