// File: cmd/signals.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/corpus"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
	"github.com/xkilldash9x/crucible-cli/internal/signals"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Extract and print the current signal list without acting on it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		ctx := cmd.Context()

		store, cleanup, err := assets.Open(ctx, appCfg.Store(), logger)
		if err != nil {
			return fmt.Errorf("failed to open asset store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}

		events, err := store.Events(ctx)
		if err != nil {
			return fmt.Errorf("failed to load event history: %w", err)
		}
		history := signals.Analyze(events)

		collector := corpus.NewCollector(logger, appCfg.Corpus())
		extracted := signals.NewExtractor(logger).Extract(collector.Collect(), history)

		out := struct {
			Signals    []string       `json:"signals"`
			Suppressed map[string]int `json:"suppressed_keys,omitempty"`
		}{Signals: extracted, Suppressed: history.SuppressedSignalKeys}

		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}
