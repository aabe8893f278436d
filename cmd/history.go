// File: cmd/history.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
	"github.com/xkilldash9x/crucible-cli/internal/signals"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the trailing audit-trail events and a history analysis.",
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

		out := struct {
			Events   []assets.Event   `json:"events"`
			Analysis signals.Analysis `json:"analysis"`
		}{
			Events:   assets.TailEvents(events, historyLimit),
			Analysis: signals.Analyze(events),
		}

		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of trailing events to print")
	rootCmd.AddCommand(historyCmd)
}
