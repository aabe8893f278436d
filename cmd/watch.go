// File: cmd/watch.go
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/crucible-cli/internal/corpus"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the session transcript and feed error excerpts to the daily log.",
	Long: `Watch follows the configured session transcript and appends error and
panic excerpts to the daily log, keeping the extraction corpus fresh
between solidification cycles. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		watcher, err := corpus.NewWatcher(logger, appCfg.Corpus())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return watcher.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
