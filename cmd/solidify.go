// File: cmd/solidify.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/engine"
	"github.com/xkilldash9x/crucible-cli/internal/hub"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
)

var (
	solidifyDryRun       bool
	solidifyIntentSource string
	solidifyRepo         string
	solidifyState        string
)

// engineOverrides layers per-invocation flag values over the loaded
// configuration without mutating it.
type engineOverrides struct {
	config.Interface
	repoRoot  string
	stateFile string
}

func (o *engineOverrides) Engine() config.EngineConfig {
	ec := o.Interface.Engine()
	if o.repoRoot != "" {
		ec.RepoRoot = o.repoRoot
	}
	if o.stateFile != "" {
		ec.StateFile = o.stateFile
	}
	return ec
}

var solidifyCmd = &cobra.Command{
	Use:   "solidify",
	Short: "Run one solidification transaction over the working tree.",
	Long: `Solidify evaluates the current working tree against the recorded
baseline: it extracts signals, resolves a strategy gene, measures the
blast radius, enforces constraints, runs the gene's validation commands
and then either commits the outcome to the asset ledger or reverts the
tree. With --dry-run the full evaluation runs but nothing is persisted
and the tree is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		ctx := cmd.Context()

		if solidifyIntentSource != "state" && solidifyIntentSource != "corpus" {
			return fmt.Errorf("invalid --intent-source %q (want state or corpus)", solidifyIntentSource)
		}

		cfg := config.Interface(&engineOverrides{
			Interface: appCfg,
			repoRoot:  solidifyRepo,
			stateFile: solidifyState,
		})

		store, cleanup, err := assets.Open(ctx, cfg.Store(), logger)
		if err != nil {
			return fmt.Errorf("failed to open asset store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}

		var hubClient hub.Client
		if cfg.Hub().BaseURL != "" {
			hubClient = hub.New(cfg.Hub(), logger)
		}

		eng := engine.New(logger, cfg, store, hubClient)
		result, err := eng.Solidify(ctx, engine.Options{
			DryRun:       solidifyDryRun,
			FreshSignals: solidifyIntentSource == "corpus",
		})
		if err != nil {
			return err
		}

		logger.Info("Solidify finished.",
			zap.Bool("dry_run", result.DryRun),
			zap.String("status", string(result.Event.Outcome.Status)),
			zap.Bool("rolled_back", result.RolledBack),
		)

		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	solidifyCmd.Flags().BoolVar(&solidifyDryRun, "dry-run", false, "evaluate without persisting or reverting anything")
	solidifyCmd.Flags().StringVar(&solidifyIntentSource, "intent-source", "state", "where to take signals from: state reuses the prior cycle's extraction, corpus forces a fresh one")
	solidifyCmd.Flags().StringVar(&solidifyRepo, "repo", "", "override the configured repository root")
	solidifyCmd.Flags().StringVar(&solidifyState, "state", "", "override the configured cycle state file")
	rootCmd.AddCommand(solidifyCmd)
}
