// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
)

var (
	cfgFile string
	appCfg  config.Interface
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crucible-cli",
	Short: "Crucible solidifies agent self-evolution cycles into auditable assets.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// This function runs before any command, setting up config and logging.
		cfg, err := config.Load(cfgFile)
		if err != nil {
			// Initialize a fallback logger if config loading fails
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "crucible-cli"})
			return fmt.Errorf("failed to load config: %w", err)
		}
		appCfg = cfg

		observability.InitializeLogger(cfg.Logger())
		observability.GetLogger().Debug("Starting crucible-cli", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		// Use the logger if available, otherwise fallback to stderr
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
