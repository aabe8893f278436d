// File: cmd/tasks.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/hub"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
	"github.com/xkilldash9x/crucible-cli/internal/state"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List open tasks on the collaborator hub.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := hubClientFromConfig()
		if err != nil {
			return err
		}
		tasks, _ := client.FetchTasks(cmd.Context())

		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	},
}

var tasksClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim a hub task and record it for the next solidification.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		client, err := hubClientFromConfig()
		if err != nil {
			return err
		}

		taskID := args[0]
		if !client.ClaimTask(cmd.Context(), taskID) {
			return fmt.Errorf("hub refused claim for task %s", taskID)
		}

		// Carry the claim into the next cycle so a committed capsule can
		// report the task as complete.
		stateFile := appCfg.Engine().StateFile
		st := state.Load(stateFile, logger)
		st.ActiveTask = &state.Task{ID: taskID}
		if err := state.Save(stateFile, st); err != nil {
			return fmt.Errorf("claimed task but failed to record it: %w", err)
		}

		logger.Info("Task claimed.", zap.String("task_id", taskID))
		return nil
	},
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <task-id> <asset-id>",
	Short: "Report a claimed task as resolved by a ledger asset.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		client, err := hubClientFromConfig()
		if err != nil {
			return err
		}

		taskID, assetID := args[0], args[1]
		if !client.CompleteTask(cmd.Context(), taskID, assetID) {
			return fmt.Errorf("hub did not accept completion of task %s", taskID)
		}

		// Drop the recorded claim so the next cycle does not re-report it.
		stateFile := appCfg.Engine().StateFile
		st := state.Load(stateFile, logger)
		if st.ActiveTask != nil && st.ActiveTask.ID == taskID {
			st.ActiveTask = nil
			if err := state.Save(stateFile, st); err != nil {
				return fmt.Errorf("task completed but failed to clear the claim: %w", err)
			}
		}

		logger.Info("Task completed.", zap.String("task_id", taskID), zap.String("asset_id", assetID))
		return nil
	},
}

func hubClientFromConfig() (hub.Client, error) {
	if appCfg.Hub().BaseURL == "" {
		return nil, fmt.Errorf("hub.base_url is not configured")
	}
	return hub.New(appCfg.Hub(), observability.GetLogger()), nil
}

func init() {
	tasksCmd.AddCommand(tasksClaimCmd)
	tasksCmd.AddCommand(tasksCompleteCmd)
	rootCmd.AddCommand(tasksCmd)
}
