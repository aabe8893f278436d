// File: cmd/cmd_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	expected := []string{"solidify", "signals", "history", "tasks", "watch"}
	for _, name := range expected {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, "subcommand %q not found", name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSolidifyFlags(t *testing.T) {
	dryRun := solidifyCmd.Flags().Lookup("dry-run")
	require.NotNil(t, dryRun)
	assert.Equal(t, "false", dryRun.DefValue)

	intent := solidifyCmd.Flags().Lookup("intent-source")
	require.NotNil(t, intent)
	assert.Equal(t, "state", intent.DefValue)

	for _, name := range []string{"repo", "state"} {
		assert.NotNil(t, solidifyCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}

func TestTasksSubcommands(t *testing.T) {
	for _, name := range []string{"claim", "complete"} {
		cmd, _, err := rootCmd.Find([]string{"tasks", name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestTasksClaimRequiresArg(t *testing.T) {
	err := tasksClaimCmd.Args(tasksClaimCmd, []string{})
	assert.Error(t, err)

	err = tasksClaimCmd.Args(tasksClaimCmd, []string{"task-1"})
	assert.NoError(t, err)

	err = tasksCompleteCmd.Args(tasksCompleteCmd, []string{"task-1"})
	assert.Error(t, err)

	err = tasksCompleteCmd.Args(tasksCompleteCmd, []string{"task-1", "sha256:abc"})
	assert.NoError(t, err)
}
