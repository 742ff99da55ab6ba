package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/cdcpipe/internal/lock"
)

func TestRunCommandStructure(t *testing.T) {
	assert.NotNil(t, runCmd)
	assert.Equal(t, "run", runCmd.Use)
	assert.NotEmpty(t, runCmd.Short)
	assert.NotEmpty(t, runCmd.Long)
	assert.NotNil(t, runCmd.RunE)
	assert.True(t, runCmd.SilenceUsage)
}

func TestRunCommandFlags(t *testing.T) {
	forceFlag, err := runCmd.Flags().GetBool("force")
	assert.NoError(t, err)
	assert.False(t, forceFlag)
}

func TestRunIsAddedToRoot(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "run" {
			found = true
			break
		}
	}
	assert.True(t, found, "run command should be added to root command")
}

func TestRunCommandExample(t *testing.T) {
	assert.Contains(t, runCmd.Long, "Example:")
	assert.Contains(t, runCmd.Long, "cdcpipe run")
	assert.Contains(t, runCmd.Long, "exits 1")
}

func TestRunPipeline_ScheduleLocked(t *testing.T) {
	lockDir := writeConfig(t, "")

	held := lock.NewScheduleLock(lockDir, "nightly")
	acquired, err := held.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	defer func() { _, _ = held.ReleaseLock() }()

	err = runPipeline(runCmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lock.ErrLockTimeout))
	assert.Contains(t, err.Error(), "schedule 'nightly' is already running (use --force to override)")
}

func TestRunPipeline_InvalidConfig(t *testing.T) {
	writeConfig(t, "source:\n  enabled: true\n  dsn: \"\"\n  replication_slot: \"\"\n")
	t.Setenv("CDC_SOURCE_DSN", "")

	err := runPipeline(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.dsn")
}
