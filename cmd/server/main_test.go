package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"seed"},
		{"sweep"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestMigrateDown_RejectsBadSteps(t *testing.T) {
	err := migrateDownCmd.RunE(migrateDownCmd, []string{"two"})
	assert.ErrorContains(t, err, "invalid steps")
}

func TestSeed_RequiresFile(t *testing.T) {
	assert.Error(t, seedCmd.Args(seedCmd, nil))
	assert.NoError(t, seedCmd.Args(seedCmd, []string{"agreements.yaml"}))
}
