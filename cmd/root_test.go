package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootLeavesErrorReportingToMain(t *testing.T) {
	assert.True(t, rootCmd.SilenceErrors)
	assert.True(t, rootCmd.SilenceUsage)
}
