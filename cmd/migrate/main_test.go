package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCommandPrintsDDL(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"schema"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "campaign_runs")
	assert.Contains(t, out.String(), "send_results")
}
