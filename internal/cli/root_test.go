package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "check-now", "simulate", "show", "export", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestVersionSkipsConfigLoading(t *testing.T) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "routecast-advisor dev")
}

func TestRunFlags(t *testing.T) {
	for _, name := range []string{"listen", "no-api"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.True(t, rootCmd.SilenceUsage)
}
