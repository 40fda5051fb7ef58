package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"score", "validate", "train", "serve", "status", "coeffs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ecoscore", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestScoreCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"input", "material", "transport", "origin", "weight", "save"} {
		flag := scoreCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "score should have --%s flag", flagName)
	}

	format := scoreCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)
}

func TestTrainCommand_Flags(t *testing.T) {
	flag := trainCmd.Flags().Lookup("corpus")
	require.NotNil(t, flag, "train command should have --corpus flag")

	save := trainCmd.Flags().Lookup("save")
	require.NotNil(t, save)
	assert.Equal(t, "true", save.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("lookback")
	require.NotNil(t, flag, "status command should have --lookback flag")
}
