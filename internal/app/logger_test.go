package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureLoggingDefaults(t *testing.T) {
	require.NoError(t, ConfigureLogging("", ""))
	require.NoError(t, ConfigureLogging("debug", "console"))
}
