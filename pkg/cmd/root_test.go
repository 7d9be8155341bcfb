package cmd

import (
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging(t *testing.T) {
	t.Run("debug", func(t *testing.T) {
		logger := log.New()
		setupLogging(logger, true, "", "")
		assert.Equal(t, log.DebugLevel, logger.GetLevel())
		assert.Empty(t, logger.Hooks)
	})

	t.Run("production", func(t *testing.T) {
		logger := log.New()
		setupLogging(logger, false, "production", t.TempDir())
		assert.Equal(t, log.InfoLevel, logger.GetLevel())
		assert.Len(t, logger.Hooks[log.InfoLevel], 1)
		assert.Len(t, logger.Hooks[log.ErrorLevel], 1)
	})
}

func TestRootCmd_DebugFlagAppliesAfterParsing(t *testing.T) {
	logger := log.StandardLogger()
	level := logger.GetLevel()
	defer logger.SetLevel(level)
	logger.SetLevel(log.InfoLevel)

	require.NoError(t, viper.BindPFlags(RootCmd.PersistentFlags()))
	defer RootCmd.SetArgs(nil)

	RootCmd.SetArgs([]string{"--debug", "--dotenv", filepath.Join(t.TempDir(), "missing.env"), "version"})
	require.NoError(t, RootCmd.Execute())
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	require.NoError(t, RootCmd.PersistentFlags().Set("debug", "false"))
}
