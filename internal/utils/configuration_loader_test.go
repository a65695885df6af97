package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/policytools/policymig/internal/utils"
)

type loaderTestConfiguration struct {
	Common loaderTestCommonSection `mapstructure:"common"`
}

type loaderTestCommonSection struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func TestLoadConfigurationAppliesDefaults(testInstance *testing.T) {
	loader := utils.NewConfigurationLoader("config", "yaml", "POLICYMIG", []string{testInstance.TempDir()})

	defaults := map[string]any{
		"common.log_level":  "info",
		"common.log_format": "structured",
	}

	var configuration loaderTestConfiguration
	metadata, loadError := loader.LoadConfiguration("", defaults, &configuration)
	require.NoError(testInstance, loadError)
	require.Empty(testInstance, metadata.ConfigFileUsed)
	require.Equal(testInstance, "info", configuration.Common.LogLevel)
	require.Equal(testInstance, "structured", configuration.Common.LogFormat)
}

func TestLoadConfigurationMergesEmbeddedAndFileValues(testInstance *testing.T) {
	configurationDirectory := testInstance.TempDir()
	configurationFilePath := filepath.Join(configurationDirectory, "config.yaml")
	fileContent := []byte("common:\n  log_level: warn\n")
	require.NoError(testInstance, os.WriteFile(configurationFilePath, fileContent, 0o644))

	loader := utils.NewConfigurationLoader("config", "yaml", "POLICYMIG", []string{configurationDirectory})
	loader.SetEmbeddedConfiguration([]byte("common:\n  log_level: info\n  log_format: console\n"))

	var configuration loaderTestConfiguration
	metadata, loadError := loader.LoadConfiguration(configurationFilePath, nil, &configuration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
	require.Equal(testInstance, "warn", configuration.Common.LogLevel)
	require.Equal(testInstance, "console", configuration.Common.LogFormat)
}

func TestLoadConfigurationReportsUnreadableFile(testInstance *testing.T) {
	configurationDirectory := testInstance.TempDir()
	configurationFilePath := filepath.Join(configurationDirectory, "config.yaml")
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte("common: ["), 0o644))

	loader := utils.NewConfigurationLoader("config", "yaml", "POLICYMIG", []string{configurationDirectory})

	var configuration loaderTestConfiguration
	_, loadError := loader.LoadConfiguration(configurationFilePath, nil, &configuration)
	require.Error(testInstance, loadError)
}
