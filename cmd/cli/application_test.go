package cli_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/cmd/cli"
	"github.com/temirov/glmigrate/internal/gitlabapi"
	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
	"github.com/temirov/glmigrate/internal/statusapi"
)

const (
	toolsSettingsKeyConstant  = "tools"
	commonSettingsKeyConstant = "common"
)

func loadEmbeddedSettings(testInstance *testing.T) map[string]any {
	testInstance.Helper()
	content, configurationType := cli.EmbeddedDefaultConfiguration()
	require.Equal(testInstance, "yaml", configurationType)

	viperInstance := viper.New()
	viperInstance.SetConfigType(configurationType)
	require.NoError(testInstance, viperInstance.ReadConfig(bytes.NewReader(content)))
	return viperInstance.AllSettings()
}

func decodeSettings(testInstance *testing.T, input any, target any) {
	testInstance.Helper()
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           target,
	})
	require.NoError(testInstance, decoderError)
	require.NoError(testInstance, decoder.Decode(input))
}

func TestEmbeddedDefaultsMatchCommandDefaults(testInstance *testing.T) {
	settings := loadEmbeddedSettings(testInstance)

	var common cli.ApplicationCommonConfiguration
	decodeSettings(testInstance, settings[commonSettingsKeyConstant], &common)
	require.Equal(testInstance, cli.ApplicationCommonConfiguration{LogLevel: "info", LogFormat: "structured"}, common)

	var tools cli.ApplicationToolsConfiguration
	decodeSettings(testInstance, settings[toolsSettingsKeyConstant], &tools)

	defaults := migrate.DefaultCommandConfiguration()
	embeddedMigrate := tools.Migrate.Sanitize()
	require.Equal(testInstance, filepath.Clean(defaults.ScratchDirectory), filepath.Clean(embeddedMigrate.ScratchDirectory))
	require.Equal(testInstance, defaults.NamespacePageSize, embeddedMigrate.NamespacePageSize)
	require.Equal(testInstance, defaults.ProjectPageSize, embeddedMigrate.ProjectPageSize)
	require.Equal(testInstance, defaults.PagePause, embeddedMigrate.PagePause)
	require.Equal(testInstance, defaults.ProjectPause, embeddedMigrate.ProjectPause)
	require.Equal(testInstance, 100*time.Millisecond, embeddedMigrate.PagePause)
	require.Equal(testInstance, jobstate.DefaultLogCapacity, embeddedMigrate.LogCapacity)
	require.Empty(testInstance, embeddedMigrate.TargetParentID)
	require.Empty(testInstance, embeddedMigrate.ReportPath)

	for _, instance := range []gitlabapi.InstanceConfiguration{embeddedMigrate.Source, embeddedMigrate.Target} {
		require.Equal(testInstance, 22, instance.SSHPort)
		require.Equal(testInstance, string(gitlabapi.CloneProtocolHTTPS), instance.CloneProtocol)
		require.False(testInstance, instance.IncludeArchived)
	}

	require.Equal(testInstance, statusapi.DefaultServeConfiguration(), tools.Serve.Sanitize())
}

func TestEmbeddedDefaultConfigurationReturnsCopy(testInstance *testing.T) {
	first, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, first)
	first[0] = '#'

	second, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEqual(testInstance, first[0], second[0])
}
