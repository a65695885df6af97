package pipeline

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/policytools/policymig/internal/graphauth"
	"github.com/policytools/policymig/internal/policies"
)

const (
	testSecretValueConstant      = "resolved-secret"
	testConfiguredRootConstant   = "/tmp/configured-root"
	testOverriddenRootConstant   = "/tmp/overridden-root"
	testSourceClientConstant     = "source-client-id"
	testDestinationClientValue   = "destination-client-id"
	testSecretSourceSpecConstant = "env:POLICYMIG_TEST_SECRET"
)

type recordingExecutor struct {
	migrateOptions *MigrationOptions
	exportOptions  *MigrationOptions
	importOptions  *MigrationOptions
	runError       error
}

func (executor *recordingExecutor) Migrate(_ context.Context, options MigrationOptions) (RunSummary, error) {
	executor.migrateOptions = &options
	return RunSummary{}, executor.runError
}

func (executor *recordingExecutor) Export(_ context.Context, options MigrationOptions) (ExportSummary, error) {
	executor.exportOptions = &options
	return ExportSummary{}, executor.runError
}

func (executor *recordingExecutor) Import(_ context.Context, options MigrationOptions) (ImportSummary, error) {
	executor.importOptions = &options
	return ImportSummary{}, executor.runError
}

func fullyConfiguredConfiguration() Configuration {
	return Configuration{
		Source: TenantConfiguration{
			TenantID:           testSourceTenantConstant,
			ClientID:           testSourceClientConstant,
			ClientSecretSource: testSecretSourceSpecConstant,
		},
		Destination: TenantConfiguration{
			TenantID:           testDestinationTenantConstant,
			ClientID:           testDestinationClientValue,
			ClientSecretSource: testSecretSourceSpecConstant,
		},
		ExportRoot:        testConfiguredRootConstant,
		CreateMissingRoot: true,
	}
}

func stubSecretResolver() graphauth.SecretResolver {
	return graphauth.NewSecretResolver(func(string) (string, bool) {
		return testSecretValueConstant, true
	}, nil)
}

func newTestCommandBuilder(configuration Configuration, executor *recordingExecutor) *CommandBuilder {
	return &CommandBuilder{
		ConfigurationProvider: func() Configuration { return configuration },
		SecretResolver:        stubSecretResolver(),
		ServiceProvider: func(dependencies ServiceDependencies) (MigrationExecutor, error) {
			return executor, nil
		},
	}
}

func executeCommand(testInstance *testing.T, command *cobra.Command, arguments ...string) error {
	testInstance.Helper()
	command.SetArgs(arguments)
	return command.ExecuteContext(context.Background())
}

func TestBuildCommandsRegisterSharedFlags(testInstance *testing.T) {
	builder := newTestCommandBuilder(fullyConfiguredConfiguration(), &recordingExecutor{})

	buildFunctions := map[string]func() (*cobra.Command, error){
		"migrate": builder.BuildMigrateCommand,
		"export":  builder.BuildExportCommand,
		"import":  builder.BuildImportCommand,
	}

	for commandName, buildFunction := range buildFunctions {
		testInstance.Run(commandName, func(subTest *testing.T) {
			command, buildError := buildFunction()
			require.NoError(subTest, buildError)
			require.Equal(subTest, commandName, command.Use)
			require.NotNil(subTest, command.Flags().Lookup(exportRootFlagNameConstant))
			require.NotNil(subTest, command.Flags().Lookup(platformFlagNameConstant))
			require.NotNil(subTest, command.Flags().Lookup(createMissingRootFlagNameConstant))
		})
	}
}

func TestMigrateCommandForwardsConfiguredOptions(testInstance *testing.T) {
	executor := &recordingExecutor{}
	builder := newTestCommandBuilder(fullyConfiguredConfiguration(), executor)

	command, buildError := builder.BuildMigrateCommand()
	require.NoError(testInstance, buildError)
	require.NoError(testInstance, executeCommand(testInstance, command))

	require.NotNil(testInstance, executor.migrateOptions)
	require.Equal(testInstance, testConfiguredRootConstant, executor.migrateOptions.ExportRoot)
	require.True(testInstance, executor.migrateOptions.CreateMissingRoot)
	require.Equal(testInstance, testSourceTenantConstant, executor.migrateOptions.SourceCredentials.TenantID)
	require.Equal(testInstance, testSourceClientConstant, executor.migrateOptions.SourceCredentials.ClientID)
	require.Equal(testInstance, testSecretValueConstant, executor.migrateOptions.SourceCredentials.ClientSecret)
	require.Equal(testInstance, testDestinationTenantConstant, executor.migrateOptions.DestinationCredentials.TenantID)
	require.Equal(testInstance, testSecretValueConstant, executor.migrateOptions.DestinationCredentials.ClientSecret)
	require.Equal(testInstance, policies.Platform(""), executor.migrateOptions.Platform)
}

func TestExportCommandAppliesFlagOverrides(testInstance *testing.T) {
	executor := &recordingExecutor{}
	builder := newTestCommandBuilder(fullyConfiguredConfiguration(), executor)

	command, buildError := builder.BuildExportCommand()
	require.NoError(testInstance, buildError)
	require.NoError(testInstance, executeCommand(testInstance, command,
		"--root", testOverriddenRootConstant,
		"--platform", "macos",
		"--create-missing-root=false"))

	require.NotNil(testInstance, executor.exportOptions)
	require.Equal(testInstance, testOverriddenRootConstant, executor.exportOptions.ExportRoot)
	require.False(testInstance, executor.exportOptions.CreateMissingRoot)
	require.Equal(testInstance, policies.PlatformMacOS, executor.exportOptions.Platform)
	require.Empty(testInstance, executor.exportOptions.DestinationCredentials.TenantID)
}

func TestImportCommandResolvesOnlyDestinationCredentials(testInstance *testing.T) {
	configuration := fullyConfiguredConfiguration()
	configuration.Source = TenantConfiguration{}
	executor := &recordingExecutor{}
	builder := newTestCommandBuilder(configuration, executor)

	command, buildError := builder.BuildImportCommand()
	require.NoError(testInstance, buildError)
	require.NoError(testInstance, executeCommand(testInstance, command))

	require.NotNil(testInstance, executor.importOptions)
	require.Empty(testInstance, executor.importOptions.SourceCredentials.TenantID)
	require.Equal(testInstance, testDestinationTenantConstant, executor.importOptions.DestinationCredentials.TenantID)
}

func TestExportCommandRejectsInvalidPlatformFlag(testInstance *testing.T) {
	executor := &recordingExecutor{}
	builder := newTestCommandBuilder(fullyConfiguredConfiguration(), executor)

	command, buildError := builder.BuildExportCommand()
	require.NoError(testInstance, buildError)

	executionError := executeCommand(testInstance, command, "--platform", "linux")
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), platformFlagNameConstant)
	require.Nil(testInstance, executor.exportOptions)
}

func TestMigrateCommandRejectsMissingTenantConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name                string
		mutateConfiguration func(configuration *Configuration)
	}{
		{
			name: "source_not_configured",
			mutateConfiguration: func(configuration *Configuration) {
				configuration.Source = TenantConfiguration{}
			},
		},
		{
			name: "source_missing_tenant_id",
			mutateConfiguration: func(configuration *Configuration) {
				configuration.Source.TenantID = ""
			},
		},
		{
			name: "destination_missing_client_id",
			mutateConfiguration: func(configuration *Configuration) {
				configuration.Destination.ClientID = ""
			},
		},
		{
			name: "source_invalid_secret_source",
			mutateConfiguration: func(configuration *Configuration) {
				configuration.Source.ClientSecretSource = "vault:secret"
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			configuration := fullyConfiguredConfiguration()
			testCase.mutateConfiguration(&configuration)

			executor := &recordingExecutor{}
			builder := newTestCommandBuilder(configuration, executor)

			command, buildError := builder.BuildMigrateCommand()
			require.NoError(subTest, buildError)
			require.Error(subTest, executeCommand(subTest, command))
			require.Nil(subTest, executor.migrateOptions)
		})
	}
}

func TestCommandSurfacesExecutorFailures(testInstance *testing.T) {
	executor := &recordingExecutor{runError: InvalidInputError{FieldName: exportRootFieldNameConstant, Message: requiredValueMessageConstant}}
	builder := newTestCommandBuilder(fullyConfiguredConfiguration(), executor)

	command, buildError := builder.BuildMigrateCommand()
	require.NoError(testInstance, buildError)

	executionError := executeCommand(testInstance, command)
	require.Error(testInstance, executionError)

	var invalidInput InvalidInputError
	require.ErrorAs(testInstance, executionError, &invalidInput)
}
