package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/policytools/policymig/internal/graph"
	"github.com/policytools/policymig/internal/graphauth"
	"github.com/policytools/policymig/internal/policies"
	"github.com/policytools/policymig/internal/staging"
	"github.com/policytools/policymig/internal/ui"
	"github.com/policytools/policymig/internal/utils"
	flagutils "github.com/policytools/policymig/internal/utils/flags"
	pathutils "github.com/policytools/policymig/internal/utils/path"
)

const (
	migrateCommandUseConstant   = "migrate"
	migrateCommandShortConstant = "Export policies from the source tenant and import them into the destination"
	migrateCommandLongConstant  = "migrate fetches settings catalog and device configuration policies from the source tenant, stages each as a JSON file under the export root, and replays the staged files against the destination tenant's creation endpoints."
	exportCommandUseConstant    = "export"
	exportCommandShortConstant  = "Export policies from the source tenant into the staging layout"
	exportCommandLongConstant   = "export fetches settings catalog and device configuration policies from the source tenant and stages each as a JSON file under the export root."
	importCommandUseConstant    = "import"
	importCommandShortConstant  = "Import previously staged policies into the destination tenant"
	importCommandLongConstant   = "import replays every staged JSON file under the export root against the destination tenant's creation endpoints."

	exportRootFlagNameConstant        = "root"
	exportRootFlagUsageConstant       = "Directory receiving the staged policy files"
	platformFlagNameConstant          = "platform"
	platformFlagDescriptionConstant   = "Restrict settings catalog export to one platform"
	createMissingRootFlagNameConstant = "create-missing-root"
	createMissingRootFlagUsage        = "Create the export root when it does not exist"

	sourceTenantSectionNameConstant      = "source"
	destinationTenantSectionNameConstant = "destination"
	tenantSectionMissingTemplateConstant = "%s tenant is not configured"
	tenantIdentifierMissingTemplate      = "%s tenant is missing tenant_id"
	clientIdentifierMissingTemplate      = "%s tenant is missing client_id"
	secretSourceInvalidTemplateConstant  = "%s tenant client secret source is invalid: %w"
	secretResolutionTemplateConstant     = "unable to resolve %s tenant client secret: %w"
	sessionCreationErrorTemplate         = "unable to construct graph session: %w"
	platformFlagInvalidTemplateConstant  = "invalid --%s value: %w"
	platformConfigurationTemplate        = "invalid configured platform: %w"

	runCompletedMessageConstant  = "Migration run completed"
	partialFailureWarningMessage = "Some policies were skipped"
	stagedLogFieldConstant       = "staged"
	importedLogFieldConstant     = "imported"
	skippedLogFieldConstant      = "skipped"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the persisted migration configuration.
type ConfigurationProvider func() Configuration

// SessionFactory constructs the Graph session used for a run.
type SessionFactory func(logger *zap.Logger) (GraphSession, error)

// MigrationExecutor is the surface commands invoke on the pipeline service.
type MigrationExecutor interface {
	Migrate(executionContext context.Context, options MigrationOptions) (RunSummary, error)
	Export(executionContext context.Context, options MigrationOptions) (ExportSummary, error)
	Import(executionContext context.Context, options MigrationOptions) (ImportSummary, error)
}

// ServiceProvider constructs a migration executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (MigrationExecutor, error)

type commandOptions struct {
	debugLoggingEnabled    bool
	exportRoot             string
	createMissingRoot      bool
	platform               policies.Platform
	sourceCredentials      graph.TenantCredentials
	destinationCredentials graph.TenantCredentials
}

// CommandBuilder assembles the migrate, export, and import Cobra commands.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider func() bool
	SessionFactory               SessionFactory
	ServiceProvider              ServiceProvider
	SecretResolver               graphauth.SecretResolver
	HomeExpander                 *pathutils.HomeExpander
}

// BuildMigrateCommand constructs the migrate command.
func (builder *CommandBuilder) BuildMigrateCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           migrateCommandUseConstant,
		Short:         migrateCommandShortConstant,
		Long:          migrateCommandLongConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigrate,
	}
	builder.registerSharedFlags(command)
	return command, nil
}

// BuildExportCommand constructs the export command.
func (builder *CommandBuilder) BuildExportCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           exportCommandUseConstant,
		Short:         exportCommandShortConstant,
		Long:          exportCommandLongConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runExport,
	}
	builder.registerSharedFlags(command)
	return command, nil
}

// BuildImportCommand constructs the import command.
func (builder *CommandBuilder) BuildImportCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           importCommandUseConstant,
		Short:         importCommandShortConstant,
		Long:          importCommandLongConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runImport,
	}
	builder.registerSharedFlags(command)
	return command, nil
}

func (builder *CommandBuilder) registerSharedFlags(command *cobra.Command) {
	command.Flags().String(exportRootFlagNameConstant, defaultExportRootConstant, exportRootFlagUsageConstant)
	command.Flags().String(platformFlagNameConstant, defaultPlatformConstant, flagutils.FormatChoiceUsage(string(policies.PlatformWindows), []string{string(policies.PlatformWindows), string(policies.PlatformMacOS)}, platformFlagDescriptionConstant))
	command.Flags().Bool(createMissingRootFlagNameConstant, defaultCreateMissingRootConstant, createMissingRootFlagUsage)
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, true, true)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLoggingEnabled)
	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return executorError
	}

	summary, migrationError := executor.Migrate(command.Context(), builder.migrationOptions(options))
	if migrationError != nil {
		return migrationError
	}

	builder.logRunSummary(logger, summary.Export.StagedFiles, summary.Import.SubmittedFiles, append(summary.Export.Failures, summary.Import.Failures...))
	return nil
}

func (builder *CommandBuilder) runExport(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, true, false)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLoggingEnabled)
	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return executorError
	}

	summary, exportError := executor.Export(command.Context(), builder.migrationOptions(options))
	if exportError != nil {
		return exportError
	}

	builder.logRunSummary(logger, summary.StagedFiles, nil, summary.Failures)
	return nil
}

func (builder *CommandBuilder) runImport(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, false, true)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLoggingEnabled)
	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return executorError
	}

	summary, importError := executor.Import(command.Context(), builder.migrationOptions(options))
	if importError != nil {
		return importError
	}

	builder.logRunSummary(logger, nil, summary.SubmittedFiles, summary.Failures)
	return nil
}

func (builder *CommandBuilder) migrationOptions(options commandOptions) MigrationOptions {
	return MigrationOptions{
		SourceCredentials:      options.sourceCredentials,
		DestinationCredentials: options.destinationCredentials,
		ExportRoot:             options.exportRoot,
		CreateMissingRoot:      options.createMissingRoot,
		Platform:               options.platform,
	}
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, requireSource bool, requireDestination bool) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	debugEnabled := false
	if command != nil {
		contextAccessor := utils.NewCommandContextAccessor()
		if logLevel, available := contextAccessor.LogLevel(command.Context()); available {
			if strings.EqualFold(logLevel, string(utils.LogLevelDebug)) {
				debugEnabled = true
			}
		}
	}

	exportRoot := strings.TrimSpace(configuration.ExportRoot)
	if len(exportRoot) == 0 {
		exportRoot = defaultExportRootConstant
	}
	createMissingRoot := configuration.CreateMissingRoot
	platformValue := strings.TrimSpace(configuration.Platform)

	if command != nil {
		if command.Flags().Changed(exportRootFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(exportRootFlagNameConstant)
			exportRoot = strings.TrimSpace(flagValue)
		}
		if command.Flags().Changed(createMissingRootFlagNameConstant) {
			createMissingRoot, _ = command.Flags().GetBool(createMissingRootFlagNameConstant)
		}
		if command.Flags().Changed(platformFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(platformFlagNameConstant)
			platformValue = strings.TrimSpace(flagValue)
		}
	}

	exportRoot = builder.resolveHomeExpander().Expand(exportRoot)

	platform, platformError := policies.ParsePlatform(platformValue)
	if platformError != nil {
		if command != nil && command.Flags().Changed(platformFlagNameConstant) {
			return commandOptions{}, fmt.Errorf(platformFlagInvalidTemplateConstant, platformFlagNameConstant, platformError)
		}
		return commandOptions{}, fmt.Errorf(platformConfigurationTemplate, platformError)
	}

	options := commandOptions{
		debugLoggingEnabled: debugEnabled,
		exportRoot:          exportRoot,
		createMissingRoot:   createMissingRoot,
		platform:            platform,
	}

	if requireSource {
		sourceCredentials, credentialError := builder.resolveTenantCredentials(sourceTenantSectionNameConstant, configuration.Source)
		if credentialError != nil {
			return commandOptions{}, credentialError
		}
		options.sourceCredentials = sourceCredentials
	}

	if requireDestination {
		destinationCredentials, credentialError := builder.resolveTenantCredentials(destinationTenantSectionNameConstant, configuration.Destination)
		if credentialError != nil {
			return commandOptions{}, credentialError
		}
		options.destinationCredentials = destinationCredentials
	}

	return options, nil
}

func (builder *CommandBuilder) resolveTenantCredentials(sectionName string, tenantConfiguration TenantConfiguration) (graph.TenantCredentials, error) {
	if !tenantConfiguration.Configured() {
		return graph.TenantCredentials{}, fmt.Errorf(tenantSectionMissingTemplateConstant, sectionName)
	}
	if len(strings.TrimSpace(tenantConfiguration.TenantID)) == 0 {
		return graph.TenantCredentials{}, fmt.Errorf(tenantIdentifierMissingTemplate, sectionName)
	}
	if len(strings.TrimSpace(tenantConfiguration.ClientID)) == 0 {
		return graph.TenantCredentials{}, fmt.Errorf(clientIdentifierMissingTemplate, sectionName)
	}

	secretSource, sourceError := tenantConfiguration.SecretSource()
	if sourceError != nil {
		return graph.TenantCredentials{}, fmt.Errorf(secretSourceInvalidTemplateConstant, sectionName, sourceError)
	}

	clientSecret, resolutionError := builder.resolveSecretResolver().ResolveSecret(secretSource)
	if resolutionError != nil {
		return graph.TenantCredentials{}, fmt.Errorf(secretResolutionTemplateConstant, sectionName, resolutionError)
	}

	return graph.TenantCredentials{
		TenantID:     strings.TrimSpace(tenantConfiguration.TenantID),
		ClientID:     strings.TrimSpace(tenantConfiguration.ClientID),
		ClientSecret: clientSecret,
	}, nil
}

func (builder *CommandBuilder) resolveLogger(enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return Configuration{}
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveSecretResolver() graphauth.SecretResolver {
	if builder.SecretResolver != nil {
		return builder.SecretResolver
	}
	return graphauth.NewSecretResolver(nil, nil)
}

func (builder *CommandBuilder) resolveHomeExpander() *pathutils.HomeExpander {
	if builder.HomeExpander != nil {
		return builder.HomeExpander
	}
	return pathutils.NewHomeExpander()
}

func (builder *CommandBuilder) resolveSession(logger *zap.Logger) (GraphSession, error) {
	if builder.SessionFactory != nil {
		return builder.SessionFactory(logger)
	}
	return graph.NewClient(logger, graph.NewDefaultHTTPClient(), graph.ClientConfiguration{})
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (MigrationExecutor, error) {
	session, sessionError := builder.resolveSession(logger)
	if sessionError != nil {
		return nil, fmt.Errorf(sessionCreationErrorTemplate, sessionError)
	}

	dependencies := ServiceDependencies{
		Logger:        logger,
		Session:       session,
		Stager:        staging.NewExportStager(logger, time.Now),
		Importer:      staging.NewImporter(logger),
		EventObserver: builder.resolveEventObserver(logger),
	}

	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	return NewService(dependencies)
}

func (builder *CommandBuilder) resolveEventObserver(logger *zap.Logger) PolicyEventObserver {
	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}
	if !humanReadableLogging {
		return nil
	}
	return ui.NewConsolePolicyEventLogger(logger)
}

// logRunSummary reports overall counts so partial failures remain visible
// after the per-policy messages scroll by.
func (builder *CommandBuilder) logRunSummary(logger *zap.Logger, stagedFiles []string, submittedFiles []string, failures []ItemFailure) {
	if logger == nil {
		return
	}

	logger.Info(runCompletedMessageConstant,
		zap.Int(stagedLogFieldConstant, len(stagedFiles)),
		zap.Int(importedLogFieldConstant, len(submittedFiles)),
		zap.Int(skippedLogFieldConstant, len(failures)))

	if len(failures) > 0 {
		logger.Warn(partialFailureWarningMessage,
			zap.Int(skippedLogFieldConstant, len(failures)))
	}
}
