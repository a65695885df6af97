package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/policytools/policymig/internal/graph"
	"github.com/policytools/policymig/internal/policies"
	"github.com/policytools/policymig/internal/staging"
)

const (
	sessionMissingMessageConstant     = "graph session not configured"
	stagerMissingMessageConstant      = "export stager not configured"
	importerMissingMessageConstant    = "importer not configured"
	exportRootFieldNameConstant       = "export_root"
	sourceTenantFieldNameConstant     = "source.tenant_id"
	destinationTenantFieldName        = "destination.tenant_id"
	requiredValueMessageConstant      = "value must be provided"
	exportRootMissingTemplateConstant = "export root %s does not exist and create_missing_root is disabled"
	exportRootCreateErrorTemplate     = "unable to create export root %s: %w"
	sourceConnectErrorTemplate        = "unable to connect to source tenant: %w"
	destinationConnectErrorTemplate   = "unable to connect to destination tenant: %w"
	listFetchErrorTemplateConstant    = "unable to list %s policies: %w"

	exportRootDirectoryPermissions = 0o755

	exportStartedMessageConstant   = "Export phase started"
	exportFinishedMessageConstant  = "Export phase finished"
	importStartedMessageConstant   = "Import phase started"
	importFinishedMessageConstant  = "Import phase finished"
	policyExportFailedMessage      = "Policy export failed"
	kindLogFieldConstant           = "policy_kind"
	tenantLogFieldConstant         = "tenant"
	exportRootLogFieldConstant     = "export_root"
	stagedCountLogFieldConstant    = "staged"
	submittedCountLogFieldConstant = "submitted"
	failedCountLogFieldConstant    = "failed"
	displayNameLogFieldConstant    = "display_name"
	unnamedPolicySubjectConstant   = "(unnamed policy)"
)

var (
	errSessionMissing  = errors.New(sessionMissingMessageConstant)
	errStagerMissing   = errors.New(stagerMissingMessageConstant)
	errImporterMissing = errors.New(importerMissingMessageConstant)
)

// InvalidInputError describes migration option validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", inputError.FieldName, inputError.Message)
}

// GraphSession is the tenant-scoped Graph surface the pipeline consumes.
type GraphSession interface {
	Connect(executionContext context.Context, credentials graph.TenantCredentials) error
	Disconnect()
	GetPages(executionContext context.Context, resourcePath string, handler graph.PageHandler) error
	GetAll(executionContext context.Context, resourcePath string) ([]map[string]any, error)
	GetScalarValue(executionContext context.Context, resourcePath string) (string, error)
	Post(executionContext context.Context, resourcePath string, body []byte) error
}

// PolicyEventObserver receives per-policy progress notifications.
type PolicyEventObserver interface {
	// PolicyStaged reports one policy written to the staging layout.
	PolicyStaged(kind policies.Kind, displayName string, stagedFilePath string)
	// PolicyImported reports one staged file accepted by the destination.
	PolicyImported(kind policies.Kind, stagedFilePath string)
	// PolicyFailed reports one policy excluded from the run.
	PolicyFailed(kind policies.Kind, subject string, failure error)
}

type noopPolicyEventObserver struct{}

func (noopPolicyEventObserver) PolicyStaged(policies.Kind, string, string) {}

func (noopPolicyEventObserver) PolicyImported(policies.Kind, string) {}

func (noopPolicyEventObserver) PolicyFailed(policies.Kind, string, error) {}

// MigrationOptions configures one pipeline run.
type MigrationOptions struct {
	SourceCredentials      graph.TenantCredentials
	DestinationCredentials graph.TenantCredentials
	ExportRoot             string
	CreateMissingRoot      bool
	Platform               policies.Platform
}

// ItemFailure couples one policy with the error that excluded it from the run.
type ItemFailure struct {
	Kind    policies.Kind
	Subject string
	Failure error
}

// ExportSummary captures the observable outcomes of the export phase.
type ExportSummary struct {
	StagedFiles []string
	Failures    []ItemFailure
}

// ImportSummary captures the observable outcomes of the import phase.
type ImportSummary struct {
	SubmittedFiles []string
	Failures       []ItemFailure
}

// RunSummary aggregates both phases of a full migration.
type RunSummary struct {
	Export ExportSummary
	Import ImportSummary
}

// ServiceDependencies describes required collaborators for the pipeline.
type ServiceDependencies struct {
	Logger        *zap.Logger
	Session       GraphSession
	Stager        *staging.ExportStager
	Importer      *staging.Importer
	EventObserver PolicyEventObserver
}

// Service orchestrates the export, disconnect, reconnect, import sequence.
type Service struct {
	logger        *zap.Logger
	session       GraphSession
	transformer   *policies.Transformer
	stager        *staging.ExportStager
	importer      *staging.Importer
	eventObserver PolicyEventObserver
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Session == nil {
		return nil, errSessionMissing
	}
	if dependencies.Stager == nil {
		return nil, errStagerMissing
	}
	if dependencies.Importer == nil {
		return nil, errImporterMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	eventObserver := dependencies.EventObserver
	if eventObserver == nil {
		eventObserver = noopPolicyEventObserver{}
	}

	transformer, transformerError := policies.NewTransformer(logger, dependencies.Session)
	if transformerError != nil {
		return nil, transformerError
	}

	return &Service{
		logger:        logger,
		session:       dependencies.Session,
		transformer:   transformer,
		stager:        dependencies.Stager,
		importer:      dependencies.Importer,
		eventObserver: eventObserver,
	}, nil
}

// Migrate runs the export phase against the source tenant and, once the
// source session is closed, the import phase against the destination.
func (service *Service) Migrate(executionContext context.Context, options MigrationOptions) (RunSummary, error) {
	exportSummary, exportError := service.Export(executionContext, options)
	if exportError != nil {
		return RunSummary{Export: exportSummary}, exportError
	}

	importSummary, importError := service.Import(executionContext, options)
	return RunSummary{Export: exportSummary, Import: importSummary}, importError
}

// Export fetches every policy of both kinds from the source tenant,
// transforms each into its creation shape, and stages it under the export
// root. Failures on single policies are collected, not fatal.
func (service *Service) Export(executionContext context.Context, options MigrationOptions) (ExportSummary, error) {
	if validationError := service.validateExportOptions(options); validationError != nil {
		return ExportSummary{}, validationError
	}

	if rootError := service.ensureExportRoot(options); rootError != nil {
		return ExportSummary{}, rootError
	}

	if connectError := service.session.Connect(executionContext, options.SourceCredentials); connectError != nil {
		return ExportSummary{}, fmt.Errorf(sourceConnectErrorTemplate, connectError)
	}
	defer service.session.Disconnect()

	service.logger.Info(exportStartedMessageConstant,
		zap.String(tenantLogFieldConstant, options.SourceCredentials.TenantID),
		zap.String(exportRootLogFieldConstant, options.ExportRoot))

	summary := ExportSummary{}
	for _, policyKind := range policies.AllKinds() {
		if kindError := service.exportKind(executionContext, policyKind, options, &summary); kindError != nil {
			return summary, kindError
		}
	}

	service.logger.Info(exportFinishedMessageConstant,
		zap.Int(stagedCountLogFieldConstant, len(summary.StagedFiles)),
		zap.Int(failedCountLogFieldConstant, len(summary.Failures)))

	return summary, nil
}

// exportKind streams the kind's collection page by page so very large
// tenants never hold the full collection in memory.
func (service *Service) exportKind(executionContext context.Context, policyKind policies.Kind, options MigrationOptions, summary *ExportSummary) error {
	listPath := policyKind.ListResourcePath(options.Platform)

	walkError := service.session.GetPages(executionContext, listPath, func(records []map[string]any) error {
		for _, rawPolicy := range records {
			service.exportPolicy(executionContext, policyKind, rawPolicy, options.ExportRoot, summary)
		}
		return nil
	})
	if walkError != nil {
		return fmt.Errorf(listFetchErrorTemplateConstant, string(policyKind), walkError)
	}

	return nil
}

func (service *Service) exportPolicy(executionContext context.Context, policyKind policies.Kind, rawPolicy map[string]any, exportRoot string, summary *ExportSummary) {
	policySubject := unnamedPolicySubjectConstant
	if displayName, displayNamePresent := policyKind.DisplayName(rawPolicy); displayNamePresent {
		policySubject = displayName
	}

	creatablePolicy, transformError := service.transformer.ToCreatable(executionContext, policyKind, rawPolicy)
	if transformError != nil {
		service.recordExportFailure(policyKind, policySubject, transformError, summary)
		return
	}

	stagedFilePath, stageError := service.stager.Stage(policyKind, creatablePolicy, exportRoot)
	if stageError != nil {
		service.recordExportFailure(policyKind, policySubject, stageError, summary)
		return
	}

	summary.StagedFiles = append(summary.StagedFiles, stagedFilePath)
	service.eventObserver.PolicyStaged(policyKind, policySubject, stagedFilePath)
}

func (service *Service) recordExportFailure(policyKind policies.Kind, policySubject string, failure error, summary *ExportSummary) {
	service.logger.Warn(policyExportFailedMessage,
		zap.String(kindLogFieldConstant, string(policyKind)),
		zap.String(displayNameLogFieldConstant, policySubject),
		zap.Error(failure))
	summary.Failures = append(summary.Failures, ItemFailure{Kind: policyKind, Subject: policySubject, Failure: failure})
	service.eventObserver.PolicyFailed(policyKind, policySubject, failure)
}

// Import replays every staged file of both kinds against the destination
// tenant's creation endpoints.
func (service *Service) Import(executionContext context.Context, options MigrationOptions) (ImportSummary, error) {
	if validationError := service.validateImportOptions(options); validationError != nil {
		return ImportSummary{}, validationError
	}

	if connectError := service.session.Connect(executionContext, options.DestinationCredentials); connectError != nil {
		return ImportSummary{}, fmt.Errorf(destinationConnectErrorTemplate, connectError)
	}
	defer service.session.Disconnect()

	service.logger.Info(importStartedMessageConstant,
		zap.String(tenantLogFieldConstant, options.DestinationCredentials.TenantID),
		zap.String(exportRootLogFieldConstant, options.ExportRoot))

	summary := ImportSummary{}
	for _, policyKind := range policies.AllKinds() {
		outcome, importError := service.importer.ImportAll(executionContext, policyKind, options.ExportRoot, service.submitPolicy)
		if importError != nil {
			return summary, importError
		}

		summary.SubmittedFiles = append(summary.SubmittedFiles, outcome.SubmittedFiles...)
		for _, submittedFile := range outcome.SubmittedFiles {
			service.eventObserver.PolicyImported(policyKind, submittedFile)
		}
		for _, fileFailure := range outcome.FailedFiles {
			summary.Failures = append(summary.Failures, ItemFailure{Kind: policyKind, Subject: fileFailure.FilePath, Failure: fileFailure.Failure})
			service.eventObserver.PolicyFailed(policyKind, fileFailure.FilePath, fileFailure.Failure)
		}
	}

	service.logger.Info(importFinishedMessageConstant,
		zap.Int(submittedCountLogFieldConstant, len(summary.SubmittedFiles)),
		zap.Int(failedCountLogFieldConstant, len(summary.Failures)))

	return summary, nil
}

func (service *Service) submitPolicy(executionContext context.Context, policyKind policies.Kind, payload []byte) error {
	return service.session.Post(executionContext, policyKind.CreationResourcePath(), payload)
}

func (service *Service) ensureExportRoot(options MigrationOptions) error {
	if _, statError := os.Stat(options.ExportRoot); statError == nil {
		return nil
	} else if !os.IsNotExist(statError) {
		return fmt.Errorf(exportRootCreateErrorTemplate, options.ExportRoot, statError)
	}

	if !options.CreateMissingRoot {
		return fmt.Errorf(exportRootMissingTemplateConstant, options.ExportRoot)
	}

	if createError := os.MkdirAll(options.ExportRoot, exportRootDirectoryPermissions); createError != nil {
		return fmt.Errorf(exportRootCreateErrorTemplate, options.ExportRoot, createError)
	}

	return nil
}

func (service *Service) validateExportOptions(options MigrationOptions) error {
	if len(strings.TrimSpace(options.ExportRoot)) == 0 {
		return InvalidInputError{FieldName: exportRootFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.SourceCredentials.TenantID)) == 0 {
		return InvalidInputError{FieldName: sourceTenantFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return nil
}

func (service *Service) validateImportOptions(options MigrationOptions) error {
	if len(strings.TrimSpace(options.ExportRoot)) == 0 {
		return InvalidInputError{FieldName: exportRootFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.DestinationCredentials.TenantID)) == 0 {
		return InvalidInputError{FieldName: destinationTenantFieldName, Message: requiredValueMessageConstant}
	}
	return nil
}
