package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/policytools/policymig/internal/policies"
)

const (
	stagedFileTimestampLayoutConstant = "02012006-15-04-05"
	stagedFileExtensionConstant       = ".json"
	stagedFileNameTemplateConstant    = "%s_%s%s"
	collisionSuffixTemplateConstant   = "%s_%s_%d%s"
	stagedFilePermissionsConstant     = 0o644
	stagingDirectoryPermissions       = 0o755
	jsonIndentConstant                = "  "

	emptyRecordMessageConstant          = "creation payload is empty"
	displayNameMissingMessageConstant   = "policy record carries no display name"
	exportRootMissingMessageConstant    = "export root must be provided"
	exportRootInvalidTemplateConstant   = "export root %s is not usable: %w"
	directoryCreateErrorTemplate        = "unable to create staging directory %s: %w"
	serializeErrorTemplateConstant      = "unable to serialize policy %s: %w"
	stagedFileWriteErrorTemplate        = "unable to write staged file %s: %w"
	stagedPolicyMessageConstant         = "Staged policy"
	stagedFileLogFieldConstant          = "staged_file"
	policyKindLogFieldConstant          = "policy_kind"
	displayNameLogFieldConstant         = "display_name"
)

// invalidFilenameCharacterReplacer substitutes characters the filesystem
// rejects in file names.
var invalidFilenameCharacterReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"/", "_",
	`\`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// ValidationError describes a record that cannot be staged or imported.
type ValidationError struct {
	Subject string
	Message string
}

// Error describes the invalid record.
func (validationError ValidationError) Error() string {
	if len(validationError.Subject) == 0 {
		return validationError.Message
	}
	return fmt.Sprintf("%s: %s", validationError.Subject, validationError.Message)
}

// Clock supplies the current time; injectable for deterministic tests.
type Clock func() time.Time

// ExportStager writes creation-ready policies to the staging layout.
type ExportStager struct {
	logger *zap.Logger
	clock  Clock
}

// NewExportStager constructs an ExportStager with the provided collaborators.
func NewExportStager(logger *zap.Logger, clock Clock) *ExportStager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &ExportStager{logger: logger, clock: clock}
}

// SanitizeDisplayName replaces filesystem-hostile characters with underscores.
func SanitizeDisplayName(displayName string) string {
	return invalidFilenameCharacterReplacer.Replace(displayName)
}

// Stage serializes the policy into the kind subdirectory and returns the
// staged file path. Existing files are never overwritten; a colliding name
// receives a numeric suffix.
func (stager *ExportStager) Stage(kind policies.Kind, creatablePolicy map[string]any, exportRoot string) (string, error) {
	if len(creatablePolicy) == 0 {
		return "", ValidationError{Message: emptyRecordMessageConstant}
	}
	if len(strings.TrimSpace(exportRoot)) == 0 {
		return "", ValidationError{Message: exportRootMissingMessageConstant}
	}

	displayName, displayNamePresent := kind.DisplayName(creatablePolicy)
	if !displayNamePresent {
		return "", ValidationError{Subject: kind.DisplayNameField(), Message: displayNameMissingMessageConstant}
	}

	if _, rootStatError := os.Stat(exportRoot); rootStatError != nil {
		return "", fmt.Errorf(exportRootInvalidTemplateConstant, exportRoot, rootStatError)
	}

	stagingDirectory := filepath.Join(exportRoot, kind.StagingSubdirectory())
	if directoryError := os.MkdirAll(stagingDirectory, stagingDirectoryPermissions); directoryError != nil {
		return "", fmt.Errorf(directoryCreateErrorTemplate, stagingDirectory, directoryError)
	}

	serializedPolicy, serializeError := json.MarshalIndent(creatablePolicy, "", jsonIndentConstant)
	if serializeError != nil {
		return "", fmt.Errorf(serializeErrorTemplateConstant, displayName, serializeError)
	}

	stagedFilePath := stager.resolveStagedFilePath(stagingDirectory, SanitizeDisplayName(displayName))
	if writeError := os.WriteFile(stagedFilePath, serializedPolicy, stagedFilePermissionsConstant); writeError != nil {
		return "", fmt.Errorf(stagedFileWriteErrorTemplate, stagedFilePath, writeError)
	}

	stager.logger.Info(stagedPolicyMessageConstant,
		zap.String(policyKindLogFieldConstant, string(kind)),
		zap.String(displayNameLogFieldConstant, displayName),
		zap.String(stagedFileLogFieldConstant, stagedFilePath))

	return stagedFilePath, nil
}

func (stager *ExportStager) resolveStagedFilePath(stagingDirectory string, sanitizedName string) string {
	timestampSuffix := stager.clock().Format(stagedFileTimestampLayoutConstant)
	candidatePath := filepath.Join(stagingDirectory, fmt.Sprintf(stagedFileNameTemplateConstant, sanitizedName, timestampSuffix, stagedFileExtensionConstant))

	collisionCounter := 1
	for {
		if _, statError := os.Stat(candidatePath); statError != nil {
			return candidatePath
		}
		candidatePath = filepath.Join(stagingDirectory, fmt.Sprintf(collisionSuffixTemplateConstant, sanitizedName, timestampSuffix, collisionCounter, stagedFileExtensionConstant))
		collisionCounter++
	}
}
