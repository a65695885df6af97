package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/policytools/policymig/internal/policies"
)

const (
	stagedFileReadErrorTemplateConstant  = "unable to read staged file %s: %w"
	stagedFileParseErrorMessageConstant  = "staged file is not valid JSON"
	stagedFileEmptyErrorMessageConstant  = "staged file contains no fields"
	submissionErrorTemplateConstant      = "submission of %s failed: %w"
	importDirectoryListErrorTemplate     = "unable to list staging directory %s: %w"
	importingFileMessageConstant         = "Importing staged policy"
	importFileFailedMessageConstant      = "Staged policy import failed"
	importDirectoryMissingMessage        = "No staged files for kind"
	importFileLogFieldConstant           = "staged_file"
	importKindLogFieldConstant           = "policy_kind"
	importDirectoryLogFieldConstant      = "staging_directory"
)

// SubmitFunc delivers one creation payload to the destination tenant.
type SubmitFunc func(executionContext context.Context, kind policies.Kind, payload []byte) error

// FileFailure couples a staged file with the error that excluded it.
type FileFailure struct {
	FilePath string
	Failure  error
}

// ImportOutcome summarizes one kind's import pass.
type ImportOutcome struct {
	SubmittedFiles []string
	FailedFiles    []FileFailure
}

// Importer replays staged files against a destination tenant.
type Importer struct {
	logger *zap.Logger
}

// NewImporter constructs an Importer with the provided logger.
func NewImporter(logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{logger: logger}
}

// ImportAll submits every staged file of one kind in lexical filename order.
// A failure on one file is recorded and does not stop the remaining files.
func (importer *Importer) ImportAll(executionContext context.Context, kind policies.Kind, exportRoot string, submit SubmitFunc) (ImportOutcome, error) {
	stagingDirectory := filepath.Join(exportRoot, kind.StagingSubdirectory())

	directoryEntries, listError := os.ReadDir(stagingDirectory)
	if listError != nil {
		if os.IsNotExist(listError) {
			importer.logger.Info(importDirectoryMissingMessage,
				zap.String(importKindLogFieldConstant, string(kind)),
				zap.String(importDirectoryLogFieldConstant, stagingDirectory))
			return ImportOutcome{}, nil
		}
		return ImportOutcome{}, fmt.Errorf(importDirectoryListErrorTemplate, stagingDirectory, listError)
	}

	outcome := ImportOutcome{}
	for _, directoryEntry := range directoryEntries {
		if directoryEntry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(directoryEntry.Name()), stagedFileExtensionConstant) {
			continue
		}

		stagedFilePath := filepath.Join(stagingDirectory, directoryEntry.Name())
		importer.logger.Debug(importingFileMessageConstant,
			zap.String(importKindLogFieldConstant, string(kind)),
			zap.String(importFileLogFieldConstant, stagedFilePath))

		if submitError := importer.importFile(executionContext, kind, stagedFilePath, submit); submitError != nil {
			importer.logger.Warn(importFileFailedMessageConstant,
				zap.String(importKindLogFieldConstant, string(kind)),
				zap.String(importFileLogFieldConstant, stagedFilePath),
				zap.Error(submitError))
			outcome.FailedFiles = append(outcome.FailedFiles, FileFailure{FilePath: stagedFilePath, Failure: submitError})
			continue
		}

		outcome.SubmittedFiles = append(outcome.SubmittedFiles, stagedFilePath)
	}

	return outcome, nil
}

func (importer *Importer) importFile(executionContext context.Context, kind policies.Kind, stagedFilePath string, submit SubmitFunc) error {
	stagedContent, readError := os.ReadFile(stagedFilePath)
	if readError != nil {
		return fmt.Errorf(stagedFileReadErrorTemplateConstant, stagedFilePath, readError)
	}

	var stagedRecord map[string]any
	if parseError := json.Unmarshal(stagedContent, &stagedRecord); parseError != nil {
		return ValidationError{Subject: stagedFilePath, Message: stagedFileParseErrorMessageConstant}
	}
	if len(stagedRecord) == 0 {
		return ValidationError{Subject: stagedFilePath, Message: stagedFileEmptyErrorMessageConstant}
	}

	creationPayload, serializeError := json.Marshal(policies.StripServerAssignedFields(stagedRecord))
	if serializeError != nil {
		return fmt.Errorf(serializeErrorTemplateConstant, stagedFilePath, serializeError)
	}

	if submitError := submit(executionContext, kind, creationPayload); submitError != nil {
		return fmt.Errorf(submissionErrorTemplateConstant, stagedFilePath, submitError)
	}

	return nil
}
