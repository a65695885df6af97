package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/policytools/policymig/internal/policies"
)

const (
	policyStagedMessageTemplateConstant   = "Staged %s %q as %s"
	policyImportedMessageTemplateConstant = "Imported %s from %s"
	policyFailedMessageTemplateConstant   = "Skipped %s %q: %s"
	unknownFailureMessageConstant         = "unknown error"
	kindLabelSeparatorConstant            = "_"
	kindLabelReplacementConstant          = " "
)

// PolicyEventFormatter builds human-readable messages for migration progress events.
type PolicyEventFormatter struct{}

// BuildStagedMessage formats the message describing one staged policy.
func (formatter PolicyEventFormatter) BuildStagedMessage(kind policies.Kind, displayName string, stagedFilePath string) string {
	return fmt.Sprintf(policyStagedMessageTemplateConstant, formatter.formatKindLabel(kind), displayName, filepath.Base(stagedFilePath))
}

// BuildImportedMessage formats the message describing one imported staged file.
func (formatter PolicyEventFormatter) BuildImportedMessage(kind policies.Kind, stagedFilePath string) string {
	return fmt.Sprintf(policyImportedMessageTemplateConstant, formatter.formatKindLabel(kind), filepath.Base(stagedFilePath))
}

// BuildFailureMessage formats the message describing one excluded policy.
func (formatter PolicyEventFormatter) BuildFailureMessage(kind policies.Kind, subject string, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(policyFailedMessageTemplateConstant, formatter.formatKindLabel(kind), subject, failureMessage)
}

func (formatter PolicyEventFormatter) formatKindLabel(kind policies.Kind) string {
	return strings.ReplaceAll(string(kind), kindLabelSeparatorConstant, kindLabelReplacementConstant)
}

// ConsolePolicyEventLogger renders migration progress using a zap logger configured for human-readable output.
type ConsolePolicyEventLogger struct {
	logger    *zap.Logger
	formatter PolicyEventFormatter
}

// NewConsolePolicyEventLogger constructs a console event logger backed by the provided zap logger.
func NewConsolePolicyEventLogger(logger *zap.Logger) *ConsolePolicyEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolePolicyEventLogger{logger: logger, formatter: PolicyEventFormatter{}}
}

// PolicyStaged implements pipeline.PolicyEventObserver by logging staged policies.
func (eventLogger *ConsolePolicyEventLogger) PolicyStaged(kind policies.Kind, displayName string, stagedFilePath string) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStagedMessage(kind, displayName, stagedFilePath))
}

// PolicyImported implements pipeline.PolicyEventObserver by logging imported staged files.
func (eventLogger *ConsolePolicyEventLogger) PolicyImported(kind policies.Kind, stagedFilePath string) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildImportedMessage(kind, stagedFilePath))
}

// PolicyFailed implements pipeline.PolicyEventObserver by logging excluded policies.
func (eventLogger *ConsolePolicyEventLogger) PolicyFailed(kind policies.Kind, subject string, failure error) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(kind, subject, failure))
}
