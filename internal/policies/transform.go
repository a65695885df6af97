package policies

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	policyIdentifierFieldConstant      = "id"
	policyNameFieldConstant            = "name"
	policyDescriptionFieldConstant     = "description"
	policyPlatformsFieldConstant       = "platforms"
	policyTechnologiesFieldConstant    = "technologies"
	templateReferenceFieldConstant     = "templateReference"
	templateIdentifierFieldConstant    = "templateId"
	settingsFieldConstant              = "settings"
	settingInstanceFieldConstant       = "settingInstance"
	omaSettingsFieldConstant           = "omaSettings"
	odataTypeFieldConstant             = "@odata.type"
	omaDisplayNameFieldConstant        = "displayName"
	omaDescriptionFieldConstant        = "description"
	omaURIFieldConstant                = "omaUri"
	omaValueFieldConstant              = "value"
	omaIsEncryptedFieldConstant        = "isEncrypted"
	secretReferenceFieldConstant       = "secretReferenceValueId"
	graphReaderMissingMessageConstant  = "graph reader not configured"
	identifierMissingMessageConstant   = "raw policy is missing its identifier"
	secretReferenceMissingMessage      = "encrypted OMA setting is missing its secret reference id"
	settingsFetchErrorTemplateConstant = "unable to fetch setting instances for policy %s: %w"
	plaintextErrorTemplateConstant     = "unable to resolve plaintext value for policy %s: %w"
)

// GraphReader is the read surface of the Graph client consumed by the transform.
type GraphReader interface {
	GetAll(executionContext context.Context, resourcePath string) ([]map[string]any, error)
	GetScalarValue(executionContext context.Context, resourcePath string) (string, error)
}

// ValidationError describes a raw policy record the transform cannot process.
type ValidationError struct {
	FieldName string
	Message   string
}

// Error describes the invalid field.
func (validationError ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", validationError.FieldName, validationError.Message)
}

var errGraphReaderMissing = errors.New(graphReaderMissingMessageConstant)

// Transformer converts raw policy records into creation-ready payloads.
type Transformer struct {
	logger      *zap.Logger
	graphReader GraphReader
}

// NewTransformer constructs a Transformer with the provided collaborators.
func NewTransformer(logger *zap.Logger, graphReader GraphReader) (*Transformer, error) {
	if graphReader == nil {
		return nil, errGraphReaderMissing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{logger: logger, graphReader: graphReader}, nil
}

// ToCreatable produces the tenant-agnostic creation payload for one raw
// policy, fetching setting instances and resolving encrypted values as the
// kind requires.
func (transformer *Transformer) ToCreatable(executionContext context.Context, kind Kind, rawPolicy map[string]any) (map[string]any, error) {
	switch kind {
	case KindSettingsCatalog:
		return transformer.settingsCatalogToCreatable(executionContext, rawPolicy)
	default:
		return transformer.deviceConfigurationToCreatable(executionContext, rawPolicy)
	}
}

// settingsCatalogToCreatable is an allow-list build: only the listed fields
// ever reach the payload, regardless of what the read endpoint returned.
func (transformer *Transformer) settingsCatalogToCreatable(executionContext context.Context, rawPolicy map[string]any) (map[string]any, error) {
	policyIdentifier, identifierPresent := stringField(rawPolicy, policyIdentifierFieldConstant)
	if !identifierPresent {
		return nil, ValidationError{FieldName: policyIdentifierFieldConstant, Message: identifierMissingMessageConstant}
	}

	creatablePolicy := map[string]any{}
	for _, carriedFieldName := range []string{policyNameFieldConstant, policyDescriptionFieldConstant, policyPlatformsFieldConstant, policyTechnologiesFieldConstant} {
		if fieldValue, fieldPresent := rawPolicy[carriedFieldName]; fieldPresent {
			creatablePolicy[carriedFieldName] = fieldValue
		}
	}

	if templateIdentifier, templatePresent := templateIdentifierOf(rawPolicy); templatePresent {
		creatablePolicy[templateReferenceFieldConstant] = map[string]any{
			templateIdentifierFieldConstant: templateIdentifier,
		}
	}

	settingRecords, settingsFetchError := transformer.graphReader.GetAll(executionContext, SettingsResourcePath(policyIdentifier))
	if settingsFetchError != nil {
		return nil, fmt.Errorf(settingsFetchErrorTemplateConstant, policyIdentifier, settingsFetchError)
	}

	wrappedSettings := make([]any, 0, len(settingRecords))
	for _, settingRecord := range settingRecords {
		settingInstance, instancePresent := settingRecord[settingInstanceFieldConstant]
		if !instancePresent {
			settingInstance = map[string]any(settingRecord)
		}
		wrappedSettings = append(wrappedSettings, map[string]any{settingInstanceFieldConstant: settingInstance})
	}
	creatablePolicy[settingsFieldConstant] = wrappedSettings

	return creatablePolicy, nil
}

// deviceConfigurationToCreatable keeps the profile shape, strips server
// assigned fields, and rebuilds the entire omaSettings collection so that
// encrypted values are replaced with resolved plaintext.
func (transformer *Transformer) deviceConfigurationToCreatable(executionContext context.Context, rawPolicy map[string]any) (map[string]any, error) {
	creatablePolicy := StripServerAssignedFields(rawPolicy)

	rawOmaSettings, omaSettingsPresent := rawPolicy[omaSettingsFieldConstant].([]any)
	if !omaSettingsPresent || len(rawOmaSettings) == 0 {
		return creatablePolicy, nil
	}

	policyIdentifier, identifierPresent := stringField(rawPolicy, policyIdentifierFieldConstant)
	if !identifierPresent {
		return nil, ValidationError{FieldName: policyIdentifierFieldConstant, Message: identifierMissingMessageConstant}
	}

	rebuiltOmaSettings := make([]any, 0, len(rawOmaSettings))
	for _, rawEntry := range rawOmaSettings {
		entryRecord, entryIsRecord := rawEntry.(map[string]any)
		if !entryIsRecord {
			rebuiltOmaSettings = append(rebuiltOmaSettings, rawEntry)
			continue
		}

		rebuiltEntry, rebuildError := transformer.rebuildOmaSetting(executionContext, policyIdentifier, entryRecord)
		if rebuildError != nil {
			return nil, rebuildError
		}
		rebuiltOmaSettings = append(rebuiltOmaSettings, rebuiltEntry)
	}

	creatablePolicy[omaSettingsFieldConstant] = rebuiltOmaSettings
	return creatablePolicy, nil
}

func (transformer *Transformer) rebuildOmaSetting(executionContext context.Context, policyIdentifier string, entryRecord map[string]any) (map[string]any, error) {
	rebuiltEntry := map[string]any{}
	for _, carriedFieldName := range []string{odataTypeFieldConstant, omaDisplayNameFieldConstant, omaDescriptionFieldConstant, omaURIFieldConstant} {
		if fieldValue, fieldPresent := entryRecord[carriedFieldName]; fieldPresent {
			rebuiltEntry[carriedFieldName] = fieldValue
		}
	}

	encryptedFlag, _ := entryRecord[omaIsEncryptedFieldConstant].(bool)
	if !encryptedFlag {
		rebuiltEntry[omaValueFieldConstant] = entryRecord[omaValueFieldConstant]
		return rebuiltEntry, nil
	}

	secretReferenceIdentifier, secretPresent := stringField(entryRecord, secretReferenceFieldConstant)
	if !secretPresent {
		return nil, ValidationError{FieldName: secretReferenceFieldConstant, Message: secretReferenceMissingMessage}
	}

	plaintextValue, resolutionError := transformer.graphReader.GetScalarValue(executionContext, PlaintextResourcePath(policyIdentifier, secretReferenceIdentifier))
	if resolutionError != nil {
		return nil, fmt.Errorf(plaintextErrorTemplateConstant, policyIdentifier, resolutionError)
	}
	rebuiltEntry[omaValueFieldConstant] = plaintextValue

	return rebuiltEntry, nil
}

func templateIdentifierOf(rawPolicy map[string]any) (string, bool) {
	templateReference, referencePresent := rawPolicy[templateReferenceFieldConstant].(map[string]any)
	if !referencePresent {
		return "", false
	}
	return stringField(templateReference, templateIdentifierFieldConstant)
}

func stringField(record map[string]any, fieldName string) (string, bool) {
	rawValue, fieldPresent := record[fieldName]
	if !fieldPresent {
		return "", false
	}
	stringValue, isString := rawValue.(string)
	if !isString || len(stringValue) == 0 {
		return "", false
	}
	return stringValue, true
}
