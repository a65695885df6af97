package graphauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	secretSourceSeparatorConstant              = ":"
	environmentSecretSourceTypeValueConstant   = "env"
	fileSecretSourceTypeValueConstant          = "file"
	secretSourceMissingErrorMessageConstant    = "client secret source must be provided"
	environmentNameMissingErrorMessageConstant = "environment variable name must be provided"
	filePathMissingErrorMessageConstant        = "secret file path must be provided"
	environmentLookupNilErrorMessageConstant   = "environment lookup function not configured"
	fileReaderNilErrorMessageConstant          = "file reader function not configured"
	environmentSecretMissingTemplateConstant   = "environment variable %s is not set"
	fileReadErrorTemplateConstant              = "unable to read secret file %s: %w"
	fileSecretEmptyErrorTemplateConstant       = "secret file %s is empty"
	unsupportedSecretSourceTemplateConstant    = "unsupported client secret source type %q"
)

// SecretSourceType enumerates the supported client secret retrieval mechanisms.
type SecretSourceType string

// Secret source type enumerations.
const (
	SecretSourceTypeEnvironment SecretSourceType = SecretSourceType(environmentSecretSourceTypeValueConstant)
	SecretSourceTypeFile        SecretSourceType = SecretSourceType(fileSecretSourceTypeValueConstant)
)

// SecretSourceConfiguration specifies how to locate a tenant client secret.
type SecretSourceConfiguration struct {
	Type      SecretSourceType
	Reference string
}

// ParseSecretSource interprets "env:NAME" and "file:/path" specifications.
func ParseSecretSource(specification string) (SecretSourceConfiguration, error) {
	trimmedSpecification := strings.TrimSpace(specification)
	if len(trimmedSpecification) == 0 {
		return SecretSourceConfiguration{}, errors.New(secretSourceMissingErrorMessageConstant)
	}

	sourceType, reference, separatorFound := strings.Cut(trimmedSpecification, secretSourceSeparatorConstant)
	if !separatorFound {
		return SecretSourceConfiguration{}, fmt.Errorf(unsupportedSecretSourceTemplateConstant, trimmedSpecification)
	}

	configuration := SecretSourceConfiguration{
		Type:      SecretSourceType(strings.ToLower(strings.TrimSpace(sourceType))),
		Reference: strings.TrimSpace(reference),
	}

	switch configuration.Type {
	case SecretSourceTypeEnvironment:
		if len(configuration.Reference) == 0 {
			return SecretSourceConfiguration{}, errors.New(environmentNameMissingErrorMessageConstant)
		}
	case SecretSourceTypeFile:
		if len(configuration.Reference) == 0 {
			return SecretSourceConfiguration{}, errors.New(filePathMissingErrorMessageConstant)
		}
	default:
		return SecretSourceConfiguration{}, fmt.Errorf(unsupportedSecretSourceTemplateConstant, string(configuration.Type))
	}

	return configuration, nil
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

// SecretResolver retrieves client secrets from configured sources.
type SecretResolver interface {
	ResolveSecret(source SecretSourceConfiguration) (string, error)
}

type defaultSecretResolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
}

// NewSecretResolver creates a secret resolver with optional dependency overrides.
func NewSecretResolver(environmentLookup EnvironmentLookup, fileReader FileReader) SecretResolver {
	resolvedEnvironmentLookup := environmentLookup
	if resolvedEnvironmentLookup == nil {
		resolvedEnvironmentLookup = os.LookupEnv
	}

	resolvedFileReader := fileReader
	if resolvedFileReader == nil {
		resolvedFileReader = os.ReadFile
	}

	return &defaultSecretResolver{
		environmentLookup: resolvedEnvironmentLookup,
		fileReader:        resolvedFileReader,
	}
}

// ResolveSecret returns the client secret described by the provided source configuration.
func (resolver *defaultSecretResolver) ResolveSecret(source SecretSourceConfiguration) (string, error) {
	switch source.Type {
	case SecretSourceTypeEnvironment:
		if resolver.environmentLookup == nil {
			return "", errors.New(environmentLookupNilErrorMessageConstant)
		}
		secretValue, exists := resolver.environmentLookup(source.Reference)
		trimmedSecret := strings.TrimSpace(secretValue)
		if !exists || len(trimmedSecret) == 0 {
			return "", fmt.Errorf(environmentSecretMissingTemplateConstant, source.Reference)
		}
		return trimmedSecret, nil
	case SecretSourceTypeFile:
		if resolver.fileReader == nil {
			return "", errors.New(fileReaderNilErrorMessageConstant)
		}
		secretContent, readError := resolver.fileReader(source.Reference)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplateConstant, source.Reference, readError)
		}
		trimmedSecret := strings.TrimSpace(string(secretContent))
		if len(trimmedSecret) == 0 {
			return "", fmt.Errorf(fileSecretEmptyErrorTemplateConstant, source.Reference)
		}
		return trimmedSecret, nil
	default:
		return "", fmt.Errorf(unsupportedSecretSourceTemplateConstant, string(source.Type))
	}
}
