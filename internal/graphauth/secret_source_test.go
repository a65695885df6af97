package graphauth_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/policytools/policymig/internal/graphauth"
)

func TestParseSecretSource(testInstance *testing.T) {
	testCases := []struct {
		name          string
		specification string
		expectedType  graphauth.SecretSourceType
		expectedRef   string
		expectError   bool
	}{
		{name: "environment_source", specification: "env:AZURE_CLIENT_SECRET", expectedType: graphauth.SecretSourceTypeEnvironment, expectedRef: "AZURE_CLIENT_SECRET"},
		{name: "file_source", specification: "file:/var/run/secrets/graph", expectedType: graphauth.SecretSourceTypeFile, expectedRef: "/var/run/secrets/graph"},
		{name: "mixed_case_type", specification: "ENV:SECRET_NAME", expectedType: graphauth.SecretSourceTypeEnvironment, expectedRef: "SECRET_NAME"},
		{name: "missing_separator", specification: "AZURE_CLIENT_SECRET", expectError: true},
		{name: "empty_specification", specification: "   ", expectError: true},
		{name: "unknown_type", specification: "vault:secret/path", expectError: true},
		{name: "environment_without_name", specification: "env:", expectError: true},
		{name: "file_without_path", specification: "file:", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			configuration, parseError := graphauth.ParseSecretSource(testCase.specification)
			if testCase.expectError {
				require.Error(subTest, parseError)
				return
			}
			require.NoError(subTest, parseError)
			require.Equal(subTest, testCase.expectedType, configuration.Type)
			require.Equal(subTest, testCase.expectedRef, configuration.Reference)
		})
	}
}

func TestResolveSecretFromEnvironment(testInstance *testing.T) {
	environmentValues := map[string]string{"GRAPH_SECRET": "  s3cret  "}
	lookup := func(key string) (string, bool) {
		value, exists := environmentValues[key]
		return value, exists
	}

	resolver := graphauth.NewSecretResolver(lookup, nil)

	secretValue, resolveError := resolver.ResolveSecret(graphauth.SecretSourceConfiguration{
		Type:      graphauth.SecretSourceTypeEnvironment,
		Reference: "GRAPH_SECRET",
	})
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, "s3cret", secretValue)

	_, missingError := resolver.ResolveSecret(graphauth.SecretSourceConfiguration{
		Type:      graphauth.SecretSourceTypeEnvironment,
		Reference: "ABSENT_SECRET",
	})
	require.Error(testInstance, missingError)
}

func TestResolveSecretFromFile(testInstance *testing.T) {
	fileContents := map[string][]byte{"/secrets/graph": []byte("file-secret\n")}
	reader := func(path string) ([]byte, error) {
		content, exists := fileContents[path]
		if !exists {
			return nil, errors.New("no such file")
		}
		return content, nil
	}

	resolver := graphauth.NewSecretResolver(nil, reader)

	secretValue, resolveError := resolver.ResolveSecret(graphauth.SecretSourceConfiguration{
		Type:      graphauth.SecretSourceTypeFile,
		Reference: "/secrets/graph",
	})
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, "file-secret", secretValue)

	_, readError := resolver.ResolveSecret(graphauth.SecretSourceConfiguration{
		Type:      graphauth.SecretSourceTypeFile,
		Reference: "/secrets/missing",
	})
	require.Error(testInstance, readError)

	fileContents["/secrets/empty"] = []byte("   \n")
	_, emptyError := resolver.ResolveSecret(graphauth.SecretSourceConfiguration{
		Type:      graphauth.SecretSourceTypeFile,
		Reference: "/secrets/empty",
	})
	require.Error(testInstance, emptyError)
}
