package staging_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/policytools/policymig/internal/policies"
	"github.com/policytools/policymig/internal/staging"
)

func fixedClock(fixedTime time.Time) staging.Clock {
	return func() time.Time { return fixedTime }
}

func TestSanitizeDisplayName(testInstance *testing.T) {
	testCases := []struct {
		name          string
		displayName   string
		sanitizedName string
	}{
		{name: "mixed_separators", displayName: "A/B:C*D", sanitizedName: "A_B_C_D"},
		{name: "windows_reserved", displayName: `profile<1>|"2"?\`, sanitizedName: "profile_1____2___"},
		{name: "clean_name", displayName: "Baseline Policy", sanitizedName: "Baseline Policy"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.sanitizedName, staging.SanitizeDisplayName(testCase.displayName))
		})
	}
}

func TestStageWritesTimestampedFile(testInstance *testing.T) {
	exportRoot := testInstance.TempDir()
	stageTime := time.Date(2025, 7, 9, 14, 5, 9, 0, time.UTC)
	stager := staging.NewExportStager(zap.NewNop(), fixedClock(stageTime))

	creatablePolicy := map[string]any{
		"name":     "Wi-Fi:Profile",
		"settings": []any{map[string]any{"settingInstance": map[string]any{"settingDefinitionId": "definition-1"}}},
	}

	stagedFilePath, stageError := stager.Stage(policies.KindSettingsCatalog, creatablePolicy, exportRoot)
	require.NoError(testInstance, stageError)
	require.Equal(testInstance, filepath.Join(exportRoot, "SettingsCatalog", "Wi-Fi_Profile_09072025-14-05-09.json"), stagedFilePath)

	stagedContent, readError := os.ReadFile(stagedFilePath)
	require.NoError(testInstance, readError)

	var roundTrippedRecord map[string]any
	require.NoError(testInstance, json.Unmarshal(stagedContent, &roundTrippedRecord))
	require.Equal(testInstance, "Wi-Fi:Profile", roundTrippedRecord["name"])
}

func TestStageRoundTripsDeepNesting(testInstance *testing.T) {
	exportRoot := testInstance.TempDir()
	stager := staging.NewExportStager(zap.NewNop(), nil)

	deepPolicy := map[string]any{
		"name": "Deep",
		"settings": []any{
			map[string]any{
				"settingInstance": map[string]any{
					"groupSettingCollectionValue": []any{
						map[string]any{
							"children": []any{
								map[string]any{"simpleSettingValue": map[string]any{"value": "leaf"}},
							},
						},
					},
				},
			},
		},
	}

	stagedFilePath, stageError := stager.Stage(policies.KindSettingsCatalog, deepPolicy, exportRoot)
	require.NoError(testInstance, stageError)

	stagedContent, readError := os.ReadFile(stagedFilePath)
	require.NoError(testInstance, readError)

	var roundTrippedRecord map[string]any
	require.NoError(testInstance, json.Unmarshal(stagedContent, &roundTrippedRecord))
	require.Equal(testInstance, deepPolicy, roundTrippedRecord)
}

func TestStageTwiceProducesDistinctFiles(testInstance *testing.T) {
	exportRoot := testInstance.TempDir()
	stageTime := time.Date(2025, 7, 9, 14, 5, 9, 0, time.UTC)
	stager := staging.NewExportStager(zap.NewNop(), fixedClock(stageTime))

	creatablePolicy := map[string]any{"displayName": "Repeat profile"}

	firstPath, firstError := stager.Stage(policies.KindDeviceConfiguration, creatablePolicy, exportRoot)
	require.NoError(testInstance, firstError)
	secondPath, secondError := stager.Stage(policies.KindDeviceConfiguration, creatablePolicy, exportRoot)
	require.NoError(testInstance, secondError)

	require.NotEqual(testInstance, firstPath, secondPath)
	require.FileExists(testInstance, firstPath)
	require.FileExists(testInstance, secondPath)
}

func TestStageValidatesInputs(testInstance *testing.T) {
	stager := staging.NewExportStager(zap.NewNop(), nil)

	_, emptyRecordError := stager.Stage(policies.KindSettingsCatalog, map[string]any{}, testInstance.TempDir())
	var validationError staging.ValidationError
	require.ErrorAs(testInstance, emptyRecordError, &validationError)

	_, missingRootError := stager.Stage(policies.KindSettingsCatalog, map[string]any{"name": "x"}, "  ")
	require.ErrorAs(testInstance, missingRootError, &validationError)

	_, missingNameError := stager.Stage(policies.KindSettingsCatalog, map[string]any{"displayName": "wrong field"}, testInstance.TempDir())
	require.ErrorAs(testInstance, missingNameError, &validationError)

	_, absentRootError := stager.Stage(policies.KindSettingsCatalog, map[string]any{"name": "x"}, filepath.Join(testInstance.TempDir(), "missing"))
	require.Error(testInstance, absentRootError)
	var pathValidationError staging.ValidationError
	require.False(testInstance, errors.As(absentRootError, &pathValidationError))
}
