package staging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/policytools/policymig/internal/policies"
	"github.com/policytools/policymig/internal/staging"
)

type recordedSubmission struct {
	kind    policies.Kind
	payload map[string]any
}

func writeStagedFile(testInstance *testing.T, exportRoot string, kind policies.Kind, fileName string, content []byte) string {
	stagingDirectory := filepath.Join(exportRoot, kind.StagingSubdirectory())
	require.NoError(testInstance, os.MkdirAll(stagingDirectory, 0o755))
	stagedFilePath := filepath.Join(stagingDirectory, fileName)
	require.NoError(testInstance, os.WriteFile(stagedFilePath, content, 0o644))
	return stagedFilePath
}

func TestImportAllSubmitsInLexicalOrderWithStrippedFields(testInstance *testing.T) {
	exportRoot := testInstance.TempDir()

	writeStagedFile(testInstance, exportRoot, policies.KindDeviceConfiguration, "b_profile.json", []byte(`{"displayName":"B","id":"remote-b","version":3}`))
	writeStagedFile(testInstance, exportRoot, policies.KindDeviceConfiguration, "a_profile.json", []byte(`{"displayName":"A","createdDateTime":"2025-01-01T00:00:00Z"}`))
	writeStagedFile(testInstance, exportRoot, policies.KindDeviceConfiguration, "notes.txt", []byte("ignored"))

	var submissions []recordedSubmission
	submit := func(_ context.Context, kind policies.Kind, payload []byte) error {
		var decodedPayload map[string]any
		require.NoError(testInstance, json.Unmarshal(payload, &decodedPayload))
		submissions = append(submissions, recordedSubmission{kind: kind, payload: decodedPayload})
		return nil
	}

	importer := staging.NewImporter(zap.NewNop())
	outcome, importError := importer.ImportAll(context.Background(), policies.KindDeviceConfiguration, exportRoot, submit)
	require.NoError(testInstance, importError)
	require.Len(testInstance, outcome.SubmittedFiles, 2)
	require.Empty(testInstance, outcome.FailedFiles)

	require.Equal(testInstance, "A", submissions[0].payload["displayName"])
	require.NotContains(testInstance, submissions[0].payload, "createdDateTime")
	require.Equal(testInstance, "B", submissions[1].payload["displayName"])
	require.NotContains(testInstance, submissions[1].payload, "id")
	require.NotContains(testInstance, submissions[1].payload, "version")
}

func TestImportAllIsolatesPerFileFailures(testInstance *testing.T) {
	exportRoot := testInstance.TempDir()

	writeStagedFile(testInstance, exportRoot, policies.KindSettingsCatalog, "broken.json", []byte("{not json"))
	writeStagedFile(testInstance, exportRoot, policies.KindSettingsCatalog, "empty.json", []byte("{}"))
	writeStagedFile(testInstance, exportRoot, policies.KindSettingsCatalog, "rejected.json", []byte(`{"name":"Rejected"}`))
	writeStagedFile(testInstance, exportRoot, policies.KindSettingsCatalog, "valid.json", []byte(`{"name":"Valid"}`))

	submissionFailure := errors.New("destination rejected policy")
	submit := func(_ context.Context, _ policies.Kind, payload []byte) error {
		var decodedPayload map[string]any
		require.NoError(testInstance, json.Unmarshal(payload, &decodedPayload))
		if decodedPayload["name"] == "Rejected" {
			return submissionFailure
		}
		return nil
	}

	importer := staging.NewImporter(zap.NewNop())
	outcome, importError := importer.ImportAll(context.Background(), policies.KindSettingsCatalog, exportRoot, submit)
	require.NoError(testInstance, importError)

	require.Len(testInstance, outcome.SubmittedFiles, 1)
	require.Contains(testInstance, outcome.SubmittedFiles[0], "valid.json")
	require.Len(testInstance, outcome.FailedFiles, 3)

	failuresByFile := map[string]error{}
	for _, fileFailure := range outcome.FailedFiles {
		failuresByFile[filepath.Base(fileFailure.FilePath)] = fileFailure.Failure
	}

	var validationError staging.ValidationError
	require.ErrorAs(testInstance, failuresByFile["broken.json"], &validationError)
	require.ErrorAs(testInstance, failuresByFile["empty.json"], &validationError)
	require.ErrorIs(testInstance, failuresByFile["rejected.json"], submissionFailure)
}

func TestImportAllTreatsMissingDirectoryAsEmpty(testInstance *testing.T) {
	importer := staging.NewImporter(zap.NewNop())
	outcome, importError := importer.ImportAll(context.Background(), policies.KindSettingsCatalog, testInstance.TempDir(), func(context.Context, policies.Kind, []byte) error {
		testInstance.Fatal("submit must not be called")
		return nil
	})
	require.NoError(testInstance, importError)
	require.Empty(testInstance, outcome.SubmittedFiles)
	require.Empty(testInstance, outcome.FailedFiles)
}

func TestStageThenImportRoundTrip(testInstance *testing.T) {
	exportRoot := testInstance.TempDir()
	stager := staging.NewExportStager(zap.NewNop(), nil)

	creatablePolicy := map[string]any{
		"name":         "Wi-Fi:Profile",
		"description":  "Corporate Wi-Fi",
		"platforms":    "windows10",
		"technologies": "mdm",
		"settings": []any{
			map[string]any{"settingInstance": map[string]any{"settingDefinitionId": "definition-1"}},
			map[string]any{"settingInstance": map[string]any{"settingDefinitionId": "definition-2"}},
		},
	}

	stagedFilePath, stageError := stager.Stage(policies.KindSettingsCatalog, creatablePolicy, exportRoot)
	require.NoError(testInstance, stageError)
	require.Contains(testInstance, filepath.Base(stagedFilePath), "Wi-Fi_Profile_")

	var submittedPayload map[string]any
	importer := staging.NewImporter(zap.NewNop())
	outcome, importError := importer.ImportAll(context.Background(), policies.KindSettingsCatalog, exportRoot, func(_ context.Context, _ policies.Kind, payload []byte) error {
		return json.Unmarshal(payload, &submittedPayload)
	})
	require.NoError(testInstance, importError)
	require.Len(testInstance, outcome.SubmittedFiles, 1)

	// No deny-listed fields were staged, so the submission equals the staged record.
	require.Equal(testInstance, creatablePolicy, submittedPayload)
}
