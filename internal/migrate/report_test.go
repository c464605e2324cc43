package migrate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
)

func sampleRunSummary() migrate.RunSummary {
	startedAt := time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	return migrate.RunSummary{
		RunID:            "run-report",
		Status:           jobstate.StatusCompleted,
		StartedAt:        startedAt,
		FinishedAt:       startedAt.Add(90 * time.Second),
		ErrorMessage:     "Failed to list source projects: 502 bad gateway",
		Groups:           migrate.CountSummary{Total: 3, Completed: 2, Failed: 1},
		Projects:         migrate.CountSummary{Total: 4, Completed: 3, Failed: 1},
		Identifiers:      []migrate.IdentifierMapping{{OldID: 1, NewID: 100}, {OldID: 2, NewID: 101}},
		FailedNamespaces: []migrate.FailureRecord{{ID: 3, FullPath: "gamma", Reason: "forbidden"}},
		FailedProjects:   []migrate.FailureRecord{{ID: 12, FullPath: "gamma/docs", Reason: "project namespace was not migrated: old namespace 3"}},
	}
}

func TestWriteReportPersistsReadableSummary(testInstance *testing.T) {
	reportPath := filepath.Join(testInstance.TempDir(), "nested", "report.yaml")
	summary := sampleRunSummary()

	require.NoError(testInstance, migrate.WriteReport(reportPath, summary))

	contentBytes, readError := os.ReadFile(reportPath)
	require.NoError(testInstance, readError)
	content := string(contentBytes)
	require.Contains(testInstance, content, "run_id: run-report")
	require.Contains(testInstance, content, "status: completed")
	require.Contains(testInstance, content, "identifier_map:")
	require.Contains(testInstance, content, "old_id: 1")
	require.Contains(testInstance, content, "new_id: 101")
	require.Contains(testInstance, content, "full_path: gamma/docs")
	require.NotContains(testInstance, content, "report_path")

	fileInfo, statError := os.Stat(reportPath)
	require.NoError(testInstance, statError)
	require.Equal(testInstance, os.FileMode(0o644), fileInfo.Mode().Perm())

	loaded, loadError := migrate.ReadReport(reportPath)
	require.NoError(testInstance, loadError)
	summary.ReportPath = reportPath
	require.Equal(testInstance, summary, loaded)
}

func TestWriteReportReplacesPreviousReportWithoutLeftovers(testInstance *testing.T) {
	reportDirectory := testInstance.TempDir()
	reportPath := filepath.Join(reportDirectory, "report.yaml")
	require.NoError(testInstance, migrate.WriteReport(reportPath, sampleRunSummary()))

	replacement := sampleRunSummary()
	replacement.RunID = "run-replacement"
	replacement.FailedNamespaces = nil
	replacement.FailedProjects = nil
	replacement.ErrorMessage = ""
	require.NoError(testInstance, migrate.WriteReport(reportPath, replacement))

	loaded, loadError := migrate.ReadReport(reportPath)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "run-replacement", loaded.RunID)
	require.Empty(testInstance, loaded.FailedNamespaces)
	require.Empty(testInstance, loaded.ErrorMessage)

	entries, listError := os.ReadDir(reportDirectory)
	require.NoError(testInstance, listError)
	require.Len(testInstance, entries, 1)
}

func TestReportRequiresPath(testInstance *testing.T) {
	require.ErrorIs(testInstance, migrate.WriteReport("  ", sampleRunSummary()), migrate.ErrReportPathRequired)

	_, readError := migrate.ReadReport("")
	require.ErrorIs(testInstance, readError, migrate.ErrReportPathRequired)

	_, missingError := migrate.ReadReport(filepath.Join(testInstance.TempDir(), "missing.yaml"))
	require.ErrorIs(testInstance, missingError, os.ErrNotExist)
}
