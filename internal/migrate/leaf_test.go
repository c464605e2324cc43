package migrate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
	"github.com/temirov/glmigrate/internal/migrate/testsupport"
	"github.com/temirov/glmigrate/internal/mirror"
	"github.com/temirov/glmigrate/internal/platform"
)

const (
	leafRunIDConstant               = "run-leaf"
	sourceTeamGroupIDConstant       = 10
	sourceOtherGroupIDConstant      = 11
	targetTeamGroupIDConstant       = 100
	teamPathConstant                = "team"
	otherPathConstant               = "other"
	apiProjectIDConstant            = 20
	apiPathConstant                 = "api"
	apiFullPathConstant             = "team/api"
	dotfilesPathConstant            = "dotfiles"
	existingTargetProjectIDConstant = 700
	sourceAPILocatorConstant        = "https://old.gitlab.example.com/team/api.git"
	targetAPILocatorConstant        = "https://new.gitlab.example.com/team/api.git"
)

type recordingTransferRecorder struct {
	outcomes []string
}

func (recorder *recordingTransferRecorder) RecordTransfer(outcome string) {
	recorder.outcomes = append(recorder.outcomes, outcome)
}

type leafFixture struct {
	source     *testsupport.FakePlatform
	target     *testsupport.FakePlatform
	transferer *testsupport.RecordingTransferer
	recorder   *recordingTransferRecorder
	tracker    *jobstate.Tracker
	runContext *migrate.RunContext
	apiProject platform.Project
}

func newLeafFixture() leafFixture {
	source := testsupport.NewFakePlatform(sourceHostConstant, 0)
	source.AddGroup(sourceTeamGroupIDConstant, 0, teamPathConstant)
	source.AddGroup(sourceOtherGroupIDConstant, 0, otherPathConstant)
	apiProject := source.AddProject(apiProjectIDConstant, platform.NamespaceKindGroup, sourceTeamGroupIDConstant, apiPathConstant)

	target := testsupport.NewFakePlatform(targetHostConstant, targetFirstCreatedIDConstant+100)
	target.AddGroup(targetTeamGroupIDConstant, 0, teamPathConstant)

	runContext := migrate.NewRunContext(leafRunIDConstant)
	runContext.Identifiers.Record(sourceTeamGroupIDConstant, targetTeamGroupIDConstant)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	tracker.Reset(leafRunIDConstant, "start", "projects")

	return leafFixture{
		source:     source,
		target:     target,
		transferer: &testsupport.RecordingTransferer{},
		recorder:   &recordingTransferRecorder{},
		tracker:    tracker,
		runContext: runContext,
		apiProject: apiProject,
	}
}

func (fixture leafFixture) migrator(testInstance *testing.T) *migrate.LeafMigrator {
	testInstance.Helper()
	migrator, migratorError := migrate.NewLeafMigrator(fixture.runContext, migrate.LeafMigratorDependencies{
		Target:     fixture.target,
		Transferer: fixture.transferer,
		Reporter:   fixture.tracker,
		Recorder:   fixture.recorder,
	})
	require.NoError(testInstance, migratorError)
	return migrator
}

func findLogEntry(tracker *jobstate.Tracker, message string) (jobstate.LogEntry, bool) {
	for _, entry := range tracker.Snapshot().Logs {
		if entry.Message == message {
			return entry, true
		}
	}
	return jobstate.LogEntry{}, false
}

func TestNewLeafMigratorValidatesDependencies(testInstance *testing.T) {
	fixture := newLeafFixture()

	_, migratorError := migrate.NewLeafMigrator(nil, migrate.LeafMigratorDependencies{Target: fixture.target, Transferer: fixture.transferer})
	require.ErrorIs(testInstance, migratorError, migrate.ErrRunContextNotConfigured)

	_, migratorError = migrate.NewLeafMigrator(fixture.runContext, migrate.LeafMigratorDependencies{Transferer: fixture.transferer})
	require.ErrorIs(testInstance, migratorError, migrate.ErrPlatformClientNotConfigured)

	_, migratorError = migrate.NewLeafMigrator(fixture.runContext, migrate.LeafMigratorDependencies{Target: fixture.target})
	require.ErrorIs(testInstance, migratorError, migrate.ErrRepositoryTransfererNotConfigured)
}

func TestMigrateLeafCreatesProjectInMappedGroup(testInstance *testing.T) {
	fixture := newLeafFixture()

	require.True(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), fixture.apiProject))

	require.Len(testInstance, fixture.target.CreatedProjects, 1)
	require.Equal(testInstance, targetTeamGroupIDConstant, fixture.target.CreatedProjects[0].NamespaceID)
	require.Equal(testInstance, apiPathConstant, fixture.target.CreatedProjects[0].Path)
	require.Equal(testInstance, []mirror.TransferRequest{{
		ProjectID:     apiProjectIDConstant,
		FullPath:      apiFullPathConstant,
		SourceLocator: sourceAPILocatorConstant,
		TargetLocator: targetAPILocatorConstant,
	}}, fixture.transferer.Requests)
	require.True(testInstance, fixture.runContext.CreatedPaths.Contains(migrate.ScopeKey(targetTeamGroupIDConstant), apiPathConstant))

	projectStats := fixture.tracker.Snapshot().Stats.Projects
	require.Equal(testInstance, 1, projectStats.Completed)
	require.Equal(testInstance, apiFullPathConstant, projectStats.CurrentItemName)
	_, found := findLogEntry(fixture.tracker, "Migrated repository for project team/api")
	require.True(testInstance, found)
	require.Equal(testInstance, []string{mirror.OutcomeSuccess.String()}, fixture.recorder.outcomes)
}

func TestMigrateLeafFailsForUnmappedGroup(testInstance *testing.T) {
	fixture := newLeafFixture()
	orphan := fixture.source.AddProject(21, platform.NamespaceKindGroup, sourceOtherGroupIDConstant, apiPathConstant)

	require.False(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), orphan))

	require.Empty(testInstance, fixture.target.CreatedProjects)
	require.Empty(testInstance, fixture.transferer.Requests)
	failures := fixture.runContext.ProjectFailures()
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, "other/api", failures[0].FullPath)
	require.Contains(testInstance, failures[0].Reason, migrate.ErrNamespaceNotMigrated.Error())
	require.Equal(testInstance, 1, fixture.tracker.Snapshot().Stats.Projects.Failed)
}

func TestMigrateLeafPlacesUserProjectsInTargetUserNamespace(testInstance *testing.T) {
	fixture := newLeafFixture()
	personal := fixture.source.AddProject(30, platform.NamespaceKindUser, 0, dotfilesPathConstant)

	require.True(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), personal))

	require.Len(testInstance, fixture.target.CreatedProjects, 1)
	require.Zero(testInstance, fixture.target.CreatedProjects[0].NamespaceID)
	require.True(testInstance, fixture.runContext.CreatedPaths.Contains(migrate.DefaultOwnerScopeKey, dotfilesPathConstant))
	require.Equal(testInstance, "https://new.gitlab.example.com/migration-bot/dotfiles.git", fixture.transferer.Requests[0].TargetLocator)
}

func TestMigrateLeafRejectsUnsupportedNamespaceKind(testInstance *testing.T) {
	fixture := newLeafFixture()
	project := fixture.apiProject
	project.NamespaceKind = platform.NamespaceKind("organization")

	require.False(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), project))

	require.Empty(testInstance, fixture.target.CreatedProjects)
	require.Contains(testInstance, fixture.runContext.ProjectFailures()[0].Reason, migrate.ErrUnsupportedNamespaceKind.Error())
}

func TestMigrateLeafReusesPathClaimedEarlierInRun(testInstance *testing.T) {
	fixture := newLeafFixture()
	first := fixture.source.AddProject(30, platform.NamespaceKindUser, 0, dotfilesPathConstant)
	second := first
	second.ID = 31
	migrator := fixture.migrator(testInstance)

	require.True(testInstance, migrator.MigrateLeaf(context.Background(), first))
	require.True(testInstance, migrator.MigrateLeaf(context.Background(), second))

	require.Len(testInstance, fixture.target.CreatedProjects, 1)
	require.Equal(testInstance, 1, fixture.target.FindProjectCalls)
	require.Len(testInstance, fixture.transferer.Requests, 2)
	require.Equal(testInstance, fixture.transferer.Requests[0].TargetLocator, fixture.transferer.Requests[1].TargetLocator)
}

func TestMigrateLeafLooksUpProjectAfterConflict(testInstance *testing.T) {
	fixture := newLeafFixture()
	fixture.target.AddProject(existingTargetProjectIDConstant, platform.NamespaceKindGroup, targetTeamGroupIDConstant, apiPathConstant)

	require.True(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), fixture.apiProject))

	require.Len(testInstance, fixture.target.CreatedProjects, 1)
	require.Equal(testInstance, 1, fixture.target.FindProjectCalls)
	require.Equal(testInstance, targetAPILocatorConstant, fixture.transferer.Requests[0].TargetLocator)
	require.True(testInstance, fixture.runContext.CreatedPaths.Contains(migrate.ScopeKey(targetTeamGroupIDConstant), apiPathConstant))

	entry, found := findLogEntry(fixture.tracker, "Project team/api already exists on target, looking it up")
	require.True(testInstance, found)
	require.Equal(testInstance, jobstate.SeverityWarning, entry.Severity)
}

func TestMigrateLeafFailsWhenConflictingProjectCannotBeFound(testInstance *testing.T) {
	fixture := newLeafFixture()
	fixture.target.CreateProjectErrors = map[string]error{
		apiPathConstant: platform.ConflictError{Operation: platform.OperationCreateProject, Path: apiFullPathConstant},
	}

	require.False(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), fixture.apiProject))

	require.Equal(testInstance, 1, fixture.target.FindProjectCalls)
	require.Empty(testInstance, fixture.transferer.Requests)
	require.Contains(testInstance, fixture.runContext.ProjectFailures()[0].Reason, "existing project lookup failed")
}

func TestMigrateLeafDoesNotLookUpAfterOtherCreateErrors(testInstance *testing.T) {
	fixture := newLeafFixture()
	fixture.target.CreateProjectErrors = map[string]error{
		apiPathConstant: platform.OperationError{Operation: platform.OperationCreateProject, Cause: errors.New("quota exceeded")},
	}

	require.False(testInstance, fixture.migrator(testInstance).MigrateLeaf(context.Background(), fixture.apiProject))

	require.Zero(testInstance, fixture.target.FindProjectCalls)
	require.Empty(testInstance, fixture.transferer.Requests)
	require.False(testInstance, fixture.runContext.CreatedPaths.Contains(migrate.ScopeKey(targetTeamGroupIDConstant), apiPathConstant))
	require.Contains(testInstance, fixture.runContext.ProjectFailures()[0].Reason, "quota exceeded")
}

func TestMigrateLeafReportsTransferOutcomes(testInstance *testing.T) {
	testCases := []struct {
		name             string
		outcome          mirror.Outcome
		expectedMigrated bool
		expectedMessage  string
		expectedSeverity jobstate.Severity
	}{
		{
			name:             "hard_failure",
			outcome:          mirror.OutcomeHardFailure,
			expectedMigrated: false,
			expectedSeverity: jobstate.SeverityError,
		},
		{
			name:             "empty_source",
			outcome:          mirror.OutcomeEmptySource,
			expectedMigrated: true,
			expectedMessage:  "Source repository of project team/api is empty, nothing to push",
			expectedSeverity: jobstate.SeverityInfo,
		},
		{
			name:             "acceptable_rejection",
			outcome:          mirror.OutcomeAcceptableRejection,
			expectedMigrated: true,
			expectedMessage:  "Mirrored project team/api; the target rejected hidden refs only",
			expectedSeverity: jobstate.SeverityWarning,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			fixture := newLeafFixture()
			fixture.transferer.Outcomes = map[string]mirror.Outcome{apiFullPathConstant: testCase.outcome}

			migrated := fixture.migrator(subTest).MigrateLeaf(context.Background(), fixture.apiProject)
			require.Equal(subTest, testCase.expectedMigrated, migrated)
			require.Equal(subTest, []string{testCase.outcome.String()}, fixture.recorder.outcomes)

			snapshot := fixture.tracker.Snapshot()
			lastEntry := snapshot.Logs[len(snapshot.Logs)-1]
			require.Equal(subTest, testCase.expectedSeverity, lastEntry.Severity)
			if testCase.expectedMigrated {
				require.Equal(subTest, testCase.expectedMessage, lastEntry.Message)
				require.Equal(subTest, 1, snapshot.Stats.Projects.Completed)
				require.Empty(subTest, fixture.runContext.ProjectFailures())
				return
			}
			require.Contains(subTest, lastEntry.Message, "Failed to migrate project team/api (old ID 20)")
			require.Contains(subTest, lastEntry.Message, "push rejected by target")
			require.Equal(subTest, 1, snapshot.Stats.Projects.Failed)
			require.Len(subTest, fixture.runContext.ProjectFailures(), 1)
		})
	}
}

func TestMigrateLeafSkipsTransferForProjectsListedAsEmpty(testInstance *testing.T) {
	fixture := newLeafFixture()
	emptyProject := fixture.apiProject
	emptyProject.EmptyRepository = true

	migrated := fixture.migrator(testInstance).MigrateLeaf(context.Background(), emptyProject)
	require.True(testInstance, migrated)
	require.Empty(testInstance, fixture.transferer.Requests)
	require.Equal(testInstance, []string{mirror.OutcomeEmptySource.String()}, fixture.recorder.outcomes)

	require.Len(testInstance, fixture.target.CreatedProjects, 1)

	entry, found := findLogEntry(fixture.tracker, "Source instance lists project team/api as empty, skipping the repository transfer")
	require.True(testInstance, found)
	require.Equal(testInstance, jobstate.SeverityInfo, entry.Severity)
	require.Equal(testInstance, 1, fixture.tracker.Snapshot().Stats.Projects.Completed)
}

func TestMigrateLeafFailsProjectWithoutCloneLocator(testInstance *testing.T) {
	fixture := newLeafFixture()
	unreachableProject := fixture.apiProject
	unreachableProject.CloneLocator = ""

	migrated := fixture.migrator(testInstance).MigrateLeaf(context.Background(), unreachableProject)
	require.False(testInstance, migrated)
	require.Empty(testInstance, fixture.transferer.Requests)

	require.Empty(testInstance, fixture.target.CreatedProjects)

	failures := fixture.runContext.ProjectFailures()
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, apiFullPathConstant, failures[0].FullPath)
	require.Equal(testInstance, migrate.ErrCloneLocatorMissing.Error(), failures[0].Reason)
	require.Equal(testInstance, 1, fixture.tracker.Snapshot().Stats.Projects.Failed)
}
