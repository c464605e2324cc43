package migrate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
	"github.com/temirov/glmigrate/internal/migrate/testsupport"
	"github.com/temirov/glmigrate/internal/platform"
)

const (
	hierarchyRunIDConstant          = "run-hierarchy"
	sourceHostConstant              = "old.gitlab.example.com"
	targetHostConstant              = "new.gitlab.example.com"
	targetFirstCreatedIDConstant    = 100
	alphaGroupIDConstant            = 1
	betaGroupIDConstant             = 2
	gammaGroupIDConstant            = 3
	alphaPathConstant               = "alpha"
	betaPathConstant                = "beta"
	gammaPathConstant               = "gamma"
	landingGroupIDConstant          = 900
	landingPathConstant             = "landing"
	preexistingAlphaIDConstant      = 500
	unresolvedConflictCauseConstant = "path conflict could not be resolved"
)

type hierarchyFixture struct {
	source     *testsupport.FakePlatform
	target     *testsupport.FakePlatform
	tracker    *jobstate.Tracker
	runContext *migrate.RunContext
}

func newHierarchyFixture() hierarchyFixture {
	source := testsupport.NewFakePlatform(sourceHostConstant, 0)
	source.AddGroup(alphaGroupIDConstant, 0, alphaPathConstant)
	source.AddGroup(betaGroupIDConstant, alphaGroupIDConstant, betaPathConstant)
	source.AddGroup(gammaGroupIDConstant, 0, gammaPathConstant)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	tracker.Reset(hierarchyRunIDConstant, "start", "walking")

	return hierarchyFixture{
		source:     source,
		target:     testsupport.NewFakePlatform(targetHostConstant, targetFirstCreatedIDConstant),
		tracker:    tracker,
		runContext: migrate.NewRunContext(hierarchyRunIDConstant),
	}
}

func (fixture hierarchyFixture) walker(testInstance *testing.T, pageSize int) *migrate.HierarchyWalker {
	testInstance.Helper()
	walker, walkerError := migrate.NewHierarchyWalker(fixture.runContext, pageSize, migrate.HierarchyWalkerDependencies{
		Source:   fixture.source,
		Target:   fixture.target,
		Reporter: fixture.tracker,
	})
	require.NoError(testInstance, walkerError)
	return walker
}

func logMessages(tracker *jobstate.Tracker) []string {
	entries := tracker.Snapshot().Logs
	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}
	return messages
}

func containsMessage(messages []string, fragment string) bool {
	for _, message := range messages {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

func createdNamespacePaths(fake *testsupport.FakePlatform) []string {
	paths := make([]string, 0, len(fake.CreatedNamespaces))
	for _, spec := range fake.CreatedNamespaces {
		paths = append(paths, spec.Path)
	}
	return paths
}

func TestNewHierarchyWalkerValidatesDependencies(testInstance *testing.T) {
	fixture := newHierarchyFixture()

	_, walkerError := migrate.NewHierarchyWalker(nil, 0, migrate.HierarchyWalkerDependencies{Source: fixture.source, Target: fixture.target})
	require.ErrorIs(testInstance, walkerError, migrate.ErrRunContextNotConfigured)

	_, walkerError = migrate.NewHierarchyWalker(fixture.runContext, 0, migrate.HierarchyWalkerDependencies{Source: fixture.source})
	require.ErrorIs(testInstance, walkerError, migrate.ErrPlatformClientNotConfigured)
}

func TestMigrateSubtreeReproducesTreeDepthFirst(testInstance *testing.T) {
	fixture := newHierarchyFixture()

	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))

	require.Equal(testInstance, []string{alphaPathConstant, betaPathConstant, gammaPathConstant}, createdNamespacePaths(fixture.target))
	require.Equal(testInstance, 0, fixture.target.CreatedNamespaces[0].ParentID)
	require.Equal(testInstance, targetFirstCreatedIDConstant, fixture.target.CreatedNamespaces[1].ParentID)
	require.Equal(testInstance, 0, fixture.target.CreatedNamespaces[2].ParentID)
	require.Equal(testInstance, "Alpha", fixture.target.CreatedNamespaces[0].Name)
	require.Equal(testInstance, platform.VisibilityPrivate, fixture.target.CreatedNamespaces[0].Visibility)

	require.Equal(testInstance, []migrate.IdentifierMapping{
		{OldID: alphaGroupIDConstant, NewID: 100},
		{OldID: betaGroupIDConstant, NewID: 101},
		{OldID: gammaGroupIDConstant, NewID: 102},
	}, fixture.runContext.Identifiers.Entries())

	beta, found := fixture.target.NamespaceByFullPath(alphaPathConstant + "/" + betaPathConstant)
	require.True(testInstance, found)
	require.Equal(testInstance, 101, beta.ID)

	groupStats := fixture.tracker.Snapshot().Stats.Groups
	require.Equal(testInstance, 3, groupStats.Completed)
	require.Zero(testInstance, groupStats.Failed)
	require.Equal(testInstance, gammaPathConstant, groupStats.CurrentItemName)
	require.True(testInstance, containsMessage(logMessages(fixture.tracker), "Migrated group alpha/beta (old ID 2 -> new ID 101)"))
}

func TestMigrateSubtreeReusesExistingTargetGroups(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))
	firstEntries := fixture.runContext.Identifiers.Entries()
	createdBefore := len(fixture.target.CreatedNamespaces)

	secondRun := fixture
	secondRun.runContext = migrate.NewRunContext("run-second")
	require.NoError(testInstance, secondRun.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))

	require.Len(testInstance, fixture.target.CreatedNamespaces, createdBefore)
	require.Equal(testInstance, firstEntries, secondRun.runContext.Identifiers.Entries())
	require.True(testInstance, containsMessage(logMessages(fixture.tracker), "Group alpha already exists on target (new ID 100), reusing it"))
}

func TestMigrateSubtreeSkipsLookupsForMappedGroups(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	walker := fixture.walker(testInstance, 0)
	require.NoError(testInstance, walker.MigrateSubtree(context.Background(), 0, 0))
	searchesBefore := len(fixture.target.SearchCalls)
	createdBefore := len(fixture.target.CreatedNamespaces)

	require.NoError(testInstance, walker.MigrateSubtree(context.Background(), 0, 0))

	require.Len(testInstance, fixture.target.SearchCalls, searchesBefore)
	require.Len(testInstance, fixture.target.CreatedNamespaces, createdBefore)
	require.Equal(testInstance, 3, fixture.runContext.Identifiers.Len())
}

func TestMigrateSubtreeResolvesConflictByLookingUpAgain(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	fixture.target.AddGroup(preexistingAlphaIDConstant, 0, alphaPathConstant)
	fixture.target.SearchLag = 1

	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))

	newID, mapped := fixture.runContext.Identifiers.Lookup(alphaGroupIDConstant)
	require.True(testInstance, mapped)
	require.Equal(testInstance, preexistingAlphaIDConstant, newID)
	require.Equal(testInstance, []string{alphaPathConstant, betaPathConstant, gammaPathConstant}, createdNamespacePaths(fixture.target))
	require.Equal(testInstance, preexistingAlphaIDConstant, fixture.target.CreatedNamespaces[1].ParentID)
	require.Empty(testInstance, fixture.runContext.NamespaceFailures())

	snapshot := fixture.tracker.Snapshot()
	require.Equal(testInstance, 3, snapshot.Stats.Groups.Completed)
	var warned bool
	for _, entry := range snapshot.Logs {
		if entry.Severity == jobstate.SeverityWarning && strings.Contains(entry.Message, "Group path alpha is already taken on target") {
			warned = true
		}
	}
	require.True(testInstance, warned)
}

func TestMigrateSubtreeSkipsSubtreeOfUnresolvedConflict(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	fixture.target.CreateNamespaceErrors = map[string]error{
		alphaPathConstant: platform.ConflictError{Operation: platform.OperationCreateNamespace, Path: alphaPathConstant},
	}

	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))

	failures := fixture.runContext.NamespaceFailures()
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, alphaGroupIDConstant, failures[0].ID)
	require.Equal(testInstance, alphaPathConstant, failures[0].FullPath)
	require.Contains(testInstance, failures[0].Reason, unresolvedConflictCauseConstant)

	require.Equal(testInstance, []string{alphaPathConstant, gammaPathConstant}, createdNamespacePaths(fixture.target))
	_, betaMapped := fixture.runContext.Identifiers.Lookup(betaGroupIDConstant)
	require.False(testInstance, betaMapped)
	_, gammaMapped := fixture.runContext.Identifiers.Lookup(gammaGroupIDConstant)
	require.True(testInstance, gammaMapped)

	groupStats := fixture.tracker.Snapshot().Stats.Groups
	require.Equal(testInstance, 1, groupStats.Completed)
	require.Equal(testInstance, 1, groupStats.Failed)
	require.True(testInstance, containsMessage(logMessages(fixture.tracker), "Skipping its subgroups and projects."))
}

func TestMigrateSubtreeDoesNotRetryOtherCreateErrors(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	fixture.target.CreateNamespaceErrors = map[string]error{
		gammaPathConstant: platform.OperationError{Operation: platform.OperationCreateNamespace, Cause: errors.New("forbidden")},
	}

	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))

	gammaSearches := 0
	for _, searchedPath := range fixture.target.SearchCalls {
		if searchedPath == gammaPathConstant {
			gammaSearches++
		}
	}
	require.Equal(testInstance, 1, gammaSearches)

	failures := fixture.runContext.NamespaceFailures()
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, gammaGroupIDConstant, failures[0].ID)
	require.Contains(testInstance, failures[0].Reason, "forbidden")
}

func TestMigrateSubtreeAbortsOnlyTheBranchWhoseListingFailed(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	fixture.source.ListNamespacesErrors = map[int]error{alphaGroupIDConstant: errors.New("listing timed out")}

	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, 0))

	require.Equal(testInstance, []string{alphaPathConstant, gammaPathConstant}, createdNamespacePaths(fixture.target))
	require.True(testInstance, containsMessage(logMessages(fixture.tracker), "Failed to list groups under old parent 1: listing timed out"))
	require.Equal(testInstance, 2, fixture.tracker.Snapshot().Stats.Groups.Completed)
}

func TestMigrateSubtreeCreatesBeneathTargetParent(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	fixture.target.AddGroup(landingGroupIDConstant, 0, landingPathConstant)

	require.NoError(testInstance, fixture.walker(testInstance, 0).MigrateSubtree(context.Background(), 0, landingGroupIDConstant))

	require.Empty(testInstance, fixture.target.SearchCalls)
	require.Positive(testInstance, fixture.target.ListNamespacesCalls)
	require.Equal(testInstance, landingGroupIDConstant, fixture.target.CreatedNamespaces[0].ParentID)
	require.Equal(testInstance, landingGroupIDConstant, fixture.target.CreatedNamespaces[2].ParentID)

	alpha, found := fixture.target.NamespaceByFullPath(landingPathConstant + "/" + alphaPathConstant)
	require.True(testInstance, found)
	newID, _ := fixture.runContext.Identifiers.Lookup(alphaGroupIDConstant)
	require.Equal(testInstance, alpha.ID, newID)
}

func TestMigrateSubtreeFollowsPagination(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	fixture.source = testsupport.NewFakePlatform(sourceHostConstant, 0)
	for groupIndex := 1; groupIndex <= 5; groupIndex++ {
		fixture.source.AddGroup(groupIndex, 0, "group"+string(rune('a'+groupIndex)))
	}

	require.NoError(testInstance, fixture.walker(testInstance, 2).MigrateSubtree(context.Background(), 0, 0))

	require.Equal(testInstance, 5, fixture.runContext.Identifiers.Len())
	require.Len(testInstance, fixture.target.CreatedNamespaces, 5)
	require.Equal(testInstance, 8, fixture.source.ListNamespacesCalls)
}

func TestMigrateSubtreeStopsOnCancellation(testInstance *testing.T) {
	fixture := newHierarchyFixture()
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	walkError := fixture.walker(testInstance, 0).MigrateSubtree(cancelledContext, 0, 0)

	require.ErrorIs(testInstance, walkError, context.Canceled)
	require.Empty(testInstance, fixture.target.CreatedNamespaces)
	require.Empty(testInstance, fixture.runContext.NamespaceFailures())
}
