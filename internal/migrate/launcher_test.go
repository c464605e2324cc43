package migrate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
)

const (
	launchedRunIDConstant          = "run-launched"
	wrapperFinishedMessageConstant = "Migration task wrapper finished."
	alreadyRunningMessageConstant  = "Migration is already in progress."
	launcherTestTimeoutConstant    = 5 * time.Second
)

type scriptedRunner struct {
	tracker  *jobstate.Tracker
	script   func(executionContext context.Context, runID string) error
	started  chan struct{}
	finished chan error
}

func newScriptedRunner(tracker *jobstate.Tracker, script func(executionContext context.Context, runID string) error) *scriptedRunner {
	return &scriptedRunner{
		tracker:  tracker,
		script:   script,
		started:  make(chan struct{}, 1),
		finished: make(chan error, 1),
	}
}

func (runner *scriptedRunner) RunWithID(executionContext context.Context, runID string) (migrate.RunSummary, error) {
	runner.tracker.Reset(runID, "Starting migration run "+runID+".", "Initiating migration")
	runner.started <- struct{}{}
	runError := runner.script(executionContext, runID)
	runner.finished <- runError
	return migrate.RunSummary{RunID: runID}, runError
}

func (runner *scriptedRunner) awaitStart(testInstance *testing.T) {
	testInstance.Helper()
	select {
	case <-runner.started:
	case <-time.After(launcherTestTimeoutConstant):
		testInstance.Fatal("migration run did not start")
	}
}

func newTestLauncher(testInstance *testing.T, runner migrate.Runner, tracker *jobstate.Tracker) *migrate.Launcher {
	testInstance.Helper()
	launcher, launcherError := migrate.NewLauncher(migrate.LauncherDependencies{
		Runner:         runner,
		Tracker:        tracker,
		RunIDGenerator: func() string { return launchedRunIDConstant },
	})
	require.NoError(testInstance, launcherError)
	return launcher
}

func TestNewLauncherValidatesDependencies(testInstance *testing.T) {
	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})

	_, launcherError := migrate.NewLauncher(migrate.LauncherDependencies{Tracker: tracker})
	require.ErrorIs(testInstance, launcherError, migrate.ErrRunnerNotConfigured)

	_, launcherError = migrate.NewLauncher(migrate.LauncherDependencies{Runner: newScriptedRunner(tracker, nil)})
	require.ErrorIs(testInstance, launcherError, migrate.ErrTrackerNotConfigured)
}

func TestLauncherStartRunsMigrationInBackground(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	runner := newScriptedRunner(tracker, func(context.Context, string) error {
		tracker.Apply(jobstate.Update{Message: "=== MIGRATION COMPLETE ===", Status: jobstate.StatusCompleted, Action: "Completed"})
		return nil
	})
	launcher := newTestLauncher(testInstance, runner, tracker)
	defer launcher.Shutdown()

	response, startError := launcher.Start(context.Background())
	require.NoError(testInstance, startError)
	require.Equal(testInstance, migrate.StartResponse{Accepted: true, Message: "Migration started.", RunID: launchedRunIDConstant}, response)

	launcher.Wait()

	snapshot := tracker.Snapshot()
	require.Equal(testInstance, launchedRunIDConstant, snapshot.RunID)
	require.Equal(testInstance, jobstate.StatusCompleted, snapshot.Status)
	require.Equal(testInstance, "Idle", snapshot.CurrentAction)
	require.Equal(testInstance, wrapperFinishedMessageConstant, snapshot.Logs[len(snapshot.Logs)-1].Message)
	require.False(testInstance, launcher.IsActive())
}

func TestLauncherRejectsStartWhileRunIsActive(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	release := make(chan struct{})
	runner := newScriptedRunner(tracker, func(context.Context, string) error {
		tracker.Apply(jobstate.Update{Status: jobstate.StatusMigratingProjects, Action: "Migrating projects"})
		<-release
		tracker.Apply(jobstate.Update{Status: jobstate.StatusCompleted})
		return nil
	})
	launcher := newTestLauncher(testInstance, runner, tracker)
	defer launcher.Shutdown()

	_, startError := launcher.Start(context.Background())
	require.NoError(testInstance, startError)
	runner.awaitStart(testInstance)
	require.Eventually(testInstance, func() bool {
		return tracker.Status() == jobstate.StatusMigratingProjects
	}, launcherTestTimeoutConstant, time.Millisecond)
	before := tracker.Snapshot()

	response, secondStartError := launcher.Start(context.Background())
	require.NoError(testInstance, secondStartError)
	require.Equal(testInstance, migrate.StartResponse{Accepted: false, Message: alreadyRunningMessageConstant}, response)
	require.Equal(testInstance, before, tracker.Snapshot())
	require.True(testInstance, launcher.IsActive())

	close(release)
	launcher.Wait()
	require.Equal(testInstance, jobstate.StatusCompleted, tracker.Status())
}

func TestLauncherRecordsPanickingRun(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	runner := newScriptedRunner(tracker, func(context.Context, string) error {
		panic("git binary vanished")
	})
	launcher := newTestLauncher(testInstance, runner, tracker)
	defer launcher.Shutdown()

	_, startError := launcher.Start(context.Background())
	require.NoError(testInstance, startError)
	launcher.Wait()

	snapshot := tracker.Snapshot()
	require.Equal(testInstance, jobstate.StatusError, snapshot.Status)
	require.Equal(testInstance, "CRITICAL THREAD ERROR: Migration task failed: git binary vanished", snapshot.ErrorMessage)
	require.Equal(testInstance, wrapperFinishedMessageConstant, snapshot.Logs[len(snapshot.Logs)-1].Message)
	require.False(testInstance, launcher.IsActive())
}

func TestLauncherFailsRunThatEndsWithoutTerminalStatus(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	runner := newScriptedRunner(tracker, func(context.Context, string) error {
		tracker.Apply(jobstate.Update{Status: jobstate.StatusMigratingGroups})
		return nil
	})
	launcher := newTestLauncher(testInstance, runner, tracker)
	defer launcher.Shutdown()

	_, startError := launcher.Start(context.Background())
	require.NoError(testInstance, startError)
	launcher.Wait()

	snapshot := tracker.Snapshot()
	require.Equal(testInstance, jobstate.StatusError, snapshot.Status)
	require.Equal(testInstance, "Task wrapper ended unexpectedly.", snapshot.ErrorMessage)
	require.Contains(testInstance, logMessages(tracker), "Migration task wrapper ended before the run finished.")
}

func TestLauncherRunOutlivesRequestContext(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	release := make(chan struct{})
	runner := newScriptedRunner(tracker, func(executionContext context.Context, _ string) error {
		select {
		case <-release:
		case <-executionContext.Done():
		}
		tracker.Apply(jobstate.Update{Status: jobstate.StatusCompleted})
		return executionContext.Err()
	})
	launcher := newTestLauncher(testInstance, runner, tracker)
	defer launcher.Shutdown()

	requestContext, cancelRequest := context.WithCancel(context.Background())
	_, startError := launcher.Start(requestContext)
	require.NoError(testInstance, startError)
	runner.awaitStart(testInstance)
	cancelRequest()

	close(release)
	launcher.Wait()
	require.NoError(testInstance, <-runner.finished)
}

func TestLauncherShutdownCancelsRunAndRejectsStarts(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	tracker := jobstate.NewTracker(0, jobstate.TrackerDependencies{})
	runner := newScriptedRunner(tracker, func(executionContext context.Context, _ string) error {
		<-executionContext.Done()
		message := "Migration cancelled: " + executionContext.Err().Error()
		tracker.Apply(jobstate.Update{Message: message, Severity: jobstate.SeverityError, Status: jobstate.StatusError, ErrorMessage: message})
		return executionContext.Err()
	})
	launcher := newTestLauncher(testInstance, runner, tracker)

	_, startError := launcher.Start(context.Background())
	require.NoError(testInstance, startError)
	runner.awaitStart(testInstance)

	launcher.Shutdown()
	launcher.Wait()

	require.ErrorIs(testInstance, <-runner.finished, context.Canceled)
	require.Equal(testInstance, jobstate.StatusError, tracker.Status())
	require.Equal(testInstance, "Migration cancelled: context canceled", tracker.Snapshot().ErrorMessage)

	_, restartError := launcher.Start(context.Background())
	require.ErrorIs(testInstance, restartError, migrate.ErrLauncherStopped)
}
