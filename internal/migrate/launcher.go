package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/jobstate"
)

const (
	migrationStartedMessageConstant        = "Migration started."
	migrationAlreadyRunningMessageConstant = "Migration is already in progress."
	startRequestReceivedMessageConstant    = "Received request to start migration."
	criticalTaskErrorTemplateConstant      = "CRITICAL THREAD ERROR: Migration task failed: %v"
	unexpectedEndSuffixConstant            = " Task wrapper ended unexpectedly."
	unexpectedEndMessageConstant           = "Migration task wrapper ended before the run finished."
	taskWrapperFinishedMessageConstant     = "Migration task wrapper finished."
	actionIdleConstant                     = "Idle"
	launcherStoppedMessageConstant         = "migration launcher is shut down"
	runnerNotConfiguredMessageConstant     = "migration runner not configured"
	logMessageStartRejectedConstant        = "Migration start rejected"
	logMessageRunReturnedErrorConstant     = "Migration run returned an error"
	logMessageTaskPanickedConstant         = "Migration task panicked"
	logFieldPanicConstant                  = "panic"
)

var (
	// ErrLauncherStopped indicates a start request after Shutdown.
	ErrLauncherStopped     = errors.New(launcherStoppedMessageConstant)
	// ErrRunnerNotConfigured indicates a missing migration runner.
	ErrRunnerNotConfigured = errors.New(runnerNotConfiguredMessageConstant)
)

// Runner executes one migration run under a caller-chosen identifier. Service satisfies it.
type Runner interface {
	RunWithID(executionContext context.Context, runID string) (RunSummary, error)
}

// StartResponse answers a start request.
type StartResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
}

// LauncherDependencies describes collaborators of the launcher.
type LauncherDependencies struct {
	Runner         Runner
	Tracker        *jobstate.Tracker
	Logger         *zap.Logger
	RunIDGenerator func() string
}

// Launcher runs at most one migration at a time in the background.
type Launcher struct {
	runner         Runner
	tracker        *jobstate.Tracker
	logger         *zap.Logger
	runIDGenerator func() string

	active          atomic.Bool
	lifetimeContext context.Context
	stop            context.CancelFunc
	waitGroup       sync.WaitGroup
}

// NewLauncher constructs a Launcher.
func NewLauncher(dependencies LauncherDependencies) (*Launcher, error) {
	if dependencies.Runner == nil {
		return nil, ErrRunnerNotConfigured
	}
	if dependencies.Tracker == nil {
		return nil, ErrTrackerNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runIDGenerator := dependencies.RunIDGenerator
	if runIDGenerator == nil {
		runIDGenerator = uuid.NewString
	}

	lifetimeContext, stop := context.WithCancel(context.Background())
	return &Launcher{
		runner:          dependencies.Runner,
		tracker:         dependencies.Tracker,
		logger:          logger,
		runIDGenerator:  runIDGenerator,
		lifetimeContext: lifetimeContext,
		stop:            stop,
	}, nil
}

// Start launches a migration run unless one is already active. The run keeps the
// values of requestContext but outlives its cancellation; Shutdown cancels it.
func (launcher *Launcher) Start(requestContext context.Context) (StartResponse, error) {
	if launcher.lifetimeContext.Err() != nil {
		return StartResponse{}, ErrLauncherStopped
	}
	if launcher.tracker.IsActive() || !launcher.active.CompareAndSwap(false, true) {
		launcher.logger.Info(logMessageStartRejectedConstant, zap.String(logFieldStatusConstant, string(launcher.tracker.Status())))
		return StartResponse{Accepted: false, Message: migrationAlreadyRunningMessageConstant}, nil
	}

	runID := launcher.runIDGenerator()
	launcher.logger.Info(startRequestReceivedMessageConstant, zap.String(logFieldRunIDConstant, runID))

	taskContext, cancelTask := context.WithCancel(context.WithoutCancel(requestContext))
	stopPropagation := context.AfterFunc(launcher.lifetimeContext, cancelTask)

	launcher.waitGroup.Add(1)
	go func() {
		defer launcher.waitGroup.Done()
		defer launcher.active.Store(false)
		defer stopPropagation()
		defer cancelTask()
		launcher.runTask(taskContext, runID)
	}()

	return StartResponse{Accepted: true, Message: migrationStartedMessageConstant, RunID: runID}, nil
}

// IsActive reports whether a run launched by this launcher has not yet returned.
func (launcher *Launcher) IsActive() bool {
	return launcher.active.Load()
}

// Shutdown cancels the active run and rejects further starts.
func (launcher *Launcher) Shutdown() {
	launcher.stop()
}

// Wait blocks until the active run, if any, has returned.
func (launcher *Launcher) Wait() {
	launcher.waitGroup.Wait()
}

func (launcher *Launcher) runTask(taskContext context.Context, runID string) {
	defer launcher.finishTask()
	defer func() {
		if recovered := recover(); recovered != nil {
			message := fmt.Sprintf(criticalTaskErrorTemplateConstant, recovered)
			launcher.logger.Error(logMessageTaskPanickedConstant, zap.String(logFieldRunIDConstant, runID), zap.Any(logFieldPanicConstant, recovered))
			launcher.tracker.Apply(jobstate.Update{
				Message:      message,
				Severity:     jobstate.SeverityError,
				Status:       jobstate.StatusError,
				ErrorMessage: message,
			})
		}
	}()

	if _, runError := launcher.runner.RunWithID(taskContext, runID); runError != nil {
		launcher.logger.Warn(logMessageRunReturnedErrorConstant, zap.String(logFieldRunIDConstant, runID), zap.Error(runError))
	}
}

func (launcher *Launcher) finishTask() {
	launcher.tracker.FailUnfinished(unexpectedEndSuffixConstant, unexpectedEndMessageConstant)
	launcher.tracker.Apply(jobstate.Update{Message: taskWrapperFinishedMessageConstant, Action: actionIdleConstant})
}
