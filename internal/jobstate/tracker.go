package jobstate

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLogCapacity is the number of log entries retained when no capacity is configured.
const DefaultLogCapacity = 500

const (
	logFieldRunIDConstant               = "run_id"
	logFieldStatusConstant              = "status"
	logFieldActionConstant              = "action"
	logFieldRequestedStatusConstant     = "requested_status"
	logMessageIgnoredTransitionConstant = "Ignoring status change after run finished"
)

// TrackerDependencies captures optional collaborators for the tracker.
type TrackerDependencies struct {
	Logger    *zap.Logger
	Clock     func() time.Time
	Observers []UpdateObserver
}

// Tracker owns the single run state of the process. All mutation goes through Apply, Reset and FailUnfinished.
type Tracker struct {
	mutex         sync.Mutex
	logger        *zap.Logger
	clock         func() time.Time
	observers     []UpdateObserver
	runID         string
	status        Status
	currentAction string
	stats         Stats
	logs          logRing
	errorMessage  string
	startedAt     *time.Time
	finishedAt    *time.Time
}

// NewTracker constructs an idle tracker retaining at most logCapacity log entries.
func NewTracker(logCapacity int, dependencies TrackerDependencies) *Tracker {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Tracker{
		logger:    logger,
		clock:     clock,
		observers: append([]UpdateObserver(nil), dependencies.Observers...),
		status:    StatusIdle,
		logs:      newLogRing(logCapacity),
	}
}

// Reset starts a new run: status becomes initializing, logs, stats and the error message are cleared.
func (tracker *Tracker) Reset(runID string, message string, action string) {
	tracker.mutex.Lock()
	previousStatus := tracker.status
	startedAt := tracker.clock()
	tracker.runID = runID
	tracker.status = StatusInitializing
	tracker.currentAction = action
	tracker.stats = Stats{}
	tracker.logs.clear()
	tracker.errorMessage = ""
	tracker.startedAt = &startedAt
	tracker.finishedAt = nil
	update := Update{Message: message, Severity: SeverityInfo, Action: action, Status: StatusInitializing}
	entry, logged := tracker.appendLogLocked(update)
	tracker.mutex.Unlock()

	tracker.emit(runID, update, previousStatus, StatusInitializing, entry, logged)
}

// Apply atomically applies update. Status changes out of a finished run are ignored; only Reset starts a new one.
func (tracker *Tracker) Apply(update Update) {
	tracker.mutex.Lock()
	runID := tracker.runID
	previousStatus := tracker.status
	ignoredStatus := tracker.applyLocked(update)
	currentStatus := tracker.status
	entry, logged := tracker.appendLogLocked(update)
	tracker.mutex.Unlock()

	if len(ignoredStatus) > 0 {
		tracker.logger.Debug(
			logMessageIgnoredTransitionConstant,
			zap.String(logFieldRunIDConstant, runID),
			zap.String(logFieldStatusConstant, string(previousStatus)),
			zap.String(logFieldRequestedStatusConstant, string(ignoredStatus)),
		)
		update.Status = ""
	}
	tracker.emit(runID, update, previousStatus, currentStatus, entry, logged)
}

// FailUnfinished forces the error status when the run has not reached a terminal status,
// appending suffix to the error message. It reports whether the status was changed.
func (tracker *Tracker) FailUnfinished(suffix string, message string) bool {
	tracker.mutex.Lock()
	runID := tracker.runID
	previousStatus := tracker.status
	if previousStatus.IsTerminal() || previousStatus == StatusIdle {
		tracker.mutex.Unlock()
		return false
	}
	errorMessage := strings.TrimSpace(tracker.errorMessage + suffix)
	update := Update{Message: message, Severity: SeverityError, Status: StatusError, ErrorMessage: errorMessage}
	tracker.applyLocked(update)
	entry, logged := tracker.appendLogLocked(update)
	tracker.mutex.Unlock()

	tracker.emit(runID, update, previousStatus, StatusError, entry, logged)
	return true
}

// Snapshot returns a deep copy of the current state.
func (tracker *Tracker) Snapshot() Snapshot {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	snapshot := Snapshot{
		RunID:         tracker.runID,
		Status:        tracker.status,
		CurrentAction: tracker.currentAction,
		Stats:         tracker.stats,
		Logs:          tracker.logs.entries(),
		ErrorMessage:  tracker.errorMessage,
	}
	if tracker.startedAt != nil {
		startedAt := *tracker.startedAt
		snapshot.StartedAt = &startedAt
	}
	if tracker.finishedAt != nil {
		finishedAt := *tracker.finishedAt
		snapshot.FinishedAt = &finishedAt
	}
	return snapshot
}

// Status returns the current status.
func (tracker *Tracker) Status() Status {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	return tracker.status
}

// IsActive reports whether a run is in progress.
func (tracker *Tracker) IsActive() bool {
	return tracker.Status().IsActive()
}

func (tracker *Tracker) applyLocked(update Update) Status {
	var ignoredStatus Status
	if len(update.Status) > 0 && update.Status != tracker.status {
		if tracker.status.IsTerminal() {
			ignoredStatus = update.Status
		} else {
			tracker.status = update.Status
			if update.Status.IsTerminal() {
				finishedAt := tracker.clock()
				tracker.finishedAt = &finishedAt
			}
		}
	}
	if len(update.Action) > 0 {
		tracker.currentAction = update.Action
	}
	if len(update.ErrorMessage) > 0 {
		tracker.errorMessage = update.ErrorMessage
	}

	counter := tracker.counterLocked(update.Stat)
	if counter == nil {
		return ignoredStatus
	}
	if update.SetTotal {
		counter.Total = update.Total
	}
	if len(update.ItemName) > 0 {
		counter.CurrentItemName = update.ItemName
	}
	switch update.Progress {
	case ProgressCompleted:
		counter.Completed++
	case ProgressFailed:
		counter.Failed++
	}
	return ignoredStatus
}

func (tracker *Tracker) counterLocked(stat StatKind) *Counter {
	switch stat {
	case StatGroups:
		return &tracker.stats.Groups
	case StatProjects:
		return &tracker.stats.Projects
	default:
		return nil
	}
}

func (tracker *Tracker) appendLogLocked(update Update) (LogEntry, bool) {
	if len(update.Message) == 0 {
		return LogEntry{}, false
	}
	severity := update.Severity
	if len(severity) == 0 {
		severity = SeverityInfo
	}
	entry := LogEntry{Timestamp: tracker.clock(), Message: update.Message, Severity: severity}
	tracker.logs.push(entry)
	return entry, true
}

func (tracker *Tracker) emit(runID string, update Update, previousStatus Status, currentStatus Status, entry LogEntry, logged bool) {
	if logged {
		fields := []zap.Field{zap.String(logFieldRunIDConstant, runID), zap.String(logFieldStatusConstant, string(currentStatus))}
		if len(update.Action) > 0 {
			fields = append(fields, zap.String(logFieldActionConstant, update.Action))
		}
		switch entry.Severity {
		case SeverityError:
			tracker.logger.Error(entry.Message, fields...)
		case SeverityWarning:
			tracker.logger.Warn(entry.Message, fields...)
		default:
			tracker.logger.Info(entry.Message, fields...)
		}
	}

	transition := Transition{RunID: runID, Update: update, PreviousStatus: previousStatus, Status: currentStatus}
	for _, observer := range tracker.observers {
		observer.ObserveTransition(transition)
	}
}
