package jobstate

import (
	"time"
)

// Status is the lifecycle phase of a migration run.
type Status string

// Run statuses.
const (
	StatusIdle              Status = "idle"
	StatusInitializing      Status = "initializing"
	StatusMigratingGroups   Status = "migrating_groups"
	StatusMigratingProjects Status = "migrating_projects"
	StatusCompleted         Status = "completed"
	StatusError             Status = "error"
)

// IsActive reports whether a run is in progress.
func (status Status) IsActive() bool {
	switch status {
	case StatusInitializing, StatusMigratingGroups, StatusMigratingProjects:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the run has finished.
func (status Status) IsTerminal() bool {
	return status == StatusCompleted || status == StatusError
}

// Severity classifies a log entry.
type Severity string

// Log severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// StatKind selects the counter an update applies to.
type StatKind string

// Counters tracked per run.
const (
	StatNone     StatKind = ""
	StatGroups   StatKind = "groups"
	StatProjects StatKind = "projects"
)

// Progress selects which counter of a stat is incremented.
type Progress int

// Progress increments.
const (
	ProgressNone Progress = iota
	ProgressCompleted
	ProgressFailed
)

// LogEntry is one line of the run log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"type"`
}

// Counter tracks progress over one kind of item.
type Counter struct {
	Total           int    `json:"total"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	CurrentItemName string `json:"current_item_name"`
}

// Stats groups the per-kind counters.
type Stats struct {
	Groups   Counter `json:"groups"`
	Projects Counter `json:"projects"`
}

// Snapshot is an independent copy of the run state.
type Snapshot struct {
	RunID         string     `json:"run_id"`
	Status        Status     `json:"status"`
	CurrentAction string     `json:"current_action"`
	Stats         Stats      `json:"stats"`
	Logs          []LogEntry `json:"logs"`
	ErrorMessage  string     `json:"error_message"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Update describes one atomic change to the run state. Zero-valued fields leave state unchanged.
type Update struct {
	Message      string
	Severity     Severity
	Action       string
	Status       Status
	ErrorMessage string
	Stat         StatKind
	ItemName     string
	Progress     Progress
	Total        int
	SetTotal     bool
}

// Transition is delivered to observers after an update has been applied.
type Transition struct {
	RunID          string
	Update         Update
	PreviousStatus Status
	Status         Status
}

// UpdateObserver is notified of every applied update outside the tracker lock.
type UpdateObserver interface {
	ObserveTransition(transition Transition)
}
