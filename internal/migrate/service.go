package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/platform"
)

const (
	defaultProjectPageSizeConstant          = 50
	runStartedMessageTemplateConstant       = "Starting migration run %s."
	actionInitiatingConstant                = "Initiating migration"
	actionAuthenticatingConstant            = "Authenticating"
	actionPreparingScratchConstant          = "Preparing scratch directory"
	actionCountingConstant                  = "Counting source groups and projects"
	actionMigratingGroupsConstant           = "Migrating groups"
	actionListingProjectsConstant           = "Listing source projects"
	actionMigratingProjectsConstant         = "Migrating projects"
	actionCompletedConstant                 = "Completed"
	actionFailedConstant                    = "Failed"
	sourceRoleConstant                      = "source"
	targetRoleConstant                      = "target"
	authenticatingTemplateConstant          = "Authenticating with %s GitLab"
	authenticatedTemplateConstant           = "Authenticated with %s GitLab as %s"
	authenticationFailedTemplateConstant    = "Authentication with %s GitLab failed: %v"
	scratchPreparedMessageConstant          = "Scratch directory is ready"
	scratchFailedTemplateConstant           = "Could not prepare scratch directory: %v"
	namespaceCountTemplateConstant          = "Source has %d groups"
	namespaceCountFailedTemplateConstant    = "Could not count source groups: %v"
	projectCountTemplateConstant            = "Source has %d projects"
	projectCountFailedTemplateConstant      = "Could not count source projects: %v"
	phaseGroupsMessageConstant              = "Phase 1: migrating groups"
	phaseGroupsTargetParentTemplateConstant = "Phase 1: migrating groups beneath target group %d"
	identifierMapTemplateConstant           = "Group ID map (old -> new): %s"
	identifierMapEmptyConstant              = "none"
	identifierMapEntryTemplateConstant      = "%d->%d"
	identifierMapSeparatorConstant          = ", "
	phaseProjectsMessageConstant            = "Phase 2: migrating projects"
	projectsListedTemplateConstant          = "Found %d projects to migrate"
	projectListingFailedTemplateConstant    = "Failed to list source projects: %v"
	runCancelledTemplateConstant            = "Migration cancelled: %v"
	migrationCompleteMessageConstant        = "=== MIGRATION COMPLETE ==="
	migrationSucceededCountTemplateConstant = "Successfully processed repositories for: %d projects."
	migrationFailedCountTemplateConstant    = "Failed to process/migrate repositories for: %d projects."
	reportWrittenTemplateConstant           = "Migration report written to %s"
	reportFailedTemplateConstant            = "Could not write migration report: %v"
	authenticationErrorTemplateConstant     = "%s authentication failed: %w"
	scratchErrorTemplateConstant            = "scratch directory preparation failed: %w"
	cancellationErrorTemplateConstant       = "migration cancelled: %w"
	logMessageProjectPageListedConstant     = "Listed project page"
	logFieldProjectCountConstant            = "project_count"
	logFieldRunIDConstant                   = "run_id"
	logMessageRunFinishedConstant           = "Migration run finished"
	logFieldStatusConstant                  = "status"
	logFieldMigratedProjectsConstant        = "migrated_projects"
	logFieldFailedProjectsConstant          = "failed_projects"
	trackerNotConfiguredMessageConstant     = "job state tracker not configured"
)

var (
	// ErrTrackerNotConfigured indicates a missing job state tracker.
	ErrTrackerNotConfigured = errors.New(trackerNotConfiguredMessageConstant)
)

// ServiceOptions tunes a migration run.
type ServiceOptions struct {
	TargetParentID    int
	NamespacePageSize int
	ProjectPageSize   int
	PagePause         time.Duration
	ProjectPause      time.Duration
	ReportPath        string
}

// ServiceDependencies describes the collaborators of a migration run.
type ServiceDependencies struct {
	Source         platform.Client
	Target         platform.Client
	Transferer     RepositoryTransferer
	Tracker        *jobstate.Tracker
	Recorder       TransferRecorder
	Logger         *zap.Logger
	RunIDGenerator func() string
	Sleeper        func(executionContext context.Context, duration time.Duration) error
}

// RunSummary describes the outcome of a migration run.
type RunSummary struct {
	RunID            string              `yaml:"run_id"`
	Status           jobstate.Status     `yaml:"status"`
	StartedAt        time.Time           `yaml:"started_at"`
	FinishedAt       time.Time           `yaml:"finished_at"`
	ErrorMessage     string              `yaml:"error_message,omitempty"`
	Groups           CountSummary        `yaml:"groups"`
	Projects         CountSummary        `yaml:"projects"`
	Identifiers      []IdentifierMapping `yaml:"identifier_map"`
	FailedNamespaces []FailureRecord     `yaml:"failed_namespaces,omitempty"`
	FailedProjects   []FailureRecord     `yaml:"failed_projects,omitempty"`
	ReportPath       string              `yaml:"-"`
}

// CountSummary mirrors the tracker counters of one item kind.
type CountSummary struct {
	Total     int `yaml:"total"`
	Completed int `yaml:"completed"`
	Failed    int `yaml:"failed"`
}

// Service orchestrates a complete migration run.
type Service struct {
	options        ServiceOptions
	source         platform.Client
	target         platform.Client
	transferer     RepositoryTransferer
	tracker        *jobstate.Tracker
	recorder       TransferRecorder
	logger         *zap.Logger
	runIDGenerator func() string
	sleeper        func(executionContext context.Context, duration time.Duration) error
}

// NewService validates dependencies and constructs a Service.
func NewService(options ServiceOptions, dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Source == nil || dependencies.Target == nil {
		return nil, ErrPlatformClientNotConfigured
	}
	if dependencies.Transferer == nil {
		return nil, ErrRepositoryTransfererNotConfigured
	}
	if dependencies.Tracker == nil {
		return nil, ErrTrackerNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := dependencies.Recorder
	if recorder == nil {
		recorder = discardingRecorder{}
	}
	runIDGenerator := dependencies.RunIDGenerator
	if runIDGenerator == nil {
		runIDGenerator = uuid.NewString
	}
	sleeper := dependencies.Sleeper
	if sleeper == nil {
		sleeper = sleepWithContext
	}
	if options.NamespacePageSize <= 0 {
		options.NamespacePageSize = defaultNamespacePageSizeConstant
	}
	if options.ProjectPageSize <= 0 {
		options.ProjectPageSize = defaultProjectPageSizeConstant
	}

	return &Service{
		options:        options,
		source:         dependencies.Source,
		target:         dependencies.Target,
		transferer:     dependencies.Transferer,
		tracker:        dependencies.Tracker,
		recorder:       recorder,
		logger:         logger,
		runIDGenerator: runIDGenerator,
		sleeper:        sleeper,
	}, nil
}

// NewRunID returns a fresh run identifier.
func (service *Service) NewRunID() string {
	return service.runIDGenerator()
}

// Run executes a migration run with a freshly generated identifier.
func (service *Service) Run(executionContext context.Context) (RunSummary, error) {
	return service.RunWithID(executionContext, service.NewRunID())
}

// RunWithID executes a migration run identified by runID. Namespace and project
// failures are recorded in the summary; only authentication, scratch preparation
// and cancellation are returned as errors.
func (service *Service) RunWithID(executionContext context.Context, runID string) (RunSummary, error) {
	runContext := NewRunContext(runID)
	service.tracker.Reset(runID, fmt.Sprintf(runStartedMessageTemplateConstant, runID), actionInitiatingConstant)

	if authenticationError := service.authenticate(executionContext); authenticationError != nil {
		return service.finish(runContext), authenticationError
	}

	service.tracker.Apply(jobstate.Update{Action: actionPreparingScratchConstant})
	if scratchError := service.transferer.PrepareScratchRoot(); scratchError != nil {
		service.fatal(fmt.Sprintf(scratchFailedTemplateConstant, scratchError))
		return service.finish(runContext), fmt.Errorf(scratchErrorTemplateConstant, scratchError)
	}
	reportInfo(service.tracker, scratchPreparedMessageConstant)

	service.estimateTotals(executionContext)

	if groupsError := service.migrateGroups(executionContext, runContext); groupsError != nil {
		return service.cancelled(runContext, groupsError)
	}

	if projectsError := service.migrateProjects(executionContext, runContext); projectsError != nil {
		return service.cancelled(runContext, projectsError)
	}

	projectStats := service.tracker.Snapshot().Stats.Projects
	service.tracker.Apply(jobstate.Update{Message: fmt.Sprintf(migrationSucceededCountTemplateConstant, projectStats.Completed)})
	service.tracker.Apply(jobstate.Update{Message: fmt.Sprintf(migrationFailedCountTemplateConstant, projectStats.Failed)})
	service.tracker.Apply(jobstate.Update{
		Message: migrationCompleteMessageConstant,
		Action:  actionCompletedConstant,
		Status:  jobstate.StatusCompleted,
	})
	summary := service.finish(runContext)
	service.writeReport(&summary)
	return summary, nil
}

func (service *Service) authenticate(executionContext context.Context) error {
	service.tracker.Apply(jobstate.Update{Action: actionAuthenticatingConstant})
	clients := []struct {
		role   string
		client platform.Client
	}{
		{role: sourceRoleConstant, client: service.source},
		{role: targetRoleConstant, client: service.target},
	}
	for _, entry := range clients {
		reportInfo(service.tracker, authenticatingTemplateConstant, entry.role)
		identity, authenticationError := entry.client.Authenticate(executionContext)
		if authenticationError != nil {
			service.fatal(fmt.Sprintf(authenticationFailedTemplateConstant, entry.role, authenticationError))
			return fmt.Errorf(authenticationErrorTemplateConstant, entry.role, authenticationError)
		}
		reportInfo(service.tracker, authenticatedTemplateConstant, entry.role, identity.Username)
	}
	return nil
}

func (service *Service) estimateTotals(executionContext context.Context) {
	service.tracker.Apply(jobstate.Update{Action: actionCountingConstant})

	namespaceCount, namespaceCountError := service.source.CountNamespaces(executionContext)
	if namespaceCountError != nil {
		reportWarning(service.tracker, namespaceCountFailedTemplateConstant, namespaceCountError)
	} else {
		service.tracker.Apply(jobstate.Update{
			Message:  fmt.Sprintf(namespaceCountTemplateConstant, namespaceCount),
			Stat:     jobstate.StatGroups,
			Total:    namespaceCount,
			SetTotal: true,
		})
	}

	projectCount, projectCountError := service.source.CountProjects(executionContext)
	if projectCountError != nil {
		reportWarning(service.tracker, projectCountFailedTemplateConstant, projectCountError)
	} else {
		service.tracker.Apply(jobstate.Update{
			Message:  fmt.Sprintf(projectCountTemplateConstant, projectCount),
			Stat:     jobstate.StatProjects,
			Total:    projectCount,
			SetTotal: true,
		})
	}
}

func (service *Service) migrateGroups(executionContext context.Context, runContext *RunContext) error {
	phaseMessage := phaseGroupsMessageConstant
	if service.options.TargetParentID != 0 {
		phaseMessage = fmt.Sprintf(phaseGroupsTargetParentTemplateConstant, service.options.TargetParentID)
	}
	service.tracker.Apply(jobstate.Update{
		Message: phaseMessage,
		Action:  actionMigratingGroupsConstant,
		Status:  jobstate.StatusMigratingGroups,
	})

	walker, walkerError := NewHierarchyWalker(runContext, service.options.NamespacePageSize, HierarchyWalkerDependencies{
		Source:   service.source,
		Target:   service.target,
		Reporter: service.tracker,
		Logger:   service.logger,
	})
	if walkerError != nil {
		return walkerError
	}

	if walkError := walker.MigrateSubtree(executionContext, 0, service.options.TargetParentID); walkError != nil {
		return walkError
	}

	reportInfo(service.tracker, identifierMapTemplateConstant, formatIdentifierMap(runContext.Identifiers))
	return nil
}

func (service *Service) migrateProjects(executionContext context.Context, runContext *RunContext) error {
	service.tracker.Apply(jobstate.Update{
		Message: phaseProjectsMessageConstant,
		Action:  actionListingProjectsConstant,
		Status:  jobstate.StatusMigratingProjects,
	})

	projects, listError := service.listProjects(executionContext)
	if listError != nil {
		if isContextError(listError) {
			return listError
		}
		message := fmt.Sprintf(projectListingFailedTemplateConstant, listError)
		service.tracker.Apply(jobstate.Update{
			Message:      message,
			Severity:     jobstate.SeverityError,
			ErrorMessage: message,
		})
		return nil
	}

	service.tracker.Apply(jobstate.Update{
		Message: fmt.Sprintf(projectsListedTemplateConstant, len(projects)),
		Action:  actionMigratingProjectsConstant,
	})

	migrator, migratorError := NewLeafMigrator(runContext, LeafMigratorDependencies{
		Target:     service.target,
		Transferer: service.transferer,
		Reporter:   service.tracker,
		Recorder:   service.recorder,
		Logger:     service.logger,
	})
	if migratorError != nil {
		return migratorError
	}

	for index, project := range projects {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		if index > 0 {
			if pauseError := service.sleeper(executionContext, service.options.ProjectPause); pauseError != nil {
				return pauseError
			}
		}
		migrator.MigrateLeaf(executionContext, project)
	}
	return executionContext.Err()
}

func (service *Service) listProjects(executionContext context.Context) ([]platform.Project, error) {
	var projects []platform.Project
	for pageNumber := 1; ; pageNumber++ {
		if pageNumber > 1 {
			if pauseError := service.sleeper(executionContext, service.options.PagePause); pauseError != nil {
				return nil, pauseError
			}
		}
		page, listError := service.source.ListProjects(executionContext, platform.Page{Number: pageNumber, Size: service.options.ProjectPageSize})
		if listError != nil {
			return nil, listError
		}
		service.logger.Debug(
			logMessageProjectPageListedConstant,
			zap.Int(logFieldPageConstant, pageNumber),
			zap.Int(logFieldProjectCountConstant, len(page)),
		)
		projects = append(projects, page...)
		if len(page) < service.options.ProjectPageSize {
			return projects, nil
		}
	}
}

func (service *Service) fatal(message string) {
	service.tracker.Apply(jobstate.Update{
		Message:      message,
		Severity:     jobstate.SeverityError,
		Action:       actionFailedConstant,
		Status:       jobstate.StatusError,
		ErrorMessage: message,
	})
}

func (service *Service) cancelled(runContext *RunContext, cause error) (RunSummary, error) {
	service.fatal(fmt.Sprintf(runCancelledTemplateConstant, cause))
	summary := service.finish(runContext)
	service.writeReport(&summary)
	return summary, fmt.Errorf(cancellationErrorTemplateConstant, cause)
}

func (service *Service) finish(runContext *RunContext) RunSummary {
	snapshot := service.tracker.Snapshot()
	summary := RunSummary{
		RunID:            runContext.RunID,
		Status:           snapshot.Status,
		ErrorMessage:     snapshot.ErrorMessage,
		Groups:           countSummaryOf(snapshot.Stats.Groups),
		Projects:         countSummaryOf(snapshot.Stats.Projects),
		Identifiers:      runContext.Identifiers.Entries(),
		FailedNamespaces: runContext.NamespaceFailures(),
		FailedProjects:   runContext.ProjectFailures(),
	}
	if snapshot.StartedAt != nil {
		summary.StartedAt = *snapshot.StartedAt
	}
	if snapshot.FinishedAt != nil {
		summary.FinishedAt = *snapshot.FinishedAt
	}
	if summary.Status.IsTerminal() {
		service.logger.Info(
			logMessageRunFinishedConstant,
			zap.String(logFieldRunIDConstant, summary.RunID),
			zap.String(logFieldStatusConstant, string(summary.Status)),
			zap.Int(logFieldMigratedProjectsConstant, summary.Projects.Completed),
			zap.Int(logFieldFailedProjectsConstant, summary.Projects.Failed),
		)
	}
	return summary
}

func (service *Service) writeReport(summary *RunSummary) {
	reportPath := strings.TrimSpace(service.options.ReportPath)
	if len(reportPath) == 0 {
		return
	}
	if writeError := WriteReport(reportPath, *summary); writeError != nil {
		reportWarning(service.tracker, reportFailedTemplateConstant, writeError)
		return
	}
	summary.ReportPath = reportPath
	reportInfo(service.tracker, reportWrittenTemplateConstant, reportPath)
}

func countSummaryOf(counter jobstate.Counter) CountSummary {
	return CountSummary{Total: counter.Total, Completed: counter.Completed, Failed: counter.Failed}
}

func formatIdentifierMap(identifiers *IdentifierMap) string {
	entries := identifiers.Entries()
	if len(entries) == 0 {
		return identifierMapEmptyConstant
	}
	formatted := make([]string, 0, len(entries))
	for _, entry := range entries {
		formatted = append(formatted, fmt.Sprintf(identifierMapEntryTemplateConstant, entry.OldID, entry.NewID))
	}
	return strings.Join(formatted, identifierMapSeparatorConstant)
}

func sleepWithContext(executionContext context.Context, duration time.Duration) error {
	if duration <= 0 {
		return executionContext.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
