package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/mirror"
	"github.com/temirov/glmigrate/internal/platform"
)

const (
	projectProcessingTemplateConstant        = "Processing project %s (old ID %d)"
	projectPathClaimedTemplateConstant       = "Project path %s was already used in this run, looking up the existing project"
	projectConflictTemplateConstant          = "Project %s already exists on target, looking it up"
	projectCreatedTemplateConstant           = "Created project %s on target (new ID %d)"
	projectMigratedTemplateConstant          = "Migrated repository for project %s"
	projectEmptySourceTemplateConstant       = "Source repository of project %s is empty, nothing to push"
	projectRejectedRefsTemplateConstant      = "Mirrored project %s; the target rejected hidden refs only"
	projectEmptyListingTemplateConstant      = "Source instance lists project %s as empty, skipping the repository transfer"
	projectFailedTemplateConstant            = "Failed to migrate project %s (old ID %d): %v"
	projectNamespaceUnmappedTemplateConstant = "%w: old namespace %d"
	projectNamespaceKindTemplateConstant     = "%w: %q"
	projectLookupFailedTemplateConstant      = "existing project lookup failed: %w"
	logMessageProjectTargetResolvedConstant  = "Resolved target project"
	logFieldProjectIDConstant                = "project_id"
	logFieldTargetProjectIDConstant          = "target_project_id"
	logFieldScopeConstant                    = "scope"
	logFieldOutcomeConstant                  = "outcome"
	logMessageProjectFailedConstant          = "Project migration failed"
	logMessageTransferFinishedConstant       = "Repository transfer finished"
	transferFailedWithoutCauseConstant       = "repository transfer failed"
)

var (
	// ErrRepositoryTransfererNotConfigured indicates a missing transfer executor.
	ErrRepositoryTransfererNotConfigured = errors.New("repository transferer not configured")
	// ErrNamespaceNotMigrated indicates that a project's group has no target counterpart.
	ErrNamespaceNotMigrated              = errors.New("project namespace was not migrated")
	// ErrUnsupportedNamespaceKind indicates a project owned by neither a group nor a user.
	ErrUnsupportedNamespaceKind          = errors.New("unsupported project namespace kind")
	// ErrCloneLocatorMissing indicates a source project whose repository location could not be derived.
	ErrCloneLocatorMissing               = errors.New("source project has no clone locator")

	errTransferFailed = errors.New(transferFailedWithoutCauseConstant)
)

// LeafMigratorDependencies describes collaborators of the leaf migrator.
type LeafMigratorDependencies struct {
	Target     platform.Client
	Transferer RepositoryTransferer
	Reporter   ProgressReporter
	Recorder   TransferRecorder
	Logger     *zap.Logger
}

// LeafMigrator recreates a single project on the target and mirrors its repository.
type LeafMigrator struct {
	runContext *RunContext
	target     platform.Client
	transferer RepositoryTransferer
	reporter   ProgressReporter
	recorder   TransferRecorder
	logger     *zap.Logger
}

// NewLeafMigrator constructs a leaf migrator recording into runContext.
func NewLeafMigrator(runContext *RunContext, dependencies LeafMigratorDependencies) (*LeafMigrator, error) {
	if runContext == nil {
		return nil, ErrRunContextNotConfigured
	}
	if dependencies.Target == nil {
		return nil, ErrPlatformClientNotConfigured
	}
	if dependencies.Transferer == nil {
		return nil, ErrRepositoryTransfererNotConfigured
	}

	reporter := dependencies.Reporter
	if reporter == nil {
		reporter = discardingReporter{}
	}
	recorder := dependencies.Recorder
	if recorder == nil {
		recorder = discardingRecorder{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LeafMigrator{
		runContext: runContext,
		target:     dependencies.Target,
		transferer: dependencies.Transferer,
		reporter:   reporter,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// MigrateLeaf migrates project and reports whether its repository reached the target.
func (migrator *LeafMigrator) MigrateLeaf(executionContext context.Context, project platform.Project) bool {
	migrator.reporter.Apply(jobstate.Update{
		Message:  fmt.Sprintf(projectProcessingTemplateConstant, project.FullPath, project.ID),
		Stat:     jobstate.StatProjects,
		ItemName: project.FullPath,
	})

	if len(strings.TrimSpace(project.CloneLocator)) == 0 {
		return migrator.fail(project, ErrCloneLocatorMissing)
	}

	namespaceID, namespaceError := migrator.resolveNamespace(project)
	if namespaceError != nil {
		return migrator.fail(project, namespaceError)
	}

	targetProject, targetError := migrator.ensureProject(executionContext, project, namespaceID)
	if targetError != nil {
		return migrator.fail(project, targetError)
	}

	migrator.logger.Debug(
		logMessageProjectTargetResolvedConstant,
		zap.Int(logFieldProjectIDConstant, project.ID),
		zap.Int(logFieldTargetProjectIDConstant, targetProject.ID),
		zap.String(logFieldScopeConstant, ScopeKey(namespaceID)),
	)

	if project.EmptyRepository {
		migrator.recorder.RecordTransfer(mirror.OutcomeEmptySource.String())
		migrator.reporter.Apply(jobstate.Update{
			Message:  fmt.Sprintf(projectEmptyListingTemplateConstant, project.FullPath),
			Severity: jobstate.SeverityInfo,
			Stat:     jobstate.StatProjects,
			ItemName: project.FullPath,
			Progress: jobstate.ProgressCompleted,
		})
		return true
	}

	result := migrator.transferer.Transfer(executionContext, mirror.TransferRequest{
		ProjectID:     project.ID,
		FullPath:      project.FullPath,
		SourceLocator: project.CloneLocator,
		TargetLocator: targetProject.CloneLocator,
	})
	migrator.recorder.RecordTransfer(result.Outcome.String())
	migrator.logger.Debug(
		logMessageTransferFinishedConstant,
		zap.Int(logFieldProjectIDConstant, project.ID),
		zap.String(logFieldOutcomeConstant, result.Outcome.String()),
	)
	if !result.Succeeded() {
		transferError := result.Err
		if transferError == nil {
			transferError = errTransferFailed
		}
		return migrator.fail(project, transferError)
	}

	update := jobstate.Update{
		Message:  fmt.Sprintf(projectMigratedTemplateConstant, project.FullPath),
		Severity: jobstate.SeverityInfo,
		Stat:     jobstate.StatProjects,
		ItemName: project.FullPath,
		Progress: jobstate.ProgressCompleted,
	}
	switch result.Outcome {
	case mirror.OutcomeEmptySource:
		update.Message = fmt.Sprintf(projectEmptySourceTemplateConstant, project.FullPath)
	case mirror.OutcomeAcceptableRejection:
		update.Message = fmt.Sprintf(projectRejectedRefsTemplateConstant, project.FullPath)
		update.Severity = jobstate.SeverityWarning
	}
	migrator.reporter.Apply(update)
	return true
}

func (migrator *LeafMigrator) resolveNamespace(project platform.Project) (int, error) {
	switch project.NamespaceKind {
	case platform.NamespaceKindGroup:
		targetNamespaceID, mapped := migrator.runContext.Identifiers.Lookup(project.NamespaceID)
		if !mapped {
			return 0, fmt.Errorf(projectNamespaceUnmappedTemplateConstant, ErrNamespaceNotMigrated, project.NamespaceID)
		}
		return targetNamespaceID, nil
	case platform.NamespaceKindUser:
		return 0, nil
	default:
		return 0, fmt.Errorf(projectNamespaceKindTemplateConstant, ErrUnsupportedNamespaceKind, string(project.NamespaceKind))
	}
}

func (migrator *LeafMigrator) ensureProject(executionContext context.Context, project platform.Project, namespaceID int) (platform.Project, error) {
	scope := ScopeKey(namespaceID)
	if migrator.runContext.CreatedPaths.Contains(scope, project.Path) {
		reportInfo(migrator.reporter, projectPathClaimedTemplateConstant, project.FullPath)
		return migrator.findExisting(executionContext, namespaceID, project.Path)
	}

	created, createError := migrator.target.CreateProject(executionContext, platform.ProjectSpec{
		Name:        project.Name,
		Path:        project.Path,
		Description: project.Description,
		Visibility:  project.Visibility,
		NamespaceID: namespaceID,
	})
	if createError == nil {
		migrator.runContext.CreatedPaths.Add(scope, project.Path)
		reportInfo(migrator.reporter, projectCreatedTemplateConstant, project.FullPath, created.ID)
		return created, nil
	}
	if !platform.IsConflict(createError) {
		return platform.Project{}, createError
	}

	migrator.runContext.CreatedPaths.Add(scope, project.Path)
	reportWarning(migrator.reporter, projectConflictTemplateConstant, project.FullPath)
	return migrator.findExisting(executionContext, namespaceID, project.Path)
}

func (migrator *LeafMigrator) findExisting(executionContext context.Context, namespaceID int, path string) (platform.Project, error) {
	existing, findError := migrator.target.FindProject(executionContext, namespaceID, path)
	if findError != nil {
		return platform.Project{}, fmt.Errorf(projectLookupFailedTemplateConstant, findError)
	}
	return existing, nil
}

func (migrator *LeafMigrator) fail(project platform.Project, cause error) bool {
	migrator.runContext.RecordProjectFailure(FailureRecord{ID: project.ID, FullPath: project.FullPath, Reason: cause.Error()})
	migrator.reporter.Apply(jobstate.Update{
		Message:  fmt.Sprintf(projectFailedTemplateConstant, project.FullPath, project.ID, cause),
		Severity: jobstate.SeverityError,
		Stat:     jobstate.StatProjects,
		Progress: jobstate.ProgressFailed,
	})
	migrator.logger.Debug(
		logMessageProjectFailedConstant,
		zap.Int(logFieldProjectIDConstant, project.ID),
		zap.String(logFieldFullPathConstant, project.FullPath),
		zap.Error(cause),
	)
	return false
}
