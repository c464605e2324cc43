package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/platform"
)

const (
	defaultNamespacePageSizeConstant            = 100
	namespaceListingFailedTemplateConstant      = "Failed to list groups under old parent %d: %v"
	namespaceProcessingTemplateConstant         = "Processing group %s (old ID %d)"
	namespaceLookupFailedTemplateConstant       = "Could not look up group %s on target, attempting creation: %v"
	namespaceReusedTemplateConstant             = "Group %s already exists on target (new ID %d), reusing it"
	namespaceCreatedTemplateConstant            = "Created group %s on target (new ID %d)"
	namespaceConflictTemplateConstant           = "Group path %s is already taken on target, looking it up again"
	namespaceMigratedTemplateConstant           = "Migrated group %s (old ID %d -> new ID %d)"
	namespaceFailedTemplateConstant             = "Failed to migrate group %s (old ID %d): %v. Skipping its subgroups and projects."
	namespaceConflictRetryErrorTemplateConstant = "lookup after path conflict failed: %w"
	namespaceConflictUnresolvedTemplateConstant = "path conflict could not be resolved: %w"
	logMessageNamespaceAlreadyMappedConstant    = "Namespace already mapped"
	logMessageNamespaceSubtreeCompletedConstant = "Namespace subtree completed"
	logFieldOldIDConstant                       = "old_id"
	logFieldNewIDConstant                       = "new_id"
	logFieldOldParentIDConstant                 = "old_parent_id"
	logFieldNewParentIDConstant                 = "new_parent_id"
	logFieldFullPathConstant                    = "full_path"
	logFieldPageConstant                        = "page"
	logMessageNamespacePageListedConstant       = "Listed namespace page"
	logFieldNamespaceCountConstant              = "namespace_count"
	namespaceConflictUnresolvedCauseConstant    = "no namespace with this path exists under the target parent"
)

var (
	// ErrPlatformClientNotConfigured indicates a missing source or target client.
	ErrPlatformClientNotConfigured = errors.New("platform client not configured")
	// ErrRunContextNotConfigured indicates a missing run context.
	ErrRunContextNotConfigured     = errors.New("run context not configured")

	errNamespaceConflictUnresolved = errors.New(namespaceConflictUnresolvedCauseConstant)
)

// HierarchyWalkerDependencies describes collaborators of the hierarchy walker.
type HierarchyWalkerDependencies struct {
	Source   platform.Client
	Target   platform.Client
	Reporter ProgressReporter
	Logger   *zap.Logger
}

// HierarchyWalker reproduces the source namespace tree on the target.
type HierarchyWalker struct {
	runContext *RunContext
	source     platform.Client
	target     platform.Client
	reporter   ProgressReporter
	logger     *zap.Logger
	pageSize   int
}

// NewHierarchyWalker constructs a walker recording into runContext. A non-positive pageSize selects 100.
func NewHierarchyWalker(runContext *RunContext, pageSize int, dependencies HierarchyWalkerDependencies) (*HierarchyWalker, error) {
	if runContext == nil {
		return nil, ErrRunContextNotConfigured
	}
	if dependencies.Source == nil || dependencies.Target == nil {
		return nil, ErrPlatformClientNotConfigured
	}

	reporter := dependencies.Reporter
	if reporter == nil {
		reporter = discardingReporter{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = defaultNamespacePageSizeConstant
	}

	return &HierarchyWalker{
		runContext: runContext,
		source:     dependencies.Source,
		target:     dependencies.Target,
		reporter:   reporter,
		logger:     logger,
		pageSize:   pageSize,
	}, nil
}

// MigrateSubtree migrates the children of oldParentID beneath newParentID, depth first.
// Zero oldParentID walks the top level; zero newParentID creates top-level namespaces.
// Only context cancellation is returned; every other failure is reported and skips the affected branch.
func (walker *HierarchyWalker) MigrateSubtree(executionContext context.Context, oldParentID int, newParentID int) error {
	for pageNumber := 1; ; pageNumber++ {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}

		children, listError := walker.source.ListNamespaces(executionContext, oldParentID, platform.Page{Number: pageNumber, Size: walker.pageSize})
		if listError != nil {
			if isContextError(listError) {
				return listError
			}
			walker.reporter.Apply(jobstate.Update{
				Message:  fmt.Sprintf(namespaceListingFailedTemplateConstant, oldParentID, listError),
				Severity: jobstate.SeverityError,
			})
			return nil
		}

		walker.logger.Debug(
			logMessageNamespacePageListedConstant,
			zap.Int(logFieldOldParentIDConstant, oldParentID),
			zap.Int(logFieldPageConstant, pageNumber),
			zap.Int(logFieldNamespaceCountConstant, len(children)),
		)

		for _, child := range children {
			if migrateError := walker.migrateNamespace(executionContext, child, newParentID); migrateError != nil {
				return migrateError
			}
		}

		if len(children) < walker.pageSize {
			return nil
		}
	}
}

func (walker *HierarchyWalker) migrateNamespace(executionContext context.Context, namespace platform.Namespace, newParentID int) error {
	if mappedID, mapped := walker.runContext.Identifiers.Lookup(namespace.ID); mapped {
		walker.logger.Debug(
			logMessageNamespaceAlreadyMappedConstant,
			zap.Int(logFieldOldIDConstant, namespace.ID),
			zap.Int(logFieldNewIDConstant, mappedID),
			zap.String(logFieldFullPathConstant, namespace.FullPath),
		)
		return walker.MigrateSubtree(executionContext, namespace.ID, mappedID)
	}

	walker.reporter.Apply(jobstate.Update{
		Message:  fmt.Sprintf(namespaceProcessingTemplateConstant, namespace.FullPath, namespace.ID),
		Stat:     jobstate.StatGroups,
		ItemName: namespace.FullPath,
	})

	targetNamespace, resolveError := walker.createOrFind(executionContext, namespace, newParentID)
	if resolveError != nil {
		if isContextError(resolveError) {
			return resolveError
		}
		walker.runContext.RecordNamespaceFailure(FailureRecord{ID: namespace.ID, FullPath: namespace.FullPath, Reason: resolveError.Error()})
		walker.reporter.Apply(jobstate.Update{
			Message:  fmt.Sprintf(namespaceFailedTemplateConstant, namespace.FullPath, namespace.ID, resolveError),
			Severity: jobstate.SeverityError,
			Stat:     jobstate.StatGroups,
			Progress: jobstate.ProgressFailed,
		})
		return nil
	}

	walker.runContext.Identifiers.Record(namespace.ID, targetNamespace.ID)
	walker.reporter.Apply(jobstate.Update{
		Message:  fmt.Sprintf(namespaceMigratedTemplateConstant, namespace.FullPath, namespace.ID, targetNamespace.ID),
		Stat:     jobstate.StatGroups,
		ItemName: namespace.FullPath,
		Progress: jobstate.ProgressCompleted,
	})

	if subtreeError := walker.MigrateSubtree(executionContext, namespace.ID, targetNamespace.ID); subtreeError != nil {
		return subtreeError
	}

	walker.logger.Debug(
		logMessageNamespaceSubtreeCompletedConstant,
		zap.Int(logFieldOldIDConstant, namespace.ID),
		zap.Int(logFieldNewIDConstant, targetNamespace.ID),
		zap.Int(logFieldNewParentIDConstant, newParentID),
	)
	return nil
}

func (walker *HierarchyWalker) createOrFind(executionContext context.Context, namespace platform.Namespace, newParentID int) (platform.Namespace, error) {
	existing, found, findError := walker.findExisting(executionContext, namespace.Path, newParentID)
	switch {
	case findError != nil && isContextError(findError):
		return platform.Namespace{}, findError
	case findError != nil:
		reportWarning(walker.reporter, namespaceLookupFailedTemplateConstant, namespace.FullPath, findError)
	case found:
		reportInfo(walker.reporter, namespaceReusedTemplateConstant, namespace.FullPath, existing.ID)
		return existing, nil
	}

	created, createError := walker.target.CreateNamespace(executionContext, platform.NamespaceSpec{
		Name:        namespace.Name,
		Path:        namespace.Path,
		Description: namespace.Description,
		Visibility:  namespace.Visibility,
		ParentID:    newParentID,
	})
	if createError == nil {
		reportInfo(walker.reporter, namespaceCreatedTemplateConstant, namespace.FullPath, created.ID)
		return created, nil
	}
	if !platform.IsConflict(createError) {
		return platform.Namespace{}, createError
	}

	reportWarning(walker.reporter, namespaceConflictTemplateConstant, namespace.FullPath)
	existing, found, retryError := walker.findExisting(executionContext, namespace.Path, newParentID)
	if retryError != nil {
		if isContextError(retryError) {
			return platform.Namespace{}, retryError
		}
		return platform.Namespace{}, fmt.Errorf(namespaceConflictRetryErrorTemplateConstant, retryError)
	}
	if !found {
		return platform.Namespace{}, fmt.Errorf(namespaceConflictUnresolvedTemplateConstant, errNamespaceConflictUnresolved)
	}
	reportInfo(walker.reporter, namespaceReusedTemplateConstant, namespace.FullPath, existing.ID)
	return existing, nil
}

func (walker *HierarchyWalker) findExisting(executionContext context.Context, path string, newParentID int) (platform.Namespace, bool, error) {
	if newParentID == 0 {
		candidates, searchError := walker.target.SearchNamespaces(executionContext, path)
		if searchError != nil {
			return platform.Namespace{}, false, searchError
		}
		for _, candidate := range candidates {
			if candidate.IsTopLevel() && candidate.Path == path {
				return candidate, true, nil
			}
		}
		return platform.Namespace{}, false, nil
	}

	for pageNumber := 1; ; pageNumber++ {
		siblings, listError := walker.target.ListNamespaces(executionContext, newParentID, platform.Page{Number: pageNumber, Size: walker.pageSize})
		if listError != nil {
			return platform.Namespace{}, false, listError
		}
		for _, sibling := range siblings {
			if sibling.Path == path {
				return sibling, true, nil
			}
		}
		if len(siblings) < walker.pageSize {
			return platform.Namespace{}, false, nil
		}
	}
}
