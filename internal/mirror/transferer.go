package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/execshell"
)

const (
	gitCloneSubcommandConstant             = "clone"
	gitMirrorFlagConstant                  = "--mirror"
	gitRemoteSubcommandConstant            = "remote"
	gitRemoteAddSubcommandConstant         = "add"
	gitPushSubcommandConstant              = "push"
	gitForEachRefSubcommandConstant        = "for-each-ref"
	gitRefNameFormatConstant               = "--format=%(refname)"
	targetRemoteNameConstant               = "target"
	branchReferencePrefixConstant          = "refs/heads/"
	tagReferencePrefixConstant             = "refs/tags/"
	referenceLineSeparatorConstant         = "\n"
	workspaceDirectoryModeConstant         = 0o755
	scratchMarkerModeConstant              = 0o644
	scratchMarkerContentConstant           = "Scratch directory managed by glmigrate. Its contents are deleted at the start of every migration run.\n"
	logMessageEmptySourceConstant          = "Source repository is empty; skipping mirror push"
	logMessageAcceptableConstant           = "Mirror push rejected only server-managed references; treating as migrated"
	logMessageTransferredConstant          = "Mirrored repository"
	logMessageTransferFailedConstant       = "Mirror transfer failed"
	logMessageWorkspaceCleanupConstant     = "Unable to remove transfer workspace"
	logFieldProjectIDConstant              = "old_id"
	logFieldFullPathConstant               = "full_path"
	logFieldWorkspaceConstant              = "workspace"
	logFieldOutcomeConstant                = "outcome"
	logFieldStageConstant                  = "stage"
	logFieldErrorConstant                  = "error"
	logFieldStandardErrorConstant          = "stderr"
	scratchRootResetErrorTemplateConstant  = "unable to reset scratch root %s: %w"
	scratchRootCreateErrorTemplateConstant = "unable to create scratch root %s: %w"
	transferErrorTemplateConstant          = "mirror %s of %s failed: %s"
)

// Stage names the step of a transfer that failed.
type Stage string

// Transfer stages.
const (
	StageWorkspace Stage = "workspace"
	StageClone     Stage = "clone"
	StageInspect   Stage = "inspect"
	StageRemote    Stage = "remote"
	StagePush      Stage = "push"
)

var (
	// ErrGitExecutorNotConfigured indicates the transferer was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New("git executor not configured")
	// ErrScratchRootNotConfigured indicates the transferer was constructed without a scratch directory.
	ErrScratchRootNotConfigured = errors.New("scratch root not configured")
	// ErrScratchRootNotOwned indicates a non-empty scratch directory that was not created by a previous run.
	ErrScratchRootNotOwned      = errors.New("scratch root is not empty and lacks the " + ScratchMarkerName + " marker; choose an empty or new directory")
)

// ScratchMarkerName is the file that marks a directory as a scratch root whose contents may be cleared.
const ScratchMarkerName = ".glmigrate-scratch"

// TransferError describes a failed transfer with credentials removed from the cause text.
type TransferError struct {
	Stage    Stage
	FullPath string
	Cause    error
}

// Error describes the failure.
func (transferError TransferError) Error() string {
	return fmt.Sprintf(transferErrorTemplateConstant, transferError.Stage, transferError.FullPath, execshell.RedactText(fmt.Sprint(transferError.Cause)))
}

// Unwrap exposes the underlying cause.
func (transferError TransferError) Unwrap() error {
	return transferError.Cause
}

// GitExecutor is the subset of execshell.ShellExecutor the transferer needs.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// TransferRequest identifies one repository to mirror.
type TransferRequest struct {
	ProjectID     int
	FullPath      string
	SourceLocator string
	TargetLocator string
}

// TransferResult reports the classified outcome of a transfer.
type TransferResult struct {
	Outcome Outcome
	Err     error
}

// Succeeded reports whether the repository counts as migrated.
func (result TransferResult) Succeeded() bool {
	return result.Outcome.Succeeded()
}

// TransfererDependencies captures collaborators for the transferer.
type TransfererDependencies struct {
	Executor GitExecutor
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Transferer mirrors repositories between instances through a scratch workspace.
type Transferer struct {
	executor    GitExecutor
	logger      *zap.Logger
	clock       func() time.Time
	scratchRoot string
}

// NewTransferer constructs a Transferer writing workspaces below scratchRoot.
func NewTransferer(scratchRoot string, dependencies TransfererDependencies) (*Transferer, error) {
	if dependencies.Executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	trimmedRoot := strings.TrimSpace(scratchRoot)
	if len(trimmedRoot) == 0 {
		return nil, ErrScratchRootNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Transferer{
		executor:    dependencies.Executor,
		logger:      logger,
		clock:       clock,
		scratchRoot: trimmedRoot,
	}, nil
}

// PrepareScratchRoot clears leftovers of an earlier run and recreates the directory.
// A missing or empty directory is claimed by writing an ownership marker into it.
// A non-empty directory without that marker is left untouched and reported as ErrScratchRootNotOwned.
func (transferer *Transferer) PrepareScratchRoot() error {
	entries, readError := os.ReadDir(transferer.scratchRoot)
	if readError != nil && !errors.Is(readError, fs.ErrNotExist) {
		return fmt.Errorf(scratchRootResetErrorTemplateConstant, transferer.scratchRoot, readError)
	}

	owned := false
	for _, entry := range entries {
		if entry.Name() == ScratchMarkerName {
			owned = true
			break
		}
	}
	if len(entries) > 0 && !owned {
		return fmt.Errorf(scratchRootResetErrorTemplateConstant, transferer.scratchRoot, ErrScratchRootNotOwned)
	}

	for _, entry := range entries {
		if entry.Name() == ScratchMarkerName {
			continue
		}
		if removeError := os.RemoveAll(filepath.Join(transferer.scratchRoot, entry.Name())); removeError != nil {
			return fmt.Errorf(scratchRootResetErrorTemplateConstant, transferer.scratchRoot, removeError)
		}
	}

	if createError := os.MkdirAll(transferer.scratchRoot, workspaceDirectoryModeConstant); createError != nil {
		return fmt.Errorf(scratchRootCreateErrorTemplateConstant, transferer.scratchRoot, createError)
	}
	markerPath := filepath.Join(transferer.scratchRoot, ScratchMarkerName)
	if markerError := os.WriteFile(markerPath, []byte(scratchMarkerContentConstant), scratchMarkerModeConstant); markerError != nil {
		return fmt.Errorf(scratchRootCreateErrorTemplateConstant, transferer.scratchRoot, markerError)
	}
	return nil
}

// Transfer clones the source as a mirror into a fresh workspace and pushes every ref to the target.
// The workspace is removed on every exit path.
func (transferer *Transferer) Transfer(executionContext context.Context, request TransferRequest) TransferResult {
	if contextError := executionContext.Err(); contextError != nil {
		return transferer.fail(request, StageWorkspace, contextError, "")
	}

	if createError := os.MkdirAll(transferer.scratchRoot, workspaceDirectoryModeConstant); createError != nil {
		return transferer.fail(request, StageWorkspace, createError, "")
	}
	workspacePath := filepath.Join(transferer.scratchRoot, WorkspaceName(request.ProjectID, transferer.clock()))
	defer transferer.removeWorkspace(request, workspacePath)

	cloneResult, cloneError := transferer.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCloneSubcommandConstant, gitMirrorFlagConstant, request.SourceLocator, workspacePath},
		WorkingDirectory: transferer.scratchRoot,
	})
	if cloneError != nil {
		if reportsEmptyRepository(standardErrorOf(cloneError)) {
			return transferer.emptySource(request)
		}
		return transferer.fail(request, StageClone, cloneError, standardErrorOf(cloneError))
	}
	if reportsEmptyRepository(cloneResult.StandardError) {
		return transferer.emptySource(request)
	}

	references, inspectError := transferer.listReferences(executionContext, workspacePath)
	if inspectError != nil {
		return transferer.fail(request, StageInspect, inspectError, standardErrorOf(inspectError))
	}
	if len(references) == 0 {
		return transferer.emptySource(request)
	}

	if _, remoteError := transferer.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteAddSubcommandConstant, targetRemoteNameConstant, request.TargetLocator},
		WorkingDirectory: workspacePath,
	}); remoteError != nil {
		return transferer.fail(request, StageRemote, remoteError, standardErrorOf(remoteError))
	}

	_, pushError := transferer.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, gitMirrorFlagConstant, targetRemoteNameConstant},
		WorkingDirectory: workspacePath,
	})
	if pushError == nil {
		transferer.logger.Info(
			logMessageTransferredConstant,
			zap.Int(logFieldProjectIDConstant, request.ProjectID),
			zap.String(logFieldFullPathConstant, request.FullPath),
			zap.Stringer(logFieldOutcomeConstant, OutcomeSuccess),
		)
		return TransferResult{Outcome: OutcomeSuccess}
	}

	var commandFailure execshell.CommandFailedError
	if !errors.As(pushError, &commandFailure) {
		return transferer.fail(request, StagePush, pushError, "")
	}

	outcome := ClassifyPushFailure(PushFailureInputs{
		StandardError:           commandFailure.Result.StandardError,
		MirrorHasBranchesOrTags: containsBranchesOrTags(references),
	})
	if outcome == OutcomeAcceptableRejection {
		transferer.logger.Warn(
			logMessageAcceptableConstant,
			zap.Int(logFieldProjectIDConstant, request.ProjectID),
			zap.String(logFieldFullPathConstant, request.FullPath),
			zap.String(logFieldStandardErrorConstant, execshell.RedactText(commandFailure.Result.StandardError)),
		)
		return TransferResult{Outcome: OutcomeAcceptableRejection, Err: TransferError{Stage: StagePush, FullPath: request.FullPath, Cause: pushError}}
	}
	return transferer.fail(request, StagePush, pushError, commandFailure.Result.StandardError)
}

func (transferer *Transferer) listReferences(executionContext context.Context, workspacePath string) ([]string, error) {
	result, listError := transferer.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitForEachRefSubcommandConstant, gitRefNameFormatConstant},
		WorkingDirectory: workspacePath,
	})
	if listError != nil {
		return nil, listError
	}

	references := make([]string, 0)
	for _, line := range strings.Split(result.StandardOutput, referenceLineSeparatorConstant) {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}
		references = append(references, trimmedLine)
	}
	return references, nil
}

func (transferer *Transferer) emptySource(request TransferRequest) TransferResult {
	transferer.logger.Info(
		logMessageEmptySourceConstant,
		zap.Int(logFieldProjectIDConstant, request.ProjectID),
		zap.String(logFieldFullPathConstant, request.FullPath),
	)
	return TransferResult{Outcome: OutcomeEmptySource}
}

func (transferer *Transferer) fail(request TransferRequest, stage Stage, cause error, standardError string) TransferResult {
	transferError := TransferError{Stage: stage, FullPath: request.FullPath, Cause: cause}
	transferer.logger.Error(
		logMessageTransferFailedConstant,
		zap.Int(logFieldProjectIDConstant, request.ProjectID),
		zap.String(logFieldFullPathConstant, request.FullPath),
		zap.String(logFieldStageConstant, string(stage)),
		zap.String(logFieldErrorConstant, transferError.Error()),
		zap.String(logFieldStandardErrorConstant, execshell.RedactText(standardError)),
	)
	return TransferResult{Outcome: OutcomeHardFailure, Err: transferError}
}

func (transferer *Transferer) removeWorkspace(request TransferRequest, workspacePath string) {
	if removeError := os.RemoveAll(workspacePath); removeError != nil {
		transferer.logger.Warn(
			logMessageWorkspaceCleanupConstant,
			zap.Int(logFieldProjectIDConstant, request.ProjectID),
			zap.String(logFieldWorkspaceConstant, workspacePath),
			zap.Error(removeError),
		)
	}
}

func containsBranchesOrTags(references []string) bool {
	for _, reference := range references {
		if strings.HasPrefix(reference, branchReferencePrefixConstant) || strings.HasPrefix(reference, tagReferencePrefixConstant) {
			return true
		}
	}
	return false
}

func standardErrorOf(err error) string {
	var commandFailure execshell.CommandFailedError
	if errors.As(err, &commandFailure) {
		return commandFailure.Result.StandardError
	}
	return ""
}

// WorkspaceName returns the directory name used for a project's transfer workspace at the given instant.
func WorkspaceName(projectID int, instant time.Time) string {
	return strconv.Itoa(projectID) + "_" + strconv.FormatInt(instant.UnixNano(), 10)
}
