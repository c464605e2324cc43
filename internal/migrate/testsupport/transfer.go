package testsupport

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/temirov/glmigrate/internal/execshell"
	"github.com/temirov/glmigrate/internal/mirror"
)

const (
	hardFailureCauseMessageConstant = "push rejected by target"
	gitCloneSubcommandConstant      = "clone"
	gitForEachRefSubcommandConstant = "for-each-ref"
	gitDefaultBranchRefConstant     = "refs/heads/main\n"
	workspaceArgumentIndexConstant  = 3
	workspacePermissionsConstant    = 0o755
)

// RecordingTransferer is a transfer executor returning scripted outcomes keyed by project full path.
type RecordingTransferer struct {
	mutex sync.Mutex

	Outcomes     map[string]mirror.Outcome
	PrepareError error
	BeforeReturn func(executionContext context.Context, request mirror.TransferRequest)

	PrepareCalls int
	Requests     []mirror.TransferRequest
}

// PrepareScratchRoot records the call and returns PrepareError.
func (transferer *RecordingTransferer) PrepareScratchRoot() error {
	transferer.mutex.Lock()
	defer transferer.mutex.Unlock()
	transferer.PrepareCalls++
	return transferer.PrepareError
}

// Transfer records request and returns the scripted outcome, OutcomeSuccess by default.
func (transferer *RecordingTransferer) Transfer(executionContext context.Context, request mirror.TransferRequest) mirror.TransferResult {
	transferer.mutex.Lock()
	transferer.Requests = append(transferer.Requests, request)
	outcome, scripted := transferer.Outcomes[request.FullPath]
	beforeReturn := transferer.BeforeReturn
	transferer.mutex.Unlock()

	if beforeReturn != nil {
		beforeReturn(executionContext, request)
	}
	if !scripted {
		outcome = mirror.OutcomeSuccess
	}
	if outcome == mirror.OutcomeHardFailure {
		return mirror.TransferResult{
			Outcome: outcome,
			Err:     mirror.TransferError{Stage: mirror.StagePush, FullPath: request.FullPath, Cause: errors.New(hardFailureCauseMessageConstant)},
		}
	}
	return mirror.TransferResult{Outcome: outcome}
}

// RequestedPaths returns the full paths of every transfer request in order.
func (transferer *RecordingTransferer) RequestedPaths() []string {
	transferer.mutex.Lock()
	defer transferer.mutex.Unlock()
	paths := make([]string, 0, len(transferer.Requests))
	for _, request := range transferer.Requests {
		paths = append(paths, request.FullPath)
	}
	return paths
}

// MirrorGitExecutor emulates a git binary for mirror transfers: clones create the
// workspace directory, the mirror reports a main branch and every other command succeeds.
type MirrorGitExecutor struct {
	mutex    sync.Mutex
	Commands []execshell.CommandDetails
}

// ExecuteGit implements mirror.GitExecutor.
func (executor *MirrorGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.mutex.Lock()
	executor.Commands = append(executor.Commands, details)
	executor.mutex.Unlock()

	if contextError := executionContext.Err(); contextError != nil {
		return execshell.ExecutionResult{}, contextError
	}
	if len(details.Arguments) == 0 {
		return execshell.ExecutionResult{}, nil
	}
	switch details.Arguments[0] {
	case gitCloneSubcommandConstant:
		if len(details.Arguments) > workspaceArgumentIndexConstant {
			if mkdirError := os.MkdirAll(details.Arguments[workspaceArgumentIndexConstant], workspacePermissionsConstant); mkdirError != nil {
				return execshell.ExecutionResult{}, mkdirError
			}
		}
	case gitForEachRefSubcommandConstant:
		return execshell.ExecutionResult{StandardOutput: gitDefaultBranchRefConstant}, nil
	}
	return execshell.ExecutionResult{}, nil
}

// Subcommands returns the first argument of every executed command in order.
func (executor *MirrorGitExecutor) Subcommands() []string {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	subcommands := make([]string, 0, len(executor.Commands))
	for _, details := range executor.Commands {
		if len(details.Arguments) > 0 {
			subcommands = append(subcommands, details.Arguments[0])
		}
	}
	return subcommands
}
