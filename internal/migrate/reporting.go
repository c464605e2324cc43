package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/mirror"
)

// ProgressReporter receives run state updates. jobstate.Tracker satisfies it.
type ProgressReporter interface {
	Apply(update jobstate.Update)
}

// RepositoryTransferer mirrors repositories through a scratch workspace.
type RepositoryTransferer interface {
	PrepareScratchRoot() error
	Transfer(executionContext context.Context, request mirror.TransferRequest) mirror.TransferResult
}

// TransferRecorder counts transfer outcomes by name.
type TransferRecorder interface {
	RecordTransfer(outcome string)
}

type discardingReporter struct{}

func (discardingReporter) Apply(jobstate.Update) {}

type discardingRecorder struct{}

func (discardingRecorder) RecordTransfer(string) {}

func reportInfo(reporter ProgressReporter, format string, arguments ...any) {
	reporter.Apply(jobstate.Update{Message: fmt.Sprintf(format, arguments...), Severity: jobstate.SeverityInfo})
}

func reportWarning(reporter ProgressReporter, format string, arguments ...any) {
	reporter.Apply(jobstate.Update{Message: fmt.Sprintf(format, arguments...), Severity: jobstate.SeverityWarning})
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
