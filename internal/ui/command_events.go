package ui

import (
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/execshell"
)

// CommandMessageBuilder renders lifecycle messages for shell commands.
type CommandMessageBuilder interface {
	BuildStartedMessage(command execshell.ShellCommand) string
	BuildSuccessMessage(command execshell.ShellCommand) string
	BuildFailureMessage(command execshell.ShellCommand, result execshell.ExecutionResult) string
	BuildExecutionFailureMessage(command execshell.ShellCommand, failure error) string
}

// ConsoleCommandEventLogger renders git lifecycle events as human-readable log lines.
// Non-zero exits are logged at warn level because the mirror transfer classifies some of them as acceptable.
type ConsoleCommandEventLogger struct {
	logger    *zap.Logger
	formatter CommandMessageBuilder
}

// NewConsoleCommandEventLogger constructs a console event logger backed by the provided zap logger.
func NewConsoleCommandEventLogger(logger *zap.Logger) *ConsoleCommandEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventLogger{logger: logger, formatter: execshell.CommandMessageFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandStarted(command execshell.ShellCommand) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(command))
}

// CommandCompleted implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if eventLogger == nil {
		return
	}
	if result.ExitCode == 0 {
		eventLogger.logger.Info(eventLogger.formatter.BuildSuccessMessage(command))
		return
	}
	eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(command, result))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Error(eventLogger.formatter.BuildExecutionFailureMessage(command, failure))
}
