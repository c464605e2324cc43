package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/credentials"
	"github.com/temirov/glmigrate/internal/execshell"
	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/mirror"
	"github.com/temirov/glmigrate/internal/ui"
)

const (
	commandUseConstant                        = "migrate"
	commandShortDescriptionConstant           = "Migrate GitLab groups and projects to another instance"
	commandLongDescriptionConstant            = "migrate recreates the source GitLab group hierarchy on the target instance, creates every project beneath its migrated group, and mirrors each repository with git clone --mirror and git push --mirror."
	targetParentFlagNameConstant              = "target-parent-id"
	targetParentFlagUsageConstant             = "Target group id that receives the migrated top-level groups (empty for the top level)"
	scratchDirectoryFlagNameConstant          = "scratch-dir"
	scratchDirectoryFlagUsageConstant         = "Directory used for temporary mirror clones; it is emptied at the start of each run and a non-empty directory must carry the marker of an earlier run"
	reportFlagNameConstant                    = "report"
	reportFlagUsageConstant                   = "Optional path of a YAML report describing the run"
	migrationCommandErrorTemplateConstant     = "migration failed: %w"
	executorConstructionErrorTemplateConstant = "unable to construct git executor: %w"
	summaryHeaderTemplateConstant             = "Migration run %s finished with status %s\n"
	summaryGroupsTemplateConstant             = "Groups: %d migrated, %d failed\n"
	summaryProjectsTemplateConstant           = "Projects: %d migrated, %d failed\n"
	summaryErrorTemplateConstant              = "Error: %s\n"
	summaryReportTemplateConstant             = "Report: %s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	GitExecutor                  mirror.GitExecutor
	TokenResolver                credentials.TokenResolver
	ClientFactory                PlatformClientFactory
	Recorder                     TransferRecorder
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(targetParentFlagNameConstant, "", targetParentFlagUsageConstant)
	command.Flags().String(scratchDirectoryFlagNameConstant, "", scratchDirectoryFlagUsageConstant)
	command.Flags().String(reportFlagNameConstant, "", reportFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.parseConfiguration(command)
	logger := builder.resolveLogger()

	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return executorError
	}

	tracker := jobstate.NewTracker(configuration.LogCapacity, jobstate.TrackerDependencies{Logger: logger})

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	signalContext, stopSignals := signal.NotifyContext(executionContext, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	service, serviceError := BuildService(signalContext, configuration, AssemblyDependencies{
		Logger:        logger,
		Tracker:       tracker,
		Recorder:      builder.Recorder,
		GitExecutor:   executor,
		TokenResolver: builder.TokenResolver,
		ClientFactory: builder.ClientFactory,
	})
	if serviceError != nil {
		return serviceError
	}

	summary, runError := service.Run(signalContext)
	writeSummary(command.OutOrStdout(), summary)
	if runError != nil {
		return fmt.Errorf(migrationCommandErrorTemplateConstant, runError)
	}
	return nil
}

func (builder *CommandBuilder) parseConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := builder.resolveConfiguration()
	if command == nil {
		return configuration
	}

	if command.Flags().Changed(targetParentFlagNameConstant) {
		flagValue, _ := command.Flags().GetString(targetParentFlagNameConstant)
		configuration.TargetParentID = flagValue
	}
	if command.Flags().Changed(scratchDirectoryFlagNameConstant) {
		flagValue, _ := command.Flags().GetString(scratchDirectoryFlagNameConstant)
		configuration.ScratchDirectory = flagValue
	}
	if command.Flags().Changed(reportFlagNameConstant) {
		flagValue, _ := command.Flags().GetString(reportFlagNameConstant)
		configuration.ReportPath = flagValue
	}
	return configuration.Sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (mirror.GitExecutor, error) {
	if builder.GitExecutor != nil {
		return builder.GitExecutor, nil
	}

	var observer execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		observer = ui.NewConsoleCommandEventLogger(logger)
	}
	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), observer)
	if creationError != nil {
		return nil, fmt.Errorf(executorConstructionErrorTemplateConstant, creationError)
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func writeSummary(writer io.Writer, summary RunSummary) {
	if len(strings.TrimSpace(summary.RunID)) == 0 {
		return
	}
	fmt.Fprintf(writer, summaryHeaderTemplateConstant, summary.RunID, summary.Status)
	fmt.Fprintf(writer, summaryGroupsTemplateConstant, summary.Groups.Completed, summary.Groups.Failed)
	fmt.Fprintf(writer, summaryProjectsTemplateConstant, summary.Projects.Completed, summary.Projects.Failed)
	if len(summary.ErrorMessage) > 0 {
		fmt.Fprintf(writer, summaryErrorTemplateConstant, summary.ErrorMessage)
	}
	if len(summary.ReportPath) > 0 {
		fmt.Fprintf(writer, summaryReportTemplateConstant, summary.ReportPath)
	}
}
