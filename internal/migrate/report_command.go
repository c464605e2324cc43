package migrate

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const (
	reportCommandUseConstant              = "report"
	reportCommandShortDescriptionConstant = "Print the summary stored in a migration report"
	reportCommandLongDescriptionConstant  = "report reads the YAML report written by an earlier migrate run and prints its totals together with every namespace and project that failed."
	reportPathFlagUsageConstant           = "Path of the YAML report to read (defaults to the configured report path)"
	reportCommandErrorTemplateConstant    = "unable to show migration report: %w"
	failedNamespacesHeaderConstant        = "Failed namespaces:\n"
	failedProjectsHeaderConstant          = "Failed projects:\n"
	failureLineTemplateConstant           = "  %s (old ID %d): %s\n"
)

// ReportCommandBuilder assembles the report Cobra command.
type ReportCommandBuilder struct {
	ConfigurationProvider func() CommandConfiguration
}

// Build constructs the report command.
func (builder *ReportCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           reportCommandUseConstant,
		Short:         reportCommandShortDescriptionConstant,
		Long:          reportCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(reportFlagNameConstant, "", reportPathFlagUsageConstant)

	return command, nil
}

func (builder *ReportCommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	if command.Flags().Changed(reportFlagNameConstant) {
		flagValue, _ := command.Flags().GetString(reportFlagNameConstant)
		configuration.ReportPath = flagValue
	}
	configuration = configuration.Sanitize()

	summary, readError := ReadReport(configuration.ReportPath)
	if readError != nil {
		return fmt.Errorf(reportCommandErrorTemplateConstant, readError)
	}

	writer := command.OutOrStdout()
	writeSummary(writer, summary)
	writeFailures(writer, failedNamespacesHeaderConstant, summary.FailedNamespaces)
	writeFailures(writer, failedProjectsHeaderConstant, summary.FailedProjects)
	return nil
}

func writeFailures(writer io.Writer, header string, failures []FailureRecord) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprint(writer, header)
	for _, failure := range failures {
		fmt.Fprintf(writer, failureLineTemplateConstant, failure.FullPath, failure.ID, failure.Reason)
	}
}
