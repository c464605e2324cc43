package execshell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/execshell"
)

const (
	testShellCommandNameConstant        = execshell.CommandName("sh")
	testShellInlineFlagConstant         = "-c"
	testPromptProbeScriptConstant       = `printf %s "$GIT_TERMINAL_PROMPT"`
	testExitCodeScriptConstant          = "echo broken >&2; exit 3"
	testCustomVariableScriptConstant    = `printf %s "$GLMIGRATE_PROBE"`
	testCustomVariableNameConstant      = "GLMIGRATE_PROBE"
	testCustomVariableValueConstant     = "probe-value"
	testExpectedPromptValueConstant     = "0"
	testExpectedStandardErrorConstant   = "broken\n"
	testExpectedNonZeroExitCodeConstant = 3
)

func TestOSCommandRunnerDisablesTerminalPrompts(testInstance *testing.T) {
	runner := execshell.NewOSCommandRunner()

	executionResult, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name:    testShellCommandNameConstant,
		Details: execshell.CommandDetails{Arguments: []string{testShellInlineFlagConstant, testPromptProbeScriptConstant}},
	})

	require.NoError(testInstance, runError)
	require.Equal(testInstance, testExpectedPromptValueConstant, executionResult.StandardOutput)
}

func TestOSCommandRunnerReportsExitCodeWithoutError(testInstance *testing.T) {
	runner := execshell.NewOSCommandRunner()

	executionResult, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name:    testShellCommandNameConstant,
		Details: execshell.CommandDetails{Arguments: []string{testShellInlineFlagConstant, testExitCodeScriptConstant}},
	})

	require.NoError(testInstance, runError)
	require.Equal(testInstance, testExpectedNonZeroExitCodeConstant, executionResult.ExitCode)
	require.Equal(testInstance, testExpectedStandardErrorConstant, executionResult.StandardError)
}

func TestOSCommandRunnerMergesCommandEnvironment(testInstance *testing.T) {
	runner := execshell.NewOSCommandRunner()

	executionResult, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: testShellCommandNameConstant,
		Details: execshell.CommandDetails{
			Arguments:            []string{testShellInlineFlagConstant, testCustomVariableScriptConstant},
			EnvironmentVariables: map[string]string{testCustomVariableNameConstant: testCustomVariableValueConstant},
		},
	})

	require.NoError(testInstance, runError)
	require.Equal(testInstance, testCustomVariableValueConstant, executionResult.StandardOutput)
}

func TestOSCommandRunnerSurfacesCancellation(testInstance *testing.T) {
	runner := execshell.NewOSCommandRunner()
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, runError := runner.Run(cancelledContext, execshell.ShellCommand{
		Name:    testShellCommandNameConstant,
		Details: execshell.CommandDetails{Arguments: []string{testShellInlineFlagConstant, "sleep 5"}},
	})

	require.ErrorIs(testInstance, runError, context.Canceled)
}
