package execshell

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	redactedCredentialsReplacementConstant = "${1}:REDACTED@"
	commandDescriptionTemplateConstant     = "%s %s"
	logFieldErrorConstant                  = "error"
)

var embeddedPasswordExpression = regexp.MustCompile(`(://[^/@\s:]+):[^/@\s]+@`)

// RedactArguments returns a copy of arguments with URL passwords masked.
func RedactArguments(arguments []string) []string {
	redactedArguments := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		redactedArguments = append(redactedArguments, RedactText(argument))
	}
	return redactedArguments
}

// RedactText masks the password part of every URL found inside text.
func RedactText(text string) string {
	return embeddedPasswordExpression.ReplaceAllString(text, redactedCredentialsReplacementConstant)
}

// DescribeCommand renders a command and its redacted arguments on one line.
func DescribeCommand(command ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return string(command.Name)
	}
	return fmt.Sprintf(commandDescriptionTemplateConstant, command.Name, strings.Join(RedactArguments(command.Details.Arguments), commandArgumentsJoinSeparatorConstant))
}
