package mirror

import (
	"strings"
)

const (
	outcomeSuccessNameConstant             = "success"
	outcomeEmptySourceNameConstant         = "empty_source"
	outcomeAcceptableRejectionNameConstant = "acceptable_rejection"
	outcomeHardFailureNameConstant         = "hard_failure"
	remoteRejectedMarkerConstant           = "! [remote rejected]"
	localRejectionPrefixConstant           = "! ["
	errorLinePrefixConstant                = "error:"
	fatalLinePrefixConstant                = "fatal:"
	noRefsInCommonMarkerConstant           = "no refs in common and none specified"
	remoteHungUpMarkerConstant             = "the remote end hung up"
	emptyRepositoryCloneMarkerConstant     = "you appear to have cloned an empty repository"
	pushOutputLineSeparatorConstant        = "\n"
)

// Outcome classifies a transfer.
type Outcome int

// Transfer outcomes. Every outcome except OutcomeHardFailure counts as success.
const (
	OutcomeSuccess Outcome = iota
	OutcomeEmptySource
	OutcomeAcceptableRejection
	OutcomeHardFailure
)

// String returns the snake_case name used in logs and reports.
func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeSuccess:
		return outcomeSuccessNameConstant
	case OutcomeEmptySource:
		return outcomeEmptySourceNameConstant
	case OutcomeAcceptableRejection:
		return outcomeAcceptableRejectionNameConstant
	default:
		return outcomeHardFailureNameConstant
	}
}

// Succeeded reports whether the outcome counts as a migrated repository.
func (outcome Outcome) Succeeded() bool {
	return outcome != OutcomeHardFailure
}

var hiddenReferenceMarkers = []string{
	"deny updating a hidden ref",
	"refs/merge-requests/",
	"refs/pipelines/",
	"refs/keep-around/",
	"refs/environments/",
}

var transportCancellationMarkers = []string{
	"failed to push some refs",
	remoteHungUpMarkerConstant,
	"unexpected disconnect",
	"rpc failed",
	"cancel",
}

// PushFailureInputs captures what is known about a failed mirror push.
type PushFailureInputs struct {
	StandardError           string
	MirrorHasBranchesOrTags bool
}

// ClassifyPushFailure decides whether a failed mirror push still left the target in a usable state.
//
// Rejections limited to server-managed hidden refs are acceptable, as is an
// empty negotiation when the mirror carries no branches or tags.
func ClassifyPushFailure(inputs PushFailureInputs) Outcome {
	loweredOutput := strings.ToLower(inputs.StandardError)

	rejectedCount := 0
	unexplainedErrorFound := false
	for _, line := range strings.Split(inputs.StandardError, pushOutputLineSeparatorConstant) {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}
		loweredLine := strings.ToLower(trimmedLine)

		switch {
		case strings.HasPrefix(trimmedLine, remoteRejectedMarkerConstant):
			if !containsAny(loweredLine, hiddenReferenceMarkers) {
				return OutcomeHardFailure
			}
			rejectedCount++
		case strings.HasPrefix(trimmedLine, localRejectionPrefixConstant):
			return OutcomeHardFailure
		case strings.HasPrefix(loweredLine, errorLinePrefixConstant), strings.HasPrefix(loweredLine, fatalLinePrefixConstant):
			if !containsAny(loweredLine, transportCancellationMarkers) {
				unexplainedErrorFound = true
			}
		}
	}

	if rejectedCount > 0 && !unexplainedErrorFound {
		return OutcomeAcceptableRejection
	}

	if !inputs.MirrorHasBranchesOrTags {
		if strings.Contains(loweredOutput, noRefsInCommonMarkerConstant) || strings.Contains(loweredOutput, remoteHungUpMarkerConstant) {
			return OutcomeAcceptableRejection
		}
	}

	return OutcomeHardFailure
}

// reportsEmptyRepository reports whether clone output announces an empty source repository.
func reportsEmptyRepository(cloneOutput string) bool {
	return strings.Contains(strings.ToLower(cloneOutput), emptyRepositoryCloneMarkerConstant)
}

func containsAny(value string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(value, marker) {
			return true
		}
	}
	return false
}
