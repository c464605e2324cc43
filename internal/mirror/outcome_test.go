package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/mirror"
)

func TestClassifyPushFailure(testInstance *testing.T) {
	testCases := []struct {
		name            string
		inputs          mirror.PushFailureInputs
		expectedOutcome mirror.Outcome
	}{
		{
			name: "hidden_refs_only",
			inputs: mirror.PushFailureInputs{
				StandardError:           testHiddenRefRejectionConstant,
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeAcceptableRejection,
		},
		{
			name: "pipeline_and_keep_around_refs",
			inputs: mirror.PushFailureInputs{
				StandardError: " ! [remote rejected] refs/pipelines/12 -> refs/pipelines/12 (pre-receive hook declined)\n" +
					" ! [remote rejected] refs/keep-around/abc -> refs/keep-around/abc (pre-receive hook declined)\n" +
					"error: failed to push some refs to 'https://new.example.com/team/app.git'\n",
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeAcceptableRejection,
		},
		{
			name: "hidden_refs_with_transport_cancellation",
			inputs: mirror.PushFailureInputs{
				StandardError: " ! [remote rejected] refs/environments/7 -> refs/environments/7 (deny updating a hidden ref)\n" +
					"error: RPC failed; HTTP 500 curl 22\n" +
					"fatal: the remote end hung up unexpectedly\n",
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeAcceptableRejection,
		},
		{
			name: "branch_rejected",
			inputs: mirror.PushFailureInputs{
				StandardError:           testProtectedBranchRejectionConstant,
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeHardFailure,
		},
		{
			name: "hidden_refs_with_unexplained_error",
			inputs: mirror.PushFailureInputs{
				StandardError: " ! [remote rejected] refs/merge-requests/3/head -> refs/merge-requests/3/head (deny updating a hidden ref)\n" +
					"error: object file is corrupt\n",
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeHardFailure,
		},
		{
			name: "local_rejection",
			inputs: mirror.PushFailureInputs{
				StandardError:           " ! [rejected]        main -> main (fetch first)\n",
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeHardFailure,
		},
		{
			name: "no_refs_in_common_without_branches",
			inputs: mirror.PushFailureInputs{
				StandardError: "No refs in common and none specified; doing nothing.\nPerhaps you should specify a branch.\n",
			},
			expectedOutcome: mirror.OutcomeAcceptableRejection,
		},
		{
			name: "hung_up_without_branches",
			inputs: mirror.PushFailureInputs{
				StandardError: "fatal: the remote end hung up unexpectedly\n",
			},
			expectedOutcome: mirror.OutcomeAcceptableRejection,
		},
		{
			name: "hung_up_with_branches",
			inputs: mirror.PushFailureInputs{
				StandardError:           "fatal: the remote end hung up unexpectedly\n",
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeHardFailure,
		},
		{
			name: "authentication_failure",
			inputs: mirror.PushFailureInputs{
				StandardError:           "remote: HTTP Basic: Access denied\nfatal: Authentication failed for 'https://new.example.com/team/app.git/'\n",
				MirrorHasBranchesOrTags: true,
			},
			expectedOutcome: mirror.OutcomeHardFailure,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedOutcome, mirror.ClassifyPushFailure(testCase.inputs))
		})
	}
}

func TestOutcomeNames(testInstance *testing.T) {
	require.Equal(testInstance, "success", mirror.OutcomeSuccess.String())
	require.Equal(testInstance, "empty_source", mirror.OutcomeEmptySource.String())
	require.Equal(testInstance, "acceptable_rejection", mirror.OutcomeAcceptableRejection.String())
	require.Equal(testInstance, "hard_failure", mirror.OutcomeHardFailure.String())
	require.False(testInstance, mirror.OutcomeHardFailure.Succeeded())
}
