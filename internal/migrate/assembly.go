package migrate

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/credentials"
	"github.com/temirov/glmigrate/internal/execshell"
	"github.com/temirov/glmigrate/internal/gitlabapi"
	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/mirror"
	"github.com/temirov/glmigrate/internal/platform"
)

const (
	tokenResolutionErrorTemplateConstant    = "unable to resolve %s token: %w"
	clientCreationErrorTemplateConstant     = "unable to construct %s GitLab client: %w"
	executorCreationErrorTemplateConstant   = "unable to construct git executor: %w"
	transfererCreationErrorTemplateConstant = "unable to construct repository transferer: %w"
	scratchPathErrorTemplateConstant        = "unable to resolve scratch directory: %w"
	logMessageInvalidTargetParentConstant   = "Invalid target parent id, migrating to the top level"
	logFieldTargetParentIDConstant          = "target_parent_id"
)

// PlatformClientFactory builds a platform client for one GitLab instance.
type PlatformClientFactory func(options gitlabapi.ClientOptions) (platform.Client, error)

// AssemblyDependencies supplies collaborators for BuildService. Nil members fall back to production implementations.
type AssemblyDependencies struct {
	Logger        *zap.Logger
	Tracker       *jobstate.Tracker
	Recorder      TransferRecorder
	GitExecutor   mirror.GitExecutor
	TokenResolver credentials.TokenResolver
	ClientFactory PlatformClientFactory
	HTTPClient    *http.Client
}

// BuildService resolves credentials, constructs both GitLab clients and the transfer executor, and returns a Service.
func BuildService(executionContext context.Context, configuration CommandConfiguration, dependencies AssemblyDependencies) (*Service, error) {
	sanitized := configuration.Sanitize()

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if dependencies.Tracker == nil {
		return nil, ErrTrackerNotConfigured
	}

	clientFactory := dependencies.ClientFactory
	if clientFactory == nil {
		clientFactory = func(options gitlabapi.ClientOptions) (platform.Client, error) {
			return gitlabapi.NewClient(options, gitlabapi.ClientDependencies{HTTPClient: dependencies.HTTPClient, Logger: logger})
		}
	}

	sourceClient, sourceError := buildPlatformClient(executionContext, sourceRoleConstant, sanitized.Source, dependencies.TokenResolver, clientFactory)
	if sourceError != nil {
		return nil, sourceError
	}
	targetClient, targetError := buildPlatformClient(executionContext, targetRoleConstant, sanitized.Target, dependencies.TokenResolver, clientFactory)
	if targetError != nil {
		return nil, targetError
	}

	gitExecutor := dependencies.GitExecutor
	if gitExecutor == nil {
		shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), nil)
		if executorError != nil {
			return nil, fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
		}
		gitExecutor = shellExecutor
	}

	scratchRoot, scratchError := filepath.Abs(sanitized.ScratchDirectory)
	if scratchError != nil {
		return nil, fmt.Errorf(scratchPathErrorTemplateConstant, scratchError)
	}
	transferer, transfererError := mirror.NewTransferer(scratchRoot, mirror.TransfererDependencies{Executor: gitExecutor, Logger: logger})
	if transfererError != nil {
		return nil, fmt.Errorf(transfererCreationErrorTemplateConstant, transfererError)
	}

	options, optionsError := sanitized.ServiceOptions()
	if optionsError != nil {
		logger.Warn(
			logMessageInvalidTargetParentConstant,
			zap.String(logFieldTargetParentIDConstant, sanitized.TargetParentID),
			zap.Error(optionsError),
		)
	}

	return NewService(options, ServiceDependencies{
		Source:     sourceClient,
		Target:     targetClient,
		Transferer: transferer,
		Tracker:    dependencies.Tracker,
		Recorder:   dependencies.Recorder,
		Logger:     logger,
	})
}

func buildPlatformClient(executionContext context.Context, role string, configuration gitlabapi.InstanceConfiguration, resolver credentials.TokenResolver, factory PlatformClientFactory) (platform.Client, error) {
	token, tokenError := credentials.ResolveConfiguredToken(executionContext, resolver, configuration.Token, configuration.TokenSource)
	if tokenError != nil {
		return nil, fmt.Errorf(tokenResolutionErrorTemplateConstant, role, tokenError)
	}
	client, clientError := factory(gitlabapi.OptionsFromConfiguration(role, configuration, token))
	if clientError != nil {
		return nil, fmt.Errorf(clientCreationErrorTemplateConstant, role, clientError)
	}
	return client, nil
}
