package statusapi

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/credentials"
	"github.com/temirov/glmigrate/internal/jobstate"
	"github.com/temirov/glmigrate/internal/migrate"
	"github.com/temirov/glmigrate/internal/mirror"
	"github.com/temirov/glmigrate/internal/telemetry"
)

const (
	commandUseConstant                    = "serve"
	commandShortDescriptionConstant       = "Serve the migration trigger and status API"
	commandLongDescriptionConstant        = "serve starts an HTTP API: POST /start-migration launches a background migration run, GET /get-status reports its progress, and GET /metrics exposes Prometheus metrics."
	listenFlagNameConstant                = "listen"
	listenFlagUsageConstant               = "Address the status API listens on"
	networkTCPConstant                    = "tcp"
	metricsCreationErrorTemplateConstant  = "unable to register metrics: %w"
	listenErrorTemplateConstant           = "unable to listen on %s: %w"
	launcherCreationErrorTemplateConstant = "unable to construct migration launcher: %w"
	serverCreationErrorTemplateConstant   = "unable to construct status API: %w"
)

// ListenerFactory opens the network listener for the status API.
type ListenerFactory func(executionContext context.Context, address string) (net.Listener, error)

// CommandBuilder assembles the serve Cobra command.
type CommandBuilder struct {
	LoggerProvider                 migrate.LoggerProvider
	MigrationConfigurationProvider func() migrate.CommandConfiguration
	ServeConfigurationProvider     func() ServeConfiguration
	GitExecutor                    mirror.GitExecutor
	TokenResolver                  credentials.TokenResolver
	ClientFactory                  migrate.PlatformClientFactory
	ListenerFactory                ListenerFactory
}

// Build constructs the serve command.
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

	command.Flags().String(listenFlagNameConstant, "", listenFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	serveConfiguration := builder.parseServeConfiguration(command)
	migrationConfiguration := builder.resolveMigrationConfiguration()
	logger := builder.resolveLogger()

	registry := prometheus.NewRegistry()
	metrics, metricsError := telemetry.NewMigrationMetrics(registry)
	if metricsError != nil {
		return fmt.Errorf(metricsCreationErrorTemplateConstant, metricsError)
	}
	tracker := jobstate.NewTracker(migrationConfiguration.LogCapacity, jobstate.TrackerDependencies{
		Logger:    logger,
		Observers: []jobstate.UpdateObserver{metrics},
	})

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	signalContext, stopSignals := signal.NotifyContext(executionContext, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	service, serviceError := migrate.BuildService(signalContext, migrationConfiguration, migrate.AssemblyDependencies{
		Logger:        logger,
		Tracker:       tracker,
		Recorder:      metrics,
		GitExecutor:   builder.GitExecutor,
		TokenResolver: builder.TokenResolver,
		ClientFactory: builder.ClientFactory,
	})
	if serviceError != nil {
		return serviceError
	}

	launcher, launcherError := migrate.NewLauncher(migrate.LauncherDependencies{Runner: service, Tracker: tracker, Logger: logger})
	if launcherError != nil {
		return fmt.Errorf(launcherCreationErrorTemplateConstant, launcherError)
	}
	defer launcher.Wait()
	defer launcher.Shutdown()

	server, serverError := NewServer(ServerDependencies{Launcher: launcher, Status: tracker, Gatherer: registry, Logger: logger})
	if serverError != nil {
		return fmt.Errorf(serverCreationErrorTemplateConstant, serverError)
	}

	listener, listenError := builder.listen(signalContext, serveConfiguration.ListenAddress)
	if listenError != nil {
		return fmt.Errorf(listenErrorTemplateConstant, serveConfiguration.ListenAddress, listenError)
	}

	return server.Serve(signalContext, listener)
}

func (builder *CommandBuilder) listen(executionContext context.Context, address string) (net.Listener, error) {
	if builder.ListenerFactory != nil {
		return builder.ListenerFactory(executionContext, address)
	}
	var listenConfig net.ListenConfig
	return listenConfig.Listen(executionContext, networkTCPConstant, address)
}

func (builder *CommandBuilder) parseServeConfiguration(command *cobra.Command) ServeConfiguration {
	configuration := DefaultServeConfiguration()
	if builder.ServeConfigurationProvider != nil {
		configuration = builder.ServeConfigurationProvider()
	}
	if command != nil && command.Flags().Changed(listenFlagNameConstant) {
		flagValue, _ := command.Flags().GetString(listenFlagNameConstant)
		configuration.ListenAddress = flagValue
	}
	return configuration.Sanitize()
}

func (builder *CommandBuilder) resolveMigrationConfiguration() migrate.CommandConfiguration {
	if builder.MigrationConfigurationProvider == nil {
		return migrate.DefaultCommandConfiguration()
	}
	return builder.MigrationConfigurationProvider().Sanitize()
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
