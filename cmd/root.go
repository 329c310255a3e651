package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/tagwatch/internal/actions"
	"github.com/nicholas-fedor/tagwatch/internal/api"
	"github.com/nicholas-fedor/tagwatch/internal/flags"
	"github.com/nicholas-fedor/tagwatch/internal/logging"
	"github.com/nicholas-fedor/tagwatch/internal/meta"
	"github.com/nicholas-fedor/tagwatch/internal/scheduling"
	"github.com/nicholas-fedor/tagwatch/pkg/config"
	"github.com/nicholas-fedor/tagwatch/pkg/metrics"
	"github.com/nicholas-fedor/tagwatch/pkg/registry"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Exit codes of the tagwatch process.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitStateNotPersisted = 2
)

// errInvalidAPIHost indicates an http-api-host value that is not an IP address.
var errInvalidAPIHost = errors.New("http-api-host must be empty or a valid IP address")

// options holds the check settings read during preRun.
var options flags.Options

// scheduleSpec is the cron schedule read during preRun, after --interval has been
// folded into it.
var scheduleSpec string

var rootCmd = NewRootCommand()

// RunConfig encapsulates the parameters of runMain.
type RunConfig struct {
	// Command is the executed command, used for startup logging.
	Command *cobra.Command
	// Options are the check run settings.
	Options flags.Options
	// Schedule is the cron spec of periodic runs; empty disables them.
	Schedule string
	// RunOnce performs a single run and exits.
	RunOnce bool
	// EnableCheckAPI exposes the check endpoint.
	EnableCheckAPI bool
	// EnableMetricsAPI exposes the metrics endpoint.
	EnableMetricsAPI bool
	APIToken         string
	APIHost          string
	APIPort          string
	// Out receives the reports; nil disables them.
	Out io.Writer
	// NewRegistry overrides the registry client factory.
	NewRegistry types.RegistryFactory
}

// NewRootCommand creates the root command of the tagwatch CLI.
//
// Returns:
//   - *cobra.Command: The configured root command.
func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tagwatch",
		Short: "Detects new and re-pushed tags in container image repositories",
		Long: "\nTagwatch polls a container registry for the tags of configured repositories and reports\n" +
			"tags that appeared or now point at a different manifest since the previous run.",
		Run:    run,
		PreRun: preRun,
		Args:   cobra.NoArgs,
	}
}

func init() {
	flags.SetDefaults()
	flags.RegisterCheckFlags(rootCmd)
	flags.RegisterStateFlags(rootCmd)
	flags.RegisterSystemFlags(rootCmd)

	rootCmd.AddCommand(newLambdaCommand())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("Failed to execute root command")
	}
}

// preRun prepares logging and reads the check settings from flags and environment.
func preRun(cmd *cobra.Command, _ []string) {
	flagsSet := cmd.PersistentFlags()

	if err := flags.ProcessFlagAliases(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Invalid scheduling flags")
	}

	if err := flags.SetupLogging(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logging")
	}

	if err := flags.GetSecretsFromFiles(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to read secrets from files")
	}

	var err error

	options, err = flags.ReadOptions(flagsSet)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid check settings")
	}

	scheduleSpec, _ = flagsSet.GetString("schedule")
	logrus.WithField("schedule", scheduleSpec).Debug("Retrieved schedule specification from flags")

	registry.UserAgent = meta.UserAgent
}

func run(c *cobra.Command, _ []string) {
	flagsSet := c.PersistentFlags()

	runOnce, _ := flagsSet.GetBool("run-once")
	enableCheckAPI, _ := flagsSet.GetBool("http-api-check")
	enableMetricsAPI, _ := flagsSet.GetBool("http-api-metrics")
	apiToken, _ := flagsSet.GetString("http-api-token")
	apiHost, _ := flagsSet.GetString("http-api-host")
	apiPort, _ := flagsSet.GetString("http-api-port")

	if err := validateAPIHost(apiHost); err != nil {
		logrus.WithError(err).WithField("host", apiHost).Fatal("Invalid HTTP API host")
	}

	if apiPort == "" {
		apiPort = flags.DefaultHTTPAPIPort
	}

	cfg := RunConfig{
		Command:          c,
		Options:          options,
		Schedule:         scheduleSpec,
		RunOnce:          runOnce,
		EnableCheckAPI:   enableCheckAPI,
		EnableMetricsAPI: enableMetricsAPI,
		APIToken:         apiToken,
		APIHost:          apiHost,
		APIPort:          apiPort,
		Out:              os.Stdout,
	}

	if exitCode := runMain(context.Background(), cfg); exitCode != ExitOK {
		logrus.WithField("exit_code", exitCode).Debug("Exiting with non-zero status")
		os.Exit(exitCode)
	}
}

func validateAPIHost(host string) error {
	if host != "" && net.ParseIP(host) == nil {
		return fmt.Errorf("%w: %q", errInvalidAPIHost, host)
	}

	return nil
}

// runMain executes tagwatch in the mode selected by cfg and returns the process exit code.
//
// A single run exits with ExitStateNotPersisted when changes were detected but the
// new state could not be saved, and with ExitFailure when the run was aborted.
// Long-running modes return once ctx is cancelled or a termination signal arrives.
//
// Parameters:
//   - ctx: Parent context of all runs.
//   - cfg: Mode and settings.
//
// Returns:
//   - int: The exit code.
func runMain(ctx context.Context, cfg RunConfig) int {
	ctx, stop := signalContext(ctx)
	defer stop()

	checkLock := make(chan bool, 1)
	checkLock <- true

	startupMessage := func(sched time.Time) {
		if cfg.Command != nil {
			logging.WriteStartupMessage(cfg.Command, sched, cfg.Options, meta.Version)
		}
	}

	if cfg.RunOnce {
		if cfg.EnableCheckAPI {
			logrus.Warn("--http-api-check is ignored when --run-once is specified")
		}

		startupMessage(time.Time{})

		result, err := runCheck(ctx, cfg)
		if err == nil {
			metrics.Default().RegisterRun(metrics.NewMetric(result.Summary, result.StateErr))
		}

		return exitCode(result, err)
	}

	if cfg.EnableCheckAPI || cfg.EnableMetricsAPI {
		apiCfg := api.Config{
			Host:          cfg.APIHost,
			Port:          cfg.APIPort,
			Token:         cfg.APIToken,
			EnableCheck:   cfg.EnableCheckAPI,
			EnableMetrics: cfg.EnableMetricsAPI,
			Blocking:      cfg.Schedule == "",
		}

		runAPICheck := func(ctx context.Context) (*types.CheckResult, error) {
			return runCheck(ctx, cfg)
		}

		if err := api.SetupAndStartAPI(ctx, apiCfg, checkLock, runAPICheck, startupMessage); err != nil {
			return ExitFailure
		}

		if apiCfg.EnableCheck && apiCfg.Blocking {
			return ExitOK
		}
	}

	runScheduledCheck := func(ctx context.Context) *metrics.Metric {
		result, err := runCheck(ctx, cfg)
		if err != nil {
			return nil
		}

		return metrics.NewMetric(result.Summary, result.StateErr)
	}

	if err := scheduling.RunChecksOnSchedule(ctx, cfg.Schedule, checkLock, runScheduledCheck, startupMessage); err != nil {
		logrus.WithError(err).WithField("schedule", cfg.Schedule).Error("Scheduler failed")

		return ExitFailure
	}

	return ExitOK
}

// signalContext returns a copy of ctx cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// runCheck performs one check run with the settings of cfg.
func runCheck(ctx context.Context, cfg RunConfig) (*types.CheckResult, error) {
	params, err := actions.NewCheckParams(ctx, cfg.Options, cfg.Out)
	if err != nil {
		logrus.WithError(err).Error("Invalid configuration")

		return nil, err
	}

	if cfg.NewRegistry != nil {
		params.NewRegistry = cfg.NewRegistry
	}

	result, err := actions.Check(ctx, params)
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			logrus.WithError(err).Error("Invalid configuration")
		} else {
			logrus.WithError(err).Error("Check run aborted")
		}

		return nil, err
	}

	return result, nil
}

// exitCode maps the outcome of a single run to the process exit code.
func exitCode(result *types.CheckResult, err error) int {
	switch {
	case err != nil:
		return ExitFailure
	case result.StateErr != nil && result.Summary.Changes() > 0:
		return ExitStateNotPersisted
	case result.StateErr != nil:
		logrus.WithError(result.StateErr).Warn("State was not persisted, no changes were detected")

		return ExitOK
	default:
		return ExitOK
	}
}
