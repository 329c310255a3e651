package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicholas-fedor/tagwatch/pkg/config"
	"github.com/nicholas-fedor/tagwatch/pkg/registry"
	"github.com/nicholas-fedor/tagwatch/pkg/report"
	"github.com/nicholas-fedor/tagwatch/pkg/state"
)

// DefaultHTTPAPIPort is the port the HTTP API listens on unless configured otherwise.
const DefaultHTTPAPIPort = "8080"

// defaultConcurrency processes repositories one at a time.
const defaultConcurrency = 1

var (
	// errInvalidLogFormat indicates an invalid log format was specified.
	errInvalidLogFormat = errors.New("invalid log format specified")
	// errInvalidLogLevel indicates an invalid log level was specified.
	errInvalidLogLevel = errors.New("invalid log level specified")
	// errReadFileFailed indicates a failure to read a secret file.
	errReadFileFailed = errors.New("failed to read secret file")
	// errSetFlagFailed indicates a flag could not be read or set.
	errSetFlagFailed = errors.New("failed to set flag value")
	// errInvalidFlagName indicates a lookup of an undefined flag.
	errInvalidFlagName = errors.New("invalid flag name provided")
	// errScheduleAndInterval indicates both periodic modes were requested.
	errScheduleAndInterval = errors.New("only schedule or interval can be defined, not both")
	// errInvalidInterval indicates a negative interval.
	errInvalidInterval = errors.New("interval must not be negative")
	// errInvalidConcurrency indicates a concurrency below one.
	errInvalidConcurrency = errors.New("concurrency must be at least 1")
	// errInvalidTimeout indicates a non-positive request timeout.
	errInvalidTimeout = errors.New("timeout must be positive")
)

// envBinding maps a configuration key to the environment variables it is read
// from, in order of precedence.
type envBinding struct {
	key  string
	envs []string
}

// envBindings lists every key bound to the environment. The un-prefixed names
// are kept for deployments configured through the plain variables.
var envBindings = []envBinding{
	{"config", []string{"TAGWATCH_CONFIG", "CONFIG_PATH"}},
	{"state-backend", []string{"TAGWATCH_STATE_BACKEND", "STATE_BACKEND"}},
	{"state-file", []string{"TAGWATCH_STATE_FILE", "STATE_FILE"}},
	{"s3-bucket", []string{"TAGWATCH_S3_BUCKET", "S3_BUCKET"}},
	{"s3-key", []string{"TAGWATCH_S3_KEY", "STATE_KEY"}},
	{"s3-region", []string{"TAGWATCH_S3_REGION", "AWS_REGION"}},
	{"s3-endpoint", []string{"TAGWATCH_S3_ENDPOINT"}},
	{"registry", []string{"TAGWATCH_REGISTRY"}},
	{"selector-mode", []string{"TAGWATCH_SELECTOR_MODE"}},
	{"timeout", []string{"TAGWATCH_TIMEOUT"}},
	{"concurrency", []string{"TAGWATCH_CONCURRENCY"}},
	{"report-format", []string{"TAGWATCH_REPORT_FORMAT"}},
	{"log-level", []string{"TAGWATCH_LOG_LEVEL"}},
	{"log-format", []string{"TAGWATCH_LOG_FORMAT"}},
	{"debug", []string{"TAGWATCH_DEBUG"}},
	{"trace", []string{"TAGWATCH_TRACE"}},
	{"no-color", []string{"TAGWATCH_NO_COLOR", "NO_COLOR"}},
	{"run-once", []string{"TAGWATCH_RUN_ONCE"}},
	{"schedule", []string{"TAGWATCH_SCHEDULE"}},
	{"interval", []string{"TAGWATCH_POLL_INTERVAL"}},
	{"http-api-check", []string{"TAGWATCH_HTTP_API_CHECK"}},
	{"http-api-metrics", []string{"TAGWATCH_HTTP_API_METRICS"}},
	{"http-api-token", []string{"TAGWATCH_HTTP_API_TOKEN"}},
	{"http-api-host", []string{"TAGWATCH_HTTP_API_HOST"}},
	{"http-api-port", []string{"TAGWATCH_HTTP_API_PORT"}},
}

// Options carries the settings of a check run.
type Options struct {
	ConfigPath   string
	State        state.Config
	RegistryURL  string
	SelectorMode string
	Timeout      time.Duration
	Concurrency  int
	ReportFormat string
}

// SetDefaults binds configuration keys to their environment variables and
// registers default values.
func SetDefaults() {
	for _, binding := range envBindings {
		args := append([]string{binding.key}, binding.envs...)
		if err := viper.BindEnv(args...); err != nil {
			logrus.WithError(err).WithField("key", binding.key).Debug("Failed to bind environment")
		}
	}

	viper.SetDefault("config", config.DefaultPath)
	viper.SetDefault("state-backend", state.BackendLocal)
	viper.SetDefault("state-file", state.DefaultDocumentName)
	viper.SetDefault("s3-key", state.DefaultDocumentName)
	viper.SetDefault("selector-mode", "all")
	viper.SetDefault("timeout", registry.DefaultTimeout)
	viper.SetDefault("concurrency", defaultConcurrency)
	viper.SetDefault("report-format", report.FormatText)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "auto")
	viper.SetDefault("http-api-port", DefaultHTTPAPIPort)
}

// RegisterCheckFlags adds the flags shaping a check run to the root command.
func RegisterCheckFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"config",
		"c",
		envString("config"),
		"Path of the repository configuration document")

	flags.StringP(
		"registry",
		"",
		envString("registry"),
		"Registry base URL, overriding the configuration document")

	flags.StringP(
		"selector-mode",
		"",
		envString("selector-mode"),
		"Tags checked for repositories without patterns. Possible values: all, latest")

	flags.DurationP(
		"timeout",
		"",
		envDuration("timeout"),
		"Timeout of each registry request")

	flags.IntP(
		"concurrency",
		"",
		envInt("concurrency"),
		"Number of repositories checked in parallel")

	flags.StringP(
		"report-format",
		"f",
		envString("report-format"),
		"Report format written to stdout. Possible values: text, table, json")
}

// RegisterStateFlags adds the state backend flags to the root command.
func RegisterStateFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"state-backend",
		"",
		envString("state-backend"),
		"Where observed state is persisted. Possible values: local, s3")

	flags.StringP(
		"state-file",
		"",
		envString("state-file"),
		"Path of the state file for the local backend")

	flags.StringP(
		"s3-bucket",
		"",
		envString("s3-bucket"),
		"Bucket holding the state object for the s3 backend")

	flags.StringP(
		"s3-key",
		"",
		envString("s3-key"),
		"Key of the state object for the s3 backend")

	flags.StringP(
		"s3-region",
		"",
		envString("s3-region"),
		"AWS region of the state bucket")

	flags.StringP(
		"s3-endpoint",
		"",
		envString("s3-endpoint"),
		"Endpoint of an S3-compatible object store")
}

// RegisterSystemFlags adds flags that modify the program flow to the root command.
func RegisterSystemFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.BoolP(
		"run-once",
		"R",
		envBool("run-once"),
		"Run once now and exit")

	flags.StringP(
		"schedule",
		"s",
		envString("schedule"),
		"The cron expression which defines when to check")

	flags.IntP(
		"interval",
		"i",
		envInt("interval"),
		"Poll interval (in seconds)")

	flags.StringP(
		"log-level",
		"",
		envString("log-level"),
		"The maximum log level that will be written to STDERR. Possible values: panic, fatal, error, warn, info, debug or trace")

	flags.StringP(
		"log-format",
		"l",
		envString("log-format"),
		"Sets what logging format to use for console output. Possible values: Auto, LogFmt, Pretty, JSON")

	flags.BoolP(
		"debug",
		"d",
		envBool("debug"),
		"Enable debug mode with verbose logging")

	flags.BoolP(
		"trace",
		"",
		envBool("trace"),
		"Enable trace mode with very verbose logging")

	flags.BoolP(
		"no-color",
		"",
		envBool("no-color"),
		"Disable ANSI color escape codes in log output")

	flags.BoolP(
		"http-api-check",
		"",
		envBool("http-api-check"),
		"Runs tagwatch in HTTP API mode, so that checks are triggered by a request instead of a schedule")

	flags.BoolP(
		"http-api-metrics",
		"",
		envBool("http-api-metrics"),
		"Runs tagwatch with the Prometheus metrics API enabled")

	flags.StringP(
		"http-api-token",
		"",
		envString("http-api-token"),
		"Sets an authentication token to HTTP API requests. Can also reference a file, in which case the contents of the file are used.")

	flags.StringP(
		"http-api-host",
		"",
		envString("http-api-host"),
		"Host to bind the HTTP API to")

	flags.StringP(
		"http-api-port",
		"",
		envString("http-api-port"),
		"Port for the HTTP API server")
}

func envString(key string) string {
	return viper.GetString(key)
}

func envInt(key string) int {
	return viper.GetInt(key)
}

func envBool(key string) bool {
	return viper.GetBool(key)
}

func envDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// ReadOptions retrieves the check run settings from parsed flags.
//
// Parameters:
//   - flags: Flag set with the check and state flags registered.
//
// Returns:
//   - Options: Settings of the run.
//   - error: Non-nil if a flag is missing or holds an invalid value.
func ReadOptions(flags *pflag.FlagSet) (Options, error) {
	var opts Options

	stringFlags := []struct {
		name   string
		target *string
	}{
		{"config", &opts.ConfigPath},
		{"registry", &opts.RegistryURL},
		{"selector-mode", &opts.SelectorMode},
		{"report-format", &opts.ReportFormat},
		{"state-backend", &opts.State.Backend},
		{"state-file", &opts.State.File},
		{"s3-bucket", &opts.State.Bucket},
		{"s3-key", &opts.State.Key},
		{"s3-region", &opts.State.Region},
		{"s3-endpoint", &opts.State.Endpoint},
	}

	for _, entry := range stringFlags {
		value, err := flags.GetString(entry.name)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}

		*entry.target = value
	}

	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	opts.Timeout = timeout
	opts.Concurrency = concurrency

	return opts, opts.validate()
}

// EnvOptions retrieves the check run settings from the environment and
// defaults alone. It is used where no command line is parsed.
func EnvOptions() (Options, error) {
	opts := Options{
		ConfigPath:   envString("config"),
		RegistryURL:  envString("registry"),
		SelectorMode: envString("selector-mode"),
		ReportFormat: envString("report-format"),
		Timeout:      envDuration("timeout"),
		Concurrency:  envInt("concurrency"),
		State: state.Config{
			Backend:  envString("state-backend"),
			File:     envString("state-file"),
			Bucket:   envString("s3-bucket"),
			Key:      envString("s3-key"),
			Region:   envString("s3-region"),
			Endpoint: envString("s3-endpoint"),
		},
	}

	return opts, opts.validate()
}

func (o Options) validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("%w: %d", errInvalidConcurrency, o.Concurrency)
	}

	if o.Timeout <= 0 {
		return fmt.Errorf("%w: %s", errInvalidTimeout, o.Timeout)
	}

	return nil
}

// GetSecretsFromFiles replaces secret flag values that reference files with
// the file contents.
func GetSecretsFromFiles(flags *pflag.FlagSet) error {
	secrets := []string{
		"http-api-token",
	}

	for _, secret := range secrets {
		if err := getSecretFromFile(flags, secret); err != nil {
			return fmt.Errorf("failed to get secret from flag %s: %w", secret, err)
		}
	}

	return nil
}

// getSecretFromFile updates a flag's value with file contents if it references a file.
func getSecretFromFile(flags *pflag.FlagSet, secret string) error {
	flag := flags.Lookup(secret)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, secret)
	}

	value := flag.Value.String()
	if value == "" || !isFilePath(value) {
		return nil
	}

	content, err := os.ReadFile(value)
	if err != nil {
		return fmt.Errorf("%w: %w", errReadFileFailed, err)
	}

	if err := flags.Set(secret, strings.TrimSpace(string(content))); err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	return nil
}

// isFilePath determines if a string likely represents an existing file.
// Strings with a colon past the drive-letter position (URLs) are never files.
func isFilePath(path string) bool {
	firstColon := strings.IndexRune(path, ':')
	if firstColon != 1 && firstColon != -1 {
		return false
	}

	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}

// ProcessFlagAliases synchronizes flag values based on helper flags.
//
// An interval is turned into an "@every" schedule, --debug and --trace raise
// the log level, and run-once becomes the default mode when no schedule,
// interval or check API is configured.
//
// Parameters:
//   - flags: Flag set with the system flags registered.
//
// Returns:
//   - error: Non-nil on conflicting or invalid scheduling flags.
func ProcessFlagAliases(flags *pflag.FlagSet) error {
	schedule, err := flags.GetString("schedule")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	interval, err := flags.GetInt("interval")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if interval < 0 {
		return fmt.Errorf("%w: %d", errInvalidInterval, interval)
	}

	if interval > 0 && schedule != "" {
		return errScheduleAndInterval
	}

	if interval > 0 {
		schedule = fmt.Sprintf("@every %ds", interval)
		if err := flags.Set("schedule", schedule); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if schedule == "" && !flagIsEnabled(flags, "http-api-check") && !flags.Changed("run-once") {
		if err := flags.Set("run-once", "true"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if flagIsEnabled(flags, "debug") {
		if err := flags.Set("log-level", "debug"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if flagIsEnabled(flags, "trace") {
		if err := flags.Set("log-level", "trace"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// SetupLogging configures the global logger based on log-related flags.
func SetupLogging(flags *pflag.FlagSet) error {
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err := configureLogFormat(logFormat, noColor); err != nil {
		return err
	}

	rawLogLevel, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	logLevel, err := logrus.ParseLevel(rawLogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	logrus.SetLevel(logLevel)

	return nil
}

// configureLogFormat sets the logrus formatter based on the specified format and color preference.
func configureLogFormat(logFormat string, noColor bool) error {
	switch strings.ToLower(logFormat) {
	case "", "auto":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:             noColor,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logfmt":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case "pretty":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			FullTimestamp: false,
		})
	default:
		return fmt.Errorf("%w: %s", errInvalidLogFormat, logFormat)
	}

	return nil
}

// flagIsEnabled reports whether a boolean flag is set; undefined flags count as disabled.
func flagIsEnabled(flags *pflag.FlagSet, name string) bool {
	value, err := flags.GetBool(name)
	if err != nil {
		logrus.WithField("flag", name).Debug("Flag is not defined")

		return false
	}

	return value
}
