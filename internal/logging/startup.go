// Package logging writes the startup summary of a long-running tagwatch process.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/tagwatch/internal/flags"
	"github.com/nicholas-fedor/tagwatch/internal/util"
	"github.com/nicholas-fedor/tagwatch/pkg/state"
)

// scheduleLayout formats the time of the next scheduled run.
const scheduleLayout = "2006-01-02 15:04:05 -0700 MST"

// WriteStartupMessage logs the version, the configured sources and the run mode.
//
// Parameters:
//   - c: Command providing the scheduling and HTTP API flags.
//   - sched: Time of the first scheduled run, or zero if none is scheduled.
//   - opts: Settings of the check runs.
//   - version: Version string of the binary.
func WriteStartupMessage(c *cobra.Command, sched time.Time, opts flags.Options, version string) {
	log := logrus.NewEntry(logrus.StandardLogger())

	log.Info("tagwatch ", version)

	registryURL := opts.RegistryURL
	if registryURL == "" {
		registryURL = "(from configuration)"
	}

	log.WithFields(logrus.Fields{
		"config":        opts.ConfigPath,
		"registry":      registryURL,
		"state":         StateLocation(opts.State),
		"selector_mode": opts.SelectorMode,
		"concurrency":   opts.Concurrency,
	}).Info("Watching repositories")

	LogScheduleInfo(log, c, sched)

	if enabled, _ := c.PersistentFlags().GetBool("http-api-check"); enabled {
		host, _ := c.PersistentFlags().GetString("http-api-host")
		port, _ := c.PersistentFlags().GetString("http-api-port")

		log.Info("The HTTP API is enabled at " + listenAddr(host, port) + ".")
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		log.Warn("Trace level enabled: log will include registry responses")
	}
}

// StateLocation describes where state is persisted, e.g. "s3://bucket/key".
func StateLocation(cfg state.Config) string {
	if cfg.Backend == state.BackendS3 {
		key := cfg.Key
		if key == "" {
			key = state.DefaultDocumentName
		}

		return "s3://" + cfg.Bucket + "/" + key
	}

	file := cfg.File
	if file == "" {
		file = state.DefaultDocumentName
	}

	return "file://" + file
}

// LogScheduleInfo logs when and how check runs will happen.
//
// Parameters:
//   - log: Entry to write to.
//   - c: Command providing the run-once and HTTP API flags.
//   - sched: Time of the first scheduled run, or zero if none is scheduled.
func LogScheduleInfo(log *logrus.Entry, c *cobra.Command, sched time.Time) {
	runOnce, _ := c.PersistentFlags().GetBool("run-once")
	checkAPI, _ := c.PersistentFlags().GetBool("http-api-check")

	switch {
	case !sched.IsZero():
		log.Info("Scheduling first run: " + sched.Format(scheduleLayout))
		log.Info("Note that the first check will be performed in " + util.FormatDuration(time.Until(sched)))
	case runOnce:
		log.Info("Running a one time check.")
	case checkAPI:
		log.Info("Checks via HTTP API enabled. Periodic checks are not enabled.")
	default:
		log.Info("No periodic checks are scheduled.")
	}
}

func listenAddr(host, port string) string {
	if port == "" {
		port = flags.DefaultHTTPAPIPort
	}

	return host + ":" + port
}
