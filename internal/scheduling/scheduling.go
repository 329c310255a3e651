// Package scheduling runs check runs periodically according to a cron
// specification and shuts the scheduler down gracefully.
package scheduling

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/metrics"
)

// checkWaitTimeout bounds how long shutdown waits for an active run.
const checkWaitTimeout = 60 * time.Second

// WaitForRunningCheck blocks until an active run releases the lock.
//
// Parameters:
//   - ctx: Context allowing the wait to be abandoned.
//   - lock: Single-slot channel held by the active run.
func WaitForRunningCheck(ctx context.Context, lock chan bool) {
	if len(lock) != 0 {
		logrus.Debug("No check running, lock available.")

		return
	}

	select {
	case <-lock:
		logrus.Debug("Lock acquired, check finished.")
	case <-time.After(checkWaitTimeout):
		logrus.Warn("Timeout waiting for running check to finish, proceeding with shutdown.")
	case <-ctx.Done():
		logrus.Warn("Context cancelled while waiting for running check.")
	}
}

// RunChecksOnSchedule executes check runs according to the cron specification
// until ctx is cancelled or SIGINT/SIGTERM is received.
//
// A scheduled run that finds another run holding the lock is skipped and
// recorded as such in the metrics. An empty specification schedules nothing,
// leaving runs to the HTTP API.
//
// Parameters:
//   - ctx: Context controlling the scheduler's lifecycle.
//   - scheduleSpec: Cron specification, e.g. "@every 300s" or "0 0 * * * *".
//   - lock: Single-slot lock shared with the HTTP API, or nil to create one.
//   - runCheck: Function performing one run and returning its metric.
//   - writeStartupMessage: Called with the time of the first scheduled run (zero if none).
//
// Returns:
//   - error: Non-nil if the specification cannot be parsed.
func RunChecksOnSchedule(
	ctx context.Context,
	scheduleSpec string,
	lock chan bool,
	runCheck func(context.Context) *metrics.Metric,
	writeStartupMessage func(time.Time),
) error {
	if lock == nil {
		lock = make(chan bool, 1)
		lock <- true
	}

	scheduler := cron.New()

	checkFunc := func() {
		select {
		case v := <-lock:
			defer func() { lock <- v }()

			metrics.Default().RegisterRun(runCheck(ctx))
		default:
			metrics.Default().RegisterRun(nil)
			logrus.Debug("Skipped check, another run is already in progress.")
		}

		if entries := scheduler.Entries(); len(entries) > 0 {
			logrus.WithField("next", entries[0].Next).Debug("Scheduled next run")
		}
	}

	if scheduleSpec != "" {
		if err := scheduler.AddFunc(scheduleSpec, checkFunc); err != nil {
			return fmt.Errorf("failed to schedule checks: %w", err)
		}
	}

	var nextRun time.Time
	if entries := scheduler.Entries(); len(entries) > 0 {
		nextRun = entries[0].Schedule.Next(time.Now())
	}

	if writeStartupMessage != nil {
		writeStartupMessage(nextRun)
	}

	scheduler.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-ctx.Done():
		logrus.Debug("Context canceled, stopping scheduler...")
	case <-interrupt:
		logrus.Debug("Received interrupt signal, stopping scheduler...")
	}

	scheduler.Stop()
	logrus.Debug("Waiting for running check to be finished...")

	WaitForRunningCheck(context.WithoutCancel(ctx), lock)

	logrus.Debug("Scheduler stopped.")

	return nil
}
