// Package metrics provides tracking and exposure of tagwatch run metrics.
// It integrates with Prometheus to monitor check outcomes: repositories checked and failed,
// tags queried and the changes detected.
//
// Key components:
//   - Metrics: Handles metric queuing and updates.
//   - NewMetric: Creates a metric from a run summary.
//
// Usage example:
//
//	m := metrics.Default()
//	m.RegisterRun(metrics.NewMetric(result.Summary, result.StateErr))
//	if !m.QueueIsEmpty() {
//	    logrus.Info("Metrics queued")
//	}
//
// A nil metric records a skipped run.
package metrics
