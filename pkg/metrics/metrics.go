package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// channelBufferSize sets the metrics channel capacity.
const channelBufferSize = 10

// errAlreadyRegistered indicates the collectors exist in the registry already.
var errAlreadyRegistered = errors.New("metrics already registered")

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// Metric holds data points from a check run.
type Metric struct {
	Repositories       int  // Repositories processed.
	RepositoriesFailed int  // Repositories whose tag listing failed.
	TagsChecked        int  // Manifest lookups issued.
	New                int  // NEW events.
	Updated            int  // UPDATED events.
	NotFound           int  // Lookups answered with not-found.
	Unknown            int  // Lookups that failed otherwise.
	StateSaveFailed    bool // Whether the new state could not be persisted.
}

// Metrics handles processing and exposing run metrics.
type Metrics struct {
	channel            chan *Metric       // Channel for queuing metrics.
	repositories       prometheus.Gauge   // Gauge for repositories processed.
	repositoriesFailed prometheus.Gauge   // Gauge for repositories that could not be listed.
	tagsChecked        prometheus.Gauge   // Gauge for manifest lookups.
	newTags            prometheus.Gauge   // Gauge for NEW events.
	updatedTags        prometheus.Gauge   // Gauge for UPDATED events.
	notFound           prometheus.Gauge   // Gauge for not-found answers.
	unknown            prometheus.Gauge   // Gauge for failed lookups.
	changes            prometheus.Counter // Counter for total change events.
	saveFailures       prometheus.Counter // Counter for state save failures.
	total              prometheus.Counter // Counter for total runs.
	skipped            prometheus.Counter // Counter for skipped runs.
	dropped            prometheus.Counter // Counter for dropped metrics.
	stopCh             chan struct{}      // Channel for shutdown signaling.
	shutdownOnce       sync.Once          // Ensures shutdown is called only once.
	//nolint:containedctx
	ctx    context.Context    // Context for cancellation.
	cancel context.CancelFunc // Cancel function for the context.
}

// NewWithRegistry creates a new Metrics handler with a custom Prometheus registry.
//
// Parameters:
//   - registry: Prometheus registerer to use for metric registration.
//
// Returns:
//   - (*Metrics, error): Metrics handler with Prometheus metrics and goroutine, or an error if registration fails.
func NewWithRegistry(registry prometheus.Registerer) (*Metrics, error) {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &Metrics{
		repositories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_repositories_checked",
			Help: "Number of repositories processed during the last run",
		}),
		repositoriesFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_repositories_failed",
			Help: "Number of repositories whose tags could not be listed during the last run",
		}),
		tagsChecked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_tags_checked",
			Help: "Number of tag manifests queried during the last run",
		}),
		newTags: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_tags_new",
			Help: "Number of new tags detected during the last run",
		}),
		updatedTags: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_tags_updated",
			Help: "Number of tags with a changed digest detected during the last run",
		}),
		notFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_tags_not_found",
			Help: "Number of tags confirmed absent during the last run",
		}),
		unknown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagwatch_tags_unknown",
			Help: "Number of tag lookups that failed during the last run",
		}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_changes_total",
			Help: "Total number of change events since tagwatch started",
		}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_state_save_failures_total",
			Help: "Number of runs whose state could not be persisted",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_runs_total",
			Help: "Number of runs since tagwatch started",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_runs_skipped_total",
			Help: "Number of skipped runs since tagwatch started",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_metrics_dropped_total",
			Help: "Number of metrics dropped due to full channel",
		}),
		channel: make(chan *Metric, channelBufferSize),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	collectors := []prometheus.Collector{
		handler.repositories,
		handler.repositoriesFailed,
		handler.tagsChecked,
		handler.newTags,
		handler.updatedTags,
		handler.notFound,
		handler.unknown,
		handler.changes,
		handler.saveFailures,
		handler.total,
		handler.skipped,
		handler.dropped,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			cancel()

			var alreadyRegistered prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegistered) {
				return nil, fmt.Errorf("%w: %w", errAlreadyRegistered, err)
			}

			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	go handler.HandleUpdate()

	return handler, nil
}

// NewMetric creates a Metric from a run summary.
//
// Parameters:
//   - summary: Counters of the run.
//   - stateErr: Persistence error of the run, nil if the state was saved.
//
// Returns:
//   - *Metric: New metric instance.
func NewMetric(summary types.Summary, stateErr error) *Metric {
	return &Metric{
		Repositories:       summary.Repositories,
		RepositoriesFailed: summary.RepositoriesFailed,
		TagsChecked:        summary.TagsChecked,
		New:                summary.New,
		Updated:            summary.Updated,
		NotFound:           summary.NotFound,
		Unknown:            summary.Unknown,
		StateSaveFailed:    stateErr != nil,
	}
}

// QueueIsEmpty checks if the metrics channel is empty.
func (m *Metrics) QueueIsEmpty() bool {
	return len(m.channel) == 0
}

// Register attempts to enqueue a metric for processing.
// If the channel is full, the metric is dropped and the dropped counter is incremented.
func (m *Metrics) Register(metric *Metric) {
	select {
	case m.channel <- metric:
	default:
		m.dropped.Inc()
	}
}

// RegisterRun enqueues a run metric. A nil metric records a skipped run.
func (m *Metrics) RegisterRun(metric *Metric) {
	m.Register(metric)
}

// Default initializes or returns the singleton Metrics handler registered against the
// default Prometheus registry. It panics on registration failure.
func Default() *Metrics {
	metricsOnce.Do(func() {
		if metrics != nil {
			return
		}

		var err error

		metrics, err = NewWithRegistry(prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
	})

	return metrics
}

// Shutdown gracefully stops the metrics processing goroutine.
// This method is idempotent and can be called multiple times safely.
func (m *Metrics) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		m.cancel()
	})
}

// HandleUpdate processes metrics from the channel until shutdown.
func (m *Metrics) HandleUpdate() {
	for {
		select {
		case change, ok := <-m.channel:
			if !ok {
				return
			}

			m.apply(change)
		case <-m.stopCh:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// apply updates the Prometheus collectors with one metric.
// The run counter is incremented last so readers observing it see the complete update.
func (m *Metrics) apply(change *Metric) {
	if change == nil {
		m.skipped.Inc()
		m.repositories.Set(0)
		m.repositoriesFailed.Set(0)
		m.tagsChecked.Set(0)
		m.newTags.Set(0)
		m.updatedTags.Set(0)
		m.notFound.Set(0)
		m.unknown.Set(0)
		m.total.Inc()

		return
	}

	m.repositories.Set(float64(change.Repositories))
	m.repositoriesFailed.Set(float64(change.RepositoriesFailed))
	m.tagsChecked.Set(float64(change.TagsChecked))
	m.newTags.Set(float64(change.New))
	m.updatedTags.Set(float64(change.Updated))
	m.notFound.Set(float64(change.NotFound))
	m.unknown.Set(float64(change.Unknown))
	m.changes.Add(float64(change.New + change.Updated))

	if change.StateSaveFailed {
		m.saveFailures.Inc()
	}

	m.total.Inc()
}
