package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/config"
	"github.com/nicholas-fedor/tagwatch/pkg/reconcile"
	"github.com/nicholas-fedor/tagwatch/pkg/registry"
	"github.com/nicholas-fedor/tagwatch/pkg/selector"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Check performs a single check run.
//
// The repositories document is loaded and validated first; a configuration error aborts the
// run before any registry or state access. A failure to load the prior state or a cancelled
// context also aborts the run without writing state. A failure to save the new state does not
// abort the run: it is logged and recorded in the result so the report still reaches the user.
//
// Parameters:
//   - ctx: Context for cancellation of registry and state operations.
//   - params: Run configuration and collaborators.
//
// Returns:
//   - *types.CheckResult: Events, counters and persistence outcome of the run.
//   - error: Non-nil if the run was aborted; a *config.Error for configuration problems.
func Check(ctx context.Context, params types.CheckParams) (*types.CheckResult, error) {
	runID := uuid.NewString()
	started := time.Now()
	clog := logrus.WithField("run_id", runID)

	clog.WithField("config", params.ConfigPath).Debug("Starting check")

	mode, err := selector.ParseMode(string(params.SelectorMode))
	if err != nil {
		return nil, &config.Error{Err: err}
	}

	doc, err := config.Load(params.ConfigPath)
	if err != nil {
		clog.WithError(err).Debug("Failed to load configuration")

		return nil, err
	}

	if params.Store == nil {
		return nil, errNoStateStore
	}

	newRegistry := params.NewRegistry
	if newRegistry == nil {
		newRegistry = registry.NewFactory()
	}

	registryURL := params.RegistryURL
	if registryURL == "" {
		registryURL = doc.Registry
	}

	client, err := newRegistry(registryURL, params.Timeout)
	if err != nil {
		return nil, &config.Error{Err: fmt.Errorf("%w: %w", errRegistryClient, err)}
	}

	prior, err := params.Store.Load(ctx)
	if err != nil {
		clog.WithError(err).WithField("store", params.Store.String()).Error("Failed to load prior state")

		return nil, fmt.Errorf("%w: %w", errLoadState, err)
	}

	engine := &reconcile.Engine{
		Registry:    client,
		Mode:        mode,
		Concurrency: params.Concurrency,
	}

	reconciled, err := engine.Run(ctx, doc.Repositories, prior)
	if err != nil {
		clog.WithError(err).Warn("Check aborted, state left untouched")

		return nil, fmt.Errorf("%w: %w", errReconcile, err)
	}

	result := &types.CheckResult{
		RunID:   runID,
		Started: started,
		Events:  reconciled.Events,
		Summary: reconciled.Summary,
	}

	if err := params.Store.Save(ctx, reconciled.State); err != nil {
		clog.WithError(err).WithFields(logrus.Fields{
			"store":   params.Store.String(),
			"changes": result.Summary.Changes(),
		}).Error("Failed to persist state, changes will be reported again on the next run")

		result.StateErr = err
	}

	if params.Sink != nil {
		if err := params.Sink.Write(result.Report()); err != nil {
			clog.WithError(err).Warn("Failed to write report")
		}
	}

	clog.WithFields(logrus.Fields{
		"repositories": result.Summary.Repositories,
		"failed":       result.Summary.RepositoriesFailed,
		"checked":      result.Summary.TagsChecked,
		"skipped":      result.Summary.TagsSkipped,
		"new":          result.Summary.New,
		"updated":      result.Summary.Updated,
		"not_found":    result.Summary.NotFound,
		"unknown":      result.Summary.Unknown,
		"duration":     time.Since(started).Round(time.Millisecond),
	}).Info("Check completed")

	return result, nil
}
