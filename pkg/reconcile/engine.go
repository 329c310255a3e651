package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/containerd/errdefs"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nicholas-fedor/tagwatch/pkg/selector"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// errNoRegistry indicates an engine was run without a registry client.
var errNoRegistry = errors.New("reconcile engine has no registry")

// Engine reconciles configured repositories against a registry.
type Engine struct {
	Registry    types.Registry     // Registry queried for tags and manifests.
	Mode        types.SelectorMode // Selector mode for repositories without patterns.
	Concurrency int                // Repositories processed in parallel; values below 2 mean sequential.
}

// Result holds the outcome of a reconciliation run.
type Result struct {
	State   types.GlobalState   // Complete new state, including repositories not configured this run.
	Events  []types.ChangeEvent // Change events grouped by repository in configuration order.
	Summary types.Summary       // Run counters.
}

// repositoryResult is the outcome for a single repository.
type repositoryResult struct {
	state   types.RepositoryState
	keep    bool // Whether state should be written for the repository.
	events  []types.ChangeEvent
	summary types.Summary
}

// Run reconciles every repository and returns the new global state and change events.
//
// Listing failures are isolated per repository: the repository's prior state is carried
// forward and processing continues. Only context cancellation aborts the run, in which case
// the returned error is the context's and no result is produced.
//
// Parameters:
//   - ctx: Context for cancellation.
//   - repos: Configured repositories in configuration order.
//   - prior: Previously persisted state; it is not modified.
//
// Returns:
//   - *Result: New state, events and counters.
//   - error: Non-nil if the run was cancelled or the engine is misconfigured.
func (e *Engine) Run(ctx context.Context, repos []types.RepositoryConfig, prior types.GlobalState) (*Result, error) {
	if e.Registry == nil {
		return nil, errNoRegistry
	}

	slots := make([]repositoryResult, len(repos))
	groups := groupByName(repos)

	if e.Concurrency > 1 && len(groups) > 1 {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(e.Concurrency)

		for _, indices := range groups {
			group.Go(func() error {
				return e.reconcileGroup(groupCtx, repos, indices, prior, slots)
			})
		}

		if err := group.Wait(); err != nil {
			return nil, err
		}
	} else {
		for _, indices := range groups {
			if err := e.reconcileGroup(ctx, repos, indices, prior, slots); err != nil {
				return nil, err
			}
		}
	}

	// A context cancelled after the last repository still aborts the run.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reconciliation aborted: %w", err)
	}

	return merge(repos, prior, slots), nil
}

// groupByName returns the configuration indices of each repository name, in order of first
// appearance.
func groupByName(repos []types.RepositoryConfig) [][]int {
	positions := make(map[string]int, len(repos))
	groups := make([][]int, 0, len(repos))

	for index, repo := range repos {
		position, ok := positions[repo.Name]
		if !ok {
			position = len(groups)
			positions[repo.Name] = position
			groups = append(groups, nil)
		}

		groups[position] = append(groups[position], index)
	}

	return groups
}

// reconcileGroup reconciles the entries of one repository name in configuration order.
// Each entry starts from the state left by the previous one, so a repeated entry only
// reports what the earlier ones have not.
func (e *Engine) reconcileGroup(
	ctx context.Context,
	repos []types.RepositoryConfig,
	indices []int,
	prior types.GlobalState,
	slots []repositoryResult,
) error {
	current := prior

	for _, index := range indices {
		result, err := e.reconcileRepository(ctx, repos[index], current)
		if err != nil {
			return err
		}

		slots[index] = result

		if result.keep {
			current = types.GlobalState{repos[index].Name: result.state}
		}
	}

	return nil
}

// merge combines per-repository results with the prior state in configuration order.
func merge(repos []types.RepositoryConfig, prior types.GlobalState, slots []repositoryResult) *Result {
	result := &Result{
		State:  make(types.GlobalState, len(prior)+len(repos)),
		Events: []types.ChangeEvent{},
	}

	for name, state := range prior {
		result.State[name] = state.Clone()
	}

	for index, repo := range repos {
		slot := slots[index]

		// Entries of a repeated name are chained, so the last kept one holds the final state.
		if slot.keep {
			result.State[repo.Name] = slot.state
		}

		result.Events = append(result.Events, slot.events...)
		result.Summary.Add(slot.summary)
	}

	return result
}

// reconcileRepository evaluates the selected tags of one repository.
//
// The returned error is non-nil only when the context is cancelled.
func (e *Engine) reconcileRepository(
	ctx context.Context,
	repo types.RepositoryConfig,
	prior types.GlobalState,
) (repositoryResult, error) {
	clog := logrus.WithField("repository", repo.Name)

	priorState, hadPrior := prior[repo.Name]
	if hadPrior {
		priorState = priorState.Clone()
	} else {
		priorState = types.NewRepositoryState()
	}

	result := repositoryResult{
		state:   priorState,
		keep:    hadPrior,
		summary: types.Summary{Repositories: 1},
	}

	if err := ctx.Err(); err != nil {
		return repositoryResult{}, err
	}

	available, err := e.Registry.ListTags(ctx, repo.Name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return repositoryResult{}, ctxErr
		}

		clog.WithError(err).Warn("Failed to list tags, keeping previous state")

		result.summary.RepositoriesFailed++

		return result, nil
	}

	if len(available) == 0 {
		clog.Warn("Registry returned no tags, keeping previous state")

		result.summary.RepositoriesFailed++

		return result, nil
	}

	selected, err := selector.Select(available, repo.Tags, e.Mode)
	if err != nil {
		clog.WithError(err).Error("Failed to select tags, keeping previous state")

		result.summary.RepositoriesFailed++

		return result, nil
	}

	clog.WithFields(logrus.Fields{
		"available": len(available),
		"selected":  len(selected),
	}).Debug("Selected tags")

	next := priorState.Clone()
	notFound := make(map[string]struct{}, len(priorState.NotFound))

	for _, tag := range priorState.NotFound {
		notFound[tag] = struct{}{}
	}

	for _, tag := range selected {
		if _, absent := notFound[tag]; absent {
			clog.WithField("tag", tag).Trace("Skipping tag previously confirmed absent")

			result.summary.TagsSkipped++

			continue
		}

		result.summary.TagsChecked++

		info, err := e.Registry.FetchTag(ctx, repo.Name, tag)

		switch {
		case err == nil:
			if event, changed := classify(repo.Name, tag, info, priorState); changed {
				result.events = append(result.events, event)

				if event.Kind == types.ChangeNew {
					result.summary.New++
				} else {
					result.summary.Updated++
				}

				clog.WithFields(logrus.Fields{
					"tag":    tag,
					"kind":   event.Kind,
					"digest": event.Digest,
				}).Info("Detected tag change")
			}

			next.Tags[tag] = info
			delete(notFound, tag)
		case errdefs.IsNotFound(err):
			result.summary.NotFound++

			tagLog := clog.WithField("tag", tag)
			if priorState.IsNotFound(tag) {
				tagLog.Debug("Tag still not found")
			} else {
				tagLog.Info("Tag not found, skipping it until it leaves the tag listing")
			}

			notFound[tag] = struct{}{}

			delete(next.Tags, tag)
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return repositoryResult{}, ctxErr
			}

			result.summary.Unknown++

			clog.WithError(err).WithField("tag", tag).Warn("Failed to fetch tag, retrying next run")

			// Neither known nor absent: the tag is a fresh candidate next run.
			delete(next.Tags, tag)
		}
	}

	next.NotFound = prune(clog, notFound, available)
	result.state = next
	result.keep = true

	return result, nil
}

// classify compares a fetched TagInfo with the prior state and builds the change event, if any.
func classify(repository, tag string, info types.TagInfo, prior types.RepositoryState) (types.ChangeEvent, bool) {
	previous, known := prior.Tags[tag]

	switch {
	case !known:
		return types.ChangeEvent{
			Kind:         types.ChangeNew,
			Repository:   repository,
			Tag:          tag,
			Digest:       info.Digest,
			LastModified: info.LastModified,
		}, true
	case !previous.SameAs(info):
		return types.ChangeEvent{
			Kind:           types.ChangeUpdated,
			Repository:     repository,
			Tag:            tag,
			Digest:         info.Digest,
			PreviousDigest: previous.Digest,
			LastModified:   info.LastModified,
		}, true
	default:
		return types.ChangeEvent{}, false
	}
}

// prune returns the sorted not-found tags that are still present in the listing.
func prune(clog *logrus.Entry, notFound map[string]struct{}, available []string) []string {
	listed := make(map[string]struct{}, len(available))
	for _, tag := range available {
		listed[tag] = struct{}{}
	}

	kept := make([]string, 0, len(notFound))

	for tag := range notFound {
		if _, ok := listed[tag]; ok {
			kept = append(kept, tag)
		} else {
			clog.WithField("tag", tag).Debug("Pruned not-found tag no longer listed")
		}
	}

	slices.Sort(kept)

	return kept
}
