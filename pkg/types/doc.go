// Package types defines core interfaces and structs for tagwatch.
// It provides abstractions for repositories, tag state, change events and the registry and state collaborators.
//
// Key components:
//   - RepositoryConfig: A configured repository and its optional tag patterns.
//   - TagInfo: The observable identity (digest) of a tag at a point in time.
//   - RepositoryState / GlobalState: The persisted reconciliation state.
//   - ChangeEvent: A NEW or UPDATED tag detected during a run.
//   - Registry: Interface for listing tags and fetching manifest metadata.
//   - StateStore: Interface for loading and saving the global state.
//   - CheckParams / CheckResult: Inputs and outcome of a single check run.
//
// Usage example:
//
//	params := types.CheckParams{ConfigPath: "config.json", Store: store}
//	result, err := actions.Check(ctx, params)
//	if err != nil {
//	    logrus.WithError(err).Error("Check failed")
//	}
//	logrus.Info(result.Status())
//
// The package integrates with the registry, reconcile, state and report packages.
package types
