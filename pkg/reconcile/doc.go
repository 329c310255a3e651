// Package reconcile implements the tag-reconciliation engine of tagwatch.
// It combines a registry's tag listing with the previously persisted state and decides
// which tags to query, how to classify each answer and what the new state is.
//
// Key components:
//   - Engine: Runs reconciliation over the configured repositories.
//   - Result: New global state, change events and run counters.
//
// Usage example:
//
//	engine := &reconcile.Engine{Registry: client, Mode: types.SelectAll}
//	result, err := engine.Run(ctx, repos, prior)
//	if err != nil {
//	    return err // cancelled; nothing must be persisted
//	}
//	for _, event := range result.Events {
//	    fmt.Println(event.Kind, event.Repository, event.Tag)
//	}
//
// Tags confirmed absent are recorded per repository and skipped on later runs until they
// leave the registry's listing. Failures other than a confirmed absence leave no trace in
// the state, so the tag is queried again next run.
package reconcile
