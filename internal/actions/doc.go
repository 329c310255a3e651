// Package actions provides the core run logic of tagwatch.
// It performs one complete check: configuration, prior state, reconciliation, persistence
// and reporting.
//
// Key components:
//   - Check: Runs a single check and returns its result.
//
// Usage example:
//
//	result, err := actions.Check(ctx, types.CheckParams{
//	    ConfigPath: "config.json",
//	    Store:      store,
//	    Sink:       sink,
//	})
//	if err != nil {
//	    logrus.WithError(err).Error("Check aborted")
//	}
//	logrus.Info(result.Status())
//
// The package integrates with the config, registry, reconcile and state packages,
// using logrus for logging operations and errors.
package actions
