// Package state persists the global reconciliation state of tagwatch.
// It provides a local file backend and an S3 object backend behind the types.StateStore
// interface, selected at startup from a Config value.
//
// Key components:
//   - New: Creates the store selected by Config.Backend.
//   - FileStore: Reads and atomically replaces a JSON file.
//   - S3Store: Reads and replaces a JSON object in an S3 bucket.
//   - Decode / Encode: The JSON document codec shared by both backends.
//
// Usage example:
//
//	store, err := state.New(ctx, state.Config{Backend: state.BackendLocal, File: "state.json"})
//	if err != nil {
//	    logrus.WithError(err).Fatal("Invalid state configuration")
//	}
//	prior, err := store.Load(ctx)
//
// An absent document loads as an empty state. Saves never leave a partially written document.
package state
