package actions

import "errors"

// Errors for check runs.
var (
	// errNoStateStore indicates a check was started without a state store.
	errNoStateStore = errors.New("no state store configured")
	// errRegistryClient indicates the registry client could not be created.
	errRegistryClient = errors.New("failed to create registry client")
	// errLoadState indicates the prior state could not be loaded and the run was aborted.
	errLoadState = errors.New("failed to load prior state")
	// errReconcile indicates the reconciliation was aborted.
	errReconcile = errors.New("reconciliation aborted")
)
