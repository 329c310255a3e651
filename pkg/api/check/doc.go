// Package check provides the HTTP handler that triggers a check run.
//
// Runs never overlap: the handler shares a single-slot lock channel with the
// scheduler and answers 429 Too Many Requests while another run is active.
//
// Usage example:
//
//	handler := check.New(runCheck, lock)
//	server.RegisterFunc(handler.Path, handler.Handle)
package check
