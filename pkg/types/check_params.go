package types

import (
	"time"
)

// SelectorMode decides which tags are evaluated for repositories without tag patterns.
type SelectorMode string

const (
	// SelectAll evaluates every available tag.
	SelectAll SelectorMode = "all"
	// SelectLatest evaluates only the tag sorting highest in case-sensitive lexical order.
	SelectLatest SelectorMode = "latest"
)

// RegistryFactory builds a registry client for a base URL and per-request timeout.
type RegistryFactory func(baseURL string, timeout time.Duration) (Registry, error)

// CheckParams defines options for a single check run.
type CheckParams struct {
	ConfigPath   string          // Path to the repositories document.
	RegistryURL  string          // Registry override; empty uses the document's value.
	SelectorMode SelectorMode    // Mode for repositories without patterns.
	Timeout      time.Duration   // Per-request registry timeout.
	Concurrency  int             // Repositories processed in parallel (1 = sequential).
	Store        StateStore      // State backend.
	Sink         ReportSink      // Report destination, optional.
	NewRegistry  RegistryFactory // Registry factory, optional.
}
