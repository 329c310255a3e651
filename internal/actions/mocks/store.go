// Package mocks provides mock implementations for testing tagwatch components.
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// StateStore is an in-memory implementation of types.StateStore for tests.
// Saved states are round-tripped through JSON so tests observe what a real backend would persist.
type StateStore struct {
	mu        sync.Mutex
	state     types.GlobalState
	LoadError error // Returned by Load when set.
	SaveError error // Returned by Save when set.
	Saves     int   // Number of successful Save calls.
	Loads     int   // Number of Load calls.
}

// NewStateStore creates a store holding the given state. A nil state behaves like an absent document.
func NewStateStore(state types.GlobalState) *StateStore {
	return &StateStore{state: state}
}

// Load returns a copy of the stored state.
func (s *StateStore) Load(_ context.Context) (types.GlobalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Loads++

	if s.LoadError != nil {
		return nil, s.LoadError
	}

	return roundTrip(s.state)
}

// Save replaces the stored state.
func (s *StateStore) Save(_ context.Context, state types.GlobalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveError != nil {
		return s.SaveError
	}

	stored, err := roundTrip(state)
	if err != nil {
		return err
	}

	s.state = stored
	s.Saves++

	return nil
}

// State returns a copy of the stored state.
func (s *StateStore) State() types.GlobalState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := roundTrip(s.state)

	return state
}

// String describes the store.
func (s *StateStore) String() string {
	return "memory"
}

// roundTrip copies a state through its JSON encoding.
func roundTrip(state types.GlobalState) (types.GlobalState, error) {
	out := types.GlobalState{}
	if state == nil {
		return out, nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// ReportSink records the reports written to it.
type ReportSink struct {
	mu      sync.Mutex
	Reports []types.RunReport
	Err     error // Returned by Write when set.
}

// Write records a report.
func (s *ReportSink) Write(report types.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Reports = append(s.Reports, report)

	return s.Err
}
