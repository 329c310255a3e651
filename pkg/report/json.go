package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// jsonReport is the document written by JSONSink.
type jsonReport struct {
	RunID          string              `json:"run_id,omitempty"`
	Started        time.Time           `json:"started"`
	Status         string              `json:"status"`
	StatePersisted bool                `json:"state_persisted"`
	StateError     string              `json:"state_error,omitempty"`
	Summary        types.Summary       `json:"summary"`
	Events         []types.ChangeEvent `json:"events"`
}

// JSONSink writes the report as a JSON document.
type JSONSink struct {
	w io.Writer
}

// NewJSONSink creates a JSON sink writing to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

// Write renders the report.
func (s *JSONSink) Write(report types.RunReport) error {
	doc := jsonReport{
		RunID:          report.RunID,
		Started:        report.Started.UTC(),
		Status:         report.Status(),
		StatePersisted: report.StateErr == nil,
		Summary:        report.Summary,
		Events:         report.Events,
	}

	if report.StateErr != nil {
		doc.StateError = report.StateErr.Error()
	}

	if doc.Events == nil {
		doc.Events = []types.ChangeEvent{}
	}

	encoder := json.NewEncoder(s.w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	return nil
}
