// Package lambda runs check runs as an AWS Lambda function.
//
// Each invocation performs one run with the settings taken from the
// environment (see flags.EnvOptions) and returns a summary of the run. The
// report is written to the function's log stream.
package lambda

import (
	"context"
	"encoding/json"
	"io"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/internal/actions"
	"github.com/nicholas-fedor/tagwatch/internal/flags"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Response is returned from every successful invocation.
type Response struct {
	Status     string              `json:"status"`
	RunID      string              `json:"run_id"`
	Changes    int                 `json:"changes"`
	Summary    types.Summary       `json:"summary"`
	Events     []types.ChangeEvent `json:"events"`
	StateError string              `json:"state_error,omitempty"`
}

// Handler executes a check run per invocation.
type Handler struct {
	Options     flags.Options
	Out         io.Writer             // Report destination; nil disables the report.
	NewRegistry types.RegistryFactory // Optional registry factory.
}

// New creates a handler for the given settings.
func New(opts flags.Options, out io.Writer) *Handler {
	return &Handler{Options: opts, Out: out}
}

// Handle performs one check run.
//
// The triggering event is only logged; scheduled EventBridge events and
// direct invocations behave the same. Configuration errors and aborted runs
// are returned as handler errors so the invocation is marked failed.
//
// Parameters:
//   - ctx: Invocation context carrying the deadline.
//   - event: Raw triggering event.
//
// Returns:
//   - Response: Summary of the run.
//   - error: Non-nil if the run could not complete.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (Response, error) {
	clog := logrus.WithFields(invocationFields(ctx, event))
	clog.Info("Received invocation")

	params, err := actions.NewCheckParams(ctx, h.Options, h.Out)
	if err != nil {
		clog.WithError(err).Error("Invalid configuration")

		return Response{}, err
	}

	params.NewRegistry = h.NewRegistry

	result, err := actions.Check(ctx, params)
	if err != nil {
		clog.WithError(err).Error("Check run failed")

		return Response{}, err
	}

	if result.StateErr != nil {
		clog.WithField("changes", result.Summary.Changes()).Warn("Changes will be reported again on the next invocation")
	}

	response := Response{
		Status:  result.Status(),
		RunID:   result.RunID,
		Changes: result.Summary.Changes(),
		Summary: result.Summary,
		Events:  result.Events,
	}

	if response.Events == nil {
		response.Events = []types.ChangeEvent{}
	}

	if result.StateErr != nil {
		response.StateError = result.StateErr.Error()
	}

	return response, nil
}

// invocationFields describes the invocation for logging.
func invocationFields(ctx context.Context, event json.RawMessage) logrus.Fields {
	fields := logrus.Fields{}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields["request_id"] = lc.AwsRequestID
	}

	var scheduled events.CloudWatchEvent
	if len(event) > 0 && json.Unmarshal(event, &scheduled) == nil && scheduled.Source != "" {
		fields["source"] = scheduled.Source
		fields["detail_type"] = scheduled.DetailType
	}

	return fields
}
