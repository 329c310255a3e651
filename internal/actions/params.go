package actions

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/internal/flags"
	"github.com/nicholas-fedor/tagwatch/pkg/config"
	"github.com/nicholas-fedor/tagwatch/pkg/report"
	"github.com/nicholas-fedor/tagwatch/pkg/state"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// NewCheckParams builds the parameters of a check run from its settings.
//
// The state store is created from opts.State and, when out is non-nil, a
// report sink in opts.ReportFormat writing to out. Unusable settings are
// returned as a *config.Error.
//
// Parameters:
//   - ctx: Context used while creating the state store.
//   - opts: Settings of the run.
//   - out: Report destination; nil disables the report.
//
// Returns:
//   - types.CheckParams: Parameters for Check.
//   - error: Non-nil *config.Error if the settings are unusable.
func NewCheckParams(ctx context.Context, opts flags.Options, out io.Writer) (types.CheckParams, error) {
	store, err := state.New(ctx, opts.State)
	if err != nil {
		return types.CheckParams{}, &config.Error{Err: err}
	}

	params := types.CheckParams{
		ConfigPath:   opts.ConfigPath,
		RegistryURL:  opts.RegistryURL,
		SelectorMode: types.SelectorMode(opts.SelectorMode),
		Timeout:      opts.Timeout,
		Concurrency:  opts.Concurrency,
		Store:        store,
	}

	if out != nil {
		sink, err := report.New(opts.ReportFormat, out)
		if err != nil {
			return types.CheckParams{}, &config.Error{Err: err}
		}

		params.Sink = sink
	}

	logrus.WithFields(logrus.Fields{
		"store":  store.String(),
		"format": opts.ReportFormat,
	}).Debug("Prepared check parameters")

	return params, nil
}
