// Package api wires the HTTP API endpoints to the check workflow.
package api

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/api"
	"github.com/nicholas-fedor/tagwatch/pkg/api/check"
	metricsAPI "github.com/nicholas-fedor/tagwatch/pkg/api/metrics"
	"github.com/nicholas-fedor/tagwatch/pkg/metrics"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Config selects the endpoints and the listen address of the HTTP API.
type Config struct {
	Host          string
	Port          string
	Token         string
	EnableCheck   bool
	EnableMetrics bool
	// Blocking keeps SetupAndStartAPI in the foreground until ctx is cancelled.
	Blocking bool
}

// GetAPIAddr formats the API address string based on host and port.
func GetAPIAddr(host, port string) string {
	address := host + ":" + port
	if host != "" && strings.Contains(host, ":") && net.ParseIP(host) != nil {
		address = "[" + host + "]:" + port
	}

	return address
}

// SetupAndStartAPI registers the enabled endpoints and starts the HTTP API.
//
// Runs triggered through the check endpoint share checkLock with the
// scheduler and are recorded in the default metrics.
//
// Parameters:
//   - ctx: Context controlling the server's lifecycle.
//   - cfg: Endpoints and listen address.
//   - checkLock: Single-slot lock shared with the scheduler.
//   - runCheck: Function executing one check run.
//   - writeStartupMessage: Called before blocking, when the API is the only trigger.
//   - server: Optional server replacing the default *http.Server.
//
// Returns:
//   - error: Non-nil if the server fails to start or stops abnormally.
func SetupAndStartAPI(
	ctx context.Context,
	cfg Config,
	checkLock chan bool,
	runCheck check.Func,
	writeStartupMessage func(time.Time),
	server ...api.HTTPServer,
) error {
	httpAPI := api.New(cfg.Token, GetAPIAddr(cfg.Host, cfg.Port), server...)

	if cfg.EnableCheck {
		checkHandler := check.New(func(ctx context.Context) (*types.CheckResult, error) {
			result, err := runCheck(ctx)
			if err != nil {
				return nil, err
			}

			metrics.Default().RegisterRun(metrics.NewMetric(result.Summary, result.StateErr))

			return result, nil
		}, checkLock)
		httpAPI.RegisterFunc(checkHandler.Path, checkHandler.Handle)
	}

	if cfg.EnableMetrics {
		metricsHandler := metricsAPI.New()
		httpAPI.RegisterFunc(metricsHandler.Path, metricsHandler.Handle)
	}

	blocking := cfg.EnableCheck && cfg.Blocking
	if blocking && writeStartupMessage != nil {
		writeStartupMessage(time.Time{})
	}

	if err := httpAPI.Start(ctx, blocking); err != nil {
		logrus.WithError(err).Error("Failed to start API")

		return fmt.Errorf("failed to start HTTP API: %w", err)
	}

	return nil
}
