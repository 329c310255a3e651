package check

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/report"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Path is the endpoint the check handler is mounted at.
const Path = "/v1/check"

// retryAfterSeconds is advertised to clients rejected while a run is active.
const retryAfterSeconds = "30"

// Func executes one check run.
type Func func(ctx context.Context) (*types.CheckResult, error)

// Handler triggers check runs via HTTP.
type Handler struct {
	fn   Func
	Path string
	lock chan bool
}

// New creates a new Handler instance.
//
// Parameters:
//   - checkFn: Function executing a check run.
//   - checkLock: Optional lock channel shared with the scheduler; if nil, a new one is created.
//
// Returns:
//   - *Handler: Handler mounted at Path.
func New(checkFn Func, checkLock chan bool) *Handler {
	lock := checkLock
	if lock == nil {
		lock = make(chan bool, 1)
		lock <- true

		logrus.Debug("Initialized new check lock channel")
	}

	return &Handler{
		fn:   checkFn,
		Path: Path,
		lock: lock,
	}
}

// Handle runs a check and writes the run report as JSON.
//
// GET and POST are accepted. A request arriving while another run holds the
// lock gets 429 with a Retry-After header; a run that aborts gets 500.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	clog := logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	clog.Info("Received HTTP API check request")

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")

		return
	}

	select {
	case value := <-h.lock:
		defer func() {
			h.lock <- value
		}()
	default:
		clog.Debug("Skipped check, another run is already in progress")
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusTooManyRequests, "another check is already running")

		return
	}

	result, err := h.fn(r.Context())
	if err != nil {
		clog.WithError(err).Error("Check run failed")
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	var buf bytes.Buffer
	if err := report.NewJSONSink(&buf).Write(result.Report()); err != nil {
		clog.WithError(err).Error("Failed to encode check response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(buf.Bytes()); err != nil {
		clog.WithError(err).Error("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	body, err := json.Marshal(map[string]string{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, message, status)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		logrus.WithError(err).Error("Failed to write error response")
	}
}
