package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Report formats accepted by New.
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatJSON  = "json"
)

// errUnknownFormat indicates an unsupported report format.
var errUnknownFormat = errors.New("unknown report format")

// New creates the report sink for a format. An empty format selects FormatText.
func New(format string, w io.Writer) (types.ReportSink, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return NewTextSink(w), nil
	case FormatTable:
		return NewTableSink(w), nil
	case FormatJSON:
		return NewJSONSink(w), nil
	default:
		return nil, fmt.Errorf("%w: %q (expected %s, %s or %s)", errUnknownFormat, format, FormatText, FormatTable, FormatJSON)
	}
}

// Describe returns the one-line description of a change event.
//
// NEW events read "[NEW] repo: tag=t, digest=d" and UPDATED events
// "[UPDATED] repo: tag=t, new digest=d (was p)".
func Describe(event types.ChangeEvent) string {
	if event.Kind == types.ChangeUpdated {
		return fmt.Sprintf("[%s] %s: tag=%s, new digest=%s (was %s)",
			event.Kind, event.Repository, event.Tag, event.Digest, event.PreviousDigest)
	}

	return fmt.Sprintf("[%s] %s: tag=%s, digest=%s", event.Kind, event.Repository, event.Tag, event.Digest)
}
