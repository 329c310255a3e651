package util

import (
	"fmt"
	"strings"
	"time"
)

// timeUnit is one component of a formatted duration.
type timeUnit struct {
	value    int64
	singular string
	plural   string
}

// FormatDuration renders a duration as "1 hour, 2 minutes, 3 seconds".
//
// Zero components are omitted and fractions of a second are dropped; a
// duration below one second renders as "0 seconds".
//
// Parameters:
//   - duration: Duration to render.
//
// Returns:
//   - string: Human-readable duration.
func FormatDuration(duration time.Duration) string {
	total := int64(duration / time.Second)

	units := []timeUnit{
		{total / 3600, "hour", "hours"},
		{total % 3600 / 60, "minute", "minutes"},
		{total % 60, "second", "seconds"},
	}

	parts := make([]string, 0, len(units))
	for _, unit := range units {
		parts = append(parts, FormatTimeUnit(unit.value, unit.singular, unit.plural, false))
	}

	joined := strings.Join(FilterEmpty(parts), ", ")
	if joined == "" {
		return "0 seconds"
	}

	return joined
}

// FormatTimeUnit renders a single unit with singular or plural wording.
// Zero values render empty unless forceInclude is set.
func FormatTimeUnit(value int64, singular, plural string, forceInclude bool) string {
	switch {
	case value == 1:
		return "1 " + singular
	case value > 1 || forceInclude:
		return fmt.Sprintf("%d %s", value, plural)
	default:
		return ""
	}
}

// FilterEmpty returns the non-empty elements of parts.
func FilterEmpty(parts []string) []string {
	var filtered []string

	for _, part := range parts {
		if part != "" {
			filtered = append(filtered, part)
		}
	}

	return filtered
}
