// Package selector computes the set of tags to evaluate for a repository.
// Tags are chosen from the registry's listing by exact names, shell-glob patterns or,
// when a repository has no patterns, by the configured selector mode.
package selector

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// globChars are the characters that turn a tag pattern into a shell-glob pattern.
const globChars = "*?["

// Errors for tag selection.
var (
	// errInvalidMode indicates an unsupported selector mode.
	errInvalidMode = errors.New("invalid selector mode")
	// errInvalidPattern indicates a tag pattern that cannot be compiled.
	errInvalidPattern = errors.New("invalid tag pattern")
)

// ParseMode converts a mode name into a SelectorMode. An empty name selects types.SelectAll.
func ParseMode(name string) (types.SelectorMode, error) {
	switch mode := types.SelectorMode(strings.ToLower(strings.TrimSpace(name))); mode {
	case "":
		return types.SelectAll, nil
	case types.SelectAll, types.SelectLatest:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q (expected %q or %q)", errInvalidMode, name, types.SelectAll, types.SelectLatest)
	}
}

// IsPattern reports whether a tag pattern uses shell-glob syntax.
func IsPattern(pattern string) bool {
	return strings.ContainsAny(pattern, globChars)
}

// ValidatePattern checks that a glob pattern compiles.
func ValidatePattern(pattern string) error {
	if _, err := filepath.Match(normalizeGlob(pattern), ""); err != nil {
		return fmt.Errorf("%w %q: %w", errInvalidPattern, pattern, err)
	}

	return nil
}

// Select returns the tags to evaluate, de-duplicated and sorted lexically.
//
// Without patterns the mode decides: SelectAll returns every available tag and SelectLatest
// the single tag sorting highest in case-sensitive byte order. With patterns, exact names are
// kept when present in available and glob patterns keep every available tag they match.
// Selected names never include tags missing from available.
//
// Parameters:
//   - available: Tags listed by the registry.
//   - patterns: Exact names and glob patterns; nil or empty means no explicit selection.
//   - mode: Selector mode applied when patterns is empty.
//
// Returns:
//   - []string: Selected tags.
//   - error: Non-nil if the mode or a glob pattern is invalid.
func Select(available []string, patterns []string, mode types.SelectorMode) ([]string, error) {
	if len(patterns) == 0 {
		return selectByMode(available, mode)
	}

	present := make(map[string]struct{}, len(available))
	for _, tag := range available {
		present[tag] = struct{}{}
	}

	var (
		selected []string
		globs    []string
	)

	for _, pattern := range patterns {
		if IsPattern(pattern) {
			if err := ValidatePattern(pattern); err != nil {
				return nil, err
			}

			globs = append(globs, normalizeGlob(pattern))

			continue
		}

		if _, ok := present[pattern]; ok {
			selected = append(selected, pattern)
		} else {
			logrus.WithField("tag", pattern).Debug("Configured tag not listed by registry")
		}
	}

	if len(globs) > 0 {
		matched, err := matchGlobs(available, globs)
		if err != nil {
			return nil, err
		}

		selected = append(selected, matched...)
	}

	return sortUnique(selected), nil
}

// selectByMode applies the selector mode to the full listing.
func selectByMode(available []string, mode types.SelectorMode) ([]string, error) {
	switch mode {
	case types.SelectAll, "":
		return sortUnique(slices.Clone(available)), nil
	case types.SelectLatest:
		if len(available) == 0 {
			return []string{}, nil
		}

		return []string{slices.Max(available)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errInvalidMode, mode)
	}
}

// matchGlobs returns the available tags matching any of the glob patterns.
func matchGlobs(available []string, globs []string) ([]string, error) {
	matcher, err := patternmatcher.New(globs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidPattern, err)
	}

	var matched []string

	for _, tag := range available {
		ok, err := matcher.MatchesOrParentMatches(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidPattern, err)
		}

		if ok {
			matched = append(matched, tag)
		}
	}

	logrus.WithFields(logrus.Fields{
		"patterns": globs,
		"matched":  len(matched),
	}).Debug("Matched tag patterns")

	return matched, nil
}

// normalizeGlob rewrites the shell negation "[!...]" of a character class into the "[^...]"
// form understood by the matcher. Escaped brackets are left alone.
func normalizeGlob(pattern string) string {
	if !strings.Contains(pattern, "[!") {
		return pattern
	}

	var (
		out     strings.Builder
		escaped bool
		inClass bool
	)

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]

		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '[' && !inClass:
			inClass = true

			out.WriteByte(ch)

			if i+1 < len(pattern) && pattern[i+1] == '!' {
				out.WriteByte('^')
				i++
			}

			continue
		case ch == ']' && inClass:
			inClass = false
		}

		out.WriteByte(ch)
	}

	return out.String()
}

// sortUnique sorts tags in place and removes duplicates and empty names.
func sortUnique(tags []string) []string {
	tags = slices.DeleteFunc(tags, func(tag string) bool { return tag == "" })
	slices.Sort(tags)

	out := slices.Compact(tags)
	if out == nil {
		return []string{}
	}

	return out
}
