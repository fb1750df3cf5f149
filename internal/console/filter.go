package console

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter kinds accepted by NewOutputFilter.
const (
	FilterNone   = "none"
	FilterErrors = "errors"
	FilterSearch = "search"
	FilterRegex  = "regex"
)

var errorKeywords = []string{
	"error",
	"exception",
	"fatal",
	"warning",
	"warn",
	"failed",
	"failure",
	"critical",
	"panic",
	"stack trace",
	"traceback",
}

// OutputFilter selects console lines by kind and pattern.
type OutputFilter struct {
	Kind          string
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// NewOutputFilter builds a filter. An empty kind means FilterNone.
func NewOutputFilter(kind, pattern string, caseSensitive bool) (*OutputFilter, error) {
	if kind == "" {
		kind = FilterNone
	}
	filter := &OutputFilter{Kind: kind, Pattern: pattern, CaseSensitive: caseSensitive}

	switch kind {
	case FilterNone, FilterErrors, FilterSearch:
	case FilterRegex:
		if pattern == "" {
			break
		}
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		filter.regex = compiled
	default:
		return nil, fmt.Errorf("unknown filter type %q", kind)
	}

	return filter, nil
}

// Match reports whether line passes the filter.
func (f *OutputFilter) Match(line string) bool {
	switch f.Kind {
	case FilterErrors:
		lower := strings.ToLower(line)
		for _, keyword := range errorKeywords {
			if strings.Contains(lower, keyword) {
				return true
			}
		}
		return false

	case FilterSearch:
		if f.Pattern == "" {
			return true
		}
		if f.CaseSensitive {
			return strings.Contains(line, f.Pattern)
		}
		return strings.Contains(strings.ToLower(line), strings.ToLower(f.Pattern))

	case FilterRegex:
		return f.regex == nil || f.regex.MatchString(line)

	default:
		return true
	}
}

// FilterLines applies the filter to multiple lines
func (f *OutputFilter) FilterLines(lines []string) []string {
	if f.Kind == FilterNone {
		return lines
	}

	filtered := []string{}
	for _, line := range lines {
		if f.Match(line) {
			filtered = append(filtered, line)
		}
	}
	return filtered
}
