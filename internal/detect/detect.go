// Package detect decides whether an HTTP exchange indicates an existing account.
package detect

import (
	"strings"

	"github.com/tdh8316/watson/internal/catalog"
)

type Status int

const (
	Unknown Status = iota
	Found
	NotFound
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Exchange is what the probe observed. Body may be truncated; truncation
// does not change how it is matched.
type Exchange struct {
	StatusCode int
	FinalURL   string
	Body       string
	Truncated  bool
}

// Evaluate is pure: the same rule and exchange always give the same status.
// The rule must already be bound to the identifier (see catalog.Rule.Bind).
func Evaluate(rule catalog.Rule, ex Exchange) Status {
	var found bool
	switch rule.Kind {
	case catalog.StatusCode:
		found = ex.StatusCode == rule.Status

	case catalog.BodyContains:
		found = containsAny(ex.Body, rule.Needles)

	case catalog.BodyAbsent:
		found = !containsAny(ex.Body, rule.Needles)

	case catalog.Regex:
		if rule.Pattern == nil {
			return Unknown
		}
		ok, err := rule.Pattern.MatchString(ex.Body)
		// A match that exceeds the pattern's MatchTimeout counts as no match.
		found = err == nil && ok

	case catalog.RedirectURLEquals:
		found = ex.FinalURL != "" && ex.FinalURL == rule.URL

	default:
		return Unknown
	}

	if found {
		return Found
	}
	return NotFound
}

func containsAny(body string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(body, n) {
			return true
		}
	}
	return false
}
