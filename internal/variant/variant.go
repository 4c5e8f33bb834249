// Package variant derives common spelling variations of a username.
package variant

import (
	"slices"
	"strings"
)

var (
	prefixes = []string{"_", "-", "the_", "real_"}
	suffixes = []string{"_", "-", "1", "12", "123", "0"}
)

// Generate returns username and its variations, sorted and without
// duplicates. An empty username yields nothing.
func Generate(username string) []string {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}

	out := []string{
		username,
		strings.ReplaceAll(username, "_", "."),
		strings.ReplaceAll(username, "-", "."),
		strings.ReplaceAll(username, ".", "_"),
		strings.ReplaceAll(username, "-", "_"),
		strings.ToLower(username),
		strings.ToUpper(username),
	}
	for _, p := range prefixes {
		out = append(out, p+username)
	}
	for _, s := range suffixes {
		out = append(out, username+s)
	}

	slices.Sort(out)
	return slices.Compact(out)
}
