// Package report renders sweep results: streaming terminal lines while a
// sweep runs, and whole-run reports in text, json, csv or html afterwards.
package report

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tdh8316/watson/internal/probe"
	"github.com/tdh8316/watson/internal/scan"
)

// Report is everything known about one sweep.
type Report struct {
	RunID      string
	Identifier string
	Transport  string
	Started    time.Time
	Finished   time.Time

	Counts  scan.Counts
	Results []probe.Result

	// Emails maps a site name to the addresses scraped from its profile page.
	Emails map[string][]string
}

func New(sw *scan.Sweep, transport string, started, finished time.Time) Report {
	return Report{
		RunID:      uuid.NewString(),
		Identifier: sw.Identifier(),
		Transport:  transport,
		Started:    started,
		Finished:   finished,
		Counts:     sw.Counts(),
		Results:    sw.Results(),
	}
}

func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// EmailSites returns the site names with scraped emails, sorted.
func (r Report) EmailSites() []string {
	names := make([]string, 0, len(r.Emails))
	for name, emails := range r.Emails {
		if len(emails) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Writer renders a complete report in one format.
type Writer interface {
	Write(w io.Writer, r Report) error
}

var Formats = []string{"text", "json", "csv", "html"}

// NewWriter returns the writer for format. all includes NotFound and Unknown
// results in formats that otherwise list Found results only.
func NewWriter(format string, all bool) (Writer, error) {
	switch strings.ToLower(format) {
	case "", "text", "txt":
		return &TextWriter{All: all}, nil
	case "json":
		return &JSONWriter{}, nil
	case "csv":
		return &CSVWriter{}, nil
	case "html":
		return NewHTMLWriter()
	default:
		return nil, errors.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// FormatFromPath guesses the output format from a file extension.
func FormatFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "json"
	case strings.HasSuffix(path, ".csv"):
		return "csv"
	case strings.HasSuffix(path, ".html"), strings.HasSuffix(path, ".htm"):
		return "html"
	default:
		return "text"
	}
}
