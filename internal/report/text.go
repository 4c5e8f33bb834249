package report

import (
	"fmt"
	"io"
	"time"

	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/probe"
)

// TextWriter writes the plain line format also used for results files.
type TextWriter struct {
	All bool
}

func (t *TextWriter) Write(w io.Writer, r Report) error {
	if err := WriteLines(w, r, t.All); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d found, %d not found, %d unknown (%s)\n",
		r.Counts.Found, r.Counts.NotFound, r.Counts.Unknown, r.Duration().Round(time.Millisecond))
	return err
}

// WriteLines writes the plain result lines of r in catalog order, then the
// scraped emails.
func WriteLines(w io.Writer, r Report, all bool) error {
	for _, res := range r.Results {
		if line, ok := PlainLine(res, all); ok {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	for _, name := range r.EmailSites() {
		for _, email := range r.Emails[name] {
			if _, err := fmt.Fprintf(w, "[@] %s: %s\n", name, email); err != nil {
				return err
			}
		}
	}
	return nil
}

// PlainLine formats one result without color. ok is false when the result
// is hidden because all is off.
func PlainLine(res probe.Result, all bool) (string, bool) {
	switch {
	case res.Status == detect.Found:
		return fmt.Sprintf("[+] %s: %s", res.Site, res.URL), true
	case !all:
		return "", false
	case res.Status == detect.NotFound:
		return fmt.Sprintf("[-] %s: Not Found!", res.Site), true
	default:
		return fmt.Sprintf("[!] %s: ERROR (%s): %s", res.Site, res.Failure, res.Detail), true
	}
}
