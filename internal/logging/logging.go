// Package logging configures the diagnostic logger. Result lines are not
// logged; they go through report.Printer.
package logging

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Format  string // "text" (default) or "json"
	Verbose bool
	Quiet   bool
	NoColor bool
}

func New(w io.Writer, opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(w)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
			DisableColors:   opts.NoColor,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q (supported: text, json)", opts.Format)
	}

	switch {
	case opts.Verbose:
		l.SetLevel(logrus.DebugLevel)
	case opts.Quiet:
		l.SetLevel(logrus.WarnLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
