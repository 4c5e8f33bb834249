package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/config"
	"github.com/tdh8316/watson/internal/report"
	"github.com/tdh8316/watson/internal/scan"
	"github.com/tdh8316/watson/internal/scrape"
	"github.com/tdh8316/watson/internal/variant"
)

func (r *runner) newScanner(observers ...scan.Observer) *scan.Scanner {
	return scan.NewScanner(r.newExecutor(), r.scanConfig(), observers...)
}

// identifiers collects positional identifiers, then those from --file,
// expanded with their variations when asked. Duplicates are dropped.
func (r *runner) identifiers() ([]string, error) {
	ids := append([]string(nil), r.opts.Identifiers...)
	if r.opts.IdentifiersFile != "" {
		more, err := config.ReadIdentifiersFile(r.opts.IdentifiersFile)
		if err != nil {
			return nil, err
		}
		ids = append(ids, more...)
	}

	seen := make(map[string]struct{}, len(ids))
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range ids {
		if r.opts.Variations && !r.opts.Email {
			for _, v := range variant.Generate(id) {
				add(v)
			}
			continue
		}
		add(id)
	}
	if len(out) == 0 {
		return nil, errors.New("no identifiers to search")
	}
	return out, nil
}

func (r *runner) search(ctx context.Context) error {
	ids, err := r.identifiers()
	if err != nil {
		return err
	}
	sites, err := r.loadSites(ctx, r.opts.Email)
	if err != nil {
		return err
	}
	observers, stop, err := r.observability(ctx)
	if err != nil {
		return err
	}
	defer stop()

	var scraper *scrape.Scraper
	if r.opts.ScrapeEmails {
		scraper = scrape.New(r.transport, scrape.Options{
			Timeout:   r.opts.RequestTimeout(),
			UserAgent: r.transport.UserAgent,
			Logger:    r.log,
		})
	}

	r.multiple = len(ids) > 1
	unavailable := false
	for _, id := range ids {
		sw, err := r.sweep(ctx, id, sites, observers, scraper)
		if sw != nil && sw.AllUnavailable() {
			unavailable = true
		}
		if err != nil {
			return err
		}
	}
	if unavailable {
		return errNoTransport
	}
	return nil
}

// sweep searches one identifier, prints and stores its results. The report
// is written even when the sweep was interrupted.
func (r *runner) sweep(ctx context.Context, id string, sites []catalog.Site, observers []scan.Observer, scraper *scrape.Scraper) (*scan.Sweep, error) {
	observers = append([]scan.Observer{r.printer}, observers...)

	var progress *report.Progress
	if r.opts.Progress && !r.opts.Quiet && report.IsTerminal(r.stderr) {
		progress = report.NewProgress(r.stderr, len(sites))
		observers = append(observers, progress)
	}

	r.printer.Banner(id, len(sites), r.transport.String())
	started := time.Now()
	if progress != nil {
		progress.Start()
	}
	sw, sweepErr := r.newScanner(observers...).Sweep(ctx, sites, id)
	if progress != nil {
		progress.Stop()
	}
	rep := report.New(sw, r.transport.String(), started, time.Now())

	if scraper != nil && sweepErr == nil {
		rep.Emails = scraper.Scrape(ctx, sw.Found())
		for _, site := range rep.EmailSites() {
			r.printer.Emails(site, rep.Emails[site])
		}
	}
	r.printer.Summary(rep.Counts, rep.Duration())

	if sw.AllUnavailable() {
		r.log.WithField("transport", r.transport.String()).Error("no site could be reached through the configured transport")
	}

	if err := r.store(id, rep); err != nil {
		return sw, err
	}
	return sw, sweepErr
}

// store writes results/<id>/out.txt and the report file. Both are built
// from the sealed sweep, so lines follow catalog order.
func (r *runner) store(id string, rep report.Report) error {
	if dir := r.opts.ResultsDir; dir != "" {
		userDir := filepath.Join(dir, safeName(id))
		if err := os.MkdirAll(userDir, 0o755); err != nil {
			return errors.Wrap(err, "create results dir")
		}
		var lines bytes.Buffer
		if err := report.WriteLines(&lines, rep, r.opts.PrintAll); err != nil {
			return err
		}
		path := filepath.Join(userDir, "out.txt")
		if err := os.WriteFile(path, lines.Bytes(), 0o600); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
	}

	if r.opts.OutputFile == "" {
		return nil
	}
	format := r.opts.OutputFormat
	if format == "" {
		format = report.FormatFromPath(r.opts.OutputFile)
	}
	path := reportPath(r.opts.OutputFile, id, r.multiple)
	if err := writeReport(path, format, r.opts.PrintAll, rep); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"path": path, "format": format}).Info("report written")
	return nil
}

func writeReport(path, format string, all bool, rep report.Report) error {
	w, err := report.NewWriter(format, all)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create report dir")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create report")
	}
	if err := w.Write(f, rep); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// reportPath gives each identifier its own report file when a run
// searches more than one: out.json becomes out-alice.json.
func reportPath(base, id string, multiple bool) string {
	if !multiple {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + safeName(id) + ext
}

func safeName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, id)
	if name == "." || name == ".." {
		return "_"
	}
	return name
}
