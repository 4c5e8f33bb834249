package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/watson/internal/catalog"
)

// loadSites builds the working site list: the email services in email
// mode, otherwise the site database plus the built-in extras. Invalid
// entries are logged and skipped.
func (r *runner) loadSites(ctx context.Context, email bool) ([]catalog.Site, error) {
	var raw []catalog.RawEntry
	if email {
		raw = catalog.EmailServices()
	} else {
		db, err := r.loadDatabase(ctx)
		if err != nil {
			return nil, err
		}
		raw = catalog.Merge(db, catalog.Extra())
	}

	sites, warnings := catalog.Validate(raw)
	for _, w := range warnings {
		r.log.WithFields(logrus.Fields{"site": w.Name, "index": w.Index}).Warn(w.Reason)
	}

	selected, unknown := catalog.Filter{
		Include: r.opts.Sites,
		Exclude: r.opts.Exclude,
		NSFW:    r.opts.NSFW,
	}.Apply(sites)
	if len(unknown) > 0 {
		r.log.WithField("sites", strings.Join(unknown, ", ")).Warn("unknown sites ignored")
	}
	if len(selected) == 0 {
		return nil, errors.New("no sites selected")
	}
	r.log.WithFields(logrus.Fields{"sites": len(selected), "dropped": len(warnings)}).Debug("catalog loaded")
	return selected, nil
}

// loadDatabase downloads the database when asked to or when there is none
// yet. A failed download falls back to the existing file.
func (r *runner) loadDatabase(ctx context.Context) ([]catalog.RawEntry, error) {
	path := r.opts.DataFile
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if !r.opts.LocalOnly && (r.opts.Update || !exists) {
		src := r.opts.CatalogURL
		if src == "" {
			src = catalog.SherlockDataURL
		}
		r.log.WithField("url", src).Info("downloading site database")

		err := catalog.Fetch(ctx, r.transport, src, r.transport.UserAgent(), path)
		switch {
		case err == nil:
		case exists:
			r.log.WithError(err).Warn("failed to update site database, using the existing one")
		default:
			return nil, errors.Wrap(err, "no site database available")
		}
	}

	entries, err := catalog.LoadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load site database")
	}
	return entries, nil
}

func (r *runner) listSites(ctx context.Context) error {
	sites, err := r.loadSites(ctx, r.opts.Email)
	if err != nil {
		return err
	}
	r.printer.Sites(sites)
	fmt.Fprintf(r.stdout, "\n%d sites\n", len(sites))
	return nil
}

// selfTest checks every selected site against its own sample usernames.
// Sites that misjudge them are printed; the run itself still succeeds.
func (r *runner) selfTest(ctx context.Context) error {
	sites, err := r.loadSites(ctx, false)
	if err != nil {
		return err
	}
	observers, stop, err := r.observability(ctx)
	if err != nil {
		return err
	}
	defer stop()

	r.log.WithField("sites", len(sites)).Info("checking site validity")
	scanner := r.newScanner(observers...)
	failures, skipped, err := scanner.SelfTest(ctx, sites)
	for _, f := range failures {
		r.printer.ValidationFailure(f)
	}
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"tested":  len(sites) - skipped,
		"failed":  len(failures),
		"skipped": skipped,
	}).Info("self-test finished")
	fmt.Fprintf(r.stdout, "\n%d of %d sites are not compatible with the site database.\n",
		len(failures), len(sites)-skipped)
	return nil
}
