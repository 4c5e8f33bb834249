package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/watson/internal/cli"
	"github.com/tdh8316/watson/internal/config"
	"github.com/tdh8316/watson/internal/httpx"
	"github.com/tdh8316/watson/internal/logging"
	"github.com/tdh8316/watson/internal/metrics"
	"github.com/tdh8316/watson/internal/probe"
	"github.com/tdh8316/watson/internal/report"
	"github.com/tdh8316/watson/internal/scan"
	"github.com/tdh8316/watson/internal/telemetry"
	"github.com/tdh8316/watson/internal/update"
	"github.com/tdh8316/watson/internal/version"
)

const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

var errNoTransport = errors.New("no usable transport: every probe failed to reach its proxy")

// releaseURL is where `version --check` looks; tests point it elsewhere.
var releaseURL = update.LatestReleaseURL

type runner struct {
	opts   config.Options
	log    *logrus.Logger
	stdout io.Writer
	stderr io.Writer

	transport *httpx.Transport
	printer   *report.Printer

	// multiple is set when a search covers more than one identifier.
	multiple bool
}

// Run executes one watson invocation and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, err := cli.Parse(args, stdout, stderr)
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return ExitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitUsage
	}
	opts := inv.Options

	if opts.NoColor {
		color.NoColor = true
	}
	log, err := logging.New(stderr, logging.Options{
		Format:  opts.LogFormat,
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
		NoColor: opts.NoColor || !report.IsTerminal(stderr),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitUsage
	}

	r := &runner{
		opts:    opts,
		log:     log,
		stdout:  stdout,
		stderr:  stderr,
		printer: report.NewPrinter(stdout, opts.NoColor, opts.PrintAll),
	}

	r.transport, err = httpx.Build(opts.Transport())
	if err != nil {
		log.WithError(err).Error("cannot build transport")
		return ExitFailure
	}
	log.WithField("transport", r.transport.String()).Debug("transport ready")

	switch inv.Command {
	case cli.ShowVersion:
		err = r.version(ctx, inv.CheckUpdate)
	case cli.ListSites:
		err = r.listSites(ctx)
	case cli.SelfTest:
		err = r.selfTest(ctx)
	default:
		err = r.search(ctx)
	}
	return r.exitCode(ctx, err)
}

func (r *runner) exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		r.log.Warn("interrupted")
		return ExitInterrupted
	default:
		r.log.WithError(err).Error("run failed")
		return ExitFailure
	}
}

func (r *runner) newExecutor() *probe.Executor {
	return probe.NewExecutor(r.transport, probe.Options{
		UserAgent: r.transport.UserAgent,
		Logger:    r.log,
	})
}

func (r *runner) scanConfig() scan.Config {
	return scan.Config{
		Concurrency: r.opts.Concurrency,
		Timeout:     r.opts.RequestTimeout(),
		RateLimit:   r.opts.RateLimit,
		Logger:      r.log,
	}
}

// observability starts the metrics endpoint and the trace exporter when
// configured. The returned stop func shuts both down.
func (r *runner) observability(ctx context.Context) ([]scan.Observer, func(), error) {
	var observers []scan.Observer
	ctx, cancel := context.WithCancel(ctx)

	if addr := r.opts.MetricsAddr; addr != "" {
		collector := metrics.New()
		observers = append(observers, collector)
		go func() {
			if err := collector.Serve(ctx, addr, r.log); err != nil {
				r.log.WithError(err).Error("metrics endpoint stopped")
			}
		}()
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint: r.opts.OTLPEndpoint,
		Insecure: r.opts.OTLPInsecure,
		Version:  version.Version,
	})
	if err != nil {
		cancel()
		return nil, nil, err
	}

	stop := func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdown(flushCtx); err != nil {
			r.log.WithError(err).Warn("flushing traces failed")
		}
		cancel()
	}
	return observers, stop, nil
}

func (r *runner) version(ctx context.Context, check bool) error {
	fmt.Fprintf(r.stdout, "watson %s\n", version.Version)
	if !check {
		return nil
	}
	rel, err := update.Check(ctx, r.transport, releaseURL, version.Version)
	if err != nil {
		return errors.Wrap(err, "check for updates")
	}
	if rel.Newer {
		fmt.Fprintf(r.stdout, "A newer version is available: %s (%s)\n", rel.Version, rel.URL)
	} else {
		fmt.Fprintln(r.stdout, "You are running the latest version.")
	}
	return nil
}
