// Package scan runs bounded-concurrency probe sweeps and aggregates their
// results in catalog order.
package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/logging"
	"github.com/tdh8316/watson/internal/probe"
)

const DefaultConcurrency = 32

type Config struct {
	Concurrency int
	Timeout     time.Duration // per probe
	RateLimit   float64       // probes per second across the sweep, 0 disables
	Logger      logrus.FieldLogger
}

// Prober runs a single probe. *probe.Executor implements it.
type Prober interface {
	Run(ctx context.Context, site catalog.Site, identifier string, timeout time.Duration) probe.Result
}

// Observer is notified as probes start and finish. ProbeStarted is called
// from worker goroutines; ProbeFinished calls are serialized.
type Observer interface {
	ProbeStarted()
	ProbeFinished(res probe.Result)
}

type Scanner struct {
	prober    Prober
	cfg       Config
	limiter   *rate.Limiter
	observers []Observer
	log       logrus.FieldLogger

	inFlight atomic.Int64
}

func NewScanner(p Prober, cfg Config, observers ...Observer) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = probe.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	s := &Scanner{
		prober:    p,
		cfg:       cfg,
		observers: observers,
		log:       cfg.Logger,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}
	return s
}

// InFlight is the number of probes currently running.
func (s *Scanner) InFlight() int {
	return int(s.inFlight.Load())
}

// Sweep probes every site for identifier and returns the sealed, catalog
// ordered sweep. When ctx is cancelled the sweep is still returned, with
// unfinished sites reported as cancelled, together with ctx.Err().
func (s *Scanner) Sweep(ctx context.Context, sites []catalog.Site, identifier string) (*Sweep, error) {
	s.log.WithFields(logrus.Fields{
		"identifier":  identifier,
		"sites":       len(sites),
		"concurrency": min(s.cfg.Concurrency, len(sites)),
	}).Debug("sweep started")

	results := s.run(ctx, len(sites), func(ctx context.Context, i int) probe.Result {
		return s.prober.Run(ctx, sites[i], identifier, s.cfg.Timeout)
	})
	return Finalize(results, sites, identifier), ctx.Err()
}

// run executes job(i) for every i in [0, n) on at most Concurrency workers.
// Jobs not started before ctx is done are skipped.
func (s *Scanner) run(ctx context.Context, n int, job func(context.Context, int) probe.Result) []Indexed {
	workers := min(s.cfg.Concurrency, n)
	if workers == 0 {
		return nil
	}

	jobs := make(chan int) // Channel of slot indices.
	results := make(chan Indexed, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if s.limiter != nil {
					if err := s.limiter.Wait(ctx); err != nil {
						continue
					}
				}

				s.inFlight.Add(1)
				for _, o := range s.observers {
					o.ProbeStarted()
				}
				res := job(ctx, i)
				s.inFlight.Add(-1)

				results <- Indexed{Index: i, Result: res}
			}
		}()
	}

	// Wait for workers to finish and close results channel when done.
	go func() {
		defer close(results)
		wg.Wait()
	}()

	go func() {
		defer close(jobs)
		for i := range n {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	collected := make([]Indexed, 0, n)
	for r := range results {
		for _, o := range s.observers {
			o.ProbeFinished(r.Result)
		}
		collected = append(collected, r)
	}
	return collected
}
