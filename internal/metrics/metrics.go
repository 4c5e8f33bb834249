// Package metrics exposes sweep metrics for Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/watson/internal/probe"
)

// Collector records probe outcomes. It implements scan.Observer.
type Collector struct {
	registry *prometheus.Registry

	probes   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watson_probes_total",
			Help: "Probes completed, by outcome.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watson_probe_failures_total",
			Help: "Probes that ended as unknown, by failure kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watson_probe_duration_seconds",
			Help:    "Probe duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watson_probes_in_flight",
			Help: "Probes currently running.",
		}),
	}
	c.registry.MustRegister(c.probes, c.failures, c.duration, c.inFlight)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ProbeStarted() {
	c.inFlight.Inc()
}

func (c *Collector) ProbeFinished(res probe.Result) {
	c.inFlight.Dec()
	c.probes.WithLabelValues(res.Status.String()).Inc()
	if res.Failure != probe.FailureNone {
		c.failures.WithLabelValues(string(res.Failure)).Inc()
	}
	c.duration.Observe(res.Elapsed.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "metrics listener")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", ln.Addr().String()).Info("serving metrics")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
