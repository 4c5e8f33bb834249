// Package probe performs one HTTP probe of one site for one identifier.
package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/httpx"
	"github.com/tdh8316/watson/internal/logging"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultMaxBodyBytes = 2 << 20
)

// Result is the outcome of one probe. Failure and Detail are set only when
// Status is detect.Unknown.
type Result struct {
	Site       string
	URLMain    string
	Identifier string
	URL        string

	Status     detect.Status
	HTTPStatus int // 0 when no response was received
	Elapsed    time.Duration

	// Rejected is set when the identifier does not match the site's
	// username pattern and no request was sent.
	Rejected bool

	Failure Failure
	Detail  string
}

func (r Result) Found() bool {
	return r.Status == detect.Found
}

// Cancelled is the result of a probe that never ran, or was cut short, because
// the sweep was cancelled.
func Cancelled(site catalog.Site, identifier string) Result {
	return Result{
		Site:       site.Name,
		URLMain:    site.URLMain,
		Identifier: identifier,
		URL:        site.ProfileURL(identifier),
		Status:     detect.Unknown,
		Failure:    FailureCancelled,
		Detail:     ErrCancelled.Error(),
	}
}

type Options struct {
	// UserAgent is called once per request; nil means httpx.DefaultUserAgent.
	UserAgent    func() string
	MaxBodyBytes int64
	Logger       logrus.FieldLogger
}

// Executor is safe for concurrent use.
type Executor struct {
	client    httpx.Doer
	userAgent func() string
	maxBody   int64
	log       logrus.FieldLogger
	tracer    trace.Tracer
}

func NewExecutor(client httpx.Doer, opts Options) *Executor {
	if opts.UserAgent == nil {
		opts.UserAgent = func() string { return httpx.DefaultUserAgent }
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Executor{
		client:    client,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		log:       opts.Logger,
		tracer:    otel.Tracer("github.com/tdh8316/watson/internal/probe"),
	}
}

// Run never returns an error: every failure is folded into an Unknown result.
// Cancelling ctx aborts the request; timeout bounds this probe alone.
func (e *Executor) Run(ctx context.Context, site catalog.Site, identifier string, timeout time.Duration) (res Result) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	res = Result{
		Site:       site.Name,
		URLMain:    site.URLMain,
		Identifier: identifier,
		URL:        site.ProfileURL(identifier),
	}

	ctx, span := e.tracer.Start(ctx, "probe "+site.Name, trace.WithAttributes(
		attribute.String("watson.site", site.Name),
		attribute.String("watson.rule", site.Detection.Kind.String()),
		attribute.String("http.request.method", site.Method),
	))
	defer func() {
		res.Elapsed = time.Since(start)
		span.SetAttributes(
			attribute.String("watson.status", res.Status.String()),
			attribute.Int("http.response.status_code", res.HTTPStatus),
		)
		if res.Failure != FailureNone {
			span.SetStatus(codes.Error, res.Detail)
		}
		span.End()
	}()

	if ctx.Err() != nil {
		res.fail(FailureCancelled, ErrCancelled)
		return res
	}

	if !site.AcceptsUsername(identifier) {
		res.Status = detect.NotFound
		res.Rejected = true
		return res
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := e.newRequest(reqCtx, site, identifier)
	if err != nil {
		res.fail(FailureRequest, err)
		return res
	}

	resp, err := e.client.Do(req)
	if err != nil {
		res.fail(classify(ctx, err), err)
		e.log.WithFields(logrus.Fields{"site": site.Name, "failure": res.Failure}).Debug(err)
		return res
	}
	defer resp.Body.Close()
	res.HTTPStatus = resp.StatusCode

	ex := detect.Exchange{StatusCode: resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		ex.FinalURL = resp.Request.URL.String()
	}
	if site.Detection.Kind.ReadsBody() && site.Method != http.MethodHead {
		body, truncated, err := ReadBody(resp, e.maxBody)
		if err != nil {
			res.fail(classify(ctx, err), err)
			return res
		}
		ex.Body, ex.Truncated = body, truncated
	}

	status, err := evaluate(reqCtx, site.Detection.Bind(identifier), ex)
	if err != nil {
		res.fail(classify(ctx, err), err)
		return res
	}
	res.Status = status
	e.log.WithFields(logrus.Fields{
		"site":   site.Name,
		"status": res.Status,
		"code":   resp.StatusCode,
	}).Debug("probe finished")
	return res
}

// evaluate applies rule to ex. Regex rules run on their own goroutine so a
// slow match gives up the slot at the probe deadline; the match itself
// stops at catalog.MatchTimeout.
func evaluate(ctx context.Context, rule catalog.Rule, ex detect.Exchange) (detect.Status, error) {
	if rule.Kind != catalog.Regex {
		return detect.Evaluate(rule, ex), nil
	}
	done := make(chan detect.Status, 1)
	go func() {
		done <- detect.Evaluate(rule, ex)
	}()
	select {
	case status := <-done:
		return status, nil
	case <-ctx.Done():
		return detect.Unknown, errors.Wrapf(ctx.Err(), "match %s rule", rule.Kind)
	}
}

func (r *Result) fail(kind Failure, err error) {
	if kind == FailureCancelled {
		err = ErrCancelled
	}
	r.Status = detect.Unknown
	r.Failure = kind
	r.Detail = err.Error()
}

func (e *Executor) newRequest(ctx context.Context, site catalog.Site, identifier string) (*http.Request, error) {
	var body io.Reader
	payload := site.RequestBody(identifier)
	if payload != "" {
		body = strings.NewReader(payload)
	}

	req, err := httpx.NewRequest(ctx, site.Method, site.ProbeURL(identifier), body, e.userAgent())
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range site.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
