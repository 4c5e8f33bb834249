// Package scrape collects email addresses from profile pages of found accounts.
package scrape

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/watson/internal/httpx"
	"github.com/tdh8316/watson/internal/logging"
	"github.com/tdh8316/watson/internal/probe"
)

const DefaultConcurrency = 10

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

type Options struct {
	Concurrency  int
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    func() string
	Logger       logrus.FieldLogger
}

type Scraper struct {
	client httpx.Doer
	opts   Options
}

func New(client httpx.Doer, opts Options) *Scraper {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = probe.DefaultMaxBodyBytes
	}
	if opts.UserAgent == nil {
		opts.UserAgent = func() string { return httpx.DefaultUserAgent }
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Scraper{client: client, opts: opts}
}

// Scrape fetches the profile page of every Found result and returns the
// addresses found on each, keyed by site name. Sites without addresses or
// whose page could not be fetched are absent from the map.
func (s *Scraper) Scrape(ctx context.Context, results []probe.Result) map[string][]string {
	sem := make(chan struct{}, s.opts.Concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string][]string)

	for _, res := range results {
		if !res.Found() {
			continue
		}
		wg.Add(1)

		go func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			emails, err := s.fetch(ctx, res.URL)
			if err != nil {
				s.opts.Logger.WithField("site", res.Site).Debugf("scrape failed: %v", err)
				return
			}
			if len(emails) == 0 {
				return
			}
			mu.Lock()
			out[res.Site] = emails
			mu.Unlock()
		}()
	}

	wg.Wait()
	return out
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := httpx.NewRequest(ctx, http.MethodGet, pageURL, nil, s.opts.UserAgent())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("unexpected status %s", resp.Status)
	}

	body, _, err := probe.ReadBody(resp, s.opts.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	return Extract(body)
}

// Extract returns the email addresses in an HTML document: mailto links and
// addresses in the text or markup. Results are lower-cased, sorted and unique.
func Extract(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}

	seen := make(map[string]struct{})
	add := func(s string) {
		for _, m := range emailPattern.FindAllString(s, -1) {
			seen[strings.ToLower(m)] = struct{}{}
		}
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		addr := href[7:]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		add(addr)
	})
	add(doc.Text())

	emails := make([]string, 0, len(seen))
	for e := range seen {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails, nil
}
