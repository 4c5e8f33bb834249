// Package httpx builds the single HTTP transport shared by every probe of a run.
package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const DefaultTorProxyURL = "socks5://127.0.0.1:9050"

const defaultMaxRedirects = 10

// Doer lets us accept *http.Client, *Transport or a test double.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Mode int

const (
	Direct Mode = iota
	Proxy
	Tor
)

func (m Mode) String() string {
	switch m {
	case Proxy:
		return "proxy"
	case Tor:
		return "tor"
	default:
		return "direct"
	}
}

type Config struct {
	Mode Mode

	// ProxyURL is required in Proxy mode. TorProxyURL defaults to DefaultTorProxyURL.
	ProxyURL    string
	TorProxyURL string

	UserAgent       string
	RotateUserAgent bool

	MaxRedirects int
}

// Transport is read-only after Build and safe for concurrent use.
type Transport struct {
	client *http.Client
	mode   Mode
	proxy  *ProxyConfig
	agents *Agents
}

// Build validates cfg and returns the transport. Configuration problems are
// reported as ErrTransportConfig. Build never dials: an unreachable proxy
// shows up later, per request, as ErrTransportUnavailable.
func Build(cfg Config) (*Transport, error) {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	base := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:       nil,
		DialContext: base.DialContext,

		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	t := &Transport{
		mode:   cfg.Mode,
		agents: NewAgents(cfg.UserAgent, cfg.RotateUserAgent),
	}

	var rawProxy string
	switch cfg.Mode {
	case Direct:
	case Proxy:
		if cfg.ProxyURL == "" {
			return nil, errors.Wrap(ErrTransportConfig, "proxy mode requires a proxy url")
		}
		rawProxy = cfg.ProxyURL
	case Tor:
		rawProxy = cfg.TorProxyURL
		if rawProxy == "" {
			rawProxy = DefaultTorProxyURL
		}
	default:
		return nil, errors.Wrapf(ErrTransportConfig, "unknown transport mode %d", cfg.Mode)
	}

	if rawProxy != "" {
		pc, err := ParseProxyURL(rawProxy)
		if err != nil {
			return nil, errors.Wrap(ErrTransportConfig, err.Error())
		}
		if cfg.Mode == Tor && !pc.IsSOCKS() {
			return nil, errors.Wrapf(ErrTransportConfig, "tor needs a socks proxy, got %s", pc.Scheme)
		}
		t.proxy = pc

		// Every connection of a proxied transport goes to the proxy first,
		// so a failed dial means the proxy itself is unreachable.
		forward := &unavailableDialer{addr: pc.Address(), dialer: base}
		if pc.IsSOCKS() {
			d, err := proxy.FromURL(pc.dialerURL(), forward)
			if err != nil {
				return nil, errors.Wrap(ErrTransportConfig, err.Error())
			}
			transport.DialContext = contextDial(d)
		} else {
			transport.Proxy = http.ProxyURL(pc.URL)
			transport.DialContext = forward.DialContext
		}
	}

	t.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return errors.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
	return t, nil
}

// Do sends req. The caller controls deadlines through the request context.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

func (t *Transport) Mode() Mode {
	return t.mode
}

// UserAgent returns the configured agent, or a random one when rotating.
func (t *Transport) UserAgent() string {
	return t.agents.Next()
}

func (t *Transport) String() string {
	if t.proxy == nil {
		return t.mode.String()
	}
	return t.mode.String() + " " + t.proxy.URL.Redacted()
}

func NewRequest(ctx context.Context, method, rawURL string, body io.Reader, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// contextDial adapts an x/net/proxy dialer, preferring its context-aware form.
func contextDial(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- dialResult{conn, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-ch; r.conn != nil {
					r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}

func (p *ProxyConfig) dialerURL() *url.URL {
	u := &url.URL{Scheme: p.Scheme, Host: p.Address()}
	if p.Scheme == "socks5h" {
		// x/net/proxy always hands hostnames to the socks5 server.
		u.Scheme = "socks5"
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}
