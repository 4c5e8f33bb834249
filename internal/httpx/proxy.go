package httpx

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var supportedProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks4":  true,
	"socks4a": true,
	"socks5":  true,
	"socks5h": true,
}

// ProxyConfig is a parsed and validated proxy URL.
type ProxyConfig struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
}

// ParseProxyURL accepts http, https, socks4, socks4a, socks5 and socks5h
// URLs. A missing scheme means http; a missing port gets the scheme default.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty proxy url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid proxy url")
	}

	scheme := strings.ToLower(u.Scheme)
	if !supportedProxySchemes[scheme] {
		return nil, errors.Errorf("unsupported proxy scheme %q (supported: http, https, socks4, socks4a, socks5, socks5h)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.New("proxy url missing host")
	}
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	pc := &ProxyConfig{
		Scheme: scheme,
		Host:   host,
		Port:   port,
	}
	if u.User != nil {
		pc.Username = u.User.Username()
		pc.Password, _ = u.User.Password()
	}
	u.Scheme = scheme
	u.Host = pc.Address()
	pc.URL = u
	return pc, nil
}

func (p *ProxyConfig) IsSOCKS() bool {
	return strings.HasPrefix(p.Scheme, "socks")
}

func (p *ProxyConfig) Address() string {
	return net.JoinHostPort(p.Host, p.Port)
}
