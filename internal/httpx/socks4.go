package httpx

import (
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
	"h12.io/socks"
)

func init() {
	proxy.RegisterDialerType("socks4", newSOCKS4)
	proxy.RegisterDialerType("socks4a", newSOCKS4)
}

// socks4Timeout bounds the proxy dial and the CONNECT handshake.
const socks4Timeout = 30 * time.Second

// socks4Dialer speaks SOCKS4 and SOCKS4a through h12.io/socks. With socks4a
// hostnames are resolved by the proxy. The library dials the proxy on its
// own, so a failed dial of the proxy address is marked unavailable here.
type socks4Dialer struct {
	addr string
	dial func(network, addr string) (net.Conn, error)
}

func newSOCKS4(u *url.URL, _ proxy.Dialer) (proxy.Dialer, error) {
	uri := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		RawQuery: url.Values{"timeout": {socks4Timeout.String()}}.Encode(),
	}
	return &socks4Dialer{addr: u.Host, dial: socks.Dial(uri.String())}, nil
}

func (d *socks4Dialer) Dial(network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, errors.Errorf("socks4: unsupported network %q", network)
	}
	conn, err := d.dial(network, addr)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, &UnavailableError{Addr: d.addr, Err: err}
		}
		return nil, errors.Wrap(err, "socks4")
	}
	return conn, nil
}
