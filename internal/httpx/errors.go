package httpx

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

var (
	// ErrTransportConfig means the transport could not be built. It is fatal.
	ErrTransportConfig = errors.New("invalid transport configuration")

	// ErrTransportUnavailable means the configured proxy or Tor endpoint
	// could not be reached. It is reported per request.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// UnavailableError is returned when dialing the proxy itself fails.
type UnavailableError struct {
	Addr string
	Err  error
}

func (e *UnavailableError) Error() string {
	return "proxy " + e.Addr + " unreachable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrTransportUnavailable
}

// unavailableDialer dials the proxy and marks connection failures as
// UnavailableError. Context cancellation is passed through untouched.
type unavailableDialer struct {
	addr   string
	dialer *net.Dialer
}

func (d *unavailableDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *unavailableDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, network, addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &UnavailableError{Addr: d.addr, Err: err}
	}
	return conn, nil
}
