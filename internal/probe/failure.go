package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/pkg/errors"

	"github.com/tdh8316/watson/internal/httpx"
)

// Failure names why a probe ended as Unknown.
type Failure string

const (
	FailureNone        Failure = ""
	FailureTimeout     Failure = "timeout"
	FailureConnection  Failure = "connection"
	FailureTLS         Failure = "tls"
	FailureDNS         Failure = "dns"
	FailureUnavailable Failure = "transport_unavailable"
	FailureCancelled   Failure = "cancelled"
	FailureRequest     Failure = "request"
)

// ErrCancelled is the detail of every cancelled result, whether the probe
// never started or was aborted in flight.
var ErrCancelled = errors.New("cancelled")

// Failures lists every failure kind, for metrics and reports.
var Failures = []Failure{
	FailureTimeout, FailureConnection, FailureTLS, FailureDNS,
	FailureUnavailable, FailureCancelled, FailureRequest,
}

// classify maps a transport error to a failure kind. parent is the sweep
// context: when it is done the probe counts as cancelled, not timed out.
func classify(parent context.Context, err error) Failure {
	if parent.Err() != nil {
		return FailureCancelled
	}
	if errors.Is(err, httpx.ErrTransportUnavailable) {
		return FailureUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureDNS
	}

	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	if errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return FailureTLS
	}
	return FailureConnection
}
