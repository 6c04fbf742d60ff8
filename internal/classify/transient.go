package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// transientSignatures is the allow-list of network failure text that justifies
// an automatic retry. Anything outside this list propagates to the caller.
var transientSignatures = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"unexpected eof",
	"tls handshake timeout",
}

// IsTransientNetwork reports whether err looks like a transient network
// failure worth retrying automatically. Context cancellation is never
// transient; the caller asked to stop.
func IsTransientNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// A bare EOF on a request that expected a response means the peer
	// dropped the connection.
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	message := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(message, sig) {
			return true
		}
	}
	return false
}
