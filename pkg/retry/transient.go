package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// IsTransient reports whether err is one of the network conditions worth
// retrying: connection reset, connection refused, timeouts, DNS resolution
// failures, and a peer hanging up mid-response. Any error whose message
// mentions "timeout" also qualifies.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// transientMessages covers errors that lost their type on the way up, e.g.
// after being flattened into a string by a proxy or the engine itself.
var transientMessages = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"socket hang up",
	"no such host",
}
