// Package netutil classifies transport failures of Telegram API calls.
package netutil

import (
	"errors"
	"net"
)

// ShouldRetry reports whether err proves the request never reached Telegram.
// Only connection setup failures qualify: a timeout after the request was
// written may still have delivered the message, so it is not retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}

	return false
}
