package client

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// DefaultRetryPolicy is the default retry condition used by [Client]. It
// retries on transient connection errors and on the status codes the RMS
// server emits for temporary conditions: 408 (request timeout), 429 (rate
// limit), and 5xx (server errors, including maintenance-window 503s). It
// does not retry on context cancellation, deadline exceeded, or DNS
// resolution failures.
//
// Supply a custom function via [WithRetryPolicy] to override this behaviour.
func DefaultRetryPolicy(r *resty.Response, err error) bool {
	if err != nil {
		// Don't retry on context cancellation or deadline exceeded
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		// Don't retry on DNS resolution errors
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return false
		}

		// Retry on other connection errors
		return true
	}

	switch {
	case r.StatusCode() == http.StatusRequestTimeout:
		return true
	case r.StatusCode() == http.StatusTooManyRequests:
		return true
	case r.StatusCode() >= 500:
		return true
	}
	return false
}
