package client

import (
	"net/http"
	"net/url"
	"time"
)

// RequestOptions carries the per-call overrides recognized by the request
// methods on [Client]. A nil *RequestOptions means no overrides.
type RequestOptions struct {
	// Query is appended to the request URL. The "key" parameter is
	// reserved for the session token and is overwritten if set here.
	Query url.Values

	// Headers are added to the request. Content-Type is owned by the
	// body kind and cannot be overridden here.
	Headers map[string]string

	// Timeout overrides the client-wide request timeout for this call
	// only. Zero means no override.
	Timeout time.Duration

	// SkipAuth issues the call without a session token. Used by the
	// login flow itself; rarely useful to callers.
	SkipAuth bool
}

// Response is the raw result of an API call. Bodies are passed through
// unparsed; interpreting the server's XML or JSON payloads is up to the
// caller.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// String returns the response body as text.
func (r *Response) String() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}
