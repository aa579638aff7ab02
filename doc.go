// Package client provides an HTTP client for the iiko RMS Server API.
//
// The client wraps [github.com/go-resty/resty/v2] with automatic retries,
// persistent session-token caching, and pluggable logging. The server
// licenses a fixed number of concurrent sessions per account: every login
// occupies a license slot and every logout releases one. The client is
// built around that constraint: it reuses a cached token for as long as
// the server accepts it, and it guarantees slot release when a session
// ends.
//
// # Basic Usage
//
//	c := client.New("https://server.example/resto/api", "login", "password",
//	    client.WithRetryCount(5),
//	)
//	defer c.Close()
//
//	err := c.Session(ctx, func(c *client.Client) error {
//	    resp, err := c.Get(ctx, "/nomenclature", nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(string(resp.Body))
//	    return nil
//	})
//
// [Client.Session] authenticates on entry and logs out on every exit path,
// including errors and panics inside the callback. Callers that need finer
// control can use [Client.Authenticate] and [Client.Logout] directly.
//
// # Configuration
//
// All configuration is supplied as [Option] functions passed to [New].
// Invalid values are silently ignored and the default is retained.
//
// # Token Caching
//
// On a successful login the session token is written to a plain-text file
// ([FileStore], path set with [WithTokenPath]) and reloaded by later
// process runs. A reloaded token is validated against the server before
// first use; a stale token triggers a fresh login transparently. Supply
// [WithTokenStore] to cache tokens elsewhere, or a [MemoryStore] to
// disable cross-run reuse.
//
// # Retry Behaviour
//
// [DefaultRetryPolicy] retries on HTTP 408, 429, and 5xx responses, and
// on transient connection errors. Context cancellation,
// deadline exceeded, and DNS resolution errors are never retried. Supply
// a custom function via [WithRetryPolicy] to override this behaviour, and
// [WithRetryBackoff] to replace the default exponential backoff with a
// deterministic schedule.
//
// Independently of transport retries, a response that signals an expired
// or revoked token ([DefaultReauthPolicy], HTTP 401) causes exactly one
// forced re-login and one repeat of the rejected call.
//
// # Sequential Requests
//
// The server requires requests to be issued sequentially, not
// concurrently. The client serializes all calls internally and keeps a
// minimum spacing between consecutive requests ([WithRequestInterval]).
// Concurrent callers queue; they never interleave.
//
// # Logging
//
// Implement [RequestLogger] and supply it via [WithRequestLogger] to
// integrate with your logging library, or use [SlogLogger] for log/slog.
// The default [NoopLogger] discards all log output. Full token values are
// only ever logged at debug severity; ensure your implementation redacts
// them before persisting logs.
package client
