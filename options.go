package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Option func(*Options)

type Options struct {
	retryCount       int
	retryWaitTime    time.Duration
	retryMaxWaitTime time.Duration
	retryBackoff     func(attempt int) time.Duration
	requestTimeout   time.Duration
	requestInterval  time.Duration
	requestLogger    RequestLogger
	retryPolicy      func(*resty.Response, error) bool
	reauthPolicy     func(status int, body []byte) bool
	slotBusyPolicy   func(status int, body []byte) bool
	requestHeaders   map[string]string
	tokenPath        string
	tokenStore       Store
}

func newClientOptions() *Options {
	return &Options{
		retryCount:       3,
		retryWaitTime:    500 * time.Millisecond,
		retryMaxWaitTime: 3 * time.Second,
		requestTimeout:   30 * time.Second,
		requestInterval:  100 * time.Millisecond,
		requestLogger:    &NoopLogger{},
		retryPolicy:      DefaultRetryPolicy,
		reauthPolicy:     DefaultReauthPolicy,
		slotBusyPolicy:   DefaultSlotBusyPolicy,
		requestHeaders:   map[string]string{},
		tokenPath:        ".token",
	}
}

func WithRetryCount(count int) Option {
	return func(o *Options) {
		if count >= 0 {
			o.retryCount = count
		}
	}
}

func WithRetryWaitTime(waitTime time.Duration) Option {
	return func(o *Options) {
		if waitTime >= 100*time.Millisecond {
			o.retryWaitTime = waitTime
		}
	}
}

func WithRetryMaxWaitTime(maxWaitTime time.Duration) Option {
	return func(o *Options) {
		if maxWaitTime >= 100*time.Millisecond {
			o.retryMaxWaitTime = maxWaitTime
		}
	}
}

// WithRetryBackoff replaces the default exponential backoff with a
// deterministic schedule: the function receives the number of attempts
// made so far and returns the delay before the next one.
func WithRetryBackoff(backoff func(attempt int) time.Duration) Option {
	return func(o *Options) {
		if backoff != nil {
			o.retryBackoff = backoff
		}
	}
}

// WithRequestTimeout sets the timeout applied to each request attempt.
// Values below one second are ignored.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= time.Second {
			o.requestTimeout = timeout
		}
	}
}

// WithRequestInterval sets the minimum spacing between consecutive
// requests, per the server's sequential-request guidance. Zero disables
// the spacing.
func WithRequestInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval >= 0 {
			o.requestInterval = interval
		}
	}
}

func WithRequestLogger(logger RequestLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.requestLogger = logger
		}
	}
}

func WithRetryPolicy(policy func(*resty.Response, error) bool) Option {
	return func(o *Options) {
		if policy != nil {
			o.retryPolicy = policy
		}
	}
}

// WithReauthPolicy sets the predicate that decides whether a response
// means the session token is no longer valid and a single forced re-login
// should be attempted. The default is [DefaultReauthPolicy].
func WithReauthPolicy(policy func(status int, body []byte) bool) Option {
	return func(o *Options) {
		if policy != nil {
			o.reauthPolicy = policy
		}
	}
}

// WithSlotBusyPolicy sets the predicate that decides whether a rejected
// login means all license slots are occupied. The default is
// [DefaultSlotBusyPolicy].
func WithSlotBusyPolicy(policy func(status int, body []byte) bool) Option {
	return func(o *Options) {
		if policy != nil {
			o.slotBusyPolicy = policy
		}
	}
}

func WithRequestHeader(header, value string) Option {
	return func(o *Options) {
		header = strings.TrimSpace(header)

		if header == "" || strings.EqualFold(header, "Content-Type") {
			return
		}

		o.requestHeaders[header] = value
	}
}

// WithTokenPath sets the file the session token is cached in between
// process runs. The default is ".token" in the working directory.
func WithTokenPath(path string) Option {
	return func(o *Options) {
		if path != "" {
			o.tokenPath = path
		}
	}
}

// WithTokenStore replaces the file-backed token cache with a custom
// [Store]. Takes precedence over [WithTokenPath].
func WithTokenStore(store Store) Option {
	return func(o *Options) {
		if store != nil {
			o.tokenStore = store
		}
	}
}

// Validate checks option combinations that cannot be verified when an
// individual option is applied. It runs before the first request.
func (o *Options) Validate() error {
	if o.retryCount < 0 {
		return fmt.Errorf("retryCount must be non-negative")
	}
	if o.retryCount > 100 {
		return fmt.Errorf("retryCount must not exceed 100")
	}
	if o.retryWaitTime < 100*time.Millisecond {
		return fmt.Errorf("retryWaitTime must be at least 100ms")
	}
	if o.retryWaitTime > time.Minute {
		return fmt.Errorf("retryWaitTime must not exceed %v", time.Minute)
	}
	if o.retryMaxWaitTime < 100*time.Millisecond {
		return fmt.Errorf("retryMaxWaitTime must be at least 100ms")
	}
	if o.retryMaxWaitTime > 5*time.Minute {
		return fmt.Errorf("retryMaxWaitTime must not exceed %v", 5*time.Minute)
	}
	if o.retryMaxWaitTime < o.retryWaitTime {
		return fmt.Errorf("retryMaxWaitTime (%v) must be greater than or equal to retryWaitTime (%v)", o.retryMaxWaitTime, o.retryWaitTime)
	}
	if o.requestTimeout < time.Second {
		return fmt.Errorf("requestTimeout must be at least 1s")
	}
	if o.requestTimeout > 5*time.Minute {
		return fmt.Errorf("requestTimeout must not exceed %v", 5*time.Minute)
	}
	if o.requestLogger == nil {
		return fmt.Errorf("requestLogger must not be nil")
	}
	if o.retryPolicy == nil {
		return fmt.Errorf("retryPolicy must not be nil")
	}
	if o.reauthPolicy == nil {
		return fmt.Errorf("reauthPolicy must not be nil")
	}
	if o.slotBusyPolicy == nil {
		return fmt.Errorf("slotBusyPolicy must not be nil")
	}
	if o.tokenStore == nil && o.tokenPath == "" {
		return fmt.Errorf("tokenPath must not be empty")
	}
	return nil
}
