package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// authState tracks where the client is in the session lifecycle. At most
// one token is active per client, and a held token corresponds to exactly
// one occupied license slot on the server.
type authState int

const (
	stateNoToken authState = iota
	stateAuthenticating
	stateAuthenticated
	stateInvalidated
	stateLoggedOut
)

// Client is an iiko RMS Server API client owning one licensed session.
// All methods are safe for concurrent use; calls are serialized internally
// because the server requires sequential requests.
//
// Multiple independent clients can coexist in one process; each owns its
// configuration, token state, and token cache.
type Client struct {
	baseURL  string
	login    string
	password string
	options  *Options
	http     *resty.Client
	store    Store

	// mu guards the token state, the store, and the whole
	// refresh-execute-reauth sequence of every call.
	mu          sync.Mutex
	state       authState
	token       string
	lastRequest time.Time

	// overridable in tests
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Client for the API at baseURL, authenticating with the
// given credentials. No network traffic happens until the first call; a
// token cached by a previous run is loaded immediately but only trusted
// after it passes server-side validation.
func New(baseURL, login, password string, opts ...Option) *Client {
	options := newClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	store := options.tokenStore
	if store == nil {
		store = NewFileStore(options.tokenPath)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		login:    login,
		password: password,
		options:  options,
		store:    store,
		state:    stateNoToken,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	c.http = c.newHTTPClient()
	c.loadCachedToken()

	return c
}

func (c *Client) newHTTPClient() *resty.Client {
	hc := resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.options.requestTimeout).
		SetRetryCount(c.options.retryCount).
		SetRetryWaitTime(c.options.retryWaitTime).
		SetRetryMaxWaitTime(c.options.retryMaxWaitTime).
		AddRetryCondition(c.options.retryPolicy).
		AddRetryHook(func(r *resty.Response, err error) {
			reason := "transient response"
			if err != nil {
				reason = err.Error()
			} else if r != nil {
				reason = fmt.Sprintf("HTTP %d", r.StatusCode())
			}
			c.options.requestLogger.Warnf("attempt %d failed (%s), retrying", attemptCount(r), reason)
		})

	if backoff := c.options.retryBackoff; backoff != nil {
		hc.SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			return backoff(attemptCount(r)), nil
		})
	}

	for header, value := range c.options.requestHeaders {
		hc.SetHeader(header, value)
	}

	return hc
}

func (c *Client) loadCachedToken() {
	token, err := c.store.Load()
	if err != nil {
		c.options.requestLogger.Warnf("token cache unreadable, reuse across runs disabled: %v", err)
		return
	}
	if token == "" {
		return
	}

	// Candidate only: it must pass validation before first use.
	c.token = token
	c.state = stateAuthenticated
	c.options.requestLogger.Infof("loaded cached session token %s", tokenPreview(token))
}

// Token returns the currently held session token, or "" when none is held.
func (c *Client) Token() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// IsAuthenticated reports whether the client currently holds a session
// token. The token may still fail server-side validation on the next call.
func (c *Client) IsAuthenticated() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateAuthenticated && c.token != ""
}

// Authenticate ensures the client holds a usable session token and returns
// it. A held token that still validates against the server is reused
// without occupying another license slot; otherwise a fresh login is
// performed and the new token is cached.
//
// A *AuthError is returned when the server rejects the credentials or has
// no free license slot.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c == nil {
		return "", errors.New("client is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticate(ctx, false)
}

// Logout releases the license slot and clears the cached token. It is
// idempotent: logging out without a held token is a no-op. A remote
// logout failure is logged and swallowed; local state always ends clean.
// Only a token cache failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logout(ctx)
}

// Session runs fn within an authenticated session and guarantees the
// license slot is released when fn returns, errors, or panics. The logout
// runs even when ctx has been cancelled by the failure that ended fn.
func (c *Client) Session(ctx context.Context, fn func(c *Client) error) (err error) {
	if c == nil {
		return errors.New("client is nil")
	}
	if _, authErr := c.Authenticate(ctx); authErr != nil {
		return authErr
	}

	defer func() {
		if logoutErr := c.Logout(context.WithoutCancel(ctx)); logoutErr != nil && err == nil {
			err = logoutErr
		}
	}()

	return fn(c)
}

// Close releases idle network connections. The session itself is left
// untouched; call [Client.Logout] to release the license slot.
func (c *Client) Close() {
	if c == nil || c.http == nil {
		return
	}
	c.http.GetClient().CloseIdleConnections()
}

// Get issues a GET request with the session token attached.
func (c *Client) Get(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, opts)
}

// PostForm issues a POST request with a form-urlencoded body.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, form, opts)
}

// Put issues a PUT request with a raw XML body. The document is sent
// unmodified with XML content framing.
func (c *Client) Put(ctx context.Context, endpoint string, xmlBody string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, xmlBody, opts)
}

// Delete issues a DELETE request with the session token attached.
func (c *Client) Delete(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, opts)
}

// Do issues a request with the session token attached, refreshing the
// token first if it no longer validates. The body selects the content
// framing: a url.Values body is sent form-urlencoded, a string body is
// sent as application/xml, a nil body sends nothing.
//
// A response matching the configured re-authentication predicate triggers
// exactly one forced re-login and one repeat of the call. Transient
// failures are retried inside the transport; exhaustion surfaces as a
// *RetryError, other client errors as a *APIError.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, opts *RequestOptions) (*Response, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	token := ""
	if opts == nil || !opts.SkipAuth {
		var err error
		if token, err = c.refreshIfNeeded(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.execute(ctx, method, endpoint, body, token, opts)
	if err == nil || token == "" {
		return resp, err
	}

	// Bounded recovery: one forced re-login, one repeat. Not part of the
	// transport's retry budget.
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !c.options.reauthPolicy(apiErr.StatusCode, []byte(apiErr.Body)) {
		return resp, err
	}

	c.options.requestLogger.Warnf("%s %s rejected with HTTP %d, re-authenticating once", method, endpoint, apiErr.StatusCode)
	c.invalidateToken()
	if token, err = c.authenticate(ctx, true); err != nil {
		return nil, err
	}

	return c.execute(ctx, method, endpoint, body, token, opts)
}

// authenticate implements the lifecycle transition into Authenticated.
// Callers must hold c.mu.
func (c *Client) authenticate(ctx context.Context, force bool) (string, error) {
	if err := c.checkReady(); err != nil {
		return "", err
	}

	if c.token != "" && !force {
		if c.validateToken(ctx) {
			c.options.requestLogger.Infof("reusing session token %s", tokenPreview(c.token))
			return c.token, nil
		}
		c.options.requestLogger.Infof("cached session token no longer valid, performing fresh login")
		c.invalidateToken()
	}

	c.state = stateAuthenticating
	c.options.requestLogger.Infof("authenticating against %s", c.baseURL)

	form := url.Values{
		"login": {c.login},
		"pass":  {c.password},
	}
	resp, err := c.execute(ctx, http.MethodPost, "/auth", form, "", nil)
	if err != nil {
		c.state = stateNoToken
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			authErr := &AuthError{
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.Body,
				SlotBusy:   c.options.slotBusyPolicy(apiErr.StatusCode, []byte(apiErr.Body)),
			}
			c.options.requestLogger.Errorf("authentication failed: %v", authErr)
			return "", authErr
		}
		c.options.requestLogger.Errorf("authentication failed: %v", err)
		return "", err
	}

	token := strings.TrimSpace(string(resp.Body))
	if token == "" {
		c.state = stateNoToken
		authErr := &AuthError{StatusCode: resp.StatusCode, Body: "empty token in login response"}
		c.options.requestLogger.Errorf("authentication failed: %v", authErr)
		return "", authErr
	}

	c.token = token
	c.state = stateAuthenticated

	if saveErr := c.store.Save(token); saveErr != nil {
		c.options.requestLogger.Warnf("session continues in memory only, token reuse across runs disabled: %v", saveErr)
	}

	c.options.requestLogger.Infof("authenticated, license slot occupied")
	c.options.requestLogger.Debugf("session token %s", tokenPreview(token))

	return token, nil
}

// validateToken checks the held token with a lightweight request. It never
// returns an error; any failure means the token is unusable. State is not
// mutated here. Callers must hold c.mu.
func (c *Client) validateToken(ctx context.Context) bool {
	if c.token == "" {
		return false
	}

	opts := &RequestOptions{Query: url.Values{"key": {c.token}}, SkipAuth: true}
	resp, err := c.execute(ctx, http.MethodGet, "/corporation/organizations", nil, "", opts)
	if err != nil || resp.StatusCode != http.StatusOK {
		c.options.requestLogger.Debugf("token validation failed: %v", errTokenInvalid)
		return false
	}

	c.options.requestLogger.Debugf("token validation passed")
	return true
}

// refreshIfNeeded returns a token that just passed validation, forcing a
// re-login when the held one is dead. Every outbound call goes through
// here, so no request is ever attempted with a known-dead token. Callers
// must hold c.mu.
func (c *Client) refreshIfNeeded(ctx context.Context) (string, error) {
	if c.validateToken(ctx) {
		return c.token, nil
	}

	if c.token != "" {
		c.options.requestLogger.Infof("session token no longer valid, re-authenticating")
		c.invalidateToken()
	}
	return c.authenticate(ctx, true)
}

// logout implements the transition into LoggedOut. Callers must hold c.mu.
func (c *Client) logout(ctx context.Context) error {
	if c.token == "" {
		c.options.requestLogger.Debugf("no session token held, logout skipped")
		c.state = stateLoggedOut
		return nil
	}

	c.options.requestLogger.Infof("logging out, releasing license slot")

	opts := &RequestOptions{Query: url.Values{"key": {c.token}}, SkipAuth: true}
	if _, err := c.execute(ctx, http.MethodGet, "/logout", nil, "", opts); err != nil {
		c.options.requestLogger.Warnf("remote logout failed, releasing local session anyway: %v", err)
	} else {
		c.options.requestLogger.Infof("logged out")
	}

	c.token = ""
	c.state = stateLoggedOut

	if err := c.store.Clear(); err != nil {
		c.options.requestLogger.Warnf("token cache not cleared: %v", err)
		return err
	}
	return nil
}

// invalidateToken drops the held token from memory and the cache. Callers
// must hold c.mu.
func (c *Client) invalidateToken() {
	c.token = ""
	c.state = stateInvalidated
	if err := c.store.Clear(); err != nil {
		c.options.requestLogger.Warnf("token cache not cleared: %v", err)
	}
}

// execute performs one API call through the retrying transport. The token,
// when non-empty, is attached as the "key" query parameter per the
// server's convention. Callers must hold c.mu.
func (c *Client) execute(ctx context.Context, method, endpoint string, body any, token string, opts *RequestOptions) (*Response, error) {
	c.pace()
	defer func() { c.lastRequest = c.now() }()

	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := c.http.R().SetContext(ctx)

	if opts != nil {
		if len(opts.Query) > 0 {
			req.SetQueryParamsFromValues(opts.Query)
		}
		for header, value := range opts.Headers {
			if !strings.EqualFold(header, "Content-Type") {
				req.SetHeader(header, value)
			}
		}
	}
	if token != "" {
		req.SetQueryParam("key", token)
	}

	switch b := body.(type) {
	case nil:
	case url.Values:
		req.SetHeader("Content-Type", "application/x-www-form-urlencoded")
		req.SetFormDataFromValues(b)
	case string:
		req.SetHeader("Content-Type", "application/xml")
		req.SetBody(b)
	default:
		return nil, fmt.Errorf("unsupported request body type %T", body)
	}

	callID := uuid.NewString()
	c.options.requestLogger.Infof("%s %s [call %s]", method, endpoint, callID)

	resp, err := req.Execute(method, endpoint)
	return c.shapeResult(method, endpoint, callID, resp, err)
}

// shapeResult classifies the transport outcome into the error taxonomy:
// success passes through, exhausted transient failures become *RetryError,
// deadline overruns become *TimeoutError, remaining client errors become
// *APIError.
func (c *Client) shapeResult(method, endpoint, callID string, resp *resty.Response, err error) (*Response, error) {
	attempts := attemptCount(resp)

	if err != nil {
		c.options.requestLogger.Errorf("%s %s failed after %d attempt(s) [call %s]: %v", method, endpoint, attempts, callID, err)
		if isTimeout(err) {
			return nil, &TimeoutError{Err: err}
		}
		if c.options.retryPolicy(resp, err) {
			return nil, &RetryError{Attempts: attempts, Err: err}
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	status := resp.StatusCode()
	if resp.IsSuccess() {
		c.options.requestLogger.Infof("%s %s -> HTTP %d in %d attempt(s) [call %s]", method, endpoint, status, attempts, callID)
		c.options.requestLogger.Debugf("response body: %s", bodyPreview(resp.Body()))
		return &Response{StatusCode: status, Body: resp.Body(), Header: resp.Header()}, nil
	}

	c.options.requestLogger.Errorf("%s %s -> HTTP %d after %d attempt(s) [call %s]", method, endpoint, status, attempts, callID)

	apiErr := &APIError{StatusCode: status, Body: resp.String()}
	if c.options.retryPolicy(resp, nil) {
		// Still transient after the last attempt: the budget ran out.
		return nil, &RetryError{Attempts: attempts, Err: apiErr}
	}
	return nil, apiErr
}

// checkReady verifies the client can issue requests: a base URL is set
// and the resolved options are coherent.
func (c *Client) checkReady() error {
	if c.baseURL == "" {
		return errors.New("base URL must be set")
	}
	if err := c.options.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// pace enforces the minimum spacing between consecutive requests required
// by the server's sequential-request guidance. Callers must hold c.mu.
func (c *Client) pace() {
	if c.options.requestInterval <= 0 || c.lastRequest.IsZero() {
		return
	}
	if gap := c.options.requestInterval - c.now().Sub(c.lastRequest); gap > 0 {
		c.sleep(gap)
	}
}

func attemptCount(r *resty.Response) int {
	if r != nil && r.Request != nil {
		return r.Request.Attempt
	}
	return 1
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func tokenPreview(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

func bodyPreview(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
