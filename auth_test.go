package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestAuthenticate_ReusesValidToken(t *testing.T) {
	t.Parallel()

	fake := &fakeServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL)

	first, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("first authenticate failed: %v", err)
	}

	second, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("second authenticate failed: %v", err)
	}

	if first != "token-1" || second != "token-1" {
		t.Errorf("expected token-1 reused, got %q then %q", first, second)
	}

	logins, validations, _ := fake.counts()
	if logins != 1 {
		t.Errorf("expected a single login, got %d", logins)
	}

	if validations != 1 {
		t.Errorf("expected the held token validated once before reuse, got %d", validations)
	}

	if !c.IsAuthenticated() {
		t.Error("expected client to report an authenticated session")
	}
}

func TestAuthenticate_SlotBusy(t *testing.T) {
	t.Parallel()

	store := &MemoryStore{}
	fake := &fakeServer{
		loginStatus: http.StatusUnauthorized,
		loginBody:   "presumably already logged in: licence limit exceeded",
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL, WithTokenStore(store))

	_, err := c.Authenticate(context.Background())

	if err == nil {
		t.Fatal("expected error when no license slot is free")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}

	if !authErr.SlotBusy {
		t.Error("expected SlotBusy to be set for a license-limit rejection")
	}

	if c.IsAuthenticated() || c.Token() != "" {
		t.Error("expected no token held after a rejected login")
	}

	if cached, _ := store.Load(); cached != "" {
		t.Errorf("expected nothing persisted after a rejected login, got %q", cached)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	t.Parallel()

	fake := &fakeServer{
		loginStatus: http.StatusUnauthorized,
		loginBody:   "invalid login or password",
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.Authenticate(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}

	if authErr.SlotBusy {
		t.Error("credential rejection must not be reported as a busy slot")
	}

	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", authErr.StatusCode)
	}
}

func TestAuthenticate_EmptyTokenResponse(t *testing.T) {
	t.Parallel()

	fake := &fakeServer{loginStatus: http.StatusOK, loginBody: "  \n"}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.Authenticate(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for an empty token, got %T: %v", err, err)
	}

	if c.IsAuthenticated() {
		t.Error("expected no session after an empty login response")
	}
}

func TestAuthenticate_StaleStoredToken(t *testing.T) {
	t.Parallel()

	store := &MemoryStore{}
	if err := store.Save("stale-token"); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	fake := &fakeServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL, WithTokenStore(store))

	if c.Token() != "stale-token" {
		t.Fatalf("expected the cached token loaded as a candidate, got %q", c.Token())
	}

	token, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token != "token-1" {
		t.Errorf("expected a fresh login to replace the stale token, got %q", token)
	}

	logins, validations, _ := fake.counts()
	if logins != 1 {
		t.Errorf("expected exactly 1 login, got %d", logins)
	}

	if validations != 1 {
		t.Errorf("expected the stale token checked once, got %d validations", validations)
	}

	if cached, _ := store.Load(); cached != "token-1" {
		t.Errorf("expected the fresh token persisted, got %q", cached)
	}
}

func TestAuthenticate_TokenReusedAcrossProcessRuns(t *testing.T) {
	t.Parallel()

	fake := &fakeServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	path := filepath.Join(t.TempDir(), "session.token")
	opts := []Option{
		WithTokenPath(path),
		WithRetryBackoff(func(_ int) time.Duration { return time.Millisecond }),
		WithRequestInterval(0),
	}

	first := New(server.URL, "operator", "secret", opts...)
	if _, err := first.Authenticate(context.Background()); err != nil {
		t.Fatalf("first run authenticate failed: %v", err)
	}

	// A fresh client simulates a new process run sharing the token file.
	second := New(server.URL, "operator", "secret", opts...)
	token, err := second.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("second run authenticate failed: %v", err)
	}

	if token != "token-1" {
		t.Errorf("expected the persisted token reused, got %q", token)
	}

	logins, _, _ := fake.counts()
	if logins != 1 {
		t.Errorf("expected no second login, got %d logins", logins)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	store := &MemoryStore{}
	fake := &fakeServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL, WithTokenStore(store))

	if _, err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("first logout failed: %v", err)
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("second logout failed: %v", err)
	}

	_, _, logouts := fake.counts()
	if logouts != 1 {
		t.Errorf("expected a single remote logout, got %d", logouts)
	}

	if c.Token() != "" || c.IsAuthenticated() {
		t.Error("expected no token after logout")
	}

	if cached, _ := store.Load(); cached != "" {
		t.Errorf("expected token cache cleared, got %q", cached)
	}
}

func TestLogout_RemoteFailureStillClearsLocalState(t *testing.T) {
	t.Parallel()

	store := &MemoryStore{}
	fake := &fakeServer{logoutStatus: http.StatusInternalServerError}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL, WithTokenStore(store), WithRetryCount(0))

	if _, err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout must swallow remote failures, got %v", err)
	}

	if c.Token() != "" || c.IsAuthenticated() {
		t.Error("expected local state cleared despite the remote failure")
	}

	if cached, _ := store.Load(); cached != "" {
		t.Errorf("expected token cache cleared, got %q", cached)
	}
}

// failingStore rejects writes, simulating an unwritable token cache.
type failingStore struct {
	saves int
}

func (s *failingStore) Load() (string, error) { return "", nil }

func (s *failingStore) Save(_ string) error {
	s.saves++
	return &StorageError{Op: "save", Path: "/readonly/.token", Err: errors.New("permission denied")}
}

func (s *failingStore) Clear() error { return nil }

func TestAuthenticate_StorageFailureContinuesInMemory(t *testing.T) {
	t.Parallel()

	store := &failingStore{}
	fake := &fakeServer{}
	server := httptest.NewServer(fake)
	defer server.Close()

	c := newTestClient(t, server.URL, WithTokenStore(store))

	token, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("expected in-memory authentication to succeed, got %v", err)
	}

	if token != "token-1" {
		t.Errorf("expected token-1, got %q", token)
	}

	if store.saves != 1 {
		t.Errorf("expected one attempted save, got %d", store.saves)
	}

	if !c.IsAuthenticated() {
		t.Error("expected the session usable despite the storage failure")
	}
}
