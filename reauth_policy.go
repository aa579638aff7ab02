package client

import (
	"net/http"
	"strings"
)

// DefaultReauthPolicy is the default predicate used by [Client] to decide
// whether a response means the session token has expired or been revoked.
// It treats HTTP 401 as the re-authentication signal; any other client
// error is an ordinary request failure.
//
// The server's exact wire signal is deployment-specific. Supply a custom
// predicate via [WithReauthPolicy] if your server reports dead tokens
// differently.
func DefaultReauthPolicy(status int, _ []byte) bool {
	return status == http.StatusUnauthorized
}

// DefaultSlotBusyPolicy is the default predicate used by [Client] to
// decide whether a rejected login means every license slot is occupied,
// as opposed to bad credentials. It matches the license-related phrases
// the server is known to use in its error body.
//
// Supply a custom predicate via [WithSlotBusyPolicy] to override it.
func DefaultSlotBusyPolicy(_ int, body []byte) bool {
	msg := strings.ToLower(string(body))
	return strings.Contains(msg, "licen") ||
		strings.Contains(msg, "already logged in") ||
		strings.Contains(msg, "user limit")
}
