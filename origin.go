package main

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// newOriginChecker returns a websocket.Upgrader CheckOrigin func. An empty
// allowed origin accepts every request, matching the permissive CORS setup
// the map frontend is developed against.
func newOriginChecker(allowed string) func(r *http.Request) bool {
	if allowed == "" {
		return func(*http.Request) bool { return true }
	}
	want, _ := normalizeOrigin(allowed)
	return func(r *http.Request) bool {
		got, ok := normalizeOrigin(r.Header.Get("Origin"))
		if ok && got == want {
			return true
		}
		slog.Warn("blocked websocket from disallowed origin", "origin", r.Header.Get("Origin"))
		return false
	}
}
