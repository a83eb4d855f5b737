package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// wsHandler is the upgrade gate: it authenticates the request, resolves the
// topic from the offered sub-protocols, and only then upgrades. Every
// rejection happens before the handshake, so it is a plain HTTP error.
type wsHandler struct {
	h        *hub
	verifier tokenVerifier
	upgrader *websocket.Upgrader
	rate     rate.Limit
	burst    int
}

func newWsHandler(h *hub, verifier tokenVerifier, cfg config) wsHandler {
	return wsHandler{
		h:        h,
		verifier: verifier,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newOriginChecker(cfg.Origin),
		},
		rate:  rate.Limit(cfg.RateLimit),
		burst: cfg.RateBurst,
	}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on a websocket handshake, so the token
	// travels in the query string.
	c, err := wsh.verifier.verify(r.URL.Query().Get("token"))
	if err != nil {
		incr("auth.rejected", 1)
		slog.Warn("websocket rejected", "remote", r.RemoteAddr, "error", err)
		sendError(w, err)
		return
	}
	t, err := negotiateTopic(r)
	if err != nil {
		incr("upgrade.rejected", 1)
		slog.Warn("websocket rejected", "remote", r.RemoteAddr, "user", c.Subject, "error", err)
		sendError(w, err)
		return
	}
	ch, err := wsh.h.channel(t)
	if err != nil {
		incr("upgrade.rejected", 1)
		sendError(w, err)
		return
	}
	done, ok := wsh.h.track()
	if !ok {
		incr("upgrade.rejected", 1)
		sendError(w, errChannelClosed)
		return
	}
	defer done()

	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", t.String())
	ws, err := wsh.upgrader.Upgrade(w, r, header)
	if err != nil {
		// The upgrader has already replied.
		incr("upgrade.rejected", 1)
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "user", c.Subject, "error", err)
		return
	}

	s := newSession(websocketInteractor{ws: ws}, ch, c.Subject, wsh.limiter())
	if err := s.run(r.Context()); err != nil {
		// Too late for an HTTP status; the socket is already closed.
		s.log.Error("session failed after upgrade", "error", err)
	}
}

func (wsh wsHandler) limiter() *rate.Limiter {
	if wsh.rate <= 0 {
		return nil
	}
	return rate.NewLimiter(wsh.rate, wsh.burst)
}

// publishHandler lets an authenticated HTTP client post one message to a
// topic, attributed to the token's subject like a websocket message.
type publishHandler struct {
	h        *hub
	verifier tokenVerifier
}

func (ph publishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := ph.verifier.verify(bearerToken(r))
	if err != nil {
		incr("auth.rejected", 1)
		sendError(w, err)
		return
	}
	t, err := parseTopic(mux.Vars(r)["topic"])
	if err != nil {
		sendError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, fmt.Errorf("%w: unable to read POST body", errBadRequest))
		return
	}
	if !utf8.Valid(body) {
		sendError(w, fmt.Errorf("%w: message must be valid UTF-8", errBadRequest))
		return
	}
	if err := ph.h.publish(t, messageText(c.Subject, string(body))); err != nil {
		sendError(w, err)
		return
	}
	w.Write([]byte("OK\n"))
}

type getHandler struct{}

func (getHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.String())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := webTemplate.Execute(w, templateArgs{Topics: names}); err != nil {
		slog.Error("failed to render client page", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}
