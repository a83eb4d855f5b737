package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/facebookgo/httpdown"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mapshare:", err)
		os.Exit(2)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.LogFormat, cfg.logLevel()))
	if envErr != nil {
		slog.Debug("no .env file loaded, using environment", "error", envErr)
	}

	startMetrics(cfg.MetricsTick)
	h := newHub(cfg.ChannelCapacity)

	// Prepare the stoppable HTTP server
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: newHandler(cfg, h, newJWTVerifier(cfg.JWTSecret)),
	}
	hd := &httpdown.HTTP{
		StopTimeout: cfg.StopTimeout,
		KillTimeout: cfg.KillTimeout,
	}

	// Blocks until SIGTERM or SIGINT.
	slog.Info("listening", "addr", cfg.Addr, "origin", cfg.Origin)
	serveErr := httpdown.ListenAndServe(server, hd)

	// Hijacked websockets are not tracked by the HTTP server; stopping the
	// hub is what ends them.
	if err := h.shutdown(cfg.StopTimeout); err != nil {
		slog.Warn("hub shutdown incomplete", "error", err)
	}
	finalMetrics()
	if serveErr != nil {
		slog.Error("server stopped", "error", serveErr)
		os.Exit(1)
	}
}

func newHandler(cfg config, h *hub, verifier tokenVerifier) http.Handler {
	handler := mux.NewRouter()

	handler.Handle("/ws", newWsHandler(h, verifier, cfg)).Methods(http.MethodGet)
	handler.Handle("/publish/{topic}", publishHandler{h: h, verifier: verifier}).Methods(http.MethodPost)
	handler.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	handler.Handle("/debug/metrics", metricsHandler{}).Methods(http.MethodGet)
	handler.Handle("/", getHandler{}).Methods(http.MethodGet)

	return handler
}
