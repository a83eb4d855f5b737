package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

type config struct {
	Addr            string
	Origin          string
	JWTSecret       string
	ChannelCapacity int
	RateLimit       float64 // inbound frames per second per session, 0 disables
	RateBurst       int
	StopTimeout     time.Duration
	KillTimeout     time.Duration
	MetricsTick     time.Duration
	LogFormat       string
	LogLevel        string
}

func defaultConfig() config {
	return config{
		Addr:            "127.0.0.1:8081",
		ChannelCapacity: 100,
		RateBurst:       5,
		StopTimeout:     10 * time.Second,
		KillTimeout:     1 * time.Second,
		MetricsTick:     60 * time.Second,
		LogFormat:       "text",
		LogLevel:        "debug",
	}
}

// loadConfig layers defaults, then the environment, then command line flags.
func loadConfig(args []string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()
	cfg.applyEnv(getenv)

	fs := flag.NewFlagSet("mapshare", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http service address")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "websocket server checks Origin headers against this scheme://host[:port]")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret used to verify tokens")
	fs.IntVar(&cfg.ChannelCapacity, "channel-capacity", cfg.ChannelCapacity, "messages buffered per subscriber before the oldest is dropped")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "inbound messages per second per session (0 disables)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "inbound message burst per session")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "stop timeout")
	fs.DurationVar(&cfg.KillTimeout, "kill-timeout", cfg.KillTimeout, "kill timeout")
	fs.DurationVar(&cfg.MetricsTick, "metrics.tick", cfg.MetricsTick, "metrics: duration between reports")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (cfg *config) applyEnv(getenv func(string) string) {
	if v := getenv("MAPSHARE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("MAPSHARE_ORIGIN"); v != "" {
		cfg.Origin = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := getenv("MAPSHARE_CHANNEL_CAPACITY"); v != "" {
		cfg.ChannelCapacity = parseIntValue(v, cfg.ChannelCapacity)
	}
	if v := getenv("MAPSHARE_RATE_LIMIT"); v != "" {
		cfg.RateLimit = parseFloatValue(v, cfg.RateLimit)
	}
	if v := getenv("MAPSHARE_RATE_BURST"); v != "" {
		cfg.RateBurst = parseIntValue(v, cfg.RateBurst)
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (cfg config) validate() error {
	var errs []error
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET (or -jwt-secret) must be set"))
	}
	if cfg.ChannelCapacity < 1 {
		errs = append(errs, fmt.Errorf("channel capacity must be positive, got %d", cfg.ChannelCapacity))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", cfg.RateLimit))
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate burst must be positive, got %d", cfg.RateBurst))
	}
	if cfg.Origin != "" {
		if _, ok := normalizeOrigin(cfg.Origin); !ok {
			errs = append(errs, fmt.Errorf("origin %q is not scheme://host[:port]", cfg.Origin))
		}
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", cfg.LogFormat))
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (cfg config) logLevel() slog.Level {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseFloatValue(value string, defaultValue float64) float64 {
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		return parsed
	}
	return defaultValue
}
