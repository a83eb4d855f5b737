package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

type metrics struct {
	log  io.Writer
	reg  gometrics.Registry
	tick time.Duration
}

var m = &metrics{
	log:  os.Stderr,
	reg:  gometrics.DefaultRegistry,
	tick: time.Duration(60) * time.Second,
}

func startMetrics(tick time.Duration) {
	if tick > 0 {
		m.tick = tick
	}
	m.start()
}

func finalMetrics() {
	m.writeOnce(m.log)
}

func incr(name string, i int64) {
	m.incr(name, i)
}

func decr(name string, i int64) {
	m.decr(name, i)
}

func count(name string) int64 {
	return m.count(name)
}

func (m metrics) start() {
	go gometrics.WriteJSON(m.reg, m.tick, m.log)
}

func (m metrics) writeOnce(w io.Writer) {
	gometrics.WriteJSONOnce(m.reg, w)
}

func (m metrics) incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m metrics) decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

func (m metrics) count(name string) int64 {
	return gometrics.GetOrRegisterCounter(name, m.reg).Count()
}

type metricsHandler struct{}

func (metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	m.writeOnce(w)
	slog.Debug("metrics served", "remote", r.RemoteAddr)
}
