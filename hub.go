package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// hub is the process-wide state shared by every connection: one channel per
// topic, built once at startup. The channels map is never written after
// newHub returns, so lookups need no lock; each channel synchronizes itself.
type hub struct {
	channels channels

	mux      sync.Mutex // Protects stopped and orders sessions.Add against Wait
	stopped  bool
	sessions sync.WaitGroup
}

type channels map[topic]*channel

func newHub(capacity int) *hub {
	h := &hub{channels: make(channels, len(topics))}
	for _, t := range topics {
		h.channels[t] = newChannel(t, capacity)
	}
	return h
}

func (h *hub) channel(t topic) (*channel, error) {
	c, ok := h.channels[t]
	if !ok {
		return nil, fmt.Errorf("%w: %v", errUnknownTopic, t)
	}
	return c, nil
}

func (h *hub) publish(t topic, text string) error {
	c, err := h.channel(t)
	if err != nil {
		return err
	}
	return c.publish(text)
}

// track registers a running session. It returns false once the hub is
// stopping; the caller must not start the session in that case.
func (h *hub) track() (done func(), ok bool) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.stopped {
		return nil, false
	}
	h.sessions.Add(1)
	return h.sessions.Done, true
}

// stop closes every channel. Subscriptions end, which in turn ends the
// outbound pump of every session.
func (h *hub) stop() {
	h.mux.Lock()
	h.stopped = true
	h.mux.Unlock()

	for _, c := range h.channels {
		c.close()
	}
}

// shutdown stops the hub and waits for running sessions to finish their
// departure path, or for the timeout.
func (h *hub) shutdown(timeout time.Duration) error {
	slog.Info("stopping hub")
	h.stop()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub stopped")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub stop timed out, sessions still running", "timeout", timeout)
		return context.DeadlineExceeded
	}
}
