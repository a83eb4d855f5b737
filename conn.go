package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// session is one authenticated websocket bound to a single topic. Only its
// own two pumps touch it after run starts.
type session struct {
	id       string
	topic    topic
	username string
	ws       websocketManager
	channel  *channel
	limiter  *rate.Limiter // nil when inbound rate limiting is off
	log      *slog.Logger
}

func newSession(ws websocketManager, ch *channel, username string, limiter *rate.Limiter) *session {
	id := uuid.NewString()
	return &session{
		id:       id,
		topic:    ch.topic,
		username: username,
		ws:       ws,
		channel:  ch,
		limiter:  limiter,
		log: slog.Default().With(
			"session", id,
			"user", username,
			"topic", ch.topic.String(),
			"remote", ws.wsRemoteAddr(),
		),
	}
}

func joinedText(username string) string {
	return username + " joined."
}

func leftText(username string) string {
	return username + " left."
}

func messageText(username, payload string) string {
	return username + ": " + payload
}

// run announces the session, pumps in both directions until either side
// stops, then announces departure. The socket is closed when run returns.
// An error means the session never started.
func (s *session) run(ctx context.Context) error {
	// Subscribe before announcing so the peer sees its own join.
	sub, err := s.channel.subscribe()
	if err != nil {
		s.ws.wsWriteClose(websocket.CloseGoingAway, "server shutting down")
		s.ws.wsClose()
		return fmt.Errorf("subscribe to %v: %w", s.topic, err)
	}
	defer s.channel.unsubscribe(sub)

	incr("websockets", 1)
	incr("sessions."+s.topic.String(), 1)
	defer func() {
		decr("websockets", 1)
		decr("sessions."+s.topic.String(), 1)
	}()

	s.log.Info("session started")
	s.announce(joinedText(s.username))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan string, 2)
	go func() {
		s.writer(ctx, sub)
		stopped <- "outbound"
	}()
	go func() {
		s.reader()
		stopped <- "inbound"
	}()

	// Whichever pump stops first takes the other down with it. Closing the
	// socket unblocks a reader; cancel unblocks a writer waiting on sub.
	first := <-stopped
	cancel()
	s.ws.wsClose()
	<-stopped
	s.log.Debug("pumps stopped", "first", first)

	s.announce(leftText(s.username))
	s.log.Info("session ended")
	return nil
}

// announce publishes a lifecycle message. Failure only happens while the
// hub is stopping and is not fatal to the session.
func (s *session) announce(text string) {
	if err := s.channel.publish(text); err != nil {
		s.log.Warn("announcement not published", "text", text, "error", err)
	}
}

func (s *session) reader() {
	for {
		messageType, message, err := s.ws.wsReadMessage()
		if err != nil {
			if isExpectedCloseError(err) {
				s.log.Debug("inbound closed", "error", err)
			} else {
				s.log.Info("inbound read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.log.Debug("non-text frame ends inbound", "type", messageType)
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			incr("conn.ratelimited", 1)
			s.log.Debug("rate limit exceeded, message discarded")
			continue
		}
		incr("conn.recv", 1)
		if err := s.channel.publish(messageText(s.username, string(message))); err != nil {
			s.log.Warn("inbound publish failed", "error", err)
			return
		}
	}
}

func (s *session) writer(ctx context.Context, sub *subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-sub.send:
			if !ok {
				// The channel was closed under us.
				s.ws.wsWriteClose(websocket.CloseGoingAway, "server shutting down")
				return
			}
			s.ws.wsSetWriteDeadline()
			if err := s.ws.wsWriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				if isExpectedCloseError(err) {
					s.log.Debug("outbound closed", "error", err)
				} else {
					s.log.Info("outbound write failed", "error", err)
				}
				return
			}
			incr("conn.send", 1)
		}
	}
}
