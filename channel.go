package main

import (
	"sync"
)

// channel fans published text out to every subscription registered at the
// time of the publish. Nothing is retained for later subscribers.
//
// Each subscription owns a bounded buffer. When a buffer is full the oldest
// message in it is discarded, so a slow reader never blocks a publisher.
type channel struct {
	topic    topic
	capacity int

	mux           sync.Mutex // Protects subscriptions and closed
	subscriptions subscriptions
	closed        bool
}

type subscriptions map[*subscription]interface {
}

type subscription struct {
	send    chan string
	dropped int // guarded by the owning channel's mux
}

func newChannel(t topic, capacity int) *channel {
	if capacity < 1 {
		capacity = 1
	}
	return &channel{
		topic:         t,
		capacity:      capacity,
		subscriptions: make(subscriptions),
	}
}

// subscribe returns a subscription that observes every publish made after
// it returns, until it is unsubscribed or the channel is closed.
func (c *channel) subscribe() (*subscription, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return nil, errChannelClosed
	}
	sub := &subscription{send: make(chan string, c.capacity)}
	c.subscriptions[sub] = nil
	return sub, nil
}

// unsubscribe removes sub and closes its buffer. It is a no-op for a
// subscription that is already gone.
func (c *channel) unsubscribe(sub *subscription) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if _, ok := c.subscriptions[sub]; ok {
		close(sub.send)
		delete(c.subscriptions, sub)
	}
}

// publish delivers text to the current subscriptions. Publishing with no
// subscriptions succeeds and does nothing.
func (c *channel) publish(text string) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return errChannelClosed
	}
	incr("channel.publish", 1)
	for sub := range c.subscriptions {
		c.deliver(sub, text)
	}
	return nil
}

// deliver must be called with c.mux held. Only publish writes to sub.send,
// so after evicting one message the retry has room unless the reader raced
// us, in which case it also has room.
func (c *channel) deliver(sub *subscription, text string) {
	for {
		select {
		case sub.send <- text:
			return
		default:
		}
		select {
		case <-sub.send:
			sub.dropped++
			incr("channel.dropped", 1)
		default:
		}
	}
}

// close ends every subscription and refuses further subscribes and
// publishes.
func (c *channel) close() {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subscriptions {
		close(sub.send)
		delete(c.subscriptions, sub)
	}
}

func (c *channel) len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.subscriptions)
}

func (c *channel) droppedFor(sub *subscription) int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return sub.dropped
}
