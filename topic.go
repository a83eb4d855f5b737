package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// topic is one of the fixed broadcast domains. A session is bound to exactly
// one topic, chosen once during the websocket handshake.
type topic int

const (
	chatTopic topic = iota
	geolocationTopic
)

// topics lists every topic in server preference order. It doubles as the
// sub-protocol list offered to clients.
var topics = []topic{chatTopic, geolocationTopic}

func (t topic) String() string {
	switch t {
	case chatTopic:
		return "chat"
	case geolocationTopic:
		return "geolocation"
	}
	return fmt.Sprintf("topic(%d)", int(t))
}

func parseTopic(name string) (topic, error) {
	for _, t := range topics {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownTopic, name)
}

// negotiateTopic selects the topic from the Sec-WebSocket-Protocol values the
// client offered. When a client offers both, server order wins.
func negotiateTopic(r *http.Request) (topic, error) {
	offered := websocket.Subprotocols(r)
	for _, t := range topics {
		for _, p := range offered {
			if p == t.String() {
				return t, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnsupportedProtocol, offered)
}
