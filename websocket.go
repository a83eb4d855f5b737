package main

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

type websocketManager interface {
	wsReadMessage() (int, []byte, error)
	wsSetWriteDeadline()
	wsWriteMessage(int, []byte) error
	wsWriteClose(code int, text string)
	wsClose()
	wsRemoteAddr() string
}

type websocketInteractor struct {
	ws *websocket.Conn
}

func (w websocketInteractor) wsReadMessage() (messageType int, p []byte, err error) {
	return w.ws.ReadMessage()
}

func (w websocketInteractor) wsSetWriteDeadline() {
	w.ws.SetWriteDeadline(time.Now().Add(writeWait))
}

func (w websocketInteractor) wsWriteMessage(messageType int, payload []byte) error {
	return w.ws.WriteMessage(messageType, payload)
}

// wsWriteClose sends a close frame. Failure is ignored: the socket is about
// to be closed anyway.
func (w websocketInteractor) wsWriteClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	w.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (w websocketInteractor) wsClose() {
	w.ws.Close()
}

func (w websocketInteractor) wsRemoteAddr() string {
	return w.ws.RemoteAddr().String()
}

// isExpectedCloseError reports whether err is the ordinary end of a
// connection rather than something worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
