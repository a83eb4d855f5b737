package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789"

type testServer struct {
	*httptest.Server
	hub *hub
}

func newTestServer(t *testing.T, configure ...func(*config)) *testServer {
	t.Helper()
	cfg := defaultConfig()
	cfg.JWTSecret = testSecret
	for _, fn := range configure {
		fn(&cfg)
	}
	h := newHub(cfg.ChannelCapacity)
	srv := httptest.NewServer(newHandler(cfg, h, newJWTVerifier(cfg.JWTSecret)))
	t.Cleanup(func() {
		h.stop()
		srv.Close()
	})
	return &testServer{Server: srv, hub: h}
}

func (s *testServer) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + url.QueryEscape(token)
}

func (s *testServer) dial(token string, header http.Header, protocols ...string) (*websocket.Conn, *http.Response, error) {
	dialer := &websocket.Dialer{
		Subprotocols:     protocols,
		HandshakeTimeout: 3 * time.Second,
	}
	return dialer.Dial(s.wsURL(token), header)
}

func (s *testServer) connect(t *testing.T, user, protocol string) *websocket.Conn {
	t.Helper()
	ws, resp, err := s.dial(token(t, user), nil, protocol)
	require.NoError(t, err, "dial %s as %s: %v", protocol, user, resp)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := signToken(testSecret, user, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return tok
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	messageType, message, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(message)
}

func sendText(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(text)))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Message
}

func TestHTML(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<html>")
	assert.Contains(t, string(body), `<option value="geolocation">`)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestUpgradeNegotiatesRequestedProtocol(t *testing.T) {
	srv := newTestServer(t)
	for _, protocol := range []string{"chat", "geolocation"} {
		t.Run(protocol, func(t *testing.T) {
			ws := srv.connect(t, "aaa", protocol)
			assert.Equal(t, protocol, ws.Subprotocol())
			assert.Equal(t, "aaa joined.", readText(t, ws))
		})
	}
}

func TestUpgradeRejectsBadTokens(t *testing.T) {
	srv := newTestServer(t)
	chat, _ := srv.hub.channel(chatTopic)
	observer, err := chat.subscribe()
	require.NoError(t, err)

	expired, err := signToken(testSecret, "mallory", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	forged, err := signToken("not-the-secret", "mallory", time.Now().Add(time.Hour))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"missing":   "",
		"malformed": "not.a.jwt",
		"expired":   expired,
		"forged":    forged,
	} {
		t.Run(name, func(t *testing.T) {
			ws, resp, err := srv.dial(tok, nil, "chat")
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			assert.Nil(t, ws)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, errorMessage(t, resp), "token")
		})
	}

	assert.Empty(t, receiveAll(observer), "a rejected upgrade must never announce a join")
}

func TestUpgradeRejectsUnsupportedProtocol(t *testing.T) {
	srv := newTestServer(t)
	for name, protocols := range map[string][]string{
		"none":  nil,
		"other": {"mqtt"},
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := srv.dial(token(t, "aaa"), nil, protocols...)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestChatScenario(t *testing.T) {
	srv := newTestServer(t)

	conn1 := srv.connect(t, "aaa", "chat")
	assert.Equal(t, "aaa joined.", readText(t, conn1))

	conn2 := srv.connect(t, "bbb", "chat")
	assert.Equal(t, "bbb joined.", readText(t, conn1))
	assert.Equal(t, "bbb joined.", readText(t, conn2))

	sendText(t, conn2, "hello world")
	assert.Equal(t, "bbb: hello world", readText(t, conn1))
	assert.Equal(t, "bbb: hello world", readText(t, conn2))

	conn2.Close()
	assert.Equal(t, "bbb left.", readText(t, conn1))
}

func TestDepartureAfterCloseFrame(t *testing.T) {
	srv := newTestServer(t)

	conn1 := srv.connect(t, "aaa", "geolocation")
	assert.Equal(t, "aaa joined.", readText(t, conn1))
	conn2 := srv.connect(t, "bbb", "geolocation")
	assert.Equal(t, "bbb joined.", readText(t, conn1))

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, conn2.WriteMessage(websocket.CloseMessage, msg))
	assert.Equal(t, "bbb left.", readText(t, conn1))
}

func TestTopicIsolation(t *testing.T) {
	srv := newTestServer(t)

	chat := srv.connect(t, "aaa", "chat")
	assert.Equal(t, "aaa joined.", readText(t, chat))
	geo1 := srv.connect(t, "bbb", "geolocation")
	assert.Equal(t, "bbb joined.", readText(t, geo1))
	geo2 := srv.connect(t, "ccc", "geolocation")
	assert.Equal(t, "ccc joined.", readText(t, geo1))
	assert.Equal(t, "ccc joined.", readText(t, geo2))

	sendText(t, chat, "hello")
	assert.Equal(t, "aaa: hello", readText(t, chat))

	sendText(t, geo1, "48.8566,2.3522")
	assert.Equal(t, "bbb: 48.8566,2.3522", readText(t, geo2))
	assert.Equal(t, "bbb: 48.8566,2.3522", readText(t, geo1))

	sendText(t, chat, "bye")
	assert.Equal(t, "aaa: bye", readText(t, chat))
}

func TestManyClientsSeeSameOrder(t *testing.T) {
	srv := newTestServer(t)
	const numClients = 10

	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		user := fmt.Sprintf("user%d", i)
		conns[i] = srv.connect(t, user, "chat")
		assert.Equal(t, user+" joined.", readText(t, conns[i]))
	}
	for i, ws := range conns {
		sendText(t, ws, fmt.Sprintf("message %d", i))
	}

	var first []string
	for i, ws := range conns {
		var got []string
		for len(got) < numClients {
			text := readText(t, ws)
			if strings.HasSuffix(text, " joined.") {
				continue
			}
			got = append(got, text)
		}
		if i == 0 {
			first = got
			continue
		}
		assert.Equal(t, first, got, "client %d saw a different order", i)
	}
}

func TestPublishEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.connect(t, "aaa", "chat")
	assert.Equal(t, "aaa joined.", readText(t, ws))

	post := func(path, bearer, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "text/plain")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post("/publish/chat", token(t, "bbb"), "via http")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK\n", string(body))
	assert.Equal(t, "bbb: via http", readText(t, ws))

	resp = post("/publish/chat", "", "anonymous")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing token", errorMessage(t, resp))

	resp = post("/publish/weather", token(t, "bbb"), "sunny")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = post("/publish/chat", token(t, "bbb"), "\xff\xfe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.connect(t, "aaa", "chat")
	assert.Equal(t, "aaa joined.", readText(t, ws))

	resp, err := http.Get(srv.URL + "/debug/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var report map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Contains(t, report, "websockets")
	assert.Contains(t, report, "sessions.chat")
	assert.Contains(t, report, "channel.publish")
}

func TestOriginCheck(t *testing.T) {
	srv := newTestServer(t, func(cfg *config) {
		cfg.Origin = "http://maps.example.com"
	})

	_, resp, err := srv.dial(token(t, "aaa"), http.Header{"Origin": {"http://evil.example.com"}}, "chat")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := srv.dial(token(t, "aaa"), http.Header{"Origin": {"http://MAPS.example.com"}}, "chat")
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "aaa joined.", readText(t, ws))
}

func TestShutdownEndsSessions(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.connect(t, "aaa", "chat")
	assert.Equal(t, "aaa joined.", readText(t, ws))

	require.NoError(t, srv.hub.shutdown(2*time.Second))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, resp, err := srv.dial(token(t, "bbb"), nil, "chat")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
