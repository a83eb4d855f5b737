// Command mapshare is the live broadcast hub behind the map sharing app:
// authenticated users exchange chat lines and GPS positions over websockets.
//
//	JWT_SECRET=... mapshare -addr=:8081
//
// Everything is as ephemeral as can be. A message is sent to the sessions
// connected at that moment (if any) and then forgotten.
//
// Connect by opening a websocket to /ws with a token in the query string
// and one of the sub-protocols "chat" or "geolocation":
//
//	new WebSocket("ws://localhost:8081/ws?token=" + jwt, ["chat"])
//
// The token is an HS256 JWT whose "sub" claim is the username. The
// sub-protocol picks the topic; the two topics never see each other's
// traffic.
//
// On connect every session of the topic, including the new one, receives
// "<user> joined.". Each text frame sent is re-published to the topic as
// "<user>: <text>", and on disconnect "<user> left." is published.
// Geolocation payloads are "lat,lng" by convention of the frontend but are
// not inspected here.
//
// Publish without a websocket by POSTing plain text with a bearer token.
//
//	curl localhost:8081/publish/chat -H "Authorization: Bearer $JWT" -d "Hello"
//
// GET / serves a small HTML client for trying things out.
package main

import (
	"html/template"
)

type templateArgs struct {
	Topics []string
}

var webTemplate = template.Must(template.New("webTemplate").Parse(`<!DOCTYPE html>
<html>
<head>
<title>mapshare</title>
<style type="text/css">
body { font-family: sans-serif; margin: 0; padding: 0.5em; background: gray; }
#log { background: white; padding: 0.5em; height: 70vh; overflow: auto; }
form { margin: 0.5em 0; }
</style>
</head>
<body>
<form id="connect">
    <input type="text" id="token" size="48" placeholder="token"/>
    <select id="topic">{{range .Topics}}<option value="{{.}}">{{.}}</option>{{end}}</select>
    <input type="submit" value="Connect" />
</form>
<div id="log"></div>
<form id="form">
    <input type="submit" value="Send" />
    <input type="text" id="msg" size="64"/>
</form>
<script type="text/javascript">
    var conn;
    var log = document.getElementById("log");

    function appendLog(text, bold) {
        var d = document.createElement("div");
        if (bold) {
            var b = document.createElement("b");
            b.textContent = text;
            d.appendChild(b);
        } else {
            d.textContent = text;
        }
        var doScroll = log.scrollTop == log.scrollHeight - log.clientHeight;
        log.appendChild(d);
        if (doScroll) {
            log.scrollTop = log.scrollHeight - log.clientHeight;
        }
    }

    document.getElementById("connect").onsubmit = function() {
        if (conn) {
            conn.close();
        }
        var scheme = location.protocol == "https:" ? "wss://" : "ws://";
        var token = encodeURIComponent(document.getElementById("token").value);
        var topic = document.getElementById("topic").value;
        conn = new WebSocket(scheme + location.host + "/ws?token=" + token, [topic]);
        conn.onopen = function() {
            appendLog("Connected to " + conn.protocol + ".", true);
        };
        conn.onclose = function() {
            appendLog("Connection closed.", true);
        };
        conn.onmessage = function(evt) {
            appendLog(evt.data, false);
        };
        return false;
    };

    document.getElementById("form").onsubmit = function() {
        var msg = document.getElementById("msg");
        if (!conn || !msg.value) {
            return false;
        }
        conn.send(msg.value);
        msg.value = "";
        return false;
    };
</script>
</body>
</html>
`))
