package websocket

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Path is where the Listener is mounted by convention.
const Path = "/sync"

// Listener accepts the companion's connection. It is an http.Handler and a
// peer.Channel; a new connection replaces the previous one.
type Listener struct {
	*transport

	token    string
	upgrader websocket.Upgrader
}

// NewListener creates a Listener. A non-empty token must be presented by the
// dialer as "Authorization: Bearer <token>".
func NewListener(token string, logger *slog.Logger) *Listener {
	return &Listener{
		transport: newTransport(logger),
		token:     token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if l.isClosed() {
		http.Error(w, "sync channel closed", http.StatusServiceUnavailable)
		return
	}
	if l.token != "" {
		want := "Bearer " + l.token
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(authHeader)), []byte(want)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("sync upgrade failed", "error", err)
		return
	}

	// The handler goroutine owns the connection until it fails.
	l.attach(conn)
}
