package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/papercomputeco/voicenotes/pkg/utils"
)

const (
	defaultRetryInterval = 5 * time.Second
	handshakeTimeout     = 10 * time.Second
)

// Dialer connects to a Listener and redials whenever the connection drops.
type Dialer struct {
	*transport

	url           string
	token         string
	retryInterval time.Duration
	dialer        websocket.Dialer
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithRetryInterval sets the pause between connection attempts.
func WithRetryInterval(d time.Duration) DialerOption {
	return func(dl *Dialer) {
		dl.retryInterval = d
	}
}

// WithToken sets the pairing token presented to the Listener.
func WithToken(token string) DialerOption {
	return func(dl *Dialer) {
		dl.token = token
	}
}

// NewDialer creates a Dialer for a ws:// or wss:// url. Call Run to connect.
func NewDialer(url string, logger *slog.Logger, opts ...DialerOption) *Dialer {
	d := &Dialer{
		transport:     newTransport(logger),
		url:           url,
		retryInterval: defaultRetryInterval,
		dialer:        websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run keeps a connection to the Listener until ctx ends or the Dialer is
// closed. Failed attempts are retried after the retry interval.
func (d *Dialer) Run(ctx context.Context) error {
	header := http.Header{"User-Agent": {utils.UserAgent()}}
	if d.token != "" {
		header.Set(authHeader, "Bearer "+d.token)
	}

	for {
		conn, _, err := d.dialer.DialContext(ctx, d.url, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Debug("sync dial failed", "url", d.url, "error", err)
		} else {
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			d.attach(conn)
			stop()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-time.After(d.retryInterval):
		}
	}
}
