package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/omochice/socketchat/internal/transport"
)

// Dialer opens client-side WebSocket connections.
type Dialer struct {
	dialer ws.Dialer
}

// NewDialer creates a Dialer with gobwas defaults.
func NewDialer() *Dialer {
	return &Dialer{dialer: ws.DefaultDialer}
}

// Dial implements transport.Dialer.
// The handshake honours ctx for cancellation and deadlines.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	conn, br, _, err := d.dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return newConn(conn, br, ws.StateClientSide), nil
}

// Upgrade upgrades an HTTP request to a server-side WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	var c *Conn
	if rw != nil {
		c = newConn(conn, rw.Reader, ws.StateServerSide)
	} else {
		c = newConn(conn, nil, ws.StateServerSide)
	}
	return c, nil
}

var _ transport.Dialer = (*Dialer)(nil)
var _ transport.Conn = (*Conn)(nil)
