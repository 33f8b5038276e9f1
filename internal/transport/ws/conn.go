// Package ws provides the WebSocket transport built on gobwas/ws.
package ws

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// aLongTimeAgo is used as a deadline to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Conn adapts a gobwas WebSocket connection to transport.Conn.
// Read must not be called concurrently; Write and Close are safe for concurrent use.
type Conn struct {
	conn net.Conn
	rw   *frameIO
	side ws.State

	closeOnce sync.Once
	closeErr  error
}

// frameIO pairs the (possibly buffered) reader with a serialized writer.
// Control frame replies issued while reading share the writer lock with data frames.
type frameIO struct {
	r  io.Reader
	w  io.Writer
	mu sync.Mutex
}

func (f *frameIO) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *frameIO) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Write(p)
}

func newConn(conn net.Conn, br *bufio.Reader, side ws.State) *Conn {
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	return &Conn{
		conn: conn,
		rw:   &frameIO{r: r, w: conn},
		side: side,
	}
}

// Read implements transport.Conn.
// Reads the next text or binary message, answering control frames on the way.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	for {
		var (
			data []byte
			op   ws.OpCode
			err  error
		)
		if c.side == ws.StateClientSide {
			data, op, err = wsutil.ReadServerData(c.rw)
		} else {
			data, op, err = wsutil.ReadClientData(c.rw)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if op == ws.OpBinary || op == ws.OpText {
			return data, nil
		}
	}
}

// Write implements transport.Conn.
// Writes a binary message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	var err error
	if c.side == ws.StateClientSide {
		err = wsutil.WriteClientBinary(c.rw, data)
	} else {
		err = wsutil.WriteServerBinary(c.rw, data)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close implements transport.Conn.
// Sends a normal closure frame and closes the socket. Subsequent calls return
// the result of the first one.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if c.side == ws.StateClientSide {
			_ = wsutil.WriteClientMessage(c.rw, ws.OpClose, body)
		} else {
			_ = wsutil.WriteServerMessage(c.rw, ws.OpClose, body)
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
