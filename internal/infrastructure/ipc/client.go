// Package ipc implements the client side of the daemon's Unix-socket
// protocol.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
)

// DefaultTimeout bounds a full request/response exchange. Interpretation can
// wait on a cold model load, so the default is generous.
const DefaultTimeout = 120 * time.Second

// Client holds a connection to the daemon. One client maps to one daemon
// session, so context accumulates across calls on the same client.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", socketPath, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Do sends one request and reads one response.
func (c *Client) Do(ctx context.Context, req domain.Request) (domain.Response, error) {
	deadline := time.Now().Add(DefaultTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return domain.Response{}, err
	}

	if err := c.enc.Encode(req); err != nil {
		return domain.Response{}, fmt.Errorf("send request: %w", err)
	}
	var resp domain.Response
	if err := c.dec.Decode(&resp); err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Close releases the connection and its daemon session.
func (c *Client) Close() error {
	return c.conn.Close()
}
