package rcon

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ernie/isle-tracker/internal/domain"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultQuietWindow = 500 * time.Millisecond
	maxChunk           = 65535
)

// Transport moves raw frames to and from the game server. It knows nothing about opcodes.
type Transport interface {
	Send(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
}

// DialFunc opens a Transport. The manager takes one so tests can supply fakes.
type DialFunc func(ctx context.Context) (Transport, error)

// Client is a TCP RCON connection. The Evrima dialect has no login
// handshake, so the connection is usable as soon as the socket is open.
type Client struct {
	addr    string
	timeout time.Duration
	quiet   time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Dial connects to addr. timeout bounds the connect and the wait for the
// first response byte; quiet is how long the peer must stay silent after a
// chunk before the response is considered complete.
func Dial(ctx context.Context, addr string, timeout, quiet time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &domain.ConnectionError{Addr: addr, Err: err}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetKeepAlive(true)
		tcp.SetNoDelay(true)
	}

	return &Client{addr: addr, timeout: timeout, quiet: quiet, conn: conn}, nil
}

// Dialer returns a DialFunc that opens Clients to addr
func Dialer(addr string, timeout, quiet time.Duration) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		return Dial(ctx, addr, timeout, quiet)
	}
}

// Send writes frame and collects the response. Responses can span several
// TCP segments, so after each chunk the read waits for the quiet window
// before returning. The whole call is bounded by timeout + quiet.
func (c *Client) Send(ctx context.Context, frame []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, &domain.ConnectionError{Addr: c.addr, Err: net.ErrClosed}
	}

	// Unblock a pending read if the caller gives up
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	start := time.Now()
	ceiling := start.Add(c.timeout + c.quiet)

	c.conn.SetWriteDeadline(start.Add(c.timeout))
	if _, err := c.conn.Write(frame); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.ConnectionError{Addr: c.addr, Err: err}
	}

	var response bytes.Buffer
	buf := make([]byte, maxChunk)
	deadline := start.Add(c.timeout)

	for {
		c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if n > 0 {
			response.Write(buf[:n])
			deadline = time.Now().Add(c.quiet)
			if deadline.After(ceiling) {
				deadline = ceiling
			}
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if response.Len() == 0 {
				return nil, &domain.ResponseTimeoutError{Timeout: c.timeout}
			}
			break // quiet window elapsed
		}
		if errors.Is(err, io.EOF) && response.Len() > 0 {
			break
		}
		return nil, &domain.ConnectionError{Addr: c.addr, Err: err}
	}

	return response.Bytes(), nil
}

// Close tears down the socket. Calling it more than once is safe.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
