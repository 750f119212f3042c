package client

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/wordbiz/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Connection owns the lobby socket. It is not safe for concurrent use; the
// supervisor goroutine is its only caller.
type Connection struct {
	cfg    session.Config
	logger zerolog.Logger

	conn  net.Conn
	state ConnState
	id    string
	addr  string
}

func NewConnection(cfg session.Config, logger zerolog.Logger) *Connection {
	return &Connection{
		cfg:    cfg.WithDefaults(),
		logger: logger.With().Str("component", "connection").Logger(),
		state:  ConnDisconnected,
	}
}

func (c *Connection) State() ConnState {
	return c.state
}

// ID identifies the current socket; empty while disconnected.
func (c *Connection) ID() string {
	return c.id
}

// Addr is the last dialed host:port.
func (c *Connection) Addr() string {
	return c.addr
}

// Connect dials host:port. Any failure leaves the connection Disconnected with
// no socket open.
func (c *Connection) Connect(ctx context.Context, host string, port int) error {
	if c.state == ConnConnected {
		return ErrAlreadyConnected
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c.addr = addr
	c.logger.Debug().Str("addr", addr).Msg("client.Connection.Connect dialing")

	conn, err := c.dial(ctx, host, addr)
	if err != nil {
		c.conn = nil
		c.state = ConnDisconnected
		c.id = ""
		return &ConnectError{Addr: addr, Err: err}
	}

	c.conn = conn
	c.state = ConnConnected
	c.id = uuid.NewString()
	c.logger.Info().Str("addr", addr).Str("conn_id", c.id).Bool("tls", c.cfg.TLS.Enabled).
		Msg("client.Connection.Connect connected")
	return nil
}

func (c *Connection) dial(ctx context.Context, host, addr string) (net.Conn, error) {
	if err := c.cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !c.cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := c.cfg.ClientTLS(host)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

// Disconnect closes the socket if open. Safe to call in any state.
func (c *Connection) Disconnect() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Debug().Err(err).Str("conn_id", c.id).Msg("client.Connection.Disconnect close")
		}
	}
	if c.state == ConnConnected {
		c.logger.Info().Str("addr", c.addr).Str("conn_id", c.id).Msg("client.Connection.Disconnect closed")
	}
	c.conn = nil
	c.state = ConnDisconnected
	c.id = ""
}

// Send writes the whole buffer. A failed write closes the connection.
func (c *Connection) Send(b []byte) error {
	if c.state != ConnConnected {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		c.Disconnect()
		return &IOError{Op: "send", Err: err}
	}
	if _, err := c.conn.Write(b); err != nil {
		c.Disconnect()
		return &IOError{Op: "send", Err: err}
	}
	return nil
}

// Receive performs one read bounded by the configured poll timeout.
func (c *Connection) Receive(maxBytes int) ([]byte, error) {
	return c.ReceiveWithin(context.Background(), maxBytes, c.cfg.ReadTimeout)
}

// ReceiveWithin performs one read bounded by d and by ctx. A timeout returns
// ErrReceiveTimeout and keeps the connection; any other failure, EOF included,
// closes it and returns an *IOError.
func (c *Connection) ReceiveWithin(ctx context.Context, maxBytes int, d time.Duration) ([]byte, error) {
	if c.state != ConnConnected {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = c.cfg.MaxReplyBytes
	}

	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.Disconnect()
		return nil, &IOError{Op: "receive", Err: err}
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxBytes)
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return nil, ErrReceiveTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrReceiveTimeout
	}
	c.Disconnect()
	return nil, &IOError{Op: "receive", Err: err}
}
