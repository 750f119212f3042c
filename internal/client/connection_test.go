package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/wordbiz/internal/protocol/frame"
	"github.com/danmuck/wordbiz/internal/protocol/session"
	"github.com/danmuck/wordbiz/internal/testutil/lobbytest"
	"github.com/danmuck/wordbiz/internal/testutil/testlog"
	"github.com/danmuck/wordbiz/internal/testutil/tlstest"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransport() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.ReadTimeout = 20 * time.Millisecond
	cfg.ReplyTimeout = 500 * time.Millisecond
	return cfg
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// abortingPeer accepts one connection, hands it to before when set, then
// closes it with SO_LINGER 0 so the client side sees a reset.
func abortingPeer(t *testing.T, before func(net.Conn)) (string, int, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	aborted := make(chan struct{})
	go func() {
		defer close(aborted)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if before != nil {
			before(conn)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
		_ = conn.Close()
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, aborted
}

func waitAborted(t *testing.T, aborted <-chan struct{}) {
	t.Helper()
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not abort")
	}
	// let the reset land on the client socket
	time.Sleep(50 * time.Millisecond)
}

func TestConnectionConnectRefused(t *testing.T) {
	testlog.Start(t)
	c := NewConnection(testTransport(), log.Logger)

	err := c.Connect(context.Background(), "127.0.0.1", closedPort(t))
	require.Error(t, err)
	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr), "got %T %v", err, err)
	assert.Contains(t, connErr.Addr, "127.0.0.1:")
	assert.Equal(t, ConnDisconnected, c.State())
	assert.Empty(t, c.ID())
}

func TestConnectionConnectTwiceFailsFast(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t)
	c := NewConnection(testTransport(), log.Logger)

	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	id := c.ID()
	require.NotEmpty(t, id)

	err := c.Connect(context.Background(), srv.Host(), srv.Port())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, ConnConnected, c.State())
	assert.Equal(t, id, c.ID())
	assert.Equal(t, 1, srv.Accepted())
	c.Disconnect()
}

func TestConnectionSendReceive(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t)
	c := NewConnection(testTransport(), log.Logger)
	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	defer c.Disconnect()

	b, err := frame.EncodeCommand(0, "LOGOUT", true)
	require.NoError(t, err)
	require.NoError(t, c.Send(b))

	got, err := c.ReceiveWithin(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "LOGOUT OK", string(got))

	reqs := srv.WaitRequests(1, time.Second)
	require.Len(t, reqs, 1)
	assert.Equal(t, frame.Request{Sequence: 0, Command: "LOGOUT", Validate: true}, reqs[0])
}

func TestConnectionReceiveTimeoutKeepsSocket(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t, lobbytest.WithResponder(lobbytest.Silent))
	c := NewConnection(testTransport(), log.Logger)
	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	defer c.Disconnect()

	start := time.Now()
	_, err := c.Receive(64)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, ConnConnected, c.State())

	var ioErr *IOError
	assert.False(t, errors.As(err, &ioErr))
}

func TestConnectionReceiveEOFDisconnects(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t)
	c := NewConnection(testTransport(), log.Logger)
	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	require.True(t, srv.WaitOpen(1, time.Second))

	srv.DropAll()
	_, err := c.ReceiveWithin(context.Background(), 64, time.Second)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr), "got %T %v", err, err)
	assert.Equal(t, "receive", ioErr.Op)
	assert.Equal(t, ConnDisconnected, c.State())
	assert.Empty(t, c.ID())
}

func TestConnectionReceiveHonorsContext(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t, lobbytest.WithResponder(lobbytest.Silent))
	c := NewConnection(testTransport(), log.Logger)
	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	defer c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	start := time.Now()
	_, err := c.ReceiveWithin(ctx, 64, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, ConnConnected, c.State())
}

func TestConnectionDisconnectIdempotent(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t)
	c := NewConnection(testTransport(), log.Logger)

	c.Disconnect()
	assert.Equal(t, ConnDisconnected, c.State())

	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, ConnDisconnected, c.State())
	assert.True(t, srv.WaitOpen(0, time.Second))

	assert.ErrorIs(t, c.Send([]byte{0}), ErrNotConnected)
	_, err := c.Receive(1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "wordbiz-test-ca")
	srv := lobbytest.Start(t, lobbytest.WithTLS(ca.LoopbackServerConfig(t, dir)))

	cfg := testTransport()
	cfg.TLS.Enabled = true
	cfg.TLS.CAFile = ca.CAFile()
	c := NewConnection(cfg, log.Logger)
	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	defer c.Disconnect()

	b, err := frame.EncodeCommand(0, "LOGOUT", true)
	require.NoError(t, err)
	require.NoError(t, c.Send(b))
	got, err := c.ReceiveWithin(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "LOGOUT OK", string(got))
}

func TestConnectionProductionRequiresTLS(t *testing.T) {
	testlog.Start(t)
	srv := lobbytest.Start(t)
	cfg := testTransport()
	cfg.SecurityMode = session.SecurityModeProduction
	c := NewConnection(cfg, log.Logger)

	err := c.Connect(context.Background(), srv.Host(), srv.Port())
	assert.ErrorIs(t, err, session.ErrTLSRequired)
	assert.Equal(t, ConnDisconnected, c.State())
}

func TestConnectionSendFailureDisconnects(t *testing.T) {
	testlog.Start(t)
	host, port, aborted := abortingPeer(t, nil)
	c := NewConnection(testTransport(), log.Logger)
	require.NoError(t, c.Connect(context.Background(), host, port))
	waitAborted(t, aborted)

	b, err := frame.EncodeCommand(0, "FINGER alice", true)
	require.NoError(t, err)

	var sendErr error
	for i := 0; i < 50 && sendErr == nil; i++ {
		sendErr = c.Send(b)
		if sendErr == nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
	var ioErr *IOError
	require.True(t, errors.As(sendErr, &ioErr), "got %T %v", sendErr, sendErr)
	assert.Equal(t, "send", ioErr.Op)
	assert.Equal(t, ConnDisconnected, c.State())
	assert.Empty(t, c.ID())
	assert.ErrorIs(t, c.Send(b), ErrNotConnected)
}

func TestConnectionMutualTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "wordbiz-test-ca")
	srv := lobbytest.Start(t, lobbytest.WithTLS(ca.MutualServerConfig(t, dir)))
	certFile, keyFile := ca.IssueClientCert(t, dir, "wordbiz-client")

	cfg := testTransport()
	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	cfg.TLS.CAFile = ca.CAFile()
	cfg.TLS.CertFile = certFile
	cfg.TLS.KeyFile = keyFile
	c := NewConnection(cfg, log.Logger)
	require.NoError(t, c.Connect(context.Background(), srv.Host(), srv.Port()))
	defer c.Disconnect()

	b, err := frame.EncodeCommand(0, "LOGOUT", true)
	require.NoError(t, err)
	require.NoError(t, c.Send(b))
	got, err := c.ReceiveWithin(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "LOGOUT OK", string(got))
	assert.Equal(t, 1, srv.Accepted())
}

func TestConnectionMutualTLSMissingKeyPair(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "wordbiz-test-ca")
	srv := lobbytest.Start(t, lobbytest.WithTLS(ca.MutualServerConfig(t, dir)))

	cfg := testTransport()
	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	cfg.TLS.CAFile = ca.CAFile()
	cfg.TLS.CertFile = dir + "/absent.crt"
	cfg.TLS.KeyFile = dir + "/absent.key"
	c := NewConnection(cfg, log.Logger)

	err := c.Connect(context.Background(), srv.Host(), srv.Port())
	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr), "got %T %v", err, err)
	assert.Equal(t, ConnDisconnected, c.State())
}
