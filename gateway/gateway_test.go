package gateway_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-bridge/pgbridge/gateway"
	"github.com/pg-bridge/pgbridge/pkg/config"
	"github.com/pg-bridge/pgbridge/pkg/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T, maxConns int) (*gateway.Gateway, *statistics.BridgeStatistics, string) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Database = "appdb"
	cfg.MaxConnections = maxConns

	stats := statistics.NewBridgeStatistics()
	g := gateway.NewGateway(&cfg, stats).WithBackendFactory(
		func(ctx context.Context) (gateway.Backend, error) {
			return &fakeBackend{}, nil
		})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() {
		served <- g.Serve(context.Background(), listener)
	}()
	t.Cleanup(func() {
		g.Shutdown()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("serve loop did not stop")
		}
	})

	return g, stats, listener.Addr().String()
}

func dialHandshake(t *testing.T, addr string) (net.Conn, *pgproto3.Frontend) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	front := pgproto3.NewFrontend(conn, conn)
	front.Send(&pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      map[string]string{"user": "postgres", "database": "appdb"},
	})
	require.NoError(t, front.Flush())

	msg, err := front.Receive()
	require.NoError(t, err)
	require.IsType(t, &pgproto3.AuthenticationCleartextPassword{}, msg)

	front.Send(&pgproto3.PasswordMessage{Password: "x"})
	require.NoError(t, front.Flush())

	for {
		msg, err := front.Receive()
		require.NoError(t, err)
		if rfq, ok := msg.(*pgproto3.ReadyForQuery); ok {
			require.Equal(t, byte('I'), rfq.TxStatus)
			return conn, front
		}
	}
}

func TestServeEndToEnd(t *testing.T) {
	assert := assert.New(t)
	_, stats, addr := startGateway(t, 10)

	_, front := dialHandshake(t, addr)

	front.Send(&pgproto3.Query{String: "SELECT current_database()"})
	require.NoError(t, front.Flush())

	var value string
	for {
		msg, err := front.Receive()
		require.NoError(t, err)
		if row, ok := msg.(*pgproto3.DataRow); ok {
			value = string(row.Values[0])
		}
		if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
			break
		}
	}
	assert.Equal("appdb", value)
	assert.Equal(int64(1), stats.ActiveConnections())
}

func TestConnectionCap(t *testing.T) {
	assert := assert.New(t)
	_, _, addr := startGateway(t, 1)

	dialHandshake(t, addr)

	// The second connection is accepted and immediately closed.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(err)
}

func TestShutdownClosesConnections(t *testing.T) {
	g, stats, addr := startGateway(t, 10)

	conn, _ := dialHandshake(t, addr)
	g.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err)
	assert.Equal(t, int64(0), stats.ActiveConnections())
}
