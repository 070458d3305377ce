package gateway_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-bridge/pgbridge/gateway"
	"github.com/pg-bridge/pgbridge/pkg/bridgerr"
	"github.com/pg-bridge/pgbridge/pkg/catalog"
	"github.com/pg-bridge/pgbridge/pkg/pgwire"
	"github.com/pg-bridge/pgbridge/pkg/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServerVersion = "PostgreSQL 14.9 on x86_64-pc-linux-gnu"

type fakeBackend struct {
	mu        sync.Mutex
	executed  []string
	beginN    int
	commitN   int
	rollbackN int
	cleanupN  int

	result  *pgwire.Result
	execErr error
}

func (b *fakeBackend) Execute(ctx context.Context, sql string, params []any) (*pgwire.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executed = append(b.executed, sql)
	if b.execErr != nil {
		return nil, b.execErr
	}
	if b.result != nil {
		return b.result, nil
	}
	return pgwire.EmptyResult(), nil
}

func (b *fakeBackend) BeginTx(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beginN++
	return nil
}

func (b *fakeBackend) CommitTx(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commitN++
	return nil
}

func (b *fakeBackend) RollbackTx(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollbackN++
	return nil
}

func (b *fakeBackend) Cleanup(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupN++
	if b.rollbackN < b.beginN-b.commitN {
		b.rollbackN++
	}
}

type harness struct {
	front *pgproto3.Frontend
	conn  net.Conn
	done  chan struct{}
}

func startConn(t *testing.T, be gateway.Backend) *harness {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	client := gateway.NewPsqlClient(serverSide, testServerVersion)
	responder := &catalog.Responder{Database: "appdb", ServerVersion: testServerVersion}
	fe := gateway.NewFrontend(client, be, responder, statistics.NewBridgeStatistics())

	done := make(chan struct{})
	go func() {
		defer close(done)
		fe.Run(context.Background())
	}()

	h := &harness{
		front: pgproto3.NewFrontend(clientSide, clientSide),
		conn:  clientSide,
		done:  done,
	}
	t.Cleanup(func() {
		_ = clientSide.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("connection goroutine did not stop")
		}
	})
	return h
}

func (h *harness) send(t *testing.T, msgs ...pgproto3.FrontendMessage) {
	t.Helper()
	for _, m := range msgs {
		h.front.Send(m)
	}
	require.NoError(t, h.front.Flush())
}

func (h *harness) receive(t *testing.T) pgproto3.BackendMessage {
	t.Helper()
	msg, err := h.front.Receive()
	require.NoError(t, err)
	return msg
}

// receiveUntilReady drains messages through the next ReadyForQuery and
// returns everything before it plus the transaction status.
func (h *harness) receiveUntilReady(t *testing.T) ([]pgproto3.BackendMessage, byte) {
	t.Helper()
	var out []pgproto3.BackendMessage
	for {
		msg := h.receive(t)
		if rfq, ok := msg.(*pgproto3.ReadyForQuery); ok {
			return out, rfq.TxStatus
		}
		// Receive reuses message memory; keep only decoded copies.
		out = append(out, clone(msg))
	}
}

func clone(msg pgproto3.BackendMessage) pgproto3.BackendMessage {
	switch m := msg.(type) {
	case *pgproto3.RowDescription:
		cp := *m
		cp.Fields = append([]pgproto3.FieldDescription(nil), m.Fields...)
		for i := range cp.Fields {
			cp.Fields[i].Name = append([]byte(nil), m.Fields[i].Name...)
		}
		return &cp
	case *pgproto3.DataRow:
		cp := *m
		cp.Values = make([][]byte, len(m.Values))
		for i, v := range m.Values {
			if v != nil {
				cp.Values[i] = append([]byte(nil), v...)
			}
		}
		return &cp
	case *pgproto3.CommandComplete:
		cp := *m
		cp.CommandTag = append([]byte(nil), m.CommandTag...)
		return &cp
	case *pgproto3.ParameterStatus:
		cp := *m
		return &cp
	case *pgproto3.ErrorResponse:
		cp := *m
		return &cp
	case *pgproto3.NoticeResponse:
		cp := *m
		return &cp
	}
	return msg
}

func (h *harness) handshake(t *testing.T) {
	t.Helper()

	h.send(t, &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters: map[string]string{
			"user":     "postgres",
			"database": "appdb",
		},
	})

	msg := h.receive(t)
	require.IsType(t, &pgproto3.AuthenticationCleartextPassword{}, msg)

	h.send(t, &pgproto3.PasswordMessage{Password: "anything"})

	msg = h.receive(t)
	require.IsType(t, &pgproto3.AuthenticationOk{}, msg)
	msg = h.receive(t)
	require.IsType(t, &pgproto3.BackendKeyData{}, msg)

	params := map[string]string{}
	for {
		msg = h.receive(t)
		if rfq, ok := msg.(*pgproto3.ReadyForQuery); ok {
			require.Equal(t, byte('I'), rfq.TxStatus)
			break
		}
		ps, ok := msg.(*pgproto3.ParameterStatus)
		require.True(t, ok, "unexpected %T before ReadyForQuery", msg)
		params[ps.Name] = ps.Value
	}

	assert.Equal(t, testServerVersion, params["server_version"])
	assert.Equal(t, "UTF8", params["server_encoding"])
	assert.Equal(t, "UTF8", params["client_encoding"])
	assert.Equal(t, "UTC", params["TimeZone"])
	assert.Equal(t, "on", params["integer_datetimes"])
}

func TestHandshake(t *testing.T) {
	h := startConn(t, &fakeBackend{})
	h.handshake(t)
}

func TestSSLRefusal(t *testing.T) {
	h := startConn(t, &fakeBackend{})

	_, err := h.conn.Write([]byte{0, 0, 0, 8, 0x04, 0xd2, 0x16, 0x2f})
	require.NoError(t, err)

	one := make([]byte, 1)
	_, err = h.conn.Read(one)
	require.NoError(t, err)
	assert.Equal(t, byte('N'), one[0])

	h.handshake(t)
}

func TestVersionQueryWithoutBackend(t *testing.T) {
	assert := assert.New(t)
	be := &fakeBackend{}
	h := startConn(t, be)
	h.handshake(t)

	h.send(t, &pgproto3.Query{String: "SELECT version()"})
	msgs, status := h.receiveUntilReady(t)

	assert.Equal(byte('I'), status)
	rd, ok := msgs[0].(*pgproto3.RowDescription)
	assert.True(ok)
	assert.Equal("version", string(rd.Fields[0].Name))
	row, ok := msgs[1].(*pgproto3.DataRow)
	assert.True(ok)
	assert.Equal(testServerVersion, string(row.Values[0]))
	cc, ok := msgs[2].(*pgproto3.CommandComplete)
	assert.True(ok)
	assert.Equal("SELECT 1", string(cc.CommandTag))

	assert.Empty(be.executed)
}

func TestTransactionFlow(t *testing.T) {
	assert := assert.New(t)
	be := &fakeBackend{result: &pgwire.Result{Updated: 1, Tag: "INSERT"}}
	h := startConn(t, be)
	h.handshake(t)

	h.send(t, &pgproto3.Query{String: "BEGIN"})
	msgs, status := h.receiveUntilReady(t)
	assert.Equal(byte('T'), status)
	assert.Equal("BEGIN", string(msgs[0].(*pgproto3.CommandComplete).CommandTag))

	h.send(t, &pgproto3.Query{String: "INSERT INTO t VALUES (1)"})
	msgs, status = h.receiveUntilReady(t)
	assert.Equal(byte('T'), status)
	assert.Equal("INSERT 0 1", string(msgs[0].(*pgproto3.CommandComplete).CommandTag))

	h.send(t, &pgproto3.Query{String: "COMMIT"})
	msgs, status = h.receiveUntilReady(t)
	assert.Equal(byte('I'), status)
	assert.Equal("COMMIT", string(msgs[0].(*pgproto3.CommandComplete).CommandTag))

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(1, be.beginN)
	assert.Equal(1, be.commitN)
	assert.Equal([]string{"INSERT INTO t VALUES (1)"}, be.executed)
}

func TestCommitOutsideTransaction(t *testing.T) {
	assert := assert.New(t)
	be := &fakeBackend{}
	h := startConn(t, be)
	h.handshake(t)

	h.send(t, &pgproto3.Query{String: "COMMIT"})
	msgs, status := h.receiveUntilReady(t)

	assert.Equal(byte('I'), status)
	notice, ok := msgs[0].(*pgproto3.NoticeResponse)
	assert.True(ok)
	assert.Equal("25P01", notice.Code)
	assert.Equal("COMMIT", string(msgs[1].(*pgproto3.CommandComplete).CommandTag))

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Zero(be.commitN)
}

func TestSetAndShow(t *testing.T) {
	assert := assert.New(t)
	h := startConn(t, &fakeBackend{})
	h.handshake(t)

	h.send(t, &pgproto3.Query{String: "SET application_name = 'psql'"})
	msgs, _ := h.receiveUntilReady(t)
	assert.Equal("SET", string(msgs[0].(*pgproto3.CommandComplete).CommandTag))

	h.send(t, &pgproto3.Query{String: "SHOW application_name"})
	msgs, _ = h.receiveUntilReady(t)
	rd := msgs[0].(*pgproto3.RowDescription)
	assert.Equal("application_name", string(rd.Fields[0].Name))
	assert.Equal("psql", string(msgs[1].(*pgproto3.DataRow).Values[0]))

	// Built-in parameters resolve before session state.
	h.send(t, &pgproto3.Query{String: "SHOW timezone"})
	msgs, _ = h.receiveUntilReady(t)
	assert.Equal("UTC", string(msgs[1].(*pgproto3.DataRow).Values[0]))
}

func TestExtendedProtocolSequence(t *testing.T) {
	assert := assert.New(t)
	h := startConn(t, &fakeBackend{})
	h.handshake(t)

	h.send(t,
		&pgproto3.Parse{Name: "stmt1", Query: "SELECT $1"},
		&pgproto3.Bind{PreparedStatement: "stmt1", Parameters: [][]byte{[]byte("1")}},
		&pgproto3.Describe{ObjectType: 'P'},
		&pgproto3.Execute{},
		&pgproto3.Sync{},
	)

	assert.IsType(&pgproto3.ParseComplete{}, h.receive(t))
	assert.IsType(&pgproto3.BindComplete{}, h.receive(t))
	rd, ok := h.receive(t).(*pgproto3.RowDescription)
	assert.True(ok)
	assert.Empty(rd.Fields)
	assert.IsType(&pgproto3.EmptyQueryResponse{}, h.receive(t))
	rfq, ok := h.receive(t).(*pgproto3.ReadyForQuery)
	assert.True(ok)
	assert.Equal(byte('I'), rfq.TxStatus)
}

func TestBackendErrorSurfaced(t *testing.T) {
	assert := assert.New(t)
	be := &fakeBackend{execErr: bridgerr.New(bridgerr.CodeUndefinedTable, `relation "missing" does not exist`)}
	h := startConn(t, be)
	h.handshake(t)

	h.send(t, &pgproto3.Query{String: "SELECT * FROM missing"})
	msgs, status := h.receiveUntilReady(t)

	assert.Equal(byte('I'), status)
	errMsg, ok := msgs[0].(*pgproto3.ErrorResponse)
	assert.True(ok)
	assert.Equal("42P01", errMsg.Code)
	assert.Equal("ERROR", errMsg.Severity)
	assert.Contains(errMsg.Message, "missing")

	// The connection remains usable.
	h.send(t, &pgproto3.Query{String: "SELECT current_user"})
	msgs, _ = h.receiveUntilReady(t)
	assert.Equal("postgres", string(msgs[1].(*pgproto3.DataRow).Values[0]))
}

func TestTerminateRollsBack(t *testing.T) {
	assert := assert.New(t)
	be := &fakeBackend{}
	h := startConn(t, be)
	h.handshake(t)

	h.send(t, &pgproto3.Query{String: "BEGIN"})
	_, status := h.receiveUntilReady(t)
	assert.Equal(byte('T'), status)

	h.send(t, &pgproto3.Terminate{})

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close after Terminate")
	}

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(1, be.cleanupN)
	assert.Equal(1, be.rollbackN)
}
