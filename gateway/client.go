package gateway

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pg-bridge/pgbridge/pkg/bridgerr"
	"github.com/pg-bridge/pgbridge/pkg/pgwire"
	"github.com/pg-bridge/pgbridge/pkg/session"
	"github.com/pg-bridge/pgbridge/pkg/txstatus"
)

const (
	readChunk    = 4096
	idleDeadline = 300 * time.Second
)

// Phase tracks where a connection is in its lifecycle.
type Phase int

const (
	PhaseStartup Phase = iota
	PhaseAuthentication
	PhaseReady
	PhaseTerminated
)

// defaultParams are the parameter status values announced after
// authentication. server_version is filled in per connection.
var defaultParams = [][2]string{
	{"server_encoding", "UTF8"},
	{"client_encoding", "UTF8"},
	{"application_name", ""},
	{"is_superuser", "off"},
	{"session_authorization", "postgres"},
	{"DateStyle", "ISO, MDY"},
	{"IntervalStyle", "postgres"},
	{"TimeZone", "UTC"},
	{"integer_datetimes", "on"},
	{"standard_conforming_strings", "on"},
}

// PsqlClient is the server side of one frontend connection. It owns
// the socket, the inbound buffer and the session state.
type PsqlClient struct {
	id   string
	conn net.Conn

	buf   []byte
	phase Phase

	session       *session.Session
	serverVersion string

	processID uint32
	secretKey uint32
}

func NewPsqlClient(conn net.Conn, serverVersion string) *PsqlClient {
	u := uuid.New()
	return &PsqlClient{
		id:            u.String(),
		conn:          conn,
		phase:         PhaseStartup,
		session:       session.New(),
		serverVersion: serverVersion,
		processID:     u.ID(),
		secretKey:     uuid.New().ID(),
	}
}

func (c *PsqlClient) ID() string                { return c.id }
func (c *PsqlClient) Phase() Phase              { return c.phase }
func (c *PsqlClient) SetPhase(p Phase)          { c.phase = p }
func (c *PsqlClient) Session() *session.Session { return c.session }
func (c *PsqlClient) RemoteAddr() string        { return c.conn.RemoteAddr().String() }

// Receive blocks until one complete frontend message is available and
// returns it decoded. Startup-category framing applies only in
// PhaseStartup; from PhaseAuthentication on every frame is typed.
func (c *PsqlClient) Receive() (pgwire.FrontendMessage, error) {
	startup := c.phase == PhaseStartup
	for {
		frame, rest, err := pgwire.Split(c.buf, startup)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			c.buf = rest
			return pgwire.ParseFrame(frame)
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(idleDeadline)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		chunk := make([]byte, readChunk)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *PsqlClient) Send(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// DenySSL answers an SSLRequest with the single-byte refusal. The
// client is expected to continue in cleartext.
func (c *PsqlClient) DenySSL() error {
	return c.Send([]byte{'N'})
}

func (c *PsqlClient) RequestPassword() error {
	return c.Send(pgwire.BuildAuthenticationCleartextPassword())
}

// FinishAuth sends the post-authentication burst: AuthenticationOk,
// BackendKeyData, the parameter status block and the first
// ReadyForQuery.
func (c *PsqlClient) FinishAuth() error {
	w := pgwire.NewWriter()
	w.AppendBytes(pgwire.BuildAuthenticationOk())
	w.AppendBytes(pgwire.BuildBackendKeyData(c.processID, c.secretKey))
	w.AppendBytes(pgwire.BuildParameterStatus("server_version", c.serverVersion))
	for _, kv := range defaultParams {
		w.AppendBytes(pgwire.BuildParameterStatus(kv[0], kv[1]))
	}
	w.AppendBytes(pgwire.BuildReadyForQuery(byte(txstatus.TXIDLE)))
	if err := c.Send(w.Buf()); err != nil {
		return err
	}
	c.phase = PhaseReady
	return nil
}

// ReplyError maps an error onto an ErrorResponse followed by
// ReadyForQuery so the client can continue.
func (c *PsqlClient) ReplyError(err error, status txstatus.TXStatus) error {
	pe := bridgerr.Convert(err)
	w := pgwire.NewWriter()
	w.AppendBytes(pgwire.BuildErrorResponse(pe.Severity, pe.Code, pe.Message, pe.Detail, pe.Hint))
	w.AppendBytes(pgwire.BuildReadyForQuery(byte(status)))
	return c.Send(w.Buf())
}

// ReplyNotice sends a WARNING-severity notice without disturbing the
// query cycle.
func (c *PsqlClient) ReplyNotice(code, msg string) error {
	return c.Send(pgwire.BuildNoticeResponse("WARNING", code, msg, "", ""))
}

func (c *PsqlClient) ReplyRFQ(status txstatus.TXStatus) error {
	return c.Send(pgwire.BuildReadyForQuery(byte(status)))
}

// Close tears the socket down. Safe to call more than once.
func (c *PsqlClient) Close() error {
	c.phase = PhaseTerminated
	return c.conn.Close()
}
