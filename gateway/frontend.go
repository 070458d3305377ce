package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/bridgerr"
	"github.com/pg-bridge/pgbridge/pkg/catalog"
	"github.com/pg-bridge/pgbridge/pkg/dataapi"
	"github.com/pg-bridge/pgbridge/pkg/parser"
	"github.com/pg-bridge/pgbridge/pkg/pgwire"
	"github.com/pg-bridge/pgbridge/pkg/statistics"
	"github.com/pg-bridge/pgbridge/pkg/txstatus"
)

// Backend is the statement-execution surface the state machine needs.
// *dataapi.Client satisfies it.
type Backend interface {
	Execute(ctx context.Context, sql string, params []any) (*pgwire.Result, error)
	BeginTx(ctx context.Context) error
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
	Cleanup(ctx context.Context)
}

var _ Backend = (*dataapi.Client)(nil)

// showDefaults answers SHOW for parameters the gateway always knows,
// ahead of anything the session recorded.
var showDefaults = map[string]string{
	"server_encoding": "UTF8",
	"client_encoding": "UTF8",
	"timezone":        "UTC",
	"datestyle":       "ISO, MDY",
}

// Frontend drives the protocol state machine for one connection.
type Frontend struct {
	client    *PsqlClient
	backend   Backend
	responder *catalog.Responder
	stats     *statistics.BridgeStatistics
}

func NewFrontend(client *PsqlClient, backend Backend, responder *catalog.Responder, stats *statistics.BridgeStatistics) *Frontend {
	return &Frontend{
		client:    client,
		backend:   backend,
		responder: responder,
		stats:     stats,
	}
}

// Run serves the connection until the client terminates, the socket
// fails or the context is canceled. Any open transaction is rolled
// back on the way out.
func (f *Frontend) Run(ctx context.Context) {
	defer func() {
		f.backend.Cleanup(context.Background())
		_ = f.client.Close()
	}()

	if err := f.startup(ctx); err != nil {
		bridgelog.Zero.Debug().Err(err).Str("client", f.client.ID()).Msg("startup aborted")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := f.client.Receive()
		if err != nil {
			bridgelog.Zero.Debug().Err(err).Str("client", f.client.ID()).Msg("connection closed")
			return
		}

		switch m := msg.(type) {
		case *pgwire.Query:
			if err := f.procQuery(ctx, m.String); err != nil {
				return
			}
		case *pgwire.Parse:
			f.client.Session().StorePreparedStatement(m.Name, m.Query)
			if err := f.client.Send(pgwire.BuildParseComplete()); err != nil {
				return
			}
		case *pgwire.Bind:
			if err := f.client.Send(pgwire.BuildBindComplete()); err != nil {
				return
			}
		case *pgwire.Describe:
			if err := f.client.Send(pgwire.BuildRowDescription(nil)); err != nil {
				return
			}
		case *pgwire.Execute:
			// Portal execution is not implemented; the empty response
			// keeps drivers that always prepare from stalling.
			if err := f.client.Send(pgwire.BuildEmptyQueryResponse()); err != nil {
				return
			}
		case *pgwire.Close:
			if m.ObjectType == 'S' {
				f.client.Session().DropPreparedStatement(m.Name)
			}
			if err := f.client.Send(pgwire.BuildCloseComplete()); err != nil {
				return
			}
		case *pgwire.Sync:
			if err := f.client.ReplyRFQ(f.txStatus()); err != nil {
				return
			}
		case *pgwire.Terminate:
			return
		case *pgwire.Unknown:
			bridgelog.Zero.Warn().
				Str("client", f.client.ID()).
				Str("type", string(m.Type)).
				Msg("ignoring unsupported message")
		default:
			bridgelog.Zero.Warn().
				Str("client", f.client.ID()).
				Msgf("ignoring unexpected %T in ready phase", msg)
		}
	}
}

// startup walks the connection from the first frame to the ready
// state: SSL refusal, startup parameters, cleartext password exchange.
func (f *Frontend) startup(ctx context.Context) error {
	for f.client.Phase() == PhaseStartup {
		msg, err := f.client.Receive()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgwire.SSLRequest:
			if err := f.client.DenySSL(); err != nil {
				return err
			}
		case *pgwire.CancelRequest:
			// No cross-connection cancellation; the cancel socket just
			// goes away, as the protocol allows.
			return fmt.Errorf("cancel request connection")
		case *pgwire.StartupMessage:
			if m.ProtocolVersion>>16 != pgwire.ProtocolMajor {
				return fmt.Errorf("unsupported protocol version %d", m.ProtocolVersion)
			}
			for k, v := range m.Parameters {
				f.client.Session().SetParam(k, v)
			}
			if err := f.client.RequestPassword(); err != nil {
				return err
			}
			f.client.SetPhase(PhaseAuthentication)
		default:
			return fmt.Errorf("unexpected %T during startup", msg)
		}
	}

	for {
		msg, err := f.client.Receive()
		if err != nil {
			return err
		}
		switch msg.(type) {
		case *pgwire.PasswordMessage:
			// Credentials are not checked here. The backend secret is
			// the real gate; the exchange only satisfies clients that
			// insist on authenticating.
			return f.client.FinishAuth()
		case *pgwire.Terminate:
			return fmt.Errorf("client terminated during authentication")
		default:
			return fmt.Errorf("expected password message, got %T", msg)
		}
	}
}

// procQuery handles one simple-protocol statement. A nil return means
// the connection survives; an error means it must be torn down.
func (f *Frontend) procQuery(ctx context.Context, query string) error {
	bridgelog.Zero.Debug().Str("client", f.client.ID()).Str("query", query).Msg("serving query")

	switch st := parser.Classify(query).(type) {
	case parser.ParseStateEmptyQuery:
		w := pgwire.NewWriter()
		w.AppendBytes(pgwire.BuildEmptyQueryResponse())
		w.AppendBytes(pgwire.BuildReadyForQuery(byte(f.txStatus())))
		return f.client.Send(w.Buf())

	case parser.ParseStateTXBegin:
		if f.client.Session().InTx() {
			if err := f.client.ReplyNotice("25001", "there is already a transaction in progress"); err != nil {
				return err
			}
			return f.replyTag("BEGIN")
		}
		if err := f.backend.BeginTx(ctx); err != nil {
			return f.replyExecError(err)
		}
		f.client.Session().StartTx()
		return f.replyTag("BEGIN")

	case parser.ParseStateTXCommit:
		if !f.client.Session().InTx() {
			if err := f.client.ReplyNotice("25P01", "there is no transaction in progress"); err != nil {
				return err
			}
			return f.replyTag("COMMIT")
		}
		f.client.Session().EndTx()
		if err := f.backend.CommitTx(ctx); err != nil {
			return f.replyExecError(err)
		}
		return f.replyTag("COMMIT")

	case parser.ParseStateTXRollback:
		if !f.client.Session().InTx() {
			if err := f.client.ReplyNotice("25P01", "there is no transaction in progress"); err != nil {
				return err
			}
			return f.replyTag("ROLLBACK")
		}
		f.client.Session().EndTx()
		if err := f.backend.RollbackTx(ctx); err != nil {
			return f.replyExecError(err)
		}
		return f.replyTag("ROLLBACK")

	case parser.ParseStateSetStmt:
		f.client.Session().SetParam(st.Name, st.Value)
		return f.replyTag("SET")

	case parser.ParseStateShowStmt:
		return f.replyResult(f.showValue(st.Name))

	case parser.ParseStateSystemQuery:
		res, err := f.responder.Respond(ctx, query, func(ctx context.Context, sql string) (*pgwire.Result, error) {
			return f.backend.Execute(ctx, sql, nil)
		})
		if err != nil {
			return f.replyExecError(err)
		}
		return f.replyResult(res)

	case parser.ParseStateForward:
		res, err := f.backend.Execute(ctx, query, nil)
		if err != nil {
			return f.replyExecError(err)
		}
		return f.replyResult(res)
	}

	return f.replyExecError(bridgerr.New(bridgerr.CodeInternalError, "unclassifiable statement"))
}

func (f *Frontend) showValue(name string) *pgwire.Result {
	cols := []pgwire.Column{{Name: name, TypeName: "text"}}
	if name == "server_version" {
		return pgwire.SingleRow(cols, f.client.serverVersion)
	}
	if v, ok := showDefaults[strings.ToLower(name)]; ok {
		return pgwire.SingleRow(cols, v)
	}
	if v, ok := f.client.Session().Param(name); ok {
		return pgwire.SingleRow(cols, v)
	}
	return pgwire.SingleRow(cols, "unknown")
}

func (f *Frontend) replyResult(res *pgwire.Result) error {
	return f.client.Send(pgwire.ComposeQueryReply(res, byte(f.txStatus())))
}

func (f *Frontend) replyTag(tag string) error {
	res := &pgwire.Result{Updated: -1, Tag: tag}
	return f.replyResult(res)
}

// replyExecError reports a statement failure to the client. FATAL
// errors additionally tear the connection down.
func (f *Frontend) replyExecError(err error) error {
	f.stats.ErrorOccurred()
	pe := bridgerr.Convert(err)
	bridgelog.Zero.Info().
		Str("client", f.client.ID()).
		Str("code", pe.Code).
		Msg(pe.Message)

	if sendErr := f.client.ReplyError(pe, f.txStatus()); sendErr != nil {
		return sendErr
	}
	if pe.Severity == bridgerr.SeverityFatal {
		return fmt.Errorf("fatal error sent: %s", pe.Code)
	}
	return nil
}

func (f *Frontend) txStatus() txstatus.TXStatus {
	return txstatus.FromFlag(f.client.Session().InTx())
}
