package session

import (
	"strings"
	"time"
)

type PreparedStatement struct {
	Query     string
	CreatedAt time.Time
}

// Session is the per-connection state: startup/SET parameters keyed by
// lower-cased name, named prepared statements and the transaction flag.
// A session is owned by exactly one connection and is never shared.
type Session struct {
	activeParamSet map[string]string
	prepStmts      map[string]PreparedStatement

	inTx bool
}

func New() *Session {
	return &Session{
		activeParamSet: map[string]string{},
		prepStmts:      map[string]PreparedStatement{},
	}
}

func (s *Session) SetParam(name string, value string) {
	s.activeParamSet[strings.ToLower(name)] = value
}

func (s *Session) Param(name string) (string, bool) {
	val, ok := s.activeParamSet[strings.ToLower(name)]
	return val, ok
}

func (s *Session) Params() map[string]string {
	return s.activeParamSet
}

func (s *Session) StorePreparedStatement(name string, query string) {
	s.prepStmts[name] = PreparedStatement{
		Query:     query,
		CreatedAt: time.Now(),
	}
}

func (s *Session) PreparedStatement(name string) (PreparedStatement, bool) {
	stmt, ok := s.prepStmts[name]
	return stmt, ok
}

func (s *Session) DropPreparedStatement(name string) {
	delete(s.prepStmts, name)
}

func (s *Session) StartTx() {
	s.inTx = true
}

func (s *Session) EndTx() {
	s.inTx = false
}

func (s *Session) InTx() bool {
	return s.inTx
}

// Snapshot returns a structural copy for introspection; mutating it
// does not touch the live session.
func (s *Session) Snapshot() Snapshot {
	params := make(map[string]string, len(s.activeParamSet))
	for k, v := range s.activeParamSet {
		params[k] = v
	}
	stmts := make(map[string]PreparedStatement, len(s.prepStmts))
	for k, v := range s.prepStmts {
		stmts[k] = v
	}
	return Snapshot{
		Params:             params,
		PreparedStatements: stmts,
		InTx:               s.inTx,
	}
}

type Snapshot struct {
	Params             map[string]string
	PreparedStatements map[string]PreparedStatement
	InTx               bool
}
