package session_test

import (
	"testing"

	"github.com/pg-bridge/pgbridge/pkg/session"
	"github.com/stretchr/testify/assert"
)

func TestParamsLowercased(t *testing.T) {
	assert := assert.New(t)

	s := session.New()
	s.SetParam("TimeZone", "UTC")

	val, ok := s.Param("timezone")
	assert.True(ok)
	assert.Equal("UTC", val)

	val, ok = s.Param("TIMEZONE")
	assert.True(ok)
	assert.Equal("UTC", val)

	_, ok = s.Param("datestyle")
	assert.False(ok)
}

func TestPreparedStatements(t *testing.T) {
	assert := assert.New(t)

	s := session.New()
	s.StorePreparedStatement("s1", "SELECT 1")

	stmt, ok := s.PreparedStatement("s1")
	assert.True(ok)
	assert.Equal("SELECT 1", stmt.Query)
	assert.False(stmt.CreatedAt.IsZero())

	s.DropPreparedStatement("s1")
	_, ok = s.PreparedStatement("s1")
	assert.False(ok)
}

func TestTxFlag(t *testing.T) {
	assert := assert.New(t)

	s := session.New()
	assert.False(s.InTx())
	s.StartTx()
	assert.True(s.InTx())
	s.EndTx()
	assert.False(s.InTx())
}

func TestSnapshotIsCopy(t *testing.T) {
	assert := assert.New(t)

	s := session.New()
	s.SetParam("application_name", "psql")
	snap := s.Snapshot()

	snap.Params["application_name"] = "mutated"
	val, _ := s.Param("application_name")
	assert.Equal("psql", val)
}
