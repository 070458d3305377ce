package catalog

import (
	"context"
	"strings"

	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/pgwire"
)

// Forwarder executes a statement against the real backend. Used for
// the few catalog queries that are worth a round trip.
type Forwarder func(ctx context.Context, sql string) (*pgwire.Result, error)

// Responder synthesizes replies for system-catalog queries so GUI
// tools and drivers can introspect without a backend that has no
// catalog to offer.
type Responder struct {
	Database      string
	ServerVersion string
}

// columnTokens maps recognized catalog column names to their types,
// used to infer metadata for otherwise unanswerable queries.
var columnTokens = []struct {
	token    string
	typeName string
}{
	{"proname", "name"},
	{"attname", "name"},
	{"typname", "name"},
	{"relname", "name"},
	{"nspname", "name"},
	{"datname", "name"},
	{"oid", "oid"},
	{"relkind", "bpchar"},
	{"attnum", "int2"},
	{"atttypid", "oid"},
}

// Respond produces the canned reply for a system query. Queries
// referencing information_schema.tables are forwarded; a forwarding
// failure degrades to an empty result rather than an error.
func (r *Responder) Respond(ctx context.Context, sql string, forward Forwarder) (*pgwire.Result, error) {
	lower := strings.ToLower(sql)

	switch {
	case strings.Contains(lower, "version("):
		return pgwire.SingleRow(
			[]pgwire.Column{{Name: "version", TypeName: "text"}},
			r.ServerVersion,
		), nil
	case strings.Contains(lower, "current_schema"):
		return pgwire.SingleRow(
			[]pgwire.Column{{Name: "current_schema", TypeName: "name"}},
			"public",
		), nil
	case strings.Contains(lower, "current_user"):
		return pgwire.SingleRow(
			[]pgwire.Column{{Name: "current_user", TypeName: "name"}},
			"postgres",
		), nil
	case strings.Contains(lower, "current_database"):
		return pgwire.SingleRow(
			[]pgwire.Column{{Name: "current_database", TypeName: "name"}},
			r.Database,
		), nil
	case strings.Contains(lower, "pg_database") || strings.Contains(lower, "datname"):
		return r.databaseRow(), nil
	case strings.Contains(lower, "information_schema.tables"):
		res, err := forward(ctx, sql)
		if err != nil {
			bridgelog.Zero.Warn().Err(err).Msg("catalog forward failed, replying empty")
			return pgwire.EmptyResult(pgwire.Column{Name: "table_name", TypeName: "name"}), nil
		}
		return res, nil
	}

	return pgwire.EmptyResult(r.inferColumns(lower)...), nil
}

// databaseRow is the single synthetic database visible to clients.
func (r *Responder) databaseRow() *pgwire.Result {
	return pgwire.SingleRow(
		[]pgwire.Column{
			{Name: "did", TypeName: "int4"},
			{Name: "datname", TypeName: "name"},
			{Name: "datallowconn", TypeName: "bool"},
			{Name: "serverencoding", TypeName: "name"},
			{Name: "cancreate", TypeName: "bool"},
			{Name: "datistemplate", TypeName: "bool"},
		},
		int64(12345), r.Database, true, "UTF8", false, false,
	)
}

func (r *Responder) inferColumns(lower string) []pgwire.Column {
	var cols []pgwire.Column
	seen := map[string]bool{}
	for _, ct := range columnTokens {
		if strings.Contains(lower, ct.token) && !seen[ct.token] {
			// "oid" is a substring of atttypid; when atttypid is
			// present, take oid only if it also appears as a bare word.
			if ct.token == "oid" && strings.Contains(lower, "atttypid") && !containsBareOID(lower) {
				continue
			}
			seen[ct.token] = true
			cols = append(cols, pgwire.Column{Name: strings.TrimSuffix(ct.token, "."), TypeName: ct.typeName})
		}
	}
	if len(cols) == 0 {
		cols = []pgwire.Column{{Name: "result", TypeName: "text"}}
	}
	return cols
}

func containsBareOID(lower string) bool {
	for i := 0; i+3 <= len(lower); i++ {
		if lower[i:i+3] != "oid" {
			continue
		}
		beforeOK := i == 0 || !isWordByte(lower[i-1])
		afterOK := i+3 == len(lower) || !isWordByte(lower[i+3])
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
