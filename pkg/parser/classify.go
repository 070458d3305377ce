package parser

import (
	"regexp"
	"strings"
)

var (
	beginRe    = regexp.MustCompile(`(?i)^(begin|start\s+transaction)$`)
	commitRe   = regexp.MustCompile(`(?i)^commit(\s+work)?$`)
	rollbackRe = regexp.MustCompile(`(?i)^rollback(\s+work)?$`)
	setRe      = regexp.MustCompile(`(?i)^set\s+(?:session\s+)?(\w+)\s*(?:=|\s+to\s+)\s*(.+)$`)
	showRe     = regexp.MustCompile(`(?i)^show\s+(\w+)$`)
)

const KindGeneric = "generic"

// systemTokens are the catalog references handled without a backend
// round trip, in match order.
var systemTokens = []string{
	"pg_catalog.",
	"information_schema.",
	"pg_class",
	"pg_namespace",
	"pg_attribute",
	"pg_type",
	"pg_index",
	"pg_constraint",
	"pg_proc",
	"pg_stat_activity",
	"pg_tables",
	"pg_database",
	"pg_settings",
	"version(",
	"current_schema",
	"current_user",
	"current_database",
}

// Normalize trims surrounding whitespace and trailing semicolons.
func Normalize(query string) string {
	q := strings.TrimSpace(query)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

// Classify maps a statement to its ParseState. Rules run in order;
// the first match wins.
func Classify(query string) ParseState {
	q := Normalize(query)
	if q == "" {
		return ParseStateEmptyQuery{}
	}

	if beginRe.MatchString(q) {
		return ParseStateTXBegin{}
	}
	if commitRe.MatchString(q) {
		return ParseStateTXCommit{}
	}
	if rollbackRe.MatchString(q) {
		return ParseStateTXRollback{}
	}

	if m := setRe.FindStringSubmatch(q); m != nil {
		return ParseStateSetStmt{
			Name:  strings.ToLower(m[1]),
			Value: stripQuotes(strings.TrimSpace(m[2])),
		}
	}
	if m := showRe.FindStringSubmatch(q); m != nil {
		return ParseStateShowStmt{Name: strings.ToLower(m[1])}
	}

	lower := strings.ToLower(q)
	var matched []string
	for _, tok := range systemTokens {
		if strings.Contains(lower, tok) {
			matched = append(matched, tok)
		}
	}
	if len(matched) == 1 {
		return ParseStateSystemQuery{Kind: matched[0]}
	}
	if len(matched) > 1 {
		return ParseStateSystemQuery{Kind: KindGeneric}
	}

	return ParseStateForward{}
}

func stripQuotes(v string) string {
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
