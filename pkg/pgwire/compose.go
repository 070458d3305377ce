package pgwire

import (
	"fmt"
	"strings"

	"github.com/pg-bridge/pgbridge/pkg/bridgerr"
)

// Row holds one record's values in column order. Entries are typed
// scalars (string, int64, float64, bool, []byte, time.Time) or nil.
type Row []any

// Result is the normalized outcome of a statement, the shared
// intermediate form between the backend client, the catalog responder
// and the reply composer.
type Result struct {
	Columns []Column
	Rows    []Row
	// Updated is the affected-row count, -1 when undefined.
	Updated int64
	// Tag overrides the inferred command tag when set.
	Tag string
}

// EmptyResult returns a rowless result with undefined updated-count.
func EmptyResult(cols ...Column) *Result {
	return &Result{Columns: cols, Updated: -1}
}

// SingleRow builds a one-row result from the given values in column
// order, the common shape of SHOW and catalog replies.
func SingleRow(cols []Column, values ...any) *Result {
	return &Result{
		Columns: cols,
		Rows:    []Row{values},
		Updated: -1,
	}
}

// ComposeQueryReply renders a result into the reply byte sequence,
// ending with ReadyForQuery carrying status. Any composition failure
// degrades to ErrorResponse + ReadyForQuery so the connection stays
// usable.
func ComposeQueryReply(res *Result, status byte) []byte {
	out, err := composeResult(res)
	if err != nil {
		pge := bridgerr.Convert(err)
		out = BuildErrorResponse(pge.Severity, pge.Code, pge.Message, pge.Detail, pge.Hint)
	}
	return append(out, BuildReadyForQuery(status)...)
}

func composeResult(res *Result) ([]byte, error) {
	if res == nil {
		return BuildEmptyQueryResponse(), nil
	}

	if len(res.Rows) > 0 {
		out := BuildRowDescription(res.Columns)
		for _, row := range res.Rows {
			if len(row) != len(res.Columns) {
				return nil, fmt.Errorf("row has %d values for %d columns", len(row), len(res.Columns))
			}
			values := make([][]byte, 0, len(row))
			for i, v := range row {
				if v == nil {
					values = append(values, nil)
					continue
				}
				text, err := FormatValue(v, res.Columns[i].TypeName)
				if err != nil {
					return nil, err
				}
				values = append(values, []byte(text))
			}
			out = append(out, BuildDataRow(values)...)
		}
		return append(out, BuildCommandComplete(fmt.Sprintf("SELECT %d", len(res.Rows)))...), nil
	}

	if res.Updated >= 0 {
		return BuildCommandComplete(commandTag(res)), nil
	}

	if res.Tag != "" {
		return BuildCommandComplete(res.Tag), nil
	}

	return BuildEmptyQueryResponse(), nil
}

func commandTag(res *Result) string {
	tag := res.Tag
	if tag == "" {
		if res.Updated > 0 {
			tag = "UPDATE"
		} else {
			tag = "OK"
		}
	}
	switch strings.ToUpper(tag) {
	case "INSERT":
		// INSERT tags carry a leading oid field.
		return fmt.Sprintf("INSERT 0 %d", res.Updated)
	case "UPDATE", "DELETE":
		return fmt.Sprintf("%s %d", strings.ToUpper(tag), res.Updated)
	}
	return tag
}
