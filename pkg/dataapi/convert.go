package dataapi

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/pg-bridge/pgbridge/pkg/pgwire"
)

// buildParameters tags positional values as param1..paramN with the
// wire type inferred from the Go value.
func buildParameters(params []any) []types.SqlParameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]types.SqlParameter, 0, len(params))
	for i, p := range params {
		out = append(out, types.SqlParameter{
			Name:  aws.String(fmt.Sprintf("param%d", i+1)),
			Value: tagValue(p),
		})
	}
	return out
}

func tagValue(v any) types.Field {
	switch val := v.(type) {
	case nil:
		return &types.FieldMemberIsNull{Value: true}
	case string:
		return &types.FieldMemberStringValue{Value: val}
	case bool:
		return &types.FieldMemberBooleanValue{Value: val}
	case int:
		return tagInt(int64(val))
	case int32:
		return tagInt(int64(val))
	case int64:
		return tagInt(val)
	case float32:
		return &types.FieldMemberDoubleValue{Value: float64(val)}
	case float64:
		return &types.FieldMemberDoubleValue{Value: val}
	case time.Time:
		return &types.FieldMemberStringValue{Value: val.Format(time.RFC3339Nano)}
	case []byte:
		return &types.FieldMemberBlobValue{Value: val}
	default:
		if b, err := json.Marshal(v); err == nil {
			return &types.FieldMemberStringValue{Value: string(b)}
		}
		return &types.FieldMemberStringValue{Value: fmt.Sprintf("%v", v)}
	}
}

// Integers inside the signed 32-bit range ride as longValue; the Data
// API treats longValue as the generic integer tag.
func tagInt(v int64) types.Field {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return &types.FieldMemberLongValue{Value: v}
	}
	return &types.FieldMemberDoubleValue{Value: float64(v)}
}

// fieldValue converts one tagged field into a typed scalar. JSON
// columns are decoded so the client sees serialized JSON text rather
// than a double-quoted string blob.
func fieldValue(f types.Field, typeName string) (any, error) {
	switch v := f.(type) {
	case *types.FieldMemberIsNull:
		return nil, nil
	case *types.FieldMemberStringValue:
		if pgwire.IsJSONType(typeName) {
			// jsonb sometimes arrives double-encoded as a quoted blob.
			var inner string
			if json.Unmarshal([]byte(v.Value), &inner) == nil {
				return inner, nil
			}
		}
		return v.Value, nil
	case *types.FieldMemberLongValue:
		return v.Value, nil
	case *types.FieldMemberDoubleValue:
		return v.Value, nil
	case *types.FieldMemberBooleanValue:
		return v.Value, nil
	case *types.FieldMemberBlobValue:
		return v.Value, nil
	case *types.FieldMemberArrayValue:
		b, err := json.Marshal(arrayValue(v.Value))
		if err != nil {
			return nil, fmt.Errorf("encode array field: %w", err)
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unhandled field tag %T", f)
}

func arrayValue(av types.ArrayValue) any {
	switch v := av.(type) {
	case *types.ArrayValueMemberStringValues:
		return v.Value
	case *types.ArrayValueMemberLongValues:
		return v.Value
	case *types.ArrayValueMemberDoubleValues:
		return v.Value
	case *types.ArrayValueMemberBooleanValues:
		return v.Value
	case *types.ArrayValueMemberArrayValues:
		out := make([]any, 0, len(v.Value))
		for _, inner := range v.Value {
			out = append(out, arrayValue(inner))
		}
		return out
	}
	return nil
}

// normalizeResult flattens the service response into the shared
// result form: ordered column descriptors and typed scalar rows.
func normalizeResult(out *rdsdata.ExecuteStatementOutput) (*pgwire.Result, error) {
	cols := make([]pgwire.Column, 0, len(out.ColumnMetadata))
	for i, cm := range out.ColumnMetadata {
		name := aws.ToString(cm.Label)
		if name == "" {
			name = aws.ToString(cm.Name)
		}
		if name == "" {
			name = fmt.Sprintf("column%d", i+1)
		}
		cols = append(cols, pgwire.Column{
			Name:     name,
			TypeName: aws.ToString(cm.TypeName),
			Nullable: cm.Nullable != 0,
		})
	}

	rows := make([]pgwire.Row, 0, len(out.Records))
	for _, rec := range out.Records {
		if len(rec) != len(cols) {
			return nil, fmt.Errorf("record has %d fields for %d columns", len(rec), len(cols))
		}
		row := make(pgwire.Row, 0, len(rec))
		for i, f := range rec {
			val, err := fieldValue(f, cols[i].TypeName)
			if err != nil {
				return nil, err
			}
			row = append(row, val)
		}
		rows = append(rows, row)
	}

	res := &pgwire.Result{
		Columns: cols,
		Rows:    rows,
		Updated: out.NumberOfRecordsUpdated,
	}
	if len(rows) > 0 {
		res.Updated = -1
	}
	return res, nil
}
