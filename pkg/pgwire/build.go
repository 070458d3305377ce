package pgwire

import "encoding/binary"

// Column is the descriptor shared between backend results and
// RowDescription generation.
type Column struct {
	Name     string
	TypeName string
	Nullable bool
}

func finish(typ byte, body *Writer) []byte {
	out := make([]byte, 0, 5+body.Len())
	out = append(out, typ)
	out = binary.BigEndian.AppendUint32(out, uint32(4+body.Len()))
	return append(out, body.Buf()...)
}

func BuildAuthenticationOk() []byte {
	return finish('R', NewWriter().AppendInt32(0))
}

func BuildAuthenticationCleartextPassword() []byte {
	return finish('R', NewWriter().AppendInt32(3))
}

func BuildBackendKeyData(processID uint32, secretKey uint32) []byte {
	return finish('K', NewWriter().AppendUint32(processID).AppendUint32(secretKey))
}

func BuildParameterStatus(name string, value string) []byte {
	return finish('S', NewWriter().AppendCString(name).AppendCString(value))
}

func BuildReadyForQuery(status byte) []byte {
	return finish('Z', NewWriter().AppendByte(status))
}

func BuildRowDescription(cols []Column) []byte {
	w := NewWriter().AppendUint16(uint16(len(cols)))
	for i, col := range cols {
		ti := LookupType(col.TypeName)
		w.AppendCString(col.Name)
		w.AppendUint32(0)                // table oid
		w.AppendUint16(uint16(i + 1))    // column index
		w.AppendUint32(ti.OID)
		w.AppendInt16(ti.Size)
		w.AppendInt32(-1)                // type modifier
		w.AppendUint16(0)                // text format
	}
	return finish('T', w)
}

// BuildDataRow serializes one row; a nil entry is NULL (length -1, no
// value bytes).
func BuildDataRow(values [][]byte) []byte {
	w := NewWriter().AppendUint16(uint16(len(values)))
	for _, v := range values {
		if v == nil {
			w.AppendInt32(-1)
			continue
		}
		w.AppendInt32(int32(len(v)))
		w.AppendBytes(v)
	}
	return finish('D', w)
}

func BuildCommandComplete(tag string) []byte {
	return finish('C', NewWriter().AppendCString(tag))
}

func BuildEmptyQueryResponse() []byte {
	return finish('I', NewWriter())
}

func BuildParseComplete() []byte {
	return finish('1', NewWriter())
}

func BuildBindComplete() []byte {
	return finish('2', NewWriter())
}

func BuildCloseComplete() []byte {
	return finish('3', NewWriter())
}

func buildErrorFields(severity, code, message, detail, hint string) *Writer {
	w := NewWriter()
	w.AppendByte('S').AppendCString(severity)
	w.AppendByte('C').AppendCString(code)
	w.AppendByte('M').AppendCString(message)
	if detail != "" {
		w.AppendByte('D').AppendCString(detail)
	}
	if hint != "" {
		w.AppendByte('H').AppendCString(hint)
	}
	w.AppendByte(0)
	return w
}

func BuildErrorResponse(severity, code, message, detail, hint string) []byte {
	return finish('E', buildErrorFields(severity, code, message, detail, hint))
}

func BuildNoticeResponse(severity, code, message, detail, hint string) []byte {
	return finish('N', buildErrorFields(severity, code, message, detail, hint))
}
