package pgwire

import "strings"

// TypeInfo carries the resolved oid and the fixed on-wire size of a
// type, -1 for variable-size types.
type TypeInfo struct {
	OID  uint32
	Size int16
}

// typeMap holds the catalog entries clients depend on. Unknown names
// resolve to text.
var typeMap = map[string]TypeInfo{
	"varchar":     {1043, -1},
	"text":        {25, -1},
	"bpchar":      {1042, -1},
	"name":        {19, 64},
	"int4":        {23, 4},
	"int8":        {20, 8},
	"int2":        {21, 2},
	"bool":        {16, 1},
	"float4":      {700, 4},
	"float8":      {701, 8},
	"numeric":     {1700, -1},
	"date":        {1082, 4},
	"timestamp":   {1114, 8},
	"timestamptz": {1184, 8},
	"time":        {1083, 8},
	"timetz":      {1266, 12},
	"json":        {114, -1},
	"jsonb":       {3802, -1},
	"uuid":        {2950, 16},
	"bytea":       {17, -1},
	"oid":         {26, 4},
}

// aliases seen in backend column metadata.
var typeAliases = map[string]string{
	"character varying":           "varchar",
	"character":                   "bpchar",
	"char":                        "bpchar",
	"integer":                     "int4",
	"int":                         "int4",
	"serial":                      "int4",
	"bigint":                      "int8",
	"bigserial":                   "int8",
	"smallint":                    "int2",
	"boolean":                     "bool",
	"real":                        "float4",
	"double precision":            "float8",
	"double":                      "float8",
	"decimal":                     "numeric",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"time without time zone":      "time",
	"time with time zone":         "timetz",
}

// LookupType resolves a type name, case-insensitively, to its oid and
// size, defaulting to text.
func LookupType(name string) TypeInfo {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := typeAliases[key]; ok {
		key = canonical
	}
	if ti, ok := typeMap[key]; ok {
		return ti
	}
	return typeMap["text"]
}

// IsJSONType reports whether values of the named type carry JSON
// payloads on the wire.
func IsJSONType(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "jsonb":
		return true
	}
	return false
}
