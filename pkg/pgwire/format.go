package pgwire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatValue renders a runtime scalar into the textual wire form for
// the given type name. NULL is encoded at the framing layer, never
// here; callers must not pass nil.
func FormatValue(value any, typeName string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(typeName))

	switch key {
	case "bool", "boolean":
		switch v := value.(type) {
		case bool:
			if v {
				return "t", nil
			}
			return "f", nil
		case string:
			if v == "true" || v == "t" || v == "1" {
				return "t", nil
			}
			return "f", nil
		}
	case "date":
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02"), nil
		}
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339Nano), nil
		}
	case "json", "jsonb":
		if s, ok := value.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("format json value: %w", err)
		}
		return string(b), nil
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		if v {
			return "t", nil
		}
		return "f", nil
	case int:
		return strconv.Itoa(v), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	}

	return fmt.Sprintf("%v", value), nil
}
