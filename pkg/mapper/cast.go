package mapper

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/restq/restq/pkg/schema"
)

// CastError classifies an illegal JSON-to-column or column-to-JSON cast.
// It surfaces as a bad-request condition.
type CastError struct {
	Type  string
	Value any
}

func (e *CastError) Error() string {
	return fmt.Sprintf("mapper: cannot cast %v (%T) to %s", e.Value, e.Value, e.Type)
}

// outputCast converts a driver value into its JSON representation, keyed
// by the property's semantic type: binary becomes a hex string, json
// columns are parsed into structures, timestamps render as RFC 3339, and
// fixed-width char values are trimmed.
func outputCast(semanticType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch semanticType {
	case schema.TypeBinary:
		switch b := v.(type) {
		case []byte:
			return hex.EncodeToString(b), nil
		case string:
			return hex.EncodeToString([]byte(b)), nil
		}
	case schema.TypeJSON, schema.TypeArray:
		var raw []byte
		switch j := v.(type) {
		case []byte:
			raw = j
		case string:
			raw = []byte(j)
		default:
			return v, nil // driver already decoded it
		}
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, &CastError{Type: semanticType, Value: v}
		}
		return parsed, nil
	case schema.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339), nil
		}
	case schema.TypeString:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	case schema.TypeChar:
		// Fixed-width engines pad with trailing spaces; variable-width
		// string values pass through untouched.
		if s, ok := v.(string); ok {
			return strings.TrimRight(s, " "), nil
		}
		if b, ok := v.([]byte); ok {
			return strings.TrimRight(string(b), " "), nil
		}
	case schema.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	}
	return v, nil
}

// inputCast converts an inbound JSON value to the property's declared
// semantic type before it is bound as a statement parameter.
func inputCast(semanticType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch semanticType {
	case schema.TypeNumber:
		switch n := v.(type) {
		case float64, int64, int:
			return n, nil
		case json.Number:
			return castNumericString(n.String())
		case string:
			return castNumericString(n)
		}
	case schema.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "1", "true":
				return true, nil
			case "0", "false":
				return false, nil
			}
		case float64:
			return b != 0, nil
		}
	case schema.TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed, nil
			}
			if parsed, err := time.Parse("2006-01-02", t); err == nil {
				return parsed, nil
			}
		}
	case schema.TypeJSON, schema.TypeArray:
		switch j := v.(type) {
		case string:
			var parsed any
			if err := json.Unmarshal([]byte(j), &parsed); err != nil {
				return nil, &CastError{Type: semanticType, Value: v}
			}
			return marshalForColumn(parsed)
		default:
			return marshalForColumn(v)
		}
	case schema.TypeBinary:
		if s, ok := v.(string); ok {
			if b, err := hex.DecodeString(s); err == nil {
				return b, nil
			}
			return []byte(s), nil
		}
		return v, nil
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, bool, int64:
			return fmt.Sprintf("%v", s), nil
		}
	}
	return nil, &CastError{Type: semanticType, Value: v}
}

// castNumericString picks long vs double on decimal-point presence.
func castNumericString(s string) (any, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &CastError{Type: schema.TypeNumber, Value: s}
		}
		return f, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &CastError{Type: schema.TypeNumber, Value: s}
	}
	return n, nil
}

// marshalForColumn serializes a structure back to text for json/array
// columns; drivers bind it as a string.
func marshalForColumn(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &CastError{Type: schema.TypeJSON, Value: v}
	}
	return string(raw), nil
}
