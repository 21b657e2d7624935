package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray maps a Go string slice onto a PostgreSQL text[] column.
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = StringArray{}
		return nil
	case []byte:
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		return s.Scan(string(v))
	case string:
		*s = parsePGArray(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
}

var pgArrayEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	quoted := make([]string, len(s))
	for i, v := range s {
		quoted[i] = `"` + pgArrayEscaper.Replace(v) + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// parsePGArray reads the one-dimensional {a,"b c","d\"e"} literal form.
func parsePGArray(v string) StringArray {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "{")
	v = strings.TrimSuffix(v, "}")
	if strings.TrimSpace(v) == "" {
		return StringArray{}
	}

	var (
		out     StringArray
		cur     strings.Builder
		quoted  bool
		inQuote bool
		escaped bool
	)
	flush := func() {
		elem := cur.String()
		if !quoted {
			elem = strings.TrimSpace(elem)
		}
		out = append(out, elem)
		cur.Reset()
		quoted = false
	}
	for _, r := range v {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			if !inQuote && !quoted {
				cur.Reset()
			}
			inQuote = !inQuote
			quoted = true
		case r == ',' && !inQuote:
			flush()
		default:
			if quoted && !inQuote {
				// Whitespace between a closing quote and the delimiter.
				continue
			}
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
