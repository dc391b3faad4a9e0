// Package normalize turns heterogeneous CRM field values into canonical
// identifiers, integers and dates. Nothing here fails: shapes it does not
// recognize degrade to "absent".
package normalize

import (
	"math"
	"strconv"
	"strings"

	"incentives-engine/internal/model"
)

// Option extracts (id, label) from a list-type field value.
//   - option object: its id and name/label
//   - number or bool: the integer as id, no label
//   - string: the trimmed string as both id and label
//
// Empty results mean absent.
func Option(v model.FieldValue) (id, label string) {
	switch v.Kind {
	case model.KindOption:
		return v.ID, v.Label
	case model.KindNumber, model.KindBool:
		n, ok := Integer(v)
		if !ok {
			return "", ""
		}
		return strconv.FormatInt(n, 10), ""
	case model.KindString:
		s := strings.TrimSpace(v.Text)
		return s, s
	default:
		return "", ""
	}
}

// Integer coerces a bool, number or numeric string to an integer.
// Fractional numbers are truncated toward zero; fractional strings are not
// integers.
func Integer(v model.FieldValue) (int64, bool) {
	switch v.Kind {
	case model.KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case model.KindNumber:
		if n, err := strconv.ParseInt(v.Text, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	case model.KindString:
		return ParseInteger(v.Text)
	case model.KindOption:
		if v.ID != "" {
			return ParseInteger(v.ID)
		}
		return ParseInteger(v.Label)
	default:
		return 0, false
	}
}

// ParseInteger parses a base-10 integer, ignoring surrounding whitespace.
func ParseInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
