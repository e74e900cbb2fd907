package models

import (
	"sort"
	"strconv"
)

// Record is the flat field→value data for one recipient. Values are the
// scalars JSON decoding produces (string, float64, bool, nil). Records are
// supplied per render call and never persisted.
type Record map[string]any

// Keys returns the record's field names in lexicographic order. Placeholder
// resolution iterates in this order, so substitution is deterministic.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text coerces a field value to the string drawn on the page.
// Missing fields and nulls become the empty string.
func (r Record) Text(key string) string {
	return CoerceText(r[key])
}

// CoerceText converts a scalar record value to text.
func CoerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
