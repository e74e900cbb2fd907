// Package render turns certificate templates and records into PDF bytes.
package render

import (
	"strings"

	"certmill/internal/models"
)

// Resolve substitutes {field} tokens in text using the record. Each field is
// applied once, over the whole string, in the record's lexicographic key
// order. Null and missing fields resolve to the empty string.
//
// Substitution is not token-aware: if a replaced value itself contains a
// literal {otherField}, a later key's pass will match inside it. That
// order-dependent behavior is part of the contract and is covered by tests;
// do not change it without revisiting the resolver contract.
func Resolve(text string, record models.Record) string {
	for _, key := range record.Keys() {
		text = strings.ReplaceAll(text, "{"+key+"}", models.CoerceText(record[key]))
	}
	return text
}
