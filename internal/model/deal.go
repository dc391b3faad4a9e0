package model

import (
	"strconv"
	"strings"
)

// Fields maps a custom field key to its value. Keys are ambiguous: the CRM
// keys core payloads by human field name, search rows are re-keyed by both
// the name and the numeric field id.
type Fields map[string]FieldValue

// Get returns the first present value stored under key, trying the literal
// key first and then its canonical numeric form ("02705361" -> "2705361").
func (f Fields) Get(key string) (FieldValue, bool) {
	if v, ok := f[key]; ok && v.Present() {
		return v, true
	}
	trimmed := strings.TrimSpace(key)
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if v, ok := f[strconv.FormatInt(n, 10)]; ok && v.Present() {
			return v, true
		}
	}
	return FieldValue{}, false
}

// Deal is a deal record as returned by the CRM.
type Deal struct {
	ID           int64  `json:"id"`
	Name         string `json:"name,omitempty"`
	StageID      int64  `json:"stage_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	CustomFields Fields `json:"custom_fields"`
}
