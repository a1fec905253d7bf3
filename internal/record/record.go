// Package record defines the generic logical record shared by every
// collection (messages, tasks, events, groceries, completions, meals) and the
// per-collection metadata the reconciliation core and the store need:
// ordering field, heuristic matching key and schema constraints.
package record

import (
	"maps"
	"strconv"
	"strings"
	"time"
)

// ProvisionalPrefix marks client-generated ids that the store never saw.
const ProvisionalPrefix = "temp-"

// Record is one row of a collection. Fields holds the collection-specific
// payload and is opaque to the reconciliation core.
type Record struct {
	ID        string         `json:"id"`
	ClientRef string         `json:"client_ref,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// IsProvisional reports whether the record carries a local provisional id.
func (r Record) IsProvisional() bool {
	return IsProvisionalID(r.ID)
}

// IsProvisionalID reports whether id is a local provisional id.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Clone returns a copy whose Fields map can be mutated independently.
func (r Record) Clone() Record {
	r.Fields = maps.Clone(r.Fields)
	return r
}

// With returns a clone with the given fields merged over the existing ones.
func (r Record) With(fields map[string]any) Record {
	out := r.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		out.Fields[k] = v
	}
	return out
}

// Get returns the raw field value.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// String returns a field rendered as a string ("" when absent).
func (r Record) String(field string) string {
	switch field {
	case "id":
		return r.ID
	case "created_at":
		return r.CreatedAt.UTC().Format(time.RFC3339Nano)
	case "updated_at":
		return r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return FieldString(r.Fields[field])
}

// Bool returns a boolean field; strings "true"/"1" count as true.
func (r Record) Bool(field string) bool {
	switch v := r.Fields[field].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case float64:
		return v != 0
	}
	return false
}

// Time parses a timestamp field. created_at/updated_at read the envelope.
func (r Record) Time(field string) (time.Time, bool) {
	switch field {
	case "created_at":
		return r.CreatedAt, !r.CreatedAt.IsZero()
	case "updated_at":
		return r.UpdatedAt, !r.UpdatedAt.IsZero()
	}
	return ParseTime(r.String(field))
}

// FieldString renders a decoded JSON value as a string.
func FieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FieldString(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	}
	return ""
}

// ParseTime accepts the timestamp layouts the store and the CLI produce.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
