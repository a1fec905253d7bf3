package record

import (
	"sort"
	"strings"
)

// Collection describes one logical list: how it is ordered, how a provisional
// record is matched against a pushed canonical record, and which constraints
// the store enforces.
type Collection struct {
	Name string
	// OrderField keeps lists in stable chronological order.
	OrderField string
	// KeyFields form the heuristic matching key used when a pushed record
	// carries no client_ref.
	KeyFields []string
	// ActorField is stamped with the current member on create.
	ActorField string
	// Required fields must be present and non-empty on insert.
	Required []string
	// Unique field tuples must not repeat within the collection.
	Unique [][]string
	// Filterable lists the fields that selects and subscriptions may filter
	// or order on, beyond the envelope fields.
	Filterable []string
}

// Collection names.
const (
	Messages    = "messages"
	Tasks       = "tasks"
	Events      = "events"
	Groceries   = "groceries"
	Completions = "completions"
	Meals       = "meals"
)

var collections = map[string]Collection{
	Messages: {
		Name:       Messages,
		OrderField: "created_at",
		KeyFields:  []string{"sender_id", "type"},
		ActorField: "sender_id",
		Required:   []string{"sender_id", "content"},
		Filterable: []string{"sender_id", "type", "channel"},
	},
	Tasks: {
		Name:       Tasks,
		OrderField: "created_at",
		KeyFields:  []string{"created_by", "title"},
		ActorField: "created_by",
		Required:   []string{"title"},
		Filterable: []string{"assignee_id", "done", "due", "created_by"},
	},
	Events: {
		Name:       Events,
		OrderField: "start",
		KeyFields:  []string{"created_by", "title", "start"},
		ActorField: "created_by",
		Required:   []string{"title", "start", "end"},
		Unique:     [][]string{{"ics_uid"}},
		Filterable: []string{"start", "end", "recurrence", "member_id", "ics_uid", "source"},
	},
	Groceries: {
		Name:       Groceries,
		OrderField: "created_at",
		KeyFields:  []string{"added_by", "name"},
		ActorField: "added_by",
		Required:   []string{"name"},
		Filterable: []string{"checked", "added_by"},
	},
	Completions: {
		Name:       Completions,
		OrderField: "created_at",
		KeyFields:  []string{"task_id", "date"},
		ActorField: "completed_by",
		Required:   []string{"task_id", "date"},
		Unique:     [][]string{{"task_id", "date"}},
		Filterable: []string{"task_id", "date", "completed_by"},
	},
	Meals: {
		Name:       Meals,
		OrderField: "date",
		KeyFields:  []string{"date", "slot"},
		ActorField: "planned_by",
		Required:   []string{"date", "slot", "dish"},
		Unique:     [][]string{{"date", "slot"}},
		Filterable: []string{"date", "slot"},
	},
}

// Lookup returns the collection registered under name.
func Lookup(name string) (Collection, bool) {
	c, ok := collections[name]
	return c, ok
}

// Names returns every registered collection name, sorted.
func Names() []string {
	out := make([]string, 0, len(collections))
	for name := range collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CanFilter reports whether field may be used in a condition or ordering.
func (c Collection) CanFilter(field string) bool {
	switch field {
	case "id", "client_ref", "created_at", "updated_at":
		return true
	}
	for _, f := range c.Filterable {
		if f == field {
			return true
		}
	}
	return false
}

// MatchKey is the heuristic key pairing a provisional record with the
// canonical record pushed for it. Empty when any key field is missing.
func (c Collection) MatchKey(r Record) string {
	if len(c.KeyFields) == 0 {
		return ""
	}
	parts := make([]string, len(c.KeyFields))
	for i, f := range c.KeyFields {
		v := r.String(f)
		if v == "" {
			return ""
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f")
}

// Less orders records by the collection's ordering field, then by id.
// Timestamp values compare chronologically; other values lexically.
func (c Collection) Less(a, b Record) bool {
	if cmp := CompareField(a, b, c.OrderField); cmp != 0 {
		return cmp < 0
	}
	return a.ID < b.ID
}

// CompareField compares one field of two records.
func CompareField(a, b Record, field string) int {
	ta, okA := a.Time(field)
	tb, okB := b.Time(field)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a.String(field), b.String(field))
}

// CompareValues compares two rendered field values, chronologically when
// both parse as timestamps.
func CompareValues(a, b string) int {
	ta, okA := ParseTime(a)
	tb, okB := ParseTime(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}
