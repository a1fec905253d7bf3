package record

import (
	"testing"
	"time"
)

func TestMatchKey(t *testing.T) {
	msgs, _ := Lookup(Messages)

	a := Record{ID: "temp-1", Fields: map[string]any{"sender_id": "mom", "type": "text", "content": "hi"}}
	b := Record{ID: "abc", Fields: map[string]any{"sender_id": "mom", "type": "text", "content": "different"}}
	c := Record{ID: "def", Fields: map[string]any{"sender_id": "dad", "type": "text"}}

	if msgs.MatchKey(a) != msgs.MatchKey(b) {
		t.Errorf("same sender/type should share a key")
	}
	if msgs.MatchKey(a) == msgs.MatchKey(c) {
		t.Errorf("different senders should not share a key")
	}
	if got := msgs.MatchKey(Record{Fields: map[string]any{"type": "text"}}); got != "" {
		t.Errorf("missing key field should give empty key, got %q", got)
	}
}

func TestLess(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs, _ := Lookup(Messages)
	early := Record{ID: "b", CreatedAt: base}
	late := Record{ID: "a", CreatedAt: base.Add(time.Second)}
	if !msgs.Less(early, late) || msgs.Less(late, early) {
		t.Errorf("created_at ordering broken")
	}
	tie := Record{ID: "c", CreatedAt: base}
	if !msgs.Less(early, tie) {
		t.Errorf("ties should break on id")
	}

	events, _ := Lookup(Events)
	e1 := Record{ID: "x", Fields: map[string]any{"start": "2026-03-01T08:00:00Z"}}
	e2 := Record{ID: "y", Fields: map[string]any{"start": "2026-03-01T07:00:00+00:00"}}
	if !events.Less(e2, e1) {
		t.Errorf("events should order by start time")
	}
}

func TestWithDoesNotMutateOriginal(t *testing.T) {
	r := Record{ID: "1", Fields: map[string]any{"title": "old"}}
	u := r.With(map[string]any{"title": "new", "done": true})
	if r.String("title") != "old" {
		t.Errorf("original mutated: %v", r.Fields)
	}
	if u.String("title") != "new" || !u.Bool("done") {
		t.Errorf("merge failed: %v", u.Fields)
	}
}

func TestFieldString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{float64(3), "3"},
		{1.5, "1.5"},
		{[]any{"mon", "wed"}, "mon,wed"},
	}
	for _, tt := range tests {
		if got := FieldString(tt.in); got != tt.want {
			t.Errorf("FieldString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsProvisionalID(t *testing.T) {
	if !IsProvisionalID("temp-1000") {
		t.Error("temp-1000 should be provisional")
	}
	if IsProvisionalID("abc123") {
		t.Error("abc123 should be canonical")
	}
}
