package remote

import (
	"testing"

	"github.com/marcus/hearth/internal/record"
)

func TestCondMatches(t *testing.T) {
	r := record.Record{ID: "1", Fields: map[string]any{
		"start": "2026-03-14T09:00:00Z",
		"done":  true,
		"title": "dentist",
	}}
	tests := []struct {
		c    Cond
		want bool
	}{
		{Cond{"title", Eq, "dentist"}, true},
		{Cond{"done", Eq, "true"}, true},
		{Cond{"start", Gte, "2026-03-14"}, true},
		{Cond{"start", Lte, "2026-03-14T08:59:00+00:00"}, false},
		{Cond{"start", Lte, "2026-03-14T10:00:00+01:00"}, true},
		{Cond{"missing", Gte, ""}, false},
	}
	for _, tt := range tests {
		if got := tt.c.Matches(r); got != tt.want {
			t.Errorf("%+v: got %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestQueryRoundTripThroughValues(t *testing.T) {
	q := Query{
		Where:   []Cond{{"sender_id", Eq, "mom"}, {"created_at", Gte, "2026-01-01"}},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   20,
	}
	got, err := ParseQuery(q.Values())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Where) != 2 || got.OrderBy != "created_at" || !got.Desc || got.Limit != 20 {
		t.Errorf("got %+v", got)
	}
	if _, err := ParseQuery(map[string][]string{"limit": {"-3"}}); CodeOf(err) != CodeBadRequest {
		t.Errorf("negative limit: err = %v", err)
	}
}

func TestQueryValidate(t *testing.T) {
	tasks, _ := record.Lookup(record.Tasks)
	if err := (Query{Where: []Cond{{"assignee_id", Eq, "kid"}}}).Validate(tasks); err != nil {
		t.Errorf("assignee filter: %v", err)
	}
	err := (Query{Where: []Cond{{"secret", Eq, "x"}}}).Validate(tasks)
	if CodeOf(err) != CodeUndefinedColumn || !IsPermanent(err) {
		t.Errorf("unknown column: err = %v", err)
	}
	if err := (Query{OrderBy: "nope"}).Validate(tasks); CodeOf(err) != CodeUndefinedColumn {
		t.Errorf("unknown order: err = %v", err)
	}
}

func TestQueryRun(t *testing.T) {
	msgs, _ := record.Lookup(record.Messages)
	recs := []record.Record{
		{ID: "c", Fields: map[string]any{"sender_id": "mom", "n": "3"}},
		{ID: "a", Fields: map[string]any{"sender_id": "dad", "n": "1"}},
		{ID: "b", Fields: map[string]any{"sender_id": "mom", "n": "2"}},
	}
	got := Query{Where: []Cond{{"sender_id", Eq, "mom"}}, OrderBy: "n", Desc: true, Limit: 1}.Run(msgs, recs)
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("got %v", got)
	}
	if recs[0].ID != "c" || len(recs) != 3 {
		t.Error("input mutated")
	}
}
