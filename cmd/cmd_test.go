package cmd

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/marcus/hearth/internal/api"
	"github.com/marcus/hearth/internal/config"
	"github.com/marcus/hearth/internal/recur"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/serverdb"
)

func TestFindByPrefix(t *testing.T) {
	items := []record.Record{{ID: "abc123"}, {ID: "abd456"}, {ID: "xyz"}}
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{"abc123", "abc123", false},
		{"abc", "abc123", false},
		{"x", "xyz", false},
		{"ab", "", true},
		{"nope", "", true},
		{" ", "", true},
	}
	for _, tt := range tests {
		got, err := findByPrefix(items, tt.id)
		if (err != nil) != tt.wantErr || got.ID != tt.want {
			t.Errorf("findByPrefix(%q) = %q, %v", tt.id, got.ID, err)
		}
	}
}

func TestFindByTitle(t *testing.T) {
	items := []record.Record{
		{ID: "a1", Fields: map[string]any{"title": "Walk the dog"}},
		{ID: "b2", Fields: map[string]any{"title": "Water the plants"}},
		{ID: "c3", Fields: map[string]any{"name": "oat milk"}},
	}
	got, err := findByPrefix(items, "dog")
	if err != nil || got.ID != "a1" {
		t.Errorf("dog = %q, %v", got.ID, err)
	}
	got, err = findByPrefix(items, "oatm")
	if err != nil || got.ID != "c3" {
		t.Errorf("oatm = %q, %v", got.ID, err)
	}
	if _, err := findByPrefix(items, "zebra"); err == nil {
		t.Error("expected no match for zebra")
	}
}

func TestRepeatValue(t *testing.T) {
	var r recur.Recurrence
	v := repeatValue{&r}
	if v.String() != "none" {
		t.Errorf("zero value = %q", v.String())
	}
	for _, ok := range []string{"weekly", "Daily", "none"} {
		if err := v.Set(ok); err != nil {
			t.Errorf("Set(%q): %v", ok, err)
		}
	}
	if err := v.Set("yearly"); err == nil {
		t.Error("yearly accepted")
	}
}

func TestDaysValue(t *testing.T) {
	var days []time.Weekday
	v := daysValue{&days}
	if err := v.Set("fri,mon"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(days, []time.Weekday{time.Monday, time.Friday}) || v.String() != "mon,fri" {
		t.Errorf("days = %v (%s)", days, v.String())
	}
	if err := v.Set("someday"); err == nil {
		t.Error("garbage accepted")
	}
}

// household starts a server with one member and points the CLI config at it.
func household(t *testing.T) *serverdb.ServerDB {
	t.Helper()
	db, err := serverdb.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := api.NewServer(api.Config{RateLimitRead: 100000, RateLimitWrite: 100000, MaxWait: 2 * time.Second}, db)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.Close()
		srv.Shutdown(ctx)
		db.Close()
	})

	m, err := db.CreateMember("mom")
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := db.GenerateAPIKey(m.ID, "cli")
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("HEARTH_CONFIG", path)
	t.Setenv("HEARTH_SERVER_URL", "")
	t.Setenv("HEARTH_TOKEN", "")
	t.Setenv("HEARTH_MEMBER", "")
	if err := config.Save(path, &config.Config{ServerURL: ts.URL, Token: token, Member: "mom", Timeout: "5s"}); err != nil {
		t.Fatal(err)
	}
	return db
}

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("hearth %v: %v", args, err)
	}
}

func rows(t *testing.T, db *serverdb.ServerDB, coll string) []record.Record {
	t.Helper()
	recs, err := db.Select(context.Background(), coll, remote.Query{})
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestHouseholdCommands(t *testing.T) {
	db := household(t)

	run(t, "chat", "send", "dinner", "at", "7")
	msgs := rows(t, db, record.Messages)
	if len(msgs) != 1 || msgs[0].String("content") != "dinner at 7" || msgs[0].String("sender_id") != "mom" || msgs[0].String("channel") != "family" {
		t.Fatalf("messages = %+v", msgs)
	}
	run(t, "chat", "list")

	run(t, "task", "add", "Walk", "the", "dog", "--due", "2026-05-01")
	tasks := rows(t, db, record.Tasks)
	if len(tasks) != 1 || tasks[0].String("due") != "2026-05-01" || tasks[0].String("created_by") != "mom" {
		t.Fatalf("tasks = %+v", tasks)
	}
	run(t, "task", "done", tasks[0].ID[:6])
	if got := rows(t, db, record.Tasks)[0]; !got.Bool("done") {
		t.Errorf("task not done: %+v", got)
	}
	run(t, "task", "list", "--all")

	run(t, "grocery", "add", "eggs", "--qty", "12")
	items := rows(t, db, record.Groceries)
	if len(items) != 1 || items[0].String("quantity") != "12" || items[0].Bool("checked") {
		t.Fatalf("groceries = %+v", items)
	}
	run(t, "grocery", "check", items[0].ID)
	run(t, "grocery", "clear")
	if left := rows(t, db, record.Groceries); len(left) != 0 {
		t.Errorf("checked item not cleared: %+v", left)
	}

	run(t, "meal", "plan", "2026-05-01", "dinner", "pizza")
	run(t, "meal", "plan", "2026-05-01", "Dinner", "tacos")
	meals := rows(t, db, record.Meals)
	if len(meals) != 1 || meals[0].String("dish") != "tacos" {
		t.Errorf("meals = %+v", meals)
	}
	run(t, "meal", "list", "--from", "2026-04-30", "--to", "2026-05-02")
	run(t, "version", "--check=false")
}

func TestBulkGroceryAdd(t *testing.T) {
	db := household(t)

	rootCmd.SetIn(strings.NewReader("milk\n\nbread\n  apples \n"))
	defer rootCmd.SetIn(nil)
	run(t, "grocery", "add", "-")

	var names []string
	for _, r := range rows(t, db, record.Groceries) {
		names = append(names, r.String("name"))
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"apples", "bread", "milk"}) {
		t.Errorf("names = %v", names)
	}
}

func TestFlagError(t *testing.T) {
	base := errors.New("unknown flag: --asignee")
	err := flagError(taskAddCmd, base)
	if !errors.Is(err, base) || !strings.Contains(err.Error(), "--assignee") {
		t.Errorf("got %v", err)
	}

	err = flagError(groceryAddCmd, errors.New("unknown flag: --quantity"))
	if !strings.Contains(err.Error(), "try --qty") {
		t.Errorf("got %v", err)
	}

	other := errors.New("flag needs an argument: --due")
	if got := flagError(taskAddCmd, other); got != other {
		t.Errorf("got %v", got)
	}
}

func TestCalendarCommands(t *testing.T) {
	db := household(t)

	run(t, "cal", "add", "--title", "Swimming", "--start", "2026-05-04 16:00", "--end", "17:30", "--repeat", "weekly", "--days", "mon,wed")
	events := rows(t, db, record.Events)
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	ev := events[0]
	if ev.String("recurrence") != "weekly" || ev.String("recurrence_days") != "mon,wed" || ev.String("created_by") != "mom" {
		t.Errorf("event = %+v", ev)
	}
	start, _ := ev.Time("start")
	end, _ := ev.Time("end")
	if end.Sub(start) != 90*time.Minute {
		t.Errorf("duration = %v", end.Sub(start))
	}

	run(t, "cal", "agenda", "--from", "2026-05-04", "--to", "2026-05-10")
	run(t, "cal", "day", "2026-05-06")
	run(t, "cal", "week", "2026-05-06")
	run(t, "cal", "month", "2026-05")

	run(t, "cal", "edit", recur.OccurrenceID(ev.ID, 2), "--title", "Swim club")
	if got := rows(t, db, record.Events); len(got) != 1 || got[0].String("title") != "Swim club" {
		t.Errorf("occurrence edit did not update the series: %+v", got)
	}

	run(t, "cal", "rm", recur.OccurrenceID(ev.ID, 3))
	if got := rows(t, db, record.Events); len(got) != 0 {
		t.Errorf("series not deleted: %+v", got)
	}
}
