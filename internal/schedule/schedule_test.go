package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcus/hearth/internal/ics"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/serverdb"
)

type fakeFetcher struct {
	bodies map[string]string
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(strings.ReplaceAll(f.bodies[feedURL], "\n", "\r\n")), nil
}

func vcal(events ...string) string {
	return "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//t//t//EN\n" + strings.Join(events, "") + "END:VCALENDAR\n"
}

func vevent(uid, start, summary string) string {
	return "BEGIN:VEVENT\nUID:" + uid + "\nDTSTAMP:20250101T000000Z\nDTSTART:" + start + "\nDTEND:" + start[:9] + "235900Z\nSUMMARY:" + summary + "\nEND:VEVENT\n"
}

func openStore(t *testing.T) *serverdb.ServerDB {
	t.Helper()
	db, err := serverdb.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRefreshImportsUpdatesAndRemoves(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	f := &fakeFetcher{bodies: map[string]string{
		"https://school.example/cal.ics": vcal(
			vevent("a@school", "20250901T080000Z", "Term starts"),
			vevent("b@school", "20250915T080000Z", "Photo day"),
		),
	}}
	r := New(map[string]string{"school": "https://school.example/cal.ics"}, db, f)

	res := r.RefreshAll(ctx)
	if len(res) != 1 || res[0].Err != nil || res[0].Inserted != 2 {
		t.Fatalf("first refresh = %+v", res)
	}

	res = r.RefreshAll(ctx)
	if res[0].Unchanged != 2 || res[0].Inserted != 0 || res[0].Updated != 0 {
		t.Errorf("second refresh = %+v", res[0])
	}

	f.bodies["https://school.example/cal.ics"] = vcal(vevent("a@school", "20250901T080000Z", "Term starts (half day)"))
	res = r.RefreshAll(ctx)
	if res[0].Updated != 1 || res[0].Removed != 1 {
		t.Errorf("third refresh = %+v", res[0])
	}

	rows, err := db.Select(ctx, record.Events, remote.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].String("title") != "Term starts (half day)" || rows[0].String("source") != "school" {
		t.Errorf("events = %+v", rows)
	}

	changes, err := db.Changes(ctx, record.Events, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes.Changes) != 4 {
		t.Errorf("change log has %d entries, want 4 (2 inserts, update, delete)", len(changes.Changes))
	}
}

func TestRefreshLeavesManualEvents(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	manual, err := db.Insert(ctx, record.Events, record.Record{Fields: map[string]any{
		"title": "Dentist", "start": "2025-09-03T10:00:00Z", "end": "2025-09-03T11:00:00Z",
	}})
	if err != nil {
		t.Fatal(err)
	}

	r := New(map[string]string{"club": "u"}, db, &fakeFetcher{bodies: map[string]string{"u": vcal()}})
	if res := r.RefreshAll(ctx); res[0].Err != nil || res[0].Removed != 0 {
		t.Fatalf("refresh = %+v", res)
	}
	if _, err := db.Get(ctx, record.Events, manual.ID); err != nil {
		t.Errorf("manual event removed: %v", err)
	}
}

func TestRefreshSkipsAndReportsErrors(t *testing.T) {
	db := openStore(t)
	r := New(map[string]string{"a": "u1", "b": "u2"}, db, &fakeFetcher{err: ics.ErrNotModified})
	res := r.RefreshAll(context.Background())
	if len(res) != 2 || !res[0].Skipped || res[0].Feed != "a" || res[1].Feed != "b" {
		t.Errorf("not modified = %+v", res)
	}

	boom := errors.New("boom")
	r = New(map[string]string{"a": "u1"}, db, &fakeFetcher{err: boom})
	if res := r.RefreshAll(context.Background()); !errors.Is(res[0].Err, boom) {
		t.Errorf("err = %v", res[0].Err)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := New(map[string]string{"a": "u"}, openStore(t), &fakeFetcher{err: ics.ErrNotModified})
	if err := r.Start("every now and then"); err == nil {
		t.Error("bad spec accepted")
	}

	empty := New(nil, nil, nil)
	if err := empty.Start("garbage"); err != nil {
		t.Errorf("runner without feeds should not schedule: %v", err)
	}

	ok := New(map[string]string{"a": "u"}, openStore(t), &fakeFetcher{err: ics.ErrNotModified})
	if err := ok.Start(""); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok.Stop(ctx)
}
