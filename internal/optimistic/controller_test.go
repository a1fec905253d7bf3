package optimistic

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/retry"
)

func TestChatMessageReconcilesWithoutDuplicate(t *testing.T) {
	store := &fakeStore{}
	coll, _ := record.Lookup(record.Messages)
	c := New(Config{
		Collection: coll,
		Store:      store,
		Actor:      "mom",
		Retry:      []retry.Option{retry.WithSleep(noSleep)},
		Now:        func() time.Time { return time.UnixMilli(1000) },
	})
	defer c.Close()

	var sawProvisional bool
	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		items := c.Items()
		sawProvisional = len(items) == 1 && items[0].ID == "temp-1000" && items[0].String("content") == "hello"
		rec.ID = "abc123"
		return rec, nil
	}

	got, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "hello"))
	if err != nil {
		t.Fatalf("SubmitCreate: %v", err)
	}
	if !sawProvisional {
		t.Error("provisional temp-1000 was not visible while the insert was in flight")
	}
	if got.ID != "abc123" {
		t.Fatalf("canonical id = %q, want abc123", got.ID)
	}

	c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: got})

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1: %v", len(items), ids(items))
	}
	if items[0].ID != "abc123" || items[0].String("content") != "hello" {
		t.Errorf("item = %s %q", items[0].ID, items[0].String("content"))
	}
	if _, ok := c.Find("temp-1000"); ok {
		t.Error("provisional temp-1000 still present")
	}
}

func TestPushBeforeInsertResponse(t *testing.T) {
	tests := []struct {
		name    string
		echoRef bool
	}{
		{"with client ref", true},
		{"heuristic key", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			c := newTestController(store, record.Messages)
			defer c.Close()

			store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
				canonical := store.commit(rec)
				pushed := canonical.Clone()
				if !tt.echoRef {
					pushed.ClientRef = ""
				}
				// The realtime echo lands before the insert response.
				c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: pushed})
				return canonical, nil
			}

			got, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "dinner at 6"))
			if err != nil {
				t.Fatal(err)
			}
			items := c.Items()
			if !slices.Equal(ids(items), []string{got.ID}) {
				t.Errorf("items = %v, want [%s]", ids(items), got.ID)
			}
		})
	}
}

func TestDuplicatePushIgnored(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Messages)
	defer c.Close()

	got, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "hi"))
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: got})
	}
	if n := len(c.Items()); n != 1 {
		t.Errorf("got %d items after repeated pushes, want 1", n)
	}
}

func TestSameKeyCreatesMatchOldestFirst(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Messages)
	defer c.Close()

	release := make(chan struct{})
	inFlight := make(chan record.Record, 2)
	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		inFlight <- rec
		<-release
		rec.ID = "srv-" + rec.ClientRef
		return rec, nil
	}

	done := make(chan error, 2)
	go func() {
		_, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "one"))
		done <- err
	}()
	first := <-inFlight
	go func() {
		_, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "two"))
		done <- err
	}()
	<-inFlight

	// A push without client_ref for the first message matches the oldest
	// pending provisional with the same sender and type.
	echo := first
	echo.ID = "srv-" + first.ClientRef
	echo.ClientRef = ""
	c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: echo})

	items := c.Items()
	if len(items) != 2 {
		t.Fatalf("items = %v, want 2", ids(items))
	}
	if items[0].ID != echo.ID || !items[1].IsProvisional() {
		t.Errorf("items = %v, want [%s temp-...]", ids(items), echo.ID)
	}

	close(release)
	for range 2 {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
	items = c.Items()
	if len(items) != 2 {
		t.Errorf("items = %v, want 2 canonical", ids(items))
	}
	for _, r := range items {
		if r.IsProvisional() {
			t.Errorf("provisional %s left after both creates finished", r.ID)
		}
	}
}

func TestInterleavingsNeverDuplicate(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 200 {
		store := &fakeStore{}
		c := newTestController(store, record.Messages)

		deleted := map[string]bool{}
		pushes := make(chan remote.Change, 64)
		// deliver applies a change now or queues it for after the responses.
		deliver := func(ch remote.Change) {
			if rng.IntN(2) == 0 {
				c.ApplyRemoteEvent(ch)
			} else {
				pushes <- ch
			}
		}
		store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
			canonical := store.commit(rec)
			if rng.IntN(4) != 0 {
				deliver(remote.Change{Op: remote.OpInsert, Record: canonical})
			}
			switch rng.IntN(4) {
			case 0:
				// Someone deletes it before our insert response lands.
				store.drop(canonical.ID)
				deleted[canonical.ID] = true
				deliver(remote.Change{Op: remote.OpDelete, Record: record.Record{ID: canonical.ID}})
			case 1:
				// Someone edits it before our insert response lands.
				edited, err := store.Update(ctx, record.Messages, canonical.ID, map[string]any{"content": "edited"})
				if err != nil {
					t.Fatal(err)
				}
				deliver(remote.Change{Op: remote.OpUpdate, Record: edited})
			}
			return canonical, nil
		}

		n := 1 + rng.IntN(6)
		for i := range n {
			if _, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", string(rune('a'+i)))); err != nil {
				t.Fatal(err)
			}
			// Other members' messages interleave with ours.
			if rng.IntN(3) == 0 {
				other := store.commit(record.Record{
					CreatedAt: testBase.Add(time.Duration(rng.IntN(600)) * time.Second),
					Fields:    map[string]any{"sender_id": "dad", "type": "text", "content": "ok"},
				})
				c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: other})
			}
		}
		close(pushes)
		for ch := range pushes {
			c.ApplyRemoteEvent(ch)
			if rng.IntN(2) == 0 {
				c.ApplyRemoteEvent(ch)
			}
		}

		items := c.Items()
		got := map[string]record.Record{}
		for _, r := range items {
			if _, dup := got[r.ID]; dup {
				t.Fatalf("round %d: duplicate id %s in %v", round, r.ID, ids(items))
			}
			got[r.ID] = r
			if r.IsProvisional() {
				t.Fatalf("round %d: provisional %s left behind", round, r.ID)
			}
			if deleted[r.ID] {
				t.Fatalf("round %d: deleted %s came back", round, r.ID)
			}
		}
		if len(items) != len(store.rows) {
			t.Fatalf("round %d: %d items, store has %d", round, len(items), len(store.rows))
		}
		for _, row := range store.rows {
			if got[row.ID].String("content") != row.String("content") {
				t.Fatalf("round %d: %s content = %q, store has %q", round, row.ID, got[row.ID].String("content"), row.String("content"))
			}
		}
		c.Close()
	}
}

func TestLateCreateResponseAfterRemoteDelete(t *testing.T) {
	tests := []struct {
		name string
		echo bool
	}{
		{"insert echo then delete", true},
		{"delete without echo", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			c := newTestController(store, record.Groceries)
			defer c.Close()

			store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
				canonical := store.commit(rec)
				if tt.echo {
					c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: canonical})
				}
				store.drop(canonical.ID)
				c.ApplyRemoteEvent(remote.Change{Op: remote.OpDelete, Record: record.Record{ID: canonical.ID}})
				return canonical, nil
			}

			if _, err := c.SubmitCreate(context.Background(), map[string]any{"name": "milk"}); err != nil {
				t.Fatal(err)
			}
			if items := c.Items(); len(items) != 0 {
				t.Errorf("items = %v, want empty", ids(items))
			}
		})
	}
}

func TestLateCreateResponseKeepsNewerPush(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Groceries)
	defer c.Close()

	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		canonical := store.commit(rec)
		c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: canonical})
		edited, err := store.Update(ctx, record.Groceries, canonical.ID, map[string]any{"checked": true})
		if err != nil {
			return record.Record{}, err
		}
		c.ApplyRemoteEvent(remote.Change{Op: remote.OpUpdate, Record: edited})
		return canonical, nil
	}

	got, err := c.SubmitCreate(context.Background(), map[string]any{"name": "milk", "checked": false})
	if err != nil {
		t.Fatal(err)
	}
	if rec, ok := c.Find(got.ID); !ok || !rec.Bool("checked") {
		t.Errorf("record = %+v, %v; want the pushed update kept", rec, ok)
	}
}

func TestItemsStayOrdered(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	store := &fakeStore{}
	c := newTestController(store, record.Messages)
	defer c.Close()

	for i := range 40 {
		if rng.IntN(2) == 0 {
			if _, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "x")); err != nil {
				t.Fatal(err)
			}
		} else {
			rec := store.commit(record.Record{
				CreatedAt: testBase.Add(time.Duration(rng.IntN(120)) * time.Second),
				Fields:    map[string]any{"sender_id": "kid", "type": "text"},
			})
			c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: rec})
		}
		items := c.Items()
		coll := c.Collection()
		if !slices.IsSortedFunc(items, func(a, b record.Record) int {
			if coll.Less(a, b) {
				return -1
			}
			if coll.Less(b, a) {
				return 1
			}
			return 0
		}) {
			t.Fatalf("step %d: items out of order: %v", i, ids(items))
		}
	}
}

func TestCreateRollbackOnPermanentError(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Messages)
	defer c.Close()

	if _, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "first")); err != nil {
		t.Fatal(err)
	}
	before := c.Items()

	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		return record.Record{}, &remote.Error{Code: remote.CodeNotNullViolation, Message: "null value in column content"}
	}
	_, err := c.SubmitCreate(context.Background(), map[string]any{"type": "text"})
	if remote.CodeOf(err) != remote.CodeNotNullViolation {
		t.Fatalf("err = %v, want code %s", err, remote.CodeNotNullViolation)
	}
	if store.insertCalls != 2 {
		t.Errorf("insert called %d times, permanent errors must not retry", store.insertCalls)
	}

	after := c.Items()
	if !slices.Equal(ids(before), ids(after)) {
		t.Errorf("items changed by failed create: %v -> %v", ids(before), ids(after))
	}
}

func TestCreateRetriesTransientErrors(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Tasks)
	defer c.Close()

	attempts := 0
	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		attempts++
		if attempts < 3 {
			return record.Record{}, &remote.Error{Code: remote.CodeUnavailable}
		}
		return store.commit(rec), nil
	}
	got, err := c.SubmitCreate(context.Background(), map[string]any{"title": "take out bins"})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if got.String("created_by") != "mom" {
		t.Errorf("actor not stamped: %v", got.Fields)
	}
}

func TestAfterCreateRunsOnSuccess(t *testing.T) {
	store := &fakeStore{}
	coll, _ := record.Lookup(record.Messages)
	var confirmed []string
	c := New(Config{
		Collection:  coll,
		Store:       store,
		Actor:       "mom",
		Retry:       []retry.Option{retry.WithSleep(noSleep)},
		AfterCreate: func(r record.Record) { confirmed = append(confirmed, r.ID) },
	})
	defer c.Close()

	got, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "hi"))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(confirmed, []string{got.ID}) {
		t.Errorf("AfterCreate saw %v", confirmed)
	}
}

func TestUpdateRevertsOnFailure(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Tasks)
	defer c.Close()

	task, err := c.SubmitCreate(context.Background(), map[string]any{"title": "mow lawn", "done": false})
	if err != nil {
		t.Fatal(err)
	}

	store.onUpdate = func(ctx context.Context, id string, fields map[string]any) (record.Record, error) {
		if got, _ := c.Find(id); !got.Bool("done") {
			t.Error("optimistic update not visible during the call")
		}
		return record.Record{}, &remote.Error{Code: remote.CodePermissionDenied}
	}
	if _, err := c.SubmitUpdate(context.Background(), task.ID, map[string]any{"done": true}); err == nil {
		t.Fatal("expected error")
	}
	got, _ := c.Find(task.ID)
	if got.Bool("done") {
		t.Error("update was not reverted")
	}
}

func TestUpdateKeepsNewerPushOnFailure(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Tasks)
	defer c.Close()

	task, err := c.SubmitCreate(context.Background(), map[string]any{"title": "mow lawn"})
	if err != nil {
		t.Fatal(err)
	}
	store.onUpdate = func(ctx context.Context, id string, fields map[string]any) (record.Record, error) {
		newer := task.With(map[string]any{"title": "mow lawn (dad did it)"})
		newer.UpdatedAt = testBase.Add(time.Hour)
		c.ApplyRemoteEvent(remote.Change{Op: remote.OpUpdate, Record: newer})
		return record.Record{}, &remote.Error{Code: remote.CodeCheckViolation}
	}
	if _, err := c.SubmitUpdate(context.Background(), task.ID, map[string]any{"title": "mow"}); err == nil {
		t.Fatal("expected error")
	}
	got, _ := c.Find(task.ID)
	if got.String("title") != "mow lawn (dad did it)" {
		t.Errorf("title = %q, pushed version should survive", got.String("title"))
	}
}

func TestUpdateProvisionalRejected(t *testing.T) {
	c := newTestController(&fakeStore{}, record.Tasks)
	defer c.Close()
	if _, err := c.SubmitUpdate(context.Background(), "temp-5", map[string]any{"done": true}); !errors.Is(err, ErrProvisional) {
		t.Errorf("err = %v, want ErrProvisional", err)
	}
	if err := c.SubmitDelete(context.Background(), "temp-5"); !errors.Is(err, ErrProvisional) {
		t.Errorf("err = %v, want ErrProvisional", err)
	}
}

func TestDeleteRestoresOnFailure(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Groceries)
	defer c.Close()

	milk, err := c.SubmitCreate(context.Background(), map[string]any{"name": "milk"})
	if err != nil {
		t.Fatal(err)
	}
	store.onDelete = func(ctx context.Context, id string) error {
		if _, ok := c.Find(id); ok {
			t.Error("record still visible during delete")
		}
		return &remote.Error{Code: remote.CodeForeignKeyViolation}
	}
	if err := c.SubmitDelete(context.Background(), milk.ID); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Find(milk.ID); !ok {
		t.Error("record not restored after failed delete")
	}
}

func TestDeleteMissingRowSucceeds(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Groceries)
	defer c.Close()

	milk, err := c.SubmitCreate(context.Background(), map[string]any{"name": "milk"})
	if err != nil {
		t.Fatal(err)
	}
	store.rows = nil
	if err := c.SubmitDelete(context.Background(), milk.ID); err != nil {
		t.Fatalf("delete of vanished row: %v", err)
	}
	if len(c.Items()) != 0 {
		t.Errorf("items = %v, want empty", ids(c.Items()))
	}
}

func TestRemoteDeleteAndUpdate(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Groceries)
	defer c.Close()

	eggs := store.commit(record.Record{CreatedAt: testBase, Fields: map[string]any{"name": "eggs"}})
	c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: eggs})

	ghost := record.Record{ID: "never-seen", Fields: map[string]any{"name": "ghost"}}
	c.ApplyRemoteEvent(remote.Change{Op: remote.OpUpdate, Record: ghost})
	if _, ok := c.Find("never-seen"); ok {
		t.Error("update for an unknown record should be ignored")
	}

	c.ApplyRemoteEvent(remote.Change{Op: remote.OpUpdate, Record: eggs.With(map[string]any{"checked": true})})
	if got, _ := c.Find(eggs.ID); !got.Bool("checked") {
		t.Error("remote update not applied")
	}

	c.ApplyRemoteEvent(remote.Change{Op: remote.OpDelete, Record: record.Record{ID: eggs.ID}})
	if len(c.Items()) != 0 {
		t.Error("remote delete not applied")
	}
	// A late insert echo for a deleted record must not resurrect it.
	c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: eggs})
	if len(c.Items()) != 0 {
		t.Error("deleted record resurrected by late insert echo")
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Messages)

	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		c.Close()
		return store.commit(rec), nil
	}
	if _, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "bye")); err != nil {
		t.Fatalf("SubmitCreate: %v", err)
	}
	items := c.Items()
	if len(items) != 1 || !items[0].IsProvisional() {
		t.Errorf("state changed after close: %v", ids(items))
	}

	c.ApplyRemoteEvent(remote.Change{Op: remote.OpInsert, Record: record.Record{ID: "x"}})
	if len(c.Items()) != 1 {
		t.Error("remote event applied after close")
	}
	if _, err := c.SubmitCreate(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	drained := make(chan struct{})
	go func() {
		for range c.Updates() {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Error("updates channel should be closed")
	}
}

func TestOpenLoadsAndFollowsSubscription(t *testing.T) {
	store := &fakeStore{}
	store.commit(record.Record{CreatedAt: testBase, Fields: map[string]any{"sender_id": "dad", "type": "text"}})
	c := newTestController(store, record.Messages)
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(c.Items()); n != 1 {
		t.Fatalf("loaded %d items, want 1", n)
	}

	pushed := store.commit(record.Record{CreatedAt: testBase.Add(time.Minute), Fields: map[string]any{"sender_id": "kid", "type": "text"}})
	store.push(remote.Change{Collection: record.Messages, Op: remote.OpInsert, Record: pushed})
	store.push(remote.Change{Collection: record.Tasks, Op: remote.OpInsert, Record: record.Record{ID: "wrong-coll"}})

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := c.Find(pushed.ID); ok {
			break
		}
		select {
		case <-c.Updates():
		case <-deadline:
			t.Fatal("pushed change never applied")
		}
	}
	if _, ok := c.Find("wrong-coll"); ok {
		t.Error("change for another collection applied")
	}
}

func TestResumeResubscribesAfterLapse(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Messages)
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	first := store.subs[0]
	store.mu.Unlock()
	first.drop()

	// Wait for the pump to notice the dropped connection.
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		lapsed := c.lapsed
		c.mu.Unlock()
		if lapsed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never marked lapsed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Missed while disconnected.
	missed := store.commit(record.Record{CreatedAt: testBase, Fields: map[string]any{"sender_id": "dad", "type": "text"}})

	if err := c.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Find(missed.ID); !ok {
		t.Error("resume did not heal the gap")
	}
	store.mu.Lock()
	nsubs := len(store.subs)
	store.mu.Unlock()
	if nsubs != 2 {
		t.Errorf("subscriptions = %d, want 2", nsubs)
	}
}

func TestRefetchKeepsInFlightProvisional(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, record.Messages)
	defer c.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	store.onInsert = func(ctx context.Context, rec record.Record) (record.Record, error) {
		close(started)
		<-release
		return store.commit(rec), nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitCreate(context.Background(), record.NewMessageFields("text", "still sending"))
		done <- err
	}()
	<-started

	if err := c.Refetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	items := c.Items()
	if len(items) != 1 || !items[0].IsProvisional() {
		t.Errorf("refetch dropped the in-flight provisional: %v", ids(items))
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	items = c.Items()
	if len(items) != 1 || items[0].IsProvisional() {
		t.Errorf("items = %v, want one canonical", ids(items))
	}
}
