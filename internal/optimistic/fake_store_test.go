package optimistic

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/retry"
)

// fakeStore is an in-memory remote.Store whose calls can be intercepted.
type fakeStore struct {
	mu     sync.Mutex
	rows   []record.Record
	nextID int
	subs   []*fakeSub

	insertCalls int
	onInsert    func(ctx context.Context, rec record.Record) (record.Record, error)
	onUpdate    func(ctx context.Context, id string, fields map[string]any) (record.Record, error)
	onDelete    func(ctx context.Context, id string) error
	onSelect    func(ctx context.Context) ([]record.Record, error)
}

func (f *fakeStore) Select(ctx context.Context, collection string, q remote.Query) ([]record.Record, error) {
	if f.onSelect != nil {
		return f.onSelect(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]record.Record, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

// commit stores rec with a server id, as the default insert does.
func (f *fakeStore) commit(rec record.Record) record.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = fmt.Sprintf("srv-%d", f.nextID)
	rec.CreatedAt = rec.CreatedAt.Add(time.Millisecond)
	f.rows = append(f.rows, rec)
	return rec
}

// drop removes a row as another member's delete would.
func (f *fakeStore) drop(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = slices.DeleteFunc(f.rows, func(r record.Record) bool { return r.ID == id })
}

func (f *fakeStore) Insert(ctx context.Context, collection string, rec record.Record) (record.Record, error) {
	f.mu.Lock()
	f.insertCalls++
	hook := f.onInsert
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, rec)
	}
	return f.commit(rec), nil
}

func (f *fakeStore) Update(ctx context.Context, collection, id string, fields map[string]any) (record.Record, error) {
	if f.onUpdate != nil {
		return f.onUpdate(ctx, id, fields)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID == id {
			f.rows[i] = r.With(fields)
			f.rows[i].UpdatedAt = r.UpdatedAt.Add(time.Second)
			return f.rows[i], nil
		}
	}
	return record.Record{}, &remote.Error{Code: remote.CodeNoRows}
}

func (f *fakeStore) Delete(ctx context.Context, collection, id string) error {
	if f.onDelete != nil {
		return f.onDelete(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return &remote.Error{Code: remote.CodeNoRows}
}

func (f *fakeStore) Subscribe(ctx context.Context, collection string, where []remote.Cond) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{ch: make(chan remote.Change, 16)}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeStore) push(ch remote.Change) {
	f.mu.Lock()
	subs := append([]*fakeSub(nil), f.subs...)
	f.mu.Unlock()
	for _, s := range subs {
		s.send(ch)
	}
}

type fakeSub struct {
	mu     sync.Mutex
	ch     chan remote.Change
	closed bool
}

func (s *fakeSub) Changes() <-chan remote.Change { return s.ch }

func (s *fakeSub) send(ch remote.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- ch
	}
}

// drop simulates a lost connection.
func (s *fakeSub) drop() { s.Close() }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

var testBase = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// newTestController builds a messages controller with a fixed clock.
func newTestController(store remote.Store, collName string) *Controller {
	coll, _ := record.Lookup(collName)
	tick := 0
	refs := 0
	return New(Config{
		Collection: coll,
		Store:      store,
		Actor:      "mom",
		Retry:      []retry.Option{retry.WithSleep(noSleep)},
		Now: func() time.Time {
			tick++
			return testBase.Add(time.Duration(tick) * time.Second)
		},
		NewRef: func() string {
			refs++
			return fmt.Sprintf("ref-%d", refs)
		},
	})
}

func ids(recs []record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
