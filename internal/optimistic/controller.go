// Package optimistic implements the per-list optimistic mutation controller:
// local writes are shown immediately, persisted through the retry wrapper,
// reconciled with the canonical record the store returns, and merged with
// change events pushed by other clients without duplicates or ghosts.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/retry"
)

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")
	// ErrProvisional is returned when updating or deleting a record the store
	// has not confirmed yet.
	ErrProvisional = errors.New("record not yet confirmed")
)

// Config wires a controller to one collection window of a store.
type Config struct {
	Collection record.Collection
	Store      remote.Store
	// Query selects the window this list shows; its equality conditions also
	// filter the subscription.
	Query remote.Query
	// Actor is the current member, stamped into Collection.ActorField.
	Actor string
	Retry []retry.Option
	// AfterCreate runs once a local create is confirmed. It must not block.
	AfterCreate func(record.Record)

	Now    func() time.Time
	NewRef func() string
}

// Controller owns the state of one logical list and its subscription.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	closed   bool
	lastTemp int64
	updates  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	sub    remote.Subscription
	lapsed bool
	wg     sync.WaitGroup
}

// New creates a controller. Call Open to load the window and subscribe.
func New(cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRef == nil {
		cfg.NewRef = uuid.NewString
	}
	cfg.Retry = append([]retry.Option{retry.WithLabel(cfg.Collection.Name)}, cfg.Retry...)
	return &Controller{
		cfg:     cfg,
		state:   NewState(cfg.Collection),
		updates: make(chan struct{}, 1),
	}
}

// Collection returns the collection this controller manages.
func (c *Controller) Collection() record.Collection {
	return c.cfg.Collection
}

// Updates signals (coalesced) after every state change. It is closed by Close.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Items returns a copy of the current ordered list.
func (c *Controller) Items() []record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]record.Record, len(c.state.items))
	for i, r := range c.state.items {
		out[i] = r.Clone()
	}
	return out
}

// Find returns the record with id from the current list.
func (c *Controller) Find(id string) (record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.state.Get(id)
	return r.Clone(), ok
}

// update applies fn to the current state atomically. It reports false, and
// changes nothing, once the controller is closed.
func (c *Controller) update(fn func(State) State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.state = fn(c.state)
	select {
	case c.updates <- struct{}{}:
	default:
	}
	return true
}

// Open loads the window and starts the change subscription.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		slog.Warn("subscribe failed; list will only refresh on resume", "collection", c.cfg.Collection.Name, "err", err)
	}
	return c.Refetch(ctx)
}

func (c *Controller) subscribe() error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return ErrClosed
	}

	sub, err := retry.Do(ctx, func(ctx context.Context) (remote.Subscription, error) {
		return c.cfg.Store.Subscribe(ctx, c.cfg.Collection.Name, equalities(c.cfg.Query.Where))
	}, slices.Concat(c.cfg.Retry, []retry.Option{retry.WithAttemptTimeout(0)})...)
	if err != nil {
		c.mu.Lock()
		c.lapsed = true
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", c.cfg.Collection.Name, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		return ErrClosed
	}
	c.sub = sub
	c.lapsed = false
	c.wg.Add(1)
	c.mu.Unlock()

	go c.pump(sub)
	return nil
}

func (c *Controller) pump(sub remote.Subscription) {
	defer c.wg.Done()
	for ch := range sub.Changes() {
		if ch.Collection != "" && ch.Collection != c.cfg.Collection.Name {
			continue
		}
		c.ApplyRemoteEvent(ch)
	}
	c.mu.Lock()
	if c.sub == sub && !c.closed {
		c.lapsed = true
		slog.Info("subscription lapsed", "collection", c.cfg.Collection.Name)
	}
	c.mu.Unlock()
}

// equalities keeps the conditions a subscription can evaluate per record.
func equalities(where []remote.Cond) []remote.Cond {
	var out []remote.Cond
	for _, w := range where {
		if w.Op == remote.Eq {
			out = append(out, w)
		}
	}
	return out
}

// Refetch reloads the window and replaces the list wholesale.
func (c *Controller) Refetch(ctx context.Context) error {
	recs, err := retry.Do(ctx, func(ctx context.Context) ([]record.Record, error) {
		return c.cfg.Store.Select(ctx, c.cfg.Collection.Name, c.cfg.Query)
	}, c.cfg.Retry...)
	if err != nil {
		return fmt.Errorf("load %s: %w", c.cfg.Collection.Name, err)
	}
	if !c.update(func(s State) State { return s.Replace(recs) }) {
		return ErrClosed
	}
	return nil
}

// Resume is the visibility-regain path: refetch the window and restart the
// subscription if it lapsed.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	lapsed := c.lapsed || c.sub == nil
	old := c.sub
	if lapsed {
		c.sub = nil
	}
	c.mu.Unlock()

	if lapsed {
		if old != nil {
			old.Close()
		}
		if err := c.subscribe(); err != nil {
			slog.Warn("resubscribe failed", "collection", c.cfg.Collection.Name, "err", err)
		}
	}
	return c.Refetch(ctx)
}

// ApplyRemoteEvent merges a change pushed by another client.
func (c *Controller) ApplyRemoteEvent(ch remote.Change) {
	c.update(func(s State) State { return s.Apply(ch) })
}

func (c *Controller) nextTempID(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := now.UnixMilli()
	if ms <= c.lastTemp {
		ms = c.lastTemp + 1
	}
	c.lastTemp = ms
	return fmt.Sprintf("%s%d", record.ProvisionalPrefix, ms)
}

// SubmitCreate shows a provisional record immediately, persists it, and
// swaps in the canonical record. On a terminal failure the provisional is
// removed and the error returned.
func (c *Controller) SubmitCreate(ctx context.Context, fields map[string]any) (record.Record, error) {
	coll := c.cfg.Collection
	now := c.cfg.Now()

	fields = maps.Clone(fields)
	if fields == nil {
		fields = map[string]any{}
	}
	if coll.ActorField != "" && c.cfg.Actor != "" {
		if _, ok := fields[coll.ActorField]; !ok {
			fields[coll.ActorField] = c.cfg.Actor
		}
	}

	prov := record.Record{
		ID:        c.nextTempID(now),
		ClientRef: c.cfg.NewRef(),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    fields,
	}
	if !c.update(func(s State) State { return s.AddProvisional(prov) }) {
		return record.Record{}, ErrClosed
	}

	payload := prov.Clone()
	payload.ID = ""
	canonical, err := retry.Do(ctx, func(ctx context.Context) (record.Record, error) {
		return c.cfg.Store.Insert(ctx, coll.Name, payload)
	}, c.cfg.Retry...)
	if err != nil {
		c.update(func(s State) State { return s.Rollback(prov.ID) })
		return record.Record{}, fmt.Errorf("create %s: %w", coll.Name, err)
	}

	if c.update(func(s State) State { return s.Reconcile(prov.ID, canonical) }) && c.cfg.AfterCreate != nil {
		c.cfg.AfterCreate(canonical)
	}
	return canonical, nil
}

// SubmitUpdate applies fields locally, persists them, and reverts the local
// change on a terminal failure. A record outside the loaded window is still
// updated remotely.
func (c *Controller) SubmitUpdate(ctx context.Context, id string, fields map[string]any) (record.Record, error) {
	if record.IsProvisionalID(id) {
		return record.Record{}, ErrProvisional
	}
	coll := c.cfg.Collection

	var (
		prev       record.Record
		optimistic record.Record
		found      bool
	)
	stamp := c.cfg.Now()
	if !c.update(func(s State) State {
		prev, found = s.Get(id)
		if !found {
			return s
		}
		optimistic = prev.With(fields)
		optimistic.UpdatedAt = stamp
		return s.put(optimistic)
	}) {
		return record.Record{}, ErrClosed
	}

	updated, err := retry.Do(ctx, func(ctx context.Context) (record.Record, error) {
		return c.cfg.Store.Update(ctx, coll.Name, id, fields)
	}, c.cfg.Retry...)
	if err != nil {
		if found {
			c.update(func(s State) State {
				cur, ok := s.Get(id)
				// Leave newer pushed versions alone.
				if !ok || !cur.UpdatedAt.Equal(optimistic.UpdatedAt) {
					return s
				}
				return s.put(prev)
			})
		}
		return record.Record{}, fmt.Errorf("update %s %s: %w", coll.Name, id, err)
	}

	c.update(func(s State) State {
		if _, ok := s.Get(id); !ok {
			return s
		}
		return s.put(updated)
	})
	return updated, nil
}

// SubmitDelete removes the record locally, deletes it remotely, and restores
// it on a terminal failure. Deleting a row the store no longer has counts as
// success.
func (c *Controller) SubmitDelete(ctx context.Context, id string) error {
	if record.IsProvisionalID(id) {
		return ErrProvisional
	}
	coll := c.cfg.Collection

	var (
		prev  record.Record
		found bool
	)
	if !c.update(func(s State) State {
		prev, found = s.Get(id)
		return s.remove(id)
	}) {
		return ErrClosed
	}

	err := retry.DoErr(ctx, func(ctx context.Context) error {
		return c.cfg.Store.Delete(ctx, coll.Name, id)
	}, c.cfg.Retry...)
	if err == nil || remote.IsNotFound(err) {
		return nil
	}
	if found {
		c.update(func(s State) State {
			if _, ok := s.Get(id); ok {
				return s
			}
			return s.insertSorted(prev)
		})
	}
	return fmt.Errorf("delete %s %s: %w", coll.Name, id, err)
}

// Close cancels the subscription and turns every later state update into a
// no-op, including completions of calls already in flight.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.updates)
	cancel := c.cancel
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	c.wg.Wait()
	return err
}
