// Package schedule refreshes the configured calendar feeds into the events
// collection on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/marcus/hearth/internal/calendar"
	"github.com/marcus/hearth/internal/ics"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

// DefaultSpec refreshes every half hour.
const DefaultSpec = "*/30 * * * *"

// Store is the part of the record store the runner writes through.
type Store interface {
	Select(ctx context.Context, collection string, q remote.Query) ([]record.Record, error)
	Delete(ctx context.Context, collection, id string) error
	UpsertBy(ctx context.Context, collection, key string, rec record.Record) (record.Record, remote.Op, error)
}

// Fetcher downloads one feed.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// Result summarizes one feed refresh.
type Result struct {
	Feed      string
	Inserted  int
	Updated   int
	Unchanged int
	Removed   int
	Skipped   bool // feed not modified
	Err       error
}

// Runner imports feeds on a schedule. Refreshes never overlap.
type Runner struct {
	feeds map[string]string
	store Store
	fetch Fetcher

	cron    *cron.Cron
	refresh sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a runner for feeds (name → URL).
func New(feeds map[string]string, store Store, fetch Fetcher) *Runner {
	if fetch == nil {
		fetch = ics.NewFetcher()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		feeds:  maps.Clone(feeds),
		store:  store,
		fetch:  fetch,
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start validates spec, runs one refresh in the background and schedules the
// rest. A runner without feeds does nothing.
func (r *Runner) Start(spec string) error {
	if len(r.feeds) == 0 {
		return nil
	}
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := r.cron.AddFunc(spec, func() { r.RefreshAll(r.ctx) }); err != nil {
		return fmt.Errorf("ics refresh schedule %q: %w", spec, err)
	}
	r.cron.Start()
	go r.RefreshAll(r.ctx)
	slog.Info("ics refresh scheduled", "spec", spec, "feeds", len(r.feeds))
	return nil
}

// Stop cancels a running refresh and waits for scheduled jobs to finish or
// ctx to expire.
func (r *Runner) Stop(ctx context.Context) {
	r.cancel()
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RefreshAll imports every feed in name order.
func (r *Runner) RefreshAll(ctx context.Context) []Result {
	r.refresh.Lock()
	defer r.refresh.Unlock()

	var out []Result
	for _, name := range slices.Sorted(maps.Keys(r.feeds)) {
		res := r.refreshFeed(ctx, name, r.feeds[name])
		if res.Err != nil {
			slog.Warn("ics refresh failed", "feed", name, "url", ics.Redact(r.feeds[name]), "err", res.Err)
		} else if !res.Skipped {
			slog.Info("ics refreshed", "feed", name, "inserted", res.Inserted, "updated", res.Updated, "removed", res.Removed)
		}
		out = append(out, res)
	}
	return out
}

func (r *Runner) refreshFeed(ctx context.Context, name, feedURL string) Result {
	res := Result{Feed: name}
	body, err := r.fetch.Fetch(ctx, feedURL)
	if errors.Is(err, ics.ErrNotModified) {
		res.Skipped = true
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}
	events, err := ics.Parse(name, body)
	if err != nil {
		res.Err = err
		return res
	}

	current := make(map[string]bool, len(events))
	for _, ev := range events {
		uid, _ := ev.Fields["ics_uid"].(string)
		current[uid] = true
		_, op, err := r.store.UpsertBy(ctx, record.Events, "ics_uid", record.Record{Fields: calendar.Fields(ev)})
		if err != nil {
			res.Err = fmt.Errorf("upsert %s: %w", uid, err)
			return res
		}
		switch op {
		case remote.OpInsert:
			res.Inserted++
		case remote.OpUpdate:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	// Events that disappeared from the feed are removed.
	stored, err := r.store.Select(ctx, record.Events, remote.Query{Where: []remote.Cond{{Field: "source", Op: remote.Eq, Value: name}}})
	if err != nil {
		res.Err = fmt.Errorf("list imported events: %w", err)
		return res
	}
	for _, rec := range stored {
		if current[rec.String("ics_uid")] {
			continue
		}
		if err := r.store.Delete(ctx, record.Events, rec.ID); err != nil && !remote.IsNotFound(err) {
			res.Err = fmt.Errorf("remove %s: %w", rec.String("ics_uid"), err)
			return res
		}
		res.Removed++
	}
	return res
}
