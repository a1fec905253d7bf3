package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/config"
	"github.com/marcus/hearth/internal/notify"
	"github.com/marcus/hearth/internal/optimistic"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/storeclient"
)

// app is the composition root shared by the household commands: one store
// client, the controllers built on it and the notification sender.
type app struct {
	ctx      context.Context
	cfg      *config.Config
	client   *storeclient.Client
	notifier *notify.Client
	lists    []*optimistic.Controller
	json     bool
}

// newApp loads the client config, applies flag overrides and connects.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("member"); v != "" {
		cfg.Member = v
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := storeclient.New(cfg.ServerURL, cfg.Token)
	client.Timeout = cfg.RequestTimeout()
	jsonOut, _ := cmd.Flags().GetBool("json")

	return &app{
		ctx:      cmd.Context(),
		cfg:      cfg,
		client:   client,
		notifier: notify.NewClient(client),
		json:     jsonOut,
	}, nil
}

// list builds a controller for collection. Chat controllers notify the rest
// of the household once a message is confirmed.
func (a *app) list(collection string, q remote.Query) *optimistic.Controller {
	coll, ok := record.Lookup(collection)
	if !ok {
		panic("unknown collection " + collection)
	}
	cfg := optimistic.Config{
		Collection: coll,
		Store:      a.client,
		Query:      q,
		Actor:      a.cfg.Member,
	}
	if collection == record.Messages {
		cfg.AfterCreate = func(rec record.Record) {
			a.notifier.Deliver(notify.ForMessage(rec))
		}
	}
	c := optimistic.New(cfg)
	a.lists = append(a.lists, c)
	return c
}

// load builds a controller and fetches its window once, without a live
// subscription.
func (a *app) load(collection string, q remote.Query) (*optimistic.Controller, error) {
	c := a.list(collection, q)
	if err := c.Refetch(a.ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes every controller and waits for pending notifications.
func (a *app) Close() {
	for _, c := range a.lists {
		c.Close()
	}
	a.notifier.Wait()
}

func (a *app) now() time.Time { return time.Now() }

// printRecords prints recs as JSON or through format.
func (a *app) printRecords(recs []record.Record, empty string, format func(record.Record) string) error {
	if a.json {
		if recs == nil {
			recs = []record.Record{}
		}
		return output.JSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println(empty)
		return nil
	}
	for _, r := range recs {
		fmt.Println(format(r))
	}
	return nil
}

// findByPrefix resolves a full or shortened record id within items. When no
// id matches, the argument is fuzzy-matched against each record's title.
func findByPrefix(items []record.Record, id string) (record.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return record.Record{}, fmt.Errorf("id is required")
	}
	var matches []record.Record
	for _, r := range items {
		if r.ID == id {
			return r, nil
		}
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return findByTitle(items, id)
	case 1:
		return matches[0], nil
	}
	return record.Record{}, fmt.Errorf("%q is ambiguous (%d matches)", id, len(matches))
}

// titleSource exposes record labels to the fuzzy matcher.
type titleSource []record.Record

func (s titleSource) String(i int) string { return label(s[i]) }
func (s titleSource) Len() int            { return len(s) }

func label(r record.Record) string {
	for _, f := range []string{"title", "name", "dish", "content"} {
		if v := r.String(f); v != "" {
			return v
		}
	}
	return ""
}

func findByTitle(items []record.Record, query string) (record.Record, error) {
	found := fuzzy.FindFrom(query, titleSource(items))
	if len(found) == 0 {
		return record.Record{}, fmt.Errorf("no record matches %q", query)
	}
	if len(found) > 1 && found[1].Score == found[0].Score {
		var names []string
		for _, m := range found[:min(len(found), 3)] {
			names = append(names, fmt.Sprintf("%q", m.Str))
		}
		return record.Record{}, fmt.Errorf("%q is ambiguous: %s", query, strings.Join(names, ", "))
	}
	return items[found[0].Index], nil
}

func eq(field, value string) remote.Cond {
	return remote.Cond{Field: field, Op: remote.Eq, Value: value}
}
