package storeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/hearth/internal/api"
	"github.com/marcus/hearth/internal/notify"
	"github.com/marcus/hearth/internal/optimistic"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/retry"
	"github.com/marcus/hearth/internal/serverdb"
)

type testServer struct {
	url   string
	store *serverdb.ServerDB
}

// newTestServer runs a real hearth-server over a temp database.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := serverdb.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	srv, err := api.NewServer(api.Config{RateLimitRead: 100000, RateLimitWrite: 100000, MaxWait: 2 * time.Second}, store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Version = "v1.0.0"
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		store.Hub().Close()
		hs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		store.Close()
	})
	return &testServer{url: hs.URL, store: store}
}

func (ts *testServer) client(t *testing.T, member string) *Client {
	t.Helper()
	m, err := ts.store.CreateMember(member)
	if err != nil {
		t.Fatal(err)
	}
	tok, _, err := ts.store.GenerateAPIKey(m.ID, "test")
	if err != nil {
		t.Fatal(err)
	}
	c := New(ts.url, tok)
	c.PollWait = 500 * time.Millisecond
	return c
}

func TestCRUDAndErrorClassification(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client(t, "mom")
	ctx := context.Background()

	rec, err := c.Insert(ctx, record.Groceries, record.Record{ClientRef: "ref-1", Fields: map[string]any{"name": "milk"}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" || rec.ClientRef != "ref-1" {
		t.Fatalf("rec = %+v", rec)
	}

	rows, err := c.Select(ctx, record.Groceries, remote.Query{Where: []remote.Cond{{Field: "checked", Op: remote.Eq, Value: "false"}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("unchecked filter on a missing field matched %d", len(rows))
	}

	upd, err := c.Update(ctx, record.Groceries, rec.ID, map[string]any{"checked": true})
	if err != nil || !upd.Bool("checked") {
		t.Fatalf("update = %+v, %v", upd, err)
	}
	got, err := c.Get(ctx, record.Groceries, rec.ID)
	if err != nil || !got.Bool("checked") {
		t.Fatalf("get = %+v, %v", got, err)
	}

	if err := c.Delete(ctx, record.Groceries, rec.ID); err != nil {
		t.Fatal(err)
	}
	err = c.Delete(ctx, record.Groceries, rec.ID)
	if !remote.IsNotFound(err) || !errors.Is(err, ErrNotFound) || !remote.IsPermanent(err) {
		t.Errorf("second delete: %v", err)
	}

	_, err = c.Insert(ctx, record.Groceries, record.Record{Fields: map[string]any{}})
	if remote.CodeOf(err) != remote.CodeNotNullViolation || !remote.IsPermanent(err) {
		t.Errorf("missing name: %v", err)
	}

	bad := New(ts.url, "hth_wrong")
	_, err = bad.Select(ctx, record.Groceries, remote.Query{})
	if !errors.Is(err, ErrUnauthorized) || !remote.IsPermanent(err) {
		t.Errorf("bad token: %v", err)
	}
}

func TestStatusErrorsWithoutBody(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/collections/tasks":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer hs.Close()
	c := New(hs.URL, "tok")

	_, err := c.Select(context.Background(), record.Tasks, remote.Query{})
	if remote.CodeOf(err) != remote.CodeUnavailable || remote.IsPermanent(err) {
		t.Errorf("502: %v", err)
	}
	_, err = c.Select(context.Background(), record.Meals, remote.Query{})
	if remote.CodeOf(err) != remote.CodeRateLimited || remote.IsPermanent(err) {
		t.Errorf("429: %v", err)
	}

	unreachable := New("http://127.0.0.1:1", "tok")
	_, err = unreachable.Select(context.Background(), record.Tasks, remote.Query{})
	if err == nil || remote.IsPermanent(err) {
		t.Errorf("transport failure should be transient: %v", err)
	}
}

func TestSubscribeFiltersAndCloses(t *testing.T) {
	ts := newTestServer(t)
	mom := ts.client(t, "mom")
	dad := ts.client(t, "dad")
	ctx := context.Background()

	// Rows written before subscribing are not replayed.
	if _, err := dad.Insert(ctx, record.Messages, record.Record{Fields: map[string]any{"sender_id": "dad", "content": "old", "channel": "family"}}); err != nil {
		t.Fatal(err)
	}

	sub, err := mom.Subscribe(ctx, record.Messages, []remote.Cond{{Field: "channel", Op: remote.Eq, Value: "family"}})
	if err != nil {
		t.Fatal(err)
	}

	for _, ch := range []string{"kids", "family"} {
		if _, err := dad.Insert(ctx, record.Messages, record.Record{Fields: map[string]any{"sender_id": "dad", "content": "to " + ch, "channel": ch}}); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case ch := <-sub.Changes():
		if ch.Op != remote.OpInsert || ch.Record.String("content") != "to family" || ch.Collection != record.Messages {
			t.Errorf("change = %+v", ch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	if err := sub.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-sub.Changes(); ok {
		t.Error("channel still open after Close")
	}
}

func TestSubscribeEndsOnRevokedToken(t *testing.T) {
	ts := newTestServer(t)
	m, _ := ts.store.CreateMember("kid")
	tok, key, _ := ts.store.GenerateAPIKey(m.ID, "tablet")
	c := New(ts.url, tok)
	c.PollWait = 100 * time.Millisecond

	sub, err := c.Subscribe(context.Background(), record.Tasks, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if err := ts.store.RevokeAPIKey(key.ID); err != nil {
		t.Fatal(err)
	}

	select {
	case _, ok := <-sub.Changes():
		if ok {
			t.Error("unexpected change")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription kept polling with a revoked token")
	}
}

// A message sent through a controller shows up exactly once for the sender
// and once for another member, and triggers one notification.
func TestControllersConvergeOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	momClient := ts.client(t, "mom")
	dadClient := ts.client(t, "dad")
	ctx := context.Background()

	notes := make(chan notify.Notification, 1)
	coll, _ := record.Lookup(record.Messages)
	newCtrl := func(c *Client, actor string, after func(record.Record)) *optimistic.Controller {
		ctrl := optimistic.New(optimistic.Config{
			Collection:  coll,
			Store:       c,
			Actor:       actor,
			AfterCreate: after,
			Retry:       []retry.Option{retry.WithMaxAttempts(2)},
		})
		if err := ctrl.Open(ctx); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { ctrl.Close() })
		return ctrl
	}
	mom := newCtrl(momClient, "mom", func(r record.Record) { notes <- notify.ForMessage(r) })
	dad := newCtrl(dadClient, "dad", nil)

	canonical, err := mom.SubmitCreate(ctx, record.NewMessageFields("text", "hello"))
	if err != nil {
		t.Fatal(err)
	}

	waitFor := func(ctrl *optimistic.Controller, who string) {
		deadline := time.After(5 * time.Second)
		for {
			items := ctrl.Items()
			if len(items) == 1 && items[0].ID == canonical.ID && items[0].String("content") == "hello" {
				return
			}
			if len(items) > 1 {
				t.Fatalf("%s has duplicates: %+v", who, items)
			}
			select {
			case <-ctrl.Updates():
			case <-time.After(50 * time.Millisecond):
			case <-deadline:
				t.Fatalf("%s never converged: %+v", who, ctrl.Items())
			}
		}
	}
	waitFor(mom, "mom")
	waitFor(dad, "dad")

	// Let mom's own echo arrive and make sure it did not duplicate.
	time.Sleep(700 * time.Millisecond)
	if n := len(mom.Items()); n != 1 {
		t.Errorf("mom has %d messages after echo", n)
	}

	select {
	case n := <-notes:
		if n.Except != "mom" || n.URL != "/chat#"+canonical.ID {
			t.Errorf("notification = %+v", n)
		}
		if err := momClient.Notify(ctx, n); err != nil {
			t.Errorf("notify: %v", err)
		}
	default:
		t.Error("AfterCreate did not run")
	}
}

func TestEndpointsAndMembers(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client(t, "mom")
	ts.client(t, "dad")
	ctx := context.Background()

	ep, err := c.RegisterEndpoint(ctx, "https://push.example/mom", "s")
	if err != nil {
		t.Fatal(err)
	}
	eps, err := c.Endpoints(ctx)
	if err != nil || len(eps) != 1 || eps[0].ID != ep.ID {
		t.Fatalf("endpoints = %+v, %v", eps, err)
	}
	if err := c.DeleteEndpoint(ctx, ep.ID); err != nil {
		t.Fatal(err)
	}

	members, err := c.Members(ctx)
	if err != nil || len(members) != 2 {
		t.Errorf("members = %+v, %v", members, err)
	}
	if h, err := c.HealthCheck(ctx); err != nil || h.Status != "ok" || h.Version != "v1.0.0" {
		t.Errorf("health = %+v, %v", h, err)
	}
}
