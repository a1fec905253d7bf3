package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/serverdb"
)

// HeadResponse is the body of GET /v1/changes/head.
type HeadResponse struct {
	HeadSeq int64 `json:"head_seq"`
}

// handleHead handles GET /v1/changes/head.
func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	head, err := s.store.Head(r.Context())
	if err != nil {
		writeStoreError(w, r, "head", err)
		return
	}
	writeJSON(w, http.StatusOK, HeadResponse{HeadSeq: head})
}

// handleChanges handles GET /v1/collections/{name}/changes and
// GET /v1/changes. Query: after_seq, limit, wait (a duration, or seconds).
// With wait set, an empty page is held open until a change arrives or the
// wait runs out.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	collection := r.PathValue("name")

	var after int64
	if v := q.Get("after_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid after_seq")
			return
		}
		after = n
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	wait, err := parseWait(q.Get("wait"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid wait")
		return
	}
	wait = min(wait, s.config.MaxWait)

	ctx := r.Context()
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	hub := s.store.Hub()
	seen := max(after, hub.Head())
	var page serverdb.ChangePage
	for {
		page, err = s.store.Changes(r.Context(), collection, after, limit)
		if err != nil {
			writeStoreError(w, r, "changes", err)
			return
		}
		if len(page.Changes) > 0 || wait == 0 {
			break
		}
		head := hub.Wait(ctx, seen)
		if head <= seen {
			break
		}
		seen = head
	}

	if len(page.Changes) == 0 {
		// Nothing in this collection up to seen; let the client skip ahead.
		page.LastSeq = seen
		page.Changes = []remote.Change{}
	}
	s.metrics.RecordChangesServed(len(page.Changes))
	writeJSON(w, http.StatusOK, page)
}

func parseWait(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(n, 0)) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	return max(d, 0), nil
}
