package api

import (
	"encoding/json"
	"net/http"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

// handleSelect handles GET /v1/collections/{name}.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	q, err := remote.ParseQuery(r.URL.Query())
	if err != nil {
		writeStoreError(w, r, "parse query", err)
		return
	}
	rows, err := s.store.Select(r.Context(), r.PathValue("name"), q)
	if err != nil {
		writeStoreError(w, r, "select", err)
		return
	}
	if rows == nil {
		rows = []record.Record{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleGet handles GET /v1/collections/{name}/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("name"), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleInsert handles POST /v1/collections/{name}. The body is a record;
// its id and timestamps are ignored.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	out, err := s.store.Insert(r.Context(), r.PathValue("name"), rec)
	if err != nil {
		writeStoreError(w, r, "insert", err)
		return
	}
	s.metrics.RecordMutation()
	logFor(r.Context()).Debug("inserted", "collection", r.PathValue("name"), "id", out.ID, "client_ref", out.ClientRef)
	writeJSON(w, http.StatusCreated, out)
}

// handleUpdate handles PATCH /v1/collections/{name}/{id}. The body is the
// object of fields to merge.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "body must be a json object")
		return
	}
	out, err := s.store.Update(r.Context(), r.PathValue("name"), r.PathValue("id"), fields)
	if err != nil {
		writeStoreError(w, r, "update", err)
		return
	}
	s.metrics.RecordMutation()
	writeJSON(w, http.StatusOK, out)
}

// handleDelete handles DELETE /v1/collections/{name}/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("name"), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete", err)
		return
	}
	s.metrics.RecordMutation()
	w.WriteHeader(http.StatusNoContent)
}
