package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/marcus/hearth/internal/notify"
	"github.com/marcus/hearth/internal/serverdb"
)

// RegisterEndpointRequest is the body of POST /v1/push/endpoints.
type RegisterEndpointRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// NotifyResponse is the body of an accepted POST /v1/notify.
type NotifyResponse struct {
	Accepted  bool `json:"accepted"`
	Endpoints int  `json:"endpoints"`
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	m := memberFromContext(r.Context())
	eps, err := s.store.EndpointsFor([]string{m.Name})
	if err != nil {
		writeStoreError(w, r, "list endpoints", err)
		return
	}
	if eps == nil {
		eps = []*serverdb.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (s *Server) handleRegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req RegisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	m := memberFromContext(r.Context())
	ep, err := s.store.RegisterEndpoint(m.Name, strings.TrimSpace(req.URL), req.Secret)
	if err != nil {
		writeStoreError(w, r, "register endpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	m := memberFromContext(r.Context())
	if err := s.store.DeleteEndpoint(r.PathValue("id"), m.Name); err != nil {
		writeStoreError(w, r, "delete endpoint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNotify handles POST /v1/notify. The notification is accepted
// immediately and delivered in the background.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var n notify.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Body) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "title or body is required")
		return
	}

	targets, err := s.targetsFor(n)
	if err != nil {
		writeStoreError(w, r, "resolve endpoints", err)
		return
	}

	log := logFor(r.Context())
	if len(targets) > 0 {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.fanout(s.ctx, n, targets)
		}()
	}
	log.Info("notification accepted", "endpoints", len(targets), "except", n.Except)
	writeJSON(w, http.StatusAccepted, NotifyResponse{Accepted: true, Endpoints: len(targets)})
}

func (s *Server) targetsFor(n notify.Notification) ([]notify.Target, error) {
	var members []string
	if len(n.Recipients) > 0 {
		members = n.Recipients
	}
	eps, err := s.store.EndpointsFor(members)
	if err != nil {
		return nil, err
	}
	var targets []notify.Target
	for _, ep := range eps {
		if len(n.Recipients) == 0 && ep.MemberID == n.Except {
			continue
		}
		targets = append(targets, notify.Target{ID: ep.ID, URL: ep.URL, Secret: ep.Secret})
	}
	return targets, nil
}

// fanout delivers n and updates endpoint bookkeeping: gone endpoints are
// deregistered, failures counted.
func (s *Server) fanout(ctx context.Context, n notify.Notification, targets []notify.Target) {
	results := s.dispatcher.Fanout(ctx, n, targets)
	var delivered, failed int
	for _, res := range results {
		switch {
		case res.Gone:
			failed++
			if err := s.store.DeleteEndpoint(res.EndpointID, ""); err != nil {
				logFor(ctx).Warn("deregister gone endpoint", "endpoint", res.EndpointID, "err", err)
			}
		case res.Err != nil:
			failed++
			if err := s.store.RecordDelivery(res.EndpointID, res.Err); err != nil {
				logFor(ctx).Warn("record delivery", "endpoint", res.EndpointID, "err", err)
			}
		default:
			delivered++
			if err := s.store.RecordDelivery(res.EndpointID, nil); err != nil {
				logFor(ctx).Warn("record delivery", "endpoint", res.EndpointID, "err", err)
			}
		}
	}
	s.metrics.RecordNotification(delivered, failed)
}
