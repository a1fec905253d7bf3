package optimistic

import (
	"slices"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

// provisional tracks one unreconciled local create.
type provisional struct {
	ID  string
	Key string // heuristic matching key, may be empty
	Ref string // client_ref correlation token
}

// State is the list state of one controller. Every method returns a new
// State and leaves the receiver untouched, so an update can be expressed as a
// pure function of the state current at the moment it runs.
type State struct {
	coll    record.Collection
	items   []record.Record
	pending []provisional // submission order, oldest first
	// seen holds canonical ids already merged or deleted. recent is the
	// subset marked since the last Replace; only it outlives a refetch.
	seen   map[string]struct{}
	recent map[string]struct{}
}

// NewState returns an empty state for the collection.
func NewState(coll record.Collection) State {
	return State{coll: coll, seen: map[string]struct{}{}, recent: map[string]struct{}{}}
}

// Items returns the ordered records.
func (s State) Items() []record.Record {
	return s.items
}

// Pending returns the ids of unreconciled provisional records.
func (s State) Pending() []string {
	ids := make([]string, len(s.pending))
	for i, p := range s.pending {
		ids[i] = p.ID
	}
	return ids
}

// Seen reports whether a canonical id has already been merged.
func (s State) Seen(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(r record.Record) bool { return r.ID == id })
}

// Get returns the record with the given id.
func (s State) Get(id string) (record.Record, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return record.Record{}, false
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m)+1)
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func (s State) markSeen(id string) State {
	if s.Seen(id) {
		return s
	}
	s.seen = cloneSet(s.seen)
	s.seen[id] = struct{}{}
	s.recent = cloneSet(s.recent)
	s.recent[id] = struct{}{}
	return s
}

// insertSorted places rec at its ordered position.
func (s State) insertSorted(rec record.Record) State {
	i, _ := slices.BinarySearchFunc(s.items, rec, func(a, b record.Record) int {
		switch {
		case s.coll.Less(a, b):
			return -1
		case s.coll.Less(b, a):
			return 1
		}
		return 0
	})
	s.items = slices.Insert(slices.Clone(s.items), i, rec)
	return s
}

// remove drops the record with id, if present.
func (s State) remove(id string) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	s.items = slices.Delete(slices.Clone(s.items), i, i+1)
	return s
}

// put replaces the record with the same id (re-sorting it) or inserts it.
func (s State) put(rec record.Record) State {
	return s.remove(rec.ID).insertSorted(rec)
}

func (s State) dropPending(id string) State {
	i := slices.IndexFunc(s.pending, func(p provisional) bool { return p.ID == id })
	if i < 0 {
		return s
	}
	s.pending = slices.Delete(slices.Clone(s.pending), i, i+1)
	return s
}

// AddProvisional records an optimistic create.
func (s State) AddProvisional(rec record.Record) State {
	s = s.insertSorted(rec)
	s.pending = append(slices.Clone(s.pending), provisional{
		ID:  rec.ID,
		Key: s.coll.MatchKey(rec),
		Ref: rec.ClientRef,
	})
	return s
}

// Reconcile replaces a provisional record with its canonical counterpart.
// If the canonical record already arrived through the change stream the
// provisional is simply dropped and the canonical copy refreshed in place.
// A canonical id that was seen and has since been deleted stays deleted, and
// a newer pushed version is not overwritten.
func (s State) Reconcile(provisionalID string, canonical record.Record) State {
	s = s.dropPending(provisionalID).remove(provisionalID)
	existing, ok := s.Get(canonical.ID)
	switch {
	case !ok && s.Seen(canonical.ID):
		return s
	case ok && existing.UpdatedAt.After(canonical.UpdatedAt):
		// A pushed update already superseded the insert response.
	default:
		s = s.put(canonical)
	}
	return s.markSeen(canonical.ID)
}

// Rollback removes a provisional record whose create failed for good.
func (s State) Rollback(provisionalID string) State {
	return s.dropPending(provisionalID).remove(provisionalID)
}

// match finds the unreconciled provisional a pushed record stands for.
// A pushed record carrying a client_ref only ever matches that exact token;
// the heuristic key is the fallback for stores that do not echo it.
func (s State) match(rec record.Record) (provisional, bool) {
	if rec.ClientRef != "" {
		for _, p := range s.pending {
			if p.Ref == rec.ClientRef {
				return p, true
			}
		}
		return provisional{}, false
	}
	key := s.coll.MatchKey(rec)
	if key == "" {
		return provisional{}, false
	}
	for _, p := range s.pending {
		if p.Key == key {
			return p, true
		}
	}
	return provisional{}, false
}

// Apply merges a change pushed by the store.
func (s State) Apply(ch remote.Change) State {
	rec := ch.Record
	switch ch.Op {
	case remote.OpInsert:
		if s.Seen(rec.ID) {
			return s
		}
		if s.indexOf(rec.ID) >= 0 {
			return s.put(rec).markSeen(rec.ID)
		}
		if p, ok := s.match(rec); ok {
			return s.Reconcile(p.ID, rec)
		}
		return s.insertSorted(rec).markSeen(rec.ID)
	case remote.OpUpdate:
		if s.indexOf(rec.ID) >= 0 {
			return s.put(rec)
		}
		// An edit to one of our creates can overtake both its insert echo
		// and the insert response.
		if !s.Seen(rec.ID) {
			if p, ok := s.match(rec); ok {
				return s.Reconcile(p.ID, rec)
			}
		}
		return s
	case remote.OpDelete:
		// Marked so a create response arriving later cannot bring it back.
		return s.remove(rec.ID).markSeen(rec.ID)
	}
	return s
}

// Replace swaps the whole list for a fresh fetch. Provisional records still
// in flight survive unless the fetch already contains their canonical
// counterpart, in which case they are reconciled against it.
func (s State) Replace(fetched []record.Record) State {
	next := NewState(s.coll)
	for _, rec := range fetched {
		next = next.put(rec).markSeen(rec.ID)
	}
	// Ids marked since the last fetch may still have late events in flight;
	// older ones are either in the fetch or settled.
	for id := range s.recent {
		next.seen[id] = struct{}{}
	}
	next.recent = map[string]struct{}{}

	for _, p := range s.pending {
		prov, ok := s.Get(p.ID)
		if !ok {
			continue
		}
		probe := next
		probe.pending = []provisional{p}
		found := false
		for _, rec := range fetched {
			if s.Seen(rec.ID) {
				continue
			}
			if _, ok := probe.match(rec); ok {
				found = true
				break
			}
		}
		if found {
			continue
		}
		next = next.insertSorted(prov)
		next.pending = append(next.pending, p)
	}
	return next
}
