package remote

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/marcus/hearth/internal/record"
)

// Matches reports whether r satisfies the condition.
func (c Cond) Matches(r record.Record) bool {
	v := r.String(c.Field)
	switch c.Op {
	case Eq:
		return v == c.Value
	case Gte:
		return v != "" && record.CompareValues(v, c.Value) >= 0
	case Lte:
		return v != "" && record.CompareValues(v, c.Value) <= 0
	}
	return false
}

// MatchesAll reports whether r satisfies every condition.
func MatchesAll(r record.Record, where []Cond) bool {
	for _, c := range where {
		if !c.Matches(r) {
			return false
		}
	}
	return true
}

// Validate checks that every field the query touches may be filtered on.
func (q Query) Validate(coll record.Collection) error {
	for _, c := range q.Where {
		if !coll.CanFilter(c.Field) {
			return Errorf(CodeUndefinedColumn, "column %s.%s does not exist", coll.Name, c.Field)
		}
		if c.Op != Eq && c.Op != Gte && c.Op != Lte {
			return Errorf(CodeBadRequest, "unknown operator %q", c.Op)
		}
	}
	if q.OrderBy != "" && !coll.CanFilter(q.OrderBy) {
		return Errorf(CodeUndefinedColumn, "column %s.%s does not exist", coll.Name, q.OrderBy)
	}
	return nil
}

// Run filters, orders and limits recs in memory. Without OrderBy the
// collection order applies.
func (q Query) Run(coll record.Collection, recs []record.Record) []record.Record {
	out := slices.DeleteFunc(slices.Clone(recs), func(r record.Record) bool {
		return !MatchesAll(r, q.Where)
	})
	slices.SortStableFunc(out, func(a, b record.Record) int {
		var c int
		if q.OrderBy == "" {
			switch {
			case coll.Less(a, b):
				c = -1
			case coll.Less(b, a):
				c = 1
			}
		} else if c = record.CompareField(a, b, q.OrderBy); c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if q.Desc {
			c = -c
		}
		return c
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Values encodes the query as URL parameters: "<op>.<field>=value",
// "order", "desc" and "limit".
func (q Query) Values() url.Values {
	v := url.Values{}
	for _, c := range q.Where {
		v.Add(string(c.Op)+"."+c.Field, c.Value)
	}
	if q.OrderBy != "" {
		v.Set("order", q.OrderBy)
	}
	if q.Desc {
		v.Set("desc", "1")
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ParseQuery decodes Values. Unrecognized parameters are ignored.
func ParseQuery(v url.Values) (Query, error) {
	var q Query
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		op, field, ok := strings.Cut(k, ".")
		if !ok {
			continue
		}
		switch CondOp(op) {
		case Eq, Gte, Lte:
		default:
			continue
		}
		for _, val := range v[k] {
			q.Where = append(q.Where, Cond{Field: field, Op: CondOp(op), Value: val})
		}
	}
	q.OrderBy = v.Get("order")
	q.Desc = v.Get("desc") == "1" || v.Get("desc") == "true"
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Query{}, Errorf(CodeBadRequest, "invalid limit %q", s)
		}
		q.Limit = n
	}
	return q, nil
}
