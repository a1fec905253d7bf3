// Package recur materializes recurring calendar events into the concrete
// occurrences that fall inside a window. Expansion is a pure function of the
// base events and the window; occurrences are never stored.
package recur

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Recurrence is the native repeat rule of a base event.
type Recurrence string

const (
	None    Recurrence = "none"
	Daily   Recurrence = "daily"
	Weekly  Recurrence = "weekly"
	Monthly Recurrence = "monthly"
)

// ParseRecurrence maps stored values onto a Recurrence; unknown values are
// treated as non-recurring.
func ParseRecurrence(s string) Recurrence {
	switch r := Recurrence(strings.ToLower(strings.TrimSpace(s))); r {
	case Daily, Weekly, Monthly:
		return r
	}
	return None
}

// MaxSteps bounds the number of candidate occurrences generated per event.
const MaxSteps = 400

const occurrenceSep = "_r"

// Event is a calendar event, either a stored base event or a synthesized
// occurrence of one.
type Event struct {
	ID       string
	Title    string
	Start    time.Time
	End      time.Time
	AllDay   bool
	MemberID string

	Recurrence Recurrence
	// Days restricts weekly recurrence to these weekdays.
	Days []time.Weekday
	// RRule is an RFC 5545 rule imported from a feed; it takes precedence
	// over Recurrence.
	RRule string

	// ParentID is set on occurrences only.
	ParentID string
	// Fields carries the remaining display fields of the stored record.
	Fields map[string]any
}

// Recurring reports whether the event repeats.
func (e Event) Recurring() bool {
	return e.RRule != "" || (e.Recurrence != "" && e.Recurrence != None)
}

// IsOccurrence reports whether the event was synthesized by expansion.
func (e Event) IsOccurrence() bool {
	return e.ParentID != ""
}

// Duration returns End - Start, never negative.
func (e Event) Duration() time.Duration {
	return max(e.End.Sub(e.Start), 0)
}

// OccurrenceID returns the id of the n-th occurrence of base.
func OccurrenceID(base string, n int) string {
	return fmt.Sprintf("%s%s%d", base, occurrenceSep, n)
}

// ParentID resolves an occurrence id to the id of its base event. Ids that
// are not occurrence ids are returned unchanged.
func ParentID(id string) string {
	i := strings.LastIndex(id, occurrenceSep)
	if i <= 0 {
		return id
	}
	if _, err := strconv.Atoi(id[i+len(occurrenceSep):]); err != nil {
		return id
	}
	return id[:i]
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// ParseDays parses a comma separated weekday list ("mon,wed" or "1,3",
// Sunday = 0). Unknown entries are ignored; the result is sorted and unique.
func ParseDays(s string) []time.Weekday {
	var out []time.Weekday
	for part := range strings.SplitSeq(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if d, ok := weekdayNames[part[:min(3, len(part))]]; ok {
			out = append(out, d)
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n >= 0 && n <= 6 {
			out = append(out, time.Weekday(n))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// FormatDays is the inverse of ParseDays.
func FormatDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strings.ToLower(d.String()[:3])
	}
	return strings.Join(parts, ",")
}

// Occurrences lazily yields the expansion of events for the inclusive
// window [from, to]. Non-recurring events are yielded unchanged whether or
// not they fall inside the window. Iteration is deterministic and may be
// restarted.
func Occurrences(events []Event, from, to time.Time) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, ev := range events {
			if !ev.Recurring() {
				if !yield(ev) {
					return
				}
				continue
			}
			for occ := range expandOne(ev, from, to) {
				if !yield(occ) {
					return
				}
			}
		}
	}
}

// Expand collects Occurrences ordered by start, then id.
func Expand(events []Event, from, to time.Time) []Event {
	out := slices.Collect(Occurrences(events, from, to))
	slices.SortStableFunc(out, func(a, b Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// expandOne yields the in-window occurrences of a single recurring event.
func expandOne(ev Event, from, to time.Time) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for n, start := range starts(ev) {
			if start.After(to) {
				return
			}
			if start.Before(from) {
				continue
			}
			if !yield(occurrence(ev, n, start)) {
				return
			}
		}
	}
}

// starts yields candidate start times in ascending order with their index,
// at most MaxSteps of them.
func starts(ev Event) iter.Seq2[int, time.Time] {
	if ev.RRule != "" {
		return rruleStarts(ev)
	}
	return func(yield func(int, time.Time) bool) {
		base := ev.Start
		switch ev.Recurrence {
		case Daily:
			for n := range MaxSteps {
				if !yield(n, base.AddDate(0, 0, n)) {
					return
				}
			}
		case Monthly:
			// Always step from the base so month-end days do not drift.
			for n := range MaxSteps {
				if !yield(n, base.AddDate(0, n, 0)) {
					return
				}
			}
		case Weekly:
			if len(ev.Days) == 0 {
				for n := range MaxSteps {
					if !yield(n, base.AddDate(0, 0, 7*n)) {
						return
					}
				}
				return
			}
			offsets := make([]int, len(ev.Days))
			for i, d := range ev.Days {
				offsets[i] = (int(d) - int(base.Weekday()) + 7) % 7
			}
			slices.Sort(offsets)
			offsets = slices.Compact(offsets)
			n := 0
			for week := 0; n < MaxSteps; week++ {
				for _, off := range offsets {
					if n >= MaxSteps || !yield(n, base.AddDate(0, 0, 7*week+off)) {
						return
					}
					n++
				}
			}
		}
	}
}

func rruleStarts(ev Event) iter.Seq2[int, time.Time] {
	return func(yield func(int, time.Time) bool) {
		r, err := rrule.StrToRRule(ev.RRule)
		if err != nil {
			slog.Warn("recur: bad rrule, showing base event only", "event", ev.ID, "rrule", ev.RRule, "err", err)
			yield(0, ev.Start)
			return
		}
		r.DTStart(ev.Start)
		next := r.Iterator()
		for n := range MaxSteps {
			t, ok := next()
			if !ok || !yield(n, t) {
				return
			}
		}
	}
}

// occurrence copies ev to start, keeping its duration.
func occurrence(ev Event, n int, start time.Time) Event {
	occ := ev
	occ.ID = OccurrenceID(ev.ID, n)
	occ.ParentID = ev.ID
	occ.End = start.Add(ev.Duration())
	occ.Start = start
	return occ
}
