// Package layout arranges expanded calendar events for day, week and month
// views. Everything here is pure and deterministic.
package layout

import (
	"cmp"
	"slices"
	"time"

	"github.com/marcus/hearth/internal/recur"
)

// Placement is an event positioned in a day column layout.
type Placement struct {
	Event recur.Event
	// Column is the zero-based column the event is drawn in.
	Column int
	// Columns is the width of the group the event shares the day with:
	// one more than the highest column among events overlapping it.
	Columns int
}

func overlaps(a, b recur.Event) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func byStart(a, b recur.Event) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// AssignColumns places events in the lowest free column, where a column is
// free once its previous event has ended. Overlapping events never share a
// column. The result is ordered by start time.
func AssignColumns(events []recur.Event) []Placement {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, byStart)

	out := make([]Placement, len(sorted))
	var ends []time.Time
	for i, ev := range sorted {
		col := slices.IndexFunc(ends, func(end time.Time) bool { return !end.After(ev.Start) })
		if col < 0 {
			col = len(ends)
			ends = append(ends, ev.End)
		} else {
			ends[col] = ev.End
		}
		out[i] = Placement{Event: ev, Column: col}
	}

	for i := range out {
		width := out[i].Column + 1
		for j := range out {
			if i != j && overlaps(out[i].Event, out[j].Event) {
				width = max(width, out[j].Column+1)
			}
		}
		out[i].Columns = width
	}
	return out
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// OnDay returns the events that touch the calendar day containing day,
// ordered by start. Zero-length events count when they start on that day.
func OnDay(events []recur.Event, day time.Time) []recur.Event {
	start := StartOfDay(day)
	end := start.AddDate(0, 0, 1)
	span := recur.Event{Start: start, End: end}

	var out []recur.Event
	for _, ev := range events {
		inDay := !ev.Start.Before(start) && ev.Start.Before(end)
		if overlaps(ev, span) || inDay {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, byStart)
	return out
}

// Week returns the seven days of the week containing day, beginning on
// weekStart.
func Week(day time.Time, weekStart time.Weekday) []time.Time {
	first := StartOfDay(day)
	back := (int(first.Weekday()) - int(weekStart) + 7) % 7
	first = first.AddDate(0, 0, -back)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = first.AddDate(0, 0, i)
	}
	return days
}

// MonthGrid returns the whole weeks covering month, each starting on
// weekStart. Leading and trailing days belong to the adjacent months.
func MonthGrid(month time.Time, weekStart time.Weekday) [][]time.Time {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	last := first.AddDate(0, 1, -1)

	var weeks [][]time.Time
	for day := first; !day.After(last); day = day.AddDate(0, 0, 7) {
		week := Week(day, weekStart)
		if len(weeks) > 0 && weeks[len(weeks)-1][0].Equal(week[0]) {
			continue
		}
		weeks = append(weeks, week)
	}
	if lastWeek := weeks[len(weeks)-1]; lastWeek[6].Before(last) {
		weeks = append(weeks, Week(last, weekStart))
	}
	return weeks
}

// DayKey identifies a calendar day independent of time of day.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ByDay buckets events by each day they touch within days.
func ByDay(events []recur.Event, days []time.Time) map[string][]recur.Event {
	out := make(map[string][]recur.Event, len(days))
	for _, d := range days {
		if evs := OnDay(events, d); len(evs) > 0 {
			out[DayKey(d)] = evs
		}
	}
	return out
}
