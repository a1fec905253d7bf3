// Package calendar adapts stored event records to the recurrence expander and
// layout engines, and routes edits of synthesized occurrences to the base
// event they came from.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/marcus/hearth/internal/layout"
	"github.com/marcus/hearth/internal/recur"
	"github.com/marcus/hearth/internal/record"
)

// ErrNotFound is returned when neither the id nor its parent is loaded.
var ErrNotFound = errors.New("event not found")

// envelope fields mapped onto recur.Event; everything else goes to Fields.
var eventFields = []string{"title", "start", "end", "all_day", "member_id", "recurrence", "recurrence_days", "rrule"}

// EventFromRecord converts a stored event record.
func EventFromRecord(r record.Record) recur.Event {
	start, _ := r.Time("start")
	end, ok := r.Time("end")
	if !ok || end.Before(start) {
		end = start
	}
	extra := maps.Clone(r.Fields)
	for _, f := range eventFields {
		delete(extra, f)
	}
	return recur.Event{
		ID:         r.ID,
		Title:      r.String("title"),
		Start:      start,
		End:        end,
		AllDay:     r.Bool("all_day"),
		MemberID:   r.String("member_id"),
		Recurrence: recur.ParseRecurrence(r.String("recurrence")),
		Days:       recur.ParseDays(r.String("recurrence_days")),
		RRule:      r.String("rrule"),
		Fields:     extra,
	}
}

// Fields renders an event as a record payload for create.
func Fields(e recur.Event) map[string]any {
	out := maps.Clone(e.Fields)
	if out == nil {
		out = map[string]any{}
	}
	out["title"] = e.Title
	out["start"] = e.Start.Format(time.RFC3339)
	out["end"] = e.End.Format(time.RFC3339)
	out["all_day"] = e.AllDay
	if e.MemberID != "" {
		out["member_id"] = e.MemberID
	}
	rec := e.Recurrence
	if rec == "" {
		rec = recur.None
	}
	out["recurrence"] = string(rec)
	if len(e.Days) > 0 {
		out["recurrence_days"] = recur.FormatDays(e.Days)
	}
	if e.RRule != "" {
		out["rrule"] = e.RRule
	}
	return out
}

// Events is the slice of the events controller the calendar needs.
type Events interface {
	Items() []record.Record
	Find(id string) (record.Record, bool)
	SubmitCreate(ctx context.Context, fields map[string]any) (record.Record, error)
	SubmitUpdate(ctx context.Context, id string, fields map[string]any) (record.Record, error)
	SubmitDelete(ctx context.Context, id string) error
}

// Calendar is a view over the events list.
type Calendar struct {
	events    Events
	WeekStart time.Weekday
}

// New wraps an events list.
func New(events Events) *Calendar {
	return &Calendar{events: events, WeekStart: time.Monday}
}

// Base returns the stored base events.
func (c *Calendar) Base() []recur.Event {
	items := c.events.Items()
	out := make([]recur.Event, len(items))
	for i, r := range items {
		out[i] = EventFromRecord(r)
	}
	return out
}

// Window expands every base event for the inclusive window [from, to].
func (c *Calendar) Window(from, to time.Time) []recur.Event {
	return recur.Expand(c.Base(), from, to)
}

// Day lays out the events of one day in columns.
func (c *Calendar) Day(day time.Time) []layout.Placement {
	start := layout.StartOfDay(day)
	return layout.AssignColumns(layout.OnDay(c.Window(start.AddDate(0, 0, -1), start.AddDate(0, 0, 1)), start))
}

// Month returns the month grid and the events bucketed by day key.
func (c *Calendar) Month(month time.Time) ([][]time.Time, map[string][]recur.Event) {
	grid := layout.MonthGrid(month, c.WeekStart)
	first := grid[0][0]
	last := grid[len(grid)-1][6].AddDate(0, 0, 1)

	var days []time.Time
	for _, week := range grid {
		days = append(days, week...)
	}
	return grid, layout.ByDay(c.Window(first.AddDate(0, 0, -1), last), days)
}

// Resolve maps an event or occurrence id to the stored base record.
func (c *Calendar) Resolve(id string) (record.Record, error) {
	if r, ok := c.events.Find(id); ok {
		return r, nil
	}
	if parent := recur.ParentID(id); parent != id {
		if r, ok := c.events.Find(parent); ok {
			return r, nil
		}
	}
	return record.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Add creates a base event.
func (c *Calendar) Add(ctx context.Context, e recur.Event) (recur.Event, error) {
	r, err := c.events.SubmitCreate(ctx, Fields(e))
	if err != nil {
		return recur.Event{}, err
	}
	return EventFromRecord(r), nil
}

// Edit updates the base event behind id. Editing an occurrence edits its
// whole series.
func (c *Calendar) Edit(ctx context.Context, id string, fields map[string]any) (recur.Event, error) {
	base, err := c.Resolve(id)
	if err != nil {
		return recur.Event{}, err
	}
	r, err := c.events.SubmitUpdate(ctx, base.ID, fields)
	if err != nil {
		return recur.Event{}, err
	}
	return EventFromRecord(r), nil
}

// Delete removes the base event behind id, with every occurrence.
func (c *Calendar) Delete(ctx context.Context, id string) error {
	base, err := c.Resolve(id)
	if err != nil {
		return err
	}
	return c.events.SubmitDelete(ctx, base.ID)
}
