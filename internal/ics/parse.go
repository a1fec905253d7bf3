// Package ics imports external iCalendar feeds (school and club calendars)
// as base events for the household calendar.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/marcus/hearth/internal/recur"
)

// CreatedBy is stamped on every imported event.
const CreatedBy = "ics"

// Parse turns an ICS payload from the feed named src into base events. Each
// event carries its UID in Fields["ics_uid"] and the feed name in
// Fields["source"]. VEVENTs without a UID or DTSTART, and overrides of single
// instances (RECURRENCE-ID), are skipped.
func Parse(src string, body []byte) ([]recur.Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}

	var out []recur.Event
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			slog.Debug("ics: skipping vevent", "source", src, "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func prop(ve *ical.VEvent, p ical.ComponentProperty) string {
	if v := ve.GetProperty(p); v != nil {
		return strings.TrimSpace(v.Value)
	}
	return ""
}

func parseVEvent(src string, ve *ical.VEvent) (recur.Event, error) {
	uid := prop(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return recur.Event{}, errors.New("missing UID")
	}
	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		return recur.Event{}, fmt.Errorf("%s: instance override", uid)
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return recur.Event{}, fmt.Errorf("%s: missing DTSTART", uid)
	}
	allDay := !strings.Contains(dtstart.Value, "T")
	if vs := dtstart.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}

	start, err := eventTime(ve.GetStartAt, dtstart.Value, allDay)
	if err != nil {
		return recur.Event{}, fmt.Errorf("%s: DTSTART: %w", uid, err)
	}
	end := start
	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		if t, err := eventTime(ve.GetEndAt, dtend.Value, allDay); err == nil && !t.Before(start) {
			end = t
		}
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	}

	title := prop(ve, ical.ComponentPropertySummary)
	if title == "" {
		title = "(untitled)"
	}

	ev := recur.Event{
		Title:  title,
		Start:  start,
		End:    end,
		AllDay: allDay,
		Fields: map[string]any{
			"ics_uid":    uid,
			"source":     src,
			"created_by": CreatedBy,
		},
	}
	if d := prop(ve, ical.ComponentPropertyDescription); d != "" {
		ev.Fields["description"] = d
	}
	if l := prop(ve, ical.ComponentPropertyLocation); l != "" {
		ev.Fields["location"] = l
	}
	if rule := prop(ve, ical.ComponentPropertyRrule); rule != "" {
		ev.Recurrence, ev.Days, ev.RRule = mapRule(rule)
	} else {
		ev.Recurrence = recur.None
	}
	return ev, nil
}

// eventTime prefers the library's timezone-aware parse and falls back to the
// raw value for date-only and floating forms.
func eventTime(get func() (time.Time, error), raw string, allDay bool) (time.Time, error) {
	if !allDay {
		if t, err := get(); err == nil {
			return t, nil
		}
	}
	raw = strings.TrimSpace(raw)
	switch {
	case allDay:
		return time.ParseInLocation("20060102", raw[:min(8, len(raw))], time.Local)
	case strings.HasSuffix(raw, "Z"):
		return time.Parse("20060102T150405Z", raw)
	default:
		return time.ParseInLocation("20060102T150405", raw, time.Local)
	}
}

var freqs = map[string]recur.Recurrence{
	"DAILY":   recur.Daily,
	"WEEKLY":  recur.Weekly,
	"MONTHLY": recur.Monthly,
}

var byDay = map[string]time.Weekday{
	"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
	"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
}

// mapRule maps a bare FREQ=DAILY|WEEKLY|MONTHLY (weekly optionally with a
// plain BYDAY list) onto the native recurrence. Any other rule is kept
// verbatim for rrule expansion.
func mapRule(rule string) (recur.Recurrence, []time.Weekday, string) {
	parts := map[string]string{}
	for kv := range strings.SplitSeq(strings.TrimPrefix(strings.ToUpper(rule), "RRULE:"), ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return recur.None, nil, rule
		}
		parts[k] = v
	}

	freq, ok := freqs[parts["FREQ"]]
	if !ok {
		return recur.None, nil, rule
	}
	delete(parts, "FREQ")
	if interval, ok := parts["INTERVAL"]; ok && interval == "1" {
		delete(parts, "INTERVAL")
	}

	var days []time.Weekday
	if list, ok := parts["BYDAY"]; ok && freq == recur.Weekly {
		for d := range strings.SplitSeq(list, ",") {
			wd, ok := byDay[d]
			if !ok {
				return recur.None, nil, rule
			}
			days = append(days, wd)
		}
		delete(parts, "BYDAY")
	}
	if len(parts) > 0 {
		return recur.None, nil, rule
	}
	return freq, recur.ParseDays(recur.FormatDays(days)), ""
}
