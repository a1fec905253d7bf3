// Package dateparse parses the relative and absolute dates and times accepted
// on the command line.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseDate parses input relative to now and returns a YYYY-MM-DD date.
//
// Supported forms:
//   - Exact dates: "2026-03-01"
//   - Relative offsets: "+7d", "+2w", "+1m", "-1d"
//   - Day names, full or abbreviated: "friday", "fri" (next occurrence)
//   - Keywords: "today", "tomorrow", "yesterday", "next-week", "next-month"
func ParseDate(input string, now time.Time) (string, error) {
	t, err := Day(input, now)
	if err != nil {
		return "", err
	}
	return t.Format(dateLayout), nil
}

// Day parses a date form (see ParseDate) and returns midnight of that day in
// now's location.
func Day(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if t, err := time.ParseInLocation(dateLayout, input, now.Location()); err == nil {
		return t, nil
	}

	switch input {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "next-week":
		return nextWeekday(today, time.Monday), nil
	case "next-month":
		return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location()), nil
	}

	if len(input) >= 3 && (input[0] == '+' || input[0] == '-') {
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			if input[0] == '-' {
				n = -n
			}
			switch unit := input[len(input)-1]; unit {
			case 'd':
				return today.AddDate(0, 0, n), nil
			case 'w':
				return today.AddDate(0, 0, 7*n), nil
			case 'm':
				return today.AddDate(0, n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(unit), input)
			}
		}
	}

	for name, wd := range weekdays {
		if input == name || (len(input) >= 3 && strings.HasPrefix(name, input)) {
			return nextWeekday(today, wd), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

// nextWeekday returns the next occurrence of wd strictly after day.
func nextWeekday(day time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(day.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

// ParseTime parses a date with an optional clock time: "tomorrow 18:30",
// "2026-03-01 09:00", "2026-03-01T09:00", RFC 3339, or a bare "18:30" for
// today. A date without a time means midnight.
func ParseTime(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", input, now.Location()); err == nil {
		return t, nil
	}
	if h, m, ok := clock(input); ok {
		return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()), nil
	}

	date, tod := input, ""
	if i := strings.LastIndexByte(input, ' '); i > 0 {
		if _, _, ok := clock(input[i+1:]); ok {
			date, tod = input[:i], input[i+1:]
		}
	}
	day, err := Day(date, now)
	if err != nil {
		return time.Time{}, err
	}
	if tod == "" {
		return day, nil
	}
	h, m, _ := clock(tod)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()), nil
}

// clock parses HH:MM.
func clock(s string) (int, int, bool) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
