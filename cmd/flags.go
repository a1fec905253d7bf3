package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/marcus/hearth/internal/recur"
)

// repeatValue is a --repeat flag restricted to the native recurrences.
type repeatValue struct {
	rec *recur.Recurrence
}

var _ pflag.Value = repeatValue{}

func (v repeatValue) String() string {
	if v.rec == nil || *v.rec == "" {
		return string(recur.None)
	}
	return string(*v.rec)
}

func (v repeatValue) Set(s string) error {
	r := recur.ParseRecurrence(s)
	if r == recur.None && !strings.EqualFold(strings.TrimSpace(s), string(recur.None)) {
		return fmt.Errorf("must be none, daily, weekly or monthly")
	}
	*v.rec = r
	return nil
}

func (v repeatValue) Type() string { return "repeat" }

// daysValue is a --days weekday list ("mon,wed,fri").
type daysValue struct {
	days *[]time.Weekday
}

var _ pflag.Value = daysValue{}

func (v daysValue) String() string {
	if v.days == nil {
		return ""
	}
	return recur.FormatDays(*v.days)
}

func (v daysValue) Set(s string) error {
	days := recur.ParseDays(s)
	if len(days) == 0 && strings.TrimSpace(s) != "" {
		return fmt.Errorf("no weekdays in %q (use e.g. mon,wed,fri)", s)
	}
	*v.days = days
	return nil
}

func (v daysValue) Type() string { return "days" }
