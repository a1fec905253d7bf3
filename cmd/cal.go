package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/calendar"
	"github.com/marcus/hearth/internal/dateparse"
	"github.com/marcus/hearth/internal/layout"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/recur"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

var (
	calRepeat recur.Recurrence
	calDays   []time.Weekday
)

var calCmd = &cobra.Command{
	Use:     "cal",
	Aliases: []string{"calendar"},
	Short:   "Family calendar",
	GroupID: "calendar",
}

// openCalendar loads every base event; recurring events that started long
// ago still produce occurrences in any window.
func openCalendar(a *app) (*calendar.Calendar, error) {
	events, err := a.load(record.Events, remote.Query{})
	if err != nil {
		return nil, err
	}
	cal := calendar.New(events)
	cal.WeekStart = a.cfg.FirstWeekday()
	return cal, nil
}

// resolveEvent maps a full or shortened event or occurrence id, or a title,
// to its base record.
func resolveEvent(cal *calendar.Calendar, id string) (record.Record, error) {
	base, err := cal.Resolve(id)
	if err == nil || !errors.Is(err, calendar.ErrNotFound) {
		return base, err
	}
	var ids []record.Record
	for _, e := range cal.Base() {
		ids = append(ids, record.Record{ID: e.ID, Fields: map[string]any{"title": e.Title}})
	}
	match, perr := findByPrefix(ids, recur.ParentID(id))
	if perr != nil {
		return record.Record{}, err
	}
	return cal.Resolve(match.ID)
}

func localEvent(e recur.Event) recur.Event {
	e.Start = e.Start.Local()
	e.End = e.End.Local()
	return e
}

var calAddCmd = &cobra.Command{
	Use:   "add [title...]",
	Short: "Add an event",
	Example: `  hearth cal add --title "Swimming" --start "mon 16:00" --end "mon 17:00" --repeat weekly --days mon,wed
  hearth cal add "Grandma visiting" --start 2026-05-01 --all-day`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = strings.Join(args, " ")
		}
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("a title is required (--title or argument)")
		}
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		allDay, _ := cmd.Flags().GetBool("all-day")
		who, _ := cmd.Flags().GetString("for")

		now := a.now()
		start, err := dateparse.ParseTime(startStr, now)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		var end time.Time
		switch {
		case allDay:
			start = layout.StartOfDay(start)
			end = start.AddDate(0, 0, 1)
			if endStr != "" {
				last, err := dateparse.Day(endStr, now)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				end = last.AddDate(0, 0, 1)
			}
		case endStr != "":
			if end, err = dateparse.ParseTime(endStr, start); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
		default:
			end = start.Add(time.Hour)
		}
		if end.Before(start) {
			return fmt.Errorf("event ends before it starts")
		}

		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		ev, err := cal.Add(a.ctx, recur.Event{
			Title:      title,
			Start:      start,
			End:        end,
			AllDay:     allDay,
			MemberID:   strings.ToLower(who),
			Recurrence: calRepeat,
			Days:       calDays,
		})
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(ev)
		}
		output.Success("added %s", output.FormatEvent(localEvent(ev)))
		return nil
	},
}

var calAgendaCmd = &cobra.Command{
	Use:     "agenda",
	Aliases: []string{"ls", "list"},
	Short:   "List upcoming events, repeats expanded",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		now := a.now()
		from, err := dateparse.Day(fromStr, now)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := dateparse.Day(toStr, now)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		until := to.AddDate(0, 0, 1).Add(-time.Nanosecond)

		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		var events []recur.Event
		for _, e := range cal.Window(from, until) {
			// Non-recurring events pass through expansion unfiltered.
			if e.End.Before(from) || e.Start.After(until) {
				continue
			}
			events = append(events, localEvent(e))
		}
		slices.SortStableFunc(events, func(x, y recur.Event) int { return x.Start.Compare(y.Start) })

		if a.json {
			return output.JSON(events)
		}
		if len(events) == 0 {
			fmt.Println("Nothing on the calendar")
			return nil
		}
		day := ""
		for _, e := range events {
			if k := layout.DayKey(e.Start); k != day {
				day = k
				fmt.Print(output.SectionHeader(e.Start.Format("Monday 2 January")))
			}
			fmt.Println(output.FormatEvent(e))
		}
		return nil
	},
}

var calDayCmd = &cobra.Command{
	Use:   "day [date]",
	Short: "Show one day with overlapping events side by side",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		day := layout.StartOfDay(a.now())
		if len(args) == 1 {
			if day, err = dateparse.Day(args[0], a.now()); err != nil {
				return err
			}
		}
		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		placements := cal.Day(day)
		if a.json {
			return output.JSON(placements)
		}
		for i := range placements {
			placements[i].Event = localEvent(placements[i].Event)
		}
		fmt.Println(output.SectionHeader(day.Format("Monday 2 January 2006")))
		fmt.Println(output.FormatDay(placements, output.TerminalWidth(80)))
		return nil
	},
}

var calWeekCmd = &cobra.Command{
	Use:   "week [date]",
	Short: "Show the week containing a date",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		day := a.now()
		if len(args) == 1 {
			if day, err = dateparse.Day(args[0], a.now()); err != nil {
				return err
			}
		}
		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		days := layout.Week(day, cal.WeekStart)
		byDay := layout.ByDay(cal.Window(days[0].AddDate(0, 0, -1), days[6].AddDate(0, 0, 1)), days)
		if a.json {
			return output.JSON(byDay)
		}
		for _, d := range days {
			fmt.Print(output.SectionHeader(d.Format("Mon 2 Jan")))
			events := byDay[layout.DayKey(d)]
			if len(events) == 0 {
				fmt.Println("  -")
				continue
			}
			for _, e := range events {
				fmt.Println("  " + output.FormatEvent(localEvent(e)))
			}
		}
		return nil
	},
}

var calMonthCmd = &cobra.Command{
	Use:   "month [yyyy-mm]",
	Short: "Show a month grid with event counts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		now := a.now()
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
		if len(args) == 1 {
			if month, err = time.ParseInLocation("2006-01", args[0], time.Local); err != nil {
				return fmt.Errorf("month must look like 2026-05: %w", err)
			}
		}
		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		grid, byDay := cal.Month(month)
		if a.json {
			return output.JSON(byDay)
		}
		fmt.Println(output.FormatMonth(grid, byDay, month, now))
		return nil
	},
}

var calEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change an event (an occurrence id edits the whole series)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		base, err := resolveEvent(cal, args[0])
		if err != nil {
			return err
		}
		current := calendar.EventFromRecord(base)

		fields := map[string]any{}
		flags := cmd.Flags()
		if flags.Changed("title") {
			title, _ := flags.GetString("title")
			fields["title"] = title
		}
		start, end := current.Start, current.End
		if flags.Changed("start") {
			s, _ := flags.GetString("start")
			t, err := dateparse.ParseTime(s, a.now())
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			// Moving the start keeps the duration unless --end is given.
			end = t.Add(current.Duration())
			start = t
		}
		if flags.Changed("end") {
			e, _ := flags.GetString("end")
			t, err := dateparse.ParseTime(e, start)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			end = t
		}
		if end.Before(start) {
			return fmt.Errorf("event ends before it starts")
		}
		if !start.Equal(current.Start) {
			fields["start"] = start.Format(time.RFC3339)
		}
		if !end.Equal(current.End) {
			fields["end"] = end.Format(time.RFC3339)
		}
		if flags.Changed("repeat") {
			fields["recurrence"] = string(calRepeat)
		}
		if flags.Changed("days") {
			fields["recurrence_days"] = recur.FormatDays(calDays)
		}
		if flags.Changed("for") {
			who, _ := flags.GetString("for")
			fields["member_id"] = strings.ToLower(who)
		}
		if len(fields) == 0 {
			return fmt.Errorf("nothing to change")
		}

		ev, err := cal.Edit(a.ctx, base.ID, fields)
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(ev)
		}
		output.Success("updated %s", output.FormatEvent(localEvent(ev)))
		return nil
	},
}

var calRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete an event (an occurrence id deletes the whole series)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		cal, err := openCalendar(a)
		if err != nil {
			return err
		}
		base, err := resolveEvent(cal, args[0])
		if err != nil {
			return err
		}
		if err := cal.Delete(a.ctx, base.ID); err != nil {
			return err
		}
		output.Success("deleted %s", base.String("title"))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{calAddCmd, calEditCmd} {
		c.Flags().String("title", "", "event title")
		c.Flags().String("start", "", "start (\"tomorrow 18:30\", \"2026-05-01 09:00\")")
		c.Flags().String("end", "", "end (default: one hour after start)")
		c.Flags().Var(repeatValue{&calRepeat}, "repeat", "none, daily, weekly or monthly")
		c.Flags().Var(daysValue{&calDays}, "days", "weekdays for weekly repeats (mon,wed,fri)")
		c.Flags().String("for", "", "member the event is for")
	}
	calAddCmd.Flags().Bool("all-day", false, "all-day event (--end is the last day)")
	_ = calAddCmd.MarkFlagRequired("start")

	calAgendaCmd.Flags().String("from", "today", "first day")
	calAgendaCmd.Flags().String("to", "+7d", "last day")

	calCmd.AddCommand(calAddCmd, calAgendaCmd, calDayCmd, calWeekCmd, calMonthCmd, calEditCmd, calRmCmd)
	rootCmd.AddCommand(calCmd)
}
