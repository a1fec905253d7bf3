// Package output provides styled terminal output helpers (success, error,
// warning, list rows, calendar grids) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/hearth/internal/layout"
	"github.com/marcus/hearth/internal/recur"
	"github.com/marcus/hearth/internal/record"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	memberStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	todayStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// ShortID shortens a record id for display. Provisional ids are shown as
// pending.
func ShortID(id string) string {
	if record.IsProvisionalID(id) {
		return pendingStyle.Render("pending")
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return subtleStyle.Render(id)
}

// Member renders a member name.
func Member(name string) string {
	if name == "" {
		return subtleStyle.Render("-")
	}
	return memberStyle.Render(name)
}

// FormatMessage renders one chat line. body is the already rendered
// content (plain or markdown).
func FormatMessage(m record.Message, body string, now time.Time) string {
	header := fmt.Sprintf("%s %s", Member(m.SenderID), subtleStyle.Render(FormatTimeAgo(m.CreatedAt, now)))
	if m.Type != "" && m.Type != "text" {
		header += " " + subtleStyle.Render("["+m.Type+"]")
	}
	if record.IsProvisionalID(m.ID) {
		header += " " + pendingStyle.Render("sending…")
	}
	return header + "\n" + IndentString(body, 2)
}

// FormatTask renders a task row.
func FormatTask(t record.Task, doneToday bool) string {
	box := "[ ]"
	if t.Done || doneToday {
		box = successStyle.Render("[x]")
	}
	parts := []string{ShortID(t.ID), box, t.Title}
	if t.AssigneeID != "" {
		parts = append(parts, "@"+Member(t.AssigneeID))
	}
	if t.Due != "" {
		parts = append(parts, subtleStyle.Render("due "+t.Due))
	}
	return strings.Join(parts, "  ")
}

// FormatGrocery renders a shopping list row.
func FormatGrocery(g record.Grocery) string {
	name := g.Name
	if g.Quantity != "" {
		name = g.Quantity + " × " + name
	}
	box := "[ ]"
	if g.Checked {
		box = successStyle.Render("[x]")
		name = subtleStyle.Strikethrough(true).Render(name)
	}
	return strings.Join([]string{ShortID(g.ID), box, name, subtleStyle.Render(g.AddedBy)}, "  ")
}

// FormatMeal renders a meal plan row.
func FormatMeal(m record.Meal) string {
	return fmt.Sprintf("%s  %s  %-9s %s", ShortID(m.ID), m.Date, m.Slot, titleStyle.Render(m.Dish))
}

// EventTime renders the time span of an event.
func EventTime(e recur.Event) string {
	if e.AllDay {
		return "all day"
	}
	return e.Start.Format("15:04") + "-" + e.End.Format("15:04")
}

// FormatEvent renders an agenda line for an event or occurrence.
func FormatEvent(e recur.Event) string {
	parts := []string{
		subtleStyle.Render(e.Start.Format("Mon 02 Jan")),
		fmt.Sprintf("%-11s", EventTime(e)),
		titleStyle.Render(e.Title),
	}
	if e.Recurring() || e.IsOccurrence() {
		parts = append(parts, subtleStyle.Render("↻"))
	}
	if e.MemberID != "" {
		parts = append(parts, "@"+Member(e.MemberID))
	}
	parts = append(parts, subtleStyle.Render(e.ID))
	return strings.Join(parts, "  ")
}

// FormatDay renders a day's column layout: one line per event, indented
// into its column. width is the total width available for columns.
func FormatDay(placements []layout.Placement, width int) string {
	if len(placements) == 0 {
		return subtleStyle.Render("  (nothing planned)")
	}
	width = max(width-12, 20)

	var sb strings.Builder
	for _, p := range placements {
		colWidth := max(width/max(p.Columns, 1), 6)
		label := ansi.Truncate(p.Event.Title, colWidth-2, "…")
		cell := lipgloss.NewStyle().Width(colWidth).Render("▌" + label)
		fmt.Fprintf(&sb, "%-11s %s%s\n",
			EventTime(p.Event),
			strings.Repeat(" ", p.Column*colWidth),
			cell,
		)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatMonth renders a month grid with a count of events per day.
func FormatMonth(grid [][]time.Time, byDay map[string][]recur.Event, month, today time.Time) string {
	const cellWidth = 9
	cell := lipgloss.NewStyle().Width(cellWidth)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(month.Format("January 2006")))
	sb.WriteString("\n")
	for _, d := range grid[0] {
		sb.WriteString(cell.Render(subtleStyle.Render(d.Format("Mon"))))
	}
	sb.WriteString("\n")

	for _, week := range grid {
		for _, d := range week {
			label := fmt.Sprintf("%2d", d.Day())
			if n := len(byDay[layout.DayKey(d)]); n > 0 {
				label += fmt.Sprintf(" •%d", n)
			}
			switch {
			case layout.DayKey(d) == layout.DayKey(today):
				label = todayStyle.Render(label)
			case d.Month() != month.Month():
				label = otherStyle.Render(label)
			}
			sb.WriteString(cell.Render(label))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nTASKS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// Truncate shortens s to width terminal cells, ANSI aware.
func Truncate(s string, width int) string {
	return ansi.Truncate(s, width, "…")
}
