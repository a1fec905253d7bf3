package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/record"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}
	if m.ShowHelp {
		return m.renderHelp()
	}

	footer := m.renderFooter()
	bodyHeight := m.Height - lipgloss.Height(footer)

	var panels string
	if m.Width >= 100 {
		w := m.Width / int(panelCount)
		cols := make([]string, panelCount)
		for p := range panelCount {
			cols[p] = m.renderPanel(p, w, bodyHeight)
		}
		panels = lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	} else {
		h := bodyHeight / int(panelCount)
		rows := make([]string, panelCount)
		for p := range panelCount {
			rows[p] = m.renderPanel(p, m.Width, h)
		}
		panels = lipgloss.JoinVertical(lipgloss.Left, rows...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels, footer)
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("hearth board (resize for full view)\n\n")
	for p := range panelCount {
		fmt.Fprintf(&s, "%s: %d\n", panelTitles[p], len(m.Lists[p].Items()))
	}
	s.WriteString("\nq:quit r:refresh")
	return s.String()
}

func (m Model) renderHelp() string {
	return strings.Join([]string{
		panelTitleStyle.Render("KEYS"),
		"",
		"tab / 1-3     switch panel",
		"j / k         move",
		"i / enter     compose (/task title, /buy item, or a message)",
		"space / x     toggle done or checked",
		"d             delete (your own messages only)",
		"r             refresh all lists",
		"?             close help",
		"q             quit",
	}, "\n")
}

// renderPanel draws one list in a bordered box of the given outer size.
func (m Model) renderPanel(p Panel, width, height int) string {
	style := panelStyle
	if p == m.ActivePanel {
		style = activePanelStyle
	}
	inner := max(width-style.GetHorizontalFrameSize(), 4)
	rows := max(height-style.GetVerticalFrameSize()-1, 1)

	items := m.Lists[p].Items()
	lines := make([]string, 0, len(items))
	for _, rec := range items {
		lines = append(lines, m.renderRow(p, rec))
	}

	cursor := m.Cursor[p]
	start := 0
	if p == PanelChat && len(lines) > rows && p != m.ActivePanel {
		// Chat follows the newest messages unless the user is browsing it.
		start = len(lines) - rows
	} else if cursor >= rows {
		start = cursor - rows + 1
	}

	var body strings.Builder
	body.WriteString(panelTitleStyle.Render(fmt.Sprintf("%s (%d)", panelTitles[p], len(items))))
	for i := start; i < len(lines) && i < start+rows; i++ {
		line := lines[i]
		if p == m.ActivePanel && i == cursor {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		body.WriteString("\n")
		body.WriteString(ansi.Truncate(line, inner, "…"))
	}
	if len(items) == 0 {
		body.WriteString("\n")
		body.WriteString(subtleStyle.Render("  nothing yet"))
	}
	return style.Width(inner + style.GetHorizontalPadding()).Height(rows + 1).Render(body.String())
}

func (m Model) renderRow(p Panel, rec record.Record) string {
	pending := ""
	if rec.IsProvisional() {
		pending = " " + pendingStyle.Render("…")
	}
	switch p {
	case PanelChat:
		msg := record.MessageFrom(rec)
		content := strings.ReplaceAll(msg.Content, "\n", " ")
		return senderStyle.Render(msg.SenderID) + " " + content + pending
	case PanelTasks:
		t := record.TaskFrom(rec)
		box := "[ ]"
		if t.Done {
			box = doneStyle.Render("[x]")
		}
		line := box + " " + t.Title
		if t.AssigneeID != "" {
			line += subtleStyle.Render(" @" + t.AssigneeID)
		}
		return line + pending
	default:
		g := record.GroceryFrom(rec)
		box := "[ ]"
		if g.Checked {
			box = doneStyle.Render("[x]")
		}
		return box + " " + g.Name + pending
	}
}

func (m Model) renderFooter() string {
	var lines []string
	if m.Composing {
		lines = append(lines, m.Input.View())
	}
	switch {
	case m.Err != nil:
		lines = append(lines, errorStyle.Render("error: "+m.Err.Error()))
	case m.Status != "":
		lines = append(lines, subtleStyle.Render(m.Status))
	case m.UpdateNotice != nil:
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("update available: %s → %s", m.UpdateNotice.CurrentVersion, m.UpdateNotice.LatestVersion)))
	}
	who := ""
	if m.Member != "" {
		who = output.Member(m.Member) + "  "
	}
	lines = append(lines, who+helpStyle.Render("tab:panel  i:compose  x:toggle  d:delete  r:refresh  ?:help  q:quit"))
	return strings.Join(lines, "\n")
}
