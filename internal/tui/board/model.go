// Package board is the live household board: chat, tasks and groceries side
// by side, each list kept current by its optimistic controller.
package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/version"
)

// Panel identifies one of the board's lists.
type Panel int

const (
	PanelChat Panel = iota
	PanelTasks
	PanelGroceries
	panelCount
)

var panelTitles = [panelCount]string{"CHAT", "TASKS", "GROCERIES"}

// List is the slice of an optimistic controller the board drives.
type List interface {
	Items() []record.Record
	Updates() <-chan struct{}
	Resume(ctx context.Context) error
	SubmitCreate(ctx context.Context, fields map[string]any) (record.Record, error)
	SubmitUpdate(ctx context.Context, id string, fields map[string]any) (record.Record, error)
	SubmitDelete(ctx context.Context, id string) error
}

// MinWidth and MinHeight are the smallest terminal the full view needs.
const (
	MinWidth  = 40
	MinHeight = 12
)

// Model is the Bubble Tea model for the board.
type Model struct {
	Lists  [panelCount]List
	Member string

	Width  int
	Height int

	ActivePanel Panel
	Cursor      [panelCount]int
	Input       textinput.Model
	Composing   bool
	ShowHelp    bool
	Status      string
	Err         error

	// Channel is stamped on chat messages composed here.
	Channel string

	// Version enables a background update check when set.
	Version      string
	UpdateNotice *version.UpdateAvailableMsg

	ctx context.Context
}

// updateMsg reports that a list changed.
type updateMsg struct{ panel Panel }

// doneMsg reports the outcome of a mutation or resume.
type doneMsg struct {
	action string
	err    error
}

// NewModel creates a board over the chat, tasks and groceries lists.
func NewModel(ctx context.Context, member string, chat, tasks, groceries List) Model {
	ti := textinput.New()
	ti.Placeholder = "message, or /task title, /buy item"
	ti.CharLimit = 2000
	return Model{
		Lists:  [panelCount]List{chat, tasks, groceries},
		Member: member,
		Input:  ti,
		ctx:    ctx,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, panelCount+1)
	for p := range panelCount {
		cmds = append(cmds, m.waitForUpdate(p))
	}
	if m.Version != "" && !version.IsDevelopmentVersion(m.Version) {
		cmds = append(cmds, version.CheckAsync(m.ctx, m.Version))
	}
	return tea.Batch(cmds...)
}

// waitForUpdate blocks on one list's update signal. It yields nothing once
// the list is closed.
func (m Model) waitForUpdate(p Panel) tea.Cmd {
	ch := m.Lists[p].Updates()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return updateMsg{panel: p}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Input.Width = max(msg.Width-6, 10)
		return m, nil

	case updateMsg:
		m.clampCursor(msg.panel)
		return m, m.waitForUpdate(msg.panel)

	case doneMsg:
		m.Err = msg.err
		if msg.err == nil {
			m.Status = msg.action
		} else {
			m.Status = ""
		}
		return m, nil

	case version.UpdateAvailableMsg:
		m.UpdateNotice = &msg
		return m, nil

	case tea.KeyMsg:
		if m.Composing {
			return m.handleComposeKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) clampCursor(p Panel) {
	n := len(m.Lists[p].Items())
	m.Cursor[p] = max(min(m.Cursor[p], n-1), 0)
}

// handleKey processes key input outside the compose box
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
	case "1", "2", "3":
		m.ActivePanel = Panel(msg.String()[0] - '1')

	case "j", "down":
		m.Cursor[m.ActivePanel]++
		m.clampCursor(m.ActivePanel)
	case "k", "up":
		m.Cursor[m.ActivePanel] = max(m.Cursor[m.ActivePanel]-1, 0)

	case "i", "enter":
		m.Composing = true
		return m, m.Input.Focus()

	case " ", "x":
		return m, m.toggleSelected()

	case "d":
		return m, m.deleteSelected()

	case "r":
		m.Status = "refreshing…"
		return m, m.resume()

	case "?":
		m.ShowHelp = !m.ShowHelp
	}
	return m, nil
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Composing = false
		m.Input.Blur()
		return m, nil
	case tea.KeyEnter:
		text := m.Input.Value()
		m.Input.SetValue("")
		m.Composing = false
		m.Input.Blur()
		return m, m.submit(text)
	}
	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// selected returns the record under the cursor of the active panel.
func (m Model) selected() (record.Record, bool) {
	items := m.Lists[m.ActivePanel].Items()
	i := m.Cursor[m.ActivePanel]
	if i < 0 || i >= len(items) {
		return record.Record{}, false
	}
	return items[i], true
}

func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) toggleSelected() tea.Cmd {
	var field string
	switch m.ActivePanel {
	case PanelTasks:
		field = "done"
	case PanelGroceries:
		field = "checked"
	default:
		return nil
	}
	rec, ok := m.selected()
	if !ok {
		return nil
	}
	list := m.Lists[m.ActivePanel]
	return m.run("updated", func(ctx context.Context) error {
		_, err := list.SubmitUpdate(ctx, rec.ID, map[string]any{field: !rec.Bool(field)})
		return err
	})
}

func (m Model) deleteSelected() tea.Cmd {
	rec, ok := m.selected()
	if !ok || (m.ActivePanel == PanelChat && rec.String("sender_id") != m.Member) {
		return nil
	}
	list := m.Lists[m.ActivePanel]
	return m.run("deleted", func(ctx context.Context) error {
		return list.SubmitDelete(ctx, rec.ID)
	})
}

// submit routes compose box input: "/task" and "/buy" add to those lists,
// anything else is a chat message.
func (m Model) submit(text string) tea.Cmd {
	panel, fields, ok := parseInput(text)
	if !ok {
		return nil
	}
	if panel == PanelChat && m.Channel != "" {
		fields["channel"] = m.Channel
	}
	list := m.Lists[panel]
	return m.run(fmt.Sprintf("added to %s", panelTitles[panel]), func(ctx context.Context) error {
		_, err := list.SubmitCreate(ctx, fields)
		return err
	})
}

func parseInput(text string) (Panel, map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil, false
	}
	if rest, ok := cutCommand(text, "/task"); ok {
		return PanelTasks, map[string]any{"title": rest, "done": false}, rest != ""
	}
	if rest, ok := cutCommand(text, "/buy"); ok {
		return PanelGroceries, map[string]any{"name": rest, "checked": false}, rest != ""
	}
	return PanelChat, record.NewMessageFields("text", text), true
}

func cutCommand(text, cmd string) (string, bool) {
	rest, ok := strings.CutPrefix(text, cmd)
	if !ok || (rest != "" && rest[0] != ' ') {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// resume refetches every list and restarts lapsed subscriptions.
func (m Model) resume() tea.Cmd {
	lists := m.Lists
	return m.run("refreshed", func(ctx context.Context) error {
		for _, l := range lists {
			if err := l.Resume(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// Run starts the board and blocks until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
