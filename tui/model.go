// Package tui renders session views as a terminal dashboard.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lit-response/triageboard/dispatch"
	"github.com/lit-response/triageboard/selection"
	"github.com/lit-response/triageboard/view"
)

// Controller is the operator side of a session.
type Controller interface {
	SelectSection(name string) error
	SelectEntry(callID string)
	RequestApproval(callID string)
}

type viewMsg view.View

type closedMsg struct{}

type Model struct {
	ctl     Controller
	updates <-chan view.View

	v      view.View
	width  int
	height int
	ready  bool
}

func New(ctl Controller, updates <-chan view.View, initial view.View) Model {
	return Model{ctl: ctl, updates: updates, v: initial}
}

func (m Model) Init() tea.Cmd { return wait(m.updates) }

// wait blocks on the next view. The session keeps only the latest one, so
// the dashboard never falls behind.
func wait(ch <-chan view.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return viewMsg(v)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		m.v = view.View(msg)
		m.ready = true
		return m, wait(m.updates)
	case closedMsg:
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k := msg.String(); k {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "1", "2", "3", "4", "5", "6", "7":
		m.section(int(k[0] - '1'))
	case "tab", "right", "l":
		m.section(m.sectionIndex() + 1)
	case "shift+tab", "left", "h":
		m.section(m.sectionIndex() - 1 + len(selection.Sections))
	case "j", "down":
		m.move(1)
	case "k", "up":
		m.move(-1)
	case "enter", "a":
		if a := m.v.Active; a != nil && a.Dispatch == dispatch.Pending {
			m.ctl.RequestApproval(a.Event.CallID)
		}
	}
	return m, nil
}

func (m Model) section(i int) {
	s := selection.Sections[i%len(selection.Sections)]
	_ = m.ctl.SelectSection(string(s))
}

func (m Model) sectionIndex() int {
	for i, s := range selection.Sections {
		if s == m.v.Section {
			return i
		}
	}
	return 0
}

func (m Model) move(delta int) {
	n := len(m.v.Entries)
	if n == 0 {
		return
	}
	i := -1
	if m.v.Active != nil {
		for j, e := range m.v.Entries {
			if e.Event.CallID == m.v.Active.Event.CallID {
				i = j
				break
			}
		}
	}
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = n - 1
	default:
		i = (i + delta + n) % n
	}
	m.ctl.SelectEntry(m.v.Entries[i].Event.CallID)
}
