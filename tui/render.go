package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lit-response/triageboard/dispatch"
	"github.com/lit-response/triageboard/event"
	"github.com/lit-response/triageboard/selection"
	"github.com/lit-response/triageboard/view"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)
	tabStyle      = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTab     = tabStyle.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24")).Bold(true)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("236"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	liveStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	downStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	severityColor = map[event.Severity]lipgloss.Color{
		event.SeverityCritical: "196",
		event.SeverityHigh:     "208",
		event.SeverityMedium:   "220",
		event.SeverityLow:      "42",
	}
)

const help = "1-7 section  tab next  j/k move  enter approve  q quit"

func (m Model) View() string {
	if !m.ready && len(m.v.Entries) == 0 {
		return "Connecting to call stream…\n"
	}
	width := m.width
	if width <= 0 {
		width = 120
	}
	listW := width * 2 / 5
	detailW := width - listW - 4

	var body string
	switch m.v.Section {
	case selection.Analytics:
		body = paneStyle.Width(width - 2).Render(analytics(m.v.Summary))
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			paneStyle.Width(listW).Render(list(m.v)),
			paneStyle.Width(detailW).Render(detail(m.v)),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header(m.v), body, status(m.v), helpStyle.Render(help))
}

func header(v view.View) string {
	tabs := []string{titleStyle.Render("TRIAGE")}
	for i, s := range selection.Sections {
		label := fmt.Sprintf("%d %s", i+1, s)
		if s == v.Section {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func badge(s event.Severity) string {
	return lipgloss.NewStyle().Bold(true).Foreground(severityColor[s]).Render(strings.ToUpper(string(s)))
}

func list(v view.View) string {
	if len(v.Entries) == 0 {
		return labelStyle.Render("No calls in this section.")
	}
	var b strings.Builder
	for _, e := range v.Entries {
		line := fmt.Sprintf("%s %s  %s  [%s]",
			badge(e.Event.Severity), e.Event.Category, e.Event.Location, e.Dispatch)
		if v.Active != nil && v.Active.Event.CallID == e.Event.CallID {
			line = selectedStyle.Render("› " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func detail(v view.View) string {
	a := v.Active
	if a == nil {
		return labelStyle.Render("Select a call to see its details.")
	}
	e := a.Event
	rows := []string{
		field("Call", e.CallID),
		field("Received", e.Timestamp.Local().Format("15:04:05")),
		field("Location", e.Location),
		field("Coordinates", fmt.Sprintf("%.4f, %.4f", e.Coordinates.Latitude, e.Coordinates.Longitude)),
		field("Category", e.Category),
		field("Severity", badge(e.Severity)),
		field("Action", e.Action),
		field("Dispatch", dispatchLabel(*a)),
	}
	if e.Emotion != nil {
		rows = append(rows, "", labelStyle.Render("Caller emotion"))
		rows = append(rows, bars(*e.Emotion)...)
	}
	if len(v.Transcript) > 0 {
		rows = append(rows, "", labelStyle.Render("Transcript"))
		for _, l := range v.Transcript {
			if l.Speaker == "" {
				rows = append(rows, "  "+l.Text)
				continue
			}
			rows = append(rows, fmt.Sprintf("  %s %s", lipgloss.NewStyle().Bold(true).Render(l.Speaker+":"), l.Text))
		}
	}
	return strings.Join(rows, "\n")
}

func field(name, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-12s", name)) + value
}

func dispatchLabel(e view.Entry) string {
	switch e.Dispatch {
	case dispatch.Approved:
		if e.SendError != "" {
			return "approved (not transmitted)"
		}
		return "approved"
	case dispatch.Dispatching:
		return "dispatching…"
	default:
		return "pending, press enter to approve"
	}
}

func bars(em event.Emotion) []string {
	out := make([]string, 0, len(event.EmotionLabels))
	for _, l := range event.EmotionLabels {
		s := em.Score(l)
		out = append(out, fmt.Sprintf("  %-9s %-10s %3.0f%%", l, strings.Repeat("█", int(s*10+0.5)), s*100))
	}
	return out
}

func analytics(s view.Summary) string {
	rows := []string{
		field("Calls", fmt.Sprint(s.Total)),
		field("High+", fmt.Sprint(s.Critical)),
		field("Approved", fmt.Sprint(s.Approved)),
		field("Pending", fmt.Sprint(s.Pending)),
		"",
		labelStyle.Render("By severity"),
	}
	for _, sev := range event.Severities {
		rows = append(rows, fmt.Sprintf("  %-9s %d", sev, s.BySeverity[sev]))
	}
	if len(s.Categories) > 0 {
		rows = append(rows, "", labelStyle.Render("By category"))
		for _, c := range s.Categories {
			rows = append(rows, fmt.Sprintf("  %-20s %d", c.Category, c.Count))
		}
	}
	if s.MeanEmotion != nil {
		rows = append(rows, "", labelStyle.Render(fmt.Sprintf("Mean emotion over %d calls (dominant: %s)", s.Analyzed, s.DominantEmotion)))
		rows = append(rows, bars(*s.MeanEmotion)...)
	}
	return strings.Join(rows, "\n")
}

func status(v view.View) string {
	parts := []string{liveStyle.Render("● LIVE")}
	if !v.Connected {
		parts[0] = downStyle.Render("● DISCONNECTED")
		if v.LastError != "" {
			parts = append(parts, labelStyle.Render(v.LastError))
		}
	}
	if v.Notice != "" {
		parts = append(parts, noticeStyle.Render(v.Notice))
	}
	return strings.Join(parts, "  ")
}
