package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/storefront/internal/logfile"
)

// refreshLogs reads the tail of the log file.
func (m Model) refreshLogs() tea.Cmd {
	path := m.logPath
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		raw, err := logfile.Tail(path, logTailLines)
		if err != nil {
			return logLinesMsg{err: err}
		}
		lines := make([]string, 0, len(raw))
		for _, line := range raw {
			lines = append(lines, logfile.Parse(line).Format())
		}
		return logLinesMsg{lines: lines}
	}
}

func (m *Model) handleLogLines(msg logLinesMsg) {
	if msg.err != nil {
		m.logLines = []string{"Unable to read " + m.logPath + ": " + msg.err.Error()}
	} else {
		m.logLines = msg.lines
	}
	m.logViewport.SetContent(strings.Join(m.logLines, "\n"))
	if m.follow {
		m.logViewport.GotoBottom()
	}
}

func (m *Model) resizeLogViewport() {
	m.logViewport.Width = max(m.width-2, 1)
	m.logViewport.Height = max(m.contentHeight()-2, 1)
}

// handleLogsKey processes keyboard input for the logs view.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.follow = !m.follow
		if m.follow {
			m.logViewport.GotoBottom()
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.follow = false
		m.logViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.follow = true
		m.logViewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	if !m.logViewport.AtBottom() {
		m.follow = false
	}
	return m, cmd
}

// renderLogs renders the log viewport.
func (m Model) renderLogs() string {
	title := "Logs"
	if m.logPath != "" {
		title += " · " + m.logPath
	}
	if m.follow {
		title += " (following)"
	}
	content := m.logViewport.View()
	if len(m.logLines) == 0 {
		content = m.theme.Styles().MutedText.Render("No log entries yet.")
	}
	return m.renderTitledBox(title, content, m.width, m.contentHeight(), m.currentView == ViewLogs)
}
