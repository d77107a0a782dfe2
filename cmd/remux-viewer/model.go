// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/remux/control"
	"github.com/bureau-foundation/remux/engine"
)

// chromeRows is the vertical space the tab bar and status line take
// away from the viewport.
const chromeRows = 2

type keyMap struct {
	NextWindow key.Binding
	PrevWindow key.Binding
	NextPane   key.Binding
	Detach     key.Binding
	Quit       key.Binding
}

var defaultKeyMap = keyMap{
	NextWindow: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "next window"),
	),
	PrevWindow: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("S-Tab", "previous window"),
	),
	NextPane: key.NewBinding(
		key.WithKeys("ctrl+o"),
		key.WithHelp("C-o", "next pane"),
	),
	Detach: key.NewBinding(
		key.WithKeys("ctrl+q"),
		key.WithHelp("C-q", "detach"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("61"))
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203"))
)

// refreshMsg wakes the model after engine or widget state changed.
type refreshMsg struct{}

type model struct {
	session *control.Session
	adapter *control.Adapter
	eng     *engine.Engine
	factory *widgetFactory
	info    control.ConnectionInfo

	refresh chan struct{}

	viewport viewport.Model
	keys     keyMap
	width    int
	height   int
	sized    bool
}

func newModel(session *control.Session, adapter *control.Adapter, eng *engine.Engine,
	factory *widgetFactory, info control.ConnectionInfo, refresh chan struct{}) model {
	return model{
		session: session,
		adapter: adapter,
		eng:     eng,
		factory: factory,
		info:    info,
		refresh: refresh,
		keys:    defaultKeyMap,
	}
}

func waitForRefresh(refresh chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-refresh
		return refreshMsg{}
	}
}

func (m model) Init() tea.Cmd {
	return waitForRefresh(m.refresh)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		contentHeight := msg.Height - chromeRows
		if contentHeight < 1 {
			contentHeight = 1
		}
		if !m.sized {
			m.viewport = viewport.New(msg.Width, contentHeight)
			m.sized = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = contentHeight
		}
		m.fitActiveWindow()
		m.eng.SetContainerSize(msg.Width, contentHeight)
		m.syncViewport()
		return m, nil

	case refreshMsg:
		m.syncViewport()
		return m, waitForRefresh(m.refresh)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Detach):
			m.session.Detach()
			return m, tea.Quit
		case key.Matches(msg, m.keys.NextWindow):
			m.cycleWindow(1)
			m.syncViewport()
			return m, nil
		case key.Matches(msg, m.keys.PrevWindow):
			m.cycleWindow(-1)
			m.syncViewport()
			return m, nil
		case key.Matches(msg, m.keys.NextPane):
			m.cyclePane()
			return m, nil
		default:
			m.forwardKey(msg)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// cycleWindow activates the window delta steps away in tab order.
func (m *model) cycleWindow(delta int) {
	windows := m.eng.Windows()
	if len(windows) < 2 {
		return
	}
	active := m.eng.ActiveWindow()
	for i, id := range windows {
		if id == active {
			next := (i + delta + len(windows)) % len(windows)
			m.fitWindow(windows[next])
			m.eng.ActivateWindow(windows[next])
			return
		}
	}
}

// fitActiveWindow sizes the active window's widgets to the current
// container so the engine's size negotiation reflects local space.
func (m *model) fitActiveWindow() {
	m.fitWindow(m.eng.ActiveWindow())
}

func (m *model) fitWindow(windowID string) {
	if windowID == "" || !m.sized {
		return
	}
	contentHeight := m.height - chromeRows
	if contentHeight < 1 {
		contentHeight = 1
	}
	for _, paneID := range m.eng.WindowPanes(windowID) {
		if widget := m.factory.get(paneID); widget != nil {
			widget.fit(m.width, contentHeight)
		}
	}
}

// cyclePane asks the remote server to move the active pane; the
// engine follows the resulting notification.
func (m *model) cyclePane() {
	active := m.eng.ActiveWindow()
	panes := m.eng.WindowPanes(active)
	if len(panes) < 2 {
		return
	}
	current := m.eng.ActivePane(active)
	for i, id := range panes {
		if id == current {
			next := panes[(i+1)%len(panes)]
			m.adapter.SelectPane(context.Background(), next)
			return
		}
	}
}

// forwardKey translates a key press to pane input bytes.
func (m *model) forwardKey(msg tea.KeyMsg) {
	widget := m.focusedWidget()
	if widget == nil {
		return
	}
	if data := keyBytes(msg); data != "" {
		widget.send(data)
	}
}

// keyBytes maps the common keys to the byte sequences a terminal
// would send. Keys without a mapping are dropped rather than guessed.
func keyBytes(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyRunes:
		return string(msg.Runes)
	case tea.KeySpace:
		return " "
	case tea.KeyEnter:
		return "\r"
	case tea.KeyBackspace:
		return "\x7f"
	case tea.KeyEsc:
		return "\x1b"
	case tea.KeyUp:
		return "\x1b[A"
	case tea.KeyDown:
		return "\x1b[B"
	case tea.KeyRight:
		return "\x1b[C"
	case tea.KeyLeft:
		return "\x1b[D"
	default:
		return ""
	}
}

func (m *model) focusedWidget() *textWidget {
	active := m.eng.ActiveWindow()
	if active == "" {
		return nil
	}
	paneID := m.eng.ActivePane(active)
	if paneID == "" {
		return nil
	}
	return m.factory.get(paneID)
}

func (m *model) syncViewport() {
	if !m.sized {
		return
	}
	widget := m.focusedWidget()
	if widget == nil {
		m.viewport.SetContent("")
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(widget.content())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m model) View() string {
	if !m.sized {
		return "connecting..."
	}
	return m.tabBar() + "\n" + m.viewport.View() + "\n" + m.statusLine()
}

func (m model) tabBar() string {
	windows := m.eng.Windows()
	if len(windows) == 0 {
		return tabStyle.Render("(no windows)")
	}
	active := m.eng.ActiveWindow()
	tabs := make([]string, 0, len(windows))
	for _, id := range windows {
		label := m.eng.WindowName(id)
		if label == "" {
			label = id
		}
		style := tabStyle
		if id == active {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(label))
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	return ansi.Truncate(bar, m.width, "…")
}

func (m model) statusLine() string {
	if reason := m.eng.DisconnectReason(); reason != "" {
		return ansi.Truncate(alertStyle.Render(fmt.Sprintf("disconnected: %s", reason)), m.width, "…")
	}
	parts := []string{
		fmt.Sprintf("%s @ %s", m.info.SessionName, m.info.Target),
		m.keys.NextWindow.Help().Key + " " + m.keys.NextWindow.Help().Desc,
		m.keys.NextPane.Help().Key + " " + m.keys.NextPane.Help().Desc,
		m.keys.Detach.Help().Key + " " + m.keys.Detach.Help().Desc,
	}
	return ansi.Truncate(statusStyle.Render(strings.Join(parts, "  ·  ")), m.width, "…")
}
