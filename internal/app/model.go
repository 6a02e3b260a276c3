// Package app is the terminal conversation screen: a bubbletea model that
// renders orchestrator snapshots and maps keys onto orchestrator commands.
package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nadzzz/yasna/internal/audio"
	"github.com/nadzzz/yasna/internal/conversation"
	"github.com/nadzzz/yasna/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// levelFloor is the dBFS value the level meter treats as empty.
const levelFloor = -60

// Controller is the set of conversation commands the screen issues.
type Controller interface {
	Toggle(locale string)
	Ask(text string)
	RepeatAssistant()
	StopSpeaking()
	SetAutoContinue(on bool)
	NewSession() string
	ClearSession()
	State() conversation.State
	Subscribe() (<-chan conversation.State, func())
}

// Model is the root bubbletea model for the conversation screen.
type Model struct {
	ctrl        Controller
	states      <-chan conversation.State
	unsubscribe func()
	locale      string

	state conversation.State

	// Text bypass
	typing bool
	input  []rune

	width  int
	height int
}

// New creates a model subscribed to ctrl. locale is passed to every Toggle;
// empty means the conversation default.
func New(ctrl Controller, locale string) Model {
	states, unsubscribe := ctrl.Subscribe()
	return Model{
		ctrl:        ctrl,
		states:      states,
		unsubscribe: unsubscribe,
		locale:      locale,
		state:       ctrl.State(),
	}
}

// Init starts waiting for snapshots.
func (m Model) Init() tea.Cmd {
	return waitForStateCmd(m.states)
}

// waitForStateCmd blocks until the next snapshot arrives.
func waitForStateCmd(states <-chan conversation.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-states
		if !ok {
			return ClosedMsg{}
		}
		return StateMsg{State: st}
	}
}

// controlCmd runs a conversation command off the update loop.
func controlCmd(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.typing {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateMsg:
		m.state = msg.State
		return m, waitForStateCmd(m.states)

	case ClosedMsg:
		return m, tea.Quit
	}

	return m, nil
}

// handleKey processes key presses outside of text entry.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.unsubscribe()
		return m, tea.Quit

	case KeySpace:
		locale := m.locale
		return m, controlCmd(func() { ctrl.Toggle(locale) })

	case KeyRepeat:
		return m, controlCmd(ctrl.RepeatAssistant)

	case KeyStopSpeaking:
		return m, controlCmd(ctrl.StopSpeaking)

	case KeyAutoContinue:
		on := !m.state.AutoContinue
		return m, controlCmd(func() { ctrl.SetAutoContinue(on) })

	case KeyNewSession:
		return m, controlCmd(func() { ctrl.NewSession() })

	case KeyClearSession:
		return m, controlCmd(ctrl.ClearSession)

	case KeyType:
		m.typing = true
		m.input = nil
		return m, nil
	}

	return m, nil
}

// handleInputKey edits the text bypass line.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.unsubscribe()
		return m, tea.Quit

	case tea.KeyEsc:
		m.typing = false
		m.input = nil
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(string(m.input))
		m.typing = false
		m.input = nil
		if text == "" {
			return m, nil
		}
		ctrl := m.ctrl
		return m, controlCmd(func() { ctrl.Ask(text) })

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case tea.KeySpace:
		m.input = append(m.input, ' ')
		return m, nil

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
		return m, nil
	}

	return m, nil
}

// View renders the full screen.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderConversation())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.typing {
		sections = append(sections, ui.UserLabelStyle.Render("> ")+ui.InputStyle.Render(string(m.input)+"▌"))
	}
	if m.state.Error != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("YASNA")

	var info []string
	if id := m.state.SessionID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		info = append(info, "session "+id)
	}
	if m.state.Locale != "" {
		info = append(info, m.state.Locale)
	}

	header := title
	if len(info) > 0 {
		header += ui.DimStyle.Render(" — " + strings.Join(info, " · "))
	}
	if m.state.AutoContinue {
		header += " " + ui.BadgeStyle.Render("[AUTO]")
	}
	return header
}

func (m Model) renderStatusBar() string {
	var status string
	switch m.state.Phase {
	case conversation.Listening:
		status = ui.ListeningDotStyle.Render("● LISTENING")
		status += "  " + renderLevelMeter("MIC", audio.Level(m.state.AudioLevel, levelFloor))
	case conversation.Processing:
		status = ui.ProcessingStyle.Render("⟳ THINKING")
	case conversation.Speaking:
		status = ui.SpeakingStyle.Render("♪ SPEAKING")
	default:
		status = ui.IdleDotStyle.Render("○ IDLE")
	}
	if m.state.Speaking && m.state.Phase != conversation.Speaking {
		status += "  " + ui.SpeakingStyle.Render("♪")
	}
	return status
}

func renderLevelMeter(label string, level float64) string {
	const barLen = 8
	filled := int(level * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			pct := float64(i) / float64(barLen)
			if pct > 0.6 {
				bar += ui.LevelYellowStyle.Render("█")
			} else {
				bar += ui.LevelGreenStyle.Render("█")
			}
		} else {
			bar += ui.LevelGrayStyle.Render("░")
		}
	}
	return ui.MicLabelStyle.Render(label) + " " + bar
}

func (m Model) renderConversation() string {
	textWidth := max(10, m.width-4)
	st := m.state

	var lines []string
	switch {
	case st.Partial != "":
		lines = append(lines, ui.UserLabelStyle.Render("You"))
		for _, wl := range wrapText(st.Partial+"▌", textWidth) {
			lines = append(lines, "  "+ui.PartialTextStyle.Render(wl))
		}
	case st.Final != "":
		lines = append(lines, ui.UserLabelStyle.Render("You"))
		for _, wl := range wrapText(st.Final, textWidth) {
			lines = append(lines, "  "+wl)
		}
	}

	if st.Assistant != "" {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, ui.AssistantLabelStyle.Render("Assistant"))
		for _, wl := range wrapText(st.Assistant, textWidth) {
			lines = append(lines, "  "+wl)
		}
	}

	if len(lines) == 0 {
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  Press Space and speak"))
	}

	// Keep the newest lines when the screen is short.
	if visible := m.conversationVisibleLines(); len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	return strings.Join(lines, "\n")
}

func (m Model) conversationVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + input(1) + error(1) + footer(1)
	return max(3, m.height-7)
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.state.Error)
}

func (m Model) renderFooter() string {
	if m.typing {
		return strings.Join([]string{
			footerKey("Enter", "Send"),
			footerKey("Esc", "Cancel"),
		}, "  ")
	}

	var parts []string
	if m.state.Phase == conversation.Listening {
		parts = append(parts, footerKey("Space", "Stop"))
	} else {
		parts = append(parts, footerKey("Space", "Talk"))
	}
	parts = append(parts, footerKey("r", "Repeat"))
	parts = append(parts, footerKey("s", "Silence"))
	parts = append(parts, footerKey("a", "Auto"))
	parts = append(parts, footerKey("n", "New"))
	parts = append(parts, footerKey("x", "Clear"))
	parts = append(parts, footerKey("t", "Type"))
	parts = append(parts, footerKey("q", "Quit"))

	return strings.Join(parts, "  ")
}

func footerKey(key, desc string) string {
	return ui.FooterKeyStyle.Render(key) + ui.FooterDescStyle.Render(" "+desc)
}

// Helpers

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if lipgloss.Width(current)+1+lipgloss.Width(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
