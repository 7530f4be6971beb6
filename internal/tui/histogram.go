// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"ctcss/internal/analysis"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F25D94")).
			Bold(true)
)

var quitKeys = key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))

type toneMapMsg struct{ tm analysis.ToneMap }

type stallMsg struct{ stalled bool }

// HistogramModel is the bubbletea model drawing one bar per tone.
type HistogramModel struct {
	source  string
	width   int
	latest  analysis.ToneMap
	stalled bool
}

// NewHistogramModel creates a model for the named source with bars of at
// most width characters.
func NewHistogramModel(source string, width int) HistogramModel {
	return HistogramModel{source: source, width: width}
}

func (m HistogramModel) Init() tea.Cmd {
	return nil
}

func (m HistogramModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case toneMapMsg:
		m.latest = msg.tm
	case stallMsg:
		m.stalled = msg.stalled
	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m HistogramModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("CTCSS Tone Monitor " + m.source))
	sb.WriteString("\n\n")

	if m.latest.Sequence == 0 {
		sb.WriteString(infoStyle.Render("Waiting for the first block..."))
	} else {
		peak, _ := m.latest.Peak()
		sb.WriteString(infoStyle.Render(fmt.Sprintf("Block %d   Level %.1f dBFS   Peak %.1f Hz",
			m.latest.Sequence, m.latest.Level, peak.Frequency)))
	}
	if m.stalled {
		sb.WriteString("   ")
		sb.WriteString(warnStyle.Render("NO DATA"))
	}
	sb.WriteString("\n\n")

	peak, _ := m.latest.Peak()
	for _, r := range m.latest.Readings {
		line := HistogramLine(r.Frequency, BarLength(r.Power, peak.Power, m.width))
		if r.Frequency == peak.Frequency && peak.Power > 0 {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(quitKeys.Help().Key + ": " + quitKeys.Help().Desc))
	return sb.String()
}

// Histogram runs a HistogramModel as a full-screen program and feeds it
// tone maps. It implements transport.Transport.
type Histogram struct {
	program *tea.Program
}

// NewHistogram creates the program. Call Run to take over the terminal.
func NewHistogram(source string, width int, opts ...tea.ProgramOption) *Histogram {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Histogram{
		program: tea.NewProgram(NewHistogramModel(source, width), opts...),
	}
}

// Run blocks until the user quits or Close is called.
func (h *Histogram) Run() error {
	_, err := h.program.Run()
	return err
}

// Send hands a tone map to the program. It blocks until the program has
// accepted it and returns immediately once the program has exited.
func (h *Histogram) Send(data any) error {
	tm, ok := data.(analysis.ToneMap)
	if !ok {
		return fmt.Errorf("tui: unsupported payload %T", data)
	}
	h.program.Send(toneMapMsg{tm})
	return nil
}

// SetStalled shows or clears the no-data marker without blocking the
// caller.
func (h *Histogram) SetStalled(stalled bool) {
	go h.program.Send(stallMsg{stalled})
}

// Close makes Run return.
func (h *Histogram) Close() error {
	h.program.Quit()
	return nil
}
