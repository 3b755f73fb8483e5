package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages fed into the TUI from the recorder sink and the main loop.
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type TranscriptMsg struct{ Text string }
type AudioLevelMsg struct{ Level float64 }
type SilenceWarningMsg struct{ Active bool }
type StatusMsg struct{ Text string }
type ErrorMsg struct{ Text string }
type CopiedMsg struct{}
type DeviceLineMsg struct{ Text string }
type EndpointLineMsg struct{ Text string }
type tickMsg time.Time

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateRecording
)

// intent is a key-driven request handled by the main loop.
type intent int

const (
	intentToggle intent = iota
	intentCopy
)

const meterWidth = 32

var (
	styleRec      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleStandby  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleInfo     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpBold = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	styleText     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleCopied   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleErr      = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	styleTitle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	meterStyles   [9]lipgloss.Style
	meterColors   = []string{"236", "28", "34", "40", "46", "226", "214", "208", "196"}
)

func init() {
	for i, c := range meterColors {
		meterStyles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
}

type tuiModel struct {
	state         tuiState
	frame         int
	started       time.Time
	level         float64
	peak          float64
	silenceWarn   bool
	transcript    string
	status        string
	errLine       string
	copied        bool
	deviceLine    string
	endpointLine  string
	width, height int
	intents       chan<- intent
}

func NewTUIProgram(intents chan<- intent) *tea.Program {
	m := tuiModel{intents: intents}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) sendIntent(in intent) {
	select {
	case m.intents <- in:
	default:
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			m.sendIntent(intentToggle)
		case "c":
			m.sendIntent(intentCopy)
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.started = time.Now()
		m.level = 0
		m.peak = 0
		m.silenceWarn = false
		m.errLine = ""
		m.copied = false

	case RecordingStopMsg:
		m.state = tuiStateIdle
		m.level = 0
		m.silenceWarn = false

	case TranscriptMsg:
		m.transcript = msg.Text
		m.copied = false

	case AudioLevelMsg:
		if m.state == tuiStateRecording {
			m.level = m.level*0.6 + msg.Level*0.4
			if msg.Level > m.peak {
				m.peak = msg.Level
			}
		}

	case SilenceWarningMsg:
		m.silenceWarn = msg.Active

	case StatusMsg:
		m.status = msg.Text

	case ErrorMsg:
		m.errLine = msg.Text

	case CopiedMsg:
		m.copied = true

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case EndpointLineMsg:
		m.endpointLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const leftWidth = 40
	recording := m.state == tuiStateRecording

	var left []string
	left = append(left, renderMeter(m.frame, m.level, recording))
	left = append(left, "")

	if recording {
		left = append(left, styleRec.Render(fmt.Sprintf("● REC %.1fs", time.Since(m.started).Seconds())))
		if m.silenceWarn {
			left = append(left, styleWarn.Render("  ⚠ no speech detected"))
		}
	} else {
		left = append(left, styleStandby.Render("○ STANDBY"))
	}

	if m.endpointLine != "" {
		left = append(left, styleInfo.Render(m.endpointLine))
	}
	if m.deviceLine != "" {
		left = append(left, styleDim.Render(m.deviceLine))
	}
	if m.status != "" {
		left = append(left, styleDim.Render(m.status))
	}
	if m.errLine != "" {
		left = append(left, styleErr.Render(m.errLine))
	}

	left = append(left, "")
	left = append(left, styleHelpBold.Render("space")+styleHelp.Render(" record  ")+
		styleHelpBold.Render("c")+styleHelp.Render(" copy  ")+
		styleHelpBold.Render("q")+styleHelp.Render(" quit"))
	left = append(left, styleHelp.Render("murmur "+version))

	rightWidth := m.width - leftWidth - 1
	if rightWidth < 20 {
		rightWidth = 20
	}
	right := renderTranscriptPanel(m, rightWidth)

	leftPanel := lipgloss.NewStyle().
		Width(leftWidth - 1).
		Height(m.height).
		PaddingLeft(1).
		Render(strings.Join(left, "\n"))

	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right)

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

// renderMeter draws a bar of block cells whose lit portion tracks the
// smoothed audio level, with a slow idle pulse so the screen never looks
// frozen.
func renderMeter(frame int, level float64, recording bool) string {
	lit := 0
	if recording {
		// Typical speech RMS sits well below 0.3, stretch the scale.
		lit = int(math.Min(level*4.0, 1.0) * meterWidth)
	} else {
		pulse := (math.Sin(float64(frame)*0.12) + 1) / 2
		lit = 1 + int(pulse*2)
	}

	var b strings.Builder
	for i := 0; i < meterWidth; i++ {
		idx := 0
		if i < lit {
			idx = 1 + i*(len(meterStyles)-1)/meterWidth
			if !recording {
				idx = 1
			}
		}
		b.WriteString(meterStyles[idx].Render("█"))
	}
	return b.String()
}

func renderTranscriptPanel(m tuiModel, width int) string {
	wrapWidth := width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("Transcript") + "\n\n")

	if m.transcript == "" {
		b.WriteString(styleDim.Render("Nothing transcribed yet"))
		return b.String()
	}

	// Keep the tail of the transcript in view.
	var lines []string
	for _, para := range strings.Split(m.transcript, "\n") {
		lines = append(lines, wrapText(para, wrapWidth)...)
	}
	maxLines := m.height - 4
	if maxLines < 3 {
		maxLines = 3
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	for i, line := range lines {
		b.WriteString(styleText.Render(line))
		if i == len(lines)-1 && m.copied {
			b.WriteString(" " + styleCopied.Render("[✓ copied]"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// wrapText breaks text into lines of at most width cells, preferring
// space boundaries. It operates on runes so a multibyte character at the
// wrap column is never split.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	runes := []rune(text)
	var lines []string
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = runes[splitAt:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
