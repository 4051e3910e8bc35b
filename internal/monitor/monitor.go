// Package monitor implements the interactive terminal display using
// BubbleTea. It acts as the device's display capability and lets the
// operator toggle the pump from the keyboard.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/smartplant/internal/display"
)

// ── Messages ─────────────────────────────────────────────────────────

type linesMsg struct {
	lines []string
	time  time.Time
}

type toggleResultMsg struct {
	on  bool
	err error
}

// ── Program ──────────────────────────────────────────────────────────

// Toggler flips the pump and returns the resulting state.
type Toggler func(ctx context.Context) (bool, error)

// Program owns the BubbleTea program and implements display.Renderer.
type Program struct {
	p       *tea.Program
	running atomic.Bool
}

// NewProgram prepares the TUI. toggle may be nil to disable pump control.
func NewProgram(title string, toggle Toggler, opts ...tea.ProgramOption) *Program {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Program{p: tea.NewProgram(New(title, toggle), opts...)}
}

// Run blocks until the operator quits or ctx is cancelled.
func (pr *Program) Run(ctx context.Context) error {
	pr.running.Store(true)
	defer pr.running.Store(false)

	go func() {
		<-ctx.Done()
		pr.p.Quit()
	}()

	_, err := pr.p.Run()
	return err
}

// Render hands a frame to the TUI. It fails with display.ErrNoDisplay when
// the program is not running, so the display task never blocks on it.
func (pr *Program) Render(lines []string) error {
	if !pr.running.Load() {
		return display.ErrNoDisplay
	}
	cp := make([]string, len(lines))
	copy(cp, lines)
	pr.p.Send(linesMsg{lines: cp, time: time.Now()})
	return nil
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live monitor.
type Model struct {
	title     string
	toggle    Toggler
	lines     []string
	lastFrame time.Time
	startTime time.Time
	notice    string
	err       error
	width     int
	height    int
}

// New creates the initial model.
func New(title string, toggle Toggler) Model {
	return Model{
		title:     title,
		toggle:    toggle,
		startTime: time.Now(),
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func (m Model) toggleCmd() tea.Cmd {
	toggle := m.toggle
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		on, err := toggle(ctx)
		return toggleResultMsg{on: on, err: err}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "space", "p":
			if m.toggle == nil {
				m.notice = "pump control disabled"
				return m, nil
			}
			return m, m.toggleCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case linesMsg:
		m.lines = msg.lines
		m.lastFrame = msg.time

	case toggleResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.notice = "pump " + onOff(msg.on)
		} else {
			m.notice = ""
		}
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorFooterBg = lipgloss.Color("235")
)

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 30 {
		contentWidth = 30
	}

	var sections []string
	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(display.ColorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	if len(m.lines) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(display.ColorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for sensor data...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderScreen())
	}

	sections = append(sections, m.renderFooter(contentWidth))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(display.ColorTitleFg).
		Render(strings.ToUpper(m.title) + " MONITOR")

	dim := lipgloss.NewStyle().Foreground(display.ColorDim)
	statusParts := []string{dim.Render("up " + fmtDuration(time.Since(m.startTime)))}
	if !m.lastFrame.IsZero() {
		statusParts = append(statusParts, dim.Render(m.lastFrame.Format("15:04:05")))
	}
	if m.notice != "" {
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(display.ColorOk).Render(m.notice))
	}

	sep := dim.Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

// renderScreen mirrors the OLED: title, readings, pump, status.
func (m Model) renderScreen() string {
	rows := make([]string, len(m.lines))
	for i, l := range m.lines {
		l = display.Truncate(l, display.Width)
		switch i {
		case 0:
			rows[i] = lipgloss.NewStyle().Bold(true).Foreground(display.ColorTitleFg).Render(l)
		case len(m.lines) - 1:
			rows[i] = lipgloss.NewStyle().Bold(true).Foreground(display.StatusColor(l)).Render(l)
		default:
			rows[i] = lipgloss.NewStyle().Foreground(display.ColorLabel).Render(l)
		}
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(display.ColorBorder).
		Padding(0, 1).
		Width(display.Width + 2).
		Render(strings.Join(rows, "\n"))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(display.ColorDim)
	labelS := lipgloss.NewStyle().Foreground(display.ColorLabel)

	keys := dimS.Render("q") + labelS.Render(":quit")
	if m.toggle != nil {
		keys += dimS.Render("  space") + labelS.Render(":toggle pump")
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mi := d / time.Minute
	d -= mi * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mi, s)
	}
	return fmt.Sprintf("%dm%02ds", mi, s)
}
