package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const clearScreen = "\x1b[H\x1b[2J"

// Panel draws the screen as a bordered box on a writer, standing in for
// the OLED on a serial console or a spare tty.
type Panel struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool

	box    lipgloss.Style
	title  lipgloss.Style
	label  lipgloss.Style
	status lipgloss.Style
}

// NewPanel renders to w. With clear set every refresh starts by clearing
// the terminal, so the panel stays in place.
func NewPanel(w io.Writer, clear bool) *Panel {
	r := lipgloss.NewRenderer(w)
	return &Panel{
		w:     w,
		clear: clear,
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			Width(Width + 2),
		title:  r.NewStyle().Bold(true).Foreground(ColorTitleFg),
		label:  r.NewStyle().Foreground(ColorLabel),
		status: r.NewStyle().Bold(true),
	}
}

// OpenPanel opens a tty or file for writing and returns a clearing panel
// on it together with the file to close on shutdown.
func OpenPanel(path string) (*Panel, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoDisplay, err)
	}
	return NewPanel(f, true), f, nil
}

// Render draws lines. The first line is the title and the last one the
// status; both are styled.
func (p *Panel) Render(lines []string) error {
	if p == nil || p.w == nil {
		return ErrNoDisplay
	}

	rows := make([]string, len(lines))
	for i, l := range lines {
		l = Truncate(l, Width)
		switch i {
		case 0:
			rows[i] = p.title.Render(l)
		case len(lines) - 1:
			rows[i] = p.status.Foreground(StatusColor(l)).Render(l)
		default:
			rows[i] = p.label.Render(l)
		}
	}
	out := p.box.Render(strings.Join(rows, "\n")) + "\n"

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clear {
		out = clearScreen + out
	}
	_, err := io.WriteString(p.w, out)
	return err
}
