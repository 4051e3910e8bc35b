package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/smartplant/internal/display"
)

func TestModelShowsFrame(t *testing.T) {
	m := New("Smart Plant", nil)

	if v := m.View(); !strings.Contains(v, "Initializing") {
		t.Errorf("before sizing: got %q", v)
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)
	if v := m.View(); !strings.Contains(v, "Waiting for sensor data") {
		t.Errorf("before first frame: missing waiting text:\n%s", v)
	}

	lines := []string{"Smart Plant", "T:36.0C H:30.0%", "Pump: OFF", "too hot & dry"}
	next, _ = m.Update(linesMsg{lines: lines, time: time.Now()})
	m = next.(Model)

	v := m.View()
	for _, l := range lines[1:] {
		if !strings.Contains(v, l) {
			t.Errorf("view missing %q:\n%s", l, v)
		}
	}
}

func TestModelToggle(t *testing.T) {
	on := false
	toggle := func(context.Context) (bool, error) {
		on = !on
		return on, nil
	}
	m := New("Smart Plant", toggle)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if cmd == nil {
		t.Fatal("space should produce a toggle command")
	}
	msg := cmd()
	res, ok := msg.(toggleResultMsg)
	if !ok || !res.on {
		t.Fatalf("toggle result: got %#v", msg)
	}

	next, _ := m.Update(res)
	m = next.(Model)
	if m.notice != "pump ON" {
		t.Errorf("notice: got %q", m.notice)
	}

	next, _ = m.Update(toggleResultMsg{err: errors.New("gpio")})
	m = next.(Model)
	if m.err == nil {
		t.Error("expected error to be shown")
	}
}

func TestModelToggleDisabled(t *testing.T) {
	m := New("Smart Plant", nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	if cmd != nil {
		t.Error("no command expected without a toggler")
	}
	if next.(Model).notice == "" {
		t.Error("expected a notice")
	}
}

func TestProgramRenderWhenStopped(t *testing.T) {
	pr := NewProgram("Smart Plant", nil)
	if err := pr.Render([]string{"x"}); !errors.Is(err, display.ErrNoDisplay) {
		t.Errorf("got %v, want ErrNoDisplay", err)
	}
}

func TestFmtDuration(t *testing.T) {
	if got := fmtDuration(65 * time.Second); got != "1m05s" {
		t.Errorf("got %q", got)
	}
	if got := fmtDuration(time.Hour + 2*time.Minute + 3*time.Second); got != "1h02m03s" {
		t.Errorf("got %q", got)
	}
}
