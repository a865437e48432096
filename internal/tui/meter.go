// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"sinescope/internal/scope"
)

// MeterRefresh is how often the meter re-reads the scope state.
const MeterRefresh = 50 * time.Millisecond

// minDB is the floor of the dB scale; quieter levels render as an empty bar.
const minDB = -60.0

// SnapshotSource is the read side of the scope state.
type SnapshotSource interface {
	Snapshot() scope.Snapshot
}

type tickMsg time.Time

// MeterModel renders a level bar per channel from the latest snapshot.
type MeterModel struct {
	source SnapshotSource
	title  string
	bar    progress.Model
	snap   scope.Snapshot
	width  int
}

// NewMeterModel returns a meter over source.
func NewMeterModel(source SnapshotSource, title string) MeterModel {
	return MeterModel{
		source: source,
		title:  title,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:  80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(MeterRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MeterModel) Init() tea.Cmd {
	return tick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-40, 10)
	case tickMsg:
		m.snap = m.source.Snapshot()
		return m, tick()
	}
	return m, nil
}

func (m MeterModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if len(m.snap.Channels) == 0 {
		sb.WriteString(dimStyle.Render("Waiting for signal..."))
		sb.WriteString("\n\n")
	}
	for _, r := range m.snap.Channels {
		db := LevelDB(r.RMS)
		fmt.Fprintf(&sb, "ch%-2d %s %s", r.Channel, m.bar.ViewAs(BarFraction(db)), formatDB(db))

		peak := fmt.Sprintf(" peak %.3f", r.Peak)
		if r.Peak >= 1 {
			peak = clipStyle.Render(peak)
		}
		sb.WriteString(peak)
		if r.Frequency > 0 {
			fmt.Fprintf(&sb, " %7.1f Hz", r.Frequency)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

// LevelDB converts a linear level to dBFS, -Inf for silence.
func LevelDB(level float32) float64 {
	if level <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(level))
}

// BarFraction maps dBFS onto [0, 1] over the range minDB to 0.
func BarFraction(db float64) float64 {
	if db <= minDB {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return (db - minDB) / -minDB
}

func formatDB(db float64) string {
	if math.IsInf(db, -1) {
		return "  -inf dB"
	}
	return fmt.Sprintf("%6.1f dB", db)
}

// RunMeter runs the meter full screen until the user quits or done is
// closed.
func RunMeter(source SnapshotSource, title string, done <-chan struct{}) error {
	p := tea.NewProgram(NewMeterModel(source, title), tea.WithAltScreen())
	go func() {
		<-done
		p.Quit()
	}()
	_, err := p.Run()
	return err
}
