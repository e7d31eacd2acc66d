package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"

	"github.com/talgya/infall/internal/engine"
)

var (
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Trail keeps a bounded series of samples for plotting.
type Trail struct {
	max     int
	samples []float64
}

// NewTrail returns a trail holding at most max samples.
func NewTrail(max int) *Trail {
	return &Trail{max: max}
}

// Add appends a sample, dropping the oldest when full.
func (t *Trail) Add(v float64) {
	t.samples = append(t.samples, v)
	if len(t.samples) > t.max {
		t.samples = t.samples[len(t.samples)-t.max:]
	}
}

// Reset clears the trail.
func (t *Trail) Reset() {
	t.samples = t.samples[:0]
}

// Samples returns the stored samples, oldest first.
func (t *Trail) Samples() []float64 {
	return t.samples
}

// HUDLines returns the plain-text status lines shown beside the canvas.
func HUDLines(f *engine.Frame) [][2]string {
	st := f.Stats
	lines := [][2]string{
		{"Status", f.Status},
		{"Cycle", humanize.Comma(int64(f.Cycle))},
		{"Tick", humanize.Comma(int64(f.Tick))},
		{"rs", humanize.SIWithDigits(f.Rs, 4, "m")},
		{"Alive", fmt.Sprintf("%d / %d", st.Alive, len(f.Bodies))},
	}
	if st.Alive > 0 {
		lines = append(lines,
			[2]string{"Min r", fmt.Sprintf("%.4f rs", st.MinRadiusRs)},
			[2]string{"Opacity", fmt.Sprintf("%.3f", st.MeanOpacity)},
		)
	}
	lines = append(lines,
		[2]string{"Stretch", fmt.Sprintf("%.2f", st.MaxStretch)},
		[2]string{"Max τ", humanize.SIWithDigits(st.MaxTau, 3, "s")},
		[2]string{"Deaths", fmt.Sprintf("%d absorbed  %d crossed  %d faded  %d destroyed",
			st.Absorbed, st.Crossed, st.Faded, st.Destroyed)},
	)
	return lines
}

// Plot draws a radius trail as an ASCII chart. Returns "" with fewer than
// two samples.
func Plot(samples []float64, width, height int, caption string) string {
	if len(samples) < 2 {
		return ""
	}
	return asciigraph.Plot(samples,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(caption),
	)
}

// RenderPanel renders the status lines and optional chart as a styled
// panel for plain terminal output.
func RenderPanel(f *engine.Frame, chart string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("INFALL") + "\n")
	for _, l := range HUDLines(f) {
		b.WriteString(labelStyle.Render(l[0]) + valueStyle.Render(l[1]) + "\n")
	}
	if chart != "" {
		b.WriteString("\n" + graphStyle.Render(chart))
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}
