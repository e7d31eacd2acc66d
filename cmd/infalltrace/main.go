// Command infalltrace runs a single body to its death without a display and
// prints its radius and stretch history.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"

	"github.com/talgya/infall/internal/config"
	"github.com/talgya/infall/internal/engine"
	"github.com/talgya/infall/internal/physics"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
)

func main() {
	configPath := flag.String("config", "", "path to an INI configuration file")
	law := flag.String("law", "", "override the velocity law (proper-time or observer)")
	maxTicks := flag.Uint64("max-ticks", 1_000_000, "give up after this many frames")
	width := flag.Int("width", 72, "plot width in columns")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "infalltrace:", err)
			os.Exit(1)
		}
	}
	cfg.Body.Subdivisions = 1
	cfg.Body.Jitter = 0
	if *law != "" {
		if err := cfg.Integrator.Law.UnmarshalText([]byte(*law)); err != nil {
			fmt.Fprintln(os.Stderr, "infalltrace:", err)
			os.Exit(1)
		}
	}

	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "infalltrace:", err)
		os.Exit(1)
	}

	// Drive the simulation through the engine with a fixed frame, so the
	// trace does not depend on wall time.
	eng := engine.NewEngine()
	frame := cfg.FrameInterval()

	var radius, stretch []float64
	eng.OnTick = func(tick uint64, elapsed time.Duration) {
		sim.Tick(tick, elapsed)
		b := sim.Bodies[0]
		if b.Alive {
			radius = append(radius, b.R/sim.K.Rs)
			stretch = append(stretch, b.Stretch)
		}
	}

	start := time.Now()
	for len(sim.History()) == 0 && eng.Tick < *maxTicks {
		eng.Step(frame)
	}
	hist := sim.History()
	if len(hist) == 0 {
		fmt.Fprintf(os.Stderr, "infalltrace: body still alive after %s frames\n", humanize.Comma(int64(*maxTicks)))
		os.Exit(1)
	}

	fmt.Println(titleStyle.Render("r / rs"))
	fmt.Println(asciigraph.Plot(downsample(radius, *width),
		asciigraph.Height(12), asciigraph.Width(*width), asciigraph.Caption("radius per frame")))
	fmt.Println()
	fmt.Println(titleStyle.Render("stretch"))
	fmt.Println(asciigraph.Plot(downsample(stretch, *width),
		asciigraph.Height(8), asciigraph.Width(*width), asciigraph.Caption("tidal stretch per frame")))
	fmt.Println()
	fmt.Println(summary(sim, hist[0], time.Since(start)))
}

// downsample keeps at most n evenly spaced samples, always including the last.
func downsample(v []float64, n int) []float64 {
	if n <= 1 || len(v) <= n {
		return v
	}
	out := make([]float64, 0, n)
	step := float64(len(v)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, v[int(float64(i)*step+0.5)])
	}
	return out
}

func summary(sim *engine.Simulation, sum engine.CycleSummary, took time.Duration) string {
	b := sim.Bodies[0]
	cfg := sim.Config()
	rows := [][2]string{
		{"Law", cfg.Integrator.Law.String()},
		{"Mass", fmt.Sprintf("%g M☉", cfg.Physics.MassSolar)},
		{"rs", humanize.SIWithDigits(sim.K.Rs, 4, "m")},
		{"Start", fmt.Sprintf("%.2f rs", cfg.Body.StartRadiusRs)},
		{"Cause", b.Cause.String()},
		{"Final r", fmt.Sprintf("%.5f rs", b.R/sim.K.Rs)},
		{"Proper time", humanize.SIWithDigits(sum.MeanTau, 4, "s")},
		{"Dilation", fmt.Sprintf("%.4f", physics.DilationFactor(sim.K.Rs, b.R, cfg.Lifecycle.DilationFloor))},
		{"Max stretch", fmt.Sprintf("%.3f", sum.MaxStretch)},
		{"Steps", humanize.Comma(int64(b.Steps))},
		{"Frames", humanize.Comma(int64(sum.Ticks))},
		{"Wall time", took.Round(time.Millisecond).String()},
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("INFALL TRACE") + "\n")
	for _, r := range rows {
		sb.WriteString(keyStyle.Render(r[0]) + r[1] + "\n")
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}
