package engine

import (
	"log/slog"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/infall/internal/bodies"
)

// CycleSummary describes one finished fall, from reset to the last death.
type CycleSummary struct {
	Cycle     uint64 `json:"cycle"`
	StartTick uint64 `json:"start_tick"`
	EndTick   uint64 `json:"end_tick"`
	Ticks     uint64 `json:"ticks"`
	Bodies    int    `json:"bodies"`

	Absorbed  int `json:"absorbed"`
	Crossed   int `json:"crossed"`
	Faded     int `json:"faded"`
	Destroyed int `json:"destroyed"`

	MeanTau     float64 `json:"mean_tau"`   // Mean proper time at death (s)
	StdDevTau   float64 `json:"stddev_tau"` // Spread of proper time at death (s)
	MaxStretch  float64 `json:"max_stretch"`
	MeanStretch float64 `json:"mean_stretch"`
	MeanSteps   float64 `json:"mean_steps"`
}

// Summarize computes the summary of a dead arena.
func Summarize(cycle, start, end uint64, arena []bodies.Body) CycleSummary {
	sum := CycleSummary{
		Cycle:     cycle,
		StartTick: start,
		EndTick:   end,
		Ticks:     end - start,
		Bodies:    len(arena),
	}
	if len(arena) == 0 {
		return sum
	}

	taus := make([]float64, len(arena))
	stretches := make([]float64, len(arena))
	steps := make([]float64, len(arena))
	for i := range arena {
		b := &arena[i]
		taus[i] = b.Tau
		stretches[i] = b.Stretch
		steps[i] = float64(b.Steps)
		switch b.Cause {
		case bodies.CauseAbsorbed:
			sum.Absorbed++
		case bodies.CauseCrossed:
			sum.Crossed++
		case bodies.CauseFaded:
			sum.Faded++
		case bodies.CauseDestroyed:
			sum.Destroyed++
		}
	}

	sum.MeanTau, sum.StdDevTau = stat.MeanStdDev(taus, nil)
	if len(arena) == 1 {
		sum.StdDevTau = 0
	}
	sum.MaxStretch = floats.Max(stretches)
	sum.MeanStretch = stat.Mean(stretches, nil)
	sum.MeanSteps = stat.Mean(steps, nil)
	return sum
}

// finishCycle records the summary of the cycle that just ended.
func (s *Simulation) finishCycle(tick uint64) {
	sum := Summarize(s.Cycle, s.cycleStart, tick, s.Bodies)

	s.histMu.Lock()
	s.history = append(s.history, sum)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	s.histMu.Unlock()

	slog.Info("cycle complete",
		"cycle", sum.Cycle,
		"ticks", humanize.Comma(int64(sum.Ticks)),
		"absorbed", sum.Absorbed,
		"crossed", sum.Crossed,
		"faded", sum.Faded,
		"destroyed", sum.Destroyed,
		"mean_tau", humanize.SIWithDigits(sum.MeanTau, 3, "s"),
		"max_stretch", humanize.FtoaWithDigits(sum.MaxStretch, 3),
	)

	if s.OnCycle != nil {
		s.OnCycle(sum)
	}
}

// History returns the most recent cycle summaries, oldest first.
func (s *Simulation) History() []CycleSummary {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	out := make([]CycleSummary, len(s.history))
	copy(out, s.history)
	return out
}
