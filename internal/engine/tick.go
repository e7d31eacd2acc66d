// Package engine provides the frame-driven simulation loop and the body
// lifecycle it runs.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// commandBuffer is how many queued host commands the engine holds.
const commandBuffer = 64

// Engine drives the simulation forward at the display refresh rate.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Frame interval (default 1/60 s)

	// ReportEvery runs OnReport every that many ticks; 0 disables it.
	ReportEvery uint64

	// Callbacks, populated during setup. Both run on the tick goroutine.
	OnTick   func(tick uint64, elapsed time.Duration) // Every frame
	OnReport func(tick uint64)                        // Every ReportEvery frames

	speed    atomic.Uint64 // float64 bits; 1.0 = real time, 0 = stopped
	running  atomic.Bool
	commands chan func()
	last     time.Time
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	e := &Engine{
		Interval: time.Second / 60,
		commands: make(chan func(), commandBuffer),
	}
	e.SetSpeed(1)
	return e
}

// Speed returns the time multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed sets the time multiplier. Values below zero are treated as zero.
func (e *Engine) SetSpeed(v float64) {
	if !(v > 0) {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Enqueue hands fn to the tick goroutine. It runs before the next frame,
// even while the engine is stopped at speed 0.
func (e *Engine) Enqueue(fn func()) {
	e.commands <- fn
}

// Do runs fn on the tick goroutine and waits for it to finish.
func (e *Engine) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.commands <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the frame loop. Blocks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "interval", e.Interval)

	e.last = time.Now().Add(-e.Interval)
	for e.running.Load() {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		e.drain()

		speed := e.Speed()
		if speed <= 0 {
			// Stopped: keep serving commands without advancing time.
			e.last = start
			e.sleep(ctx, 100*time.Millisecond)
			continue
		}

		elapsed := time.Duration(float64(start.Sub(e.last)) * speed)
		e.last = start
		e.step(elapsed)

		if spent := time.Since(start); spent < e.Interval {
			e.sleep(ctx, e.Interval-spent)
		}
	}

	e.running.Store(false)
	e.drain()
	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the frame loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step runs queued commands and advances one frame by elapsed. Run calls it
// on every frame; tools that drive the simulation without wall time call it
// directly.
func (e *Engine) Step(elapsed time.Duration) {
	e.drain()
	e.step(elapsed)
}

func (e *Engine) step(elapsed time.Duration) {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, elapsed)
	}
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

func (e *Engine) drain() {
	for {
		select {
		case fn := <-e.commands:
			fn()
		default:
			return
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
