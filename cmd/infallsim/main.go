// Command infallsim runs the infall engine and serves its frames over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/infall/internal/api"
	"github.com/talgya/infall/internal/config"
	"github.com/talgya/infall/internal/engine"
	"github.com/talgya/infall/internal/persistence"
)

// reportInterval is the wall-clock spacing of status logs and auto-saves.
const reportInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to an INI configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Infall — Schwarzschild free-fall engine")

	// ── Configuration ────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", *configPath)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		slog.Error("bad environment override", "error", err)
		os.Exit(1)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	slog.Info("black hole ready",
		"mass_solar", cfg.Physics.MassSolar,
		"rs", humanize.SIWithDigits(sim.K.Rs, 4, "m"),
		"bodies", len(sim.Bodies),
		"law", cfg.Integrator.Law,
		"strategy", cfg.Render.Strategy,
	)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Server.DBPath); dir != "" {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.Server.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Server.DBPath)

	run, err := db.StartRun(cfg, sim.K.Rs, len(sim.Bodies))
	if err != nil {
		slog.Error("failed to record run", "error", err)
		os.Exit(1)
	}
	slog.Info("run started", "id", run.ID)

	sim.OnCycle = func(sum engine.CycleSummary) {
		if err := db.SaveCycle(run.ID, sum); err != nil {
			slog.Error("cycle save failed", "cycle", sum.Cycle, "error", err)
		}
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Interval = cfg.FrameInterval()
	eng.ReportEvery = uint64(reportInterval / eng.Interval)
	eng.OnTick = sim.Tick
	eng.OnReport = func(tick uint64) {
		sim.LogStatus()
		if err := db.SaveState(run.ID, sim); err != nil {
			slog.Error("auto-save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("INFALL_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		RunID:    run.ID,
		Port:     cfg.Server.Port,
		AdminKey: cfg.Server.AdminKey,
		RelayKey: cfg.Server.RelayKey,
	}
	srv := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nInfall is running: %d bodies falling from %.1f rs.\n",
		len(sim.Bodies), cfg.Body.StartRadiusRs)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)
	slog.Info("engine stopped", "tick", eng.Tick)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveState(run.ID, sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Run saved.")
}
