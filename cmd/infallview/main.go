// Command infallview draws a running infall simulation in the terminal.
// It polls the simulator's HTTP API and chirps whenever a body dies.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/infall/internal/viewer"
)

func main() {
	once := flag.Bool("once", false, "print one status panel and exit")
	mute := flag.Bool("mute", false, "start with sound off")
	poll := flag.Duration("poll", 100*time.Millisecond, "frame poll interval")
	logPath := flag.String("log", "", "write logs to this file while the screen is active")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("INFALL_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("INFALL_ADMIN_KEY")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := viewer.NewClient(apiURL, adminKey)

	// The simulator may still be starting.
	slog.Info("waiting for simulator API...", "url", apiURL)
	if err := viewer.WaitForAPI(ctx, client, time.Minute); err != nil {
		slog.Error("simulator unavailable", "error", err)
		os.Exit(1)
	}

	if *once {
		f, err := client.Frame(ctx)
		if err != nil {
			slog.Error("frame fetch failed", "error", err)
			os.Exit(1)
		}
		hist, err := client.History(ctx, 20)
		if err != nil {
			slog.Warn("history fetch failed", "error", err)
		}
		var taus []float64
		for _, h := range hist {
			taus = append(taus, h.MeanTau)
		}
		fmt.Println(viewer.RenderPanel(f, viewer.Plot(taus, 40, 6, "mean τ per cycle")))
		return
	}

	if adminKey == "" {
		slog.Warn("INFALL_ADMIN_KEY not set — session keys will be rejected")
	}

	chirper, err := viewer.NewChirper()
	if err != nil {
		slog.Warn("audio unavailable, chirps disabled", "error", err)
	}
	if *mute {
		chirper.ToggleMute()
	}

	// The screen owns the terminal from here on.
	var out io.Writer = io.Discard
	if *logPath != "" {
		file, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			slog.Error("failed to open log file", "error", err)
			os.Exit(1)
		}
		defer file.Close()
		out = file
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, nil)))

	app := viewer.NewApp(client, chirper, *poll)
	if err := app.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "viewer:", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
