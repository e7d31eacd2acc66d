// Package persistence provides SQLite-based storage for runs, cycle
// summaries, events and the latest body arena.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	_ "modernc.org/sqlite"

	"github.com/talgya/infall/internal/bodies"
	"github.com/talgya/infall/internal/config"
	"github.com/talgya/infall/internal/engine"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Run is one simulator process lifetime.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	MassSolar  float64   `json:"mass_solar"`
	Rs         float64   `json:"rs"`
	BodyCount  int       `json:"body_count"`
	ConfigJSON string    `json:"config_json"`
}

// BodyRow is the stored state of one body.
type BodyRow struct {
	RunID    string  `json:"run_id"`
	ID       uint32  `json:"id"`
	DirX     float64 `json:"dir_x"`
	DirY     float64 `json:"dir_y"`
	DirZ     float64 `json:"dir_z"`
	Size     float64 `json:"size"`
	R        float64 `json:"r"`
	Tau      float64 `json:"tau"`
	Stretch  float64 `json:"stretch"`
	Opacity  float64 `json:"opacity"`
	Alive    bool    `json:"alive"`
	Cause    string  `json:"cause"`
	DiedTick uint64  `json:"died_tick"`
	Steps    uint64  `json:"steps"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Columns follow the json tags of the engine types.
	conn.Mapper = reflectx.NewMapperFunc("json", strings.ToLower)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		mass_solar REAL NOT NULL,
		rs REAL NOT NULL,
		body_count INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cycles (
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		start_tick INTEGER NOT NULL,
		end_tick INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		bodies INTEGER NOT NULL,
		absorbed INTEGER NOT NULL,
		crossed INTEGER NOT NULL,
		faded INTEGER NOT NULL,
		destroyed INTEGER NOT NULL,
		mean_tau REAL NOT NULL,
		stddev_tau REAL NOT NULL,
		max_stretch REAL NOT NULL,
		mean_stretch REAL NOT NULL,
		mean_steps REAL NOT NULL,
		PRIMARY KEY (run_id, cycle)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		cycle INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bodies (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		dir_x REAL NOT NULL,
		dir_y REAL NOT NULL,
		dir_z REAL NOT NULL,
		size REAL NOT NULL,
		r REAL NOT NULL,
		tau REAL NOT NULL,
		stretch REAL NOT NULL,
		opacity REAL NOT NULL,
		alive INTEGER NOT NULL,
		cause TEXT NOT NULL,
		died_tick INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
	CREATE INDEX IF NOT EXISTS idx_cycles_run ON cycles(run_id, cycle);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartRun records a new run and returns it.
func (db *DB) StartRun(cfg config.Config, rs float64, bodyCount int) (Run, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("encode config: %w", err)
	}
	run := Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		MassSolar:  cfg.Physics.MassSolar,
		Rs:         rs,
		BodyCount:  bodyCount,
		ConfigJSON: string(cfgJSON),
	}
	_, err = db.conn.NamedExec(`INSERT INTO runs
		(id, started_at, mass_solar, rs, body_count, config_json)
		VALUES (:id, :started_at, :mass_solar, :rs, :body_count, :config_json)`, run)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	if err := db.SaveMeta("last_run", run.ID); err != nil {
		return Run{}, fmt.Errorf("save meta: %w", err)
	}
	return run, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, started_at, mass_solar, rs, body_count, config_json FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// SaveCycle stores one cycle summary.
func (db *DB) SaveCycle(runID string, sum engine.CycleSummary) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO cycles
		(run_id, cycle, start_tick, end_tick, ticks, bodies, absorbed, crossed, faded, destroyed,
		 mean_tau, stddev_tau, max_stretch, mean_stretch, mean_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sum.Cycle, sum.StartTick, sum.EndTick, sum.Ticks, sum.Bodies,
		sum.Absorbed, sum.Crossed, sum.Faded, sum.Destroyed,
		sum.MeanTau, sum.StdDevTau, sum.MaxStretch, sum.MeanStretch, sum.MeanSteps,
	)
	return err
}

// Cycles returns up to limit cycle summaries of a run, oldest first.
func (db *DB) Cycles(runID string, limit int) ([]engine.CycleSummary, error) {
	var cycles []engine.CycleSummary
	err := db.conn.Select(&cycles, `SELECT * FROM (
		SELECT cycle, start_tick, end_tick, ticks, bodies, absorbed, crossed, faded, destroyed,
		       mean_tau, stddev_tau, max_stretch, mean_stretch, mean_steps
		FROM cycles WHERE run_id = ? ORDER BY cycle DESC LIMIT ?
	) ORDER BY cycle ASC`, runID, limit)
	return cycles, err
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (run_id, tick, cycle, description, category) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(runID, e.Tick, e.Cycle, e.Description, e.Category); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, cycle, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

// SaveBodies writes the arena of a run (full replace).
func (db *DB) SaveBodies(runID string, arena []bodies.Body) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM bodies WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO bodies
		(run_id, id, dir_x, dir_y, dir_z, size, r, tau, stretch, opacity, alive, cause, died_tick, steps)
		VALUES (:run_id, :id, :dir_x, :dir_y, :dir_z, :size, :r, :tau, :stretch, :opacity, :alive, :cause, :died_tick, :steps)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range arena {
		if _, err := stmt.Exec(toRow(runID, &arena[i])); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Bodies returns the stored arena of a run, ordered by ID.
func (db *DB) Bodies(runID string) ([]BodyRow, error) {
	var rows []BodyRow
	err := db.conn.Select(&rows, `SELECT run_id, id, dir_x, dir_y, dir_z, size, r, tau, stretch,
		opacity, alive, cause, died_tick, steps FROM bodies WHERE run_id = ? ORDER BY id`, runID)
	return rows, err
}

func toRow(runID string, b *bodies.Body) BodyRow {
	return BodyRow{
		RunID:    runID,
		ID:       uint32(b.ID),
		DirX:     b.Direction.X(),
		DirY:     b.Direction.Y(),
		DirZ:     b.Direction.Z(),
		Size:     b.Size,
		R:        b.R,
		Tau:      b.Tau,
		Stretch:  b.Stretch,
		Opacity:  b.Opacity,
		Alive:    b.Alive,
		Cause:    b.Cause.String(),
		DiedTick: b.DiedTick,
		Steps:    b.Steps,
	}
}

// SaveMeta stores a key-value pair in simulation metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	return value, err
}

// SaveState flushes pending events, the arena and the last tick. Call it
// from the tick goroutine.
func (db *DB) SaveState(runID string, sim *engine.Simulation) error {
	slog.Info("saving simulation state", "run", runID, "bodies", len(sim.Bodies), "cycle", sim.Cycle)

	events := sim.DrainEvents()
	if err := db.SaveEvents(runID, events); err != nil {
		sim.RequeueEvents(events)
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveBodies(runID, sim.Bodies); err != nil {
		return fmt.Errorf("save bodies: %w", err)
	}
	if err := db.SaveMeta("last_tick", fmt.Sprintf("%d", sim.CurrentTick())); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("simulation state saved")
	return nil
}
