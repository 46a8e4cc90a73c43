package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists coordinator events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schedule_fires (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			trigger_name TEXT,
			time_of_day  TEXT,
			fire_date    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fires_ts ON schedule_fires(timestamp)`,

		`CREATE TABLE IF NOT EXISTS gate_decisions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT,
			score     REAL,
			category  TEXT,
			admitted  INTEGER,
			reason    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON gate_decisions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS threshold_cycles (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			cycle      INTEGER,
			max_cycles INTEGER,
			score      REAL,
			target     REAL,
			phase      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON threshold_cycles(timestamp)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT,
			qty       REAL,
			side      TEXT,
			kind      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFire(evt *FireRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO schedule_fires
		(timestamp, trigger_name, time_of_day, fire_date)
		VALUES (?,?,?,?)`,
		time.Now().Unix(), evt.Trigger, evt.TimeOfDay, evt.Date,
	)
	return err
}

func (r *SQLiteRecorder) RecordDecision(evt *DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	admitted := 0
	if evt.Admitted {
		admitted = 1
	}
	_, err := r.db.Exec(`INSERT INTO gate_decisions
		(timestamp, symbol, score, category, admitted, reason)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Symbol, evt.Score, evt.Category, admitted, evt.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO threshold_cycles
		(timestamp, cycle, max_cycles, score, target, phase)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Cycle, evt.MaxCycles, evt.Score, evt.Target, evt.Phase,
	)
	return err
}

func (r *SQLiteRecorder) RecordOrder(evt *OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO orders
		(timestamp, symbol, qty, side, kind)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.Symbol, evt.Qty, evt.Side, evt.Kind,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
