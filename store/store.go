// Modul: store.go
// Beschreibung: Telemetrie-Store fuer Optimierungs-Laeufe (SQLite).
// Enthaelt Store, Open, ensureDB und die Lauf-Operationen.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/feedback"
)

var ErrRunNotFound = errors.New("store: run not found")

// DBFile ist der Dateiname der Datenbank in SPEEDSTER_HOME.
const DBFile = "speedster.db"

// Store speichert Laeufe und Versuche. Implementiert feedback.Sink.
type Store struct {
	// DBPath ueberschreibt den Standard-Pfad (vor allem fuer Tests)
	DBPath string

	// dbMu schuetzt nur die Initialisierung
	dbMu sync.Mutex
	db   *database
}

// Summary ist die Kurzfassung eines Laufs fuer Listen.
type Summary struct {
	feedback.RunInfo
	Finished    time.Time `json:"finished"`
	Attempts    int       `json:"attempts"`
	Accepted    int       `json:"accepted"`
	BestLatency float64   `json:"best_latency"`
}

// DefaultPath gibt den Datenbank-Pfad in SPEEDSTER_HOME zurueck.
func DefaultPath() string {
	return filepath.Join(envconfig.Home(), DBFile)
}

// Open oeffnet die Datenbank unter path (leer: DefaultPath).
func Open(path string) (*Store, error) {
	s := &Store{DBPath: path}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	database, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = database
	return nil
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// ============================================================================
// Lauf-Operationen
// ============================================================================

// SaveRun speichert einen Lauf. Ein bestehender Lauf gleicher ID wird ersetzt.
func (s *Store) SaveRun(ctx context.Context, run feedback.Run) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Versuche werden per ON DELETE CASCADE mitgeloescht
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	var ths sql.NullFloat64
	if run.Threshold != nil {
		ths = sql.NullFloat64{Float64: *run.Threshold, Valid: true}
	}
	var finished sql.NullTime
	if !run.Finished.IsZero() {
		finished = sql.NullTime{Time: run.Finished, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, framework, device, metric, metric_drop_ths, optimization_time, batch_size, version, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Model, run.Framework, run.Device, run.Metric, ths, run.OptimizationTime, run.BatchSize, run.Version, run.Started, finished)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attempts (run_id, position, original, pipeline, compiler, compressor, quantization, latency, metric_drop, size, accepted, selected, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range run.Entries {
		_, err := stmt.ExecContext(ctx, run.ID, i, e.Original, e.Pipeline, e.Compiler, e.Compressor, e.Quantization,
			e.Latency, e.MetricDrop, e.Size, e.Accepted, e.Selected, e.Error)
		if err != nil {
			return fmt.Errorf("insert attempt %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Runs gibt die letzten limit Laeufe zurueck, neueste zuerst. limit <= 0 liefert alle.
func (s *Store) Runs(ctx context.Context, limit int) ([]Summary, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT
			r.id, r.model, r.framework, r.device, r.metric, r.metric_drop_ths,
			r.optimization_time, r.batch_size, r.version, r.started_at, r.finished_at,
			COALESCE(SUM(CASE WHEN a.original = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN a.original = 0 AND a.accepted = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(MIN(CASE WHEN a.original = 0 AND a.accepted = 1 THEN a.latency END), 0)
		FROM runs r
		LEFT JOIN attempts a ON a.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var ths sql.NullFloat64
		var finished sql.NullTime
		err := rows.Scan(
			&sum.ID, &sum.Model, &sum.Framework, &sum.Device, &sum.Metric, &ths,
			&sum.OptimizationTime, &sum.BatchSize, &sum.Version, &sum.Started, &finished,
			&sum.Attempts, &sum.Accepted, &sum.BestLatency,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if ths.Valid {
			sum.Threshold = &ths.Float64
		}
		sum.Finished = finished.Time
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Run gibt einen Lauf mit allen Versuchen zurueck.
func (s *Store) Run(ctx context.Context, id string) (feedback.Run, error) {
	if err := s.ensureDB(); err != nil {
		return feedback.Run{}, err
	}

	var run feedback.Run
	var ths sql.NullFloat64
	var finished sql.NullTime
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT id, model, framework, device, metric, metric_drop_ths, optimization_time, batch_size, version, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(
		&run.ID, &run.Model, &run.Framework, &run.Device, &run.Metric, &ths,
		&run.OptimizationTime, &run.BatchSize, &run.Version, &run.Started, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return feedback.Run{}, fmt.Errorf("query run: %w", err)
	}
	if ths.Valid {
		run.Threshold = &ths.Float64
	}
	run.Finished = finished.Time

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT original, pipeline, compiler, compressor, quantization, latency, metric_drop, size, accepted, selected, error
		FROM attempts WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return feedback.Run{}, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e feedback.Entry
		err := rows.Scan(&e.Original, &e.Pipeline, &e.Compiler, &e.Compressor, &e.Quantization,
			&e.Latency, &e.MetricDrop, &e.Size, &e.Accepted, &e.Selected, &e.Error)
		if err != nil {
			return feedback.Run{}, fmt.Errorf("scan attempt: %w", err)
		}
		run.Entries = append(run.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return feedback.Run{}, fmt.Errorf("iterate attempts: %w", err)
	}
	return run, nil
}

// DeleteRun entfernt einen Lauf samt Versuchen.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
