// database.go - Kern-Datenbank-Funktionen
// Enthaelt: database struct, newDatabase, Close, init, Migrationen

package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion wird bei Schema-Aenderungen erhoeht.
const currentSchemaVersion = 2

// database umhuellt die SQLite-Verbindung. SQLite serialisiert Schreiber
// selbst, WAL erlaubt parallele Leser.
type database struct {
	conn *sql.DB
}

func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return db, nil
}

func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

func (db *database) init() error {
	if _, err := db.conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL DEFAULT '',
		framework TEXT NOT NULL DEFAULT '',
		device TEXT NOT NULL DEFAULT '',
		metric TEXT NOT NULL DEFAULT '',
		metric_drop_ths REAL,
		optimization_time TEXT NOT NULL DEFAULT '',
		batch_size INTEGER NOT NULL DEFAULT 0,
		version TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		original BOOLEAN NOT NULL DEFAULT 0,
		pipeline TEXT NOT NULL DEFAULT '',
		compiler TEXT NOT NULL DEFAULT '',
		compressor TEXT NOT NULL DEFAULT '',
		quantization TEXT NOT NULL DEFAULT '',
		latency REAL NOT NULL DEFAULT 0,
		metric_drop REAL NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		accepted BOOLEAN NOT NULL DEFAULT 0,
		selected BOOLEAN NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);
	`, currentSchemaVersion)

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}

	if err := db.migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// ============================================================================
// Migrationen
// ============================================================================

func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// selected Spalte zur attempts Tabelle hinzufuegen
			if err := db.migrateV1ToV2(); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		default:
			version = currentSchemaVersion
		}
	}
	return nil
}

func (db *database) getSchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow(`SELECT schema_version FROM meta WHERE id = 1`).Scan(&version)
	return version, err
}

func (db *database) migrateV1ToV2() error {
	_, err := db.conn.Exec(`ALTER TABLE attempts ADD COLUMN selected BOOLEAN NOT NULL DEFAULT 0;`)
	if err != nil && !duplicateColumnError(err) {
		return fmt.Errorf("add selected column: %w", err)
	}

	if _, err := db.conn.Exec(`UPDATE meta SET schema_version = 2;`); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return nil
}

// duplicateColumnError prueft ob ein SQLite-Fehler eine doppelte Spalte meldet
func duplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
