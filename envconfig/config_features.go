// config_features.go - Benchmark- und Optimierungs-Einstellungen
//
// Dieses Modul enthaelt:
// - Benchmark-Parameter (Warmup, Iterationen)
// - Parallelitaets-Einstellungen
// - Geraete-Override und Telemetrie-Flags
package envconfig

// =============================================================================
// Benchmark-Einstellungen
// =============================================================================

var (
	// Warmup setzt die Anzahl ungemessener Laeufe vor jeder Latenzmessung
	// Konfigurierbar via SPEEDSTER_WARMUP
	Warmup = Uint("SPEEDSTER_WARMUP", 10)

	// Iterations setzt die Anzahl gemessener Laeufe pro Latenzmessung
	// Konfigurierbar via SPEEDSTER_ITERATIONS
	Iterations = Uint("SPEEDSTER_ITERATIONS", 100)
)

// =============================================================================
// Parallelitaet
// =============================================================================

var (
	// NumParallel setzt die Anzahl parallel optimierter Repraesentationen
	// Konfigurierbar via SPEEDSTER_NUM_PARALLEL (1 = sequentiell)
	NumParallel = Uint("SPEEDSTER_NUM_PARALLEL", 1)
)

// =============================================================================
// Geraete und Telemetrie
// =============================================================================

var (
	// Device ueberschreibt die automatische Geraete-Erkennung (cpu, gpu)
	Device = String("SPEEDSTER_DEVICE")

	// StoreLatencies aktiviert das Speichern der Latenz-Telemetrie als Default
	StoreLatencies = Bool("SPEEDSTER_STORE_LATENCIES")

	// NoTelemetryDB deaktiviert die SQLite-Telemetrie-Datenbank
	NoTelemetryDB = Bool("SPEEDSTER_NO_DB")
)
