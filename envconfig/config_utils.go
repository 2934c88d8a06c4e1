// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SPEEDSTER_DEBUG":           {"SPEEDSTER_DEBUG", LogLevel(), "Show additional debug information (e.g. SPEEDSTER_DEBUG=1)"},
		"SPEEDSTER_HOST":            {"SPEEDSTER_HOST", Host(), "IP Address for the speedster server (default 127.0.0.1:8642)"},
		"SPEEDSTER_HOME":            {"SPEEDSTER_HOME", Home(), "Directory for telemetry and stored latencies (default ~/.speedster)"},
		"SPEEDSTER_TMPDIR":          {"SPEEDSTER_TMPDIR", TmpDir(), "Base directory for temporary conversions"},
		"SPEEDSTER_WARMUP":          {"SPEEDSTER_WARMUP", Warmup(), "Warmup runs before each latency measurement (default 10)"},
		"SPEEDSTER_ITERATIONS":      {"SPEEDSTER_ITERATIONS", Iterations(), "Timed runs per latency measurement (default 100)"},
		"SPEEDSTER_NUM_PARALLEL":    {"SPEEDSTER_NUM_PARALLEL", NumParallel(), "Representations optimized in parallel (default 1)"},
		"SPEEDSTER_DEVICE":          {"SPEEDSTER_DEVICE", Device(), "Override device detection (cpu, gpu)"},
		"SPEEDSTER_STORE_LATENCIES": {"SPEEDSTER_STORE_LATENCIES", StoreLatencies(), "Store latency telemetry by default"},
		"SPEEDSTER_NO_DB":           {"SPEEDSTER_NO_DB", NoTelemetryDB(), "Do not record runs in the telemetry database"},
		"SPEEDSTER_ORIGINS":         {"SPEEDSTER_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
