// MODUL: feedback
// ZWECK: Sammelt Laufzeit-Daten eines Optimierungs-Laufs (Original + alle Versuche)
// INPUT: RunInfo zu Beginn, ein Entry pro Versuch
// OUTPUT: Run mit allen Eintraegen; optional JSON-Datei und Sinks (z.B. SQLite-Store)
// NEBENEFFEKTE: Send schreibt latencies_<model>_<id>.json nach SPEEDSTER_HOME
// ABHAENGIGKEITEN: uuid, envconfig
// HINWEISE: Collector ist eine explizite Instanz pro Orchestrator, kein globaler Zustand

package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/logutil"
)

var ErrNotStarted = errors.New("feedback: collection not started")

// ============================================================================
// Datentypen
// ============================================================================

// RunInfo beschreibt einen Optimierungs-Lauf.
type RunInfo struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	Framework        string    `json:"framework"`
	Device           string    `json:"device"`
	Metric           string    `json:"metric"`
	Threshold        *float64  `json:"metric_drop_ths,omitempty"`
	OptimizationTime string    `json:"optimization_time"`
	BatchSize        int       `json:"batch_size"`
	Version          string    `json:"version"`
	Started          time.Time `json:"started"`
}

// Entry ist ein Messwert: das Original-Modell oder ein Optimierungs-Versuch.
type Entry struct {
	Original     bool    `json:"original,omitempty"`
	Pipeline     string  `json:"pipeline"`
	Compiler     string  `json:"compiler,omitempty"`
	Compressor   string  `json:"compressor,omitempty"`
	Quantization string  `json:"quantization,omitempty"`
	Latency      float64 `json:"latency"` // Sekunden pro Batch, 0 wenn nicht gemessen
	MetricDrop   float64 `json:"metric_drop"`
	Size         int64   `json:"size,omitempty"`
	Accepted     bool    `json:"accepted"`
	Selected     bool    `json:"selected,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Run ist ein abgeschlossener Lauf mit allen Eintraegen.
type Run struct {
	RunInfo
	Finished time.Time `json:"finished"`
	Entries  []Entry   `json:"entries"`
}

// Sink empfaengt abgeschlossene Laeufe.
type Sink interface {
	SaveRun(ctx context.Context, run Run) error
}

// ============================================================================
// Collector
// ============================================================================

// Collector sammelt die Eintraege eines Laufs.
type Collector struct {
	dir    string
	sinks  []Sink
	logger *slog.Logger

	mu      sync.Mutex
	run     Run
	started bool
}

// Option konfiguriert einen Collector.
type Option func(*Collector)

// WithDir setzt das Verzeichnis fuer Latenz-Dateien (Default: SPEEDSTER_HOME).
func WithDir(dir string) Option {
	return func(c *Collector) { c.dir = dir }
}

// WithSinks fuegt Sinks hinzu, an die Send den Lauf weitergibt.
func WithSinks(sinks ...Sink) Option {
	return func(c *Collector) { c.sinks = append(c.sinks, sinks...) }
}

// WithLogger setzt den Logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// New erstellt einen Collector.
func New(opts ...Option) *Collector {
	c := &Collector{}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logutil.OrDefault(c.logger)
	return c
}

// AddSink fuegt nachtraeglich einen Sink hinzu.
func (c *Collector) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Start beginnt eine neue Sammlung und verwirft alte Eintraege.
// Ohne ID wird eine UUID vergeben. Gibt die Lauf-ID zurueck.
func (c *Collector) Start(info RunInfo) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Started.IsZero() {
		info.Started = time.Now().UTC()
	}
	c.run = Run{RunInfo: info}
	c.started = true
	return info.ID
}

// Record haengt einen Eintrag an. Nicht-endliche Messwerte werden als 0
// gespeichert, der Grund landet in Error.
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Entries = append(c.run.Entries, finite(e))
}

// finite ersetzt NaN/Inf, die JSON nicht darstellen kann.
func finite(e Entry) Entry {
	var bad []string
	if math.IsNaN(e.MetricDrop) || math.IsInf(e.MetricDrop, 0) {
		bad = append(bad, fmt.Sprintf("metric drop %v", e.MetricDrop))
		e.MetricDrop = 0
	}
	if math.IsNaN(e.Latency) || math.IsInf(e.Latency, 0) {
		bad = append(bad, fmt.Sprintf("latency %v", e.Latency))
		e.Latency = 0
	}
	if len(bad) == 0 {
		return e
	}
	msg := "non-finite " + strings.Join(bad, ", ")
	if e.Error != "" {
		msg = e.Error + "; " + msg
	}
	e.Error = msg
	return e
}

// MarkSelected markiert den Eintrag an Position i als ausgewaehlt.
func (c *Collector) MarkSelected(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= 0 && i < len(c.run.Entries) {
		c.run.Entries[i].Selected = true
	}
}

// Entries gibt eine Kopie aller Eintraege zurueck.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.run.Entries)
}

// Run gibt eine Kopie des aktuellen Laufs zurueck.
func (c *Collector) Run() Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := c.run
	run.Entries = slices.Clone(c.run.Entries)
	return run
}

// Send schliesst den Lauf ab. Mit storeLatencies werden die Eintraege als
// JSON-Datei geschrieben und an alle Sinks weitergegeben; sonst wird nur
// geloggt. Gibt den Pfad der geschriebenen Datei zurueck.
func (c *Collector) Send(ctx context.Context, storeLatencies bool) (string, error) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return "", ErrNotStarted
	}
	c.run.Finished = time.Now().UTC()
	run := c.run
	run.Entries = slices.Clone(c.run.Entries)
	sinks := slices.Clone(c.sinks)
	c.mu.Unlock()

	if !storeLatencies {
		c.logger.Info("feedback collected", "run", run.ID, "entries", len(run.Entries))
		return "", nil
	}

	path, err := c.writeFile(run)
	if err != nil {
		return "", err
	}
	c.logger.Info("latencies stored", "run", run.ID, "path", path)

	var errs []error
	for _, s := range sinks {
		if err := s.SaveRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return path, errors.Join(errs...)
}

func (c *Collector) writeFile(run Run) (string, error) {
	dir := c.dir
	if dir == "" {
		dir = envconfig.Home()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create feedback directory: %w", err)
	}

	b, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(run.Model, run.ID))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FileName gibt den Dateinamen fuer die Latenzen eines Laufs zurueck.
func FileName(model, id string) string {
	model = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, model)
	if model == "" {
		model = "model"
	}
	return "latencies_" + model + "_" + id + ".json"
}
