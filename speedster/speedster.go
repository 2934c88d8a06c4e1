// MODUL: speedster
// ZWECK: Orchestriert einen Optimierungs-Lauf von Modell + Daten bis zum optimalen Learner
// INPUT: model.Model, *data.Manager, Optionen (Schwelle, Metrik, Backends, Config-Datei)
// OUTPUT: Optimaler Learner, Summary, Kandidaten-Liste, benchmark.Report
// NEBENEFFEKTE: Temp-Verzeichnis fuer Konvertierungen, Logging, optional Telemetrie (Datei + SQLite)
// ABHAENGIGKEITEN: data, convert, benchmark, optimize, feedback, store, device
// HINWEISE: Fehler einzelner Backends brechen den Lauf nie ab; ohne Kandidat
//           gibt Execute nil zurueck und OptimalModel ist nil

package speedster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/speedster/speedster/backend"
	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/convert"
	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/device"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/feedback"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/logutil"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/optimize"
	"github.com/speedster/speedster/store"
	"github.com/speedster/speedster/version"
)

var (
	ErrNoModel       = errors.New("speedster: no model given")
	ErrNoData        = errors.New("speedster: no data given")
	ErrInvalidConfig = errors.New("speedster: invalid config file")
)

// Speedster fuehrt Optimierungs-Laeufe aus. Die Ergebnisse des letzten
// Laufs bleiben bis zum naechsten Execute abrufbar.
type Speedster struct {
	registry  *backend.Registry
	collector *feedback.Collector
	store     *store.Store // nur gesetzt, wenn New den Store angelegt hat
	logger    *slog.Logger
	bench     *benchmark.Config

	mu         sync.Mutex
	optimal    learner.Learner
	summary    *Summary
	candidates []optimize.Candidate
	report     *benchmark.Report
	runID      string
}

// Setting konfiguriert einen Speedster beim Erstellen.
type Setting func(*Speedster)

// WithRegistry setzt die Backend-Registry (Default: backend.DefaultRegistry).
func WithRegistry(r *backend.Registry) Setting {
	return func(s *Speedster) { s.registry = r }
}

// WithCollector setzt den Feedback-Collector.
func WithCollector(c *feedback.Collector) Setting {
	return func(s *Speedster) { s.collector = c }
}

// WithLogger setzt den Logger.
func WithLogger(l *slog.Logger) Setting {
	return func(s *Speedster) { s.logger = l }
}

// WithBenchmark ueberschreibt SPEEDSTER_WARMUP und SPEEDSTER_ITERATIONS.
func WithBenchmark(cfg benchmark.Config) Setting {
	return func(s *Speedster) { s.bench = &cfg }
}

// New erstellt einen Speedster. Ohne eigenen Collector wird einer mit dem
// SQLite-Store als Sink angelegt, ausser SPEEDSTER_NO_DB ist gesetzt. Der
// Store wird mit Close geschlossen.
func New(settings ...Setting) *Speedster {
	s := &Speedster{}
	for _, set := range settings {
		set(s)
	}

	s.logger = logutil.OrDefault(s.logger)
	if s.registry == nil {
		s.registry = backend.DefaultRegistry
	}
	if s.collector == nil {
		opts := []feedback.Option{feedback.WithLogger(s.logger)}
		if !envconfig.NoTelemetryDB() {
			s.store = &store.Store{}
			opts = append(opts, feedback.WithSinks(s.store))
		}
		s.collector = feedback.New(opts...)
	}
	return s
}

// ============================================================================
// Execute
// ============================================================================

// Execute optimiert m mit den Daten d. Alle Namen (Metrik, Compiler,
// Compressors, Optimierungs-Zeit) werden vor jeder Arbeit geprueft. d wird
// nicht veraendert; der Train/Test-Split passiert auf einer Kopie.
func (s *Speedster) Execute(ctx context.Context, m model.Model, d *data.Manager, opts ...Option) error {
	if m == nil {
		return ErrNoModel
	}
	if d == nil || d.Len() == 0 {
		return ErrNoData
	}

	cfg, err := resolve(s.registry, opts...)
	if err != nil {
		return err
	}
	s.reset()

	dev := device.Detect()
	name := model.NameOf(m)
	logger := s.logger.With("model", name)
	logger.Info(fmt.Sprintf("Running Speedster Optimization on %s", dev))

	d = d.Clone()
	if err := d.Split(data.TrainTestSplitRatio); err != nil {
		return err
	}

	params, err := model.ExtractParams(ctx, m, d.Get(0).Inputs, cfg.dynamicInfo)
	if err != nil {
		return fmt.Errorf("extract params: %w", err)
	}

	baseline, err := benchmark.MeasureBaseline(ctx, m, d.Test(), s.benchConfig())
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	logger.Debug("baseline measured", "framework", m.Framework(), "latency", baseline.Latency)

	runID := s.collector.Start(feedback.RunInfo{
		Model:            name,
		Framework:        string(m.Framework()),
		Device:           dev.String(),
		Metric:           cfg.metricName,
		Threshold:        cfg.threshold,
		OptimizationTime: string(cfg.optimizationTime),
		BatchSize:        params.BatchSize,
		Version:          version.Version,
	})
	originalSize := sizeOf(m)
	s.collector.Record(feedback.Entry{
		Original: true,
		Pipeline: string(m.Framework()),
		Latency:  baseline.Latency,
		Size:     originalSize,
		Accepted: true,
	})

	reps, err := s.convert(ctx, m, params)
	if err != nil {
		return err
	}

	opt := optimize.New(s.registry, logger)
	opt.Bench = s.benchConfig()
	opt.Parallel = int(max(envconfig.NumParallel(), 1))
	results, err := opt.OptimizeAll(ctx, reps, optimize.Config{
		Metric:            cfg.metric,
		Threshold:         cfg.threshold,
		OptimizationTime:  cfg.optimizationTime,
		IgnoreCompilers:   cfg.ignoreCompilers,
		IgnoreCompressors: cfg.ignoreCompressors,
		Params:            params,
		Baseline:          baseline,
		Data:              d,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		s.collector.Record(r.Entry())
	}

	candidates := optimize.Candidates(results)
	best, ok := optimize.Select(candidates)

	s.mu.Lock()
	s.runID = runID
	s.candidates = candidates
	s.mu.Unlock()

	if !ok {
		logger.Warn("no optimized model has been created, the metric drop threshold may be too strict",
			"attempts", len(results), "metric", cfg.metricName)
		s.sendFeedback(ctx, cfg.storeLatencies)
		return nil
	}

	// Eintrag 0 ist das Original-Modell
	for i, r := range results {
		if r.Candidate != nil && r.Candidate.Learner == best.Learner {
			s.collector.MarkSelected(i + 1)
			break
		}
	}

	original := Original{
		Framework: m.Framework(),
		Latency:   baseline.Latency,
		Size:      originalSize,
	}
	summary := newSummary(name, dev.String(), cfg.metricName, params.BatchSize, original, *best)
	summary.RunID = runID
	report := newReport(summary, original, candidates, best)

	s.mu.Lock()
	s.optimal = best.Learner
	s.summary = summary
	s.report = report
	s.mu.Unlock()

	summary.Log(logger)
	s.sendFeedback(ctx, cfg.storeLatencies)
	return nil
}

// convert erzeugt alle Repraesentationen in einem temporaeren Verzeichnis,
// das nach der Konvertierung wieder geloescht wird.
func (s *Speedster) convert(ctx context.Context, m model.Model, params model.Params) ([]model.Model, error) {
	conv, err := convert.For(m.Framework())
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp(envconfig.TmpDir(), "speedster-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	dir := filepath.Join(tmp, "fp32")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	reps, err := conv.Convert(ctx, m, params, dir)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	return reps, nil
}

func (s *Speedster) sendFeedback(ctx context.Context, storeLatencies bool) {
	if _, err := s.collector.Send(ctx, storeLatencies); err != nil {
		s.logger.Warn("failed to send feedback", "error", err)
	}
}

func (s *Speedster) benchConfig() benchmark.Config {
	if s.bench != nil {
		return *s.bench
	}
	return benchmark.DefaultConfig()
}

func (s *Speedster) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimal = nil
	s.summary = nil
	s.candidates = nil
	s.report = nil
	s.runID = ""
}

// sizeOf schaetzt die Groesse des Original-Modells ueber einen
// unquantisierten Learner. 0 wenn das Modell keine Gewichte herausgibt.
func sizeOf(m model.Model) int64 {
	net, err := model.ToNetwork(m)
	if err != nil || net.Validate() != nil {
		return 0
	}
	size, err := learner.NewGonum(net.Clone(), learner.Metadata{}).Size()
	if err != nil {
		return 0
	}
	return size
}

// ============================================================================
// Ergebnisse
// ============================================================================

// OptimalModel gibt den schnellsten akzeptierten Learner des letzten Laufs
// zurueck, oder nil.
func (s *Speedster) OptimalModel() learner.Learner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optimal
}

// Summary gibt die Zusammenfassung des letzten Laufs zurueck, oder nil.
func (s *Speedster) Summary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Candidates gibt alle akzeptierten Kandidaten in Einreichungs-Reihenfolge zurueck.
func (s *Speedster) Candidates() []optimize.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]optimize.Candidate(nil), s.candidates...)
}

// Report gibt den exportierbaren Report des letzten Laufs zurueck, oder nil.
func (s *Speedster) Report() *benchmark.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// RunID gibt die Feedback-ID des letzten Laufs zurueck.
func (s *Speedster) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Close schliesst den von New angelegten Telemetrie-Store. Ein ueber
// WithCollector gesetzter Collector bleibt unberuehrt.
func (s *Speedster) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Execute ist eine Abkuerzung fuer New().Execute mit Default-Einstellungen.
func Execute(ctx context.Context, m model.Model, d *data.Manager, opts ...Option) (learner.Learner, error) {
	s := New()
	defer s.Close()
	if err := s.Execute(ctx, m, d, opts...); err != nil {
		return nil, err
	}
	return s.OptimalModel(), nil
}
