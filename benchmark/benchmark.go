// MODUL: benchmark
// ZWECK: Latenz-Messung und Referenz-Ausgaben fuer Original- und optimierte Modelle
// INPUT: Runner (model.Model oder learner.Learner), Test-Split, Config
// OUTPUT: Baseline (Referenz-Ausgaben + Latenz in Sekunden/Batch), Stats
// NEBENEFFEKTE: CPU-Last waehrend der Messung
// ABHAENGIGKEITEN: data, model, tensor, envconfig
// HINWEISE: Warmup-Laeufe sind wichtig fuer stabile Messungen; Fehler werden nur mit %w gewrappt

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/tensor"
)

var ErrNoSamples = errors.New("benchmark: no samples to measure")

// Runner ist alles, was Eingaben zu Ausgaben verarbeitet.
type Runner interface {
	Run(ctx context.Context, inputs ...tensor.Tensor) ([]tensor.Tensor, error)
}

// ============================================================================
// Konfiguration
// ============================================================================

// Config definiert die Parameter einer Latenz-Messung.
type Config struct {
	Warmup     int `json:"warmup"`     // ungemessene Laeufe
	Iterations int `json:"iterations"` // gemessene Laeufe
}

// DefaultConfig liest Warmup und Iterationen aus der Umgebung.
func DefaultConfig() Config {
	return Config{
		Warmup:     int(envconfig.Warmup()),
		Iterations: int(max(envconfig.Iterations(), 1)),
	}
}

// ============================================================================
// Statistik
// ============================================================================

// Stats enthaelt Latenz-Statistiken pro Batch.
type Stats struct {
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total"`
	Avg        time.Duration `json:"avg"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
	P95        time.Duration `json:"p95"`
}

// Seconds gibt die mittlere Latenz in Sekunden pro Batch zurueck.
func (s Stats) Seconds() float64 { return s.Avg.Seconds() }

// calculateStats berechnet Statistiken aus Latenz-Messungen.
func calculateStats(latencies []time.Duration) Stats {
	if len(latencies) == 0 {
		return Stats{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range latencies {
		total += d
	}

	p95Idx := min(int(float64(len(sorted))*0.95), len(sorted)-1)

	return Stats{
		Iterations: len(latencies),
		Total:      total,
		Avg:        total / time.Duration(len(latencies)),
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		P95:        sorted[p95Idx],
	}
}

// ============================================================================
// Messung
// ============================================================================

// Latency misst die Latenz pro Batch. Nach cfg.Warmup ungemessenen Laeufen
// folgen cfg.Iterations gemessene Laeufe, reihum ueber die Eingaben.
func Latency(ctx context.Context, r Runner, inputs [][]tensor.Tensor, cfg Config) (Stats, error) {
	if len(inputs) == 0 {
		return Stats{}, ErrNoSamples
	}

	for i := range cfg.Warmup {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		if _, err := r.Run(ctx, inputs[i%len(inputs)]...); err != nil {
			return Stats{}, fmt.Errorf("warmup run %d: %w", i, err)
		}
	}

	latencies, err := measureLatencies(ctx, r, inputs, max(cfg.Iterations, 1))
	if err != nil {
		return Stats{}, err
	}
	return calculateStats(latencies), nil
}

// measureLatencies misst die Latenzen fuer jede Iteration.
func measureLatencies(ctx context.Context, r Runner, inputs [][]tensor.Tensor, iterations int) ([]time.Duration, error) {
	latencies := make([]time.Duration, 0, iterations)
	for i := range iterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		if _, err := r.Run(ctx, inputs[i%len(inputs)]...); err != nil {
			return nil, fmt.Errorf("timed run %d: %w", i, err)
		}
		latencies = append(latencies, time.Since(start))
	}
	return latencies, nil
}

// Outputs fuehrt jede Eingabe genau einmal aus.
func Outputs(ctx context.Context, r Runner, inputs [][]tensor.Tensor) ([][]tensor.Tensor, error) {
	outputs := make([][]tensor.Tensor, len(inputs))
	for i, in := range inputs {
		out, err := r.Run(ctx, in...)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		outputs[i] = out
	}
	return outputs, nil
}

// ============================================================================
// Baseline
// ============================================================================

// Baseline sind Referenz-Ausgaben und Latenz des unoptimierten Modells.
type Baseline struct {
	Framework model.Framework   `json:"framework"`
	Outputs   [][]tensor.Tensor `json:"-"`
	Latency   float64           `json:"latency"` // Sekunden pro Batch
	Stats     Stats             `json:"stats"`
}

// MeasureBaseline benchmarkt das Original-Modell auf dem Test-Split.
func MeasureBaseline(ctx context.Context, m model.Model, test *data.Manager, cfg Config) (*Baseline, error) {
	if test == nil || test.Len() == 0 {
		return nil, ErrNoSamples
	}

	inputs := test.Inputs()
	outputs, err := Outputs(ctx, m, inputs)
	if err != nil {
		return nil, err
	}

	stats, err := Latency(ctx, m, inputs, cfg)
	if err != nil {
		return nil, err
	}

	return &Baseline{
		Framework: m.Framework(),
		Outputs:   outputs,
		Latency:   stats.Seconds(),
		Stats:     stats,
	}, nil
}
