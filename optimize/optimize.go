// MODUL: optimize
// ZWECK: Fuehrt Compressor/Compiler/Quantisierungs-Versuche pro Repraesentation aus
// INPUT: Repraesentationen (model.Model), Baseline, Daten-Split, Config
// OUTPUT: Ein Result pro Versuch, Kandidaten fuer den Selector
// NEBENEFFEKTE: CPU-Last durch Benchmarks; Logging pro Versuch
// ABHAENGIGKEITEN: backend, benchmark, learner, metric, errgroup
// HINWEISE: Fehler eines Versuchs werden isoliert und nie an den Aufrufer
//           durchgereicht; nur Context-Abbruch beendet die Optimierung

package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/speedster/speedster/backend"
	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/feedback"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/logutil"
	"github.com/speedster/speedster/metric"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
)

var (
	ErrRejected = errors.New("optimize: metric drop exceeds threshold")
	ErrPanic    = errors.New("optimize: backend panicked")
	ErrNoTest   = errors.New("optimize: no test data")
)

// ============================================================================
// Datentypen
// ============================================================================

// Candidate ist ein akzeptierter, optimierter Learner.
type Candidate struct {
	Learner      learner.Learner        `json:"-"`
	Latency      float64                `json:"latency"` // Sekunden pro Batch
	MetricDrop   float64                `json:"metric_drop"`
	Size         int64                  `json:"size"`
	Pipeline     model.Framework        `json:"pipeline"`
	Compiler     backend.CompilerName   `json:"compiler"`
	Compressor   backend.CompressorName `json:"compressor,omitempty"`
	Quantization backend.Quantization   `json:"quantization"`
}

// Result ist das Ergebnis eines einzelnen Versuchs.
type Result struct {
	Pipeline     model.Framework
	Compiler     backend.CompilerName
	Compressor   backend.CompressorName
	Quantization backend.Quantization
	Candidate    *Candidate
	// MetricDrop ist auch fuer abgelehnte Versuche gesetzt, sofern gemessen
	// und endlich.
	MetricDrop float64
	Err        error
}

// Accepted prueft ob der Versuch einen Kandidaten ergeben hat.
func (r Result) Accepted() bool { return r.Err == nil && r.Candidate != nil }

// Entry wandelt das Ergebnis in einen Feedback-Eintrag um.
func (r Result) Entry() feedback.Entry {
	e := feedback.Entry{
		Pipeline:     string(r.Pipeline),
		Compiler:     string(r.Compiler),
		Compressor:   string(r.Compressor),
		Quantization: r.Quantization.String(),
		MetricDrop:   r.MetricDrop,
		Accepted:     r.Accepted(),
	}
	if r.Candidate != nil {
		e.Latency = r.Candidate.Latency
		e.Size = r.Candidate.Size
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return e
}

// Candidates sammelt die Kandidaten akzeptierter Versuche in Reihenfolge.
func Candidates(results []Result) []Candidate {
	var out []Candidate
	for _, r := range results {
		if r.Accepted() {
			out = append(out, *r.Candidate)
		}
	}
	return out
}

// ============================================================================
// Konfiguration
// ============================================================================

// Config beschreibt einen Optimierungs-Lauf.
type Config struct {
	Metric            metric.Func
	Threshold         *float64 // nil: nur FP32 mit backend.DefaultTolerance
	OptimizationTime  backend.OptimizationTime
	IgnoreCompilers   []backend.CompilerName
	IgnoreCompressors []backend.CompressorName
	Params            model.Params
	Baseline          *benchmark.Baseline
	Data              *data.Manager // bereits gesplittet
}

// Quantizations gibt die zu versuchenden Quantisierungs-Typen zurueck.
func (c Config) Quantizations() []backend.Quantization {
	if c.Threshold == nil {
		return []backend.Quantization{quant.None}
	}
	return append([]backend.Quantization{quant.None}, quant.Types()...)
}

// limit gibt den zulaessigen Metric-Drop zurueck.
func (c Config) limit() float64 {
	if c.Threshold == nil {
		return backend.DefaultTolerance
	}
	return *c.Threshold
}

// ============================================================================
// Optimizer
// ============================================================================

// Optimizer fuehrt die Versuche aus.
type Optimizer struct {
	Registry *backend.Registry
	Bench    benchmark.Config
	// Parallel ist die Anzahl gleichzeitig optimierter Repraesentationen.
	Parallel int
	Logger   *slog.Logger
}

// New erstellt einen Optimizer mit Defaults aus der Umgebung.
func New(reg *backend.Registry, logger *slog.Logger) *Optimizer {
	if reg == nil {
		reg = backend.DefaultRegistry
	}
	return &Optimizer{
		Registry: reg,
		Bench:    benchmark.DefaultConfig(),
		Parallel: 1,
		Logger:   logutil.OrDefault(logger),
	}
}

// OptimizeAll optimiert alle Repraesentationen. Bei Parallel > 1 laufen
// mehrere Repraesentationen gleichzeitig; die Ergebnisse landen in festen
// Slots und haben dieselbe Reihenfolge wie im sequentiellen Lauf.
func (o *Optimizer) OptimizeAll(ctx context.Context, reps []model.Model, cfg Config) ([]Result, error) {
	slots := make([][]Result, len(reps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.Parallel, 1))
	for i, rep := range reps {
		g.Go(func() error {
			results, err := o.Optimize(gctx, rep, cfg)
			slots[i] = results
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Result
	for _, s := range slots {
		all = append(all, s...)
	}
	return all, nil
}

// Optimize fuehrt alle Versuche fuer eine Repraesentation aus.
func (o *Optimizer) Optimize(ctx context.Context, rep model.Model, cfg Config) ([]Result, error) {
	if cfg.Data == nil || cfg.Data.Test().Len() == 0 || cfg.Baseline == nil {
		return nil, ErrNoTest
	}
	if cfg.Metric == nil {
		cfg.Metric = metric.RelativeDifference
	}
	logger := o.logger().With("pipeline", rep.Framework())

	net, err := model.ToNetwork(rep)
	if err != nil {
		logger.Warn("representation cannot be optimized", "error", err)
		return []Result{{Pipeline: rep.Framework(), Err: err}}, nil
	}

	type variant struct {
		compressor backend.CompressorName
		net        *model.Network
	}
	variants := []variant{{net: net}}

	var results []Result
	if cfg.OptimizationTime == backend.Unconstrained {
		for _, c := range o.registry().Compressors(cfg.IgnoreCompressors...) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			compressed, err := safeCompress(ctx, c, net, cfg)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				level := slog.LevelWarn
				if errors.Is(err, backend.ErrNotApplicable) {
					level = slog.LevelDebug
				}
				logger.Log(ctx, level, "compression failed", "compressor", c.Name(), "error", err)
				results = append(results, Result{Pipeline: rep.Framework(), Compressor: c.Name(), Err: err})
				continue
			}
			variants = append(variants, variant{compressor: c.Name(), net: compressed})
		}
	}

	for _, v := range variants {
		for _, c := range o.registry().Compilers(cfg.IgnoreCompilers...) {
			if !c.Supports(v.net.Framework()) {
				logutil.Trace("compiler does not support pipeline", "compiler", c.Name(), "pipeline", v.net.Framework())
				continue
			}
			for _, q := range cfg.Quantizations() {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				res := o.attempt(ctx, c, v.net, q, cfg)
				res.Pipeline = rep.Framework()
				res.Compressor = v.compressor
				if res.Candidate != nil {
					res.Candidate.Pipeline = rep.Framework()
					res.Candidate.Compressor = v.compressor
				}
				if res.Err != nil && ctx.Err() != nil {
					return nil, ctx.Err()
				}

				attrs := []any{"compiler", c.Name(), "compressor", v.compressor, "quantization", q}
				switch {
				case res.Accepted():
					logger.Info("candidate accepted", append(attrs, "latency", res.Candidate.Latency, "metric_drop", res.MetricDrop)...)
				case errors.Is(res.Err, ErrRejected):
					logger.Debug("candidate rejected", append(attrs, "metric_drop", res.MetricDrop)...)
				default:
					logger.Warn("optimization failed", append(attrs, "error", res.Err)...)
				}
				results = append(results, res)
			}
		}
	}
	return results, nil
}

// attempt kompiliert, misst den Metric-Drop und bei Erfolg die Latenz.
// Panics eines Backends werden in Result.Err umgewandelt.
func (o *Optimizer) attempt(ctx context.Context, c backend.Compiler, net *model.Network, q backend.Quantization, cfg Config) (res Result) {
	res = Result{Compiler: c.Name(), Quantization: q}
	defer func() {
		if r := recover(); r != nil {
			res.Candidate = nil
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	l, err := c.Compile(ctx, net, q, cfg.Params)
	if err != nil {
		res.Err = fmt.Errorf("compile: %w", err)
		return res
	}

	test := cfg.Data.Test()
	inputs := test.Inputs()
	outputs, err := benchmark.Outputs(ctx, l, inputs)
	if err != nil {
		res.Err = fmt.Errorf("run: %w", err)
		return res
	}

	drop, err := cfg.Metric(cfg.Baseline.Outputs, outputs, test.Labels())
	if err != nil {
		res.Err = fmt.Errorf("metric: %w", err)
		return res
	}
	if math.IsNaN(drop) || math.IsInf(drop, 0) {
		res.Err = fmt.Errorf("%w: non-finite metric drop %v", ErrRejected, drop)
		return res
	}
	res.MetricDrop = drop
	if drop > cfg.limit() {
		res.Err = fmt.Errorf("%w: %s > %s", ErrRejected, metric.Format(drop), metric.Format(cfg.limit()))
		return res
	}

	stats, err := benchmark.Latency(ctx, l, inputs, o.Bench)
	if err != nil {
		res.Err = fmt.Errorf("benchmark: %w", err)
		return res
	}

	size, err := l.Size()
	if err != nil {
		o.logger().Warn("size estimation failed", "compiler", c.Name(), "error", err)
	}

	res.Candidate = &Candidate{
		Learner:      l,
		Latency:      stats.Seconds(),
		MetricDrop:   drop,
		Size:         size,
		Compiler:     c.Name(),
		Quantization: q,
	}
	return res
}

func safeCompress(ctx context.Context, c backend.Compressor, net *model.Network, cfg Config) (out *model.Network, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return c.Compress(ctx, net, cfg.Data.Train(), cfg.Params)
}

func (o *Optimizer) registry() *backend.Registry {
	if o.Registry == nil {
		return backend.DefaultRegistry
	}
	return o.Registry
}

func (o *Optimizer) logger() *slog.Logger {
	return logutil.OrDefault(o.Logger)
}
