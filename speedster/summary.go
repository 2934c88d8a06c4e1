// summary.go - Zusammenfassung und Report eines Laufs
//
// Hauptfunktionen:
// - Summary: Original vs. optimiertes Modell (Latenz, Durchsatz, Groesse, Speedup)
// - Summary.Lines / Summary.Log: Ausgabe fuer CLI-Tabelle und slog
// - newReport: benchmark.Report mit allen Kandidaten

package speedster

import (
	"fmt"
	"log/slog"

	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/format"
	"github.com/speedster/speedster/metric"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/optimize"
)

// Original beschreibt das unoptimierte Modell.
type Original struct {
	Framework model.Framework `json:"framework"`
	Latency   float64         `json:"latency"`
	Size      int64           `json:"size"`
}

// Summary vergleicht Original und optimales Modell.
type Summary struct {
	RunID     string          `json:"run_id,omitempty"`
	Model     string          `json:"model"`
	Device    string          `json:"device"`
	Framework model.Framework `json:"framework"`
	Metric    string          `json:"metric"`
	BatchSize int             `json:"batch_size"`

	OriginalLatency     float64 `json:"original_latency"`
	OptimizedLatency    float64 `json:"optimized_latency"`
	OriginalThroughput  float64 `json:"original_throughput"`
	OptimizedThroughput float64 `json:"optimized_throughput"`
	OriginalSize        int64   `json:"original_size"`
	OptimizedSize       int64   `json:"optimized_size"`
	MetricDrop          float64 `json:"metric_drop"`
	Speedup             float64 `json:"speedup"`

	Pipeline     string `json:"pipeline"`
	Compiler     string `json:"compiler"`
	Compressor   string `json:"compressor,omitempty"`
	Quantization string `json:"quantization"`
}

func newSummary(name, dev, metricName string, batchSize int, orig Original, best optimize.Candidate) *Summary {
	s := &Summary{
		Model:               name,
		Device:              dev,
		Framework:           orig.Framework,
		Metric:              metricName,
		BatchSize:           batchSize,
		OriginalLatency:     orig.Latency,
		OptimizedLatency:    best.Latency,
		OriginalThroughput:  format.Throughput(orig.Latency, batchSize),
		OptimizedThroughput: format.Throughput(best.Latency, batchSize),
		OriginalSize:        orig.Size,
		OptimizedSize:       best.Size,
		MetricDrop:          best.MetricDrop,
		Pipeline:            string(best.Pipeline),
		Compiler:            string(best.Compiler),
		Compressor:          string(best.Compressor),
		Quantization:        best.Quantization.String(),
	}
	if best.Latency > 0 {
		s.Speedup = orig.Latency / best.Latency
	}
	return s
}

// Lines gibt die Zusammenfassung als Beschriftung/Wert-Paare zurueck.
func (s *Summary) Lines() [][2]string {
	backend := s.Compiler
	if s.Compressor != "" {
		backend = s.Compressor + " + " + backend
	}
	return [][2]string{
		{"Device", s.Device},
		{"Original framework", string(s.Framework)},
		{"Optimized backend", fmt.Sprintf("%s (%s, %s)", backend, s.Pipeline, s.Quantization)},
		{"Original latency", format.HumanLatency(s.OriginalLatency) + "/batch"},
		{"Optimized latency", format.HumanLatency(s.OptimizedLatency) + "/batch"},
		{"Original throughput", fmt.Sprintf("%.2f data/second", s.OriginalThroughput)},
		{"Optimized throughput", fmt.Sprintf("%.2f data/second", s.OptimizedThroughput)},
		{"Original model size", format.HumanBytes(s.OriginalSize)},
		{"Optimized model size", format.HumanBytes(s.OptimizedSize)},
		{"Metric drop", fmt.Sprintf("%s (%s)", metric.Format(s.MetricDrop), s.Metric)},
		{"Estimated speedup", fmt.Sprintf("%.2fx", s.Speedup)},
	}
}

// Log schreibt die Zusammenfassung als eine Log-Zeile.
func (s *Summary) Log(logger *slog.Logger) {
	logger.Info("optimization finished",
		"device", s.Device,
		"framework", s.Framework,
		"pipeline", s.Pipeline,
		"compiler", s.Compiler,
		"compressor", s.Compressor,
		"quantization", s.Quantization,
		"original_latency", format.HumanLatency(s.OriginalLatency),
		"optimized_latency", format.HumanLatency(s.OptimizedLatency),
		"original_size", format.HumanBytes(s.OriginalSize),
		"optimized_size", format.HumanBytes(s.OptimizedSize),
		"metric_drop", metric.Format(s.MetricDrop),
		"speedup", fmt.Sprintf("%.2fx", s.Speedup),
	)
}

// newReport baut den exportierbaren Report; der gewaehlte Kandidat ist markiert.
func newReport(s *Summary, orig Original, candidates []optimize.Candidate, best *optimize.Candidate) *benchmark.Report {
	original := benchmark.Row{
		Name:       "original",
		Framework:  string(orig.Framework),
		Latency:    orig.Latency,
		Throughput: s.OriginalThroughput,
		Size:       orig.Size,
		Speedup:    1,
	}

	rows := make([]benchmark.Row, len(candidates))
	for i, c := range candidates {
		rows[i] = benchmark.Row{
			Name:         fmt.Sprintf("candidate-%d", i+1),
			Framework:    string(c.Pipeline),
			Compiler:     string(c.Compiler),
			Compressor:   string(c.Compressor),
			Quantization: c.Quantization.String(),
			Latency:      c.Latency,
			Throughput:   format.Throughput(c.Latency, s.BatchSize),
			Size:         c.Size,
			MetricDrop:   c.MetricDrop,
			Selected:     best != nil && c.Learner == best.Learner,
		}
	}
	return benchmark.NewReport(s.Model, s.Device, s.Metric, original, rows)
}
