package optimize

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/speedster/speedster/backend"
	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/metric"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
	"github.com/speedster/speedster/tensor"
)

// ============================================================================
// Test-Backends
// ============================================================================

type failingCompiler struct{}

func (failingCompiler) Name() backend.CompilerName    { return "failing" }
func (failingCompiler) Supports(model.Framework) bool { return true }
func (failingCompiler) Compile(context.Context, *model.Network, backend.Quantization, model.Params) (learner.Learner, error) {
	return nil, errors.New("toolchain missing")
}

type panicCompiler struct{}

func (panicCompiler) Name() backend.CompilerName    { return "panic" }
func (panicCompiler) Supports(model.Framework) bool { return true }
func (panicCompiler) Compile(context.Context, *model.Network, backend.Quantization, model.Params) (learner.Learner, error) {
	panic("segfault im backend")
}

// noisyCompiler verfaelscht alle Gewichte um Faktor 2.
type noisyCompiler struct{}

func (noisyCompiler) Name() backend.CompilerName    { return "noisy" }
func (noisyCompiler) Supports(model.Framework) bool { return true }
func (noisyCompiler) Compile(_ context.Context, net *model.Network, q backend.Quantization, _ model.Params) (learner.Learner, error) {
	out := net.Clone()
	for i := range out.Layers {
		for j := range out.Layers[i].Weight.Data {
			out.Layers[i].Weight.Data[j] *= 2
		}
	}
	return learner.NewLoop(out, learner.Metadata{Compiler: "noisy", Quantization: q}), nil
}

// nanCompiler setzt alle Gewichte auf NaN.
type nanCompiler struct{}

func (nanCompiler) Name() backend.CompilerName    { return "nan" }
func (nanCompiler) Supports(model.Framework) bool { return true }
func (nanCompiler) Compile(_ context.Context, net *model.Network, q backend.Quantization, _ model.Params) (learner.Learner, error) {
	out := net.Clone()
	for i := range out.Layers {
		for j := range out.Layers[i].Weight.Data {
			out.Layers[i].Weight.Data[j] = float32(math.NaN())
		}
	}
	return learner.NewLoop(out, learner.Metadata{Compiler: "nan", Quantization: q}), nil
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

func testNetwork() *model.Network {
	return &model.Network{
		ModelName: "tiny",
		Layers: []model.Layer{
			{
				Name:       "fc1",
				Weight:     tensor.Tensor{Shape: []int{3, 2}, Data: []float32{1, 0, 0, 1, 1, 1}},
				Bias:       tensor.Tensor{Shape: []int{3}, Data: []float32{0, 0, -10}},
				Activation: model.ReLU,
			},
			{
				Name:       "fc2",
				Weight:     tensor.Tensor{Shape: []int{1, 3}, Data: []float32{1, 1, 1}},
				Activation: model.Identity,
			},
		},
	}
}

func testConfig(t *testing.T, net *model.Network, ths *float64) Config {
	t.Helper()
	samples := make([]data.Sample, 10)
	for i := range samples {
		samples[i] = data.Sample{Inputs: []tensor.Tensor{{Shape: []int{2, 2}, Data: []float32{float32(i), 1, 2, float32(i)}}}}
	}
	d, err := data.New(samples)
	require.NoError(t, err)
	require.NoError(t, d.Split(data.TrainTestSplitRatio))

	bench := benchmark.Config{Iterations: 2}
	base, err := benchmark.MeasureBaseline(context.Background(), net, d.Test(), bench)
	require.NoError(t, err)

	return Config{
		Metric:           metric.RelativeDifference,
		Threshold:        ths,
		OptimizationTime: backend.Constrained,
		Baseline:         base,
		Data:             d,
	}
}

func testOptimizer(compilers ...backend.Compiler) *Optimizer {
	reg := backend.NewRegistry()
	for _, c := range compilers {
		reg.RegisterCompiler(c)
	}
	o := New(reg, nil)
	o.Bench = benchmark.Config{Iterations: 2}
	return o
}

type attemptKey struct {
	Pipeline     model.Framework
	Compiler     backend.CompilerName
	Compressor   backend.CompressorName
	Quantization backend.Quantization
}

func keys(results []Result) []attemptKey {
	out := make([]attemptKey, len(results))
	for i, r := range results {
		out[i] = attemptKey{r.Pipeline, r.Compiler, r.Compressor, r.Quantization}
	}
	return out
}

// ============================================================================
// Tests
// ============================================================================

func TestOptimizeIsolatesFailures(t *testing.T) {
	net := testNetwork()
	o := testOptimizer(failingCompiler{}, backend.LoopCompiler{}, panicCompiler{})

	results, err := o.Optimize(context.Background(), net, testConfig(t, net, nil))
	require.NoError(t, err)
	require.Len(t, results, 3)

	if results[0].Accepted() || results[0].Err == nil {
		t.Errorf("failing: erwartet Fehler, bekommen %+v", results[0])
	}
	if !results[1].Accepted() {
		t.Errorf("loop: erwartet Kandidat, bekommen %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, ErrPanic) {
		t.Errorf("panic: erwartet ErrPanic, bekommen %v", results[2].Err)
	}

	c := results[1].Candidate
	if c.Latency <= 0 || c.Size <= 0 || c.MetricDrop != 0 {
		t.Errorf("unerwarteter Kandidat: %+v", c)
	}
	if c.Pipeline != model.Native || c.Compiler != backend.Loop || c.Quantization != quant.None {
		t.Errorf("Herkunft: %+v", c)
	}
}

func TestOptimizeQuantizations(t *testing.T) {
	net := testNetwork()
	ths := 0.05
	o := testOptimizer(backend.GonumCompiler{})

	results, err := o.Optimize(context.Background(), net, testConfig(t, net, &ths))
	require.NoError(t, err)

	var qs []backend.Quantization
	for _, r := range results {
		qs = append(qs, r.Quantization)
		if !r.Accepted() {
			t.Errorf("%s: erwartet Kandidat, bekommen %v (drop %v)", r.Quantization, r.Err, r.MetricDrop)
		}
	}
	if diff := cmp.Diff([]backend.Quantization{quant.None, quant.Half, quant.BFloat16, quant.Int8}, qs); diff != "" {
		t.Errorf("Quantisierungen (-want +got):\n%s", diff)
	}
}

func TestOptimizeRejects(t *testing.T) {
	net := testNetwork()
	o := testOptimizer(noisyCompiler{})

	results, err := o.Optimize(context.Background(), net, testConfig(t, net, nil))
	require.NoError(t, err)
	require.Len(t, results, 1)
	if !errors.Is(results[0].Err, ErrRejected) {
		t.Errorf("erwartet ErrRejected, bekommen %v", results[0].Err)
	}
	if results[0].MetricDrop <= backend.DefaultTolerance {
		t.Errorf("Metric-Drop sollte ueber der Toleranz liegen, bekommen %v", results[0].MetricDrop)
	}

	e := results[0].Entry()
	if e.Accepted || e.Error == "" || e.Compiler != "noisy" {
		t.Errorf("unerwarteter Eintrag: %+v", e)
	}
}

func TestOptimizeRejectsNaN(t *testing.T) {
	net := testNetwork()
	o := testOptimizer(nanCompiler{})

	results, err := o.Optimize(context.Background(), net, testConfig(t, net, nil))
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	if r.Accepted() || !errors.Is(r.Err, ErrRejected) {
		t.Fatalf("erwartet ErrRejected, bekommen accepted=%v err=%v", r.Accepted(), r.Err)
	}
	if r.MetricDrop != 0 {
		t.Errorf("Metric-Drop sollte 0 bleiben, bekommen %v", r.MetricDrop)
	}
	if _, ok := Select(Candidates(results)); ok {
		t.Error("NaN-Kandidat darf nicht gewaehlt werden")
	}
	if e := r.Entry(); e.Accepted || e.MetricDrop != 0 || e.Error == "" {
		t.Errorf("unerwarteter Eintrag: %+v", e)
	}
}

func TestOptimizeUnconstrained(t *testing.T) {
	net := testNetwork()
	o := testOptimizer(backend.LoopCompiler{})
	o.Registry.RegisterCompressor(backend.PruneCompressor{Ratio: backend.DefaultPruneRatio})
	o.Registry.RegisterCompressor(backend.FoldCompressor{})

	cfg := testConfig(t, net, nil)
	cfg.OptimizationTime = backend.Unconstrained
	results, err := o.Optimize(context.Background(), net, cfg)
	require.NoError(t, err)

	want := []attemptKey{
		{model.Native, "", backend.Fold, ""},
		{model.Native, backend.Loop, "", quant.None},
		{model.Native, backend.Loop, backend.Prune, quant.None},
	}
	if diff := cmp.Diff(want, keys(results)); diff != "" {
		t.Errorf("Versuche (-want +got):\n%s", diff)
	}
	if !errors.Is(results[0].Err, backend.ErrNotApplicable) {
		t.Errorf("fold: erwartet ErrNotApplicable, bekommen %v", results[0].Err)
	}

	// Compressors werden im Modus constrained nicht ausgefuehrt
	cfg.OptimizationTime = backend.Constrained
	results, err = o.Optimize(context.Background(), net, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestOptimizeAllKeepsOrder(t *testing.T) {
	net := testNetwork()
	reps := []model.Model{net.As(model.Native), net.As(model.Safetensors), net.As(model.PyTorch)}
	cfg := testConfig(t, net, nil)

	seq := testOptimizer(backend.GonumCompiler{}, backend.LoopCompiler{})
	want, err := seq.OptimizeAll(context.Background(), reps, cfg)
	require.NoError(t, err)

	par := testOptimizer(backend.GonumCompiler{}, backend.LoopCompiler{})
	par.Parallel = 3
	got, err := par.OptimizeAll(context.Background(), reps, cfg)
	require.NoError(t, err)

	require.Len(t, want, 6)
	if diff := cmp.Diff(keys(want), keys(got)); diff != "" {
		t.Errorf("Reihenfolge (-seq +par):\n%s", diff)
	}
	if got[2].Pipeline != model.Safetensors {
		t.Errorf("dritter Versuch: erwartet safetensors, bekommen %s", got[2].Pipeline)
	}
}

func TestOptimizeCanceled(t *testing.T) {
	net := testNetwork()
	cfg := testConfig(t, net, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testOptimizer(backend.LoopCompiler{}).OptimizeAll(ctx, []model.Model{net}, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("erwartet context.Canceled, bekommen %v", err)
	}
}

func TestOptimizeWithoutTestData(t *testing.T) {
	if _, err := testOptimizer().Optimize(context.Background(), testNetwork(), Config{}); !errors.Is(err, ErrNoTest) {
		t.Errorf("erwartet ErrNoTest, bekommen %v", err)
	}
}

// ============================================================================
// Selector
// ============================================================================

func TestSelect(t *testing.T) {
	if _, ok := Select(nil); ok {
		t.Error("leere Liste darf keinen Kandidaten liefern")
	}

	a := learner.NewLoop(testNetwork(), learner.Metadata{Name: "a"})
	b := learner.NewGonum(testNetwork(), learner.Metadata{Name: "b"})
	c := learner.NewGonum(testNetwork(), learner.Metadata{Name: "c"})

	best, ok := Select([]Candidate{
		{Learner: a, Latency: 0.3},
		{Learner: b, Latency: 0.1},
		{Learner: c, Latency: 0.1},
	})
	require.True(t, ok)
	if best.Learner.Name() != "b" {
		t.Errorf("Gleichstand: erwartet b (zuerst eingereicht), bekommen %s", best.Learner.Name())
	}

	if _, ok := Select([]Candidate{{Latency: 0.01}, {Learner: a, Latency: 0.2}}); ok {
		t.Error("bester Kandidat ohne Learner darf nicht gewaehlt werden")
	}
}

func TestCandidates(t *testing.T) {
	cand := &Candidate{Latency: 1}
	results := []Result{
		{Err: errors.New("x")},
		{Candidate: cand},
		{Candidate: &Candidate{}, Err: ErrRejected},
	}
	got := Candidates(results)
	require.Len(t, got, 1)
	if got[0].Latency != 1 {
		t.Errorf("erwartet Latenz 1, bekommen %v", got[0].Latency)
	}
}
