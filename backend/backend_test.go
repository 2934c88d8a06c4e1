package backend

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
	"github.com/speedster/speedster/tensor"
)

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

func testInput() tensor.Tensor {
	return tensor.Tensor{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}
}

func TestParseOptimizationTime(t *testing.T) {
	cases := map[string]OptimizationTime{
		"":              Constrained,
		"constrained":   Constrained,
		"Unconstrained": Unconstrained,
	}
	for in, want := range cases {
		got, err := ParseOptimizationTime(in)
		require.NoError(t, err)
		if got != want {
			t.Errorf("%q: erwartet %s, bekommen %s", in, want, got)
		}
	}

	if _, err := ParseOptimizationTime("fast"); !errors.Is(err, ErrInvalidOptimizationTime) {
		t.Errorf("erwartet ErrInvalidOptimizationTime, bekommen %v", err)
	}
}

func TestParseNames(t *testing.T) {
	compilers, err := ParseCompilers([]string{"Gonum", " parallel "})
	require.NoError(t, err)
	if diff := cmp.Diff([]CompilerName{Gonum, Parallel}, compilers); diff != "" {
		t.Errorf("Compiler (-want +got):\n%s", diff)
	}

	_, err = ParseCompilers([]string{"tensorrt"})
	if !errors.Is(err, ErrUnknownCompiler) {
		t.Errorf("erwartet ErrUnknownCompiler, bekommen %v", err)
	}
	var regErr *RegistryError
	if !errors.As(err, &regErr) || regErr.Name != "tensorrt" {
		t.Errorf("erwartet RegistryError fuer tensorrt, bekommen %v", err)
	}

	if regErr.Hint != "" {
		t.Errorf("kein Vorschlag fuer tensorrt erwartet, bekommen %q", regErr.Hint)
	}

	_, err = ParseCompilers([]string{"gonun"})
	if !errors.As(err, &regErr) || regErr.Hint != string(Gonum) || !errors.Is(err, ErrUnknownCompiler) {
		t.Errorf("erwartet Vorschlag gonum, bekommen %v", err)
	}
	if want := "backend: parse compiler 'gonun': " + ErrUnknownCompiler.Error() + " (did you mean 'gonum'?)"; err.Error() != want {
		t.Errorf("erwartet %q, bekommen %q", want, err.Error())
	}

	if _, err := ParseCompressors([]string{"sparseml"}); !errors.Is(err, ErrUnknownCompressor) {
		t.Errorf("erwartet ErrUnknownCompressor, bekommen %v", err)
	}
	_, err = ParseCompressors([]string{"prun"})
	if !errors.As(err, &regErr) || regErr.Hint != string(Prune) || !errors.Is(err, ErrUnknownCompressor) {
		t.Errorf("erwartet Vorschlag prune, bekommen %v", err)
	}
	compressors, err := ParseCompressors([]string{"prune", "fold"})
	require.NoError(t, err)
	require.Len(t, compressors, 2)
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	r.RegisterCompiler(LoopCompiler{})
	r.RegisterCompiler(GonumCompiler{})
	r.RegisterCompiler(ParallelCompiler{Workers: 2})
	r.RegisterCompiler(LoopCompiler{})

	var names []CompilerName
	for _, c := range r.Compilers(Gonum) {
		names = append(names, c.Name())
	}
	if diff := cmp.Diff([]CompilerName{Loop, Parallel}, names); diff != "" {
		t.Errorf("Reihenfolge (-want +got):\n%s", diff)
	}

	if !r.UnregisterCompiler(Loop) || r.UnregisterCompiler(Loop) {
		t.Error("Unregister sollte genau einmal true liefern")
	}
	if _, ok := r.Compiler(Loop); ok {
		t.Error("loop sollte entfernt sein")
	}
	if got := len(DefaultRegistry.Compressors(Prune)); got != 1 {
		t.Errorf("Compressors ohne prune: erwartet 1, bekommen %d", got)
	}
}

func TestCompilers(t *testing.T) {
	params := model.Params{BatchSize: 2}
	for _, c := range DefaultRegistry.Compilers() {
		t.Run(string(c.Name()), func(t *testing.T) {
			l, err := c.Compile(context.Background(), testNetwork(), quant.None, params)
			require.NoError(t, err)

			out, err := l.Run(context.Background(), testInput())
			require.NoError(t, err)
			if diff := cmp.Diff([]float32{3, 7}, out[0].Data); diff != "" {
				t.Errorf("Ausgabe (-want +got):\n%s", diff)
			}

			meta := l.Metadata()
			if meta.Compiler != string(c.Name()) || meta.Params.BatchSize != 2 || meta.Device == "" {
				t.Errorf("unerwartete Metadaten: %+v", meta)
			}
		})
	}
}

func TestCompileUnsupported(t *testing.T) {
	net := testNetwork().As(model.ONNX)
	if _, err := (LoopCompiler{}).Compile(context.Background(), net, quant.None, model.Params{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("erwartet ErrUnsupported, bekommen %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (GonumCompiler{}).Compile(ctx, testNetwork(), quant.None, model.Params{}); !errors.Is(err, context.Canceled) {
		t.Errorf("erwartet context.Canceled, bekommen %v", err)
	}
}

func TestQuantize(t *testing.T) {
	net := testNetwork()
	net.Layers[1].Weight.Data = []float32{0.1, -0.2, 0.3}

	for _, q := range quant.Types() {
		qnet, err := Quantize(net, q)
		require.NoError(t, err)
		for i, v := range qnet.Layers[1].Weight.Data {
			want := net.Layers[1].Weight.Data[i]
			if math.Abs(float64(v-want)) > 5e-3 {
				t.Errorf("%s: Gewicht %d erwartet ~%v, bekommen %v", q, i, want, v)
			}
		}
	}

	// Original bleibt unveraendert
	if net.Layers[1].Weight.Data[0] != 0.1 {
		t.Errorf("Quantize darf das Original nicht veraendern")
	}

	if _, err := Quantize(net, "int4"); !errors.Is(err, quant.ErrUnknownType) {
		t.Errorf("erwartet ErrUnknownType, bekommen %v", err)
	}
}

func TestPrune(t *testing.T) {
	net := &model.Network{Layers: []model.Layer{{
		Weight: tensor.Tensor{Shape: []int{2, 5}, Data: []float32{0.5, -0.1, 2, 0.05, -3, 1, 0.2, -0.3, 4, 0.1}},
	}}}

	out, err := PruneCompressor{Ratio: DefaultPruneRatio}.Compress(context.Background(), net, nil, model.Params{})
	require.NoError(t, err)

	// 3 von 10 Gewichten: 0.05, dann -0.1 und 0.1 (gleicher Betrag, kleinerer Index zuerst)
	want := []float32{0.5, 0, 2, 0, -3, 1, 0.2, -0.3, 4, 0.1}
	if diff := cmp.Diff(want, out.Layers[0].Weight.Data); diff != "" {
		t.Errorf("Gewichte (-want +got):\n%s", diff)
	}
	if net.Layers[0].Weight.Data[1] != -0.1 {
		t.Errorf("Prune darf das Original nicht veraendern")
	}

	if _, err := (PruneCompressor{}).Compress(context.Background(), net, nil, model.Params{}); !errors.Is(err, ErrNotApplicable) {
		t.Errorf("erwartet ErrNotApplicable, bekommen %v", err)
	}
}

func TestFold(t *testing.T) {
	net := testNetwork()
	net.Layers[0].Activation = model.Identity

	folded, err := FoldCompressor{}.Compress(context.Background(), net, nil, model.Params{})
	require.NoError(t, err)
	require.Len(t, folded.Layers, 1)
	if diff := cmp.Diff([]int{1, 2}, folded.Layers[0].Weight.Shape); diff != "" {
		t.Errorf("Shape (-want +got):\n%s", diff)
	}

	in := testInput()
	want, err := net.Run(context.Background(), in)
	require.NoError(t, err)
	got, err := folded.Run(context.Background(), in)
	require.NoError(t, err)
	for i := range want[0].Data {
		if math.Abs(float64(want[0].Data[i]-got[0].Data[i])) > 1e-5 {
			t.Errorf("Ausgabe %d: erwartet %v, bekommen %v", i, want[0].Data[i], got[0].Data[i])
		}
	}

	if _, err := (FoldCompressor{}).Compress(context.Background(), testNetwork(), nil, model.Params{}); !errors.Is(err, ErrNotApplicable) {
		t.Errorf("ReLU-Netz: erwartet ErrNotApplicable, bekommen %v", err)
	}
}

func TestCompiledLearnerIsRegisteredClass(t *testing.T) {
	l, err := ParallelCompiler{Workers: 3}.Compile(context.Background(), testNetwork(), quant.Half, model.Params{})
	require.NoError(t, err)
	meta := l.Metadata()
	if meta.Class != learner.ClassParallel || meta.Workers != 3 || meta.Quantization != quant.Half {
		t.Errorf("unerwartete Metadaten: %+v", meta)
	}
}
