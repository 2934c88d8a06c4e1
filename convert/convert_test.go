package convert

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/require"

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
				Weight:     tensor.Tensor{Shape: []int{3, 2}, Data: []float32{0.5, -0.25, 1, 2, -1.5, 0.75}},
				Bias:       tensor.Tensor{Shape: []int{3}, Data: []float32{0.1, 0, -0.2}},
				Activation: model.Tanh,
			},
			{
				Name:   "fc2",
				Weight: tensor.Tensor{Shape: []int{2, 3}, Data: []float32{1, -1, 0.5, 0.25, 0.125, 2}},
			},
		},
	}
}

func TestSafetensorsRoundTrip(t *testing.T) {
	tolerances := map[quant.Type]float64{
		quant.None:     0,
		quant.Half:     1e-3,
		quant.BFloat16: 1e-2,
		quant.Int8:     2.0 / 127 * 2,
	}

	for typ, tol := range tolerances {
		t.Run(typ.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.safetensors")
			net := testNetwork()
			require.NoError(t, WriteSafetensors(path, net, typ))

			got, err := ReadSafetensors(path)
			require.NoError(t, err)

			if got.ModelName != "tiny" || got.Framework() != model.Safetensors {
				t.Errorf("Metadaten: bekommen name=%q framework=%s", got.ModelName, got.Framework())
			}
			require.Len(t, got.Layers, 2)
			for i, l := range got.Layers {
				want := net.Layers[i]
				if l.Name != want.Name || l.Activation != cmpOr(want.Activation) {
					t.Errorf("Layer %d: erwartet %s/%s, bekommen %s/%s", i, want.Name, want.Activation, l.Name, l.Activation)
				}
				for j := range want.Weight.Data {
					if d := math.Abs(float64(l.Weight.Data[j] - want.Weight.Data[j])); d > tol {
						t.Errorf("Layer %d weight[%d]: diff %g > %g", i, j, d, tol)
					}
				}
				if l.HasBias() != want.HasBias() {
					t.Errorf("Layer %d: HasBias erwartet %v", i, want.HasBias())
				}
			}

			entries, _, err := ReadTensors(path)
			require.NoError(t, err)
			for _, e := range entries {
				if e.Type != typ {
					t.Errorf("%s: dtype erwartet %s, bekommen %s", e.Name, typ, e.Type)
				}
			}
		})
	}
}

func cmpOr(a model.Activation) model.Activation {
	if a == "" {
		return model.Identity
	}
	return a
}

func TestReadTensorsInvalid(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.safetensors")
	require.NoError(t, os.WriteFile(short, []byte{1, 2}, 0o644))
	if _, _, err := ReadTensors(short); !errors.Is(err, ErrInvalidSafetensors) {
		t.Errorf("kurze Datei: erwartet ErrInvalidSafetensors, bekommen %v", err)
	}

	huge := filepath.Join(dir, "huge.safetensors")
	require.NoError(t, os.WriteFile(huge, []byte{0xff, 0, 0, 0, 0, 0, 0, 0, '{', '}'}, 0o644))
	if _, _, err := ReadTensors(huge); !errors.Is(err, ErrInvalidSafetensors) {
		t.Errorf("Header zu lang: erwartet ErrInvalidSafetensors, bekommen %v", err)
	}

	// 8+n laeuft ueber
	overflow := filepath.Join(dir, "overflow.safetensors")
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b, 1<<63-4)
	require.NoError(t, os.WriteFile(overflow, b, 0o644))
	if _, _, err := ReadTensors(overflow); !errors.Is(err, ErrInvalidSafetensors) {
		t.Errorf("Header-Ueberlauf: erwartet ErrInvalidSafetensors, bekommen %v", err)
	}
}

func TestNetworkFromEntriesWithoutMetadata(t *testing.T) {
	w := func(out, in int) tensor.Tensor { return tensor.Zeros(out, in) }
	entries := []Entry{
		{Name: "net.10.weight", Tensor: w(1, 4)},
		{Name: "net.2.weight", Tensor: w(4, 3)},
		{Name: "net.2.bias", Tensor: tensor.Zeros(4)},
		{Name: "net.0.weight", Tensor: w(3, 2)},
	}

	net, err := NetworkFromEntries(entries, nil, model.Safetensors)
	require.NoError(t, err)

	var names []string
	var acts []model.Activation
	for _, l := range net.Layers {
		names = append(names, l.Name)
		acts = append(acts, l.Activation)
	}
	if diff := cmp.Diff([]string{"net.0", "net.2", "net.10"}, names); diff != "" {
		t.Errorf("Reihenfolge (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.Activation{model.ReLU, model.ReLU, model.Identity}, acts); diff != "" {
		t.Errorf("Aktivierungen (-want +got):\n%s", diff)
	}
}

func TestNaturalCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"fc2", "fc10", -1},
		{"fc10", "fc2", 1},
		{"a", "b", -1},
		{"layer1", "layer1", 0},
		{"l", "l1", -1},
	}
	for _, tt := range cases {
		got := naturalCompare(tt.a, tt.b)
		if (got < 0) != (tt.want < 0) || (got > 0) != (tt.want > 0) {
			t.Errorf("naturalCompare(%q, %q): erwartet %d, bekommen %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestStateDict(t *testing.T) {
	sd := types.NewOrderedDict()
	sd.Set("fc.weight", &pytorch.Tensor{Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4, 5, 6}}, Size: []int{3, 2}})
	sd.Set("fc.bias", &pytorch.Tensor{Source: &pytorch.FloatStorage{Data: []float32{0, 1, 2}}, Size: []int{3}})
	sd.Set("out.weight", &pytorch.Tensor{Source: &pytorch.HalfStorage{Data: []float32{1, 1, 1}}, Size: []int{1, 3}})

	root := types.NewDict()
	root.Set("epoch", 3)
	root.Set("state_dict", sd)

	keys, tensors, err := stateDict(root)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"fc.weight", "fc.bias", "out.weight"}, keys); diff != "" {
		t.Errorf("Keys (-want +got):\n%s", diff)
	}
	if got := tensors["fc.weight"]; !cmp.Equal(got.Shape, []int{3, 2}) || got.Data[5] != 6 {
		t.Errorf("fc.weight: bekommen %+v", got)
	}
}

func TestTorchTensorOffset(t *testing.T) {
	pt := &pytorch.Tensor{
		Source:        &pytorch.FloatStorage{Data: []float32{9, 9, 1, 2}},
		StorageOffset: 2,
		Size:          []int{2},
	}
	got, err := torchTensor(pt)
	require.NoError(t, err)
	if diff := cmp.Diff([]float32{1, 2}, got.Data); diff != "" {
		t.Errorf("Daten (-want +got):\n%s", diff)
	}

	pt.StorageOffset = 3
	if _, err := torchTensor(pt); err == nil {
		t.Error("erwartet Fehler bei zu kleinem Storage")
	}
}

func TestBuiltinConvert(t *testing.T) {
	c, err := For(model.PyTorch)
	require.NoError(t, err)

	net := testNetwork().As(model.PyTorch)
	dir := t.TempDir()
	reps, err := c.Convert(context.Background(), net, model.Params{}, dir)
	require.NoError(t, err)
	require.Len(t, reps, 2)

	if reps[0].Framework() != model.Native || reps[1].Framework() != model.Safetensors {
		t.Errorf("Frameworks: bekommen %s, %s", reps[0].Framework(), reps[1].Framework())
	}
	if _, err := os.Stat(filepath.Join(dir, "model.safetensors")); err != nil {
		t.Errorf("model.safetensors fehlt: %v", err)
	}

	in := tensor.Tensor{Shape: []int{1, 2}, Data: []float32{0.3, -0.7}}
	want, err := net.Run(context.Background(), in)
	require.NoError(t, err)
	for _, r := range reps {
		got, err := r.Run(context.Background(), in)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: Ausgabe (-want +got):\n%s", r.Framework(), diff)
		}
	}
}

func TestForUnsupported(t *testing.T) {
	for _, f := range []model.Framework{model.TensorFlow, model.ONNX} {
		if _, err := For(f); !errors.Is(err, ErrUnsupportedFramework) {
			t.Errorf("For(%s): erwartet ErrUnsupportedFramework, bekommen %v", f, err)
		}
	}
}
