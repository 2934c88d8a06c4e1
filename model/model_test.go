package model

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/speedster/speedster/tensor"
)

func testNetwork() *Network {
	return &Network{
		ModelName: "tiny",
		Layers: []Layer{
			{
				Name:       "fc1",
				Weight:     tensor.Tensor{Shape: []int{3, 2}, Data: []float32{1, 0, 0, 1, 1, 1}},
				Bias:       tensor.Tensor{Shape: []int{3}, Data: []float32{0, 0, -10}},
				Activation: ReLU,
			},
			{
				Name:   "fc2",
				Weight: tensor.Tensor{Shape: []int{1, 3}, Data: []float32{1, 1, 1}},
			},
		},
	}
}

func TestNetworkRun(t *testing.T) {
	n := testNetwork()
	require.NoError(t, n.Validate())

	in := tensor.Tensor{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}
	out, err := n.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	want := tensor.Tensor{Shape: []int{2, 1}, Data: []float32{3, 7}}
	if diff := cmp.Diff(want, out[0]); diff != "" {
		t.Errorf("Run mismatch (-want +got):\n%s", diff)
	}

	if n.Framework() != Native {
		t.Errorf("Framework: erwartet native, bekommen %s", n.Framework())
	}
	if got := n.Dims(); !cmp.Equal(got, []int{2, 3, 1}) {
		t.Errorf("Dims: erwartet [2 3 1], bekommen %v", got)
	}
	if n.NumParams() != 6+3+3 {
		t.Errorf("NumParams: erwartet 12, bekommen %d", n.NumParams())
	}
}

func TestNetworkRunErrors(t *testing.T) {
	n := testNetwork()
	ctx := context.Background()

	if _, err := n.Run(ctx); !errors.Is(err, ErrInputCount) {
		t.Errorf("keine Eingabe: erwartet ErrInputCount, bekommen %v", err)
	}

	bad := tensor.Tensor{Shape: []int{1, 3}, Data: []float32{1, 2, 3}}
	if _, err := n.Run(ctx, bad); !errors.Is(err, ErrInputShape) {
		t.Errorf("falsche Shape: erwartet ErrInputShape, bekommen %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	ok := tensor.Tensor{Shape: []int{1, 2}, Data: []float32{1, 2}}
	if _, err := n.Run(cancelled, ok); !errors.Is(err, context.Canceled) {
		t.Errorf("abgebrochen: erwartet context.Canceled, bekommen %v", err)
	}
}

func TestNetworkValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Network)
	}{
		{"no layers", func(n *Network) { n.Layers = nil }},
		{"1d weight", func(n *Network) { n.Layers[0].Weight = tensor.Tensor{Shape: []int{6}, Data: make([]float32, 6)} }},
		{"bias size", func(n *Network) { n.Layers[0].Bias = tensor.Tensor{Shape: []int{2}, Data: []float32{1, 2}} }},
		{"activation", func(n *Network) { n.Layers[1].Activation = "gelu" }},
		{"chain", func(n *Network) { n.Layers[1].Weight = tensor.Tensor{Shape: []int{1, 2}, Data: []float32{1, 1}} }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			n := testNetwork()
			tt.mutate(n)
			if err := n.Validate(); !errors.Is(err, ErrInvalidNetwork) {
				t.Errorf("erwartet ErrInvalidNetwork, bekommen %v", err)
			}
		})
	}
}

func TestNetworkCloneAndAs(t *testing.T) {
	n := testNetwork()
	c := n.As(PyTorch)
	c.Layers[0].Weight.Data[0] = 42

	if n.Layers[0].Weight.Data[0] != 1 {
		t.Error("Clone teilt Gewichte mit dem Original")
	}
	if c.Framework() != PyTorch || n.Framework() != Native {
		t.Errorf("As: erwartet torch/native, bekommen %s/%s", c.Framework(), n.Framework())
	}
}

func TestNetworkJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.json")
	n := testNetwork()
	require.NoError(t, n.SaveJSON(path))

	loaded, err := LoadNetwork(path)
	require.NoError(t, err)
	if diff := cmp.Diff(n.Layers, loaded.Layers); diff != "" {
		t.Errorf("Layers mismatch (-want +got):\n%s", diff)
	}
	if loaded.Framework() != Native {
		t.Errorf("Framework: erwartet native, bekommen %s", loaded.Framework())
	}
}

func TestExtractParams(t *testing.T) {
	n := testNetwork()
	sample := []tensor.Tensor{{Shape: []int{4, 2}, Data: make([]float32, 8)}}

	p, err := ExtractParams(context.Background(), n, sample, nil)
	require.NoError(t, err)

	if p.BatchSize != 4 {
		t.Errorf("BatchSize: erwartet 4, bekommen %d", p.BatchSize)
	}
	want := []InputInfo{{Shape: []int{2}, DType: "float32"}}
	if diff := cmp.Diff(want, p.InputInfos); diff != "" {
		t.Errorf("InputInfos mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{1}}, p.OutputSizes); diff != "" {
		t.Errorf("OutputSizes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{4, 2}}, p.InputShapes()); diff != "" {
		t.Errorf("InputShapes mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractParamsDynamicInfo(t *testing.T) {
	n := testNetwork()
	sample := []tensor.Tensor{{Shape: []int{1, 2}, Data: []float32{1, 2}}}

	dyn := &DynamicInfo{Inputs: []map[int]string{{0: "batch"}}, Outputs: []map[int]string{{0: "batch"}}}
	p, err := ExtractParams(context.Background(), n, sample, dyn)
	require.NoError(t, err)
	if p.DynamicInfo != dyn {
		t.Error("DynamicInfo wurde nicht uebernommen")
	}

	bad := &DynamicInfo{Inputs: []map[int]string{{5: "seq"}}}
	if _, err := ExtractParams(context.Background(), n, sample, bad); !errors.Is(err, ErrInvalidDynamicInfo) {
		t.Errorf("erwartet ErrInvalidDynamicInfo, bekommen %v", err)
	}
}

func TestParseFramework(t *testing.T) {
	for in, want := range map[string]Framework{"PyTorch": PyTorch, "tf": TensorFlow, "native": Native, " onnx ": ONNX} {
		got, err := ParseFramework(in)
		require.NoError(t, err)
		if got != want {
			t.Errorf("ParseFramework(%q): erwartet %s, bekommen %s", in, want, got)
		}
	}
	if _, err := ParseFramework("jax"); !errors.Is(err, ErrUnknownFramework) {
		t.Errorf("erwartet ErrUnknownFramework, bekommen %v", err)
	}
}
