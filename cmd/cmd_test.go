package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/feedback"
	"github.com/speedster/speedster/fetch"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/store"
	"github.com/speedster/speedster/tensor"
)

func testNetwork() *model.Network {
	return &model.Network{
		ModelName: "tiny",
		Layers: []model.Layer{{
			Name:       "fc",
			Weight:     tensor.Tensor{Shape: []int{1, 2}, Data: []float32{1, 2}},
			Activation: model.Identity,
		}},
	}
}

// setupEnv isoliert Home, Temp-Verzeichnis und Benchmark-Einstellungen.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SPEEDSTER_HOME", filepath.Join(dir, "home"))
	t.Setenv("SPEEDSTER_TMPDIR", dir)
	t.Setenv("SPEEDSTER_WARMUP", "0")
	t.Setenv("SPEEDSTER_ITERATIONS", "2")
	t.Setenv("SPEEDSTER_DEVICE", "cpu")
	t.Setenv("SPEEDSTER_NO_DB", "1")
	return dir
}

func writeInputs(t *testing.T, dir string) (modelPath, dataPath string) {
	t.Helper()
	modelPath = filepath.Join(dir, "tiny.json")
	require.NoError(t, testNetwork().SaveJSON(modelPath))

	samples := make([]data.Sample, 5)
	for i := range samples {
		samples[i] = data.Sample{Inputs: []tensor.Tensor{{Shape: []int{1, 2}, Data: []float32{float32(i), 1}}}}
	}
	dataPath = filepath.Join(dir, "data.json")
	require.NoError(t, fetch.WriteData(dataPath, samples))
	return modelPath, dataPath
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cli := NewCLI()
	cli.SetOut(&stdout)
	cli.SetErr(&stderr)
	cli.SetArgs(args)
	err := cli.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestOptimizeRequest(t *testing.T) {
	cases := map[string]struct {
		args           []string
		ths            *float64
		keep           *bool
		metric, output string
		compilers      []string
	}{
		"defaults": {},
		"flags": {
			args:      []string{"--metric-drop-ths", "0.1", "--metric", "accuracy", "--ignore-compilers", "gonum,loop", "--store-latencies", "-o", "out"},
			ths:       ptr(0.1),
			keep:      ptr(true),
			metric:    "accuracy",
			output:    "out",
			compilers: []string{"gonum", "loop"},
		},
		"explicit zero": {
			args: []string{"--metric-drop-ths", "0", "--store-latencies=false"},
			ths:  ptr(0.0),
			keep: ptr(false),
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := newOptimizeCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			req, err := optimizeRequest(cmd, []string{"m.json", "d.json"})
			require.NoError(t, err)

			if req.Model != "m.json" || req.Data != "d.json" {
				t.Errorf("Pfade: bekommen %q, %q", req.Model, req.Data)
			}
			if diff := cmp.Diff(tt.ths, req.MetricDropThs); diff != "" {
				t.Errorf("MetricDropThs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.keep, req.StoreLatencies); diff != "" {
				t.Errorf("StoreLatencies (-want +got):\n%s", diff)
			}
			if req.Metric != tt.metric || req.Output != tt.output {
				t.Errorf("Metric/Output: bekommen %q, %q", req.Metric, req.Output)
			}
			if len(tt.compilers) > 0 {
				if diff := cmp.Diff(tt.compilers, req.IgnoreCompilers); diff != "" {
					t.Errorf("IgnoreCompilers (-want +got):\n%s", diff)
				}
			} else if len(req.IgnoreCompilers) != 0 {
				t.Errorf("IgnoreCompilers: erwartet leer, bekommen %v", req.IgnoreCompilers)
			}
		})
	}
}

func TestOptimizeCommand(t *testing.T) {
	dir := setupEnv(t)
	modelPath, dataPath := writeInputs(t, dir)
	out := filepath.Join(dir, "optimized")

	stdout, stderr, err := runCLI(t, "optimize", modelPath, dataPath, "--format", "json", "-o", out)
	require.NoError(t, err)

	var report benchmark.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	if report.Model != "tiny" || len(report.Candidates) == 0 {
		t.Errorf("unerwarteter Report: %+v", report)
	}
	if !learner.IsSaved(out) {
		t.Errorf("optimiertes Modell wurde nicht gespeichert")
	}
	if !strings.Contains(stderr, "saved to "+out) {
		t.Errorf("stderr enthaelt keinen Speicher-Hinweis: %q", stderr)
	}
}

func TestOptimizeCommandTable(t *testing.T) {
	dir := setupEnv(t)
	modelPath, dataPath := writeInputs(t, dir)

	stdout, _, err := runCLI(t, "optimize", modelPath, dataPath)
	require.NoError(t, err)

	for _, want := range []string{"Estimated speedup", "PIPELINE", "native"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Ausgabe enthaelt %q nicht:\n%s", want, stdout)
		}
	}
}

func TestOptimizeCommandErrors(t *testing.T) {
	dir := setupEnv(t)
	modelPath, dataPath := writeInputs(t, dir)

	cases := map[string]struct {
		args []string
		want error
	}{
		"format":        {[]string{"optimize", modelPath, dataPath, "--format", "xml"}, errUnknownFormat},
		"remote format": {[]string{"optimize", modelPath, dataPath, "--remote", "--format", "csv"}, errUnknownFormat},
		"missing model": {[]string{"optimize", filepath.Join(dir, "missing.json"), dataPath}, fetch.ErrNotFound},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("erwartet %v, bekommen %v", tt.want, err)
			}
		})
	}

	if _, _, err := runCLI(t, "optimize", modelPath); err == nil {
		t.Errorf("fehlendes Argument sollte fehlschlagen")
	}
}

func TestRunCommand(t *testing.T) {
	dir := setupEnv(t)
	_, dataPath := writeInputs(t, dir)

	saved := filepath.Join(dir, "saved")
	require.NoError(t, learner.NewLoop(testNetwork(), learner.Metadata{}).Save(saved))

	stdout, _, err := runCLI(t, "run", saved, dataPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 5)

	var got sampleOutput
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &got))
	if got.Sample != 3 {
		t.Errorf("Sample: erwartet 3, bekommen %d", got.Sample)
	}
	// 3*1 + 1*2
	if diff := cmp.Diff([]float32{5}, got.Outputs[0].Data); diff != "" {
		t.Errorf("Ausgabe (-want +got):\n%s", diff)
	}
}

func TestBenchCommand(t *testing.T) {
	dir := setupEnv(t)
	modelPath, dataPath := writeInputs(t, dir)

	stdout, _, err := runCLI(t, "bench", modelPath, dataPath, "--iterations", "3")
	require.NoError(t, err)

	for _, want := range []string{"tiny", "Latency (avg)", "Throughput", "cpu"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Ausgabe enthaelt %q nicht:\n%s", want, stdout)
		}
	}
}

func TestRunsCommand(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	st, err := store.Open(store.DefaultPath())
	require.NoError(t, err)
	require.NoError(t, st.SaveRun(ctx, feedback.Run{
		RunInfo: feedback.RunInfo{
			ID:      "run-1",
			Model:   "tiny",
			Device:  "cpu",
			Metric:  "numeric_precision",
			Started: time.Now().Add(-2 * time.Hour),
		},
		Finished: time.Now(),
		Entries: []feedback.Entry{
			{Original: true, Pipeline: "native", Latency: 0.01},
			{Pipeline: "native", Compiler: "loop", Quantization: "none", Latency: 0.004, Accepted: true, Selected: true},
			{Pipeline: "native", Compiler: "gonum", Quantization: "int8", Error: "metric drop too high"},
		},
	}))
	require.NoError(t, st.Close())

	stdout, _, err := runCLI(t, "runs")
	require.NoError(t, err)
	for _, want := range []string{"run-1", "tiny", "1/2", "2 hours ago"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Liste enthaelt %q nicht:\n%s", want, stdout)
		}
	}

	stdout, _, err = runCLI(t, "runs", "run-1")
	require.NoError(t, err)
	for _, want := range []string{"original", "selected", "rejected", "metric drop too high"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Lauf enthaelt %q nicht:\n%s", want, stdout)
		}
	}

	_, _, err = runCLI(t, "runs", "run-1", "--rm")
	require.NoError(t, err)

	_, _, err = runCLI(t, "runs", "run-1")
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("erwartet ErrRunNotFound, bekommen %v", err)
	}
}

func TestEnvCommand(t *testing.T) {
	setupEnv(t)

	stdout, _, err := runCLI(t, "env")
	require.NoError(t, err)
	for _, want := range []string{"SPEEDSTER_HOST", "SPEEDSTER_ITERATIONS", "Timed runs"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Ausgabe enthaelt %q nicht:\n%s", want, stdout)
		}
	}
}

func ptr[T any](v T) *T { return &v }
