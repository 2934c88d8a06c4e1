package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/speedster/speedster/feedback"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", DBFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, started time.Time) feedback.Run {
	ths := 0.05
	return feedback.Run{
		RunInfo: feedback.RunInfo{
			ID:               id,
			Model:            "tiny",
			Framework:        "native",
			Device:           "cpu",
			Metric:           "numeric_precision",
			Threshold:        &ths,
			OptimizationTime: "constrained",
			BatchSize:        2,
			Version:          "0.0.0",
			Started:          started,
		},
		Finished: started.Add(time.Second),
		Entries: []feedback.Entry{
			{Original: true, Pipeline: "native", Latency: 0.01},
			{Pipeline: "native", Compiler: "loop", Quantization: "none", Latency: 0.004, Accepted: true, Selected: true, Size: 100},
			{Pipeline: "native", Compiler: "gonum", Quantization: "int8", Latency: 0.006, MetricDrop: 0.2, Error: "metric drop too high"},
			{Pipeline: "safetensors", Compiler: "parallel", Quantization: "none", Latency: 0.005, Accepted: true},
		},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("a", started)))

	run, err := s.Run(ctx, "a")
	require.NoError(t, err)
	if run.Model != "tiny" || run.BatchSize != 2 || run.Threshold == nil || *run.Threshold != 0.05 {
		t.Errorf("unerwarteter Lauf: %+v", run.RunInfo)
	}
	if !run.Started.Equal(started) || !run.Finished.Equal(started.Add(time.Second)) {
		t.Errorf("Zeiten: bekommen %v / %v", run.Started, run.Finished)
	}
	require.Len(t, run.Entries, 4)
	if !run.Entries[0].Original || run.Entries[1].Compiler != "loop" || !run.Entries[1].Selected {
		t.Errorf("unerwartete Eintraege: %+v", run.Entries)
	}
	if run.Entries[2].Error != "metric drop too high" {
		t.Errorf("Fehler: bekommen %q", run.Entries[2].Error)
	}
}

func TestSaveRunReplaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	run := testRun("a", time.Now().UTC())
	require.NoError(t, s.SaveRun(ctx, run))

	run.Entries = run.Entries[:1]
	run.Threshold = nil
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.Run(ctx, "a")
	require.NoError(t, err)
	if len(got.Entries) != 1 || got.Threshold != nil {
		t.Errorf("Lauf sollte ersetzt sein: %+v", got)
	}
}

func TestRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("old", base)))
	require.NoError(t, s.SaveRun(ctx, testRun("new", base.Add(time.Hour))))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	if runs[0].ID != "new" || runs[1].ID != "old" {
		t.Errorf("Reihenfolge: bekommen %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Attempts != 3 || runs[0].Accepted != 2 || runs[0].BestLatency != 0.004 {
		t.Errorf("Zusammenfassung: %+v", runs[0])
	}

	limited, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestRunNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Run(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("erwartet ErrRunNotFound, bekommen %v", err)
	}
	if err := s.DeleteRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("erwartet ErrRunNotFound, bekommen %v", err)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, testRun("a", time.Now().UTC())))
	require.NoError(t, s.DeleteRun(ctx, "a"))

	var n int
	require.NoError(t, s.db.conn.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&n))
	if n != 0 {
		t.Errorf("Versuche sollten geloescht sein, bekommen %d", n)
	}
}

func TestSchemaVersion(t *testing.T) {
	s := testStore(t)
	v, err := s.db.getSchemaVersion()
	require.NoError(t, err)
	if v != currentSchemaVersion {
		t.Errorf("erwartet %d, bekommen %d", currentSchemaVersion, v)
	}
}

func TestStoreIsSink(t *testing.T) {
	var _ feedback.Sink = (*Store)(nil)
}
