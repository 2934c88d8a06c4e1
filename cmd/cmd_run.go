// cmd_run.go - Run und Bench Commands
// Hauptfunktionen: RunHandler, BenchHandler
package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/device"
	"github.com/speedster/speedster/fetch"
	"github.com/speedster/speedster/format"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/tensor"
)

// sampleOutput - Eine Zeile der run-Ausgabe (JSON Lines)
type sampleOutput struct {
	Sample  int             `json:"sample"`
	Outputs []tensor.Tensor `json:"outputs"`
}

// RunHandler - Laedt einen gespeicherten Learner und gibt seine Ausgaben
// pro Datenpunkt als JSON Lines aus
func RunHandler(cmd *cobra.Command, args []string) error {
	l, err := learner.Load(args[0])
	if err != nil {
		return err
	}

	d, err := fetch.Data(args[1])
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	enc := json.NewEncoder(cmd.OutOrStdout())

	for i, s := range d.All() {
		start := time.Now()
		outputs, err := l.Run(cmd.Context(), s.Inputs...)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "sample %d: %s\n", i, format.HumanLatency(time.Since(start).Seconds()))
		}

		if err := enc.Encode(sampleOutput{Sample: i, Outputs: outputs}); err != nil {
			return err
		}
	}

	return nil
}

// BenchHandler - Misst die Latenz eines Modells auf allen Datenpunkten
func BenchHandler(cmd *cobra.Command, args []string) error {
	m, err := fetch.Model(args[0])
	if err != nil {
		return err
	}

	d, err := fetch.Data(args[1])
	if err != nil {
		return err
	}

	cfg := benchmark.DefaultConfig()
	if n, _ := cmd.Flags().GetInt("warmup"); n >= 0 {
		cfg.Warmup = n
	}
	if n, _ := cmd.Flags().GetInt("iterations"); n > 0 {
		cfg.Iterations = n
	}

	baseline, err := benchmark.MeasureBaseline(cmd.Context(), m, d, cfg)
	if err != nil {
		return err
	}

	params, err := model.ExtractParams(cmd.Context(), m, d.Get(0).Inputs, nil)
	if err != nil {
		return err
	}

	name := args[0]
	if n, ok := m.(model.Named); ok {
		name = n.Name()
	}

	table := newTable(cmd.OutOrStdout(), []string{"", "RESULT"})
	table.AppendBulk([][]string{
		{"Model", truncate(name)},
		{"Framework", string(baseline.Framework)},
		{"Device", device.Detect().String()},
		{"Samples", fmt.Sprint(d.Len())},
		{"Batch size", fmt.Sprint(params.BatchSize)},
		{"Iterations", fmt.Sprint(baseline.Stats.Iterations)},
		{"Latency (avg)", format.HumanLatency(baseline.Latency)},
		{"Latency (min)", format.HumanLatency(baseline.Stats.Min.Seconds())},
		{"Latency (p95)", format.HumanLatency(baseline.Stats.P95.Seconds())},
		{"Throughput", fmt.Sprintf("%.2f data/second", format.Throughput(baseline.Latency, params.BatchSize))},
	})
	table.Render()

	return nil
}
