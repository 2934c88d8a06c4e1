// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newOptimizeCmd, newRunCmd, newBenchCmd, newRunsCmd, newServeCmd, newEnvCmd
package cmd

import (
	"github.com/spf13/cobra"
)

// newOptimizeCmd - Erstellt den optimize Command
func newOptimizeCmd() *cobra.Command {
	optimizeCmd := &cobra.Command{
		Use:   "optimize MODEL DATA",
		Short: "Optimize a model for inference on this machine",
		Args:  cobra.ExactArgs(2),
		RunE:  OptimizeHandler,
	}

	optimizeCmd.Flags().Float64("metric-drop-ths", 0, "Maximum accepted metric drop (enables half, bfloat16 and int8)")
	optimizeCmd.Flags().String("metric", "", "Metric for the drop check (numeric_precision, accuracy)")
	optimizeCmd.Flags().String("optimization-time", "", "Optimization time (constrained, unconstrained)")
	optimizeCmd.Flags().StringSlice("ignore-compilers", nil, "Compilers to skip")
	optimizeCmd.Flags().StringSlice("ignore-compressors", nil, "Compressors to skip")
	optimizeCmd.Flags().Bool("store-latencies", false, "Write latency telemetry to SPEEDSTER_HOME")
	optimizeCmd.Flags().String("config", "", "YAML file with optimization options")
	optimizeCmd.Flags().StringP("output", "o", "", "Directory for the optimized model")
	optimizeCmd.Flags().String("format", "table", "Result format (table, markdown, json, csv)")
	optimizeCmd.Flags().Bool("remote", false, "Run the optimization on the speedster server")

	return optimizeCmd
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run DIR DATA",
		Short: "Run a saved optimized model on a dataset",
		Args:  cobra.ExactArgs(2),
		RunE:  RunHandler,
	}

	runCmd.Flags().Bool("verbose", false, "Show latency per sample")

	return runCmd
}

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench MODEL DATA",
		Short: "Benchmark a model without optimizing it",
		Args:  cobra.ExactArgs(2),
		RunE:  BenchHandler,
	}

	benchCmd.Flags().Int("warmup", -1, "Warmup runs (default SPEEDSTER_WARMUP)")
	benchCmd.Flags().Int("iterations", -1, "Timed runs (default SPEEDSTER_ITERATIONS)")

	return benchCmd
}

// newRunsCmd - Erstellt den runs Command
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:     "runs [ID]",
		Aliases: []string{"ls"},
		Short:   "List recorded optimization runs",
		Args:    cobra.MaximumNArgs(1),
		RunE:    RunsHandler,
	}

	runsCmd.Flags().Int("limit", 0, "Show at most this many runs")
	runsCmd.Flags().Bool("rm", false, "Delete the given run")

	return runsCmd
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the speedster server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the environment configuration",
		Args:  cobra.ExactArgs(0),
		RunE:  EnvHandler,
	}
}
