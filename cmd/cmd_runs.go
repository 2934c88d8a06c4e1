// cmd_runs.go - Telemetrie-Commands
// Hauptfunktionen: RunsHandler, listRuns, showRun
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/speedster/speedster/format"
	"github.com/speedster/speedster/store"
)

// RunsHandler - Listet Laeufe aus der Telemetrie-Datenbank, zeigt einen
// einzelnen Lauf an oder loescht ihn (--rm)
func RunsHandler(cmd *cobra.Command, args []string) error {
	st, err := store.Open(store.DefaultPath())
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 0 {
		limit, _ := cmd.Flags().GetInt("limit")
		return listRuns(cmd, st, limit)
	}

	if rm, _ := cmd.Flags().GetBool("rm"); rm {
		if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "deleted '%s'\n", args[0])
		return nil
	}

	return showRun(cmd, st, args[0])
}

func listRuns(cmd *cobra.Command, st *store.Store, limit int) error {
	runs, err := st.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs {
		best := "-"
		if r.Accepted > 0 {
			best = format.HumanLatency(r.BestLatency)
		}
		data = append(data, []string{
			r.ID,
			truncate(r.Model),
			r.Device,
			r.Metric,
			fmt.Sprintf("%d/%d", r.Accepted, r.Attempts),
			best,
			format.HumanTime(r.Started, "Never"),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"ID", "MODEL", "DEVICE", "METRIC", "ACCEPTED", "BEST LATENCY", "STARTED"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

func showRun(cmd *cobra.Command, st *store.Store, id string) error {
	run, err := st.Run(cmd.Context(), id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s: %s (%s) on %s, metric %s\n\n", run.ID, run.Model, run.Framework, run.Device, run.Metric)

	var data [][]string
	for _, e := range run.Entries {
		status := "rejected"
		switch {
		case e.Original:
			status = "original"
		case e.Selected:
			status = "selected"
		case e.Accepted:
			status = "accepted"
		}

		latency := "-"
		if e.Latency > 0 {
			latency = format.HumanLatency(e.Latency)
		}

		data = append(data, []string{
			status,
			e.Pipeline,
			orDash(e.Compiler),
			orDash(e.Compressor),
			orDash(e.Quantization),
			latency,
			strconv.FormatFloat(e.MetricDrop, 'g', 4, 64),
			orDash(e.Error),
		})
	}

	table := newTable(w, []string{"STATUS", "PIPELINE", "COMPILER", "COMPRESSOR", "QUANTIZATION", "LATENCY", "METRIC DROP", "ERROR"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
