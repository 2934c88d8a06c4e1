// cmd_optimize.go - Optimize Command (lokal oder ueber den Server)
// Hauptfunktionen: OptimizeHandler, optimizeRequest, optimizeRemote
package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/speedster/speedster/api"
	"github.com/speedster/speedster/fetch"
	"github.com/speedster/speedster/speedster"
)

// optimizeRequest - Baut den Request aus Argumenten und Flags.
// Nur explizit gesetzte Flags werden uebernommen, damit --config greift.
func optimizeRequest(cmd *cobra.Command, args []string) (*api.OptimizeRequest, error) {
	flags := cmd.Flags()
	req := &api.OptimizeRequest{Model: args[0], Data: args[1]}

	if flags.Changed("metric-drop-ths") {
		ths, err := flags.GetFloat64("metric-drop-ths")
		if err != nil {
			return nil, err
		}
		req.MetricDropThs = &ths
	}
	if flags.Changed("store-latencies") {
		keep, err := flags.GetBool("store-latencies")
		if err != nil {
			return nil, err
		}
		req.StoreLatencies = &keep
	}

	var err error
	if req.Metric, err = flags.GetString("metric"); err != nil {
		return nil, err
	}
	if req.OptimizationTime, err = flags.GetString("optimization-time"); err != nil {
		return nil, err
	}
	if req.IgnoreCompilers, err = flags.GetStringSlice("ignore-compilers"); err != nil {
		return nil, err
	}
	if req.IgnoreCompressors, err = flags.GetStringSlice("ignore-compressors"); err != nil {
		return nil, err
	}
	if req.Config, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if req.Output, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	return req, nil
}

// OptimizeHandler - Fuehrt die Optimierung aus und zeigt das Ergebnis an
func OptimizeHandler(cmd *cobra.Command, args []string) error {
	req, err := optimizeRequest(cmd, args)
	if err != nil {
		return err
	}

	f, _ := cmd.Flags().GetString("format")
	if err := checkFormat(f); err != nil {
		return err
	}

	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		return optimizeRemote(cmd, req, f)
	}

	m, err := fetch.Model(req.Model)
	if err != nil {
		return err
	}
	d, err := fetch.Data(req.Data)
	if err != nil {
		return err
	}

	sp := speedster.New()
	defer sp.Close()
	if err := sp.Execute(cmd.Context(), m, d, req.Options()...); err != nil {
		return err
	}

	if err := renderResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), f, sp.Summary(), sp.Candidates(), sp.Report()); err != nil {
		return err
	}

	if l := sp.OptimalModel(); l != nil && req.Output != "" {
		if err := l.Save(req.Output); err != nil {
			return fmt.Errorf("save optimized model: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Optimized model saved to %s\n", req.Output)
	}

	return nil
}

// optimizeRemote - Schickt den Lauf an den Server. Pfade werden absolut
// gemacht, da der Server sie relativ zu seinem eigenen Verzeichnis aufloest.
func optimizeRemote(cmd *cobra.Command, req *api.OptimizeRequest, f string) error {
	if f != formatTable && f != formatJSON {
		return fmt.Errorf("%w %q with --remote (use table or json)", errUnknownFormat, f)
	}

	for _, p := range []*string{&req.Model, &req.Data, &req.Config, &req.Output} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return err
		}
		*p = abs
	}

	if err := checkServerHeartbeat(cmd, nil); err != nil {
		return err
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Optimize(cmd.Context(), req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if f == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if err := renderResult(w, cmd.ErrOrStderr(), formatTable, resp.Summary, resp.Candidates, nil); err != nil {
		return err
	}
	if resp.Output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Optimized model saved to %s\n", resp.Output)
	}
	return nil
}
