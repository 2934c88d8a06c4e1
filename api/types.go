// Package api - Request- und Response-Typen der Speedster HTTP-API
// Enthaelt: StatusError, OptimizeRequest, OptimizeResponse, ListRunsResponse
package api

import (
	"fmt"

	"github.com/speedster/speedster/optimize"
	"github.com/speedster/speedster/speedster"
	"github.com/speedster/speedster/store"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the speedster server logs for details"
	}
}

// OptimizeRequest startet einen Optimierungs-Lauf auf dem Server.
// Model und Data sind Pfade auf dem Server-Host.
type OptimizeRequest struct {
	Model string `json:"model"`
	Data  string `json:"data"`

	MetricDropThs     *float64 `json:"metric_drop_ths,omitempty"`
	Metric            string   `json:"metric,omitempty"`
	OptimizationTime  string   `json:"optimization_time,omitempty"`
	IgnoreCompilers   []string `json:"ignore_compilers,omitempty"`
	IgnoreCompressors []string `json:"ignore_compressors,omitempty"`
	StoreLatencies    *bool    `json:"store_latencies,omitempty"`

	// Config ist eine YAML-Datei auf dem Server; explizite Felder haben Vorrang.
	Config string `json:"config,omitempty"`

	// Output speichert den optimalen Learner in diesem Verzeichnis.
	Output string `json:"output,omitempty"`
}

// Options wandelt den Request in Execute-Optionen um.
func (r *OptimizeRequest) Options() []speedster.Option {
	var opts []speedster.Option
	if r.MetricDropThs != nil {
		opts = append(opts, speedster.WithMetricDropThs(*r.MetricDropThs))
	}
	if r.Metric != "" {
		opts = append(opts, speedster.WithMetric(r.Metric))
	}
	if r.OptimizationTime != "" {
		opts = append(opts, speedster.WithOptimizationTime(r.OptimizationTime))
	}
	if len(r.IgnoreCompilers) > 0 {
		opts = append(opts, speedster.WithIgnoreCompilers(r.IgnoreCompilers...))
	}
	if len(r.IgnoreCompressors) > 0 {
		opts = append(opts, speedster.WithIgnoreCompressors(r.IgnoreCompressors...))
	}
	if r.StoreLatencies != nil {
		opts = append(opts, speedster.WithStoreLatencies(*r.StoreLatencies))
	}
	if r.Config != "" {
		opts = append(opts, speedster.WithConfigFile(r.Config))
	}
	return opts
}

// OptimizeResponse ist das Ergebnis eines Laufs. Ohne akzeptierten Kandidaten
// ist Summary nil.
type OptimizeResponse struct {
	RunID      string               `json:"run_id"`
	Summary    *speedster.Summary   `json:"summary,omitempty"`
	Candidates []optimize.Candidate `json:"candidates"`
	Output     string               `json:"output,omitempty"`
}

// ListRunsResponse listet gespeicherte Laeufe, neueste zuerst.
type ListRunsResponse struct {
	Runs []store.Summary `json:"runs"`
}
