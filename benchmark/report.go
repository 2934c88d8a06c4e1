// MODUL: report
// ZWECK: Report-Generierung fuer Optimierungs-Ergebnisse (JSON, Markdown, CSV)
// INPUT: Baseline-Zeile und Kandidaten-Zeilen
// OUTPUT: Formatierte Reports mit Latenz, Durchsatz, Groesse, Metric-Drop und Speedup
// NEBENEFFEKTE: Dateisystem-Schreibzugriff bei Export-Funktionen
// ABHAENGIGKEITEN: encoding/json, encoding/csv, format, metric
// HINWEISE: CSV-Export verwendet Semikolon als Trennzeichen fuer DE-Kompatibilitaet

package benchmark

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/speedster/speedster/format"
	"github.com/speedster/speedster/metric"
)

// Row ist eine Zeile im Report: das Original-Modell oder ein Kandidat.
type Row struct {
	Name         string  `json:"name"`
	Framework    string  `json:"framework"`
	Compiler     string  `json:"compiler,omitempty"`
	Compressor   string  `json:"compressor,omitempty"`
	Quantization string  `json:"quantization,omitempty"`
	Latency      float64 `json:"latency"`    // Sekunden pro Batch
	Throughput   float64 `json:"throughput"` // Datenpunkte pro Sekunde
	Size         int64   `json:"size"`
	MetricDrop   float64 `json:"metric_drop"`
	Speedup      float64 `json:"speedup"`
	Selected     bool    `json:"selected,omitempty"`
}

// SystemInfo enthaelt Systeminformationen zum Lauf.
type SystemInfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	CPUCores int    `json:"cpu_cores"`
	Device   string `json:"device"`
}

// Report enthaelt die Ergebnisse eines Optimierungs-Laufs.
type Report struct {
	Timestamp  time.Time  `json:"timestamp"`
	Model      string     `json:"model"`
	Metric     string     `json:"metric"`
	SystemInfo SystemInfo `json:"system_info"`
	Original   Row        `json:"original"`
	Candidates []Row      `json:"candidates"`
}

// NewReport erstellt einen Report. Speedup wird relativ zur Original-Latenz
// berechnet, falls er nicht gesetzt ist.
func NewReport(modelName, device, metricName string, original Row, candidates []Row) *Report {
	r := &Report{
		Timestamp: time.Now(),
		Model:     modelName,
		Metric:    metricName,
		SystemInfo: SystemInfo{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			CPUCores: runtime.NumCPU(),
			Device:   device,
		},
		Original:   original,
		Candidates: candidates,
	}
	for i := range r.Candidates {
		c := &r.Candidates[i]
		if c.Speedup == 0 && c.Latency > 0 {
			c.Speedup = original.Latency / c.Latency
		}
	}
	return r
}

// ============================================================================
// JSON
// ============================================================================

// ExportJSON exportiert den Report als JSON-Datei.
func (r *Report) ExportJSON(path string) error {
	return export(path, r.WriteJSON)
}

// WriteJSON schreibt den Report als JSON auf einen Writer.
func (r *Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// ============================================================================
// Markdown
// ============================================================================

// ExportMarkdown exportiert den Report als Markdown-Datei.
func (r *Report) ExportMarkdown(path string) error {
	return export(path, r.WriteMarkdown)
}

// WriteMarkdown schreibt den Report als Markdown.
func (r *Report) WriteMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# Speedster Optimization Report\n\n")
	fmt.Fprintf(w, "**Datum:** %s\n\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "- **Model:** %s\n- **Metric:** %s\n- **Device:** %s\n- **System:** %s/%s, %d CPU-Kerne\n\n",
		r.Model, r.Metric, r.SystemInfo.Device, r.SystemInfo.OS, r.SystemInfo.Arch, r.SystemInfo.CPUCores)

	fmt.Fprintln(w, "| Name | Framework | Compiler | Compressor | Quantization | Latency | Throughput | Size | Metric Drop | Speedup |")
	fmt.Fprintln(w, "|------|-----------|----------|------------|--------------|---------|------------|------|-------------|---------|")
	writeMarkdownRow(w, r.Original)
	for _, c := range r.Candidates {
		writeMarkdownRow(w, c)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func writeMarkdownRow(w io.Writer, row Row) {
	name := row.Name
	if row.Selected {
		name = "**" + name + "**"
	}
	fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %.2f data/s | %s | %s | %.2fx |\n",
		name,
		row.Framework,
		cell(row.Compiler),
		cell(row.Compressor),
		cell(row.Quantization),
		format.HumanLatency(row.Latency),
		row.Throughput,
		format.HumanBytes(row.Size),
		metric.Format(row.MetricDrop),
		row.Speedup,
	)
}

// ============================================================================
// CSV
// ============================================================================

// ExportCSV exportiert den Report als CSV-Datei.
func (r *Report) ExportCSV(path string) error {
	return export(path, r.WriteCSV)
}

// WriteCSV schreibt Original und Kandidaten als CSV auf einen Writer.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';' // Semikolon fuer DE-Excel-Kompatibilitaet

	header := []string{
		"name", "framework", "compiler", "compressor", "quantization",
		"latency_ms", "throughput_data_s", "size_bytes", "metric_drop", "speedup", "selected",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	rows := append([]Row{r.Original}, r.Candidates...)
	for _, row := range rows {
		if err := cw.Write(buildCSVRow(row)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func buildCSVRow(r Row) []string {
	return []string{
		r.Name,
		r.Framework,
		r.Compiler,
		r.Compressor,
		r.Quantization,
		strconv.FormatFloat(r.Latency*1000, 'f', 3, 64),
		strconv.FormatFloat(r.Throughput, 'f', 2, 64),
		strconv.FormatInt(r.Size, 10),
		strconv.FormatFloat(r.MetricDrop, 'g', 6, 64),
		strconv.FormatFloat(r.Speedup, 'f', 2, 64),
		strconv.FormatBool(r.Selected),
	}
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

func export(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report-datei erstellen: %w", err)
	}
	defer f.Close()

	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
