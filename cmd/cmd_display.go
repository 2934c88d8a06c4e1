// cmd_display.go - Tabellen und Ausgabe-Formate
// Hauptfunktionen: newTable, renderSummary, renderCandidates, renderReport
package cmd

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/speedster/speedster/benchmark"
	"github.com/speedster/speedster/format"
	"github.com/speedster/speedster/optimize"
	"github.com/speedster/speedster/speedster"
)

var errUnknownFormat = errors.New("unknown output format")

// Ausgabe-Formate fuer optimize
const (
	formatTable    = "table"
	formatMarkdown = "markdown"
	formatJSON     = "json"
	formatCSV      = "csv"
)

var formats = []string{formatTable, formatMarkdown, formatJSON, formatCSV}

func checkFormat(f string) error {
	if !slices.Contains(formats, f) {
		return fmt.Errorf("%w %q (use one of %v)", errUnknownFormat, f, formats)
	}
	return nil
}

// maxNameWidth begrenzt Modell-Namen in Tabellen
const maxNameWidth = 32

func truncate(s string) string {
	return runewidth.Truncate(s, maxNameWidth, "...")
}

// newTable - Randlose Tabelle mit linksbuendigen Spalten
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}

// renderSummary - Zweispaltige Zusammenfassung des optimalen Modells
func renderSummary(w io.Writer, s *speedster.Summary) {
	table := newTable(w, []string{"", "RESULT"})
	for _, line := range s.Lines() {
		table.Append([]string{line[0], line[1]})
	}
	table.Render()
}

// renderCandidates - Alle akzeptierten Kandidaten, schnellster zuerst
func renderCandidates(w io.Writer, candidates []optimize.Candidate) {
	table := newTable(w, []string{"#", "PIPELINE", "COMPILER", "COMPRESSOR", "QUANTIZATION", "LATENCY", "SIZE", "METRIC DROP"})
	for i, c := range optimize.Sorted(candidates) {
		compressor := string(c.Compressor)
		if compressor == "" {
			compressor = "-"
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			string(c.Pipeline),
			string(c.Compiler),
			compressor,
			c.Quantization.String(),
			format.HumanLatency(c.Latency),
			format.HumanBytes(c.Size),
			strconv.FormatFloat(c.MetricDrop, 'g', 4, 64),
		})
	}
	table.Render()
}

// renderReport - Report im gewaehlten Format (nicht table)
func renderReport(w io.Writer, r *benchmark.Report, f string) error {
	switch f {
	case formatMarkdown:
		return r.WriteMarkdown(w)
	case formatJSON:
		return r.WriteJSON(w)
	case formatCSV:
		return r.WriteCSV(w)
	default:
		return fmt.Errorf("%w %q", errUnknownFormat, f)
	}
}

// renderResult - Gibt das Ergebnis eines lokalen Laufs aus
func renderResult(w, errw io.Writer, f string, s *speedster.Summary, candidates []optimize.Candidate, r *benchmark.Report) error {
	if s == nil {
		fmt.Fprintln(errw, "No optimized model satisfied the metric drop threshold.")
		return nil
	}

	if f != formatTable {
		return renderReport(w, r, f)
	}

	renderSummary(w, s)
	fmt.Fprintln(w)
	renderCandidates(w, candidates)
	return nil
}
