// MODUL: metric
// ZWECK: Metrik-Funktionen zur Messung des Metric-Drops optimierter Modelle
// INPUT: Referenz-Ausgaben, optimierte Ausgaben, optionale Labels
// OUTPUT: Metric-Drop als float64 (0 = keine Verschlechterung)
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: gonum.org/v1/gonum/stat, tensor, format
// HINWEISE: Namen werden ueber eine feste Map aufgeloest, unbekannte Namen schlagen sofort fehl

package metric

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/speedster/speedster/format"
	"github.com/speedster/speedster/tensor"
)

const (
	NumericPrecision = "numeric_precision"
	Accuracy         = "accuracy"

	// MinNumber ist die Grenze unter der ein Drop als 0 ausgegeben wird.
	MinNumber = 1e-6

	epsilon = 1e-5
)

var (
	ErrUnknown        = errors.New("metric: unknown metric")
	ErrOutputMismatch = errors.New("metric: outputs do not match")
)

// Func vergleicht Referenz- und optimierte Ausgaben (ein Eintrag pro Sample).
type Func func(base, opt [][]tensor.Tensor, labels []*tensor.Tensor) (float64, error)

var metrics = map[string]Func{
	NumericPrecision: RelativeDifference,
	Accuracy:         AccuracyDrop,
}

// Lookup loest einen Metrik-Namen auf.
func Lookup(name string) (Func, error) {
	f, ok := metrics[name]
	if !ok {
		if hint, ok := format.Closest(name, Names()); ok {
			return nil, fmt.Errorf("%w: %q, did you mean %q?", ErrUnknown, name, hint)
		}
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknown, name, Names())
	}
	return f, nil
}

// Names gibt alle bekannten Metrik-Namen sortiert zurueck.
func Names() []string {
	return slices.Sorted(maps.Keys(metrics))
}

// RelativeDifference ist der Mittelwert von |a-b| / (|a| + 1e-5) ueber alle
// Ausgabe-Elemente.
func RelativeDifference(base, opt [][]tensor.Tensor, _ []*tensor.Tensor) (float64, error) {
	if err := checkOutputs(base, opt); err != nil {
		return 0, err
	}

	var diffs []float64
	for i := range base {
		for j := range base[i] {
			a, b := base[i][j].Data, opt[i][j].Data
			for k := range a {
				ref := float64(a[k])
				diffs = append(diffs, math.Abs(ref-float64(b[k]))/(math.Abs(ref)+epsilon))
			}
		}
	}
	if len(diffs) == 0 {
		return 0, nil
	}
	return stat.Mean(diffs, nil), nil
}

// AccuracyDrop ist die Genauigkeit der Referenz minus die Genauigkeit des
// optimierten Modells auf der ersten Ausgabe. Ohne Labels wird die
// Uebereinstimmung der argmax-Klassen gemessen.
func AccuracyDrop(base, opt [][]tensor.Tensor, labels []*tensor.Tensor) (float64, error) {
	if err := checkOutputs(base, opt); err != nil {
		return 0, err
	}

	if !hasLabels(labels, len(base)) {
		var agree, total float64
		for i := range base {
			if len(base[i]) == 0 {
				continue
			}
			a, b := base[i][0].ArgMax(), opt[i][0].ArgMax()
			for k := range a {
				if a[k] == b[k] {
					agree++
				}
				total++
			}
		}
		if total == 0 {
			return 0, nil
		}
		return 1 - agree/total, nil
	}

	var baseHits, optHits, total float64
	for i := range base {
		if len(base[i]) == 0 {
			continue
		}
		classes := labelClasses(*labels[i])
		a, b := base[i][0].ArgMax(), opt[i][0].ArgMax()
		if len(classes) != len(a) {
			return 0, fmt.Errorf("%w: sample %d has %d labels for %d predictions", ErrOutputMismatch, i, len(classes), len(a))
		}
		for k, c := range classes {
			if a[k] == c {
				baseHits++
			}
			if b[k] == c {
				optHits++
			}
			total++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return (baseHits - optHits) / total, nil
}

// Format gibt einen Drop fuer die Ausgabe zurueck ("0" unter MinNumber).
func Format(drop float64) string {
	if math.Abs(drop) < MinNumber {
		return "0"
	}
	return fmt.Sprintf("%.4g", drop)
}

func checkOutputs(base, opt [][]tensor.Tensor) error {
	if len(base) != len(opt) {
		return fmt.Errorf("%w: %d reference samples, %d optimized", ErrOutputMismatch, len(base), len(opt))
	}
	for i := range base {
		if len(base[i]) != len(opt[i]) {
			return fmt.Errorf("%w: sample %d has %d reference outputs, %d optimized", ErrOutputMismatch, i, len(base[i]), len(opt[i]))
		}
		for j := range base[i] {
			if !slices.Equal(base[i][j].Shape, opt[i][j].Shape) || len(base[i][j].Data) != len(opt[i][j].Data) {
				return fmt.Errorf("%w: sample %d output %d shape %v vs %v", ErrOutputMismatch, i, j, base[i][j].Shape, opt[i][j].Shape)
			}
		}
	}
	return nil
}

func hasLabels(labels []*tensor.Tensor, n int) bool {
	if len(labels) != n {
		return false
	}
	for _, l := range labels {
		if l == nil {
			return false
		}
	}
	return true
}

// labelClasses liest Klassen-Indizes (eine Spalte) oder One-Hot-Labels.
func labelClasses(l tensor.Tensor) []int {
	if len(l.Shape) > 1 && l.Cols() > 1 {
		return l.ArgMax()
	}
	out := make([]int, len(l.Data))
	for i, v := range l.Data {
		out[i] = int(math.Round(float64(v)))
	}
	return out
}
