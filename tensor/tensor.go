// MODUL: tensor
// ZWECK: Minimaler Tensor-Typ (Shape + float32-Daten) fuer Modell-Ein- und Ausgaben
// INPUT: Shape, Rohdaten
// OUTPUT: Tensor-Werte, Hilfsfunktionen (Numel, ArgMax, Konvertierung)
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine externen (nur stdlib)
// HINWEISE: Daten sind row-major abgelegt, die letzte Dimension ist die Feature-Achse

package tensor

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrShapeMismatch = errors.New("tensor: shape does not match data length")
	ErrEmpty         = errors.New("tensor: empty tensor")
)

// Tensor ist ein dichter float32-Tensor.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// New erstellt einen Tensor und prueft Shape gegen Datenlaenge.
func New(shape []int, data []float32) (Tensor, error) {
	t := Tensor{Shape: shape, Data: data}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// Zeros erstellt einen mit Nullen gefuellten Tensor.
func Zeros(shape ...int) Tensor {
	t := Tensor{Shape: slices.Clone(shape)}
	t.Data = make([]float32, t.Numel())
	return t
}

// FromFloat64 konvertiert float64-Daten in einen Tensor.
func FromFloat64(shape []int, data []float64) Tensor {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return Tensor{Shape: slices.Clone(shape), Data: out}
}

// Numel gibt die Anzahl der Elemente laut Shape zurueck.
// Ein Tensor ohne Shape hat 0 Elemente.
func (t Tensor) Numel() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Validate prueft ob der Tensor konsistent ist.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 || len(t.Data) == 0 {
		return ErrEmpty
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: invalid dimension %d in %v", ErrShapeMismatch, d, t.Shape)
		}
	}
	if n := t.Numel(); n != len(t.Data) {
		return fmt.Errorf("%w: shape %v wants %d values, got %d", ErrShapeMismatch, t.Shape, n, len(t.Data))
	}
	return nil
}

// Clone erstellt eine tiefe Kopie.
func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Cols gibt die Groesse der letzten Dimension zurueck.
func (t Tensor) Cols() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[len(t.Shape)-1]
}

// Rows gibt das Produkt aller Dimensionen ausser der letzten zurueck.
func (t Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	rows := 1
	for _, d := range t.Shape[:len(t.Shape)-1] {
		rows *= d
	}
	return rows
}

// Row gibt die i-te Zeile (letzte Dimension) als Slice zurueck.
func (t Tensor) Row(i int) []float32 {
	cols := t.Cols()
	return t.Data[i*cols : (i+1)*cols]
}

// ArgMax gibt pro Zeile den Index des groessten Werts zurueck.
func (t Tensor) ArgMax() []int {
	rows := t.Rows()
	out := make([]int, rows)
	for i := range rows {
		row := t.Row(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// Float64 gibt die Daten als float64-Slice zurueck.
func (t Tensor) Float64() []float64 {
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}

// Equal prueft Shape und Daten auf exakte Gleichheit.
func Equal(a, b Tensor) bool {
	return slices.Equal(a.Shape, b.Shape) && slices.Equal(a.Data, b.Data)
}

// WithCols gibt eine Kopie der Shape mit ersetzter letzter Dimension zurueck.
func WithCols(shape []int, cols int) []int {
	out := slices.Clone(shape)
	if len(out) == 0 {
		return []int{cols}
	}
	out[len(out)-1] = cols
	return out
}
