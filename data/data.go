// MODUL: data
// ZWECK: Normalisiert Datensaetze (Listen, Iterables, Loader) in eine kanonische Train/Test-Struktur
// INPUT: Samples, iter.Seq[Sample] oder Loader mit rohen Tupeln
// OUTPUT: *Manager mit deterministischem Split
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: tensor
// HINWEISE: Jedes Sample ist ein Batch; der Split wird genau einmal pro Lauf angewendet

package data

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/speedster/speedster/tensor"
)

// TrainTestSplitRatio ist der Anteil der Samples im Train-Split.
const TrainTestSplitRatio = 0.8

var (
	ErrInvalidFormat = errors.New(`the provided data does not match the expected format.
Speedster supports data in the following formats:
- List of samples: [{"inputs": [input_0, ...], "label": label}, ...]
- Loaders yielding (input, label), ((input1, input2, ...), label) or (input1, input2, ..., label)
Inputs and labels should be tensors with a shape matching their data`)
	ErrAlreadySplit = errors.New("data: dataset has already been split")
	ErrInvalidRatio = errors.New("data: split ratio must be in (0, 1]")
)

// Sample ist ein Batch aus Eingaben und optionalem Label.
type Sample struct {
	Inputs []tensor.Tensor `json:"inputs"`
	Label  *tensor.Tensor  `json:"label,omitempty"`
}

// Manager haelt die Samples und den Train/Test-Split.
type Manager struct {
	samples []Sample
	train   []int
	test    []int
	split   bool
}

// New validiert die Samples und erstellt einen Manager.
func New(samples []Sample) (*Manager, error) {
	if err := Check(samples); err != nil {
		return nil, err
	}
	return &Manager{samples: slices.Clone(samples)}, nil
}

// FromIterable materialisiert ein einmal lesbares Iterable.
func FromIterable(seq iter.Seq[Sample]) (*Manager, error) {
	return New(slices.Collect(seq))
}

// Check prueft einen Datensatz auf das erwartete Format.
func Check(samples []Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: dataset is empty", ErrInvalidFormat)
	}
	numInputs := len(samples[0].Inputs)
	for i, s := range samples {
		if len(s.Inputs) == 0 {
			return fmt.Errorf("%w: sample %d has no inputs", ErrInvalidFormat, i)
		}
		if len(s.Inputs) != numInputs {
			return fmt.Errorf("%w: sample %d has %d inputs, sample 0 has %d", ErrInvalidFormat, i, len(s.Inputs), numInputs)
		}
		for j, in := range s.Inputs {
			if err := in.Validate(); err != nil {
				return fmt.Errorf("%w: sample %d input %d: %v", ErrInvalidFormat, i, j, err)
			}
		}
		if s.Label != nil {
			if err := s.Label.Validate(); err != nil {
				return fmt.Errorf("%w: sample %d label: %v", ErrInvalidFormat, i, err)
			}
		}
	}
	return nil
}

// Len gibt die Anzahl der Samples zurueck.
func (m *Manager) Len() int { return len(m.samples) }

// Get gibt das i-te Sample zurueck.
func (m *Manager) Get(i int) Sample { return m.samples[i] }

// Samples gibt eine Kopie der Sample-Liste zurueck.
func (m *Manager) Samples() []Sample { return slices.Clone(m.samples) }

// All iteriert ueber alle Samples.
func (m *Manager) All() iter.Seq2[int, Sample] {
	return func(yield func(int, Sample) bool) {
		for i, s := range m.samples {
			if !yield(i, s) {
				return
			}
		}
	}
}

// Inputs gibt die Eingaben aller Samples zurueck.
func (m *Manager) Inputs() [][]tensor.Tensor {
	out := make([][]tensor.Tensor, len(m.samples))
	for i, s := range m.samples {
		out[i] = s.Inputs
	}
	return out
}

// Labels gibt die Labels aller Samples zurueck (nil wenn nicht vorhanden).
func (m *Manager) Labels() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(m.samples))
	for i, s := range m.samples {
		out[i] = s.Label
	}
	return out
}

// HasLabels prueft ob jedes Sample ein Label hat.
func (m *Manager) HasLabels() bool {
	for _, s := range m.samples {
		if s.Label == nil {
			return false
		}
	}
	return len(m.samples) > 0
}

// Clone gibt einen ungesplitteten Manager mit denselben Samples zurueck.
func (m *Manager) Clone() *Manager {
	return &Manager{samples: slices.Clone(m.samples)}
}

// ============================================================================
// Split
// ============================================================================

// Split teilt deterministisch: die ersten round(n*ratio) Samples sind Train,
// der Rest Test. Bei n>1 bleibt Test nie leer, bei n==1 enthalten beide
// Partitionen das einzige Sample.
func (m *Manager) Split(ratio float64) error {
	if m.split {
		return ErrAlreadySplit
	}
	if ratio <= 0 || ratio > 1 || math.IsNaN(ratio) {
		return fmt.Errorf("%w, got %v", ErrInvalidRatio, ratio)
	}

	n := len(m.samples)
	switch n {
	case 0:
		return fmt.Errorf("%w: dataset is empty", ErrInvalidFormat)
	case 1:
		m.train, m.test = []int{0}, []int{0}
	default:
		k := int(math.Round(float64(n) * ratio))
		k = max(1, min(k, n-1))
		m.train = seq(0, k)
		m.test = seq(k, n)
	}
	m.split = true
	return nil
}

// IsSplit prueft ob Split bereits angewendet wurde.
func (m *Manager) IsSplit() bool { return m.split }

// Train gibt den Train-Split zurueck (vor Split: alle Samples).
func (m *Manager) Train() *Manager { return m.partition(m.train) }

// Test gibt den Test-Split zurueck (vor Split: alle Samples).
func (m *Manager) Test() *Manager { return m.partition(m.test) }

func (m *Manager) partition(idx []int) *Manager {
	if !m.split {
		return m.Clone()
	}
	out := &Manager{samples: make([]Sample, len(idx))}
	for i, j := range idx {
		out.samples[i] = m.samples[j]
	}
	return out
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
