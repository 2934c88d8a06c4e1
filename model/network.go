// MODUL: network
// ZWECK: Eingebautes Feed-Forward-Netz (Dense-Layer) als Referenz-Framework
// INPUT: Layer mit Gewichten [out, in], Bias [out], Aktivierung
// OUTPUT: Forward-Pass ueber gonum-Matrizen
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: gonum.org/v1/gonum/mat, tensor
// HINWEISE: Gewichts-Layout folgt torch.nn.Linear (out x in)

package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/speedster/speedster/tensor"
)

var (
	ErrInvalidNetwork = errors.New("model: invalid network")
	ErrInputCount     = errors.New("model: network expects exactly one input")
	ErrInputShape     = errors.New("model: input shape does not match network")
)

// ============================================================================
// Aktivierungen
// ============================================================================

// Activation ist eine elementweise Aktivierungsfunktion.
type Activation string

const (
	Identity Activation = "identity"
	ReLU     Activation = "relu"
	Tanh     Activation = "tanh"
	Sigmoid  Activation = "sigmoid"
)

// Apply wendet die Aktivierung auf einen Wert an.
func (a Activation) Apply(v float64) float64 {
	switch a {
	case ReLU:
		return max(v, 0)
	case Tanh:
		return math.Tanh(v)
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}

// Apply32 ist Apply fuer float32.
func (a Activation) Apply32(v float32) float32 {
	switch a {
	case ReLU:
		return max(v, 0)
	case Identity, "":
		return v
	default:
		return float32(a.Apply(float64(v)))
	}
}

// IsValid prueft ob die Aktivierung bekannt ist.
func (a Activation) IsValid() bool {
	switch a {
	case Identity, ReLU, Tanh, Sigmoid, "":
		return true
	default:
		return false
	}
}

// ============================================================================
// Layer und Network
// ============================================================================

// Layer ist eine vollverbundene Schicht.
type Layer struct {
	Name       string        `json:"name"`
	Weight     tensor.Tensor `json:"weight"`
	Bias       tensor.Tensor `json:"bias,omitzero"`
	Activation Activation    `json:"activation,omitempty"`
}

// In gibt die Eingangs-Dimension zurueck.
func (l Layer) In() int { return l.Weight.Cols() }

// Out gibt die Ausgangs-Dimension zurueck.
func (l Layer) Out() int {
	if len(l.Weight.Shape) == 0 {
		return 0
	}
	return l.Weight.Shape[0]
}

// HasBias prueft ob die Schicht einen Bias hat.
func (l Layer) HasBias() bool { return len(l.Bias.Data) > 0 }

// Network ist ein sequentielles Dense-Netz.
type Network struct {
	ModelName string    `json:"name"`
	Source    Framework `json:"framework"`
	Layers    []Layer   `json:"layers"`
}

// Name implementiert Named.
func (n *Network) Name() string { return n.ModelName }

// Framework implementiert Model.
func (n *Network) Framework() Framework {
	if n.Source == "" {
		return Native
	}
	return n.Source
}

// InputDim gibt die Eingangs-Dimension des ersten Layers zurueck.
func (n *Network) InputDim() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[0].In()
}

// OutputDim gibt die Ausgangs-Dimension des letzten Layers zurueck.
func (n *Network) OutputDim() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[len(n.Layers)-1].Out()
}

// NumParams gibt die Anzahl aller Gewichte und Biases zurueck.
func (n *Network) NumParams() int {
	var total int
	for _, l := range n.Layers {
		total += len(l.Weight.Data) + len(l.Bias.Data)
	}
	return total
}

// Validate prueft Layer-Dimensionen und Aktivierungen.
func (n *Network) Validate() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidNetwork)
	}
	for i, l := range n.Layers {
		if len(l.Weight.Shape) != 2 {
			return fmt.Errorf("%w: layer %d weight must be 2D, got %v", ErrInvalidNetwork, i, l.Weight.Shape)
		}
		if err := l.Weight.Validate(); err != nil {
			return fmt.Errorf("%w: layer %d: %v", ErrInvalidNetwork, i, err)
		}
		if l.HasBias() && (len(l.Bias.Shape) != 1 || l.Bias.Shape[0] != l.Out() || len(l.Bias.Data) != l.Out()) {
			return fmt.Errorf("%w: layer %d bias shape %v, want [%d]", ErrInvalidNetwork, i, l.Bias.Shape, l.Out())
		}
		if !l.Activation.IsValid() {
			return fmt.Errorf("%w: layer %d unknown activation %q", ErrInvalidNetwork, i, l.Activation)
		}
		if i > 0 && n.Layers[i-1].Out() != l.In() {
			return fmt.Errorf("%w: layer %d expects %d inputs, previous layer produces %d", ErrInvalidNetwork, i, l.In(), n.Layers[i-1].Out())
		}
	}
	return nil
}

// Clone erstellt eine tiefe Kopie des Netzes.
func (n *Network) Clone() *Network {
	out := &Network{ModelName: n.ModelName, Source: n.Source, Layers: make([]Layer, len(n.Layers))}
	for i, l := range n.Layers {
		out.Layers[i] = Layer{
			Name:       l.Name,
			Weight:     l.Weight.Clone(),
			Activation: l.Activation,
		}
		if l.HasBias() {
			out.Layers[i].Bias = l.Bias.Clone()
		}
	}
	return out
}

// As gibt eine Kopie mit anderem Framework-Tag zurueck.
func (n *Network) As(f Framework) *Network {
	out := n.Clone()
	out.Source = f
	return out
}

// CheckInput prueft eine Eingabe gegen die Netz-Dimensionen.
func (n *Network) CheckInput(inputs ...tensor.Tensor) error {
	if len(inputs) != 1 {
		return fmt.Errorf("%w, got %d", ErrInputCount, len(inputs))
	}
	if err := inputs[0].Validate(); err != nil {
		return err
	}
	if got := inputs[0].Cols(); got != n.InputDim() {
		return fmt.Errorf("%w: last dimension %d, want %d", ErrInputShape, got, n.InputDim())
	}
	return nil
}

// Run fuehrt den Forward-Pass mit gonum aus.
func (n *Network) Run(ctx context.Context, inputs ...tensor.Tensor) ([]tensor.Tensor, error) {
	if err := n.CheckInput(inputs...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := inputs[0]
	x := mat.NewDense(in.Rows(), in.Cols(), in.Float64())
	for _, l := range n.Layers {
		w := mat.NewDense(l.Out(), l.In(), l.Weight.Float64())

		var y mat.Dense
		y.Mul(x, w.T())

		bias := l.Bias.Data
		act := l.Activation
		y.Apply(func(_, j int, v float64) float64 {
			if len(bias) > 0 {
				v += float64(bias[j])
			}
			return act.Apply(v)
		}, &y)
		x = &y
	}

	rows, cols := x.Dims()
	out := tensor.FromFloat64(tensor.WithCols(in.Shape, cols), x.RawMatrix().Data[:rows*cols])
	return []tensor.Tensor{out}, nil
}

// Dims gibt die Dimensionen aller Layer zurueck ([in, h1, ..., out]).
func (n *Network) Dims() []int {
	if len(n.Layers) == 0 {
		return nil
	}
	dims := []int{n.InputDim()}
	for _, l := range n.Layers {
		dims = append(dims, l.Out())
	}
	return slices.Clip(dims)
}
