// compressors.go - Eingebaute Compressors
//
// Hauptfunktionen:
// - PruneCompressor: Magnitude-Pruning der kleinsten Gewichte pro Layer
// - FoldCompressor: Faltet aufeinanderfolgende lineare Layer ohne Aktivierung

package backend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/tensor"
)

// DefaultPruneRatio ist der Anteil der Gewichte, die auf 0 gesetzt werden.
const DefaultPruneRatio = 0.3

// ErrNotApplicable meldet, dass ein Compressor das Netz nicht veraendern kann.
var ErrNotApplicable = errors.New("backend: compressor not applicable")

// ============================================================================
// Prune
// ============================================================================

// PruneCompressor setzt pro Layer den Anteil Ratio der betragsmaessig
// kleinsten Gewichte auf 0. Biases bleiben unveraendert.
type PruneCompressor struct {
	Ratio float64
}

func (PruneCompressor) Name() CompressorName { return Prune }

func (p PruneCompressor) Compress(ctx context.Context, net *model.Network, _ *data.Manager, _ model.Params) (*model.Network, error) {
	if p.Ratio <= 0 || p.Ratio >= 1 {
		return nil, fmt.Errorf("%w: prune ratio %v", ErrNotApplicable, p.Ratio)
	}

	out := net.Clone()
	for i := range out.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pruneSmallest(out.Layers[i].Weight.Data, int(float64(len(out.Layers[i].Weight.Data))*p.Ratio))
	}
	return out, nil
}

// pruneSmallest setzt die k betragsmaessig kleinsten Werte auf 0.
// Bei gleichem Betrag gewinnt der kleinere Index.
func pruneSmallest(w []float32, k int) {
	if k <= 0 {
		return
	}
	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(math.Abs(float64(w[a])), math.Abs(float64(w[b])))
	})
	for _, i := range idx[:k] {
		w[i] = 0
	}
}

// ============================================================================
// Fold
// ============================================================================

// FoldCompressor faltet Layer-Paare (A, B), bei denen A keine Aktivierung
// hat, in einen Layer: W = Wb*Wa, b = Wb*ba + bb.
type FoldCompressor struct{}

func (FoldCompressor) Name() CompressorName { return Fold }

func (FoldCompressor) Compress(ctx context.Context, net *model.Network, _ *data.Manager, _ model.Params) (*model.Network, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}
	out := &model.Network{ModelName: net.ModelName, Source: net.Source}

	layers := net.Clone().Layers
	cur := layers[0]
	folded := 0
	for _, next := range layers[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cur.Activation == model.Identity || cur.Activation == "" {
			cur = foldLayers(cur, next)
			folded++
			continue
		}
		out.Layers = append(out.Layers, cur)
		cur = next
	}
	out.Layers = append(out.Layers, cur)

	if folded == 0 {
		return nil, fmt.Errorf("%w: no linear layer pairs in %s", ErrNotApplicable, net.Name())
	}
	return out, nil
}

func foldLayers(a, b model.Layer) model.Layer {
	wa := mat.NewDense(a.Out(), a.In(), a.Weight.Float64())
	wb := mat.NewDense(b.Out(), b.In(), b.Weight.Float64())

	var w mat.Dense
	w.Mul(wb, wa)

	bias := make([]float64, b.Out())
	if a.HasBias() {
		var v mat.VecDense
		v.MulVec(wb, mat.NewVecDense(a.Out(), a.Bias.Float64()))
		copy(bias, v.RawVector().Data)
	}
	if b.HasBias() {
		for i, x := range b.Bias.Data {
			bias[i] += float64(x)
		}
	}

	l := model.Layer{
		Name:       a.Name + "_" + b.Name,
		Weight:     tensor.FromFloat64([]int{b.Out(), a.In()}, w.RawMatrix().Data),
		Activation: b.Activation,
	}
	if a.HasBias() || b.HasBias() {
		l.Bias = tensor.FromFloat64([]int{b.Out()}, bias)
	}
	return l
}
