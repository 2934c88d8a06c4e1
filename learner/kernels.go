// kernels.go - Ausfuehrungs-Kernels der eingebauten Learner
//
// Hauptfunktionen:
// - Gonum: Forward-Pass ueber gonum mat.Dense (BLAS)
// - Loop: Forward-Pass mit einfachen float32-Schleifen
// - Parallel: Zeilenbloecke verteilt ueber Goroutinen (errgroup)

package learner

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/tensor"
)

// Gonum fuehrt das Netz mit gonum aus.
type Gonum struct {
	base
}

// NewGonum erstellt einen Gonum-Learner.
func NewGonum(net *model.Network, meta Metadata) *Gonum {
	return &Gonum{base: newBase(ClassGonum, net, meta)}
}

func (g *Gonum) Run(ctx context.Context, inputs ...tensor.Tensor) ([]tensor.Tensor, error) {
	return g.net.Run(ctx, inputs...)
}

// ============================================================================
// Loop
// ============================================================================

// Loop fuehrt das Netz Zeile fuer Zeile mit float32-Schleifen aus.
type Loop struct {
	base
}

// NewLoop erstellt einen Loop-Learner.
func NewLoop(net *model.Network, meta Metadata) *Loop {
	return &Loop{base: newBase(ClassLoop, net, meta)}
}

func (l *Loop) Run(ctx context.Context, inputs ...tensor.Tensor) ([]tensor.Tensor, error) {
	if err := l.net.CheckInput(inputs...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := inputs[0]
	out := tensor.Zeros(tensor.WithCols(in.Shape, l.net.OutputDim())...)
	forwardRows(l.net.Layers, in, out, 0, in.Rows())
	return []tensor.Tensor{out}, nil
}

// ============================================================================
// Parallel
// ============================================================================

// Parallel verteilt die Zeilen eines Batches auf mehrere Goroutinen.
type Parallel struct {
	base
	workers int
}

// NewParallel erstellt einen Parallel-Learner. workers <= 0 nutzt alle CPUs
// des ausfuehrenden Hosts und wird als 0 (automatisch) gespeichert.
func NewParallel(net *model.Network, meta Metadata, workers int) *Parallel {
	meta.Workers = max(workers, 0)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Parallel{base: newBase(ClassParallel, net, meta), workers: workers}
}

func (p *Parallel) Run(ctx context.Context, inputs ...tensor.Tensor) ([]tensor.Tensor, error) {
	if err := p.net.CheckInput(inputs...); err != nil {
		return nil, err
	}

	in := inputs[0]
	out := tensor.Zeros(tensor.WithCols(in.Shape, p.net.OutputDim())...)
	rows := in.Rows()
	block := max((rows+p.workers-1)/p.workers, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for from := 0; from < rows; from += block {
		to := min(from+block, rows)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Bloecke schreiben disjunkte Zeilen von out
			forwardRows(p.net.Layers, in, out, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return []tensor.Tensor{out}, nil
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

// forwardRows berechnet die Zeilen [from, to) von in nach out.
func forwardRows(layers []model.Layer, in, out tensor.Tensor, from, to int) {
	for r := from; r < to; r++ {
		copy(out.Row(r), forwardRow(layers, in.Row(r)))
	}
}

func forwardRow(layers []model.Layer, x []float32) []float32 {
	for _, l := range layers {
		n := l.In()
		y := make([]float32, l.Out())
		for o := range y {
			w := l.Weight.Data[o*n : (o+1)*n]
			var s float32
			for i, v := range x {
				s += w[i] * v
			}
			if l.HasBias() {
				s += l.Bias.Data[o]
			}
			y[o] = l.Activation.Apply32(s)
		}
		x = y
	}
	return x
}
