// compilers.go - Eingebaute Compiler
//
// Hauptfunktionen:
// - GonumCompiler: BLAS-gestuetzter Forward-Pass (learner.Gonum)
// - LoopCompiler: float32-Schleifen (learner.Loop)
// - ParallelCompiler: Zeilenbloecke ueber Goroutinen (learner.Parallel)
// - Quantize: Gewichte quantisieren und wieder dequantisieren

package backend

import (
	"context"
	"fmt"

	"github.com/speedster/speedster/device"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
)

// GonumCompiler kompiliert zu learner.Gonum.
type GonumCompiler struct{}

func (GonumCompiler) Name() CompilerName { return Gonum }

func (GonumCompiler) Supports(f model.Framework) bool { return supportsDense(f) }

func (c GonumCompiler) Compile(ctx context.Context, net *model.Network, q Quantization, params model.Params) (learner.Learner, error) {
	return compile(ctx, c, learner.ClassGonum, net, q, params, 0)
}

// LoopCompiler kompiliert zu learner.Loop.
type LoopCompiler struct{}

func (LoopCompiler) Name() CompilerName { return Loop }

func (LoopCompiler) Supports(f model.Framework) bool { return supportsDense(f) }

func (c LoopCompiler) Compile(ctx context.Context, net *model.Network, q Quantization, params model.Params) (learner.Learner, error) {
	return compile(ctx, c, learner.ClassLoop, net, q, params, 0)
}

// ParallelCompiler kompiliert zu learner.Parallel. Workers <= 0 nutzt alle CPUs.
type ParallelCompiler struct {
	Workers int
}

func (ParallelCompiler) Name() CompilerName { return Parallel }

func (ParallelCompiler) Supports(f model.Framework) bool { return supportsDense(f) }

func (c ParallelCompiler) Compile(ctx context.Context, net *model.Network, q Quantization, params model.Params) (learner.Learner, error) {
	return compile(ctx, c, learner.ClassParallel, net, q, params, c.Workers)
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

func supportsDense(f model.Framework) bool {
	switch f {
	case model.Native, model.PyTorch, model.Safetensors:
		return true
	default:
		return false
	}
}

func compile(ctx context.Context, c Compiler, class string, net *model.Network, q Quantization, params model.Params, workers int) (learner.Learner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Supports(net.Framework()) {
		return nil, fmt.Errorf("%w: %s cannot compile %s", ErrUnsupported, c.Name(), net.Framework())
	}

	qnet, err := Quantize(net, q)
	if err != nil {
		return nil, err
	}

	return learner.New(class, qnet, learner.Metadata{
		Name:         net.Name(),
		Compiler:     string(c.Name()),
		Quantization: q,
		Framework:    net.Framework(),
		Device:       device.Detect().String(),
		Workers:      workers,
		Params:       params,
	})
}

// Quantize gibt eine Kopie von net zurueck, deren Gewichte im Datentyp q
// gespeichert und wieder dequantisiert wurden.
func Quantize(net *model.Network, q Quantization) (*model.Network, error) {
	out := net.Clone()
	if q == quant.None || q == "" {
		return out, nil
	}

	for i := range out.Layers {
		l := &out.Layers[i]
		w, err := quant.RoundTrip(q, l.Weight.Data)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		l.Weight.Data = w

		if l.HasBias() {
			b, err := quant.RoundTrip(q, l.Bias.Data)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", l.Name, err)
			}
			l.Bias.Data = b
		}
	}
	return out, nil
}
