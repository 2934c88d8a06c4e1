// Package backend - Compiler- und Compressor-Backends fuer die Optimierung.
//
// MODUL: backend
// ZWECK: Schnittstellen, Namen und Parser fuer Compiler/Compressor-Backends
// INPUT: Netze, Quantisierungs-Typ, Modell-Parameter, Trainings-Split
// OUTPUT: Kompilierte Learner bzw. komprimierte Netze
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: model, data, learner, quant
// HINWEISE: Compressors laufen nur im Modus "unconstrained"

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
)

// DefaultTolerance ist die zulaessige numerische Abweichung, wenn kein
// Metric-Drop-Schwellwert gesetzt ist.
const DefaultTolerance = 1e-2

var (
	ErrUnknownCompiler         = errors.New("backend: unknown compiler")
	ErrUnknownCompressor       = errors.New("backend: unknown compressor")
	ErrInvalidOptimizationTime = errors.New("backend: optimization time must be 'constrained' or 'unconstrained'")
	ErrUnsupported             = errors.New("backend: framework not supported by compiler")
)

// Quantization ist der Quantisierungs-Typ eines Kandidaten.
type Quantization = quant.Type

// ============================================================================
// Namen
// ============================================================================

// CompilerName identifiziert einen Compiler.
type CompilerName string

const (
	Gonum    CompilerName = "gonum"
	Loop     CompilerName = "loop"
	Parallel CompilerName = "parallel"
)

// CompressorName identifiziert einen Compressor.
type CompressorName string

const (
	Prune CompressorName = "prune"
	Fold  CompressorName = "fold"
)

// OptimizationTime steuert, ob Compressors ausgefuehrt werden.
type OptimizationTime string

const (
	Constrained   OptimizationTime = "constrained"
	Unconstrained OptimizationTime = "unconstrained"
)

// ParseOptimizationTime parst den Modus. Leerer String ergibt Constrained.
func ParseOptimizationTime(s string) (OptimizationTime, error) {
	switch t := OptimizationTime(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Constrained, nil
	case Constrained, Unconstrained:
		return t, nil
	default:
		return "", fmt.Errorf("%w, got %q", ErrInvalidOptimizationTime, s)
	}
}

// ============================================================================
// Schnittstellen
// ============================================================================

// Compiler erzeugt aus einem Netz einen ausfuehrbaren Learner.
type Compiler interface {
	Name() CompilerName
	// Supports prueft ob die Repraesentation kompiliert werden kann.
	Supports(f model.Framework) bool
	Compile(ctx context.Context, net *model.Network, q Quantization, params model.Params) (learner.Learner, error)
}

// Compressor erzeugt aus einem Netz ein kleineres oder schnelleres Netz.
type Compressor interface {
	Name() CompressorName
	Compress(ctx context.Context, net *model.Network, train *data.Manager, params model.Params) (*model.Network, error)
}
