// MODUL: convert
// ZWECK: Konvertiert ein Quell-Modell in alle unterstuetzten Zwischen-Repraesentationen
// INPUT: model.Model, model.Params, temporaeres Arbeitsverzeichnis
// OUTPUT: Liste von Repraesentationen (native, safetensors)
// NEBENEFFEKTE: Schreibt model.safetensors in das Arbeitsverzeichnis
// ABHAENGIGKEITEN: model, quant, gopickle (torch), float16/bfloat16 (safetensors)
// HINWEISE: Der Converter wird einmalig pro Framework-Tag aufgeloest (For)

package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
)

var ErrUnsupportedFramework = errors.New("convert: unsupported framework")

// Converter erzeugt aus einem Modell eine oder mehrere Repraesentationen.
type Converter interface {
	Convert(ctx context.Context, m model.Model, params model.Params, dir string) ([]model.Model, error)
}

// ConverterFunc ist ein Adapter fuer einfache Funktionen.
type ConverterFunc func(ctx context.Context, m model.Model, params model.Params, dir string) ([]model.Model, error)

func (f ConverterFunc) Convert(ctx context.Context, m model.Model, params model.Params, dir string) ([]model.Model, error) {
	return f(ctx, m, params, dir)
}

var (
	convertersMu sync.RWMutex
	converters   = map[model.Framework]Converter{}
)

func init() {
	for _, f := range []model.Framework{model.Native, model.PyTorch, model.Safetensors} {
		Register(f, Builtin{})
	}
}

// Register setzt den Converter fuer ein Framework (ueberschreibt bestehende).
func Register(f model.Framework, c Converter) {
	convertersMu.Lock()
	defer convertersMu.Unlock()
	converters[f] = c
}

// For gibt den Converter fuer ein Framework zurueck.
func For(f model.Framework) (Converter, error) {
	convertersMu.RLock()
	defer convertersMu.RUnlock()
	c, ok := converters[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFramework, f)
	}
	return c, nil
}

// ============================================================================
// Eingebauter Converter
// ============================================================================

// Builtin konvertiert Dense-Netze in die native Repraesentation und in eine
// ueber das Arbeitsverzeichnis geschriebene safetensors-Repraesentation.
type Builtin struct{}

func (Builtin) Convert(ctx context.Context, m model.Model, _ model.Params, dir string) ([]model.Model, error) {
	net, err := model.ToNetwork(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFramework, err)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}

	reps := []model.Model{net.As(model.Native)}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "model.safetensors")
	st, err := roundTrip(net, path)
	if err != nil {
		slog.Warn("safetensors conversion failed, skipping representation", "error", err)
		return reps, nil
	}
	return append(reps, st), nil
}

func roundTrip(net *model.Network, path string) (*model.Network, error) {
	if err := WriteSafetensors(path, net, quant.None); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	st, err := ReadSafetensors(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if st.ModelName == "" {
		st.ModelName = net.ModelName
	}
	return st, nil
}
