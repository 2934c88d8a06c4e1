package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/speedster/speedster/tensor"
)

var ErrNotExportable = errors.New("model: model cannot be exported as network")

// Model ist ein ausfuehrbares Modell mit festem Framework-Tag.
type Model interface {
	Framework() Framework
	Run(ctx context.Context, inputs ...tensor.Tensor) ([]tensor.Tensor, error)
}

// Named wird von Modellen implementiert, die einen Namen tragen.
type Named interface {
	Name() string
}

// Exporter wird von Modellen implementiert, die ihre Gewichte als Network
// herausgeben koennen (z.B. geladene Learner).
type Exporter interface {
	Export() (*Network, error)
}

// NameOf gibt den Modell-Namen zurueck oder "model" als Fallback.
func NameOf(m Model) string {
	if n, ok := m.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return "model"
}

// ToNetwork liefert die Network-Repraesentation eines Modells.
func ToNetwork(m Model) (*Network, error) {
	switch v := m.(type) {
	case *Network:
		return v, nil
	case Exporter:
		return v.Export()
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotExportable, m)
	}
}
