// MODUL: learner
// ZWECK: Inferenz-Learner fuer optimierte Netze (Ausfuehrung, Metadaten, Klassen-Registry)
// INPUT: Kompiliertes model.Network plus Metadata
// OUTPUT: Learner-Instanzen, die wie ein model.Model ausgefuehrt werden koennen
// NEBENEFFEKTE: Keine (Speichern/Laden siehe io.go)
// ABHAENGIGKEITEN: model, quant, tensor, convert, errgroup (Parallel), fxamacker/cbor (Size)
// HINWEISE: Die Gewichte im Netz sind bereits dequantisiert; Quantization beschreibt
//           den Speicher-Datentyp beim Sichern

package learner

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
	"github.com/speedster/speedster/version"
)

var (
	ErrUnknownClass   = errors.New("learner: unknown learner class")
	ErrInvalidLearner = errors.New("learner: invalid saved learner")
)

// Learner-Klassen, wie sie in metadata.json stehen.
const (
	ClassGonum    = "GonumInferenceLearner"
	ClassLoop     = "LoopInferenceLearner"
	ClassParallel = "ParallelInferenceLearner"
)

// Learner ist ein optimiertes, ausfuehrbares Modell.
type Learner interface {
	model.Model
	model.Named
	model.Exporter

	// Size gibt die serialisierte Groesse in Bytes zurueck.
	Size() (int64, error)
	// Save schreibt metadata.json und model.safetensors nach dir.
	Save(dir string) error
	Metadata() Metadata
}

// Metadata beschreibt einen gesicherten Learner.
type Metadata struct {
	Class        string             `json:"class"`
	Name         string             `json:"name"`
	Compiler     string             `json:"compiler"`
	Quantization quant.Type         `json:"quantization"`
	Framework    model.Framework    `json:"framework"`
	Device       string             `json:"device,omitempty"`
	Workers      int                `json:"workers,omitempty"`
	Dims         []int              `json:"dims"`
	Activations  []model.Activation `json:"activations"`
	Params       model.Params       `json:"params"`
	Version      string             `json:"version"`
	Created      time.Time          `json:"created"`
}

// ============================================================================
// Klassen-Registry
// ============================================================================

// Factory rekonstruiert einen Learner aus Netz und Metadaten.
type Factory func(net *model.Network, meta Metadata) (Learner, error)

var (
	classesMu sync.RWMutex
	classes   = map[string]Factory{}
)

func init() {
	RegisterClass(ClassGonum, func(net *model.Network, meta Metadata) (Learner, error) {
		return NewGonum(net, meta), nil
	})
	RegisterClass(ClassLoop, func(net *model.Network, meta Metadata) (Learner, error) {
		return NewLoop(net, meta), nil
	})
	RegisterClass(ClassParallel, func(net *model.Network, meta Metadata) (Learner, error) {
		return NewParallel(net, meta, meta.Workers), nil
	})
}

// RegisterClass registriert eine Factory (ueberschreibt bestehende).
func RegisterClass(class string, f Factory) {
	if f == nil {
		panic("learner: nil factory for class '" + class + "'")
	}
	classesMu.Lock()
	defer classesMu.Unlock()
	classes[class] = f
}

// Classes gibt alle registrierten Klassen sortiert zurueck.
func Classes() []string {
	classesMu.RLock()
	defer classesMu.RUnlock()
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New erstellt einen Learner der angegebenen Klasse.
func New(class string, net *model.Network, meta Metadata) (Learner, error) {
	classesMu.RLock()
	f, ok := classes[class]
	classesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	return f(net, meta)
}

// ============================================================================
// Gemeinsame Basis
// ============================================================================

type base struct {
	net  *model.Network
	meta Metadata
}

func newBase(class string, net *model.Network, meta Metadata) base {
	meta.Class = class
	if meta.Name == "" {
		meta.Name = net.Name()
	}
	if meta.Framework == "" {
		meta.Framework = net.Framework()
	}
	if meta.Quantization == "" {
		meta.Quantization = quant.None
	}
	if meta.Version == "" {
		meta.Version = version.Version
	}
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}
	meta.Dims = net.Dims()
	meta.Activations = make([]model.Activation, len(net.Layers))
	for i, l := range net.Layers {
		meta.Activations[i] = l.Activation
	}
	return base{net: net, meta: meta}
}

func (b *base) Name() string { return b.meta.Name }

// Framework gibt die Repraesentation zurueck, aus der der Learner kompiliert wurde.
func (b *base) Framework() model.Framework { return b.meta.Framework }

func (b *base) Metadata() Metadata {
	m := b.meta
	m.Dims = slices.Clone(m.Dims)
	m.Activations = slices.Clone(m.Activations)
	return m
}

// Export gibt eine Kopie der (dequantisierten) Gewichte zurueck.
func (b *base) Export() (*model.Network, error) {
	net := b.net.Clone()
	net.ModelName = b.meta.Name
	return net, nil
}
