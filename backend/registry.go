// MODUL: registry
// ZWECK: Thread-sichere Registry fuer Compiler und Compressors mit fester Reihenfolge
// INPUT: Compiler/Compressor-Instanzen, Namen aus User-Eingaben
// OUTPUT: Registrierte Backends in Registrierungs-Reihenfolge
// NEBENEFFEKTE: Keine (rein speicherbasiert)
// ABHAENGIGKEITEN: sync (stdlib), format (Namensvorschlaege)
// HINWEISE: Die Reihenfolge bestimmt die Reihenfolge der Kandidaten und damit den Tie-Break

package backend

import (
	"slices"
	"strings"
	"sync"

	"github.com/speedster/speedster/format"
)

// RegistryError repraesentiert einen Registry-spezifischen Fehler.
type RegistryError struct {
	Op   string // Operation (z.B. "parse", "get")
	Name string // Backend-Name
	Err  error  // Urspruenglicher Fehler
	Hint string // naechstliegender bekannter Name, falls vorhanden
}

func (e *RegistryError) Error() string {
	msg := "backend: " + e.Op + " '" + e.Name + "': " + e.Err.Error()
	if e.Hint != "" {
		msg += " (did you mean '" + e.Hint + "'?)"
	}
	return msg
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Registry
// ============================================================================

// Registry verwaltet Compiler und Compressors.
type Registry struct {
	compilers   []Compiler
	compressors []Compressor
	mu          sync.RWMutex
}

// NewRegistry erstellt eine neue leere Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterCompiler registriert einen Compiler. Ein bestehender Eintrag
// gleichen Namens wird an seiner Position ersetzt.
func (r *Registry) RegisterCompiler(c Compiler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.IndexFunc(r.compilers, func(e Compiler) bool { return e.Name() == c.Name() }); i >= 0 {
		r.compilers[i] = c
		return
	}
	r.compilers = append(r.compilers, c)
}

// RegisterCompressor registriert einen Compressor.
func (r *Registry) RegisterCompressor(c Compressor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.IndexFunc(r.compressors, func(e Compressor) bool { return e.Name() == c.Name() }); i >= 0 {
		r.compressors[i] = c
		return
	}
	r.compressors = append(r.compressors, c)
}

// UnregisterCompiler entfernt einen Compiler. Gibt true zurueck wenn er existierte.
func (r *Registry) UnregisterCompiler(name CompilerName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.compilers)
	r.compilers = slices.DeleteFunc(r.compilers, func(c Compiler) bool { return c.Name() == name })
	return len(r.compilers) != n
}

// Compiler gibt den Compiler mit dem Namen zurueck.
func (r *Registry) Compiler(name CompilerName) (Compiler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.compilers {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Compressor gibt den Compressor mit dem Namen zurueck.
func (r *Registry) Compressor(name CompressorName) (Compressor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.compressors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Compilers gibt alle nicht ignorierten Compiler in Registrierungs-Reihenfolge zurueck.
func (r *Registry) Compilers(ignore ...CompilerName) []Compiler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Compiler, 0, len(r.compilers))
	for _, c := range r.compilers {
		if !slices.Contains(ignore, c.Name()) {
			out = append(out, c)
		}
	}
	return out
}

// Compressors gibt alle nicht ignorierten Compressors zurueck.
func (r *Registry) Compressors(ignore ...CompressorName) []Compressor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Compressor, 0, len(r.compressors))
	for _, c := range r.compressors {
		if !slices.Contains(ignore, c.Name()) {
			out = append(out, c)
		}
	}
	return out
}

// ============================================================================
// Parser fuer User-Eingaben
// ============================================================================

// ParseCompilers bildet Namen auf registrierte Compiler ab.
// Unbekannte Namen ergeben ErrUnknownCompiler.
func (r *Registry) ParseCompilers(names []string) ([]CompilerName, error) {
	out := make([]CompilerName, 0, len(names))
	for _, s := range names {
		name := CompilerName(strings.ToLower(strings.TrimSpace(s)))
		if _, ok := r.Compiler(name); !ok {
			var known []string
			for _, c := range r.Compilers() {
				known = append(known, string(c.Name()))
			}
			hint, _ := format.Closest(s, known)
			return nil, &RegistryError{Op: "parse compiler", Name: s, Err: ErrUnknownCompiler, Hint: hint}
		}
		out = append(out, name)
	}
	return out, nil
}

// ParseCompressors bildet Namen auf registrierte Compressors ab.
func (r *Registry) ParseCompressors(names []string) ([]CompressorName, error) {
	out := make([]CompressorName, 0, len(names))
	for _, s := range names {
		name := CompressorName(strings.ToLower(strings.TrimSpace(s)))
		if _, ok := r.Compressor(name); !ok {
			var known []string
			for _, c := range r.Compressors() {
				known = append(known, string(c.Name()))
			}
			hint, _ := format.Closest(s, known)
			return nil, &RegistryError{Op: "parse compressor", Name: s, Err: ErrUnknownCompressor, Hint: hint}
		}
		out = append(out, name)
	}
	return out, nil
}

// ============================================================================
// Globale Registry
// ============================================================================

// DefaultRegistry enthaelt die eingebauten Backends.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.RegisterCompiler(GonumCompiler{})
	DefaultRegistry.RegisterCompiler(LoopCompiler{})
	DefaultRegistry.RegisterCompiler(ParallelCompiler{})
	DefaultRegistry.RegisterCompressor(PruneCompressor{Ratio: DefaultPruneRatio})
	DefaultRegistry.RegisterCompressor(FoldCompressor{})
}

// ParseCompilers ist DefaultRegistry.ParseCompilers.
func ParseCompilers(names []string) ([]CompilerName, error) {
	return DefaultRegistry.ParseCompilers(names)
}

// ParseCompressors ist DefaultRegistry.ParseCompressors.
func ParseCompressors(names []string) ([]CompressorName, error) {
	return DefaultRegistry.ParseCompressors(names)
}
