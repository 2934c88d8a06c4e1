// io.go - Sichern, Laden und Groessen-Schaetzung von Learnern
//
// Hauptfunktionen:
// - Save: metadata.json + model.safetensors
// - Load: Metadaten lesen, Klasse ueber die Registry aufloesen
// - Size: CBOR-Groesse, Fallback auf Dateigroessen nach Save in ein Temp-Verzeichnis

package learner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/speedster/speedster/convert"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/quant"
)

const (
	MetadataFile = "metadata.json"
	WeightsFile  = "model.safetensors"
)

// encodeSize ist in Tests austauschbar.
var encodeSize = cbor.Marshal

// Save schreibt den Learner nach dir.
func (b *base) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	meta, err := json.MarshalIndent(b.Metadata(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), meta, 0o644); err != nil {
		return err
	}

	net := b.net.Clone()
	net.ModelName = b.meta.Name
	return convert.WriteSafetensors(filepath.Join(dir, WeightsFile), net, b.meta.Quantization)
}

// Load rekonstruiert einen mit Save gesicherten Learner.
func Load(dir string) (Learner, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLearner, err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLearner, MetadataFile, err)
	}
	if meta.Class == "" {
		return nil, fmt.Errorf("%w: %s has no class", ErrInvalidLearner, MetadataFile)
	}

	net, err := convert.ReadSafetensors(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLearner, err)
	}
	net.ModelName = meta.Name
	net.Source = meta.Framework

	return New(meta.Class, net, meta)
}

// IsSaved prueft ob dir einen gesicherten Learner enthaelt.
func IsSaved(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MetadataFile))
	return err == nil
}

// ============================================================================
// Groesse
// ============================================================================

type sizeTensor struct {
	Name  string  `cbor:"name"`
	Shape []int   `cbor:"shape"`
	DType string  `cbor:"dtype"`
	Scale float32 `cbor:"scale,omitempty"`
	Raw   []byte  `cbor:"raw"`
}

type sizeRecord struct {
	Meta    Metadata     `cbor:"meta"`
	Tensors []sizeTensor `cbor:"tensors"`
}

// Size gibt die serialisierte Groesse zurueck. Schlaegt die CBOR-Kodierung
// fehl, wird der Learner gesichert und die Dateigroesse gezaehlt.
func (b *base) Size() (int64, error) {
	n, err := b.encodedSize()
	if err == nil {
		return n, nil
	}
	slog.Debug("cbor size estimation failed, falling back to filesystem", "learner", b.meta.Name, "error", err)
	return b.sizeOnDisk()
}

func (b *base) encodedSize() (int64, error) {
	entries, _ := convert.NetworkEntries(b.net, b.meta.Quantization)
	rec := sizeRecord{Meta: b.Metadata(), Tensors: make([]sizeTensor, len(entries))}
	for i, e := range entries {
		raw, scale, err := quant.Encode(e.Type, e.Tensor.Data)
		if err != nil {
			return 0, err
		}
		rec.Tensors[i] = sizeTensor{Name: e.Name, Shape: e.Tensor.Shape, DType: e.Type.DType(), Scale: scale, Raw: raw}
	}

	raw, err := encodeSize(rec)
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

func (b *base) sizeOnDisk() (int64, error) {
	dir, err := os.MkdirTemp(envconfig.TmpDir(), "speedster-size-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	if err := b.Save(dir); err != nil {
		return 0, err
	}

	var total int64
	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, errors.New("learner: saved learner is empty")
	}
	return total, nil
}
