// MODUL: fetch
// ZWECK: Laedt Modelle und Datensaetze von der Festplatte
// INPUT: Pfad zu Modell-Datei/-Verzeichnis bzw. Datensatz-Datei
// OUTPUT: model.Model mit festem Framework-Tag, *data.Manager
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: convert (torch, safetensors), learner, model, data, yaml.v2
// HINWEISE: Das Format wird einmalig hier bestimmt; danach wird nur noch der Tag genutzt

package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/speedster/speedster/convert"
	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/learner"
	"github.com/speedster/speedster/model"
)

var (
	ErrNotFound      = errors.New("fetch: not found")
	ErrUnknownFormat = errors.New("fetch: unknown format")
)

// Model laedt ein Modell. Unterstuetzt:
//   - .pt, .pth, .bin: PyTorch state_dict
//   - .safetensors: safetensors-Checkpoint
//   - .json: natives Netz
//   - Verzeichnis mit metadata.json: gesicherter Learner
//   - Verzeichnis mit model.safetensors
func Model(path string) (model.Model, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return modelFromDir(path)
	}

	var net *model.Network
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pt", ".pth", ".bin":
		net, err = convert.ReadTorch(path)
	case ".safetensors":
		net, err = convert.ReadSafetensors(path)
	case ".json":
		net, err = model.LoadNetwork(path)
	default:
		return nil, fmt.Errorf("%w: model extension %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if net.ModelName == "" {
		net.ModelName = baseName(path)
	}
	return net, nil
}

func modelFromDir(dir string) (model.Model, error) {
	if learner.IsSaved(dir) {
		return learner.Load(dir)
	}

	st := filepath.Join(dir, learner.WeightsFile)
	if _, err := os.Stat(st); err == nil {
		net, err := convert.ReadSafetensors(st)
		if err != nil {
			return nil, err
		}
		if net.ModelName == "" {
			net.ModelName = filepath.Base(dir)
		}
		return net, nil
	}
	return nil, fmt.Errorf("%w: directory %s has no %s or %s", ErrUnknownFormat, dir, learner.MetadataFile, learner.WeightsFile)
}

// Data laedt einen Datensatz aus einer JSON- oder YAML-Datei:
//
//	[{"inputs": [{"shape": [1, 2], "data": [1, 2]}], "label": {"shape": [1], "data": [0]}}]
func Data(path string) (*data.Manager, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: data %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	var samples []data.Sample
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &samples)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &samples)
	default:
		return nil, fmt.Errorf("%w: data extension %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrInvalidFormat, err)
	}
	return data.New(samples)
}

// WriteData schreibt Samples im JSON-Format, das Data lesen kann.
func WriteData(path string, samples []data.Sample) error {
	b, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
