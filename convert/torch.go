// torch.go - PyTorch state_dict Checkpoints (.pt, .pth, .bin) via gopickle
// Hauptfunktionen: ReadTorch
package convert

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/tensor"
)

// ReadTorch laedt einen state_dict-Checkpoint als Dense-Netz. Die
// Layer-Reihenfolge folgt der Reihenfolge im state_dict, versteckte
// Layer bekommen ReLU.
func ReadTorch(path string) (*model.Network, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickle %s: %w", path, err)
	}

	keys, tensors, err := stateDict(pt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var order []string
	for _, k := range keys {
		prefix, suffix, ok := cutLast(k)
		if !ok {
			continue
		}
		if suffix == "weight" && !slices.Contains(order, prefix) {
			order = append(order, prefix)
		}
	}
	slog.Debug("torch state_dict", "path", path, "tensors", len(keys), "layers", len(order))

	net, err := buildNetwork(order, nil, tensors)
	if err != nil {
		return nil, err
	}
	net.ModelName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	net.Source = model.PyTorch
	return net, nil
}

// stateDict loest verschachtelte Checkpoints ({"state_dict": ...}) auf und
// gibt die Schluessel in Datei-Reihenfolge zurueck.
func stateDict(v any) ([]string, map[string]tensor.Tensor, error) {
	entries, err := dictEntries(v)
	if err != nil {
		return nil, nil, err
	}

	for _, e := range entries {
		if e.key == "state_dict" || e.key == "model_state_dict" {
			return stateDict(e.value)
		}
	}

	var keys []string
	tensors := make(map[string]tensor.Tensor, len(entries))
	for _, e := range entries {
		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			continue
		}
		t, err := torchTensor(pt)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", e.key, err)
		}
		keys = append(keys, e.key)
		tensors[e.key] = t
	}
	return keys, tensors, nil
}

type dictEntry struct {
	key   string
	value any
}

func dictEntries(v any) ([]dictEntry, error) {
	var out []dictEntry
	switch d := v.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out = append(out, dictEntry{key: ks, value: d.MustGet(k)})
		}
	case *types.OrderedDict:
		for el := d.List.Front(); el != nil; el = el.Next() {
			e := el.Value.(*types.OrderedDictEntry)
			ks, ok := e.Key.(string)
			if !ok {
				continue
			}
			out = append(out, dictEntry{key: ks, value: e.Value})
		}
	default:
		return nil, fmt.Errorf("unexpected checkpoint root %T, want state_dict", v)
	}
	return out, nil
}

func torchTensor(pt *pytorch.Tensor) (tensor.Tensor, error) {
	var data []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	case *pytorch.BFloat16Storage:
		data = s.Data
	default:
		return tensor.Tensor{}, fmt.Errorf("unsupported storage %T", s)
	}

	shape := slices.Clone(pt.Size)
	if len(shape) == 0 {
		shape = []int{1}
	}
	t := tensor.Tensor{Shape: shape}
	n := t.Numel()
	if pt.StorageOffset < 0 || pt.StorageOffset+n > len(data) {
		return tensor.Tensor{}, fmt.Errorf("storage of %d values too small for offset %d and shape %v", len(data), pt.StorageOffset, shape)
	}
	t.Data = slices.Clone(data[pt.StorageOffset : pt.StorageOffset+n])
	return t, nil
}
