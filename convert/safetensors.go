// safetensors.go - Lesen und Schreiben von safetensors-Dateien
// Hauptfunktionen: ReadTensors, WriteTensors, ReadSafetensors, WriteSafetensors
package convert

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/quant"
	"github.com/speedster/speedster/tensor"
)

const (
	metadataKey    = "__metadata__"
	metaFormat     = "format"
	metaName       = "name"
	metaFramework  = "framework"
	metaLayers     = "layers"
	metaActivation = "activations"
	scalePrefix    = "scale."

	formatName = "speedster"
)

var ErrInvalidSafetensors = errors.New("convert: invalid safetensors file")

type safetensorMetadata struct {
	Type    string  `json:"dtype"`
	Shape   []int   `json:"shape"`
	Offsets []int64 `json:"data_offsets"`
}

// Entry ist ein benannter Tensor mit seinem Speicher-Datentyp.
// Tensor enthaelt immer dequantisierte float32-Werte.
type Entry struct {
	Name   string
	Tensor tensor.Tensor
	Type   quant.Type
}

// WriteTensors schreibt Eintraege im safetensors-Format. Eintraege werden
// im jeweiligen Type kodiert, Int8-Skalierungen landen in den Metadaten.
func WriteTensors(path string, entries []Entry, meta map[string]string) error {
	headers := make(map[string]any, len(entries)+1)
	outMeta := maps.Clone(meta)
	if outMeta == nil {
		outMeta = make(map[string]string)
	}

	var data bytes.Buffer
	for _, e := range entries {
		if err := e.Tensor.Validate(); err != nil {
			return fmt.Errorf("tensor %s: %w", e.Name, err)
		}
		raw, scale, err := quant.Encode(e.Type, e.Tensor.Data)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", e.Name, err)
		}
		if e.Type == quant.Int8 {
			outMeta[scalePrefix+e.Name] = strconv.FormatFloat(float64(scale), 'g', -1, 32)
		}

		start := int64(data.Len())
		data.Write(raw)
		headers[e.Name] = safetensorMetadata{
			Type:    e.Type.DType(),
			Shape:   e.Tensor.Shape,
			Offsets: []int64{start, int64(data.Len())},
		}
	}
	headers[metadataKey] = outMeta

	header, err := json.Marshal(headers)
	if err != nil {
		return err
	}
	// Header wird auf 8 Byte aufgefuellt
	if pad := len(header) % 8; pad != 0 {
		header = append(header, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, int64(len(header))); err != nil {
		return err
	}
	if _, err := f.Write(header); err != nil {
		return err
	}
	if _, err := f.Write(data.Bytes()); err != nil {
		return err
	}
	return f.Close()
}

// ReadTensors liest alle Tensoren einer safetensors-Datei, sortiert nach Name.
func ReadTensors(path string) ([]Entry, map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(b) < 8 {
		return nil, nil, fmt.Errorf("%w: %s is too short", ErrInvalidSafetensors, path)
	}

	n := int64(binary.LittleEndian.Uint64(b[:8]))
	if n <= 0 || n > int64(len(b))-8 {
		return nil, nil, fmt.Errorf("%w: header length %d", ErrInvalidSafetensors, n)
	}
	body := b[8+n:]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b[8:8+n], &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSafetensors, err)
	}

	meta := make(map[string]string)
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, nil, fmt.Errorf("%w: metadata: %v", ErrInvalidSafetensors, err)
		}
		delete(raw, metadataKey)
	}

	keys := slices.Sorted(maps.Keys(raw))
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		var h safetensorMetadata
		if err := json.Unmarshal(raw[key], &h); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidSafetensors, key, err)
		}
		if len(h.Shape) == 0 || len(h.Offsets) != 2 {
			return nil, nil, fmt.Errorf("%w: tensor %s has no shape or offsets", ErrInvalidSafetensors, key)
		}
		if h.Offsets[0] < 0 || h.Offsets[0] > h.Offsets[1] || h.Offsets[1] > int64(len(body)) {
			return nil, nil, fmt.Errorf("%w: tensor %s offsets %v out of range", ErrInvalidSafetensors, key, h.Offsets)
		}

		typ, err := quant.FromDType(h.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", key, err)
		}

		var scale float64
		if typ == quant.Int8 {
			s, ok := meta[scalePrefix+key]
			if !ok {
				return nil, nil, fmt.Errorf("%w: tensor %s has no int8 scale", ErrInvalidSafetensors, key)
			}
			if scale, err = strconv.ParseFloat(s, 32); err != nil {
				return nil, nil, fmt.Errorf("%w: tensor %s scale: %v", ErrInvalidSafetensors, key, err)
			}
		}

		values, err := quant.Decode(typ, body[h.Offsets[0]:h.Offsets[1]], float32(scale))
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", key, err)
		}
		t, err := tensor.New(h.Shape, values)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", key, err)
		}
		entries = append(entries, Entry{Name: key, Tensor: t, Type: typ})
	}

	return entries, meta, nil
}

// ============================================================================
// Network <-> Eintraege
// ============================================================================

// NetworkEntries zerlegt ein Netz in benannte Gewichte und Metadaten.
func NetworkEntries(net *model.Network, q quant.Type) ([]Entry, map[string]string) {
	var entries []Entry
	names := make([]string, len(net.Layers))
	acts := make([]string, len(net.Layers))
	for i, l := range net.Layers {
		names[i] = layerName(l, i)
		acts[i] = string(cmp.Or(l.Activation, model.Identity))

		entries = append(entries, Entry{Name: names[i] + ".weight", Tensor: l.Weight, Type: q})
		if l.HasBias() {
			entries = append(entries, Entry{Name: names[i] + ".bias", Tensor: l.Bias, Type: q})
		}
	}

	meta := map[string]string{
		metaFormat:     formatName,
		metaName:       net.Name(),
		metaFramework:  net.Framework().String(),
		metaLayers:     strings.Join(names, ","),
		metaActivation: strings.Join(acts, ","),
	}
	return entries, meta
}

// NetworkFromEntries setzt ein Netz aus Eintraegen zusammen. Ohne
// Layer-Metadaten wird die Reihenfolge aus den Tensor-Namen abgeleitet
// und versteckte Layer bekommen ReLU.
func NetworkFromEntries(entries []Entry, meta map[string]string, source model.Framework) (*model.Network, error) {
	tensors := make(map[string]tensor.Tensor, len(entries))
	for _, e := range entries {
		tensors[e.Name] = e.Tensor
	}

	var order []string
	var acts []model.Activation
	if layers := meta[metaLayers]; layers != "" {
		order = strings.Split(layers, ",")
		for _, a := range strings.Split(meta[metaActivation], ",") {
			acts = append(acts, model.Activation(a))
		}
	} else {
		order = layerOrder(slices.Collect(maps.Keys(tensors)))
	}

	net, err := buildNetwork(order, acts, tensors)
	if err != nil {
		return nil, err
	}
	net.ModelName = meta[metaName]
	net.Source = source
	return net, nil
}

// ReadSafetensors laedt ein Netz aus einer safetensors-Datei.
func ReadSafetensors(path string) (*model.Network, error) {
	entries, meta, err := ReadTensors(path)
	if err != nil {
		return nil, err
	}
	return NetworkFromEntries(entries, meta, model.Safetensors)
}

// WriteSafetensors schreibt ein Netz im Datentyp q.
func WriteSafetensors(path string, net *model.Network, q quant.Type) error {
	if err := net.Validate(); err != nil {
		return err
	}
	entries, meta := NetworkEntries(net, q)
	return WriteTensors(path, entries, meta)
}

func layerName(l model.Layer, i int) string {
	if l.Name != "" {
		return l.Name
	}
	return "layer" + strconv.Itoa(i)
}
