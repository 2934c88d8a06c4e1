// MODUL: quant
// ZWECK: Quantisierungs-Typen und Codecs fuer Gewichte (F32, F16, BF16, I8)
// INPUT: float32-Gewichte, Quantisierungs-Typ
// OUTPUT: Rohbytes im Ziel-Datentyp plus Skalierung (nur I8)
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: x448/float16, d4l3k/go-bfloat16
// HINWEISE: Byte-Reihenfolge ist immer Little-Endian (safetensors-kompatibel)

package quant

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Type beschreibt die Quantisierung eines Modells.
type Type string

const (
	None     Type = "none"
	Half     Type = "half"
	BFloat16 Type = "bfloat16"
	Int8     Type = "int8"
)

var ErrUnknownType = errors.New("quant: unknown quantization type")

// Types gibt alle Quantisierungs-Typen ausser None in Versuchs-Reihenfolge zurueck.
func Types() []Type {
	return []Type{Half, BFloat16, Int8}
}

// Parse konvertiert einen String zu Type. Leerer String ergibt None.
func Parse(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "", None:
		return None, nil
	case Half, BFloat16, Int8:
		return t, nil
	case "fp16", "f16":
		return Half, nil
	case "bf16":
		return BFloat16, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownType, s)
	}
}

func (t Type) String() string {
	if t == "" {
		return string(None)
	}
	return string(t)
}

// DType gibt den safetensors-Datentyp fuer die Quantisierung zurueck.
func (t Type) DType() string {
	switch t {
	case Half:
		return "F16"
	case BFloat16:
		return "BF16"
	case Int8:
		return "I8"
	default:
		return "F32"
	}
}

// FromDType ist die Umkehrung von DType.
func FromDType(dtype string) (Type, error) {
	switch strings.ToUpper(dtype) {
	case "F32":
		return None, nil
	case "F16":
		return Half, nil
	case "BF16":
		return BFloat16, nil
	case "I8":
		return Int8, nil
	default:
		return "", fmt.Errorf("%w: dtype %s", ErrUnknownType, dtype)
	}
}

// Encode quantisiert f im Ziel-Typ. scale ist nur fuer Int8 relevant.
func Encode(t Type, f []float32) (raw []byte, scale float32, err error) {
	switch t {
	case None, "":
		raw = make([]byte, 4*len(f))
		for i, v := range f {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
		return raw, 0, nil
	case Half:
		raw = make([]byte, 2*len(f))
		for i, v := range f {
			binary.LittleEndian.PutUint16(raw[2*i:], float16.Fromfloat32(v).Bits())
		}
		return raw, 0, nil
	case BFloat16:
		return bfloat16.EncodeFloat32(f), 0, nil
	case Int8:
		scale = Int8Scale(f)
		raw = make([]byte, len(f))
		for i, v := range f {
			raw[i] = byte(quantizeInt8(v, scale))
		}
		return raw, scale, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

// Decode ist die Umkehrung von Encode.
func Decode(t Type, raw []byte, scale float32) ([]float32, error) {
	switch t {
	case None, "":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("quant: f32 payload of %d bytes", len(raw))
		}
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	case Half:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("quant: f16 payload of %d bytes", len(raw))
		}
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return out, nil
	case BFloat16:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("quant: bf16 payload of %d bytes", len(raw))
		}
		return bfloat16.DecodeFloat32(raw), nil
	case Int8:
		out := make([]float32, len(raw))
		for i, b := range raw {
			out[i] = float32(int8(b)) * scale
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

// RoundTrip gibt f so zurueck, wie es nach Quantisierung und Dequantisierung aussieht.
func RoundTrip(t Type, f []float32) ([]float32, error) {
	raw, scale, err := Encode(t, f)
	if err != nil {
		return nil, err
	}
	return Decode(t, raw, scale)
}

// Int8Scale berechnet die symmetrische per-Tensor-Skalierung.
func Int8Scale(f []float32) float32 {
	var maxAbs float32
	for _, v := range f {
		if a := float32(math.Abs(float64(v))); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return 1
	}
	return maxAbs / 127
}

func quantizeInt8(v, scale float32) int8 {
	q := math.Round(float64(v / scale))
	q = max(-127, min(127, q))
	return int8(q)
}
