// MODUL: framework
// ZWECK: Tagged Union der unterstuetzten Deep-Learning-Frameworks
// INPUT: Framework-Name (String)
// OUTPUT: Framework-Konstante
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine externen (nur stdlib)
// HINWEISE: Das Framework wird einmalig beim Laden des Modells festgelegt

package model

import (
	"errors"
	"fmt"
	"strings"
)

// Framework identifiziert die Herkunft bzw. Repraesentation eines Modells.
type Framework string

const (
	// Native ist das eingebaute Dense-Netz (gonum)
	Native Framework = "native"

	// PyTorch sind state_dict-Checkpoints (.pt, .pth, .bin)
	PyTorch Framework = "torch"

	// Safetensors sind safetensors-Checkpoints
	Safetensors Framework = "safetensors"

	// TensorFlow und ONNX sind nur als Tag vorhanden
	TensorFlow Framework = "tensorflow"
	ONNX       Framework = "onnx"
)

var ErrUnknownFramework = errors.New("model: unknown framework")

// Frameworks gibt alle bekannten Frameworks zurueck.
func Frameworks() []Framework {
	return []Framework{Native, PyTorch, Safetensors, TensorFlow, ONNX}
}

func (f Framework) String() string {
	return string(f)
}

// IsValid prueft ob das Framework bekannt ist.
func (f Framework) IsValid() bool {
	switch f {
	case Native, PyTorch, Safetensors, TensorFlow, ONNX:
		return true
	default:
		return false
	}
}

// ParseFramework konvertiert einen String zu Framework.
func ParseFramework(s string) (Framework, error) {
	switch f := Framework(strings.ToLower(strings.TrimSpace(s))); f {
	case "pytorch":
		return PyTorch, nil
	case "tf":
		return TensorFlow, nil
	default:
		if f.IsValid() {
			return f, nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnknownFramework, s)
	}
}
