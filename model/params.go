// MODUL: params
// ZWECK: Statische Modell-Parameter (Batch-Groesse, Input-Shapes, dynamische Achsen)
// INPUT: Modell, ein Daten-Sample, optionale DynamicInfo
// OUTPUT: Params (unveraenderlich nach Extraktion)
// NEBENEFFEKTE: Ein Forward-Pass zur Bestimmung der Output-Shapes
// ABHAENGIGKEITEN: tensor
// HINWEISE: Shapes werden ohne Batch-Dimension gespeichert

package model

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/speedster/speedster/tensor"
)

var ErrInvalidDynamicInfo = errors.New("model: invalid dynamic info")

// InputInfo beschreibt einen Modell-Input ohne Batch-Dimension.
type InputInfo struct {
	Shape []int  `json:"shape" yaml:"shape"`
	DType string `json:"dtype" yaml:"dtype"`
}

// DynamicInfo markiert dynamische Achsen pro Input/Output (Achse -> Name).
type DynamicInfo struct {
	Inputs  []map[int]string `json:"inputs" yaml:"inputs"`
	Outputs []map[int]string `json:"outputs" yaml:"outputs"`
}

// Params ist die statische Beschreibung eines Modells.
type Params struct {
	BatchSize   int          `json:"batch_size"`
	InputInfos  []InputInfo  `json:"input_infos"`
	OutputSizes [][]int      `json:"output_sizes"`
	DynamicInfo *DynamicInfo `json:"dynamic_info,omitempty"`
}

// InputShapes gibt die vollen Input-Shapes inklusive Batch-Dimension zurueck.
func (p Params) InputShapes() [][]int {
	shapes := make([][]int, len(p.InputInfos))
	for i, info := range p.InputInfos {
		shapes[i] = append([]int{p.BatchSize}, info.Shape...)
	}
	return shapes
}

// ExtractParams leitet Params aus einem Sample und einem Forward-Pass ab.
func ExtractParams(ctx context.Context, m Model, sample []tensor.Tensor, dyn *DynamicInfo) (Params, error) {
	if len(sample) == 0 {
		return Params{}, errors.New("model: cannot extract params from empty sample")
	}

	p := Params{BatchSize: 1}
	if len(sample[0].Shape) > 1 {
		p.BatchSize = sample[0].Shape[0]
	}

	for _, t := range sample {
		shape := t.Shape
		if len(shape) > 1 {
			shape = shape[1:]
		}
		p.InputInfos = append(p.InputInfos, InputInfo{Shape: slices.Clone(shape), DType: "float32"})
	}

	outputs, err := m.Run(ctx, sample...)
	if err != nil {
		return Params{}, fmt.Errorf("run model on sample: %w", err)
	}
	for _, o := range outputs {
		shape := o.Shape
		if len(shape) > 1 {
			shape = shape[1:]
		}
		p.OutputSizes = append(p.OutputSizes, slices.Clone(shape))
	}

	if dyn != nil {
		if err := dyn.validate(sample, outputs); err != nil {
			return Params{}, err
		}
		p.DynamicInfo = dyn
	}

	return p, nil
}

func (d *DynamicInfo) validate(inputs, outputs []tensor.Tensor) error {
	if len(d.Inputs) > 0 && len(d.Inputs) != len(inputs) {
		return fmt.Errorf("%w: %d input entries for %d inputs", ErrInvalidDynamicInfo, len(d.Inputs), len(inputs))
	}
	if len(d.Outputs) > 0 && len(d.Outputs) != len(outputs) {
		return fmt.Errorf("%w: %d output entries for %d outputs", ErrInvalidDynamicInfo, len(d.Outputs), len(outputs))
	}
	for i, axes := range d.Inputs {
		for axis := range axes {
			if axis < 0 || axis >= len(inputs[i].Shape) {
				return fmt.Errorf("%w: input %d has no axis %d", ErrInvalidDynamicInfo, i, axis)
			}
		}
	}
	for i, axes := range d.Outputs {
		for axis := range axes {
			if axis < 0 || axis >= len(outputs[i].Shape) {
				return fmt.Errorf("%w: output %d has no axis %d", ErrInvalidDynamicInfo, i, axis)
			}
		}
	}
	return nil
}
