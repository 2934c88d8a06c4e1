package data

import (
	"fmt"

	"github.com/speedster/speedster/tensor"
)

// Tuple buendelt mehrere Eingaben eines Loader-Elements.
type Tuple []tensor.Tensor

// Loader liefert rohe Tupel, deren Elemente tensor.Tensor, *tensor.Tensor,
// Tuple oder nil (kein Label) sind.
type Loader func(yield func([]any) bool)

// FromLoader normalisiert die Tupel eines Loaders. Unterstuetzt werden
// (input, label), ((input1, input2, ...), label) und
// (input1, input2, ..., label).
func FromLoader(l Loader) (*Manager, error) {
	var samples []Sample
	var err error
	l(func(raw []any) bool {
		var s Sample
		s, err = sampleFromTuple(raw)
		if err != nil {
			err = fmt.Errorf("batch %d: %w", len(samples), err)
			return false
		}
		samples = append(samples, s)
		return true
	})
	if err != nil {
		return nil, err
	}
	return New(samples)
}

func sampleFromTuple(raw []any) (Sample, error) {
	if len(raw) < 2 {
		return Sample{}, fmt.Errorf("%w: tuple of length %d", ErrInvalidFormat, len(raw))
	}

	label, err := asLabel(raw[len(raw)-1])
	if err != nil {
		return Sample{}, err
	}

	head := raw[:len(raw)-1]
	if tup, ok := head[0].(Tuple); ok {
		if len(head) != 1 {
			return Sample{}, fmt.Errorf("%w: input tuple must be followed only by the label", ErrInvalidFormat)
		}
		if len(tup) == 0 {
			return Sample{}, fmt.Errorf("%w: empty input tuple", ErrInvalidFormat)
		}
		return Sample{Inputs: []tensor.Tensor(tup), Label: label}, nil
	}

	inputs := make([]tensor.Tensor, 0, len(head))
	for i, v := range head {
		t, ok := asTensor(v)
		if !ok {
			return Sample{}, fmt.Errorf("%w: element %d has type %T", ErrInvalidFormat, i, v)
		}
		inputs = append(inputs, t)
	}
	return Sample{Inputs: inputs, Label: label}, nil
}

func asTensor(v any) (tensor.Tensor, bool) {
	switch t := v.(type) {
	case tensor.Tensor:
		return t, true
	case *tensor.Tensor:
		if t == nil {
			return tensor.Tensor{}, false
		}
		return *t, true
	default:
		return tensor.Tensor{}, false
	}
}

func asLabel(v any) (*tensor.Tensor, error) {
	if v == nil {
		return nil, nil
	}
	if p, ok := v.(*tensor.Tensor); ok && p == nil {
		return nil, nil
	}
	t, ok := asTensor(v)
	if !ok {
		return nil, fmt.Errorf("%w: label has type %T", ErrInvalidFormat, v)
	}
	return &t, nil
}
