package convert

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/tensor"
)

// buildNetwork setzt Layer in der gegebenen Reihenfolge aus "<name>.weight"
// und optional "<name>.bias" zusammen.
func buildNetwork(order []string, acts []model.Activation, tensors map[string]tensor.Tensor) (*model.Network, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no layers found", model.ErrInvalidNetwork)
	}

	net := &model.Network{}
	for i, name := range order {
		w, ok := tensors[name+".weight"]
		if !ok {
			return nil, fmt.Errorf("%w: missing tensor %s.weight", model.ErrInvalidNetwork, name)
		}

		act := model.ReLU
		if i == len(order)-1 {
			act = model.Identity
		}
		if i < len(acts) && acts[i] != "" {
			act = acts[i]
		}

		l := model.Layer{Name: name, Weight: w, Activation: act}
		if b, ok := tensors[name+".bias"]; ok {
			l.Bias = b
		}
		net.Layers = append(net.Layers, l)
	}

	if err := net.Validate(); err != nil {
		return nil, err
	}
	return net, nil
}

// layerOrder leitet die Layer-Reihenfolge aus Tensor-Namen ab.
// Zahlen im Namen werden numerisch verglichen (fc2 vor fc10).
func layerOrder(keys []string) []string {
	var order []string
	for _, k := range keys {
		prefix, suffix, ok := cutLast(k)
		if !ok || suffix != "weight" {
			continue
		}
		order = append(order, prefix)
	}
	slices.SortFunc(order, naturalCompare)
	return order
}

// cutLast trennt am letzten Punkt: "net.0.weight" -> "net.0", "weight".
func cutLast(s string) (string, string, bool) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, ra := leadingNumber(a)
			nb, rb := leadingNumber(b)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func leadingNumber(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, _ := strconv.Atoi(s[:i])
	return n, s[i:]
}
