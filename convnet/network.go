package convnet

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/cnnbench/cnnbench/ml"
)

// Network is an immutable, fully resolved layer graph.
type Network struct {
	Name       string
	Input      ml.Shape
	Output     ml.Shape
	Format     ml.DataFormat
	PhaseTrain bool
	Layers     []*Layer

	calls  []LayerSpec
	counts *orderedmap.OrderedMap[Kind, int]
}

func (n *Network) BatchSize() int {
	return n.Input[0]
}

// Params returns the total number of trainable parameters.
func (n *Network) Params() int64 {
	var total int64
	for _, l := range n.Layers {
		total += l.Params()
	}
	return total
}

// FLOPs returns the forward-pass operation count for the whole batch.
func (n *Network) FLOPs() int64 {
	var total int64
	for _, l := range n.Layers {
		total += l.FLOPs(n.Format)
	}
	return total
}

func (n *Network) ParamBytes(dtype ml.DType) int64 {
	return n.Params() * int64(dtype.Size())
}

// ActivationBytes sums the input and every materialised layer output.
// Reshape and dropout reuse their input buffer.
func (n *Network) ActivationBytes(dtype ml.DType) int64 {
	total := int64(n.Input.Size())
	for _, l := range n.Layers {
		switch l.Spec.Kind {
		case KindReshape, KindDropout:
		default:
			total += int64(l.Out.Size())
		}
	}
	return total * int64(dtype.Size())
}

// LayerCount is the number of layers of one kind.
type LayerCount struct {
	Kind  Kind
	Count int
}

// Counts reports how many layers of each kind the network has, in the order
// the kinds first appeared.
func (n *Network) Counts() []LayerCount {
	out := make([]LayerCount, 0, n.counts.Len())
	for pair := n.counts.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, LayerCount{Kind: pair.Key, Count: pair.Value})
	}
	return out
}

// Layer returns the layer with the given name.
func (n *Network) Layer(name string) (*Layer, bool) {
	for _, l := range n.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

// Definition returns the builder calls that reproduce this network.
func (n *Network) Definition() *Definition {
	return &Definition{
		Name:       n.Name,
		Input:      append([]int(nil), n.Input...),
		DataFormat: n.Format,
		PhaseTrain: n.PhaseTrain,
		Layers:     append([]LayerSpec(nil), n.calls...),
	}
}
