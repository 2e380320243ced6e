package hinet

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
)

// Layer runs its nodes side by side. Every node reads its own contiguous
// block of input columns, in order, and the outputs are concatenated.
type Layer struct {
	node.Base
	nodes []node.Node
	// offsets[i] is the first input column of node i; with sameInput every
	// node reads the whole input.
	offsets   []int
	sameInput bool
}

// NewLayer returns a layer over nodes. Every node needs a known input
// dimension; the layer input dimension is their sum.
func NewLayer(nodes []node.Node, opts ...node.Option) (*Layer, error) {
	l := &Layer{Base: node.NewBase(0, opts)}
	if err := l.init(nodes, false); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Layer) init(nodes []node.Node, sameInput bool) error {
	if len(nodes) == 0 {
		return errors.New("layer: no nodes")
	}
	l.nodes = append([]node.Node(nil), nodes...)
	l.sameInput = sameInput
	l.offsets = make([]int, len(nodes)+1)
	for i, n := range nodes {
		dim := n.InputDim()
		if dim == 0 {
			return errors.Errorf("layer: node %d (%s) has no input dimension", i, n.ID())
		}
		if sameInput {
			if dim != nodes[0].InputDim() {
				return &common.DimensionMismatch{What: "same input layer node input dimension", Expected: nodes[0].InputDim(), Found: dim}
			}
			l.offsets[i+1] = dim
			continue
		}
		l.offsets[i+1] = l.offsets[i] + dim
	}
	if err := l.Base.SetInputDim(l.offsets[len(nodes)]); err != nil {
		return err
	}
	dtype := l.Base.Dtype()
	for _, n := range nodes {
		if dtype != node.DtypeUnset {
			break
		}
		dtype = n.Dtype()
	}
	return l.SetDtype(dtype)
}

// Children returns the nodes of the layer.
func (l *Layer) Children() []node.Node { return append([]node.Node(nil), l.nodes...) }

// block returns the columns of x read by node i.
func (l *Layer) block(x *mat.Dense, i int) *mat.Dense {
	if l.sameInput {
		return x
	}
	return common.ColumnBlock(x, l.offsets[i], l.offsets[i+1])
}

// OutputDim returns the sum of the output dimensions of the nodes, or 0 if
// one of them is unknown.
func (l *Layer) OutputDim() int {
	total := 0
	for _, n := range l.nodes {
		d := n.OutputDim()
		if d == 0 {
			return 0
		}
		total += d
	}
	return total
}

// SetOutputDim checks d against the known output dimension. It cannot
// split an output dimension between the nodes.
func (l *Layer) SetOutputDim(d int) error {
	if out := l.OutputDim(); out != 0 && out != d {
		return &common.DimensionMismatch{What: "output dimension", Expected: out, Found: d}
	}
	return nil
}

// SetDtype sets the dtype of the layer and of every node.
func (l *Layer) SetDtype(d node.Dtype) error {
	if err := l.Base.SetDtype(d); err != nil {
		return err
	}
	for _, n := range l.nodes {
		if err := n.SetDtype(d); err != nil {
			return err
		}
	}
	return nil
}

// IsTrainable reports whether any node is trainable.
func (l *Layer) IsTrainable() bool {
	for _, n := range l.nodes {
		if n.IsTrainable() {
			return true
		}
	}
	return false
}

// IsTraining reports whether any node is still training.
func (l *Layer) IsTraining() bool {
	for _, n := range l.nodes {
		if n.IsTraining() {
			return true
		}
	}
	return false
}

// RemainingPhases is the largest number of phases left in a node.
func (l *Layer) RemainingPhases() int {
	phases := 0
	for _, n := range l.nodes {
		phases = max(phases, n.RemainingPhases())
	}
	return phases
}

// IsInvertible reports whether every node is invertible.
func (l *Layer) IsInvertible() bool {
	if l.sameInput {
		return false
	}
	for _, n := range l.nodes {
		if !n.IsInvertible() {
			return false
		}
	}
	return true
}

func (l *Layer) checkTrain(x *mat.Dense) error {
	if !l.IsTrainable() {
		return common.ErrNotTrainable
	}
	if !l.IsTraining() {
		return common.ErrTrainingFinished
	}
	return l.CheckInput(x)
}

// Train feeds every node that is still training with its block of x.
func (l *Layer) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := l.checkTrain(x); err != nil {
		return err
	}
	for i, n := range l.nodes {
		if !n.IsTraining() {
			continue
		}
		if err := n.Train(l.block(x, i), opts...); err != nil {
			return err
		}
	}
	return nil
}

// StopTraining closes the current phase of every node still training.
func (l *Layer) StopTraining(opts ...node.TrainOption) error {
	if !l.IsTrainable() {
		return common.ErrNotTrainable
	}
	if !l.IsTraining() {
		return common.ErrTrainingFinished
	}
	for _, n := range l.nodes {
		if !n.IsTraining() {
			continue
		}
		if err := n.StopTraining(opts...); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) Execute(x *mat.Dense) (*mat.Dense, error) {
	if l.IsTraining() {
		return nil, common.ErrTrainingNotFinished
	}
	if err := l.CheckInput(x); err != nil {
		return nil, err
	}
	blocks := make([]*mat.Dense, len(l.nodes))
	for i, n := range l.nodes {
		y, err := n.Execute(l.block(x, i))
		if err != nil {
			return nil, err
		}
		blocks[i] = y
	}
	y, err := common.HStack(blocks...)
	if err != nil {
		return nil, err
	}
	return l.Cast(y), nil
}

// Inverse splits y by the output dimensions of the nodes and concatenates
// their inverses.
func (l *Layer) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if !l.IsInvertible() {
		return nil, common.ErrNotInvertible
	}
	if l.IsTraining() {
		return nil, common.ErrTrainingNotFinished
	}
	if err := common.CheckBatch(y); err != nil {
		return nil, err
	}
	out := l.OutputDim()
	if _, c := y.Dims(); c != out {
		return nil, &common.DimensionMismatch{What: "output dimension", Expected: out, Found: c}
	}
	blocks := make([]*mat.Dense, len(l.nodes))
	start := 0
	for i, n := range l.nodes {
		end := start + n.OutputDim()
		x, err := n.Inverse(common.ColumnBlock(y, start, end))
		if err != nil {
			return nil, err
		}
		blocks[i] = x
		start = end
	}
	x, err := common.HStack(blocks...)
	if err != nil {
		return nil, err
	}
	return l.Cast(x), nil
}

// DrainSignals collects the pending signals of the nodes.
func (l *Layer) DrainSignals() []node.Signal {
	return drainAll(l.nodes)
}

// copyNodes returns deep copies of the nodes, failing with the first copy
// error.
func copyNodes(nodes []node.Node) ([]node.Node, error) {
	cp := make([]node.Node, len(nodes))
	for i, n := range nodes {
		c, err := n.Copy()
		if err != nil {
			return nil, err
		}
		cp[i] = c
	}
	return cp, nil
}

func (l *Layer) Copy() (node.Node, error) {
	nodes, err := copyNodes(l.nodes)
	if err != nil {
		return nil, err
	}
	cp := *l
	cp.nodes = nodes
	return &cp, nil
}

// SameInputLayer is a layer whose nodes all read the whole input. It is not
// invertible.
type SameInputLayer struct {
	Layer
}

// NewSameInputLayer returns a layer over nodes sharing one input dimension.
func NewSameInputLayer(nodes []node.Node, opts ...node.Option) (*SameInputLayer, error) {
	l := &SameInputLayer{Layer{Base: node.NewBase(0, opts)}}
	if err := l.init(nodes, true); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SameInputLayer) Copy() (node.Node, error) {
	nodes, err := copyNodes(l.nodes)
	if err != nil {
		return nil, err
	}
	cp := *l
	cp.nodes = nodes
	return &cp, nil
}

// drainAll collects the signals of every distinct Signaler in nodes.
func drainAll(nodes []node.Node) []node.Signal {
	var out []node.Signal
	seen := make(map[node.Node]bool, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		if s, ok := n.(node.Signaler); ok {
			out = append(out, s.DrainSignals()...)
		}
	}
	return out
}
