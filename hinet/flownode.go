package hinet

import (
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/flow"
	"github.com/fwmeng88/mdp-toolkit/node"
)

// FlowNode wraps a flow as a single node. Each training phase of the
// FlowNode is one phase of the first node of the flow still training, so
// the node has as many phases as the flow has left.
type FlowNode struct {
	node.Base
	flow *flow.Flow
}

// NewFlowNode wraps f. The flow may already be partly or fully trained.
func NewFlowNode(f *flow.Flow, opts ...node.Option) (*FlowNode, error) {
	n := &FlowNode{Base: node.NewBase(0, opts), flow: f}
	if d := n.Base.InputDim(); d > 0 {
		if err := n.SetInputDim(d); err != nil {
			return nil, err
		}
	}
	if d := n.Base.OutputDim(); d > 0 {
		if err := n.SetOutputDim(d); err != nil {
			return nil, err
		}
	}
	if d := n.Base.Dtype(); d != node.DtypeUnset {
		if err := n.SetDtype(d); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Flow returns the wrapped flow.
func (n *FlowNode) Flow() *flow.Flow { return n.flow }

// Children returns the nodes of the flow.
func (n *FlowNode) Children() []node.Node { return n.flow.Nodes() }

func (n *FlowNode) InputDim() int  { return n.flow.InputDim() }
func (n *FlowNode) OutputDim() int { return n.flow.OutputDim() }

func (n *FlowNode) SetInputDim(d int) error {
	return n.flow.Node(0).SetInputDim(d)
}

func (n *FlowNode) SetOutputDim(d int) error {
	return n.flow.Node(n.flow.Len() - 1).SetOutputDim(d)
}

// Dtype returns the dtype of the first node.
func (n *FlowNode) Dtype() node.Dtype { return n.flow.Node(0).Dtype() }

// SetDtype sets the dtype of every node of the flow.
func (n *FlowNode) SetDtype(d node.Dtype) error {
	for _, c := range n.flow.Nodes() {
		if err := c.SetDtype(d); err != nil {
			return err
		}
	}
	return nil
}

func (n *FlowNode) IsTrainable() bool    { return n.flow.IsTrainable() }
func (n *FlowNode) IsTraining() bool     { return n.flow.IsTraining() }
func (n *FlowNode) IsInvertible() bool   { return n.flow.IsInvertible() }
func (n *FlowNode) RemainingPhases() int { return n.flow.RemainingPhases() }

// current returns the index of the first node still training.
func (n *FlowNode) current() (int, error) {
	if !n.IsTrainable() {
		return 0, common.ErrNotTrainable
	}
	for i, c := range n.flow.Nodes() {
		if c.IsTraining() {
			return i, nil
		}
	}
	return 0, common.ErrTrainingFinished
}

// Train feeds x, executed through the nodes before it, to the first node
// still training.
func (n *FlowNode) Train(x *mat.Dense, opts ...node.TrainOption) error {
	i, err := n.current()
	if err != nil {
		return err
	}
	return n.flow.TrainStep(i, x, opts...)
}

// StopTraining closes the current phase of the first node still training.
func (n *FlowNode) StopTraining(opts ...node.TrainOption) error {
	i, err := n.current()
	if err != nil {
		return err
	}
	return n.flow.StopStep(i)
}

func (n *FlowNode) Execute(x *mat.Dense) (*mat.Dense, error) {
	return n.flow.Execute(x)
}

func (n *FlowNode) Inverse(y *mat.Dense) (*mat.Dense, error) {
	return n.flow.Inverse(y)
}

// DrainSignals returns the signals of the flow that no node of the flow
// accepted.
func (n *FlowNode) DrainSignals() []node.Signal {
	return n.flow.DrainSignals()
}

// Copy copies the flow with the Copy of every node.
func (n *FlowNode) Copy() (node.Node, error) {
	f, err := n.flow.Copy()
	if err != nil {
		return nil, err
	}
	cp := *n
	cp.flow = f
	return &cp, nil
}
