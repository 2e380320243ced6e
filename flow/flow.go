// Package flow chains nodes into a pipeline that is trained node by node
// and phase by phase, each node seeing the data as transformed by the nodes
// before it.
package flow

import (
	"log/slog"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/train"
)

// Flow is an ordered sequence of nodes.
type Flow struct {
	nodes  []node.Node
	logger *slog.Logger
	// signals no node of the flow accepted
	orphans []node.Signal
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger used for training progress.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// New returns a flow over the given nodes. Known dimensions are propagated
// between neighbours and the dtype of the first node that has one is
// propagated to the others.
func New(nodes []node.Node, opts ...Option) (*Flow, error) {
	if len(nodes) == 0 {
		return nil, errors.New("flow: no nodes")
	}
	f := &Flow{nodes: append([]node.Node(nil), nodes...)}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With(slog.String("component", "flow"))
	if err := link(f.nodes); err != nil {
		return nil, err
	}
	return f, nil
}

// link checks that neighbouring dimensions and dtypes agree, fixing the
// unknown ones.
func link(nodes []node.Node) error {
	for i := 1; i < len(nodes); i++ {
		prev, next := nodes[i-1], nodes[i]
		switch {
		case prev.OutputDim() > 0:
			if err := next.SetInputDim(prev.OutputDim()); err != nil {
				return errors.Wrapf(err, "flow: node %d", i)
			}
		case next.InputDim() > 0:
			if err := prev.SetOutputDim(next.InputDim()); err != nil {
				return errors.Wrapf(err, "flow: node %d", i-1)
			}
		}
	}
	dtype := node.DtypeUnset
	for _, n := range nodes {
		if d := n.Dtype(); d != node.DtypeUnset {
			dtype = d
			break
		}
	}
	for i, n := range nodes {
		if err := n.SetDtype(dtype); err != nil {
			return errors.Wrapf(err, "flow: node %d", i)
		}
	}
	return nil
}

// Len returns the number of nodes.
func (f *Flow) Len() int { return len(f.nodes) }

// Node returns the i-th node.
func (f *Flow) Node(i int) node.Node { return f.nodes[i] }

// Nodes returns the nodes of the flow.
func (f *Flow) Nodes() []node.Node { return append([]node.Node(nil), f.nodes...) }

// SetNode replaces the i-th node, checking it against its neighbours.
func (f *Flow) SetNode(i int, n node.Node) error {
	if i < 0 || i >= len(f.nodes) {
		return errors.Errorf("flow: node index %d out of range [0, %d)", i, len(f.nodes))
	}
	nodes := f.Nodes()
	nodes[i] = n
	if err := link(nodes); err != nil {
		return err
	}
	f.nodes = nodes
	return nil
}

// Append adds n at the end of the flow.
func (f *Flow) Append(n node.Node) error {
	nodes := append(f.Nodes(), n)
	if err := link(nodes); err != nil {
		return err
	}
	f.nodes = nodes
	return nil
}

func (f *Flow) InputDim() int  { return f.nodes[0].InputDim() }
func (f *Flow) OutputDim() int { return f.nodes[len(f.nodes)-1].OutputDim() }

// RemainingPhases returns the sum of the remaining phases of the nodes.
func (f *Flow) RemainingPhases() int {
	total := 0
	for _, n := range f.nodes {
		total += n.RemainingPhases()
	}
	return total
}

// IsTrainable reports whether any node is trainable.
func (f *Flow) IsTrainable() bool {
	for _, n := range f.nodes {
		if n.IsTrainable() {
			return true
		}
	}
	return false
}

// IsTraining reports whether any node has phases left.
func (f *Flow) IsTraining() bool {
	for _, n := range f.nodes {
		if n.IsTraining() {
			return true
		}
	}
	return false
}

// IsInvertible reports whether every node is invertible.
func (f *Flow) IsInvertible() bool {
	for _, n := range f.nodes {
		if !n.IsInvertible() {
			return false
		}
	}
	return true
}

// Train trains every node that still has phases left. It accepts either one
// source shared by all nodes or one source per node. A nil source means the
// node needs no data: its phases are closed without training calls. Phases
// are numbered from 0 for every node, counting the phases this call trains.
func (f *Flow) Train(sources ...train.Source) error {
	if len(sources) != 1 && len(sources) != len(f.nodes) {
		return errors.Errorf("flow: %d data sources for %d nodes", len(sources), len(f.nodes))
	}
	for i, n := range f.nodes {
		if !n.IsTrainable() || !n.IsTraining() {
			continue
		}
		src := sources[0]
		if len(sources) > 1 {
			src = sources[i]
		}
		if err := f.trainNode(i, src); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) trainNode(i int, src train.Source) error {
	n := f.nodes[i]
	for phase := 0; n.IsTraining(); phase++ {
		f.logger.Debug("training node", "index", i, "node", n.ID(), "phase", phase)
		remaining := n.RemainingPhases()
		var batches []train.Batch
		if src != nil {
			var err error
			if batches, err = src.Batches(phase); err != nil {
				return err
			}
		}
		for _, b := range batches {
			if err := f.TrainStep(i, b.X, b.Options...); err != nil {
				return err
			}
			// the node closed the phase by itself
			if n.RemainingPhases() < remaining {
				break
			}
		}
		if n.RemainingPhases() == remaining {
			if err := f.StopStep(i); err != nil {
				return err
			}
		}
	}
	f.logger.Debug("node trained", "index", i, "node", n.ID())
	return nil
}

// TrainStep executes the nodes before i on x and feeds the result to the
// i-th node. It is the unit of work of external schedulers.
func (f *Flow) TrainStep(i int, x *mat.Dense, opts ...node.TrainOption) error {
	y, err := f.ExecuteUpTo(x, i)
	if err != nil {
		return err
	}
	if err := f.nodes[i].Train(y, opts...); err != nil {
		return err
	}
	f.dispatch()
	return nil
}

// StopStep closes the current phase of the i-th node.
func (f *Flow) StopStep(i int) error {
	if err := f.nodes[i].StopTraining(); err != nil {
		return err
	}
	f.dispatch()
	return nil
}

// dispatch delivers the pending signals of every node to the addressed
// switchers.
func (f *Flow) dispatch() {
	for _, n := range f.nodes {
		s, ok := n.(node.Signaler)
		if !ok {
			continue
		}
		for _, sig := range s.DrainSignals() {
			f.deliver(sig)
		}
	}
}

func (f *Flow) deliver(sig node.Signal) {
	for _, n := range f.nodes {
		target := node.Find(n, sig.Target)
		if target == nil {
			continue
		}
		sw, ok := target.(node.Switcher)
		if !ok {
			break
		}
		if err := sw.SetSwitch(sig.Key, sig.Value); err != nil {
			f.logger.Warn("signal rejected", "target", sig.Target, "key", sig.Key, "err", err)
		}
		return
	}
	f.logger.Debug("undeliverable signal", "target", sig.Target, "key", sig.Key)
	f.orphans = append(f.orphans, sig)
}

// DrainSignals returns the signals addressed to nodes outside the flow.
// A flow wrapped in a node hands them on to the enclosing structure.
func (f *Flow) DrainSignals() []node.Signal {
	out := f.orphans
	f.orphans = nil
	return out
}

// Execute runs x through every node.
func (f *Flow) Execute(x *mat.Dense) (*mat.Dense, error) {
	return f.ExecuteUpTo(x, len(f.nodes))
}

// ExecuteUpTo runs x through the first end nodes.
func (f *Flow) ExecuteUpTo(x *mat.Dense, end int) (*mat.Dense, error) {
	if end < 0 || end > len(f.nodes) {
		return nil, errors.Errorf("flow: node index %d out of range [0, %d]", end, len(f.nodes))
	}
	var err error
	for _, n := range f.nodes[:end] {
		if x, err = n.Execute(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Inverse runs y backwards through the inverse of every node.
func (f *Flow) Inverse(y *mat.Dense) (*mat.Dense, error) {
	var err error
	for i := len(f.nodes) - 1; i >= 0; i-- {
		if y, err = f.nodes[i].Inverse(y); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// Copy returns a deep copy of the flow made with the Copy of every node.
func (f *Flow) Copy() (*Flow, error) {
	nodes := make([]node.Node, len(f.nodes))
	for i, n := range f.nodes {
		cp, err := n.Copy()
		if err != nil {
			return nil, err
		}
		nodes[i] = cp
	}
	return &Flow{nodes: nodes, logger: f.logger}, nil
}
