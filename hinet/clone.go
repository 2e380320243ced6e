package hinet

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
)

// UseCopies is the switch key toggling independent replicas in a
// CloneLayer.
const UseCopies = "use_copies"

// CloneLayer is a layer of n replicas of one node. By default the replicas
// share the node, so that training on any block trains all of them. Once
// copies are in use every replica is an independent deep copy.
type CloneLayer struct {
	Layer
	node      node.Node
	useCopies bool
	pending   []node.Signal
}

// NewCloneLayer returns a layer of n replicas of nd sharing its state.
func NewCloneLayer(nd node.Node, n int, opts ...node.Option) (*CloneLayer, error) {
	if n <= 0 {
		return nil, errors.Errorf("clone layer: number of replicas must be positive, found %d", n)
	}
	nodes := make([]node.Node, n)
	for i := range nodes {
		nodes[i] = nd
	}
	l := &CloneLayer{Layer: Layer{Base: node.NewBase(0, opts)}, node: nd}
	if err := l.init(nodes, false); err != nil {
		return nil, err
	}
	return l, nil
}

// Node returns the shared node.
func (l *CloneLayer) Node() node.Node { return l.node }

// UseCopies reports whether the replicas are independent copies.
func (l *CloneLayer) UseCopies() bool { return l.useCopies }

// SetUseCopies switches between shared and independent replicas. Switching
// to copies deep-copies the shared node into every replica; switching back
// rebinds every replica to the shared node, dropping the copies.
func (l *CloneLayer) SetUseCopies(v bool) error {
	if v == l.useCopies {
		return nil
	}
	if v {
		for i := range l.nodes {
			c, err := l.node.Copy()
			if err != nil {
				return err
			}
			l.nodes[i] = c
		}
	} else {
		for i := range l.nodes {
			l.nodes[i] = l.node
		}
	}
	l.useCopies = v
	l.Logger().Info("clone layer replicas switched", "layer", l.ID(), "use_copies", v)
	return nil
}

// SetSwitch implements node.Switcher for the use_copies key.
func (l *CloneLayer) SetSwitch(key string, value bool) error {
	if key != UseCopies {
		return errors.Errorf("clone layer: unknown switch %q", key)
	}
	return l.SetUseCopies(value)
}

// Train trains the replicas on their blocks. Shared replicas train the one
// node on every block, until the node closes its phase by itself.
func (l *CloneLayer) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if l.useCopies {
		err := l.Layer.Train(x, opts...)
		l.collect()
		return err
	}
	if err := l.checkTrain(x); err != nil {
		return err
	}
	defer l.collect()
	for i := range l.nodes {
		if !l.node.IsTraining() {
			break
		}
		if err := l.node.Train(l.block(x, i), opts...); err != nil {
			return err
		}
	}
	return nil
}

// StopTraining closes the current phase of the shared node once, or of
// every copy.
func (l *CloneLayer) StopTraining(opts ...node.TrainOption) error {
	if l.useCopies {
		err := l.Layer.StopTraining(opts...)
		l.collect()
		return err
	}
	if !l.IsTrainable() {
		return common.ErrNotTrainable
	}
	err := l.node.StopTraining(opts...)
	l.collect()
	return err
}

// collect applies the pending signals addressed to the layer and keeps the
// others for DrainSignals.
func (l *CloneLayer) collect() {
	for _, sig := range drainAll(l.nodes) {
		if sig.Target != l.ID() {
			l.pending = append(l.pending, sig)
			continue
		}
		if err := l.SetSwitch(sig.Key, sig.Value); err != nil {
			l.Logger().Warn("signal rejected", "layer", l.ID(), "key", sig.Key, "err", err)
		}
	}
}

// DrainSignals returns the signals of the replicas not addressed to the
// layer itself.
func (l *CloneLayer) DrainSignals() []node.Signal {
	l.collect()
	out := l.pending
	l.pending = nil
	return out
}

func (l *CloneLayer) Copy() (node.Node, error) {
	shared, err := l.node.Copy()
	if err != nil {
		return nil, err
	}
	cp := *l
	cp.node = shared
	cp.pending = append([]node.Signal(nil), l.pending...)
	if l.useCopies {
		if cp.nodes, err = copyNodes(l.nodes); err != nil {
			return nil, err
		}
		return &cp, nil
	}
	cp.nodes = make([]node.Node, len(l.nodes))
	for i := range cp.nodes {
		cp.nodes[i] = shared
	}
	return &cp, nil
}
