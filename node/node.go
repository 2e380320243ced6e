// Package node defines the trainable node abstraction shared by every
// algorithm and container in the module.
//
// A node maps batches of samples (the rows of a *mat.Dense) of width
// InputDim to batches of width OutputDim. Trainable nodes go through one or
// more training phases; in each phase Train is called with any number of
// batches and StopTraining closes the phase. Execute and Inverse are only
// legal once every phase is closed.
package node

import (
	"gonum.org/v1/gonum/mat"
)

// Node is the capability contract of every processing element.
type Node interface {
	// ID returns the identity of the node, used to address signals and
	// in introspection output.
	ID() string

	// InputDim and OutputDim return the width of accepted and produced
	// batches, or 0 if not yet known.
	InputDim() int
	OutputDim() int
	Dtype() Dtype

	// SetInputDim, SetOutputDim and SetDtype fix a property. Setting an
	// already fixed property to a different value fails.
	SetInputDim(n int) error
	SetOutputDim(n int) error
	SetDtype(d Dtype) error

	IsTrainable() bool
	IsTraining() bool
	IsInvertible() bool

	// RemainingPhases returns the number of training phases not yet closed.
	RemainingPhases() int

	// Train feeds one batch to the current training phase.
	Train(x *mat.Dense, opts ...TrainOption) error
	// StopTraining closes the current training phase. If it fails the
	// node stays in the same phase and the call may be retried.
	StopTraining(opts ...TrainOption) error

	Execute(x *mat.Dense) (*mat.Dense, error)
	Inverse(y *mat.Dense) (*mat.Dense, error)

	// Copy returns an independent deep copy of the node, including its
	// training state.
	Copy() (Node, error)
}

// Container is implemented by nodes that hold other nodes.
type Container interface {
	Children() []Node
}

// Forker is implemented by nodes whose training statistics can be
// accumulated in independent copies and merged afterwards.
type Forker interface {
	// ForkSafe reports whether Fork may be called in the current state.
	ForkSafe() bool
	// Fork returns an empty accumulator at the same phase.
	Fork() (Node, error)
	// Join merges the statistics of a forked node into the receiver.
	Join(forked Node) error
}

// Signal is a message emitted by a node during training, addressed to
// another node by ID.
type Signal struct {
	Target string
	Key    string
	Value  bool
}

// Signaler is implemented by nodes that emit signals. DrainSignals returns
// the pending signals and clears them.
type Signaler interface {
	DrainSignals() []Signal
}

// Switcher is implemented by nodes that react to signals.
type Switcher interface {
	SetSwitch(key string, value bool) error
}
