package nodes

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/node"
)

// Identity returns its input unchanged.
type Identity struct {
	node.Base
}

// NewIdentity returns an identity node.
func NewIdentity(opts ...node.Option) *Identity {
	n := &Identity{Base: node.NewBase(0, opts)}
	n.syncDims()
	return n
}

func (n *Identity) syncDims() {
	switch {
	case n.InputDim() == 0 && n.OutputDim() > 0:
		_ = n.Base.SetInputDim(n.OutputDim())
	case n.OutputDim() == 0:
		n.ForceOutputDim(n.InputDim())
	}
}

func (n *Identity) SetInputDim(d int) error {
	if err := n.Base.SetInputDim(d); err != nil {
		return err
	}
	return n.Base.SetOutputDim(d)
}

func (n *Identity) SetOutputDim(d int) error { return n.SetInputDim(d) }

func (n *Identity) IsInvertible() bool { return true }

func (n *Identity) Train(x *mat.Dense, opts ...node.TrainOption) error {
	return n.CheckTrain(x)
}

func (n *Identity) StopTraining(opts ...node.TrainOption) error {
	return n.CheckStop()
}

func (n *Identity) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckExecute(x); err != nil {
		return nil, err
	}
	n.syncDims()
	return n.Cast(mat.DenseCopyOf(x)), nil
}

func (n *Identity) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckInverse(y, true); err != nil {
		return nil, err
	}
	return n.Cast(mat.DenseCopyOf(y)), nil
}

func (n *Identity) Copy() (node.Node, error) {
	cp := *n
	return &cp, nil
}

// NoiseConfig configures a Noise node.
type NoiseConfig struct {
	// Std is the standard deviation of the Gaussian noise.
	Std float64 `json:"std"`
	// Multiplicative multiplies the input by (1 + noise) instead of adding
	// the noise.
	Multiplicative bool  `json:"multiplicative"`
	Seed           int64 `json:"seed"`
}

// Noise adds Gaussian noise to its input.
type Noise struct {
	node.Base
	cfg NoiseConfig
	rnd *rand.Rand
}

// NewNoise returns a noise node.
func NewNoise(cfg NoiseConfig, opts ...node.Option) *Noise {
	n := &Noise{Base: node.NewBase(0, opts), cfg: cfg, rnd: rand.New(rand.NewSource(cfg.Seed))}
	if n.OutputDim() == 0 {
		n.ForceOutputDim(n.InputDim())
	}
	return n
}

func (n *Noise) SetInputDim(d int) error {
	if err := n.Base.SetInputDim(d); err != nil {
		return err
	}
	return n.Base.SetOutputDim(d)
}

func (n *Noise) IsInvertible() bool { return false }

func (n *Noise) Train(x *mat.Dense, opts ...node.TrainOption) error {
	return n.CheckTrain(x)
}

func (n *Noise) StopTraining(opts ...node.TrainOption) error {
	return n.CheckStop()
}

func (n *Noise) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckExecute(x); err != nil {
		return nil, err
	}
	if n.OutputDim() == 0 {
		n.ForceOutputDim(n.InputDim())
	}
	y := mat.DenseCopyOf(x)
	y.Apply(func(i, j int, v float64) float64 {
		e := n.cfg.Std * n.rnd.NormFloat64()
		if n.cfg.Multiplicative {
			return v * (1 + e)
		}
		return v + e
	}, y)
	return n.Cast(y), nil
}

func (n *Noise) Inverse(y *mat.Dense) (*mat.Dense, error) {
	return nil, n.CheckInverse(y, false)
}

func (n *Noise) Copy() (node.Node, error) {
	cp := *n
	cp.rnd = rand.New(rand.NewSource(n.cfg.Seed))
	return &cp, nil
}
