package nodes

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

// ScalingMethod selects the per-feature scale applied to the slow part of
// an iGSFA output.
type ScalingMethod string

const (
	ScalingNone          ScalingMethod = "none"
	ScalingDataDependent ScalingMethod = "data_dependent"
	ScalingSensitivity   ScalingMethod = "sensitivity_based"
	ScalingQR            ScalingMethod = "QR_decomposition"
)

// DeltaThreshold decides how many slow features iGSFA keeps: either an
// explicit count or every feature whose delta value is below a bound.
type DeltaThreshold struct {
	count   int
	bound   float64
	isCount bool
}

// DeltaCount keeps exactly n slow features.
func DeltaCount(n int) DeltaThreshold { return DeltaThreshold{count: n, isCount: true} }

// DeltaBound keeps the slow features with a delta value below v.
func DeltaBound(v float64) DeltaThreshold { return DeltaThreshold{bound: v} }

func (t DeltaThreshold) String() string {
	if t.isCount {
		return fmt.Sprintf("count(%d)", t.count)
	}
	return fmt.Sprintf("bound(%g)", t.bound)
}

// IGSFAConfig configures an iGSFA node.
type IGSFAConfig struct {
	// MaxLengthSlowPart bounds the number of slow features. Zero means the
	// output dimension.
	MaxLengthSlowPart int            `json:"maxLengthSlowPart"`
	Scaling           ScalingMethod  `json:"scaling"`
	DeltaThreshold    DeltaThreshold `json:"-"`
	// ReconstructWithSFA subtracts the linear reconstruction of the slow
	// part from the data before the residual is analysed. Nodes with it
	// set stop training at the end of their first training call.
	ReconstructWithSFA bool              `json:"reconstructWithSFA"`
	TrainMode          node.TrainMode    `json:"trainMode"`
	RankDeficit        regularize.Method `json:"-"`
}

// DefaultIGSFAConfig returns the default iGSFA configuration.
func DefaultIGSFAConfig() IGSFAConfig {
	return IGSFAConfig{
		Scaling:            ScalingSensitivity,
		DeltaThreshold:     DeltaBound(1.9999),
		ReconstructWithSFA: true,
		TrainMode:          node.Regular,
	}
}

// IGSFA is information-preserving GSFA. Its output is the concatenation of
// a slow part, the slowest GSFA features selected by the delta threshold
// and scaled per feature, and a fast part, the principal components of what
// the slow part leaves unexplained.
type IGSFA struct {
	node.Base
	cfg IGSFAConfig

	gsfa    *GSFA
	maxSlow int

	avg    []float64
	k      int
	scales []float64
	recon  *mat.Dense // k×D reconstruction of the input from the slow features
	vres   *mat.Dense // D×m principal directions of the residual
	evar   []float64
	proj   *mat.Dense
}

// NewIGSFA returns an untrained iGSFA node.
func NewIGSFA(cfg IGSFAConfig, opts ...node.Option) (*IGSFA, error) {
	switch cfg.Scaling {
	case "":
		cfg.Scaling = ScalingNone
	case ScalingNone, ScalingDataDependent, ScalingSensitivity, ScalingQR:
	default:
		return nil, errors.Errorf("igsfa: unknown slow feature scaling method %q", cfg.Scaling)
	}
	if !cfg.ReconstructWithSFA && cfg.Scaling != ScalingNone && cfg.Scaling != ScalingDataDependent {
		return nil, errors.Errorf("igsfa: scaling method %q needs ReconstructWithSFA", cfg.Scaling)
	}
	if cfg.DeltaThreshold.isCount && cfg.DeltaThreshold.count < 0 {
		return nil, errors.Errorf("igsfa: negative delta threshold %d", cfg.DeltaThreshold.count)
	}
	if cfg.MaxLengthSlowPart < 0 {
		return nil, errors.Errorf("igsfa: negative maximum slow part length %d", cfg.MaxLengthSlowPart)
	}
	if cfg.TrainMode == "" {
		cfg.TrainMode = node.Regular
	}
	return &IGSFA{Base: node.NewBase(1, opts), cfg: cfg}, nil
}

func (n *IGSFA) IsInvertible() bool { return true }

// targetOutputDim returns the output dimension, the input dimension if it
// was not set.
func (n *IGSFA) targetOutputDim() int {
	if out := n.OutputDim(); out > 0 {
		return out
	}
	return n.InputDim()
}

func (n *IGSFA) initSlow() error {
	out := n.targetOutputDim()
	if out > n.InputDim() {
		return &common.DimensionMismatch{What: "output dimension larger than input dimension", Expected: n.InputDim(), Found: out}
	}
	n.maxSlow = n.cfg.MaxLengthSlowPart
	if n.maxSlow == 0 {
		n.maxSlow = out
	}
	n.maxSlow = min(n.maxSlow, n.InputDim())
	n.gsfa = NewGSFA(GSFAConfig{TrainMode: n.cfg.TrainMode, RankDeficit: n.cfg.RankDeficit},
		node.WithID(n.ID()+"/gsfa"),
		node.WithInputDim(n.InputDim()),
		node.WithOutputDim(n.maxSlow),
		node.WithLogger(n.Logger()))
	return nil
}

// Train accumulates the GSFA statistics of x. With ReconstructWithSFA the
// training phase is closed at the end of the call.
func (n *IGSFA) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := n.CheckTrain(x); err != nil {
		return err
	}
	if n.gsfa == nil {
		if err := n.initSlow(); err != nil {
			return err
		}
	}
	if err := n.gsfa.Train(x, opts...); err != nil {
		return err
	}
	if n.cfg.ReconstructWithSFA {
		return n.StopTraining()
	}
	return nil
}

// StopTraining selects the slow features and computes the residual
// principal components.
func (n *IGSFA) StopTraining(opts ...node.TrainOption) error {
	if err := n.CheckStop(); err != nil {
		return err
	}
	if n.gsfa == nil {
		return common.Failf(common.ErrNoSamples, "igsfa was stopped before any training data")
	}
	out := n.targetOutputDim()
	t := n.cfg.DeltaThreshold
	if t.isCount && (t.count > out || t.count > n.maxSlow) {
		return common.Failf(common.ErrThreshold, "delta threshold %d exceeds output dimension %d or maximum slow part length %d",
			t.count, out, n.maxSlow)
	}
	if n.gsfa.IsTraining() {
		if err := n.gsfa.StopTraining(); err != nil {
			return err
		}
	}
	deltas := n.gsfa.d
	k := t.count
	if !t.isCount {
		k = 0
		for k < len(deltas) && deltas[k] < t.bound {
			k++
		}
	}
	k = min(k, out, len(deltas))

	dim := n.InputDim()
	cov := n.gsfa.covMtx
	var wk, recon *mat.Dense
	if k > 0 {
		wk = mat.DenseCopyOf(n.gsfa.sf.Slice(0, dim, 0, k))
		recon = &mat.Dense{}
		recon.Mul(wk.T(), cov)
	}
	scales, err := slowScales(n.cfg.Scaling, wk, recon)
	if err != nil {
		return err
	}

	var blocks []*mat.Dense
	if k > 0 {
		scaled := mat.DenseCopyOf(wk)
		scaled.Apply(func(i, j int, v float64) float64 { return v * scales[j] }, wk)
		blocks = append(blocks, scaled)
	}
	var vres *mat.Dense
	var evar []float64
	if m := out - k; m > 0 {
		// the residual is x·P with P = I - Wk·A removing the reconstruction
		var p *mat.Dense
		rcov := mat.Symmetric(cov)
		if n.cfg.ReconstructWithSFA && k > 0 {
			p = identity(dim)
			var wa mat.Dense
			wa.Mul(wk, recon)
			p.Sub(p, &wa)
			var cp, pcp mat.Dense
			cp.Mul(cov, p)
			pcp.Mul(p.T(), &cp)
			rcov = regularize.Symmetrize(&pcp)
		}
		vals, vecs, err := regularize.Eig(rcov)
		if err != nil {
			return err
		}
		d, v := descending(vals, vecs)
		vres = mat.DenseCopyOf(v.Slice(0, dim, 0, m))
		evar = d[:m:m]
		resid := vres
		if p != nil {
			resid = &mat.Dense{}
			resid.Mul(p, vres)
		}
		blocks = append(blocks, resid)
	}
	proj, err := common.HStack(blocks...)
	if err != nil {
		return err
	}

	n.avg = n.gsfa.avg
	n.k = k
	n.scales = scales
	n.recon = recon
	n.vres = vres
	n.evar = evar
	n.proj = proj
	if err := n.SetOutputDim(out); err != nil {
		return err
	}
	n.FinishPhase()
	return nil
}

// slowScales returns the positive scale of every slow feature.
func slowScales(method ScalingMethod, wk, recon *mat.Dense) ([]float64, error) {
	if wk == nil {
		return nil, nil
	}
	dim, k := wk.Dims()
	scales := make([]float64, k)
	col := make([]float64, dim)
	switch method {
	case ScalingNone:
		for j := range scales {
			scales[j] = 1
		}
	case ScalingDataDependent:
		for j := range scales {
			scales[j] = floats.Norm(recon.RawRowView(j), 2)
		}
	case ScalingSensitivity:
		for j := range scales {
			scales[j] = 1 / floats.Norm(mat.Col(col, j, wk), 2)
		}
	case ScalingQR:
		var qr mat.QR
		qr.Factorize(recon.T())
		var r mat.Dense
		qr.RTo(&r)
		for j := range scales {
			scales[j] = math.Abs(r.At(j, j))
		}
	default:
		return nil, errors.Errorf("igsfa: unknown slow feature scaling method %q", method)
	}
	for j, s := range scales {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			scales[j] = 1
		}
	}
	return scales, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Execute returns the slow part followed by the residual principal
// components.
func (n *IGSFA) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckExecute(x); err != nil {
		return nil, err
	}
	return n.Cast(project(x, n.avg, n.proj, n.OutputDim())), nil
}

// Inverse reconstructs the input from the slow part and the residual
// components.
func (n *IGSFA) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckInverse(y, n.IsInvertible()); err != nil {
		return nil, err
	}
	if !n.cfg.ReconstructWithSFA {
		x, err := unproject(y, n.avg, n.proj)
		if err != nil {
			return nil, err
		}
		return n.Cast(x), nil
	}
	r, _ := y.Dims()
	dim := n.InputDim()
	x := mat.NewDense(r, dim, nil)
	if n.k > 0 {
		slow := mat.DenseCopyOf(common.ColumnBlock(y, 0, n.k))
		slow.Apply(func(i, j int, v float64) float64 { return v / n.scales[j] }, slow)
		x.Mul(slow, n.recon)
	}
	if n.vres != nil {
		var fast mat.Dense
		fast.Mul(common.ColumnBlock(y, n.k, n.OutputDim()), n.vres.T())
		x.Add(x, &fast)
	}
	common.AddRow(x, n.avg)
	return n.Cast(x), nil
}

// SlowPartLength returns the number of slow features in the output.
func (n *IGSFA) SlowPartLength() int { return n.k }

// D returns the delta values of the candidate slow features.
func (n *IGSFA) D() []float64 {
	if n.gsfa == nil {
		return nil
	}
	return n.gsfa.D()
}

// Scales returns the scale applied to each slow feature.
func (n *IGSFA) Scales() []float64 { return cloneFloats(n.scales) }

// ResidualVariances returns the variances of the residual components.
func (n *IGSFA) ResidualVariances() []float64 { return cloneFloats(n.evar) }

func (n *IGSFA) Copy() (node.Node, error) {
	cp := *n
	if n.gsfa != nil {
		g, err := n.gsfa.Copy()
		if err != nil {
			return nil, err
		}
		cp.gsfa = g.(*GSFA)
	}
	cp.avg = cloneFloats(n.avg)
	cp.scales = cloneFloats(n.scales)
	cp.recon = cloneDense(n.recon)
	cp.vres = cloneDense(n.vres)
	cp.evar = cloneFloats(n.evar)
	cp.proj = cloneDense(n.proj)
	return &cp, nil
}
