package nodes

import (
	"encoding/json"
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/covariance"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

// SFAConfig configures an SFA node.
type SFAConfig struct {
	// IncludeLastSample controls whether the last sample of each batch
	// enters the covariance estimate. Excluding it makes the covariance and
	// the derivative covariance use the same number of samples.
	IncludeLastSample bool `json:"includeLastSample"`
	// RankDeficit is the remedy used when the covariance matrix is
	// singular. Nil solves directly.
	RankDeficit regularize.Method `json:"-"`
}

// MarshalJSON encodes the configuration with its rank deficit method.
func (c SFAConfig) MarshalJSON() ([]byte, error) {
	type plain SFAConfig
	return json.Marshal(struct {
		plain
		RankDeficit regularize.Marshaler `json:"rankDeficit"`
	}{plain(c), regularize.Marshaler{Method: c.RankDeficit}})
}

func (c *SFAConfig) UnmarshalJSON(data []byte) error {
	type plain SFAConfig
	aux := struct {
		*plain
		RankDeficit regularize.Marshaler `json:"rankDeficit"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.RankDeficit = aux.RankDeficit.Method
	return nil
}

// DefaultSFAConfig returns the default SFA configuration.
func DefaultSFAConfig() SFAConfig {
	return SFAConfig{IncludeLastSample: true}
}

// SFA extracts the linear features of its input that vary most slowly in
// time. Rows of each batch are consecutive time samples.
type SFA struct {
	node.Base

	includeLastSample bool
	method            regularize.Method

	cov  *covariance.Matrix
	dcov *covariance.Matrix

	covMtx  *mat.SymDense
	dcovMtx *mat.SymDense
	avg     []float64
	sf      *mat.Dense
	d       []float64
	tlen    int
	dtlen   int
	deficit int
}

// NewSFA returns an untrained SFA node.
func NewSFA(cfg SFAConfig, opts ...node.Option) *SFA {
	s := &SFA{
		Base:              node.NewBase(1, opts),
		includeLastSample: cfg.IncludeLastSample,
		method:            cfg.RankDeficit,
	}
	if s.method == nil {
		s.method = regularize.None{}
	}
	s.cov = covariance.New(s.InputDim())
	s.dcov = covariance.New(s.InputDim())
	return s
}

func (s *SFA) IsInvertible() bool { return true }

// SetRankDeficitMethod changes the rank deficit remedy. It may be called
// after a failed StopTraining to retry with another method.
func (s *SFA) SetRankDeficitMethod(m regularize.Method) {
	if m == nil {
		m = regularize.None{}
	}
	s.method = m
}

// Train accumulates the covariance of x and of its time derivative. Each
// batch must hold at least two samples.
func (s *SFA) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := s.CheckTrain(x); err != nil {
		return err
	}
	o := node.CollectTrainOptions(opts)
	if o.IncludeLastSample != nil {
		s.includeLastSample = *o.IncludeLastSample
	}
	r, _ := x.Dims()
	if r < 2 {
		return common.Failf(common.ErrNoSamples, "sfa needs at least two time samples per batch, got %d", r)
	}
	data := x
	if !s.includeLastSample {
		data = common.RowBlock(x, 0, r-1)
	}
	if err := s.cov.Update(data); err != nil {
		return err
	}
	return s.dcov.Update(TimeDerivative(x))
}

// StopTraining solves the slow feature eigenproblem. On failure the node
// keeps its statistics and stays in training.
func (s *SFA) StopTraining(opts ...node.TrainOption) error {
	if err := s.CheckStop(); err != nil {
		return err
	}
	cov, avg, tlen, err := s.cov.Fix(true)
	if err != nil {
		return err
	}
	dcov, _, dtlen, err := s.dcov.Fix(false)
	if err != nil {
		return err
	}
	res, err := solveSlow(s.method, dcov, cov, s.OutputDim())
	if err != nil {
		return err
	}
	if res.RankDeficit > 0 {
		s.Logger().Info("rank deficit removed",
			slog.String("node", s.ID()),
			slog.String("method", s.method.Name()),
			slog.Int("deficit", res.RankDeficit))
	}
	s.covMtx, s.dcovMtx = cov, dcov
	s.avg = avg
	s.tlen, s.dtlen = tlen, dtlen
	s.sf = res.Vectors
	s.d = res.Values
	s.deficit = res.RankDeficit
	if err := s.SetOutputDim(len(s.d)); err != nil {
		return err
	}
	s.FinishPhase()
	return nil
}

// Execute projects x onto the slow features, slowest first.
func (s *SFA) Execute(x *mat.Dense) (*mat.Dense, error) {
	return s.ExecuteN(x, s.OutputDim())
}

// ExecuteN projects x onto the n slowest features.
func (s *SFA) ExecuteN(x *mat.Dense, n int) (*mat.Dense, error) {
	if err := s.CheckExecute(x); err != nil {
		return nil, err
	}
	if err := checkColumns(n, s.OutputDim()); err != nil {
		return nil, err
	}
	return s.Cast(project(x, s.avg, s.sf, n)), nil
}

// Inverse maps y back to input space through the pseudo-inverse of the
// filter matrix.
func (s *SFA) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := s.CheckInverse(y, s.IsInvertible()); err != nil {
		return nil, err
	}
	x, err := unproject(y, s.avg, s.sf)
	if err != nil {
		return nil, err
	}
	return s.Cast(x), nil
}

// ReduceOutputDim keeps only the n slowest features of a trained node.
func (s *SFA) ReduceOutputDim(n int) error {
	if s.IsTraining() {
		return common.ErrTrainingNotFinished
	}
	if err := checkColumns(n, s.OutputDim()); err != nil {
		return err
	}
	d, _ := s.sf.Dims()
	s.sf = mat.DenseCopyOf(s.sf.Slice(0, d, 0, n))
	s.d = s.d[:n:n]
	s.ForceOutputDim(n)
	return nil
}

// D returns the eigenvalues of the slow features, which equal the mean
// squared derivative of each unit-variance output.
func (s *SFA) D() []float64 { return cloneFloats(s.d) }

// SF returns the filter matrix with one column per output.
func (s *SFA) SF() *mat.Dense { return cloneDense(s.sf) }

// Avg returns the mean of the training data.
func (s *SFA) Avg() []float64 { return cloneFloats(s.avg) }

// Bias returns the offset subtracted from x·SF in Execute.
func (s *SFA) Bias() []float64 {
	if s.sf == nil {
		return nil
	}
	return common.RowTimes(s.avg, s.sf)
}

// CovMtx returns the covariance matrix of the training data.
func (s *SFA) CovMtx() *mat.SymDense { return cloneSym(s.covMtx) }

// DcovMtx returns the second moment matrix of the time derivative.
func (s *SFA) DcovMtx() *mat.SymDense { return cloneSym(s.dcovMtx) }

// Tlen returns the number of samples in the covariance estimate.
func (s *SFA) Tlen() int { return s.tlen }

// Dtlen returns the number of samples in the derivative estimate.
func (s *SFA) Dtlen() int { return s.dtlen }

// RankDeficit returns the number of directions dropped by the rank
// deficit remedy.
func (s *SFA) RankDeficit() int { return s.deficit }

// IncludeLastSample reports the current last-sample setting.
func (s *SFA) IncludeLastSample() bool { return s.includeLastSample }

// EtaValues returns the eta value of each output, the number of
// oscillations a sine wave with the same delta value makes in t samples.
func (s *SFA) EtaValues(t float64) []float64 {
	eta := make([]float64, len(s.d))
	for i, d := range s.d {
		eta[i] = t / (2 * math.Pi) * math.Sqrt(d)
	}
	return eta
}

func (s *SFA) ForkSafe() bool { return s.IsTraining() }

// Fork returns an SFA node with empty statistics in the same phase.
func (s *SFA) Fork() (node.Node, error) {
	if !s.ForkSafe() {
		return nil, common.ErrTrainingFinished
	}
	f := &SFA{
		Base:              s.Base,
		includeLastSample: s.includeLastSample,
		method:            s.method,
		cov:               covariance.New(s.InputDim()),
		dcov:              covariance.New(s.InputDim()),
	}
	return f, nil
}

// Join merges the statistics of a forked SFA node.
func (s *SFA) Join(forked node.Node) error {
	f, ok := forked.(*SFA)
	if !ok {
		return errors.Errorf("sfa: cannot join %s", node.Kind(forked))
	}
	if f.cov.Len() == 0 {
		return nil
	}
	if err := s.SetInputDim(f.InputDim()); err != nil {
		return err
	}
	if err := s.cov.Merge(f.cov); err != nil {
		return err
	}
	return s.dcov.Merge(f.dcov)
}

func (s *SFA) Copy() (node.Node, error) {
	cp := *s
	cp.cov = s.cov.Clone()
	cp.dcov = s.dcov.Clone()
	cp.covMtx = cloneSym(s.covMtx)
	cp.dcovMtx = cloneSym(s.dcovMtx)
	cp.avg = cloneFloats(s.avg)
	cp.sf = cloneDense(s.sf)
	cp.d = cloneFloats(s.d)
	return &cp, nil
}
