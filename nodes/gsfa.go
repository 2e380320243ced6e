package nodes

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/covariance"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

// GSFAConfig configures a GSFA node.
type GSFAConfig struct {
	// TrainMode is the graph used when a training call does not select one.
	TrainMode   node.TrainMode    `json:"trainMode"`
	RankDeficit regularize.Method `json:"-"`
}

// MarshalJSON encodes the configuration with its rank deficit method.
func (c GSFAConfig) MarshalJSON() ([]byte, error) {
	type plain GSFAConfig
	return json.Marshal(struct {
		plain
		RankDeficit regularize.Marshaler `json:"rankDeficit"`
	}{plain(c), regularize.Marshaler{Method: c.RankDeficit}})
}

func (c *GSFAConfig) UnmarshalJSON(data []byte) error {
	type plain GSFAConfig
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

// DefaultGSFAConfig returns the default GSFA configuration.
func DefaultGSFAConfig() GSFAConfig {
	return GSFAConfig{TrainMode: node.Regular}
}

// GSFA is graph-based slow feature analysis. Samples are the vertices of
// a training graph with node weights; weighted edges connect samples whose
// outputs should be similar. The extracted features minimise the weighted
// mean squared output difference over the edges subject to unit weighted
// variance.
type GSFA struct {
	node.Base

	mode   node.TrainMode
	method regularize.Method

	moments *covariance.Weighted
	diffs   *covariance.Differences

	covMtx  *mat.SymDense
	dcovMtx *mat.SymDense
	avg     []float64
	sf      *mat.Dense
	d       []float64
	deficit int
}

// NewGSFA returns an untrained GSFA node.
func NewGSFA(cfg GSFAConfig, opts ...node.Option) *GSFA {
	g := &GSFA{
		Base:   node.NewBase(1, opts),
		mode:   cfg.TrainMode,
		method: cfg.RankDeficit,
	}
	if g.mode == "" {
		g.mode = node.Regular
	}
	if g.method == nil {
		g.method = regularize.None{}
	}
	g.moments = covariance.NewWeighted(g.InputDim())
	g.diffs = covariance.NewDifferences(g.InputDim())
	return g
}

func (g *GSFA) IsInvertible() bool { return true }

// SetRankDeficitMethod changes the rank deficit remedy.
func (g *GSFA) SetRankDeficitMethod(m regularize.Method) {
	if m == nil {
		m = regularize.None{}
	}
	g.method = m
}

// Train accumulates the statistics of x under the train mode selected by
// the options, or the configured one.
func (g *GSFA) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := g.CheckTrain(x); err != nil {
		return err
	}
	o := node.CollectTrainOptions(opts)
	mode := o.Mode
	if mode == "" {
		mode = g.mode
	}
	r, _ := x.Dims()
	switch mode {
	case node.Regular:
		if r < 2 {
			return common.Failf(common.ErrNoSamples, "gsfa needs at least two samples per batch, got %d", r)
		}
		if err := g.moments.Update(x, nil); err != nil {
			return err
		}
		return g.diffs.AddRows(TimeDerivative(x), 1)
	case node.Clustered:
		if len(o.Labels) != r {
			return &common.DimensionMismatch{What: "number of labels", Expected: r, Found: len(o.Labels)}
		}
		if err := g.moments.Update(x, nil); err != nil {
			return err
		}
		for _, members := range groupByLabel(o.Labels) {
			if len(members) < 2 {
				continue
			}
			cluster := mat.NewDense(len(members), g.InputDim(), nil)
			row := make([]float64, g.InputDim())
			for i, m := range members {
				cluster.SetRow(i, mat.Row(row, m, x))
			}
			if err := g.diffs.AddGraph(cluster, complete(len(members))); err != nil {
				return err
			}
		}
		return nil
	case node.Graph:
		if o.EdgeWeights == nil {
			return errors.New("gsfa: graph train mode needs edge weights")
		}
		if n := o.EdgeWeights.SymmetricDim(); n != r {
			return &common.DimensionMismatch{What: "edge weight dimension", Expected: r, Found: n}
		}
		if err := g.moments.Update(x, o.NodeWeights); err != nil {
			return err
		}
		return g.diffs.AddGraph(x, o.EdgeWeights)
	}
	return errors.Errorf("gsfa: unknown train mode %q", mode)
}

// groupByLabel returns the sample indices of every label, in label order.
func groupByLabel(labels []int) [][]int {
	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([][]int, len(keys))
	for i, k := range keys {
		out[i] = groups[k]
	}
	return out
}

// complete returns the unit edge weights of a fully connected graph.
func complete(n int) *mat.SymDense {
	w := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w.SetSym(i, j, 1)
		}
	}
	return w
}

// StopTraining solves the graph-based slow feature eigenproblem.
func (g *GSFA) StopTraining(opts ...node.TrainOption) error {
	if err := g.CheckStop(); err != nil {
		return err
	}
	cov, avg, err := g.moments.Fix()
	if err != nil {
		return err
	}
	dcov, err := g.diffs.Fix()
	if err != nil {
		return err
	}
	res, err := solveSlow(g.method, dcov, cov, g.OutputDim())
	if err != nil {
		return err
	}
	if res.RankDeficit > 0 {
		g.Logger().Info("rank deficit removed",
			slog.String("node", g.ID()),
			slog.String("method", g.method.Name()),
			slog.Int("deficit", res.RankDeficit))
	}
	g.covMtx, g.dcovMtx = cov, dcov
	g.avg = avg
	g.sf = res.Vectors
	g.d = res.Values
	g.deficit = res.RankDeficit
	if err := g.SetOutputDim(len(g.d)); err != nil {
		return err
	}
	g.FinishPhase()
	return nil
}

func (g *GSFA) Execute(x *mat.Dense) (*mat.Dense, error) {
	return g.ExecuteN(x, g.OutputDim())
}

// ExecuteN projects x onto the n slowest features.
func (g *GSFA) ExecuteN(x *mat.Dense, n int) (*mat.Dense, error) {
	if err := g.CheckExecute(x); err != nil {
		return nil, err
	}
	if err := checkColumns(n, g.OutputDim()); err != nil {
		return nil, err
	}
	return g.Cast(project(x, g.avg, g.sf, n)), nil
}

func (g *GSFA) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := g.CheckInverse(y, g.IsInvertible()); err != nil {
		return nil, err
	}
	x, err := unproject(y, g.avg, g.sf)
	if err != nil {
		return nil, err
	}
	return g.Cast(x), nil
}

// ReduceOutputDim keeps only the n slowest features of a trained node.
func (g *GSFA) ReduceOutputDim(n int) error {
	if g.IsTraining() {
		return common.ErrTrainingNotFinished
	}
	if err := checkColumns(n, g.OutputDim()); err != nil {
		return err
	}
	d, _ := g.sf.Dims()
	g.sf = mat.DenseCopyOf(g.sf.Slice(0, d, 0, n))
	g.d = g.d[:n:n]
	g.ForceOutputDim(n)
	return nil
}

// D returns the delta values of the features, slowest first.
func (g *GSFA) D() []float64 { return cloneFloats(g.d) }

// SF returns the filter matrix with one column per output.
func (g *GSFA) SF() *mat.Dense { return cloneDense(g.sf) }

// Avg returns the weighted mean of the training data.
func (g *GSFA) Avg() []float64 { return cloneFloats(g.avg) }

// CovMtx returns the weighted covariance matrix of the training data.
func (g *GSFA) CovMtx() *mat.SymDense { return cloneSym(g.covMtx) }

// DcovMtx returns the mean weighted outer product of the edge differences.
func (g *GSFA) DcovMtx() *mat.SymDense { return cloneSym(g.dcovMtx) }

func (g *GSFA) RankDeficit() int { return g.deficit }

func (g *GSFA) ForkSafe() bool { return g.IsTraining() }

// Fork returns a GSFA node with empty statistics in the same phase.
func (g *GSFA) Fork() (node.Node, error) {
	if !g.ForkSafe() {
		return nil, common.ErrTrainingFinished
	}
	return &GSFA{
		Base:    g.Base,
		mode:    g.mode,
		method:  g.method,
		moments: covariance.NewWeighted(g.InputDim()),
		diffs:   covariance.NewDifferences(g.InputDim()),
	}, nil
}

// Join merges the statistics of a forked GSFA node.
func (g *GSFA) Join(forked node.Node) error {
	f, ok := forked.(*GSFA)
	if !ok {
		return errors.Errorf("gsfa: cannot join %s", node.Kind(forked))
	}
	if f.moments.Len() == 0 {
		return nil
	}
	if err := g.SetInputDim(f.InputDim()); err != nil {
		return err
	}
	if err := g.moments.Merge(f.moments); err != nil {
		return err
	}
	return g.diffs.Merge(f.diffs)
}

func (g *GSFA) Copy() (node.Node, error) {
	cp := *g
	cp.moments = g.moments.Clone()
	cp.diffs = g.diffs.Clone()
	cp.covMtx = cloneSym(g.covMtx)
	cp.dcovMtx = cloneSym(g.dcovMtx)
	cp.avg = cloneFloats(g.avg)
	cp.sf = cloneDense(g.sf)
	cp.d = cloneFloats(g.d)
	return &cp, nil
}
