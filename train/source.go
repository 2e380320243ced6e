// Package train describes the data fed to nodes and flows during training.
package train

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
)

// Batch is one training call: the rows and the options passed with them.
type Batch struct {
	X       *mat.Dense
	Options []node.TrainOption
}

// Source yields the batches of a training phase. It must be possible to
// ask a source for the batches of the same phase more than once.
type Source interface {
	Batches(phase int) ([]Batch, error)
}

// Sequence is a fixed list of batches used for every phase.
type Sequence []Batch

func (s Sequence) Batches(int) ([]Batch, error) { return s, nil }

// Array returns a source made of the single batch x.
func Array(x *mat.Dense, opts ...node.TrainOption) Sequence {
	return Sequence{{X: x, Options: opts}}
}

// Blocks splits the rows of x into consecutive batches of at most size rows.
// Labels, if not nil, are split along.
func Blocks(x *mat.Dense, size int, labels []int) (Sequence, error) {
	if err := common.CheckBatch(x); err != nil {
		return nil, err
	}
	r, _ := x.Dims()
	if size <= 0 {
		return nil, errors.Errorf("train: block size must be positive, found %d", size)
	}
	if labels != nil && len(labels) != r {
		return nil, &common.DimensionMismatch{What: "number of labels", Expected: r, Found: len(labels)}
	}
	var seq Sequence
	for start := 0; start < r; start += size {
		end := min(start+size, r)
		b := Batch{X: common.RowBlock(x, start, end)}
		if labels != nil {
			b.Options = []node.TrainOption{node.Labels(labels[start:end])}
		}
		seq = append(seq, b)
	}
	return seq, nil
}

// Phases uses a different source for every training phase. Phases past the
// last source reuse it.
type Phases []Source

func (p Phases) Batches(phase int) ([]Batch, error) {
	if len(p) == 0 {
		return nil, common.ErrNoData
	}
	return p[min(phase, len(p)-1)].Batches(phase)
}

// Sampled draws N batches of rows of X with the Sampler.
type Sampled struct {
	X       *mat.Dense
	Labels  []int
	Sampler Sampler
	N       int
}

func (s Sampled) Batches(int) ([]Batch, error) {
	if err := common.CheckBatch(s.X); err != nil {
		return nil, err
	}
	r, c := s.X.Dims()
	if s.Labels != nil && len(s.Labels) != r {
		return nil, &common.DimensionMismatch{What: "number of labels", Expected: r, Found: len(s.Labels)}
	}
	sampler := s.Sampler
	if sampler == nil {
		sampler = &All{}
	}
	if err := sampler.Init(r); err != nil {
		return nil, err
	}
	batches := make([]Batch, s.N)
	for i := range batches {
		idx := sampler.Iterate()
		x := mat.NewDense(len(idx), c, nil)
		var labels []int
		for k, j := range idx {
			x.SetRow(k, s.X.RawRowView(j))
			if s.Labels != nil {
				labels = append(labels, s.Labels[j])
			}
		}
		batches[i] = Batch{X: x}
		if labels != nil {
			batches[i].Options = []node.TrainOption{node.Labels(labels)}
		}
	}
	return batches, nil
}
