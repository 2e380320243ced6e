// Package rowwise provides helpers for nodes whose output row depends only
// on the matching input row.
package rowwise

import (
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

const (
	minGrain = 50
	maxGrain = 1000
)

// Batch creates the Func used by one goroutine. It exists so that a Func
// may keep scratch memory without racing with the other goroutines.
type Batch interface {
	NewFunc() Func
}

// Func maps a single input row to a single output row.
type Func interface {
	Apply(in, out []float64)
}

// BatchFunc adapts a stateless function to Batch.
type BatchFunc func(in, out []float64)

func (f BatchFunc) NewFunc() Func { return f }

func (f BatchFunc) Apply(in, out []float64) { f(in, out) }

// Apply computes every row of the output in parallel. The output has the
// rows of x and outputDim columns.
func Apply(batch Batch, x *mat.Dense, outputDim int) (*mat.Dense, error) {
	if err := common.CheckBatch(x); err != nil {
		return nil, err
	}
	if outputDim <= 0 {
		return nil, &common.DimensionMismatch{What: "row output dimension", Expected: 1, Found: outputDim}
	}
	nSamples, _ := x.Dims()
	out := mat.NewDense(nSamples, outputDim, nil)
	f := func(start, end int) {
		p := batch.NewFunc()
		for i := start; i < end; i++ {
			p.Apply(x.RawRowView(i), out.RawRowView(i))
		}
	}
	common.ParallelFor(nSamples, common.GetGrainSize(nSamples, minGrain, maxGrain), f)
	return out, nil
}
