// Command prof trains a two-layer hierarchical SFA network on random data
// under the CPU profiler.
package main

import (
	"flag"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/flow"
	"github.com/fwmeng88/mdp-toolkit/hinet"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/nodes"
	"github.com/fwmeng88/mdp-toolkit/polynomial"
	"github.com/fwmeng88/mdp-toolkit/train"
)

type options struct {
	grid, field, features int
	samples, block        int
	copies                bool
}

func main() {
	var (
		opts options
		dir  string
	)
	flag.IntVar(&opts.grid, "grid", 24, "side of the square input grid")
	flag.IntVar(&opts.field, "field", 6, "side of the first layer receptive fields")
	flag.IntVar(&opts.features, "features", 8, "slow features kept per field")
	flag.IntVar(&opts.samples, "samples", 20000, "number of time samples")
	flag.IntVar(&opts.block, "block", 2000, "samples per training batch")
	flag.BoolVar(&opts.copies, "copies", false, "train an independent node per field")
	flag.StringVar(&dir, "profile", filepath.Join(os.TempDir(), "mdp-prof"), "profile output directory")
	flag.Parse()

	runtime.GOMAXPROCS(max(1, runtime.NumCPU()-2))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	err := profiled(dir, func() error { return run(opts, logger) })
	if err != nil {
		logger.Error("profiling run failed", "err", err)
		os.Exit(1)
	}
}

// profiled runs fn under the CPU profiler and writes the profile to dir
// whether or not fn fails.
func profiled(dir string, fn func() error) error {
	defer profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook).Stop()
	return fn()
}

func run(opts options, logger *slog.Logger) error {
	net, err := buildNet(opts.grid, opts.field, opts.features, opts.copies)
	if err != nil {
		return errors.Wrap(err, "building network")
	}
	x := drift(opts.samples, opts.grid*opts.grid, rand.New(rand.NewSource(1)))
	seq, err := train.Blocks(x, opts.block, nil)
	if err != nil {
		return errors.Wrap(err, "splitting data")
	}

	start := time.Now()
	if err := net.Train(seq); err != nil {
		return errors.Wrap(err, "training")
	}
	logger.Info("trained", "nodes", net.Len(), "elapsed", time.Since(start))

	start = time.Now()
	y, err := net.Execute(x)
	if err != nil {
		return errors.Wrap(err, "executing")
	}
	_, c := y.Dims()
	logger.Info("executed", "outputDim", c, "elapsed", time.Since(start))
	return nil
}

// buildNet stacks two layers of quadratic SFA units: the first over
// half-overlapping fields of the grid, the second over 2x2 neighbourhoods
// of first layer fields.
func buildNet(grid, field, features int, copies bool) (*flow.Flow, error) {
	sb1, err := hinet.NewRectangular2dSwitchboard(hinet.Rect2dConfig{
		XInChannels: grid, YInChannels: grid,
		XFieldChannels: field, YFieldChannels: field,
		XFieldSpacing: field / 2, YFieldSpacing: field / 2,
	})
	if err != nil {
		return nil, err
	}
	layer1, err := sfaLayer(sb1.OutChannelDim(), features, sb1.OutputChannels(), copies)
	if err != nil {
		return nil, err
	}
	xOut, yOut := sb1.OutChannelsXY()
	sb2, err := hinet.NewRectangular2dSwitchboard(hinet.Rect2dConfig{
		XInChannels: xOut, YInChannels: yOut,
		XFieldChannels: 2, YFieldChannels: 2,
		XFieldSpacing: 1, YFieldSpacing: 1,
		InChannelDim: features,
	})
	if err != nil {
		return nil, err
	}
	layer2, err := sfaLayer(sb2.OutChannelDim(), features, sb2.OutputChannels(), copies)
	if err != nil {
		return nil, err
	}
	return flow.New([]node.Node{sb1, layer1, sb2, layer2})
}

// sfaLayer returns a layer of n replicas of a linear SFA reduction
// followed by a quadratic expansion and a second SFA.
func sfaLayer(in, features, n int, copies bool) (*hinet.CloneLayer, error) {
	reduce := nodes.NewSFA(nodes.DefaultSFAConfig(), node.WithInputDim(in), node.WithOutputDim(features))
	expand, err := polynomial.NewExpansion(2, node.WithInputDim(features))
	if err != nil {
		return nil, err
	}
	f, err := flow.New([]node.Node{
		nodes.NewNoise(nodes.NoiseConfig{Std: 1e-6}, node.WithInputDim(in)),
		reduce,
		expand,
		nodes.NewSFA(nodes.DefaultSFAConfig(), node.WithOutputDim(features)),
	})
	if err != nil {
		return nil, err
	}
	unit, err := hinet.NewFlowNode(f)
	if err != nil {
		return nil, err
	}
	layer, err := hinet.NewCloneLayer(unit, n)
	if err != nil {
		return nil, err
	}
	if err := layer.SetUseCopies(copies); err != nil {
		return nil, err
	}
	return layer, nil
}

// drift returns a slowly drifting random field: every component follows
// a sine of random frequency and phase plus white noise.
func drift(n, dim int, rnd *rand.Rand) *mat.Dense {
	freq := make([]float64, dim)
	phase := make([]float64, dim)
	for j := range freq {
		freq[j] = 1 + 20*rnd.Float64()
		phase[j] = 2 * math.Pi * rnd.Float64()
	}
	x := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		row := x.RawRowView(i)
		for j := range row {
			row[j] = math.Sin(2*math.Pi*freq[j]*t+phase[j]) + 0.1*rnd.NormFloat64()
		}
	}
	return x
}
