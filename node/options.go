package node

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

// Dtype is the numeric element type of a node's outputs.
type Dtype int

const (
	// DtypeUnset means the dtype is fixed by the first batch the node sees.
	DtypeUnset Dtype = iota
	Float64
	Float32
)

func (d Dtype) String() string {
	switch d {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	default:
		return "unset"
	}
}

// Config holds the properties common to all nodes.
type Config struct {
	ID        string
	InputDim  int
	OutputDim int
	Dtype     Dtype
	Logger    *slog.Logger
}

// Option sets a field of a node Config.
type Option func(*Config)

func WithID(id string) Option {
	return func(c *Config) { c.ID = id }
}

func WithInputDim(n int) Option {
	return func(c *Config) { c.InputDim = n }
}

func WithOutputDim(n int) Option {
	return func(c *Config) { c.OutputDim = n }
}

func WithDtype(d Dtype) Option {
	return func(c *Config) { c.Dtype = d }
}

// WithLogger sets the logger a node reports numeric events to. The default
// is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// NewConfig applies the options to an empty Config.
func NewConfig(opts []Option) Config {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// TrainMode selects how GSFA-type nodes build their training graph.
type TrainMode string

const (
	// Regular connects consecutive samples.
	Regular TrainMode = "regular"
	// Clustered fully connects the samples sharing a label.
	Clustered TrainMode = "clustered"
	// Graph uses explicit node and edge weights.
	Graph TrainMode = "graph"
)

// TrainOptions holds the per-call arguments of Train and StopTraining.
// Nodes ignore the fields they do not use.
type TrainOptions struct {
	IncludeLastSample *bool
	Labels            []int
	NodeWeights       []float64
	EdgeWeights       mat.Symmetric
	Mode              TrainMode
}

// TrainOption sets a field of TrainOptions.
type TrainOption func(*TrainOptions)

// IncludeLastSample tells SFA-type nodes whether the last sample of each
// batch enters the covariance estimate. The setting persists for later calls.
func IncludeLastSample(b bool) TrainOption {
	return func(o *TrainOptions) { o.IncludeLastSample = &b }
}

// Labels attaches one class label per sample.
func Labels(labels []int) TrainOption {
	return func(o *TrainOptions) { o.Labels = labels }
}

// WithGraph attaches node weights and symmetric edge weights to a batch and
// selects the Graph train mode.
func WithGraph(nodeWeights []float64, edgeWeights mat.Symmetric) TrainOption {
	return func(o *TrainOptions) {
		o.NodeWeights = nodeWeights
		o.EdgeWeights = edgeWeights
		o.Mode = Graph
	}
}

// Mode sets the train mode.
func Mode(m TrainMode) TrainOption {
	return func(o *TrainOptions) { o.Mode = m }
}

// CollectTrainOptions applies opts to an empty TrainOptions.
func CollectTrainOptions(opts []TrainOption) TrainOptions {
	var o TrainOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
