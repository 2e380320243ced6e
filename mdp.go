// Package mdp is a toolkit of trainable data processing nodes.
//
// The building blocks live in sub-packages:
//
//	node        the Node contract, training state machine and signals
//	nodes       PCA, SFA, GSFA, iGSFA, FDA and helper nodes
//	scale       per-component rescaling nodes
//	polynomial  polynomial expansion
//	covariance  streaming covariance accumulators
//	regularize  generalized eigensolvers and rank deficit remedies
//	flow        sequences of nodes trained one after the other
//	hinet       hierarchical networks: flow nodes, layers and switchboards
//	train       data sources and sampling for training
//
// A typical use builds a flow, trains it from a train.Source and executes
// it:
//
//	f, err := flow.New([]node.Node{
//		nodes.NewPCA(nodes.DefaultPCAConfig(), node.WithOutputDim(10)),
//		nodes.NewSFA(nodes.DefaultSFAConfig()),
//	})
//	if err != nil { ... }
//	if err := f.Train(train.Array(x)); err != nil { ... }
//	y, err := f.Execute(x)
package mdp
