// Package network implements neural network function approximators
// using Gorgonia
package network

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet implements a neural network function approximator. A
// NeuralNet populates a gorgonia.ExprGraph and exposes the nodes
// needed to run and train the network with an external VM.
type NeuralNet interface {
	// Graph returns the computational graph that the network is
	// built in
	Graph() *G.ExprGraph

	// Clone clones the network into a new computational graph,
	// copying the current weight values
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of observations per input batch
	BatchSize() int

	// Features returns the number of features in a single observation
	Features() int

	// Outputs returns the number of outputs predicted per observation
	Outputs() int

	// SetInput sets the value of the input node before running the
	// forward pass
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	Set(NeuralNet) error

	// Polyak sets the weights of the network to a Polyak average
	// between its current weights and those of another network
	Polyak(NeuralNet, float64) error

	// Learnables returns the learnable nodes of the network
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the value predicted by the last run of the
	// network's graph
	Output() G.Value

	// Prediction returns the node holding the network predictions
	Prediction() *G.Node
}

// setWeights sets the weights of dest to be equal to the weights of
// source
func setWeights(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// polyakWeights sets the weights of dest to be a Polyak average
// between its existing weights and the weights of source
func polyakWeights(dest, source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}
