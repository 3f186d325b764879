package network

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// convLayer implements a 2D convolutional layer of a neural network.
// Inputs are rank-4 nodes in NCHW layout. No padding is used, so each
// stage reduces the spatial resolution while its filter count
// increases the channel depth.
type convLayer struct {
	weights *G.Node // Shape (filters, inChannels, kernel, kernel)
	bias    *G.Node // Shape (1, filters, 1, 1)
	kernel  int
	stride  int
	act     *Activation
}

// newConvLayer returns a new convolutional layer with the given number
// of input channels and output filters, adding its weights to the
// graph g
func newConvLayer(g *G.ExprGraph, in, filters, kernel, stride int,
	init G.InitWFn, act *Activation, name string) *convLayer {
	weights := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(filters, in, kernel, kernel),
		G.WithName(name+"W"),
		G.WithInit(init),
	)

	bias := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(1, filters, 1, 1),
		G.WithName(name+"B"),
		G.WithInit(G.Zeroes()),
	)

	return &convLayer{
		weights: weights,
		bias:    bias,
		kernel:  kernel,
		stride:  stride,
		act:     act,
	}
}

// fwd adds the forward pass of the convLayer to the computational
// graph
func (c *convLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Conv2d(
		x,
		c.weights,
		tensor.Shape{c.kernel, c.kernel},
		[]int{0, 0},
		[]int{c.stride, c.stride},
		[]int{1, 1},
	)
	if err != nil {
		return nil, err
	}

	if c.Bias() != nil {
		// Broadcast the bias along the batch and spatial dimensions
		x = G.Must(G.BroadcastAdd(x, c.Bias(), nil, []byte{0, 2, 3}))
	}
	if c.Activation() == nil || c.Activation().IsIdentity() {
		return x, nil
	}
	return c.Activation().fwd(x)
}

// CloneTo clones a convLayer to a new computational graph
func (c *convLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if c.Weights() != nil {
		newWeights = c.Weights().CloneTo(g)
	}
	if c.Bias() != nil {
		newBias = c.Bias().CloneTo(g)
	}

	return &convLayer{
		weights: newWeights,
		bias:    newBias,
		kernel:  c.kernel,
		stride:  c.stride,
		act:     c.act,
	}
}

func (c *convLayer) Activation() *Activation {
	return c.act
}

func (c *convLayer) Bias() *G.Node {
	return c.bias
}

func (c *convLayer) Weights() *G.Node {
	return c.weights
}

// outDim returns the spatial output size of the layer given its input
// size
func (c *convLayer) outDim(in int) int {
	return (in-c.kernel)/c.stride + 1
}
