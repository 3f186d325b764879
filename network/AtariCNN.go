package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// atariCNN implements the DQN convolutional architecture: three
// convolutional stages of decreasing spatial resolution and
// increasing channel depth, followed by a fully connected layer and a
// linear head with one output per action. ReLU nonlinearities sit
// between every layer pair.
//
// Inputs are stacks of grayscale frames in NCHW layout: the channel
// dimension indexes the stacked frames.
type atariCNN struct {
	g      *G.ExprGraph
	conv   []Layer
	fc     []Layer
	input  *G.Node // Rank-4 (batch, channels, height, width)
	flat   int     // Features after flattening the conv stack
	height int
	width  int

	channels   int
	numOutputs int
	batchSize  int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// Filter counts, kernel sizes, and strides of the three convolutional
// stages, and the width of the penultimate fully connected layer
var (
	convFilters = []int{32, 64, 64}
	convKernels = []int{8, 4, 3}
	convStrides = []int{4, 2, 1}
)

const denseSize int = 512

// NewAtariCNN creates and returns a new convolutional value network
// for stacked-frame pixel observations. The channels parameter is the
// number of stacked frames per observation, height and width give the
// spatial size of a single frame, and outputs is the number of
// predicted action values. The graph parameter g is populated with the
// network.
func NewAtariCNN(channels, height, width, batch, outputs int,
	g *G.ExprGraph, init G.InitWFn) (NeuralNet, error) {
	if channels < 1 {
		return nil, fmt.Errorf("newataricnn: channels must be positive "+
			"\n\thave(%v)", channels)
	}

	conv := make([]Layer, len(convFilters))
	in := channels
	h, w := height, width
	for i := range convFilters {
		layer := newConvLayer(g, in, convFilters[i], convKernels[i],
			convStrides[i], init, ReLU(), fmt.Sprintf("Conv%d", i))
		conv[i] = layer

		h = layer.outDim(h)
		w = layer.outDim(w)
		if h < 1 || w < 1 {
			return nil, fmt.Errorf("newataricnn: observation of size "+
				"(%v, %v) too small for convolutional stack", height, width)
		}
		in = convFilters[i]
	}
	flat := in * h * w

	fc := addFCLayers(
		g,
		[]int{denseSize, outputs},
		[]bool{true, true},
		[]*Activation{ReLU(), Identity()},
		init,
		flat,
		"Dense",
	)

	input := G.NewTensor(g, tensor.Float64, 4,
		G.WithShape(batch, channels, height, width),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	network := atariCNN{
		g:          g,
		conv:       conv,
		fc:         fc,
		input:      input,
		flat:       flat,
		height:     height,
		width:      width,
		channels:   channels,
		numOutputs: outputs,
		batchSize:  batch,
	}
	err := network.fwd(input)
	if err != nil {
		return nil, fmt.Errorf("newataricnn: could not compute forward "+
			"pass: %v", err)
	}

	return &network, nil
}

// Graph returns the computational graph of the atariCNN
func (a *atariCNN) Graph() *G.ExprGraph {
	return a.g
}

// Clone clones an atariCNN
func (a *atariCNN) Clone() (NeuralNet, error) {
	return a.CloneWithBatch(a.batchSize)
}

// CloneWithBatch clones an atariCNN with a new input batch size
func (a *atariCNN) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	input := G.NewTensor(graph, tensor.Float64, 4,
		G.WithShape(batchSize, a.channels, a.height, a.width),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	conv := make([]Layer, len(a.conv))
	for i := range a.conv {
		conv[i] = a.conv[i].CloneTo(graph)
	}
	fc := make([]Layer, len(a.fc))
	for i := range a.fc {
		fc[i] = a.fc[i].CloneTo(graph)
	}

	network := atariCNN{
		g:          graph,
		conv:       conv,
		fc:         fc,
		input:      input,
		flat:       a.flat,
		height:     a.height,
		width:      a.width,
		channels:   a.channels,
		numOutputs: a.numOutputs,
		batchSize:  batchSize,
	}
	err := network.fwd(input)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not compute forward "+
			"pass: %v", err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (a *atariCNN) BatchSize() int {
	return a.batchSize
}

// Features returns the number of features in a single flattened
// observation that the network takes as input
func (a *atariCNN) Features() int {
	return a.channels * a.height * a.width
}

// Outputs returns the number of outputs from the network
func (a *atariCNN) Outputs() int {
	return a.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass. The input is a batch of flattened, channels-first frame
// stacks.
func (a *atariCNN) SetInput(input []float64) error {
	if len(input) != a.Features()*a.batchSize {
		msg := "setinput: invalid number of inputs\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, a.Features()*a.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(a.batchSize, a.channels, a.height, a.width),
	)
	return G.Let(a.input, inputTensor)
}

// Set sets the weights of an atariCNN to be equal to the weights of
// another NeuralNet
func (a *atariCNN) Set(source NeuralNet) error {
	return setWeights(a, source)
}

// Polyak sets the weights of an atariCNN to be a Polyak average
// between its existing weights and the weights of another NeuralNet
func (a *atariCNN) Polyak(source NeuralNet, tau float64) error {
	return polyakWeights(a, source, tau)
}

// Learnables returns the learnable nodes in an atariCNN
func (a *atariCNN) Learnables() G.Nodes {
	// Lazy instantiation
	if a.learnables == nil {
		a.learnables = learnables(append(append([]Layer{}, a.conv...),
			a.fc...))
	}
	return a.learnables
}

// Model returns the learnable nodes with their gradients
func (a *atariCNN) Model() []G.ValueGrad {
	// Lazy instantiation
	if a.model == nil {
		a.model = model(a.Learnables())
	}
	return a.model
}

// Output returns the value of the prediction node from the last run of
// the network's graph
func (a *atariCNN) Output() G.Value {
	return a.predVal
}

// Prediction returns the node of the computational graph that holds
// the network predictions
func (a *atariCNN) Prediction() *G.Node {
	return a.prediction
}

// fwd performs the forward pass of the atariCNN on the input node
func (a *atariCNN) fwd(input *G.Node) error {
	pred := input
	for _, l := range a.conv {
		var err error
		pred, err = l.fwd(pred)
		if err != nil {
			return err
		}
	}

	// Flatten the convolutional stack before the dense layers
	pred, err := G.Reshape(pred, tensor.Shape{a.batchSize, a.flat})
	if err != nil {
		return err
	}

	for _, l := range a.fc {
		pred, err = l.fwd(pred)
		if err != nil {
			return err
		}
	}

	a.prediction = pred
	G.Read(a.prediction, &a.predVal)

	return nil
}
