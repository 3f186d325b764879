// Package deepq implements the deep Q-learning algorithm. Action
// values are approximated with a neural network, gradient updates are
// computed on batches sampled from an experience replay buffer, and
// update targets are computed with a separate, periodically refreshed
// target network.
package deepq

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/karush17/pongrl/agent"
	"github.com/karush17/pongrl/agent/policy"
	"github.com/karush17/pongrl/environment"
	"github.com/karush17/pongrl/expreplay"
	"github.com/karush17/pongrl/network"
	"github.com/karush17/pongrl/solver"
	ts "github.com/karush17/pongrl/timestep"
	"github.com/karush17/pongrl/utils/floatutils"
)

// Bounds for the reported loss. The raw squared error can spike early
// in training, so the loss is clamped before being reported. The
// gradient computation is unaffected.
const (
	minLoss float64 = -1.0
	maxLoss float64 = 1.0
)

var _ agent.Agent = (*DeepQ)(nil)

// DeepQ implements the deep Q-learning algorithm
type DeepQ struct {
	behaviour   agent.EGreedyNNPolicy // Chooses actions in the environment
	behaviourVM G.VM

	trainNet   network.NeuralNet // Gradient updates are computed here
	trainNetVM G.VM
	solver     *solver.Solver

	targetNet   network.NeuralNet // Provides update targets
	targetNetVM G.VM

	// Input nodes of the training graph that are set on each update
	selectedActions       *G.Node
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node

	costVal  *G.Value
	lastLoss float64

	epsilon              policy.Schedule
	tau                  float64
	targetUpdateInterval int
	gradientSteps        int
	totalSteps           int
	eval                 bool

	replay     expreplay.ExperienceReplayer
	prevStep   ts.TimeStep
	numActions int
	batchSize  int
}

// New creates and returns a new DeepQ agent
func New(e environment.Environment, c Config, seed int64) (*DeepQ, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	// DeepQ only works with discrete, 1-dimensional actions starting
	// from 0
	actionSpec := e.ActionSpec()
	if actionSpec.Cardinality != environment.Discrete {
		return nil, fmt.Errorf("new: deepq does not support continuous " +
			"actions")
	}
	if actionSpec.Shape.Len() != 1 {
		return nil, fmt.Errorf("new: deepq does not support "+
			"multi-dimensional actions \n\twant(1) \n\thave(%v)",
			actionSpec.Shape.Len())
	}
	if actionSpec.LowerBound.AtVec(0) != 0 {
		return nil, fmt.Errorf("new: deepq actions must start from 0 "+
			"\n\thave(%v)", actionSpec.LowerBound.AtVec(0))
	}
	numActions := int(actionSpec.UpperBound.AtVec(0)) + 1

	features := e.ObservationSpec().Shape.Len()
	if c.ConvObservations &&
		c.FrameDepth*c.FrameSize*c.FrameSize != features {
		return nil, fmt.Errorf("new: observation size does not match "+
			"frame layout \n\twant(%v) \n\thave(%v)",
			c.FrameDepth*c.FrameSize*c.FrameSize, features)
	}
	batchSize := c.BatchSize()

	// Behaviour network with a batch size of 1 for action selection
	g := G.NewGraph()
	var behaviourNet network.NeuralNet
	var err error
	if c.ConvObservations {
		behaviourNet, err = network.NewAtariCNN(c.FrameDepth, c.FrameSize,
			c.FrameSize, 1, numActions, g, c.InitWFn.InitWFn())
	} else {
		behaviourNet, err = network.NewMultiHeadMLP(features, 1, numActions,
			g, c.PolicyLayers, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	}
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour "+
			"network: %v", err)
	}

	behaviour, err := policy.NewEGreedy(behaviourNet, c.EpsilonStart, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour "+
			"policy: %v", err)
	}
	behaviourVM := G.NewTapeMachine(behaviourNet.Graph())

	// The training and target networks share the behaviour network's
	// architecture and initial weights but predict on full batches
	trainNet, err := behaviourNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training "+
			"network: %v", err)
	}
	targetNet, err := behaviourNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target "+
			"network: %v", err)
	}
	targetNetVM := G.NewTapeMachine(targetNet.Graph())

	// Input nodes for the update targets, which are computed with the
	// target network and are constant with respect to the learned
	// weights
	gTrain := trainNet.Graph()
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetActionValues"))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("rewards"))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discounts"))

	// Update target: r + γ * max_a Q(s', a)
	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Select the predicted values of the actions that were taken
	selectedActions := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("selectedActions"))
	predictedValues := G.Must(G.HadamardProd(trainNet.Prediction(),
		selectedActions))
	predictedValues = G.Must(G.Sum(predictedValues, 1))

	// Mean squared TD error
	losses := G.Must(G.Sub(updateTarget, predictedValues))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))

	costVal := new(G.Value)
	G.Read(cost, costVal)

	// Compute gradients with respect to the training network weights
	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	trainNetVM := G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))

	// Scalar action indices are stored in the replay buffer and
	// one-hot encoded when a batch is sampled
	replay, err := c.ExpReplay.Create(features, 1, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create experience replay "+
			"buffer: %v", err)
	}

	return &DeepQ{
		behaviour:   behaviour,
		behaviourVM: behaviourVM,

		trainNet:   trainNet,
		trainNetVM: trainNetVM,
		solver:     c.Solver,

		targetNet:   targetNet,
		targetNetVM: targetNetVM,

		selectedActions:       selectedActions,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,

		costVal:  costVal,
		lastLoss: math.NaN(),

		epsilon:              c.epsilonSchedule(),
		tau:                  c.Tau,
		targetUpdateInterval: c.TargetUpdateInterval,

		replay:     replay,
		numActions: numActions,
		batchSize:  batchSize,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	d.prevStep = t
}

// Observe observes and records any timestep other than the first
// timestep
func (d *DeepQ) Observe(action mat.Vector, nextStep ts.TimeStep) {
	if !nextStep.First() {
		nextAction := mat.NewVecDense(1, []float64{-1.0})
		transition := ts.NewTransition(d.prevStep, action, nextStep,
			nextAction)

		if err := d.replay.Add(transition); err != nil {
			panic(fmt.Sprintf("observe: could not add to replay "+
				"buffer: %v", err))
		}
		d.totalSteps++
	}
	d.prevStep = nextStep
}

// SelectAction runs the behaviour policy and returns an action to take
// in timestep t. The exploration rate follows the agent's schedule
// during training and is 0 in evaluation mode.
func (d *DeepQ) SelectAction(t ts.TimeStep) *mat.VecDense {
	if d.eval {
		d.behaviour.SetEpsilon(0.0)
	} else {
		d.behaviour.SetEpsilon(d.epsilon.At(d.totalSteps))
	}

	// A fully exploratory policy never needs the network's predictions
	if d.behaviour.Epsilon() < 1.0 {
		if err := d.behaviour.SetInput(vecData(t.Observation)); err != nil {
			panic(fmt.Sprintf("selectaction: could not set policy network "+
				"input: %v", err))
		}
		if err := d.behaviourVM.RunAll(); err != nil {
			panic(fmt.Sprintf("selectaction: could not run policy "+
				"network: %v", err))
		}
		defer d.behaviourVM.Reset()
	}

	action, _ := d.behaviour.SelectAction()
	return action
}

// Step updates the weights of the agent's networks by taking one
// gradient step on a batch sampled from the replay buffer. Step is a
// no-op until the buffer has reached its minimum capacity.
func (d *DeepQ) Step() error {
	S, A, rewards, discounts, NextS, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample from replay buffer: %v",
			err)
	}

	// Predict the action values in the next states using the target
	// network
	if err := d.targetNet.SetInput(NextS); err != nil {
		return fmt.Errorf("step: could not set target network input: %v",
			err)
	}
	if err := d.targetNetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target network: %v", err)
	}
	err = G.Let(d.nextStateActionValues, d.targetNet.Output())
	if err != nil {
		return fmt.Errorf("step: could not set next state-action "+
			"values: %v", err)
	}
	d.targetNetVM.Reset()

	rewardTensor := tensor.New(tensor.WithBacking(rewards),
		tensor.WithShape(d.batchSize))
	if err := G.Let(d.rewards, rewardTensor); err != nil {
		return fmt.Errorf("step: could not set rewards: %v", err)
	}
	discountTensor := tensor.New(tensor.WithBacking(discounts),
		tensor.WithShape(d.batchSize))
	if err := G.Let(d.discounts, discountTensor); err != nil {
		return fmt.Errorf("step: could not set discounts: %v", err)
	}

	// One-hot encode the actions taken in the sampled transitions
	selected := make([]float64, d.batchSize*d.numActions)
	for i := 0; i < d.batchSize; i++ {
		selected[i*d.numActions+int(A[i])] = 1.0
	}
	selectedTensor := tensor.New(tensor.WithBacking(selected),
		tensor.WithShape(d.batchSize, d.numActions))
	if err := G.Let(d.selectedActions, selectedTensor); err != nil {
		return fmt.Errorf("step: could not set selected actions: %v", err)
	}

	if err := d.trainNet.SetInput(S); err != nil {
		return fmt.Errorf("step: could not set training network input: %v",
			err)
	}
	if err := d.trainNetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run training network: %v", err)
	}

	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("step: could not update training network: %v",
			err)
	}
	if cost, ok := (*d.costVal).Data().(float64); ok {
		d.lastLoss = floatutils.Clip(cost, minLoss, maxLoss)
	}
	d.trainNetVM.Reset()

	d.gradientSteps++
	if d.gradientSteps%d.targetUpdateInterval == 0 {
		if d.tau == 1.0 {
			err = d.targetNet.Set(d.trainNet)
		} else {
			err = d.targetNet.Polyak(d.trainNet, d.tau)
		}
		if err != nil {
			return fmt.Errorf("step: could not update target network: %v",
				err)
		}
	}

	// Keep the behaviour policy synchronized with the learned weights
	return d.behaviour.Set(d.trainNet)
}

// TdError computes and returns the 1-step TD error of a transition
// under the current behaviour policy's value estimates
func (d *DeepQ) TdError(t ts.Transition) float64 {
	stateValue := d.actionValues(vecData(t.State))[int(t.Action.AtVec(0))]
	nextValues := d.actionValues(vecData(t.NextState))
	nextValue, _ := floatutils.MaxSlice(nextValues)

	return t.Reward + t.Discount*nextValue - stateValue
}

// actionValues runs the behaviour network on a single observation and
// returns the predicted action values
func (d *DeepQ) actionValues(obs []float64) []float64 {
	if err := d.behaviour.SetInput(obs); err != nil {
		panic(fmt.Sprintf("actionvalues: could not set policy network "+
			"input: %v", err))
	}
	if err := d.behaviourVM.RunAll(); err != nil {
		panic(fmt.Sprintf("actionvalues: could not run policy "+
			"network: %v", err))
	}
	defer d.behaviourVM.Reset()

	values := d.behaviour.Output().Data().([]float64)
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Loss returns the loss of the most recent gradient step, clamped to
// [minLoss, maxLoss]. Loss returns NaN before the first update.
func (d *DeepQ) Loss() float64 {
	return d.lastLoss
}

// EndEpisode performs cleanup at the end of an episode
func (d *DeepQ) EndEpisode() {}

// Eval sets the agent into evaluation mode
func (d *DeepQ) Eval() { d.eval = true }

// Train sets the agent into training mode
func (d *DeepQ) Train() { d.eval = false }

// vecData returns the underlying data slice of a vector
func vecData(v mat.Vector) []float64 {
	if dense, ok := v.(*mat.VecDense); ok {
		return dense.RawVector().Data
	}

	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
