package policy

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/karush17/pongrl/agent"
	"github.com/karush17/pongrl/network"
	"github.com/karush17/pongrl/utils/floatutils"
)

// EGreedy implements an ε-greedy policy over the action values
// predicted by a neural network. With probability ε an action is
// chosen uniformly randomly, and with probability (1 - ε) a greedy
// action is chosen. Ties between greedy actions are broken uniformly
// randomly.
//
// The policy's network must be run by an external VM before
// SelectAction is called, except when the exploratory branch is taken,
// in which case no forward pass is needed.
type EGreedy struct {
	network.NeuralNet
	epsilon float64
	rng     *rand.Rand
	seed    int64
}

// NewEGreedy returns a new EGreedy policy over the argument network
func NewEGreedy(net network.NeuralNet, epsilon float64,
	seed int64) (agent.EGreedyNNPolicy, error) {
	if net.Outputs() < 1 {
		return nil, fmt.Errorf("newEGreedy: policy network must have at "+
			"least one output \n\twant(>= 1) \n\thave(%v)", net.Outputs())
	}

	rng := rand.New(rand.NewSource(seed))
	return &EGreedy{
		NeuralNet: net,
		epsilon:   epsilon,
		rng:       rng,
		seed:      seed,
	}, nil
}

// SetEpsilon sets the value for epsilon in the ε-greedy policy
func (e *EGreedy) SetEpsilon(epsilon float64) {
	e.epsilon = epsilon
}

// Epsilon gets the value of epsilon for the ε-greedy policy
func (e *EGreedy) Epsilon() float64 {
	return e.epsilon
}

// ClonePolicy clones the policy into a new computational graph
func (e *EGreedy) ClonePolicy() (agent.NNPolicy, error) {
	return e.ClonePolicyWithBatch(e.BatchSize())
}

// ClonePolicyWithBatch clones the policy with a new input batch size
func (e *EGreedy) ClonePolicyWithBatch(batch int) (agent.NNPolicy, error) {
	net, err := e.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("clonePolicyWithBatch: could not clone "+
			"policy network: %v", err)
	}

	return &EGreedy{
		NeuralNet: net,
		epsilon:   e.epsilon,
		rng:       rand.New(rand.NewSource(e.seed)),
		seed:      e.seed,
	}, nil
}

// SelectAction selects an action from the ε-greedy policy and returns
// the action with the policy's estimate of its value. When the action
// is chosen randomly the returned value is NaN, since no forward pass
// is required then and the network's output may not correspond to the
// current observation.
//
// The exploratory branch is checked first so that an ε = 1.0 policy
// never requires a forward pass of the network.
func (e *EGreedy) SelectAction() (*mat.VecDense, float64) {
	numActions := e.Outputs()

	if e.rng.Float64() < e.epsilon {
		action := e.rng.Intn(numActions)
		return mat.NewVecDense(1, []float64{float64(action)}), math.NaN()
	}

	actionValues := e.Output().Data().([]float64)

	// Find all the actions of maximal value and break ties randomly
	_, maxIndices := floatutils.MaxSlice(actionValues)
	action := maxIndices[e.rng.Intn(len(maxIndices))]

	return mat.NewVecDense(1, []float64{float64(action)}),
		actionValues[action]
}
