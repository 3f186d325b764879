// Package agent defines an agent interface
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/karush17/pongrl/network"
	"github.com/karush17/pongrl/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep)

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep)

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. For a given agent, the
// Policy and Learner should have pointers to the same weights so that
// any changes the learner makes to the weights are reflected in the
// actions the Policy chooses.
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
	Eval()  // Set policy to evaluation mode
	Train() // Set policy to training mode
}

// TdErrorer is a Learner that can return the TD error of some
// transition
type TdErrorer interface {
	Learner

	// TdError returns the TD error on a transition
	TdError(t timestep.Transition) float64
}

// LossReporter is a Learner that can report the loss of its most
// recent update. Before the first update has happened, Loss returns
// NaN.
type LossReporter interface {
	Loss() float64
}

// NNPolicy is a Policy implemented using a neural network function
// approximator. The policy's graph must be run with an external VM
// before SelectAction is called.
type NNPolicy interface {
	network.NeuralNet

	// SelectAction returns an action and the policy's estimate of that
	// action's value based on the last run of the policy's graph
	SelectAction() (*mat.VecDense, float64)

	// ClonePolicy clones the policy into a new computational graph
	ClonePolicy() (NNPolicy, error)

	// ClonePolicyWithBatch clones the policy with a new input batch
	// size
	ClonePolicyWithBatch(int) (NNPolicy, error)
}

// EGreedyNNPolicy is an NNPolicy that selects actions greedily with
// respect to its action-value estimates with probability (1 - epsilon)
// and uniformly randomly otherwise
type EGreedyNNPolicy interface {
	NNPolicy

	// SetEpsilon sets the exploration rate of the policy
	SetEpsilon(float64)

	// Epsilon returns the exploration rate of the policy
	Epsilon() float64
}
