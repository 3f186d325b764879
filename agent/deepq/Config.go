package deepq

import (
	"fmt"

	"github.com/karush17/pongrl/agent/policy"
	"github.com/karush17/pongrl/expreplay"
	"github.com/karush17/pongrl/initwfn"
	"github.com/karush17/pongrl/network"
	"github.com/karush17/pongrl/solver"
)

// Config implements a configuration for a DeepQ agent. The value
// function is either an Atari-style convolutional network over stacked
// square frames or a multi-headed MLP over flat observation vectors,
// depending on ConvObservations.
type Config struct {
	// ConvObservations determines whether observations are interpreted
	// as FrameDepth stacked square frames of side length FrameSize. If
	// false, observations are flat vectors and the value function is
	// an MLP described by PolicyLayers, Biases, and Activations.
	ConvObservations bool
	FrameDepth       int
	FrameSize        int

	PolicyLayers []int
	Biases       []bool
	Activations  []*network.Activation

	InitWFn *initwfn.InitWFn
	Solver  *solver.Solver

	// Exploration schedule. The exploration rate decays exponentially
	// from EpsilonStart to EpsilonEnd with time constant EpsilonDecay,
	// measured in environment steps. An EpsilonDecay <= 0 results in a
	// constant exploration rate of EpsilonStart.
	EpsilonStart float64
	EpsilonEnd   float64
	EpsilonDecay float64

	ExpReplay expreplay.Config

	// Tau is the interpolation constant used when updating the target
	// network. Tau = 1.0 copies the learned weights into the target
	// network directly.
	Tau float64

	// TargetUpdateInterval is the number of gradient steps between
	// target network updates
	TargetUpdateInterval int
}

// BatchSize returns the batch size used by the agent
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// epsilonSchedule returns the exploration schedule the Config describes
func (c Config) epsilonSchedule() policy.Schedule {
	if c.EpsilonDecay <= 0 {
		return policy.NewConstant(c.EpsilonStart)
	}
	return policy.NewExpDecay(c.EpsilonStart, c.EpsilonEnd, c.EpsilonDecay)
}

// Validate checks the configuration to ensure that it is valid
func (c Config) Validate() error {
	if c.ConvObservations {
		if c.FrameDepth < 1 {
			return fmt.Errorf("config: frame depth must be positive "+
				"\n\twant(>= 1) \n\thave(%v)", c.FrameDepth)
		}
		if c.FrameSize < 1 {
			return fmt.Errorf("config: frame size must be positive "+
				"\n\twant(>= 1) \n\thave(%v)", c.FrameSize)
		}
	} else {
		if len(c.PolicyLayers) != len(c.Biases) {
			return fmt.Errorf("config: policy layers and biases do not "+
				"match \n\twant(%v) \n\thave(%v)", len(c.PolicyLayers),
				len(c.Biases))
		}
		if len(c.PolicyLayers) != len(c.Activations) {
			return fmt.Errorf("config: policy layers and activations do "+
				"not match \n\twant(%v) \n\thave(%v)", len(c.PolicyLayers),
				len(c.Activations))
		}
	}

	if c.InitWFn == nil {
		return fmt.Errorf("config: no weight initializer given")
	}
	if c.Solver == nil {
		return fmt.Errorf("config: no solver given")
	}

	if c.EpsilonStart < 0 || c.EpsilonStart > 1 {
		return fmt.Errorf("config: epsilon start not in [0, 1] "+
			"\n\thave(%v)", c.EpsilonStart)
	}
	if c.EpsilonEnd < 0 || c.EpsilonEnd > 1 {
		return fmt.Errorf("config: epsilon end not in [0, 1] "+
			"\n\thave(%v)", c.EpsilonEnd)
	}

	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("config: tau not in (0, 1] \n\thave(%v)", c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("config: target update interval must be "+
			"positive \n\twant(>= 1) \n\thave(%v)", c.TargetUpdateInterval)
	}

	return nil
}
