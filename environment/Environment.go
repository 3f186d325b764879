// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/karush17/pongrl/timestep"
)

// Starter implements a distribution of starting configurations and
// samples starting configurations for environments
type Starter interface {
	Start() mat.Vector
}

// Task implements the reward scheme and episode-termination rule for
// taking actions in some environment
type Task interface {
	Starter

	// GetReward returns the reward for a finished rally or round of
	// play. The argument won indicates whether the learning agent won.
	GetReward(won bool) float64

	// AtGoal returns whether the score matrix describes a finished
	// episode
	AtGoal(score mat.Matrix) bool

	// StepLimit returns the maximum number of steps per episode, after
	// which the episode is truncated
	StepLimit() int
}

// Environment implements a simulated environment, which includes a
// Task to complete. Environments are expected to perform their own
// observation preprocessing, e.g. rendering and resizing frames, so
// that agents can treat observations as opaque feature vectors.
type Environment interface {
	Task
	Reset() timestep.TimeStep // Resets between episodes
	Step(action mat.Vector) (timestep.TimeStep, bool)
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
