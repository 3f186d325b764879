package pong

import (
	"gonum.org/v1/gonum/mat"

	"github.com/karush17/pongrl/environment"
)

const (
	// Win is the reward for winning a rally
	Win float64 = 1.0

	// Loss is the reward for losing a rally
	Loss float64 = -1.0
)

// Rally implements the classic Pong scoring scheme. The agent gets a
// reward of +1 whenever the opponent misses the ball and -1 whenever
// the agent misses the ball. The episode ends when either player
// reaches a target number of points or when the per-episode step limit
// is hit.
//
// The embedded Starter samples serve configurations: a 2-dimensional
// vector of (serve speed, vertical serve velocity).
type Rally struct {
	environment.Starter
	stepLimit   int
	pointsToWin int
}

// NewRally returns a new Rally task. The s parameter samples serve
// configurations, stepLimit is the maximum number of environmental
// steps per episode, and pointsToWin is the score at which the episode
// ends.
func NewRally(s environment.Starter, stepLimit,
	pointsToWin int) environment.Task {
	return &Rally{s, stepLimit, pointsToWin}
}

// GetReward returns the reward for a finished rally
func (r *Rally) GetReward(won bool) float64 {
	if won {
		return Win
	}
	return Loss
}

// AtGoal returns whether the score matrix describes a finished game.
// The score matrix is a 1x2 matrix of (opponent score, agent score).
func (r *Rally) AtGoal(score mat.Matrix) bool {
	rows, cols := score.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if int(score.At(i, j)) >= r.pointsToWin {
				return true
			}
		}
	}
	return false
}

// StepLimit returns the maximum number of steps per episode
func (r *Rally) StepLimit() int {
	return r.stepLimit
}
