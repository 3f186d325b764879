package tracker

import (
	"math"

	"github.com/karush17/pongrl/agent"
	ts "github.com/karush17/pongrl/timestep"
)

// onlineLoss tracks the training loss reported by an agent after each
// environment step
type onlineLoss struct {
	reporter agent.LossReporter
	losses   []float64
	filename string
}

// NewLoss returns a Tracker that records the loss history of reporter
// and saves it to the file filename
func NewLoss(reporter agent.LossReporter, filename string) Tracker {
	return &onlineLoss{reporter: reporter, filename: filename}
}

// Track records the agent's most recent loss. Steps taken before the
// first gradient update report a NaN loss and are not recorded.
func (o *onlineLoss) Track(t ts.TimeStep) {
	if t.First() {
		return
	}

	loss := o.reporter.Loss()
	if math.IsNaN(loss) {
		return
	}
	o.losses = append(o.losses, loss)
}

// Save saves the tracked losses to disk
func (o *onlineLoss) Save() error {
	return saveData(o.filename, o.losses)
}
