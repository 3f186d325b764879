package tracker

import (
	ts "github.com/karush17/pongrl/timestep"
)

// onlineReturn tracks the return seen in every episode of a training
// run
type onlineReturn struct {
	currentReturn float64
	returns       []float64
	filename      string
}

// NewReturn returns a Tracker that records the episodic returns of a
// run and saves them to the file filename
func NewReturn(filename string) Tracker {
	return &onlineReturn{filename: filename}
}

// Track records the reward on timestep t, accumulating it into the
// return of the current episode
func (o *onlineReturn) Track(t ts.TimeStep) {
	if t.First() {
		o.currentReturn = 0.0
	}
	o.currentReturn += t.Reward

	if t.Last() {
		o.returns = append(o.returns, o.currentReturn)
		o.currentReturn = 0.0
	}
}

// Save saves the tracked episodic returns to disk
func (o *onlineReturn) Save() error {
	return saveData(o.filename, o.returns)
}
