package experiment

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/karush17/pongrl/agent"
	"github.com/karush17/pongrl/environment"
	"github.com/karush17/pongrl/experiment/checkpointer"
	"github.com/karush17/pongrl/experiment/tracker"
	ts "github.com/karush17/pongrl/timestep"
	"github.com/karush17/pongrl/utils/progressbar"
)

// progressBarWidth is the character width of the displayed progress bar
const progressBarWidth int = 50

var _ Experiment = (*Online)(nil)

// Online implements an online experiment, which trains an agent on an
// environment for a fixed budget of environment steps. The agent
// performs a single gradient update after every step. Every timestep
// generated is sent to each registered Tracker, and each registered
// Checkpointer is given the chance to save state after every step.
type Online struct {
	environment environment.Environment
	agent       agent.Agent

	maxSteps     uint
	currentSteps uint

	trackers         []tracker.Tracker
	checkpointers    []checkpointer.Checkpointer
	runID            uuid.UUID
	progressInterval uint

	currentReturn float64
	latestReturn  float64
	progress      *progressbar.ProgressBar
}

// NewOnline returns a new online experiment on environment e with
// agent a and a budget of steps environment steps. Progress is logged
// every progressInterval steps; a progressInterval of 0 disables
// progress logging.
func NewOnline(e environment.Environment, a agent.Agent, steps uint,
	trackers []tracker.Tracker, checkpointers []checkpointer.Checkpointer,
	progressInterval uint) *Online {
	return &Online{
		environment: e,
		agent:       a,

		maxSteps: steps,

		trackers:         trackers,
		checkpointers:    checkpointers,
		runID:            uuid.New(),
		progressInterval: progressInterval,

		latestReturn: math.NaN(),
		progress:     progressbar.New(progressBarWidth, int(steps)),
	}
}

// RunID returns the unique identifier of this experiment run
func (o *Online) RunID() uuid.UUID {
	return o.runID
}

// track sends a timestep to every registered Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tracker := range o.trackers {
		tracker.Track(t)
	}
}

// checkpoint gives every registered Checkpointer the chance to save
// state at the argument step
func (o *Online) checkpoint(step int) error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(step); err != nil {
			return err
		}
	}
	return nil
}

// RunEpisode runs a single episode of the experiment, returning
// whether the experiment's step budget was exhausted during the
// episode. Episodes in progress when the budget runs out are cut off.
func (o *Online) RunEpisode() (bool, error) {
	o.agent.Train()
	o.currentReturn = 0.0

	step := o.environment.Reset()
	o.agent.ObserveFirst(step)
	o.track(step)

	for !step.Last() && o.currentSteps < o.maxSteps {
		o.currentSteps++

		action := o.agent.SelectAction(step)
		step, _ = o.environment.Step(action)
		o.currentReturn += step.Reward

		o.track(step)
		o.agent.Observe(action, step)
		if err := o.agent.Step(); err != nil {
			return false, fmt.Errorf("runepisode: could not update "+
				"agent: %v", err)
		}

		if err := o.checkpoint(int(o.currentSteps)); err != nil {
			return false, fmt.Errorf("runepisode: %v", err)
		}

		o.progress.Increment()
		if o.progressInterval != 0 &&
			o.currentSteps%o.progressInterval == 0 {
			o.logProgress()
		}
	}

	if step.Last() {
		o.latestReturn = o.currentReturn
		o.agent.EndEpisode()
	}

	return o.currentSteps >= o.maxSteps, nil
}

// logProgress prints the progress bar along with the latest episodic
// return and training loss
func (o *Online) logProgress() {
	loss := math.NaN()
	if reporter, ok := o.agent.(agent.LossReporter); ok {
		loss = reporter.Loss()
	}

	o.progress.Display()
	fmt.Printf("  run %v | step %d/%d | return %.2f | loss %.5f",
		shortID(o.runID), o.currentSteps, o.maxSteps, o.latestReturn, loss)
}

// Run runs the entire experiment for its full step budget
func (o *Online) Run() error {
	for {
		done, err := o.RunEpisode()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	if o.progressInterval != 0 {
		fmt.Println()
	}
	return nil
}

// Save saves all the data tracked by the experiment's Trackers
func (o *Online) Save() error {
	for _, tracker := range o.trackers {
		if err := tracker.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// shortID returns an abbreviated form of a run identifier for logging
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
