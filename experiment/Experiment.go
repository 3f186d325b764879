// Package experiment implements functionality for running an
// experiment, which trains an agent on an environment for a fixed
// budget of environment steps while tracking experimental data
package experiment

// Experiment runs an agent on an environment and tracks the data
// generated during the run
type Experiment interface {
	// Run runs the entire experiment for its full step budget
	Run() error

	// RunEpisode runs a single episode and returns whether the
	// experiment's step budget has been exhausted
	RunEpisode() (bool, error)

	// Save saves all data tracked by the experiment's Trackers
	Save() error
}
