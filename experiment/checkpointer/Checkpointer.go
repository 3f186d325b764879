// Package checkpointer implements periodic serialization of training
// state so that experiments can be resumed after an interruption
package checkpointer

// Serializable is any type whose state can be saved to a file
type Serializable interface {
	Save(filename string) error
}

// Checkpointer saves the state of a Serializable during an experiment.
// An experiment calls Checkpoint after every environment step, and the
// Checkpointer decides whether that step warrants a save.
type Checkpointer interface {
	Checkpoint(step int) error
}
