package checkpointer

import (
	"fmt"

	"github.com/pkg/errors"
)

// nStep checkpoints a Serializable every interval steps. The same
// file is overwritten on each save so that the file always holds the
// most recent checkpoint.
type nStep struct {
	interval int
	object   Serializable
	filename string
}

// NewNStep returns a Checkpointer that saves object to filename every
// interval steps
func NewNStep(interval int, object Serializable,
	filename string) (Checkpointer, error) {
	if interval < 1 {
		return nil, fmt.Errorf("newNStep: interval must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", interval)
	}

	return &nStep{
		interval: interval,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the tracked object if step falls on the
// checkpointer's interval
func (n *nStep) Checkpoint(step int) error {
	if step == 0 || step%n.interval != 0 {
		return nil
	}

	if err := n.object.Save(n.filename); err != nil {
		return errors.Wrapf(err, "checkpoint: could not save at step %d",
			step)
	}
	return nil
}
