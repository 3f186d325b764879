package deepq

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/karush17/pongrl/solver"
)

// weightBlob holds the value of a single learnable weight tensor in a
// checkpoint
type weightBlob struct {
	Name  string
	Shape []int
	Data  []float64
}

// checkpoint holds everything needed to resume training an agent that
// was constructed with the same configuration: the learned weights,
// the solver's hyperparameters, the step counters that drive the
// exploration schedule and target updates, and the last reported loss.
//
// The solver's internal moment estimates are not exposed by Gorgonia
// and so are not saved. A resumed solver restarts its moving averages
// from zero.
type checkpoint struct {
	Weights       []weightBlob
	Solver        []byte
	LastLoss      float64
	TotalSteps    int
	GradientSteps int
}

// Save serializes the agent's training state to filename, overwriting
// any existing file at that path
func (d *DeepQ) Save(filename string) error {
	learnables := d.trainNet.Learnables()
	weights := make([]weightBlob, len(learnables))
	for i, learnable := range learnables {
		value := learnable.Value().(*tensor.Dense)
		data := make([]float64, len(value.Data().([]float64)))
		copy(data, value.Data().([]float64))

		weights[i] = weightBlob{
			Name:  learnable.Name(),
			Shape: []int(value.Shape().Clone()),
			Data:  data,
		}
	}

	solverJSON, err := json.Marshal(d.solver)
	if err != nil {
		return errors.Wrap(err, "save: could not marshal solver")
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save: could not create checkpoint file")
	}
	defer file.Close()

	err = gob.NewEncoder(file).Encode(checkpoint{
		Weights:       weights,
		Solver:        solverJSON,
		LastLoss:      d.lastLoss,
		TotalSteps:    d.totalSteps,
		GradientSteps: d.gradientSteps,
	})
	if err != nil {
		return errors.Wrap(err, "save: could not encode checkpoint")
	}
	return nil
}

// Restore loads the training state saved at filename into the agent.
// The agent must have been constructed with the same configuration
// that produced the checkpoint: a weight shape mismatch is a fatal
// error, and no partial state is applied.
func (d *DeepQ) Restore(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "restore: could not open checkpoint file")
	}
	defer file.Close()

	var point checkpoint
	if err := gob.NewDecoder(file).Decode(&point); err != nil {
		return errors.Wrap(err, "restore: could not decode checkpoint")
	}

	learnables := d.trainNet.Learnables()
	if len(point.Weights) != len(learnables) {
		return fmt.Errorf("restore: checkpoint has wrong number of weight "+
			"tensors \n\twant(%v) \n\thave(%v)", len(learnables),
			len(point.Weights))
	}

	// Validate every shape before mutating any weights
	for i, learnable := range learnables {
		shape := learnable.Value().(*tensor.Dense).Shape()
		if !shape.Eq(tensor.Shape(point.Weights[i].Shape)) {
			return fmt.Errorf("restore: checkpoint weight %v has wrong "+
				"shape \n\twant(%v) \n\thave(%v)", point.Weights[i].Name,
				shape, tensor.Shape(point.Weights[i].Shape))
		}
	}

	for i, learnable := range learnables {
		loaded := tensor.New(
			tensor.WithShape(point.Weights[i].Shape...),
			tensor.WithBacking(point.Weights[i].Data),
		)
		if err := G.Let(learnable, loaded); err != nil {
			return fmt.Errorf("restore: could not set weight %v: %v",
				point.Weights[i].Name, err)
		}
	}

	// The target and behaviour networks follow the restored weights
	if err := d.targetNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("restore: could not set target network: %v", err)
	}
	if err := d.behaviour.Set(d.trainNet); err != nil {
		return fmt.Errorf("restore: could not set behaviour network: %v",
			err)
	}

	var restoredSolver solver.Solver
	if err := json.Unmarshal(point.Solver, &restoredSolver); err != nil {
		return errors.Wrap(err, "restore: could not unmarshal solver")
	}
	d.solver = &restoredSolver

	d.lastLoss = point.LastLoss
	d.totalSteps = point.TotalSteps
	d.gradientSteps = point.GradientSteps

	return nil
}
