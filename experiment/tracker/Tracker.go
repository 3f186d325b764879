// Package tracker implements functionality for tracking and saving
// experimental data generated during a training run
package tracker

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"

	ts "github.com/karush17/pongrl/timestep"
)

// Tracker tracks experimental data of a training run and saves it to
// disk. Trackers are registered with an experiment, which calls Track
// on every timestep generated and Save once the run finishes.
type Tracker interface {
	Track(t ts.TimeStep)
	Save() error
}

// saveData serializes data to the file filename with gob, overwriting
// any existing file
func saveData(filename string, data []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "savedata: could not create data file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return errors.Wrap(err, "savedata: could not encode data")
	}
	return nil
}

// LoadData reads the data saved by a Tracker back from the file
// filename
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loaddata: could not open data file")
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "loaddata: could not decode data")
	}
	return data, nil
}
