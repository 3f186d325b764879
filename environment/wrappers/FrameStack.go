// Package wrappers provides wrappers for environments
package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	env "github.com/karush17/pongrl/environment"
	ts "github.com/karush17/pongrl/timestep"
)

// FrameStack stacks the k most recent observations of an environment
// into a single observation. A single moving frame does not determine
// velocities; stacking consecutive frames makes the observation
// (approximately) Markov for value prediction.
//
// Frames are stacked channels-first: the wrapped observation is the
// concatenation [frame_{t-k+1}, ..., frame_t] of flattened frames,
// with the most recent frame last. On episode reset, the first frame
// is replicated k times.
type FrameStack struct {
	env.Environment

	depth     int
	frameSize int
	frames    []float64
}

// NewFrameStack returns a new FrameStack wrapper around e that stacks
// the depth most recent observations
func NewFrameStack(e env.Environment, depth int) (env.Environment, error) {
	if depth < 1 {
		return nil, fmt.Errorf("framestack: depth must be positive "+
			"\n\thave(%v)", depth)
	}

	frameSize := e.ObservationSpec().Shape.Len()
	return &FrameStack{
		Environment: e,
		depth:       depth,
		frameSize:   frameSize,
		frames:      make([]float64, depth*frameSize),
	}, nil
}

// Depth returns the number of stacked frames per observation
func (f *FrameStack) Depth() int {
	return f.depth
}

// Reset resets the environment and fills the stack with copies of the
// first frame
func (f *FrameStack) Reset() ts.TimeStep {
	step := f.Environment.Reset()

	frame := rawFrame(step.Observation, f.frameSize)
	for i := 0; i < f.depth; i++ {
		copy(f.frames[i*f.frameSize:(i+1)*f.frameSize], frame)
	}

	step.Observation = f.obs()
	return step
}

// Step takes one environmental step given some action, pushing the new
// frame onto the stack and evicting the oldest
func (f *FrameStack) Step(action mat.Vector) (ts.TimeStep, bool) {
	step, last := f.Environment.Step(action)

	frame := rawFrame(step.Observation, f.frameSize)
	copy(f.frames, f.frames[f.frameSize:])
	copy(f.frames[(f.depth-1)*f.frameSize:], frame)

	step.Observation = f.obs()
	return step, last
}

// obs returns a copy of the current frame stack as an observation
// vector
func (f *FrameStack) obs() mat.Vector {
	stacked := make([]float64, len(f.frames))
	copy(stacked, f.frames)
	return mat.NewVecDense(len(stacked), stacked)
}

// ObservationSpec returns the observation specification of the
// wrapped environment
func (f *FrameStack) ObservationSpec() env.Spec {
	spec := f.Environment.ObservationSpec()

	length := f.depth * f.frameSize
	shape := mat.NewVecDense(length, nil)
	lowerBound := tile(spec.LowerBound, f.depth)
	upperBound := tile(spec.UpperBound, f.depth)

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		spec.Cardinality)
}

// rawFrame extracts the backing data of a single-frame observation
func rawFrame(obs mat.Vector, frameSize int) []float64 {
	if obs.Len() != frameSize {
		panic(fmt.Sprintf("framestack: invalid frame size \n\twant(%v) "+
			"\n\thave(%v)", frameSize, obs.Len()))
	}

	if dense, ok := obs.(*mat.VecDense); ok {
		return dense.RawVector().Data
	}

	frame := make([]float64, frameSize)
	for i := range frame {
		frame[i] = obs.AtVec(i)
	}
	return frame
}

// tile repeats a vector n times into a single vector
func tile(v mat.Vector, n int) mat.Vector {
	data := make([]float64, v.Len()*n)
	for i := 0; i < n; i++ {
		for j := 0; j < v.Len(); j++ {
			data[i*v.Len()+j] = v.AtVec(j)
		}
	}
	return mat.NewVecDense(len(data), data)
}
