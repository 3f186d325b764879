// Package policy implements action selection policies for neural
// network function approximators
package policy

import "math"

// Schedule determines the exploration rate to use at each step of
// training. Schedules are pure functions of the global step count so
// that restoring an agent from a checkpoint also restores its
// exploration rate.
type Schedule interface {
	// At returns the exploration rate at step t
	At(t int) float64
}

// Constant is a Schedule with a fixed exploration rate
type Constant struct {
	Value float64
}

// NewConstant returns a Schedule that always returns value
func NewConstant(value float64) Constant {
	return Constant{Value: value}
}

// At returns the exploration rate at step t
func (c Constant) At(t int) float64 {
	return c.Value
}

// ExpDecay is a Schedule that decays the exploration rate
// exponentially from Start towards End with time constant Decay,
// measured in steps.
type ExpDecay struct {
	Start float64
	End   float64
	Decay float64
}

// NewExpDecay returns a Schedule that decays exponentially from start
// to end with time constant decay
func NewExpDecay(start, end, decay float64) ExpDecay {
	return ExpDecay{Start: start, End: end, Decay: decay}
}

// At returns the exploration rate at step t
func (e ExpDecay) At(t int) float64 {
	return e.End + (e.Start-e.End)*math.Exp(-float64(t)/e.Decay)
}
