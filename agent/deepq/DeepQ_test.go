package deepq

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	env "github.com/karush17/pongrl/environment"
	"github.com/karush17/pongrl/expreplay"
	"github.com/karush17/pongrl/initwfn"
	"github.com/karush17/pongrl/network"
	"github.com/karush17/pongrl/solver"
	ts "github.com/karush17/pongrl/timestep"
)

// chainEnv is a small deterministic environment for testing: the agent
// walks along a chain of 10 positions, action 1 moves right and all
// other actions stay. A reward of 1 is given for each rightward move.
// Episodes end after StepLimit steps.
type chainEnv struct {
	position int
	stepNum  int
	limit    int
	discount float64
}

func newChainEnv() *chainEnv {
	return &chainEnv{limit: 10, discount: 0.99}
}

func (c *chainEnv) Start() mat.Vector {
	return mat.NewVecDense(1, []float64{0})
}

func (c *chainEnv) GetReward(won bool) float64 {
	if won {
		return 1.0
	}
	return 0.0
}

func (c *chainEnv) AtGoal(score mat.Matrix) bool { return false }

func (c *chainEnv) StepLimit() int { return c.limit }

func (c *chainEnv) obs() mat.Vector {
	scaled := float64(c.position) / float64(c.limit)
	return mat.NewVecDense(4, []float64{scaled, 1 - scaled, scaled * scaled,
		1})
}

func (c *chainEnv) Reset() ts.TimeStep {
	c.position = 0
	c.stepNum = 0
	return ts.New(ts.First, 0, c.discount, c.obs(), 0)
}

func (c *chainEnv) Step(a mat.Vector) (ts.TimeStep, bool) {
	c.stepNum++

	reward := 0.0
	if int(a.AtVec(0)) == 1 {
		c.position++
		reward = c.GetReward(true)
	}

	stepType := ts.Mid
	discount := c.discount
	if c.stepNum >= c.limit {
		stepType = ts.Last
		discount = 0.0
	}

	step := ts.New(stepType, reward, discount, c.obs(), c.stepNum)
	return step, stepType == ts.Last
}

func (c *chainEnv) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(4, nil)
	lower := mat.NewVecDense(4, nil)
	upper := mat.NewVecDense(4, []float64{1, 1, 1, 1})
	return env.NewSpec(shape, env.Observation, lower, upper, env.Continuous)
}

func (c *chainEnv) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{2})
	return env.NewSpec(shape, env.Action, lower, upper, env.Discrete)
}

func (c *chainEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{c.discount})
	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// newTestConfig returns a small MLP agent configuration
func newTestConfig(t *testing.T, hidden int) Config {
	t.Helper()

	adam, err := solver.NewDefaultAdam(0.01, 4)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}

	return Config{
		PolicyLayers: []int{hidden},
		Biases:       []bool{true},
		Activations:  []*network.Activation{network.ReLU()},

		InitWFn: init,
		Solver:  adam,

		EpsilonStart: 1.0,

		ExpReplay: expreplay.Config{
			BatchSize:         4,
			MaxReplayCapacity: 64,
			MinReplayCapacity: 4,
		},

		Tau:                  1.0,
		TargetUpdateInterval: 1,
	}
}

// fillReplay runs the agent on the environment for steps environment
// steps so that its replay buffer holds experience
func fillReplay(t *testing.T, agent *DeepQ, environment *chainEnv,
	steps int) {
	t.Helper()

	step := environment.Reset()
	agent.ObserveFirst(step)
	for i := 0; i < steps; i++ {
		action := agent.SelectAction(step)
		step, _ = environment.Step(action)
		agent.Observe(action, step)
	}
}

func TestStepIsNoOpWithEmptyBuffer(t *testing.T) {
	agent, err := New(newChainEnv(), newTestConfig(t, 8), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	if err := agent.Step(); err != nil {
		t.Fatalf("expected a no-op step with an empty buffer, got %v", err)
	}
	if !math.IsNaN(agent.Loss()) {
		t.Errorf("expected NaN loss before the first update, got %v",
			agent.Loss())
	}
}

func TestStepUpdatesWeightsAndLoss(t *testing.T) {
	environment := newChainEnv()
	agent, err := New(environment, newTestConfig(t, 8), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	fillReplay(t, agent, environment, 8)

	before := snapshotWeights(agent)
	if err := agent.Step(); err != nil {
		t.Fatalf("could not update agent: %v", err)
	}

	if math.IsNaN(agent.Loss()) {
		t.Error("expected a reported loss after the first update")
	}
	if agent.Loss() < minLoss || agent.Loss() > maxLoss {
		t.Errorf("reported loss %v outside [%v, %v]", agent.Loss(),
			minLoss, maxLoss)
	}

	after := snapshotWeights(agent)
	changed := false
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				changed = true
			}
		}
	}
	if !changed {
		t.Error("expected the gradient step to change the weights")
	}
}

func TestFullyExploratoryAgentSelectsLegalActions(t *testing.T) {
	environment := newChainEnv()
	agent, err := New(environment, newTestConfig(t, 8), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	step := environment.Reset()
	agent.ObserveFirst(step)
	for i := 0; i < 50; i++ {
		action := agent.SelectAction(step)
		a := int(action.AtVec(0))
		if a < 0 || a > 2 {
			t.Fatalf("selected illegal action %v", a)
		}
		step, _ = environment.Step(action)
		agent.Observe(action, step)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "checkpoint.bin")

	environment := newChainEnv()
	first, err := New(environment, newTestConfig(t, 8), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	fillReplay(t, first, environment, 8)
	if err := first.Step(); err != nil {
		t.Fatalf("could not update agent: %v", err)
	}
	if err := first.Save(filename); err != nil {
		t.Fatalf("could not save checkpoint: %v", err)
	}

	// A second agent built with the same configuration but a different
	// seed starts with different weights
	second, err := New(newChainEnv(), newTestConfig(t, 8), 99)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := second.Restore(filename); err != nil {
		t.Fatalf("could not restore checkpoint: %v", err)
	}

	firstWeights := snapshotWeights(first)
	secondWeights := snapshotWeights(second)
	for i := range firstWeights {
		for j := range firstWeights[i] {
			if firstWeights[i][j] != secondWeights[i][j] {
				t.Fatalf("restored weight tensor %d differs at index %d",
					i, j)
			}
		}
	}

	if second.totalSteps != first.totalSteps {
		t.Errorf("expected %v total steps, got %v", first.totalSteps,
			second.totalSteps)
	}
	if second.gradientSteps != first.gradientSteps {
		t.Errorf("expected %v gradient steps, got %v", first.gradientSteps,
			second.gradientSteps)
	}
	if second.Loss() != first.Loss() {
		t.Errorf("expected loss %v, got %v", first.Loss(), second.Loss())
	}
}

func TestRestoreRejectsMismatchedArchitecture(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "checkpoint.bin")

	first, err := New(newChainEnv(), newTestConfig(t, 8), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := first.Save(filename); err != nil {
		t.Fatalf("could not save checkpoint: %v", err)
	}

	second, err := New(newChainEnv(), newTestConfig(t, 16), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	before := snapshotWeights(second)
	if err := second.Restore(filename); err == nil {
		t.Fatal("expected an error restoring into a different architecture")
	}

	// No partial state may be applied on a failed restore
	after := snapshotWeights(second)
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Fatalf("failed restore modified weight tensor %d", i)
			}
		}
	}
}

// newLinearConstantConfig returns a configuration whose value network
// is a single linear layer with every weight set to weight and a zero
// bias, so that Q(s, a) is known in closed form
func newLinearConstantConfig(t *testing.T, weight float64) Config {
	t.Helper()

	adam, err := solver.NewDefaultAdam(0.01, 4)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	init, err := initwfn.NewConstant(weight)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}

	return Config{
		PolicyLayers: []int{},
		Biases:       []bool{},
		Activations:  []*network.Activation{},

		InitWFn: init,
		Solver:  adam,

		EpsilonStart: 1.0,

		ExpReplay: expreplay.Config{
			BatchSize:         4,
			MaxReplayCapacity: 8,
			MinReplayCapacity: 4,
		},

		Tau:                  1.0,
		TargetUpdateInterval: 1,
	}
}

// fillConstantBatch feeds the agent transitions whose observations are
// the all-ones vector, with the given reward and discount
func fillConstantBatch(agent *DeepQ, reward, discount float64, n int) {
	obs := mat.NewVecDense(4, []float64{1, 1, 1, 1})
	first := ts.New(ts.First, 0, 0.99, obs, 0)

	stepType := ts.Mid
	if discount == 0 {
		stepType = ts.Last
	}

	for i := 0; i < n; i++ {
		agent.ObserveFirst(first)
		next := ts.New(stepType, reward, discount, obs, 1)
		agent.Observe(mat.NewVecDense(1, []float64{1}), next)
	}
}

func TestStepZeroesBootstrapOnTerminalBatch(t *testing.T) {
	// With every weight 0.1 and the all-ones observation, each action
	// value is 4 * 0.1 = 0.4
	agent, err := New(newChainEnv(), newLinearConstantConfig(t, 0.1), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	// A batch of terminal transitions with reward 0.5. The update
	// target must be the raw reward, so every squared error is
	// (0.5 - 0.4)^2
	fillConstantBatch(agent, 0.5, 0.0, 4)
	if err := agent.Step(); err != nil {
		t.Fatalf("could not update agent: %v", err)
	}

	expected := (0.5 - 0.4) * (0.5 - 0.4)
	if math.Abs(agent.Loss()-expected) > 1e-9 {
		t.Errorf("expected loss %v on an all-terminal batch, got %v",
			expected, agent.Loss())
	}
}

func TestStepBootstrapsWithNonzeroDiscounts(t *testing.T) {
	agent, err := New(newChainEnv(), newLinearConstantConfig(t, 0.1), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	// Every action value is 0.4, so with discount 0.9 the update
	// target is 0.5 + 0.9 * 0.4 and every squared error is
	// (0.5 + 0.36 - 0.4)^2
	fillConstantBatch(agent, 0.5, 0.9, 4)
	if err := agent.Step(); err != nil {
		t.Fatalf("could not update agent: %v", err)
	}

	expected := (0.5 + 0.9*0.4 - 0.4) * (0.5 + 0.9*0.4 - 0.4)
	if math.Abs(agent.Loss()-expected) > 1e-9 {
		t.Errorf("expected loss %v, got %v", expected, agent.Loss())
	}
}

func TestTdErrorZeroesBootstrapOnTerminalTransitions(t *testing.T) {
	environment := newChainEnv()
	agent, err := New(environment, newTestConfig(t, 8), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	state := environment.Reset().Observation
	next, _ := environment.Step(mat.NewVecDense(1, []float64{1}))

	transition := ts.Transition{
		State:     state,
		Action:    mat.NewVecDense(1, []float64{1}),
		Reward:    1.0,
		Discount:  0.0, // Terminal transition
		NextState: next.Observation,
	}

	// With a 0 discount the TD error must not bootstrap from the next
	// state's values at all
	stateValue := agent.actionValues(vecData(state))[1]
	tdError := agent.TdError(transition)
	if math.Abs(tdError-(1.0-stateValue)) > 1e-12 {
		t.Errorf("expected TD error %v, got %v", 1.0-stateValue, tdError)
	}

	// A nonzero discount must add back the bootstrapped value
	transition.Discount = 0.99
	nextValues := agent.actionValues(vecData(next.Observation))
	maxNext := nextValues[0]
	for _, v := range nextValues {
		if v > maxNext {
			maxNext = v
		}
	}

	tdError = agent.TdError(transition)
	expected := 1.0 + 0.99*maxNext - stateValue
	if math.Abs(tdError-expected) > 1e-12 {
		t.Errorf("expected TD error %v, got %v", expected, tdError)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := newTestConfig(t, 8)
	if err := valid.Validate(); err != nil {
		t.Errorf("expected a valid configuration, got %v", err)
	}

	noSolver := newTestConfig(t, 8)
	noSolver.Solver = nil
	if err := noSolver.Validate(); err == nil {
		t.Error("expected an error for a missing solver")
	}

	badTau := newTestConfig(t, 8)
	badTau.Tau = 0
	if err := badTau.Validate(); err == nil {
		t.Error("expected an error for tau = 0")
	}

	badEpsilon := newTestConfig(t, 8)
	badEpsilon.EpsilonStart = 1.5
	if err := badEpsilon.Validate(); err == nil {
		t.Error("expected an error for epsilon > 1")
	}

	badConv := newTestConfig(t, 8)
	badConv.ConvObservations = true
	badConv.FrameDepth = 0
	if err := badConv.Validate(); err == nil {
		t.Error("expected an error for a conv config without frames")
	}
}

// snapshotWeights copies the current values of the agent's learnable
// weights
func snapshotWeights(agent *DeepQ) [][]float64 {
	learnables := agent.trainNet.Learnables()
	weights := make([][]float64, len(learnables))
	for i, learnable := range learnables {
		data := learnable.Value().(*tensor.Dense).Data().([]float64)
		weights[i] = append([]float64(nil), data...)
	}
	return weights
}
