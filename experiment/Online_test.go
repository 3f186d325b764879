package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/karush17/pongrl/agent/deepq"
	env "github.com/karush17/pongrl/environment"
	"github.com/karush17/pongrl/experiment/checkpointer"
	"github.com/karush17/pongrl/experiment/tracker"
	"github.com/karush17/pongrl/expreplay"
	"github.com/karush17/pongrl/initwfn"
	"github.com/karush17/pongrl/network"
	"github.com/karush17/pongrl/solver"
	ts "github.com/karush17/pongrl/timestep"
)

// walkEnv is a minimal deterministic environment: every episode lasts
// exactly 10 steps and every step gives a reward of 1
type walkEnv struct {
	stepNum int
}

func (w *walkEnv) Start() mat.Vector {
	return mat.NewVecDense(1, []float64{0})
}

func (w *walkEnv) GetReward(won bool) float64 { return 1.0 }

func (w *walkEnv) AtGoal(score mat.Matrix) bool { return false }

func (w *walkEnv) StepLimit() int { return 10 }

func (w *walkEnv) obs() mat.Vector {
	scaled := float64(w.stepNum) / 10.0
	return mat.NewVecDense(2, []float64{scaled, 1 - scaled})
}

func (w *walkEnv) Reset() ts.TimeStep {
	w.stepNum = 0
	return ts.New(ts.First, 0, 0.99, w.obs(), 0)
}

func (w *walkEnv) Step(a mat.Vector) (ts.TimeStep, bool) {
	w.stepNum++

	stepType := ts.Mid
	discount := 0.99
	if w.stepNum >= w.StepLimit() {
		stepType = ts.Last
		discount = 0.0
	}

	step := ts.New(stepType, w.GetReward(true), discount, w.obs(), w.stepNum)
	return step, stepType == ts.Last
}

func (w *walkEnv) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(2, nil)
	lower := mat.NewVecDense(2, nil)
	upper := mat.NewVecDense(2, []float64{1, 1})
	return env.NewSpec(shape, env.Observation, lower, upper, env.Continuous)
}

func (w *walkEnv) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{2})
	return env.NewSpec(shape, env.Action, lower, upper, env.Discrete)
}

func (w *walkEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{0.99})
	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// newWalkAgent returns a fully exploratory agent whose replay buffer
// requires minCapacity transitions before updates begin
func newWalkAgent(t *testing.T, environment env.Environment,
	minCapacity int) *deepq.DeepQ {
	t.Helper()

	adam, err := solver.NewDefaultAdam(0.01, 4)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}

	config := deepq.Config{
		PolicyLayers: []int{4},
		Biases:       []bool{true},
		Activations:  []*network.Activation{network.ReLU()},

		InitWFn: init,
		Solver:  adam,

		EpsilonStart: 1.0,

		ExpReplay: expreplay.Config{
			BatchSize:         4,
			MaxReplayCapacity: 1000,
			MinReplayCapacity: minCapacity,
		},

		Tau:                  1.0,
		TargetUpdateInterval: 1,
	}

	agent, err := deepq.New(environment, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	return agent
}

func TestOnlineTracksEveryCompletedEpisode(t *testing.T) {
	environment := &walkEnv{}
	agent := newWalkAgent(t, environment, 4)

	returnsFile := filepath.Join(t.TempDir(), "returns.bin")
	trackers := []tracker.Tracker{tracker.NewReturn(returnsFile)}

	exp := NewOnline(environment, agent, 50, trackers, nil, 0)
	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}
	if err := exp.Save(); err != nil {
		t.Fatalf("could not save tracked data: %v", err)
	}

	returns, err := tracker.LoadData(returnsFile)
	if err != nil {
		t.Fatalf("could not load returns: %v", err)
	}

	// A budget of 50 steps over 10-step episodes yields 5 episodes,
	// each with a return of 10
	if len(returns) != 5 {
		t.Fatalf("expected 5 episodic returns, got %v", len(returns))
	}
	for i, episodeReturn := range returns {
		if episodeReturn != 10.0 {
			t.Errorf("episode %d: expected return 10, got %v", i,
				episodeReturn)
		}
	}
}

func TestOnlineSkipsUpdatesDuringWarmUp(t *testing.T) {
	environment := &walkEnv{}

	// The buffer never reaches its minimum capacity within the budget,
	// so no gradient update may happen and no loss may be recorded
	agent := newWalkAgent(t, environment, 100)

	lossesFile := filepath.Join(t.TempDir(), "losses.bin")
	trackers := []tracker.Tracker{tracker.NewLoss(agent, lossesFile)}

	exp := NewOnline(environment, agent, 50, trackers, nil, 0)
	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}
	if err := exp.Save(); err != nil {
		t.Fatalf("could not save tracked data: %v", err)
	}

	losses, err := tracker.LoadData(lossesFile)
	if err != nil {
		t.Fatalf("could not load losses: %v", err)
	}
	if len(losses) != 0 {
		t.Errorf("expected no recorded losses during warm-up, got %v",
			len(losses))
	}
}

func TestOnlineCheckpointsOnInterval(t *testing.T) {
	environment := &walkEnv{}
	agent := newWalkAgent(t, environment, 4)

	checkpointFile := filepath.Join(t.TempDir(), "checkpoint.bin")
	saver, err := checkpointer.NewNStep(25, agent, checkpointFile)
	if err != nil {
		t.Fatalf("could not create checkpointer: %v", err)
	}

	exp := NewOnline(environment, agent, 50, nil,
		[]checkpointer.Checkpointer{saver}, 0)
	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}

	if _, err := os.Stat(checkpointFile); err != nil {
		t.Errorf("expected a checkpoint file at %v: %v", checkpointFile,
			err)
	}
}

func TestOnlineDoesNotCheckpointBeforeInterval(t *testing.T) {
	environment := &walkEnv{}
	agent := newWalkAgent(t, environment, 4)

	checkpointFile := filepath.Join(t.TempDir(), "checkpoint.bin")
	saver, err := checkpointer.NewNStep(1000, agent, checkpointFile)
	if err != nil {
		t.Fatalf("could not create checkpointer: %v", err)
	}

	exp := NewOnline(environment, agent, 50, nil,
		[]checkpointer.Checkpointer{saver}, 0)
	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}

	if _, err := os.Stat(checkpointFile); !os.IsNotExist(err) {
		t.Error("expected no checkpoint file before the interval")
	}
}
