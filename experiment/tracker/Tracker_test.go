package tracker

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	ts "github.com/karush17/pongrl/timestep"
)

func step(stepType ts.StepType, reward float64, number int) ts.TimeStep {
	obs := mat.NewVecDense(1, []float64{0})
	return ts.New(stepType, reward, 0.99, obs, number)
}

func TestReturnTracksEpisodicReturns(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	tracker := NewReturn(filename)

	// First episode: rewards 1 + 2 + 3
	tracker.Track(step(ts.First, 0, 0))
	tracker.Track(step(ts.Mid, 1, 1))
	tracker.Track(step(ts.Mid, 2, 2))
	tracker.Track(step(ts.Last, 3, 3))

	// Second episode: a single -1 step
	tracker.Track(step(ts.First, 0, 0))
	tracker.Track(step(ts.Last, -1, 1))

	if err := tracker.Save(); err != nil {
		t.Fatalf("could not save returns: %v", err)
	}

	returns, err := LoadData(filename)
	if err != nil {
		t.Fatalf("could not load returns: %v", err)
	}

	expected := []float64{6, -1}
	if len(returns) != len(expected) {
		t.Fatalf("expected %v returns, got %v", len(expected), len(returns))
	}
	for i := range expected {
		if returns[i] != expected[i] {
			t.Errorf("episode %d: expected return %v, got %v", i,
				expected[i], returns[i])
		}
	}
}

func TestReturnIgnoresUnfinishedEpisodes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	tracker := NewReturn(filename)

	tracker.Track(step(ts.First, 0, 0))
	tracker.Track(step(ts.Last, 5, 1))

	// An episode cut off mid-run contributes no return
	tracker.Track(step(ts.First, 0, 0))
	tracker.Track(step(ts.Mid, 100, 1))

	if err := tracker.Save(); err != nil {
		t.Fatalf("could not save returns: %v", err)
	}
	returns, err := LoadData(filename)
	if err != nil {
		t.Fatalf("could not load returns: %v", err)
	}

	if len(returns) != 1 || returns[0] != 5 {
		t.Errorf("expected returns [5], got %v", returns)
	}
}

// stubReporter reports a fixed sequence of losses
type stubReporter struct {
	losses []float64
	calls  int
}

func (s *stubReporter) Loss() float64 {
	loss := s.losses[s.calls%len(s.losses)]
	s.calls++
	return loss
}

func TestLossSkipsStepsBeforeFirstUpdate(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "losses.bin")
	reporter := &stubReporter{
		losses: []float64{math.NaN(), math.NaN(), 0.5, 0.25},
	}
	tracker := NewLoss(reporter, filename)

	tracker.Track(step(ts.First, 0, 0))
	for i := 1; i <= 4; i++ {
		tracker.Track(step(ts.Mid, 0, i))
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("could not save losses: %v", err)
	}
	losses, err := LoadData(filename)
	if err != nil {
		t.Fatalf("could not load losses: %v", err)
	}

	expected := []float64{0.5, 0.25}
	if len(losses) != len(expected) {
		t.Fatalf("expected %v losses, got %v", len(expected), len(losses))
	}
	for i := range expected {
		if losses[i] != expected[i] {
			t.Errorf("update %d: expected loss %v, got %v", i, expected[i],
				losses[i])
		}
	}
}

func TestLoadDataMissingFile(t *testing.T) {
	if _, err := LoadData(filepath.Join(t.TempDir(), "none.bin")); err == nil {
		t.Error("expected an error for a missing data file")
	}
}
