package policy

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/karush17/pongrl/network"
)

// newTestNet returns a small linear action-value network with 2
// features and 3 actions
func newTestNet(t *testing.T) network.NeuralNet {
	t.Helper()

	g := G.NewGraph()
	net, err := network.NewMultiHeadMLP(2, 1, 3, g, []int{}, []bool{},
		G.GlorotU(1.0), []*network.Activation{})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

func TestFullyExploratoryPolicyNeedsNoForwardPass(t *testing.T) {
	net := newTestNet(t)
	egreedy, err := NewEGreedy(net, 1.0, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	// The network's graph is never run, so the policy must select
	// actions from the exploratory branch alone
	action, value := egreedy.SelectAction()
	if action.Len() != 1 {
		t.Errorf("expected a 1-dimensional action, got %v", action.Len())
	}
	if !math.IsNaN(value) {
		t.Errorf("expected a NaN value estimate for a random action, "+
			"got %v", value)
	}
}

func TestExploratoryActionsReportNoValueEstimate(t *testing.T) {
	net := newTestNet(t)
	egreedy, err := NewEGreedy(net, 1.0, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := net.SetInput([]float64{1.0, 2.0}); err != nil {
		t.Fatalf("could not set network input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run network: %v", err)
	}
	vm.Reset()

	// The network holds predictions for an old observation, but a
	// randomly chosen action must not be paired with them
	for i := 0; i < 10; i++ {
		_, value := egreedy.SelectAction()
		if !math.IsNaN(value) {
			t.Fatalf("expected a NaN value estimate for a random action, "+
				"got %v", value)
		}
	}
}

func TestFullyExploratoryPolicySelectsUniformly(t *testing.T) {
	net := newTestNet(t)
	egreedy, err := NewEGreedy(net, 1.0, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	const draws = 9000
	counts := make([]int, net.Outputs())
	for i := 0; i < draws; i++ {
		action, _ := egreedy.SelectAction()
		counts[int(action.AtVec(0))]++
	}

	for action, count := range counts {
		frequency := float64(count) / draws
		if math.Abs(frequency-1.0/3.0) > 0.05 {
			t.Errorf("action %d selected with frequency %v, expected "+
				"approximately 1/3", action, frequency)
		}
	}
}

func TestGreedyPolicySelectsHighestValuedAction(t *testing.T) {
	net := newTestNet(t)
	egreedy, err := NewEGreedy(net, 0.0, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := net.SetInput([]float64{1.0, 2.0}); err != nil {
		t.Fatalf("could not set network input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run network: %v", err)
	}
	defer vm.Reset()

	values := net.Output().Data().([]float64)
	best, bestValue := 0, values[0]
	for i, v := range values {
		if v > bestValue {
			best, bestValue = i, v
		}
	}

	action, value := egreedy.SelectAction()
	if int(action.AtVec(0)) != best {
		t.Errorf("expected greedy action %d, got %v", best, action.AtVec(0))
	}
	if value != bestValue {
		t.Errorf("expected value %v, got %v", bestValue, value)
	}
}

func TestSetEpsilon(t *testing.T) {
	net := newTestNet(t)
	egreedy, err := NewEGreedy(net, 0.25, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	if eps := egreedy.Epsilon(); eps != 0.25 {
		t.Errorf("expected epsilon 0.25, got %v", eps)
	}
	egreedy.SetEpsilon(0.5)
	if eps := egreedy.Epsilon(); eps != 0.5 {
		t.Errorf("expected epsilon 0.5, got %v", eps)
	}
}
