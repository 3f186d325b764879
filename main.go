// Command pongrl trains a deep Q-learning agent to play a simulated
// game of Pong from pixel observations.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/karush17/pongrl/agent/deepq"
	"github.com/karush17/pongrl/environment"
	"github.com/karush17/pongrl/environment/pong"
	"github.com/karush17/pongrl/environment/wrappers"
	"github.com/karush17/pongrl/experiment"
	"github.com/karush17/pongrl/experiment/checkpointer"
	"github.com/karush17/pongrl/experiment/tracker"
	"github.com/karush17/pongrl/expreplay"
	"github.com/karush17/pongrl/initwfn"
	"github.com/karush17/pongrl/solver"
	"github.com/karush17/pongrl/utils/intutils"
)

// Serve physics. Each rally starts with a ball speed and vertical
// velocity drawn uniformly from these intervals.
var serveBounds = []r1.Interval{
	{Min: 0.015, Max: 0.03}, // Horizontal speed
	{Min: -0.02, Max: 0.02}, // Vertical velocity
}

func main() {
	root := &cobra.Command{
		Use:   "pongrl",
		Short: "Deep Q-learning on a simulated game of Pong",
	}
	root.AddCommand(trainCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// trainCommand returns the command that runs a training experiment
func trainCommand() *cobra.Command {
	var (
		steps            uint
		seed             int64
		dataDir          string
		resume           string
		progressInterval uint

		frameStack int
		frameSkip  int
		stepLimit  int
		points     int
		discount   float64

		learningRate   float64
		batchSize      int
		replayCapacity int
		replayMin      int

		epsilonStart float64
		epsilonEnd   float64
		epsilonDecay float64

		targetInterval     int
		checkpointInterval int
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an agent and save its learning curves",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("train: could not create data "+
					"directory: %v", err)
			}

			starter := environment.NewUniformStarter(serveBounds,
				uint64(seed))
			task := pong.NewRally(starter, stepLimit, points)
			game, _, err := pong.New(task, discount, frameSkip)
			if err != nil {
				return fmt.Errorf("train: could not create environment: %v",
					err)
			}
			env, err := wrappers.NewFrameStack(game, frameStack)
			if err != nil {
				return fmt.Errorf("train: could not stack frames: %v", err)
			}

			adam, err := solver.NewDefaultAdam(learningRate, batchSize)
			if err != nil {
				return fmt.Errorf("train: could not create solver: %v", err)
			}
			init, err := initwfn.NewGlorotU(math.Sqrt2)
			if err != nil {
				return fmt.Errorf("train: could not create weight "+
					"initializer: %v", err)
			}

			config := deepq.Config{
				ConvObservations: true,
				FrameDepth:       frameStack,
				FrameSize:        pong.FrameSize,

				InitWFn: init,
				Solver:  adam,

				EpsilonStart: epsilonStart,
				EpsilonEnd:   epsilonEnd,
				EpsilonDecay: epsilonDecay,

				ExpReplay: expreplay.Config{
					BatchSize:         batchSize,
					MaxReplayCapacity: replayCapacity,
					// Sampling needs at least a full batch in the buffer
					MinReplayCapacity: intutils.Max(replayMin, batchSize),
				},

				Tau:                  1.0,
				TargetUpdateInterval: targetInterval,
			}

			agent, err := deepq.New(env, config, seed)
			if err != nil {
				return fmt.Errorf("train: could not create agent: %v", err)
			}
			if resume != "" {
				if err := agent.Restore(resume); err != nil {
					return fmt.Errorf("train: could not resume from "+
						"checkpoint: %v", err)
				}
				log.Printf("resumed training from %v", resume)
			}

			returnsFile := filepath.Join(dataDir, "returns.bin")
			lossesFile := filepath.Join(dataDir, "losses.bin")
			trackers := []tracker.Tracker{
				tracker.NewReturn(returnsFile),
				tracker.NewLoss(agent, lossesFile),
			}

			saver, err := checkpointer.NewNStep(checkpointInterval, agent,
				filepath.Join(dataDir, "checkpoint.bin"))
			if err != nil {
				return fmt.Errorf("train: could not create "+
					"checkpointer: %v", err)
			}

			exp := experiment.NewOnline(env, agent, steps, trackers,
				[]checkpointer.Checkpointer{saver}, progressInterval)
			log.Printf("starting run %v for %d steps", exp.RunID(), steps)

			if err := exp.Run(); err != nil {
				return fmt.Errorf("train: %v", err)
			}
			if err := exp.Save(); err != nil {
				return fmt.Errorf("train: could not save tracked data: %v",
					err)
			}

			return plotRun(dataDir, returnsFile, lossesFile)
		},
	}

	flags := cmd.Flags()
	flags.UintVar(&steps, "steps", 500000, "environment step budget")
	flags.Int64Var(&seed, "seed", 42, "random seed for the run")
	flags.StringVar(&dataDir, "data-dir", "data",
		"directory for checkpoints, tracked data, and plots")
	flags.StringVar(&resume, "resume", "",
		"checkpoint file to resume training from")
	flags.UintVar(&progressInterval, "progress-every", 500,
		"steps between progress reports, 0 to disable")

	flags.IntVar(&frameStack, "frame-stack", 4,
		"number of frames stacked into an observation")
	flags.IntVar(&frameSkip, "frame-skip", 4,
		"times each action is repeated")
	flags.IntVar(&stepLimit, "step-limit", 2500,
		"maximum environment steps per episode")
	flags.IntVar(&points, "points", 1, "points needed to end an episode")
	flags.Float64Var(&discount, "discount", 0.99, "discount factor")

	flags.Float64Var(&learningRate, "lr", 1e-4, "Adam step size")
	flags.IntVar(&batchSize, "batch", 32, "gradient update batch size")
	// Each buffered transition stores two stacked-frame observations,
	// roughly 450 KB at the default frame settings
	flags.IntVar(&replayCapacity, "replay-capacity", 10000,
		"maximum transitions held in the replay buffer, each costing "+
			"memory for two stacked-frame observations")
	flags.IntVar(&replayMin, "replay-min", 1000,
		"transitions required before updates begin")

	flags.Float64Var(&epsilonStart, "epsilon-start", 1.0,
		"initial exploration rate")
	flags.Float64Var(&epsilonEnd, "epsilon-end", 0.02,
		"final exploration rate")
	flags.Float64Var(&epsilonDecay, "epsilon-decay", 100000,
		"exploration decay time constant in steps, <= 0 for constant")

	flags.IntVar(&targetInterval, "target-every", 1000,
		"gradient steps between target network updates")
	flags.IntVar(&checkpointInterval, "checkpoint-every", 10000,
		"environment steps between checkpoints")

	return cmd
}

// plotRun renders the learning curves of a finished run as PNG images
// in dataDir
func plotRun(dataDir, returnsFile, lossesFile string) error {
	returns, err := tracker.LoadData(returnsFile)
	if err != nil {
		return fmt.Errorf("train: could not load returns: %v", err)
	}
	err = tracker.Plot(filepath.Join(dataDir, "returns.png"),
		"Episodic Return", "Episode", "Return", returns)
	if err != nil {
		return fmt.Errorf("train: could not plot returns: %v", err)
	}

	losses, err := tracker.LoadData(lossesFile)
	if err != nil {
		return fmt.Errorf("train: could not load losses: %v", err)
	}
	err = tracker.Plot(filepath.Join(dataDir, "losses.png"),
		"Training Loss", "Update", "Loss", losses)
	if err != nil {
		return fmt.Errorf("train: could not plot losses: %v", err)
	}

	return nil
}
