// Package pong implements a self-contained Pong environment with pixel
// observations
package pong

import (
	"fmt"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"

	env "github.com/karush17/pongrl/environment"
	"github.com/karush17/pongrl/timestep"
	"github.com/karush17/pongrl/utils/floatutils"
)

const (
	// FrameSize is the width and height in pixels of rendered
	// observation frames
	FrameSize int = 84

	// Physical constants of the playfield. The field is the unit
	// square with x increasing to the right and y increasing downward,
	// matching image coordinates.
	PaddleHeight float64 = 0.2
	PaddleWidth  float64 = 0.02
	PaddleInset  float64 = 0.04 // Distance of each paddle from its wall
	BallSize     float64 = 0.03

	AgentPaddleSpeed    float64 = 0.04
	OpponentPaddleSpeed float64 = 0.03

	// English added to the vertical velocity on paddle hits,
	// proportional to the hit offset from the paddle center
	spin float64 = 0.1

	// Discrete Actions Env
	MinDiscreteAction int = 0 // Stay
	MaxDiscreteAction int = 2 // 1 = up, 2 = down
)

// Pong implements a two-player Pong game against a scripted opponent.
// The learning agent controls the right paddle. The opponent paddle
// tracks the ball with bounded speed, so it can be beaten by fast,
// angled shots.
//
// Observations are FrameSize x FrameSize grayscale renderings of the
// playfield, flattened row-major into a vector with intensities in
// [0, 1]. Each call to Step advances the game by frameSkip physics
// frames with the chosen action held fixed, accumulating any rally
// rewards, and returns the final frame. Frame preprocessing therefore
// happens inside the environment, and agents see only feature vectors.
type Pong struct {
	env.Task

	ballX, ballY   float64
	ballVX, ballVY float64
	agentY         float64 // Right paddle center
	opponentY      float64 // Left paddle center

	agentScore    int
	opponentScore int

	frameSkip int
	discount  float64
	lastStep  timestep.TimeStep
}

// New returns a new Pong environment with the argument task along with
// the first timestep of the environment
func New(t env.Task, discount float64, frameSkip int) (*Pong,
	timestep.TimeStep, error) {
	if discount < 0 || discount > 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("pong: discount must "+
			"be in [0, 1] \n\thave(%v)", discount)
	}
	if frameSkip < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("pong: frameSkip must "+
			"be positive \n\thave(%v)", frameSkip)
	}

	p := &Pong{
		Task:      t,
		frameSkip: frameSkip,
		discount:  discount,
	}
	firstStep := p.Reset()

	return p, firstStep, nil
}

// Reset resets the environment to the start of a new game and returns
// the starting timestep
func (p *Pong) Reset() timestep.TimeStep {
	p.agentScore = 0
	p.opponentScore = 0
	p.agentY = 0.5
	p.opponentY = 0.5
	p.serve(true)

	startStep := timestep.New(timestep.First, 0, p.discount, p.obs(), 0)
	p.lastStep = startStep
	return startStep
}

// serve places the ball at the center of the field and serves it
// toward the agent if towardAgent is true, otherwise toward the
// opponent. The serve speed and angle are drawn from the task Starter.
func (p *Pong) serve(towardAgent bool) {
	config := p.Start()
	if config.Len() != 2 {
		panic(fmt.Sprintf("serve: starter must produce (speed, vertical "+
			"velocity) \n\twant(2) \n\thave(%v)", config.Len()))
	}

	p.ballX = 0.5
	p.ballY = 0.5
	p.ballVX = config.AtVec(0)
	if !towardAgent {
		p.ballVX *= -1
	}
	p.ballVY = config.AtVec(1)
}

// Step takes one environmental step given action a and returns the
// next timestep and whether that timestep is the last in the episode.
// Actions are single-dimensional and drawn from {0 = stay, 1 = up,
// 2 = down}. Any other action is invalid, and the environment fails
// loudly rather than continuing with undefined state.
func (p *Pong) Step(a mat.Vector) (timestep.TimeStep, bool) {
	action := int(a.AtVec(0))
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		panic(fmt.Sprintf("step: illegal action %v \n\tlegal actions in "+
			"[%v, %v]", action, MinDiscreteAction, MaxDiscreteAction))
	}

	reward := 0.0
	for i := 0; i < p.frameSkip; i++ {
		reward += p.advance(action)
	}

	// Check if this transition ends the episode
	number := p.lastStep.Number + 1
	stepType := timestep.Mid
	discount := p.discount

	score := mat.NewDense(1, 2, []float64{
		float64(p.opponentScore),
		float64(p.agentScore),
	})
	if p.AtGoal(score) || number >= p.StepLimit() {
		stepType = timestep.Last
		discount = 0.0
	}

	step := timestep.New(stepType, reward, discount, p.obs(), number)
	p.lastStep = step

	return step, stepType == timestep.Last
}

// advance runs a single physics frame and returns any rally reward
// produced by the frame
func (p *Pong) advance(action int) float64 {
	// Move the agent paddle
	switch action {
	case 1:
		p.agentY -= AgentPaddleSpeed
	case 2:
		p.agentY += AgentPaddleSpeed
	}
	p.agentY = floatutils.Clip(p.agentY, PaddleHeight/2, 1-PaddleHeight/2)

	// The opponent tracks the ball with bounded speed
	diff := p.ballY - p.opponentY
	p.opponentY += floatutils.Clip(diff, -OpponentPaddleSpeed,
		OpponentPaddleSpeed)
	p.opponentY = floatutils.Clip(p.opponentY, PaddleHeight/2,
		1-PaddleHeight/2)

	// Move the ball
	p.ballX += p.ballVX
	p.ballY += p.ballVY

	// Bounce off the top and bottom walls
	if p.ballY < 0 {
		p.ballY *= -1
		p.ballVY *= -1
	} else if p.ballY > 1 {
		p.ballY = 2 - p.ballY
		p.ballVY *= -1
	}

	// Paddle collisions and missed balls
	if p.ballVX < 0 && p.ballX <= PaddleInset+PaddleWidth {
		if p.hits(p.opponentY) {
			p.ballX = PaddleInset + PaddleWidth
			p.ballVX *= -1
			p.ballVY += spin * (p.ballY - p.opponentY)
		} else if p.ballX <= 0 {
			// Opponent missed: agent scores and the opponent
			// receives the next serve
			p.agentScore++
			p.serve(false)
			return p.GetReward(true)
		}
	} else if p.ballVX > 0 && p.ballX >= 1-PaddleInset-PaddleWidth {
		if p.hits(p.agentY) {
			p.ballX = 1 - PaddleInset - PaddleWidth
			p.ballVX *= -1
			p.ballVY += spin * (p.ballY - p.agentY)
		} else if p.ballX >= 1 {
			p.opponentScore++
			p.serve(true)
			return p.GetReward(false)
		}
	}

	return 0.0
}

// hits returns whether the ball is within reach of a paddle centered
// at paddleY
func (p *Pong) hits(paddleY float64) bool {
	return p.ballY >= paddleY-PaddleHeight/2-BallSize/2 &&
		p.ballY <= paddleY+PaddleHeight/2+BallSize/2
}

// Scores returns the current (opponent, agent) score
func (p *Pong) Scores() (int, int) {
	return p.opponentScore, p.agentScore
}

// obs renders the playfield and returns it as a flattened grayscale
// observation vector
func (p *Pong) obs() mat.Vector {
	size := float64(FrameSize)

	dc := gg.NewContext(FrameSize, FrameSize)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)

	// Paddles
	dc.DrawRectangle(PaddleInset*size,
		(p.opponentY-PaddleHeight/2)*size, PaddleWidth*size,
		PaddleHeight*size)
	dc.DrawRectangle((1-PaddleInset-PaddleWidth)*size,
		(p.agentY-PaddleHeight/2)*size, PaddleWidth*size,
		PaddleHeight*size)

	// Ball
	dc.DrawRectangle((p.ballX-BallSize/2)*size, (p.ballY-BallSize/2)*size,
		BallSize*size, BallSize*size)
	dc.Fill()

	img := dc.Image()
	frame := make([]float64, FrameSize*FrameSize)
	for y := 0; y < FrameSize; y++ {
		for x := 0; x < FrameSize; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			frame[y*FrameSize+x] = float64(r) / 0xffff
		}
	}

	return mat.NewVecDense(len(frame), frame)
}

// ObservationSpec returns the observation specification of the
// environment
func (p *Pong) ObservationSpec() env.Spec {
	length := FrameSize * FrameSize
	shape := mat.NewVecDense(length, nil)
	lowerBound := mat.NewVecDense(length, nil)

	upper := make([]float64, length)
	for i := range upper {
		upper[i] = 1.0
	}
	upperBound := mat.NewVecDense(length, upper)

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// ActionSpec returns the action specification of the environment
func (p *Pong) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(1, []float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// DiscountSpec returns the discounting specification of the environment
func (p *Pong) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{p.discount})
	upperBound := mat.NewVecDense(1, []float64{p.discount})

	return env.NewSpec(shape, env.Discount, lowerBound, upperBound,
		env.Continuous)
}
