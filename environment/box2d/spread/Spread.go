// Package spread provides a cooperative navigation environment.
//
// In this environment, a team of agents moves in a bounded
// two-dimensional arena containing as many fixed landmarks as there
// are agents. The team is rewarded for spreading out so that every
// landmark has some agent close to it, and penalised whenever two
// agents collide. All agents receive the same team reward at every
// step, so the environment is fully cooperative.
//
// State observations for an agent are vectors consisting of the
// following features in the following order:
//
//  1. The x and y velocity of the agent
//     Bounds: [-MaxVelocity, MaxVelocity]
//  2. The x and y position of the agent
//     Bounds: [-ArenaHalfWidth, ArenaHalfWidth]
//  3. For each landmark in index order, the position of the landmark
//     relative to the agent
//     Bounds: [-2 * ArenaHalfWidth, 2 * ArenaHalfWidth]
//  4. For each other agent in index order, the position of that agent
//     relative to the agent
//     Bounds: [-2 * ArenaHalfWidth, 2 * ArenaHalfWidth]
//
// Actions are 2-dimensional and continuous. The two action dimensions
// are the x and y force to apply to the agent's body, each bounded
// between [MinAction, MaxAction]. Actions outside this range are
// clipped. Forces are scaled by ForceScale before being applied, and
// agent bodies are damped so that they coast to a stop when no force
// is applied.
//
// The physics of the arena are simulated with Box2D. Agents are
// dynamic circular bodies which collide with each other and with the
// arena walls. Landmarks are disembodied points which agents may move
// over freely.
//
// Episodes never terminate from the environment dynamics themselves.
// By default a step limit ends each episode after StepLimit steps, and
// the discount on the final step is left untouched so that the cutoff
// is distinguishable from reaching an absorbing state.
package spread

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/timestep"
	"github.com/samuelfneumann/gomarl/utils/floatutils"
)

const (
	FPS float64 = 50

	// Arena geometry, in Box2D world units
	ArenaHalfWidth float64 = 1.0
	AgentRadius    float64 = 0.1
	LandmarkRadius float64 = 0.04

	// Physics
	ForceScale    float64 = 5.0
	LinearDamping float64 = 2.5
	AgentDensity  float64 = 1.0
	AgentFriction float64 = 0.1

	VelocityIterations int = 6
	PositionIterations int = 2

	// Action
	MaxAction float64 = 1.0
	MinAction float64 = -MaxAction

	// Box2D limits on velocity: 2.0 units per timestep
	MaxVelocity float64 = 2.0 / (1.0 / FPS)
	MinVelocity float64 = -MaxVelocity

	// Rewards
	CollisionPenalty float64 = 1.0

	// Default number of steps before an episode is cut off
	StepLimit int = 25

	// Starting positions keep away from the walls by this margin
	startMargin float64 = 0.1
)

// contactDetector counts how many pairs of agents are currently in
// contact. Contacts with the arena walls are not counted.
type contactDetector struct {
	env *spread
}

func newContactDetector(e *spread) *contactDetector {
	return &contactDetector{e}
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	a := contact.GetFixtureA().GetBody()
	b := contact.GetFixtureB().GetBody()
	if c.env.agentIndex(a) >= 0 && c.env.agentIndex(b) >= 0 {
		c.env.collisions++
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {
	a := contact.GetFixtureA().GetBody()
	b := contact.GetFixtureB().GetBody()
	if c.env.agentIndex(a) >= 0 && c.env.agentIndex(b) >= 0 {
		c.env.collisions--
	}
}

func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}

func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
}

type spread struct {
	world box2d.B2World

	agents    []string
	bodies    []*box2d.B2Body
	walls     []*box2d.B2Body
	landmarks []box2d.B2Vec2

	starter    environment.UniformStarter
	ender      environment.Ender
	collisions int

	stateInfo bool
	discount  float64
	seed      uint64

	actionBounds r1.Interval
	prevStep     timestep.TimeStep

	agentShade    color.Color
	landmarkShade color.Color
	arenaShade    color.Color
}

// New returns a new cooperative navigation environment with numAgents
// agents and numAgents landmarks, along with the first timestep of the
// first episode. The discount argument is the discount reported on
// every timestep.
func New(numAgents int, discount float64, seed uint64,
	opts ...Option) (environment.Environment, timestep.TimeStep, error) {
	if numAgents < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: environment "+
			"requires at least one agent \n\thave(%v)", numAgents)
	}
	if discount < 0.0 || discount > 1.0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: discount must be "+
			"in [0, 1] \n\thave(%v)", discount)
	}

	s := &spread{}
	s.world = box2d.MakeB2World(box2d.B2Vec2{X: 0.0, Y: 0.0})

	s.agents = make([]string, numAgents)
	for i := range s.agents {
		s.agents[i] = fmt.Sprintf("agent_%d", i)
	}
	sort.Strings(s.agents)

	bound := ArenaHalfWidth - startMargin
	s.starter = environment.NewUniformStarter([]r1.Interval{
		{Min: -bound, Max: bound},
		{Min: -bound, Max: bound},
	}, seed)
	s.ender = environment.NewStepLimit(StepLimit)

	s.discount = discount
	s.seed = seed
	s.actionBounds = r1.Interval{Min: MinAction, Max: MaxAction}

	s.agentShade = color.RGBA{R: 128, G: 102, B: 230, A: 255}
	s.landmarkShade = color.RGBA{R: 64, G: 64, B: 64, A: 255}
	s.arenaShade = color.RGBA{R: 240, G: 240, B: 240, A: 255}

	for _, opt := range opts {
		opt(s)
	}

	step := s.Reset()

	if s.stateInfo {
		return &stateSpread{s}, step, nil
	}
	return s, step, nil
}

// Agents returns the names of the agents in the environment
func (s *spread) Agents() []string {
	agents := make([]string, len(s.agents))
	copy(agents, s.agents)
	return agents
}

// agentIndex returns the index of the agent controlling body, or -1
// if body is not an agent body
func (s *spread) agentIndex(body *box2d.B2Body) int {
	for i := range s.bodies {
		if s.bodies[i] == body {
			return i
		}
	}
	return -1
}

func (s *spread) destroy() {
	if len(s.bodies) == 0 {
		return
	}
	s.world.SetContactListener(nil)
	for _, body := range s.bodies {
		s.world.DestroyBody(body)
	}
	for _, wall := range s.walls {
		s.world.DestroyBody(wall)
	}
	s.bodies = nil
	s.walls = nil
}

// Reset resets the environment, placing each agent and landmark
// uniformly at random in the arena, and returns the first timestep of
// the new episode
func (s *spread) Reset() timestep.TimeStep {
	s.destroy()
	s.world.SetContactListener(newContactDetector(s))
	s.collisions = 0

	// Arena walls
	s.walls = make([]*box2d.B2Body, 4)
	corners := [][2]box2d.B2Vec2{
		{box2d.MakeB2Vec2(-ArenaHalfWidth, -ArenaHalfWidth),
			box2d.MakeB2Vec2(-ArenaHalfWidth, ArenaHalfWidth)},
		{box2d.MakeB2Vec2(-ArenaHalfWidth, ArenaHalfWidth),
			box2d.MakeB2Vec2(ArenaHalfWidth, ArenaHalfWidth)},
		{box2d.MakeB2Vec2(ArenaHalfWidth, ArenaHalfWidth),
			box2d.MakeB2Vec2(ArenaHalfWidth, -ArenaHalfWidth)},
		{box2d.MakeB2Vec2(ArenaHalfWidth, -ArenaHalfWidth),
			box2d.MakeB2Vec2(-ArenaHalfWidth, -ArenaHalfWidth)},
	}
	for i := range s.walls {
		wallDef := box2d.NewB2BodyDef()
		wallDef.Type = 0 // Static body
		s.walls[i] = s.world.CreateBody(wallDef)

		wallShape := box2d.NewB2EdgeShape()
		wallShape.Set(corners[i][0], corners[i][1])

		wallFix := box2d.MakeB2FixtureDef()
		wallFix.Shape = wallShape
		s.walls[i].CreateFixtureFromDef(&wallFix)
	}

	// Agent bodies
	s.bodies = make([]*box2d.B2Body, len(s.agents))
	for i, start := range s.starter.StartN(len(s.agents)) {
		bodyDef := box2d.MakeB2BodyDef()
		bodyDef.Type = 2 // Dynamic body
		bodyDef.Position = box2d.MakeB2Vec2(start.AtVec(0), start.AtVec(1))
		bodyDef.LinearDamping = LinearDamping

		body := s.world.CreateBody(&bodyDef)

		shape := box2d.NewB2CircleShape()
		shape.M_radius = AgentRadius

		fixture := box2d.MakeB2FixtureDef()
		fixture.Shape = shape
		fixture.Density = AgentDensity
		fixture.Friction = AgentFriction
		fixture.Restitution = 0.0
		body.CreateFixtureFromDef(&fixture)

		s.bodies[i] = body
	}

	// Landmarks
	s.landmarks = make([]box2d.B2Vec2, len(s.agents))
	for i, start := range s.starter.StartN(len(s.agents)) {
		s.landmarks[i] = box2d.MakeB2Vec2(start.AtVec(0), start.AtVec(1))
	}

	rewards := make(map[string]float64, len(s.agents))
	discounts := make(map[string]float64, len(s.agents))
	for _, agent := range s.agents {
		rewards[agent] = 0.0
		discounts[agent] = s.discount
	}

	var step timestep.TimeStep
	if s.stateInfo {
		step = timestep.NewWithState(timestep.First, rewards, discounts,
			s.observations(), s.state(), 0)
	} else {
		step = timestep.New(timestep.First, rewards, discounts,
			s.observations(), 0)
	}
	s.prevStep = step
	return step
}

// Step takes one environment step given an action for each agent.
// Actions outside of [MinAction, MaxAction] are clipped.
func (s *spread) Step(actions map[string]*mat.VecDense) (timestep.TimeStep,
	bool, error) {
	for i, agent := range s.agents {
		action, ok := actions[agent]
		if !ok {
			return timestep.TimeStep{}, true, fmt.Errorf("step: no action "+
				"for agent %v", agent)
		}
		if action.Len() != 2 {
			return timestep.TimeStep{}, true, fmt.Errorf("step: illegal "+
				"action dimensions for agent %v \n\twant(%v)\n\thave(%v)",
				agent, 2, action.Len())
		}

		// Clip actions
		for j := 0; j < action.Len(); j++ {
			action.SetVec(j, floatutils.ClipInterval(action.AtVec(j),
				s.actionBounds))
		}

		force := box2d.MakeB2Vec2(
			action.AtVec(0)*ForceScale,
			action.AtVec(1)*ForceScale,
		)
		s.bodies[i].ApplyForceToCenter(force, true)
	}

	s.world.Step(1.0/FPS, VelocityIterations, PositionIterations)

	reward := s.teamReward()
	rewards := make(map[string]float64, len(s.agents))
	discounts := make(map[string]float64, len(s.agents))
	for _, agent := range s.agents {
		rewards[agent] = reward
		discounts[agent] = s.discount
	}

	var step timestep.TimeStep
	if s.stateInfo {
		step = timestep.NewWithState(timestep.Mid, rewards, discounts,
			s.observations(), s.state(), s.prevStep.Number+1)
	} else {
		step = timestep.New(timestep.Mid, rewards, discounts,
			s.observations(), s.prevStep.Number+1)
	}

	last := s.ender.End(&step)
	s.prevStep = step
	return step, last, nil
}

// teamReward computes the shared reward for the current physics state
func (s *spread) teamReward() float64 {
	occupancy := 0.0
	for _, landmark := range s.landmarks {
		closest := math.Inf(1)
		for _, body := range s.bodies {
			pos := body.GetPosition()
			dist := math.Hypot(pos.X-landmark.X, pos.Y-landmark.Y)
			closest = math.Min(closest, dist)
		}
		occupancy += closest
	}

	return -occupancy - CollisionPenalty*float64(s.collisions)
}

// observations constructs the per-agent observation vectors for the
// current physics state
func (s *spread) observations() map[string]*mat.VecDense {
	dims := s.obsDims()
	observations := make(map[string]*mat.VecDense, len(s.agents))

	for i, agent := range s.agents {
		pos := s.bodies[i].GetPosition()
		vel := s.bodies[i].GetLinearVelocity()

		obs := make([]float64, 0, dims)
		obs = append(obs, vel.X, vel.Y, pos.X, pos.Y)
		for _, landmark := range s.landmarks {
			obs = append(obs, landmark.X-pos.X, landmark.Y-pos.Y)
		}
		for j, other := range s.bodies {
			if j == i {
				continue
			}
			otherPos := other.GetPosition()
			obs = append(obs, otherPos.X-pos.X, otherPos.Y-pos.Y)
		}

		observations[agent] = mat.NewVecDense(dims, obs)
	}
	return observations
}

// state constructs the global environment state vector, consisting of
// every agent's position and velocity followed by every landmark's
// position
func (s *spread) state() *mat.VecDense {
	state := make([]float64, 0, s.stateDims())
	for _, body := range s.bodies {
		pos := body.GetPosition()
		vel := body.GetLinearVelocity()
		state = append(state, pos.X, pos.Y, vel.X, vel.Y)
	}
	for _, landmark := range s.landmarks {
		state = append(state, landmark.X, landmark.Y)
	}
	return mat.NewVecDense(len(state), state)
}

func (s *spread) obsDims() int {
	return 4 + 2*len(s.agents) + 2*(len(s.agents)-1)
}

func (s *spread) stateDims() int {
	return 4*len(s.agents) + 2*len(s.agents)
}

// ObservationSpecs returns the per-agent observation specifications
func (s *spread) ObservationSpecs() map[string]environment.Spec {
	dims := s.obsDims()
	lower := make([]float64, dims)
	upper := make([]float64, dims)

	lower[0], lower[1] = MinVelocity, MinVelocity
	upper[0], upper[1] = MaxVelocity, MaxVelocity
	lower[2], lower[3] = -ArenaHalfWidth, -ArenaHalfWidth
	upper[2], upper[3] = ArenaHalfWidth, ArenaHalfWidth
	for i := 4; i < dims; i++ {
		lower[i] = -2.0 * ArenaHalfWidth
		upper[i] = 2.0 * ArenaHalfWidth
	}

	specs := make(map[string]environment.Spec, len(s.agents))
	for _, agent := range s.agents {
		specs[agent] = environment.NewSpec(mat.NewVecDense(dims, nil),
			environment.Observation, mat.NewVecDense(dims, lower),
			mat.NewVecDense(dims, upper), environment.Continuous)
	}
	return specs
}

// ActionSpecs returns the per-agent action specifications
func (s *spread) ActionSpecs() map[string]environment.Spec {
	specs := make(map[string]environment.Spec, len(s.agents))
	for _, agent := range s.agents {
		specs[agent] = environment.NewContinuousSpec(2, environment.Action,
			MinAction, MaxAction)
	}
	return specs
}

// DiscountSpec returns the discount specification of the environment
func (s *spread) DiscountSpec() environment.Spec {
	return environment.NewContinuousSpec(1, environment.Discount, 0.0,
		s.discount)
}

// Draw renders the current physics state onto dc. Landmarks are drawn
// as small dots and agents as filled circles.
func (s *spread) Draw(dc *gg.Context) {
	w := float64(dc.Width())
	h := float64(dc.Height())

	dc.SetColor(s.arenaShade)
	dc.Clear()

	for _, landmark := range s.landmarks {
		x, y := worldToPixel(landmark.X, landmark.Y, w, h)
		dc.DrawCircle(x, y, LandmarkRadius/(2.0*ArenaHalfWidth)*w)
		dc.SetColor(s.landmarkShade)
		dc.Fill()
	}

	for _, body := range s.bodies {
		pos := body.GetPosition()
		x, y := worldToPixel(pos.X, pos.Y, w, h)
		dc.DrawCircle(x, y, AgentRadius/(2.0*ArenaHalfWidth)*w)
		dc.SetColor(s.agentShade)
		dc.Fill()
	}
}

// worldToPixel converts Box2D world coordinates to pixel coordinates
// on a w by h canvas
func worldToPixel(x, y, w, h float64) (float64, float64) {
	pixelX := (x + ArenaHalfWidth) / (2.0 * ArenaHalfWidth) * w
	pixelY := h - (y+ArenaHalfWidth)/(2.0*ArenaHalfWidth)*h
	return pixelX, pixelY
}

// stateSpread is a spread environment that additionally reports the
// global environment state on each timestep
type stateSpread struct {
	*spread
}

// StateSpec returns the specification of the global environment state
func (s *stateSpread) StateSpec() environment.Spec {
	dims := s.stateDims()
	lower := make([]float64, dims)
	upper := make([]float64, dims)

	for i := 0; i < len(s.agents); i++ {
		lower[4*i], upper[4*i] = -ArenaHalfWidth, ArenaHalfWidth
		lower[4*i+1], upper[4*i+1] = -ArenaHalfWidth, ArenaHalfWidth
		lower[4*i+2], upper[4*i+2] = MinVelocity, MaxVelocity
		lower[4*i+3], upper[4*i+3] = MinVelocity, MaxVelocity
	}
	for i := 4 * len(s.agents); i < dims; i++ {
		lower[i] = -ArenaHalfWidth
		upper[i] = ArenaHalfWidth
	}

	return environment.NewSpec(mat.NewVecDense(dims, nil), environment.State,
		mat.NewVecDense(dims, lower), mat.NewVecDense(dims, upper),
		environment.Continuous)
}
