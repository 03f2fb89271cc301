package control

import (
	"context"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/armkit/armkit/kinematics"
	"github.com/armkit/armkit/motionplan"
	"github.com/armkit/armkit/telemetry"
)

// fakeRobot integrates the last commanded velocity by a fixed dt on every
// configuration read, so a free-running loop advances deterministically
// regardless of wall-clock timing.
type fakeRobot struct {
	chain *kinematics.Chain
	dt    float64

	mu          sync.Mutex
	q           []float64
	lastCmd     []float64
	actuations  int
	failActuate bool
}

func newFakeRobot(t *testing.T, q []float64) *fakeRobot {
	t.Helper()
	return &fakeRobot{
		chain:   testChain(t),
		dt:      0.05,
		q:       append([]float64(nil), q...),
		lastCmd: make([]float64, len(q)),
	}
}

func (f *fakeRobot) Configuration(ctx context.Context) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.q {
		f.q[i] += f.lastCmd[i] * f.dt
	}
	return append([]float64(nil), f.q...), nil
}

func (f *fakeRobot) SetJointVelocities(ctx context.Context, qdot []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActuate {
		return errors.New("servo bus offline")
	}
	copy(f.lastCmd, qdot)
	f.actuations++
	return nil
}

func (f *fakeRobot) ForwardKinematics(q []float64) (r3.Vector, error) {
	return f.chain.ForwardKinematics(q)
}

func (f *fakeRobot) Close(ctx context.Context) error { return nil }

func (f *fakeRobot) lastCommand() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.lastCmd...)
}

func (f *fakeRobot) actuationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actuations
}

var startConfig = []float64{0.1, 0.5, -0.4, 0.2}

func TestLoopRunToPosition(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	start, err := chain.ForwardKinematics(startConfig)
	test.That(t, err, test.ShouldBeNil)
	goal := start.Add(r3.Vector{X: 25, Y: -20, Z: 15})

	loop := NewLoop(Config{StepBudget: 5000}, NewVelocityController(), chain, rob, nil, logger)
	test.That(t, loop.State(), test.ShouldEqual, StateIdle)

	outcome, err := loop.RunToPosition(context.Background(), goal)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateCompleted)
	test.That(t, outcome.Reason, test.ShouldEqual, "goal reached")
	test.That(t, loop.State(), test.ShouldEqual, StateCompleted)

	// the arm was brought to rest on exit
	test.That(t, rob.lastCommand(), test.ShouldResemble, make([]float64, kinematics.NumJoints))

	q, err := rob.Configuration(context.Background())
	test.That(t, err, test.ShouldBeNil)
	ee, err := chain.ForwardKinematics(q)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goal.Sub(ee).Norm(), test.ShouldBeLessThan, 6.0)
}

func TestLoopStepBudget(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	// a goal well outside the workspace can never be reached
	loop := NewLoop(Config{StepBudget: 10}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunToPosition(context.Background(), r3.Vector{X: 2000, Y: 0, Z: 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateAborted)
	test.That(t, outcome.Reason, test.ShouldEqual, "step budget exhausted")
	test.That(t, outcome.Ticks, test.ShouldEqual, 10)
	test.That(t, rob.lastCommand(), test.ShouldResemble, make([]float64, kinematics.NumJoints))
}

func TestLoopActuationThrottle(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	loop := NewLoop(Config{StepBudget: 9, ActuateEvery: 3}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunToPosition(context.Background(), r3.Vector{X: 2000, Y: 0, Z: 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateAborted)

	// ticks 0, 3, 6 actuate, plus the final stop command
	test.That(t, rob.actuationCount(), test.ShouldEqual, 4)
	test.That(t, rob.lastCommand(), test.ShouldResemble, make([]float64, kinematics.NumJoints))
}

func TestLoopActuatorFailure(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)
	rob.failActuate = true

	loop := NewLoop(Config{StepBudget: 100}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunToPosition(context.Background(), r3.Vector{X: 0, Y: 0, Z: 550})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateAborted)
	test.That(t, outcome.Reason, test.ShouldEqual, "actuation failed")
	test.That(t, loop.State(), test.ShouldEqual, StateAborted)
}

func TestLoopStopRequested(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop := NewLoop(Config{}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunToPosition(ctx, r3.Vector{X: 0, Y: 0, Z: 550})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateAborted)
	test.That(t, outcome.Reason, test.ShouldEqual, "stop requested")
	test.That(t, outcome.Ticks, test.ShouldEqual, 0)
	// the stop command still goes out on a canceled run
	test.That(t, rob.lastCommand(), test.ShouldResemble, make([]float64, kinematics.NumJoints))
}

func TestLoopSingularityAbort(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)

	// nearly stretched out, where the condition proxy exceeds the default
	// threshold
	nearStraight := []float64{0.1, 0.02, -0.02, 0.01}
	rob := newFakeRobot(t, nearStraight)

	loop := NewLoop(Config{AbortOnSingularity: true}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunToPosition(context.Background(), r3.Vector{X: 100, Y: 0, Z: 400})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateAborted)
	test.That(t, outcome.Reason, test.ShouldEqual, "singularity threshold exceeded")
}

func TestLoopSingularityWarnContinues(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	nearStraight := []float64{0.1, 0.02, -0.02, 0.01}
	rob := newFakeRobot(t, nearStraight)

	// same start, but the warn-only policy keeps running until the budget
	loop := NewLoop(Config{StepBudget: 5}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunToPosition(context.Background(), r3.Vector{X: 100, Y: 0, Z: 400})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateAborted)
	test.That(t, outcome.Reason, test.ShouldEqual, "step budget exhausted")
}

func TestLoopRunTrajectory(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	start, err := chain.ForwardKinematics(startConfig)
	test.That(t, err, test.ShouldBeNil)
	waypoints := []r3.Vector{
		start,
		start.Add(r3.Vector{X: 20, Y: 0, Z: 0}),
		start.Add(r3.Vector{X: 20, Y: 20, Z: 0}),
	}
	tj, err := motionplan.GenerateTrajectory(waypoints, 5, 0.05)
	test.That(t, err, test.ShouldBeNil)

	vc := NewVelocityController()
	vc.PositionGain = 2.0
	rec := telemetry.NewRecorder()
	loop := NewLoop(Config{}, vc, chain, rob, rec, logger)
	outcome, err := loop.RunTrajectory(context.Background(), tj)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateCompleted)
	test.That(t, outcome.Reason, test.ShouldEqual, "trajectory complete")
	test.That(t, outcome.Ticks, test.ShouldEqual, tj.Len())

	// telemetry saw one snapshot per tick
	test.That(t, rec.Latest().Configuration, test.ShouldHaveLength, kinematics.NumJoints)
	test.That(t, len(rec.Path()), test.ShouldBeGreaterThanOrEqualTo, tj.Len())

	// the filtered controller trades tracking tightness for robustness, so
	// only loose accuracy is guaranteed; the follower must still end up much
	// closer to the last waypoint than it started and well off its start
	q, err := rob.Configuration(context.Background())
	test.That(t, err, test.ShouldBeNil)
	ee, err := chain.ForwardKinematics(q)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, waypoints[2].Sub(ee).Norm(), test.ShouldBeLessThan, 20.0)
	test.That(t, ee.Sub(start).Norm(), test.ShouldBeGreaterThan, 5.0)
}

func TestLoopRunWaypointsPID(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	start, err := chain.ForwardKinematics(startConfig)
	test.That(t, err, test.ShouldBeNil)
	waypoints := []r3.Vector{
		start.Add(r3.Vector{X: 15, Y: 0, Z: 0}),
		start.Add(r3.Vector{X: 15, Y: 15, Z: 0}),
	}

	loop := NewLoop(Config{StepBudget: 3000}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunWaypointsPID(context.Background(), NewPID(1.0, 0.0, 0.0), waypoints)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateCompleted)
	test.That(t, outcome.Reason, test.ShouldEqual, "waypoints complete")

	q, err := rob.Configuration(context.Background())
	test.That(t, err, test.ShouldBeNil)
	ee, err := chain.ForwardKinematics(q)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, waypoints[1].Sub(ee).Norm(), test.ShouldBeLessThan, 6.0)
}

func TestLoopRunWaypointsPIDEmpty(t *testing.T) {
	logger := golog.NewTestLogger(t)
	chain := testChain(t)
	rob := newFakeRobot(t, startConfig)

	loop := NewLoop(Config{}, NewVelocityController(), chain, rob, nil, logger)
	outcome, err := loop.RunWaypointsPID(context.Background(), NewPID(1, 0, 0), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.State, test.ShouldEqual, StateCompleted)
	test.That(t, outcome.Reason, test.ShouldEqual, "no waypoints")
}
