package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/armkit/armkit/kinematics"
	"github.com/armkit/armkit/motionplan"
	"github.com/armkit/armkit/robot"
	"github.com/armkit/armkit/telemetry"
)

// State is the loop's lifecycle state.
type State int

// Loop states. Terminal states release no further commands; a final
// zero-velocity command is issued on any exit from Running.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome reports how a run ended. Recoverable conditions (goal reached,
// budget exhausted, singularity abort) land here; only actuator and boundary
// failures come back as errors.
type Outcome struct {
	State  State
	Reason string
	Ticks  int
}

// Config holds the loop's tunables.
type Config struct {
	// TickPeriod pads each tick to a fixed period when computation finishes
	// early. Zero means free-run, for driving a simulated robot only.
	TickPeriod time.Duration
	// ActuateEvery throttles outgoing velocity commands to one per N ticks.
	// Sensing and computation still run every tick. The physical channel
	// tolerates a round trip no faster than ~0.15s, so at a 50ms tick the
	// divider should be at least 3.
	ActuateEvery int
	// GoalTolerance is the position error (mm) below which a goal counts as
	// reached.
	GoalTolerance float64
	// StepBudget bounds the ticks spent seeking a single goal or waypoint;
	// zero means unlimited. Exhaustion is reported, not fatal.
	StepBudget int
	// SingularityThreshold is the limit on the condition-number proxy.
	SingularityThreshold float64
	// AbortOnSingularity selects the policy when the threshold is exceeded:
	// abort the run, or warn and continue.
	AbortOnSingularity bool
}

func (cfg Config) withDefaults() Config {
	if cfg.ActuateEvery < 1 {
		cfg.ActuateEvery = 1
	}
	if cfg.GoalTolerance <= 0 {
		cfg.GoalTolerance = 5
	}
	if cfg.SingularityThreshold <= 0 {
		cfg.SingularityThreshold = DefaultSingularityThreshold
	}
	return cfg
}

// Loop is the real-time driver tying sensing, computation, and actuation
// into one cycle. It is single-threaded and cooperative: one goroutine
// advances strictly tick by tick, and within a tick, sense happens before
// compute happens before the (conditional) actuate. The loop owns the
// chain's configuration for the duration of each tick; telemetry consumers
// only ever see the value already committed for a tick.
type Loop struct {
	cfg        Config
	controller *VelocityController
	chain      *kinematics.Chain
	robot      robot.Robot
	sink       telemetry.Sink
	recorder   *telemetry.Recorder
	logger     golog.Logger
	clock      clock.Clock

	mu    sync.Mutex
	state State
}

// NewLoop creates an idle control loop.
func NewLoop(cfg Config, controller *VelocityController, chain *kinematics.Chain,
	rob robot.Robot, sink telemetry.Sink, logger golog.Logger,
) *Loop {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Loop{
		cfg:        cfg.withDefaults(),
		controller: controller,
		chain:      chain,
		robot:      rob,
		sink:       sink,
		recorder:   telemetry.NewRecorder(),
		logger:     logger,
		clock:      clock.New(),
		state:      StateIdle,
	}
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// stepFunc advances one tick's goal logic. It returns the joint-velocity
// command for this tick, or done with a reason once the run should complete.
type stepFunc func(tick int, q []float64, ee r3.Vector) (qdot []float64, done bool, reason string, err error)

// emitStop issues the final zero-velocity command that brings actuation to
// rest on every exit from Running. It deliberately uses a fresh context: the
// run context may already be canceled, and the arm must never be left
// commanded to a nonzero velocity.
func (l *Loop) emitStop() {
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.robot.SetJointVelocities(stopCtx, make([]float64, l.chain.DoF())); err != nil {
		l.logger.Errorw("failed to issue stop command", "error", err)
	}
}

func (l *Loop) run(ctx context.Context, budget int, step stepFunc) (Outcome, error) {
	l.setState(StateRunning)
	defer l.emitStop()

	singularWarned := false
	tick := 0
	for {
		// cancellation is observed at the top of the tick at the latest
		if err := ctx.Err(); err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "stop requested", tick}, nil
		}
		if budget > 0 && tick >= budget {
			l.setState(StateAborted)
			return Outcome{StateAborted, "step budget exhausted", tick}, nil
		}
		tickStart := l.clock.Now()

		// sense
		q, err := l.robot.Configuration(ctx)
		if err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "sensing failed", tick}, errors.Wrap(err, "failed to read configuration")
		}
		if err := l.chain.SetConfiguration(q); err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "invalid configuration", tick}, err
		}
		ee, err := l.robot.ForwardKinematics(q)
		if err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "kinematics failed", tick}, err
		}

		// numerical degeneracy is a policy decision, never an exception
		jac, err := l.chain.Jacobian(q)
		if err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "invalid configuration", tick}, err
		}
		cond, err := ConditionProxy(jac)
		if err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "jacobian decomposition failed", tick}, err
		}
		if cond > l.cfg.SingularityThreshold {
			if l.cfg.AbortOnSingularity {
				l.setState(StateAborted)
				l.logger.Warnw("aborting near singularity", "condition", cond, "tick", tick)
				return Outcome{StateAborted, "singularity threshold exceeded", tick}, nil
			}
			if !singularWarned {
				l.logger.Warnw("continuing near singularity", "condition", cond, "tick", tick)
				singularWarned = true
			}
		} else {
			singularWarned = false
		}

		// compute
		qdot, done, reason, err := step(tick, q, ee)
		if err != nil {
			l.setState(StateAborted)
			return Outcome{StateAborted, "controller failed", tick}, err
		}
		if done {
			l.setState(StateCompleted)
			return Outcome{StateCompleted, reason, tick}, nil
		}

		// actuate, throttled to the channel's tolerated rate
		if tick%l.cfg.ActuateEvery == 0 {
			if err := l.robot.SetJointVelocities(ctx, qdot); err != nil {
				l.setState(StateAborted)
				return Outcome{StateAborted, "actuation failed", tick}, errors.Wrap(err, "failed to command velocities")
			}
		}

		l.recorder.Record(ee)
		l.sink.Publish(telemetry.Snapshot{
			Time:          l.clock.Now(),
			Configuration: q,
			EndEffector:   ee,
			Path:          l.recorder.Path(),
		})
		tick++

		// rate regulation: pad the tick to the target period
		if l.cfg.TickPeriod > 0 {
			if rem := l.cfg.TickPeriod - l.clock.Since(tickStart); rem > 0 {
				timer := l.clock.Timer(rem)
				select {
				case <-ctx.Done():
					timer.Stop()
				case <-timer.C:
				}
			}
		}
	}
}

// tickSeconds is the dt handed to controllers that integrate state.
func (l *Loop) tickSeconds() float64 {
	if l.cfg.TickPeriod > 0 {
		return l.cfg.TickPeriod.Seconds()
	}
	return 0.05
}

// RunToPosition drives the end effector to a fixed goal position, ending
// when the position error drops below the goal tolerance or the step budget
// runs out.
func (l *Loop) RunToPosition(ctx context.Context, goal r3.Vector) (Outcome, error) {
	return l.run(ctx, l.cfg.StepBudget, func(tick int, q []float64, ee r3.Vector) ([]float64, bool, string, error) {
		if goal.Sub(ee).Norm() <= l.cfg.GoalTolerance {
			return nil, true, "goal reached", nil
		}
		qdot, err := l.controller.Compute(l.chain, q, PositionTarget(goal))
		return qdot, false, "", err
	})
}

// RunTrajectory follows a trajectory sample by sample, one sample per tick,
// with the sample's velocity as feed-forward. The run completes when the
// samples are exhausted.
func (l *Loop) RunTrajectory(ctx context.Context, tj *motionplan.Trajectory) (Outcome, error) {
	idx := 0
	return l.run(ctx, 0, func(tick int, q []float64, ee r3.Vector) ([]float64, bool, string, error) {
		if idx >= tj.Len() {
			return nil, true, "trajectory complete", nil
		}
		target := TrackingTarget(tj.Positions[idx], tj.Velocities[idx])
		idx++
		qdot, err := l.controller.Compute(l.chain, q, target)
		return qdot, false, "", err
	})
}

// RunWaypointsPID seeks each waypoint in turn with the PID variant. The PID
// state is reset only when a new waypoint begins; a waypoint whose per-leg
// budget is exhausted is reported and skipped, not fatal.
func (l *Loop) RunWaypointsPID(ctx context.Context, pid *PID, waypoints []r3.Vector) (Outcome, error) {
	if len(waypoints) == 0 {
		return Outcome{StateCompleted, "no waypoints", 0}, nil
	}
	wpIdx := 0
	legStart := 0
	pid.Reset()
	return l.run(ctx, 0, func(tick int, q []float64, ee r3.Vector) ([]float64, bool, string, error) {
		for {
			if wpIdx >= len(waypoints) {
				return nil, true, "waypoints complete", nil
			}
			reached := waypoints[wpIdx].Sub(ee).Norm() <= l.cfg.GoalTolerance
			exhausted := l.cfg.StepBudget > 0 && tick-legStart >= l.cfg.StepBudget
			if exhausted {
				l.logger.Warnw("waypoint budget exhausted, skipping",
					"waypoint", wpIdx, "error", waypoints[wpIdx].Sub(ee).Norm())
			}
			if !reached && !exhausted {
				break
			}
			wpIdx++
			legStart = tick
			pid.Reset()
		}
		qdot, err := pid.Compute(l.chain, q, waypoints[wpIdx], l.tickSeconds())
		return qdot, false, "", err
	})
}
