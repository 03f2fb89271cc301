// Package session assembles the arm runtime: the kinematic model, a robot
// backend, the control loop, and the telemetry surfaces, built from one
// config and torn down together.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/armkit/armkit/control"
	"github.com/armkit/armkit/kinematics"
	"github.com/armkit/armkit/motionplan"
	"github.com/armkit/armkit/robot"
	"github.com/armkit/armkit/robot/dynamixel"
	"github.com/armkit/armkit/telemetry"
)

// Backend names accepted by Config.
const (
	BackendSim       = "sim"
	BackendDynamixel = "dynamixel"
)

// HomeConfiguration is the nominal rest pose, chosen well away from the
// stretched-out singularity.
var HomeConfiguration = []float64{0, 0.6, -0.8, 0.2}

const statusInterval = 5 * time.Second

// Config selects and tunes the session's components.
type Config struct {
	// Backend picks the robot: BackendSim or BackendDynamixel.
	Backend string
	// SerialPort and BaudRate configure the dynamixel backend.
	SerialPort string
	BaudRate   int
	// Initial is the sim backend's starting configuration; nil means the
	// home configuration.
	Initial []float64

	// TelemetryAddr, when set, serves live snapshots over websocket at
	// ws://<addr>/telemetry.
	TelemetryAddr string

	// Loop configures the control loop.
	Loop control.Config

	// Controller gains; zero PositionGain and FeedForwardGain mean the
	// controller defaults, zero NullspaceGain disables the secondary
	// objective.
	PositionGain    float64
	FeedForwardGain float64
	NullspaceGain   float64
}

// Session owns one arm runtime from construction to Close.
type Session struct {
	cfg      Config
	logger   golog.Logger
	chain    *kinematics.Chain
	robot    robot.Robot
	loop     *control.Loop
	recorder *telemetry.Recorder

	streamer  *telemetry.Streamer
	server    *http.Server
	refresher *telemetry.Refresher

	activeBackgroundWorkers sync.WaitGroup
}

// New builds a session. The returned session holds live resources (a serial
// port for the physical backend, a listening socket when telemetry is on)
// and must be closed.
func New(ctx context.Context, cfg Config, logger golog.Logger) (*Session, error) {
	chain, err := kinematics.NewArm4()
	if err != nil {
		return nil, err
	}

	var rob robot.Robot
	switch cfg.Backend {
	case BackendSim, "":
		initial := cfg.Initial
		if initial == nil {
			initial = HomeConfiguration
		}
		rob, err = robot.NewSim(chain, initial, nil, logger)
	case BackendDynamixel:
		rob, err = dynamixel.NewArm(ctx, dynamixel.Config{
			Port:     cfg.SerialPort,
			BaudRate: cfg.BaudRate,
		}, chain, logger)
	default:
		err = errors.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	controller := control.NewVelocityController()
	if cfg.PositionGain != 0 {
		controller.PositionGain = cfg.PositionGain
	}
	if cfg.FeedForwardGain != 0 {
		controller.FeedForwardGain = cfg.FeedForwardGain
	}
	controller.NullspaceGain = cfg.NullspaceGain

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		chain:    chain,
		robot:    rob,
		recorder: telemetry.NewRecorder(),
	}

	sinks := telemetry.MultiSink{s.recorder}
	if cfg.TelemetryAddr != "" {
		s.streamer = telemetry.NewStreamer(logger)
		mux := http.NewServeMux()
		mux.Handle("/telemetry", s.streamer)
		s.server = &http.Server{Addr: cfg.TelemetryAddr, Handler: mux, ReadHeaderTimeout: time.Second}
		s.activeBackgroundWorkers.Add(1)
		goutils.ManagedGo(func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("telemetry server failed", "error", err)
			}
		}, s.activeBackgroundWorkers.Done)
		sinks = append(sinks, s.streamer)
	}

	s.loop = control.NewLoop(cfg.Loop, controller, chain, rob, sinks, logger)

	s.refresher = telemetry.NewRefresher(statusInterval, func(ctx context.Context) {
		snap := s.recorder.Latest()
		if snap.Configuration == nil {
			return
		}
		logger.Infow("arm status",
			"state", s.loop.State().String(),
			"endEffector", snap.EndEffector,
			"configuration", snap.Configuration)
	}, nil)
	s.refresher.Start(ctx)

	return s, nil
}

// Chain returns the kinematic model.
func (s *Session) Chain() *kinematics.Chain { return s.chain }

// Robot returns the active backend.
func (s *Session) Robot() robot.Robot { return s.robot }

// Loop returns the control loop.
func (s *Session) Loop() *control.Loop { return s.loop }

// Recorder returns the traced end-effector history.
func (s *Session) Recorder() *telemetry.Recorder { return s.recorder }

// Close tears the session down in dependency order: status logging first,
// then the telemetry surfaces, then the robot backend, which stops the arm.
func (s *Session) Close(ctx context.Context) error {
	var errs error
	s.refresher.Stop()
	if s.server != nil {
		errs = multierr.Combine(errs, s.server.Shutdown(ctx))
	}
	if s.streamer != nil {
		s.streamer.Close()
	}
	errs = multierr.Combine(errs, s.robot.Close(ctx))
	s.activeBackgroundWorkers.Wait()
	return errs
}

// Program is one self-contained arm behavior run to completion under the
// session's control loop.
type Program func(ctx context.Context, s *Session) (control.Outcome, error)

var programs = map[string]Program{
	"goto-home":  gotoHome,
	"circle":     followCircle,
	"square-pid": squarePID,
}

// ProgramNames lists the registered programs.
func ProgramNames() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	return names
}

// Run executes the named program.
func (s *Session) Run(ctx context.Context, name string) (control.Outcome, error) {
	prog, ok := programs[name]
	if !ok {
		return control.Outcome{}, errors.Errorf("unknown program %q, have %v", name, ProgramNames())
	}
	s.logger.Infow("running program", "program", name)
	outcome, err := prog(ctx, s)
	s.logger.Infow("program finished",
		"program", name, "state", outcome.State.String(), "reason", outcome.Reason, "ticks", outcome.Ticks)
	return outcome, err
}

// gotoHome drives the end effector to the home pose's position.
func gotoHome(ctx context.Context, s *Session) (control.Outcome, error) {
	goal, err := s.chain.ForwardKinematics(HomeConfiguration)
	if err != nil {
		return control.Outcome{}, err
	}
	return s.loop.RunToPosition(ctx, goal)
}

// followCircle traces a horizontal circle at the current end-effector height.
func followCircle(ctx context.Context, s *Session) (control.Outcome, error) {
	q, err := s.robot.Configuration(ctx)
	if err != nil {
		return control.Outcome{}, err
	}
	ee, err := s.chain.ForwardKinematics(q)
	if err != nil {
		return control.Outcome{}, err
	}
	waypoints, err := motionplan.PlanCirclePath(s.chain, q, ee.Z, 60, 24)
	if err != nil {
		return control.Outcome{}, err
	}
	interval := s.cfg.Loop.TickPeriod.Seconds()
	if interval <= 0 {
		interval = 0.05
	}
	tj, err := motionplan.GenerateTrajectory(waypoints, 30, interval)
	if err != nil {
		return control.Outcome{}, err
	}
	return s.loop.RunTrajectory(ctx, tj)
}

// squarePID visits the corners of a square around the current end-effector
// position using the PID variant.
func squarePID(ctx context.Context, s *Session) (control.Outcome, error) {
	q, err := s.robot.Configuration(ctx)
	if err != nil {
		return control.Outcome{}, err
	}
	ee, err := s.chain.ForwardKinematics(q)
	if err != nil {
		return control.Outcome{}, err
	}
	const half = 40.0
	waypoints := []r3.Vector{
		ee.Add(r3.Vector{X: half, Y: half, Z: 0}),
		ee.Add(r3.Vector{X: -half, Y: half, Z: 0}),
		ee.Add(r3.Vector{X: -half, Y: -half, Z: 0}),
		ee.Add(r3.Vector{X: half, Y: -half, Z: 0}),
		ee,
	}
	pid := control.NewPID(1.0, 0.1, 0.05)
	return s.loop.RunWaypointsPID(ctx, pid, waypoints)
}
