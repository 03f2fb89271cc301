package dynamixel

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/armkit/armkit/kinematics"
)

// Config configures the physical arm backend.
type Config struct {
	Port     string
	BaudRate int
}

// Arm adapts the Dynamixel servo chain to the robot.Robot capability set.
// Session lifecycle (mode selection, torque enable) happens in NewArm and
// Close, never inside the control loop body.
type Arm struct {
	driver *Driver
	chain  *kinematics.Chain
	logger golog.Logger
}

// NewArm connects to the servo chain, switches every joint motor to velocity
// control mode, and enables torque. The returned arm is ready for the control
// loop: already initialized, with its zero pose at the servos' center
// position.
func NewArm(ctx context.Context, cfg Config, chain *kinematics.Chain, logger golog.Logger) (*Arm, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port is required")
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	driver, err := NewDriver(cfg.Port, baud)
	if err != nil {
		return nil, err
	}

	// mode changes require torque off
	if err := driver.DisableTorque(ArmMotorIDs); err != nil {
		driver.Close()
		return nil, err
	}
	for _, id := range ArmMotorIDs {
		if err := driver.SetOperatingMode(id, VelocityControlMode); err != nil {
			driver.Close()
			return nil, err
		}
	}
	if err := driver.EnableTorque(ArmMotorIDs); err != nil {
		driver.Close()
		return nil, err
	}
	logger.Infow("dynamixel arm ready", "port", cfg.Port, "baud", baud)
	return &Arm{driver: driver, chain: chain, logger: logger}, nil
}

// Configuration reads the sensed joint configuration from the servos.
func (a *Arm) Configuration(ctx context.Context) ([]float64, error) {
	return a.driver.ReadJointPositions()
}

// SetJointVelocities writes a velocity command to the servo chain. Actuation
// rate limiting is the control loop's responsibility (the channel round trip
// tolerates roughly one command per 150 ms).
func (a *Arm) SetJointVelocities(ctx context.Context, qdot []float64) error {
	return a.driver.WriteJointVelocities(qdot)
}

// ForwardKinematics delegates to the kinematic chain model.
func (a *Arm) ForwardKinematics(q []float64) (r3.Vector, error) {
	return a.chain.ForwardKinematics(q)
}

// Close stops the arm, disables torque, and closes the serial port. A failed
// stop is logged but does not block teardown.
func (a *Arm) Close(ctx context.Context) error {
	if err := a.driver.WriteJointVelocities(make([]float64, NumJoints)); err != nil {
		a.logger.Errorw("failed to zero velocities on close", "error", err)
	}
	if err := a.driver.DisableTorque(ArmMotorIDs); err != nil {
		a.logger.Errorw("failed to disable torque on close", "error", err)
	}
	return a.driver.Close()
}
