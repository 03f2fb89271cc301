// Package robot defines the capability surface the control loop consumes and
// provides the simulated backend. The physical Dynamixel backend lives in the
// dynamixel subpackage; the controller and loop depend only on the Robot
// interface.
package robot

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Robot is the uniform capability set over the simulated kinematic model and
// the physical servo chain. Configurations are radians, velocities
// radians/sec.
type Robot interface {
	// Configuration returns the sensed joint configuration.
	Configuration(ctx context.Context) ([]float64, error)

	// SetJointVelocities commands joint velocities. The caller owns any
	// rate limiting of the actuation channel; the backend just writes.
	SetJointVelocities(ctx context.Context, qdot []float64) error

	// ForwardKinematics returns the end-effector position for a
	// configuration, consistent with the kinematic chain model.
	ForwardKinematics(q []float64) (r3.Vector, error)

	// Close brings the backend to rest and releases its resources.
	Close(ctx context.Context) error
}

func validateVector(v []float64, dof int) error {
	if len(v) != dof {
		return errors.Errorf("vector length %d does not match %d joints", len(v), dof)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Errorf("element %d is not finite: %f", i, x)
		}
	}
	return nil
}
