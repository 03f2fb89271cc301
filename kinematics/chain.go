// Package kinematics implements the kinematic chain model of the 4-DOF arm:
// forward kinematics, the geometric Jacobian, and the secondary-objective
// observable exploited by redundancy resolution.
package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/armkit/armkit/referenceframe"
	"github.com/armkit/armkit/spatialmath"
)

// NumJoints is the number of revolute joints in the chain. The arm has one
// redundant degree of freedom relative to its 3-DOF positioning task.
const NumJoints = 4

// JointConfig describes one revolute joint: the fixed translation from its
// parent frame (in the parent's local frame) and its local rotation axis.
type JointConfig struct {
	Name   string
	Offset r3.Vector
	Axis   r3.Vector
}

// Chain is an ordered sequence of revolute joints plus a terminal
// end-effector frame, built over a referenceframe arena. Joint angles are the
// only mutable state; every control tick overwrites them from a fresh sensor
// read.
type Chain struct {
	sys         *referenceframe.System
	joints      [NumJoints]int
	endEffector int
	// fixed geometry, kept alongside the tree so forward kinematics can run
	// purely without touching mutable frame state
	cfg      [NumJoints]JointConfig
	eeOffset r3.Vector
	// link lengths cached for the shoulder-elevation objective
	upperArm, foreArm float64
}

// NewChain builds a chain from base to tip. Exactly NumJoints joints are
// required; the end-effector offset is expressed in the last joint's frame.
func NewChain(joints []JointConfig, endEffectorOffset r3.Vector) (*Chain, error) {
	if len(joints) != NumJoints {
		return nil, errors.Errorf("expected %d joints, got %d", NumJoints, len(joints))
	}
	var validationErr error
	for i, j := range joints {
		if spatialmath.R3VectorAlmostEqual(j.Axis, r3.Vector{}, 1e-8) {
			multierr.AppendInto(&validationErr, errors.Errorf("joint %d (%s) has a zero rotation axis", i, j.Name))
		}
	}
	if validationErr != nil {
		return nil, validationErr
	}

	sys := referenceframe.NewSystem()
	parent, err := sys.AddFrame("base", referenceframe.NoParent, r3.Vector{})
	if err != nil {
		return nil, err
	}
	c := &Chain{sys: sys, eeOffset: endEffectorOffset}
	for i, j := range joints {
		idx, err := sys.AddJoint(j.Name, parent, j.Offset, j.Axis)
		if err != nil {
			return nil, err
		}
		j.Axis = j.Axis.Normalize()
		c.cfg[i] = j
		c.joints[i] = idx
		parent = idx
	}
	c.endEffector, err = sys.AddFrame("end_effector", parent, endEffectorOffset)
	if err != nil {
		return nil, err
	}
	c.upperArm = joints[2].Offset.Norm()
	c.foreArm = joints[3].Offset.Norm()
	return c, nil
}

// DoF returns the number of joints in the chain.
func (c *Chain) DoF() int {
	return NumJoints
}

func (c *Chain) checkConfiguration(q []float64) error {
	if len(q) != NumJoints {
		return errors.Errorf("configuration length %d does not match chain DoF %d", len(q), NumJoints)
	}
	var errAll error
	for i, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			multierr.AppendInto(&errAll, errors.Errorf("joint %d angle is not finite: %f", i, v))
		}
	}
	return errAll
}

// jointAt describes one joint evaluated at a configuration: its global origin
// and rotation axis.
type jointAt struct {
	origin r3.Vector
	axis   r3.Vector
}

// sweep composes the chain base to tip at configuration q, returning each
// joint's global origin and axis along with the end-effector position. It
// never touches the mutable frame tree, so it is a pure function of q.
func (c *Chain) sweep(q []float64) ([NumJoints]jointAt, r3.Vector, error) {
	var joints [NumJoints]jointAt
	if err := c.checkConfiguration(q); err != nil {
		return joints, r3.Vector{}, err
	}
	pos := r3.Vector{}
	rot := spatialmath.NewZeroRotation()
	for i := 0; i < NumJoints; i++ {
		pos = pos.Add(rot.Mul(c.cfg[i].Offset))
		joints[i] = jointAt{origin: pos, axis: rot.Mul(c.cfg[i].Axis)}
		rot = spatialmath.MatMul(rot, spatialmath.NewRotationFromAxisAngle(c.cfg[i].Axis, q[i]))
	}
	pos = pos.Add(rot.Mul(c.eeOffset))
	return joints, pos, nil
}

// ForwardKinematics returns the end-effector's global position for the given
// configuration. Pure function: no side effects, bit-identical results for
// identical inputs.
func (c *Chain) ForwardKinematics(q []float64) (r3.Vector, error) {
	_, pos, err := c.sweep(q)
	return pos, err
}

// Jacobian returns the 3xNumJoints matrix mapping joint velocities to
// end-effector linear velocity at q. Column i is the standard revolute-joint
// formula a_i x (p_ee - p_i) with all quantities in the global frame.
func (c *Chain) Jacobian(q []float64) (*mat.Dense, error) {
	joints, ee, err := c.sweep(q)
	if err != nil {
		return nil, err
	}
	jac := mat.NewDense(3, NumJoints, nil)
	for i := 0; i < NumJoints; i++ {
		col := joints[i].axis.Cross(ee.Sub(joints[i].origin))
		jac.Set(0, i, col.X)
		jac.Set(1, i, col.Y)
		jac.Set(2, i, col.Z)
	}
	return jac, nil
}

// ShoulderElevation returns the height of the wrist above the shoulder at q,
// the scalar observable used as the example secondary objective. It depends
// only on the shoulder and elbow angles.
func (c *Chain) ShoulderElevation(q []float64) (float64, error) {
	if err := c.checkConfiguration(q); err != nil {
		return 0, err
	}
	return c.upperArm*math.Cos(q[1]) + c.foreArm*math.Cos(q[1]+q[2]), nil
}

// ShoulderElevationGradient returns the hand-derived analytic gradient of
// ShoulderElevation with respect to q.
func (c *Chain) ShoulderElevationGradient(q []float64) ([]float64, error) {
	if err := c.checkConfiguration(q); err != nil {
		return nil, err
	}
	dWrist := c.foreArm * math.Sin(q[1]+q[2])
	return []float64{
		0,
		-c.upperArm*math.Sin(q[1]) - dWrist,
		-dWrist,
		0,
	}, nil
}

// Reach returns the maximum distance from the base origin the end effector
// can attain, the sum of all link lengths.
func (c *Chain) Reach() float64 {
	reach := c.eeOffset.Norm()
	for _, j := range c.cfg {
		reach += j.Offset.Norm()
	}
	return reach
}

// SetConfiguration overwrites the chain's joint angles, propagating each
// joint's rotation through the frame tree. The loop calls this once per tick
// from the sensed configuration; no accumulated state is trusted between
// ticks.
func (c *Chain) SetConfiguration(q []float64) error {
	if err := c.checkConfiguration(q); err != nil {
		return err
	}
	for i, idx := range c.joints {
		if err := c.sys.SetJointAngle(idx, q[i]); err != nil {
			return err
		}
	}
	return nil
}

// Configuration returns the chain's current joint angles.
func (c *Chain) Configuration() []float64 {
	q := make([]float64, NumJoints)
	for i, idx := range c.joints {
		angle, err := c.sys.Angle(idx)
		if err != nil {
			// chain construction guarantees these indices are joints
			continue
		}
		q[i] = angle
	}
	return q
}

// EndEffectorPosition returns the end-effector position of the mutable frame
// tree at its current configuration.
func (c *Chain) EndEffectorPosition() (r3.Vector, error) {
	return c.sys.GlobalPosition(c.endEffector)
}
