package control

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/armkit/armkit/kinematics"
)

// PID is the position-only controller variant: no nullspace term and no
// feed-forward, but an integral term accumulated over the error history and
// a derivative term over the last error. The loop invocation owns this
// state and resets it when a new waypoint begins.
type PID struct {
	Kp float64
	Ki float64
	Kd float64

	integral  r3.Vector
	lastError r3.Vector
	primed    bool
}

// NewPID returns a PID controller with the given gains.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Reset clears the integral and derivative state.
func (p *PID) Reset() {
	p.integral = r3.Vector{}
	p.lastError = r3.Vector{}
	p.primed = false
}

// Compute returns the joint-velocity command driving the end effector toward
// goal. dt is the time since the previous call within the same waypoint.
func (p *PID) Compute(chain *kinematics.Chain, q []float64, goal r3.Vector, dt float64) ([]float64, error) {
	if dt <= 0 {
		return nil, errors.Errorf("dt must be positive, got %f", dt)
	}
	current, err := chain.ForwardKinematics(q)
	if err != nil {
		return nil, err
	}
	errVec := goal.Sub(current)

	p.integral = p.integral.Add(errVec.Mul(dt))
	var deriv r3.Vector
	if p.primed {
		deriv = errVec.Sub(p.lastError).Mul(1 / dt)
	}
	p.lastError = errVec
	p.primed = true

	u := errVec.Mul(p.Kp).Add(p.integral.Mul(p.Ki)).Add(deriv.Mul(p.Kd))

	jac, err := chain.Jacobian(q)
	if err != nil {
		return nil, err
	}
	pinv, err := pseudoInverse(jac)
	if err != nil {
		return nil, err
	}
	qdot := mat.NewVecDense(kinematics.NumJoints, nil)
	qdot.MulVec(pinv, mat.NewVecDense(3, []float64{u.X, u.Y, u.Z}))

	out := make([]float64, kinematics.NumJoints)
	for i := range out {
		out[i] = qdot.AtVec(i)
	}
	return out, nil
}
