// Package control computes joint-velocity commands for the redundant arm and
// runs them in a closed real-time loop. The velocity controller decomposes
// the task into a primary Cartesian command mapped through the Jacobian
// pseudo-inverse and a secondary objective projected into the Jacobian's
// nullspace.
package control

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/armkit/armkit/kinematics"
)

// DefaultSingularityThreshold is the default decision threshold on the
// condition-number proxy. The proxy is a heuristic, not an exact
// manipulability measure; substituting the smallest singular value requires
// recalibrating this.
const DefaultSingularityThreshold = 25.0

// Target selects what the controller tracks. The zero value is the unset
// marker: pure position tracking with no goal contributes a zero command.
type Target struct {
	hasPosition bool
	position    r3.Vector
	hasVelocity bool
	velocity    r3.Vector
}

// PositionTarget returns a target tracking a fixed goal position.
func PositionTarget(p r3.Vector) Target {
	return Target{hasPosition: true, position: p}
}

// TrackingTarget returns a target combining a desired position with a
// feed-forward velocity, as produced when following a trajectory.
func TrackingTarget(p, v r3.Vector) Target {
	return Target{hasPosition: true, position: p, hasVelocity: true, velocity: v}
}

// VelocityTarget returns a feed-forward-only target.
func VelocityTarget(v r3.Vector) Target {
	return Target{hasVelocity: true, velocity: v}
}

// VelocityController maps a target to a joint-velocity command. It holds
// only gains; given (chain, q, target) the computation is stateless.
type VelocityController struct {
	// PositionGain is the proportional gain on Cartesian position error.
	PositionGain float64
	// FeedForwardGain weights the supplied target velocity.
	FeedForwardGain float64
	// NullspaceGain is the signed gain on the secondary-objective gradient;
	// the sign selects maximize versus minimize.
	NullspaceGain float64
}

// NewVelocityController returns a controller with default gains.
func NewVelocityController() *VelocityController {
	return &VelocityController{
		PositionGain:    1.0,
		FeedForwardGain: 1.0,
		NullspaceGain:   0.0,
	}
}

// Compute returns the joint-velocity command for the given configuration and
// target.
//
// The primary Cartesian command is filtered through J*Jt/||J*Jt|| before
// inversion, damping components along directions the manipulator can barely
// realize instead of letting the pseudo-inverse amplify them near
// singularities.
func (vc *VelocityController) Compute(chain *kinematics.Chain, q []float64, target Target) ([]float64, error) {
	current, err := chain.ForwardKinematics(q)
	if err != nil {
		return nil, err
	}

	var u r3.Vector
	if target.hasPosition {
		u = u.Add(target.position.Sub(current).Mul(vc.PositionGain))
	}
	if target.hasVelocity {
		u = u.Add(target.velocity.Mul(vc.FeedForwardGain))
	}

	jac, err := chain.Jacobian(q)
	if err != nil {
		return nil, err
	}

	// singularity filtering
	var jjt mat.Dense
	jjt.Mul(jac, jac.T())
	if norm := mat.Norm(&jjt, 2); norm > 0 {
		filtered := mat.NewVecDense(3, nil)
		filtered.MulVec(&jjt, mat.NewVecDense(3, []float64{u.X, u.Y, u.Z}))
		u = r3.Vector{X: filtered.AtVec(0), Y: filtered.AtVec(1), Z: filtered.AtVec(2)}.Mul(1 / norm)
	}

	pinv, err := pseudoInverse(jac)
	if err != nil {
		return nil, err
	}

	// primary joint velocity
	qdot := mat.NewVecDense(kinematics.NumJoints, nil)
	qdot.MulVec(pinv, mat.NewVecDense(3, []float64{u.X, u.Y, u.Z}))

	// nullspace term for the secondary objective
	if vc.NullspaceGain != 0 {
		grad, err := chain.ShoulderElevationGradient(q)
		if err != nil {
			return nil, err
		}
		proj := nullspaceProjector(jac, pinv)
		secondary := mat.NewVecDense(kinematics.NumJoints, nil)
		secondary.MulVec(proj, mat.NewVecDense(kinematics.NumJoints, grad))
		qdot.AddScaledVec(qdot, vc.NullspaceGain, secondary)
	}

	out := make([]float64, kinematics.NumJoints)
	for i := range out {
		v := qdot.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("joint %d velocity is not finite", i)
		}
		out[i] = v
	}
	return out, nil
}

// nullspaceProjector returns N = I - pinv(J)*J. For any v, J*N*v is zero to
// first order; this is the redundancy a 4-DOF arm has over a 3-DOF task.
func nullspaceProjector(jac, pinv mat.Matrix) *mat.Dense {
	n := kinematics.NumJoints
	proj := mat.NewDense(n, n, nil)
	proj.Mul(pinv, jac)
	proj.Scale(-1, proj)
	for i := 0; i < n; i++ {
		proj.Set(i, i, proj.At(i, i)+1)
	}
	return proj
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse by thin SVD,
// zeroing singular values below a relative tolerance. The Jacobian can be
// near rank-deficient at singular configurations, so normal-equation
// inversion is not an option here.
func pseudoInverse(m mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDThin) {
		return nil, errors.New("SVD failed to converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	tol := 0.0
	if len(values) > 0 {
		tol = 1e-10 * values[0]
	}
	d := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > tol && s > 0 {
			d.Set(i, i, 1/s)
		}
	}

	var tmp, pinv mat.Dense
	tmp.Mul(&v, d)
	pinv.Mul(&tmp, u.T())
	return &pinv, nil
}

// ConditionProxy returns ||J||*||pinv(J)|| (Frobenius norms), a cheap
// condition-number proxy. Trajectory-following call sites compare it against
// a threshold to decide whether the current leg is reachable without care.
func ConditionProxy(jac *mat.Dense) (float64, error) {
	pinv, err := pseudoInverse(jac)
	if err != nil {
		return 0, err
	}
	return mat.Norm(jac, 2) * mat.Norm(pinv, 2), nil
}
