package motionplan

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/armkit/armkit/kinematics"
)

// PlanCirclePath produces an ordered waypoint list tracing a circle of the
// given radius on the plane z = planeHeight, starting at the point of the
// circle nearest the arm's current end-effector position so the first leg is
// short. The circle is centered on the vertical plane through the current
// end-effector heading. Every waypoint is checked against the arm's reach.
func PlanCirclePath(chain *kinematics.Chain, q []float64, planeHeight, radius float64, numPoints int) ([]r3.Vector, error) {
	if radius <= 0 {
		return nil, errors.Errorf("radius must be positive, got %f", radius)
	}
	if numPoints < 3 {
		return nil, errors.Errorf("need at least 3 points on the circle, got %d", numPoints)
	}
	ee, err := chain.ForwardKinematics(q)
	if err != nil {
		return nil, err
	}

	// center the circle under the current end-effector x/y; if the arm is at
	// (or near) the base axis, push the center out along x so the circle
	// does not degenerate around the singular column
	center := r3.Vector{X: ee.X, Y: ee.Y, Z: planeHeight}
	if math.Hypot(center.X, center.Y) < radius/2 {
		center.X += radius
	}

	start := math.Atan2(ee.Y-center.Y, ee.X-center.X)
	reach := chain.Reach()
	waypoints := make([]r3.Vector, 0, numPoints+1)
	for i := 0; i <= numPoints; i++ {
		theta := start + 2*math.Pi*float64(i)/float64(numPoints)
		wp := r3.Vector{
			X: center.X + radius*math.Cos(theta),
			Y: center.Y + radius*math.Sin(theta),
			Z: planeHeight,
		}
		if wp.Norm() > 0.95*reach {
			return nil, errors.Errorf("waypoint %d at %v is outside the reachable workspace (reach %.1f)", i, wp, reach)
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints, nil
}
