// Package motionplan turns waypoint lists into time-parameterized
// trajectories the velocity controller can follow sample by sample, and
// generates simple planar paths inside the arm's reachable workspace.
package motionplan

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Trajectory is an immutable sequence of (position, velocity, time) samples
// derived from waypoints and an average speed. It is re-derivable from the
// same inputs; consumers keep their own sample index.
type Trajectory struct {
	Positions      []r3.Vector
	Velocities     []r3.Vector
	Times          []float64
	SampleInterval float64
}

// Len returns the number of samples.
func (tj *Trajectory) Len() int {
	return len(tj.Positions)
}

// Duration returns the time of the final sample in seconds.
func (tj *Trajectory) Duration() float64 {
	if len(tj.Times) == 0 {
		return 0
	}
	return tj.Times[len(tj.Times)-1]
}

// GenerateTrajectory walks the waypoint list at constant average speed,
// interpolating each segment as a straight line and sampling every
// sampleInterval seconds. Velocity samples are the segment's unit direction
// times averageSpeed; the final sample's velocity is zero. The sample count
// is ceil(pathLength/averageSpeed/sampleInterval).
func GenerateTrajectory(waypoints []r3.Vector, averageSpeed, sampleInterval float64) (*Trajectory, error) {
	if len(waypoints) < 2 {
		return nil, errors.Errorf("need at least 2 waypoints, got %d", len(waypoints))
	}
	if averageSpeed <= 0 {
		return nil, errors.Errorf("average speed must be positive, got %f", averageSpeed)
	}
	if sampleInterval <= 0 {
		return nil, errors.Errorf("sample interval must be positive, got %f", sampleInterval)
	}

	// cumulative arc length at each waypoint
	cumulative := make([]float64, len(waypoints))
	for i := 1; i < len(waypoints); i++ {
		cumulative[i] = cumulative[i-1] + waypoints[i].Sub(waypoints[i-1]).Norm()
	}
	total := cumulative[len(cumulative)-1]
	if total == 0 {
		return nil, errors.New("waypoints describe a zero-length path")
	}

	duration := total / averageSpeed
	n := int(math.Ceil(duration / sampleInterval))
	tj := &Trajectory{
		Positions:      make([]r3.Vector, 0, n),
		Velocities:     make([]r3.Vector, 0, n),
		Times:          make([]float64, 0, n),
		SampleInterval: sampleInterval,
	}

	seg := 1
	for k := 1; k <= n; k++ {
		t := float64(k) * sampleInterval
		dist := math.Min(averageSpeed*t, total)
		// advance to the segment containing this arc length; zero-length
		// segments are skipped
		for seg < len(waypoints)-1 && cumulative[seg] < dist {
			seg++
		}
		segLen := cumulative[seg] - cumulative[seg-1]
		var pos r3.Vector
		var dir r3.Vector
		if segLen > 0 {
			frac := (dist - cumulative[seg-1]) / segLen
			dir = waypoints[seg].Sub(waypoints[seg-1]).Mul(1 / segLen)
			pos = waypoints[seg-1].Add(dir.Mul(frac * segLen))
		} else {
			pos = waypoints[seg]
		}
		vel := dir.Mul(averageSpeed)
		if k == n {
			pos = waypoints[len(waypoints)-1]
			vel = r3.Vector{}
		}
		tj.Positions = append(tj.Positions, pos)
		tj.Velocities = append(tj.Velocities, vel)
		tj.Times = append(tj.Times, t)
	}
	return tj, nil
}
