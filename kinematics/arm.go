package kinematics

import "github.com/golang/geo/r3"

// NewArm4 returns the chain for the 4-joint arm this project drives. Offsets
// are in millimeters; the base joint rotates about z, the remaining three
// pitch about y, so the arm points straight up at the zero configuration.
func NewArm4() (*Chain, error) {
	return NewChain([]JointConfig{
		{Name: "waist", Offset: r3.Vector{X: 0, Y: 0, Z: 83.51}, Axis: r3.Vector{X: 0, Y: 0, Z: 1}},
		{Name: "shoulder", Offset: r3.Vector{X: 0, Y: 0, Z: 0}, Axis: r3.Vector{X: 0, Y: 1, Z: 0}},
		{Name: "elbow", Offset: r3.Vector{X: 0, Y: 0, Z: 119.35}, Axis: r3.Vector{X: 0, Y: 1, Z: 0}},
		{Name: "wrist", Offset: r3.Vector{X: 0, Y: 0, Z: 163.99}, Axis: r3.Vector{X: 0, Y: 1, Z: 0}},
	}, r3.Vector{X: 0, Y: 0, Z: 218.86})
}
