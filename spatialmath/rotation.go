// Package spatialmath implements the 3D math the arm controller is built on:
// rotation matrices expressed in the global frame, and rotations about fixed
// axes. Orientations here are always global (never relative to a parent), so
// reading a frame's orientation is O(1) and composing an incremental joint
// rotation is a single left-multiplication.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// RotationMatrix is a 3x3 rotation matrix, stored row-major.
type RotationMatrix struct {
	mat [9]float64
}

// NewZeroRotation returns the identity rotation.
func NewZeroRotation() *RotationMatrix {
	return &RotationMatrix{[9]float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}}
}

// NewRotationMatrix creates a rotation matrix from a row-major slice of 9 values.
// No orthonormality check is performed.
func NewRotationMatrix(m [9]float64) *RotationMatrix {
	return &RotationMatrix{m}
}

// NewRotationFromAxisAngle returns the rotation of theta radians about the
// given axis, via the Rodrigues rotation formula. The axis is normalized.
func NewRotationFromAxisAngle(axis r3.Vector, theta float64) *RotationMatrix {
	a := axis.Normalize()
	c := math.Cos(theta)
	s := math.Sin(theta)
	v := 1 - c
	return &RotationMatrix{[9]float64{
		a.X*a.X*v + c, a.X*a.Y*v - a.Z*s, a.X*a.Z*v + a.Y*s,
		a.X*a.Y*v + a.Z*s, a.Y*a.Y*v + c, a.Y*a.Z*v - a.X*s,
		a.X*a.Z*v - a.Y*s, a.Y*a.Z*v + a.X*s, a.Z*a.Z*v + c,
	}}
}

// At returns the value at the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Row returns a single row from the rotation matrix.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns a single column from the rotation matrix.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[3+col], Z: rm.mat[6+col]}
}

// Mul applies the rotation to a vector.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.mat[0]*v.X + rm.mat[1]*v.Y + rm.mat[2]*v.Z,
		Y: rm.mat[3]*v.X + rm.mat[4]*v.Y + rm.mat[5]*v.Z,
		Z: rm.mat[6]*v.X + rm.mat[7]*v.Y + rm.mat[8]*v.Z,
	}
}

// MatMul returns the composition a*b, the rotation equivalent to applying b
// first and then a. Rotation composition is not commutative; incremental
// joint rotations compose on the left of a frame's global orientation.
func MatMul(a, b *RotationMatrix) *RotationMatrix {
	out := &RotationMatrix{}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.mat[3*r+c] = a.mat[3*r]*b.mat[c] + a.mat[3*r+1]*b.mat[3+c] + a.mat[3*r+2]*b.mat[6+c]
		}
	}
	return out
}

// Clone returns a copy of the rotation matrix.
func (rm *RotationMatrix) Clone() *RotationMatrix {
	return &RotationMatrix{rm.mat}
}

// Transpose returns the transpose, which for a rotation matrix is its inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	return &RotationMatrix{[9]float64{
		rm.mat[0], rm.mat[3], rm.mat[6],
		rm.mat[1], rm.mat[4], rm.mat[7],
		rm.mat[2], rm.mat[5], rm.mat[8],
	}}
}

// RotationMatrixAlmostEqual reports whether two rotation matrices are equal
// entrywise to within epsilon.
func RotationMatrixAlmostEqual(a, b *RotationMatrix, epsilon float64) bool {
	for i := 0; i < 9; i++ {
		if math.Abs(a.mat[i]-b.mat[i]) > epsilon {
			return false
		}
	}
	return true
}

// R3VectorAlmostEqual compares two r3 vectors and returns if their components
// are each within epsilon of each other.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}
