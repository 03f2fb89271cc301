package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestRotationAboutAxes(t *testing.T) {
	// 90 degrees about z maps x onto y
	rz := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 1}, math.Pi/2)
	got := rz.Mul(r3.Vector{X: 1, Y: 0, Z: 0})
	test.That(t, R3VectorAlmostEqual(got, r3.Vector{X: 0, Y: 1, Z: 0}, 1e-9), test.ShouldBeTrue)

	// 90 degrees about y maps z onto x
	ry := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 1, Z: 0}, math.Pi/2)
	got = ry.Mul(r3.Vector{X: 0, Y: 0, Z: 1})
	test.That(t, R3VectorAlmostEqual(got, r3.Vector{X: 1, Y: 0, Z: 0}, 1e-9), test.ShouldBeTrue)

	// 90 degrees about x maps y onto z
	rx := NewRotationFromAxisAngle(r3.Vector{X: 1, Y: 0, Z: 0}, math.Pi/2)
	got = rx.Mul(r3.Vector{X: 0, Y: 1, Z: 0})
	test.That(t, R3VectorAlmostEqual(got, r3.Vector{X: 0, Y: 0, Z: 1}, 1e-9), test.ShouldBeTrue)
}

func TestRotationComposition(t *testing.T) {
	a := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 1}, 0.3)
	b := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 1}, 0.5)

	// rotations about the same axis add their angles
	ab := MatMul(a, b)
	want := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 1}, 0.8)
	test.That(t, RotationMatrixAlmostEqual(ab, want, 1e-9), test.ShouldBeTrue)

	// rotations about different axes do not commute
	c := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 1, Z: 0}, 0.7)
	test.That(t, RotationMatrixAlmostEqual(MatMul(a, c), MatMul(c, a), 1e-9), test.ShouldBeFalse)
}

func TestRotationTranspose(t *testing.T) {
	rm := NewRotationFromAxisAngle(r3.Vector{X: 1, Y: 2, Z: 3}, 1.1)
	ident := MatMul(rm, rm.Transpose())
	test.That(t, RotationMatrixAlmostEqual(ident, NewZeroRotation(), 1e-9), test.ShouldBeTrue)
}

func TestRotationPreservesNorm(t *testing.T) {
	rm := NewRotationFromAxisAngle(r3.Vector{X: -1, Y: 0.5, Z: 2}, 2.4)
	v := r3.Vector{X: 3, Y: -4, Z: 12}
	test.That(t, rm.Mul(v).Norm(), test.ShouldAlmostEqual, v.Norm(), 1e-9)
}

func TestRowCol(t *testing.T) {
	rm := NewRotationMatrix([9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	test.That(t, rm.Row(1), test.ShouldResemble, r3.Vector{X: 4, Y: 5, Z: 6})
	test.That(t, rm.Col(2), test.ShouldResemble, r3.Vector{X: 3, Y: 6, Z: 9})
	test.That(t, rm.At(2, 0), test.ShouldEqual, 7.)
}
