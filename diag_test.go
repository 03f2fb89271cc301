package main

// temporary diagnostic; will be removed

import (
	"fmt"
	"testing"

	"github.com/armkit/armkit/kinematics"
)

func TestDiagJacobian(t *testing.T) {
	chain, err := kinematics.NewArm4()
	if err != nil {
		t.Fatal(err)
	}
	q := []float64{0.1, 0.5, -0.4, 0.2}
	jac, err := chain.Jacobian(q)
	if err != nil {
		t.Fatal(err)
	}
	const h = 1e-6
	for j := 0; j < kinematics.NumJoints; j++ {
		qp := append([]float64(nil), q...)
		qm := append([]float64(nil), q...)
		qp[j] += h
		qm[j] -= h
		fp, _ := chain.ForwardKinematics(qp)
		fm, _ := chain.ForwardKinematics(qm)
		num := fp.Sub(fm).Mul(1 / (2 * h))
		fmt.Printf("col %d analytic (%.4f %.4f %.4f) numeric (%.4f %.4f %.4f)\n",
			j, jac.At(0, j), jac.At(1, j), jac.At(2, j), num.X, num.Y, num.Z)
	}
}
