package main

import (
	"fmt"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/armkit/armkit/control"
	"github.com/armkit/armkit/kinematics"
)

func TestDiagConverge(t *testing.T) {
	chain, _ := kinematics.NewArm4()
	q := []float64{0.1, 0.5, -0.4, 0.2}
	start, _ := chain.ForwardKinematics(q)
	goal := start.Add(r3.Vector{X: 15, Y: -10, Z: 20})
	pid := control.NewPID(1.0, 0.0, 0.0)
	const dt = 0.05
	for i := 0; i < 2000; i++ {
		qdot, err := pid.Compute(chain, q, goal, dt)
		if err != nil {
			t.Fatal(i, err)
		}
		for j := range q {
			q[j] += qdot[j] * dt
		}
		if i%200 == 0 || i == 1999 {
			ee, _ := chain.ForwardKinematics(q)
			fmt.Printf("iter %4d err %.6f q %v qdot %v\n", i, goal.Sub(ee).Norm(), q, qdot)
		}
	}
}
