// Package dynamixel implements the physical arm backend over Dynamixel
// Protocol 2.0 servos driven in velocity-control mode.
package dynamixel

import "math"

// Protocol and control table constants (X series, Protocol 2.0).
const (
	DefaultBaudRate = 1000000

	AddrOperatingMode   uint16 = 11
	AddrTorqueEnable    uint16 = 64
	AddrGoalVelocity    uint16 = 104
	AddrMoving          uint16 = 122
	AddrPresentPosition uint16 = 132

	// Position resolution
	TicksPerRevolution = 4096
	CenterPosition     = 2048

	// One Goal Velocity unit is 0.229 rpm.
	VelocityUnitRPM = 0.229

	// Operating modes
	VelocityControlMode = 1
	PositionControlMode = 3
)

// NumJoints is the number of arm joints.
const NumJoints = 4

// JointConfig defines a single joint's motor ID, limits, and velocity cap.
type JointConfig struct {
	Name      string
	MotorID   int
	MinRad    float64
	MaxRad    float64
	MaxRadSec float64
}

func deg(d float64) float64 {
	return d * math.Pi / 180
}

// ArmJoints is the joint/motor mapping of the 4-DOF arm. Velocity caps keep
// commanded velocities inside what the servos track reliably; the motor
// EEPROM enforces position limits on top of this.
var ArmJoints = []JointConfig{
	{Name: "waist", MotorID: 1, MinRad: deg(-180), MaxRad: deg(180), MaxRadSec: 2.0},
	{Name: "shoulder", MotorID: 2, MinRad: deg(-108), MaxRad: deg(113), MaxRadSec: 1.5},
	{Name: "elbow", MotorID: 3, MinRad: deg(-108), MaxRad: deg(93), MaxRadSec: 1.5},
	{Name: "wrist", MotorID: 4, MinRad: deg(-100), MaxRad: deg(123), MaxRadSec: 2.0},
}

// ArmMotorIDs lists the motor IDs in joint order.
var ArmMotorIDs = []int{1, 2, 3, 4}
