package dynamixel

import (
	"encoding/binary"
	"math"
)

// TicksToRadians converts encoder ticks to radians. The motor has 4096 ticks
// per revolution with the zero pose at 2048.
func TicksToRadians(ticks int) float64 {
	return float64(ticks-CenterPosition) * (2 * math.Pi / float64(TicksPerRevolution))
}

// RadiansToTicks converts radians to encoder ticks.
func RadiansToTicks(radians float64) int {
	return int(math.Round(radians*(float64(TicksPerRevolution)/(2*math.Pi)))) + CenterPosition
}

// RadPerSecToVelocityUnits converts an angular velocity to Goal Velocity
// register units (0.229 rpm each).
func RadPerSecToVelocityUnits(radSec float64) int {
	rpm := radSec * 60 / (2 * math.Pi)
	return int(math.Round(rpm / VelocityUnitRPM))
}

// VelocityUnitsToRadPerSec converts Goal Velocity register units to rad/s.
func VelocityUnitsToRadPerSec(units int) float64 {
	rpm := float64(units) * VelocityUnitRPM
	return rpm * 2 * math.Pi / 60
}

// ClampJointVelocity limits a velocity command to the joint's configured cap.
func ClampJointVelocity(jointIdx int, radSec float64) float64 {
	if jointIdx < 0 || jointIdx >= len(ArmJoints) {
		return 0
	}
	limit := ArmJoints[jointIdx].MaxRadSec
	return math.Max(-limit, math.Min(limit, radSec))
}

// BytesToInt32 converts 4 little-endian bytes to an int32.
func BytesToInt32(data []byte) int32 {
	if len(data) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(data))
}

// Int32ToBytes converts an int32 to 4 little-endian bytes.
func Int32ToBytes(val int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(val))
	return buf
}
