package dynamixel

import (
	"sync"
	"time"

	protocol "github.com/haguro/go-dxl/protocol/v2"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// ErrNotOpen is returned when operations are attempted on a closed driver.
var ErrNotOpen = errors.New("driver not open")

// Driver provides thread-safe communication with the arm's Dynamixel motors.
// The serial round trip tolerates no more than roughly one command per
// 150 ms; the control loop's actuation throttle is the contract, the driver
// itself does not rate limit.
type Driver struct {
	port    serial.Port
	handler *protocol.Handler
	mu      sync.Mutex
	isOpen  bool
}

// NewDriver opens the serial port and prepares a Protocol 2.0 handler.
func NewDriver(portName string, baudRate int) (*Driver, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}
	return &Driver{
		port:    port,
		handler: protocol.NewHandler(port, 100*time.Millisecond),
		isOpen:  true,
	}, nil
}

// Close closes the serial port.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isOpen {
		return nil
	}
	d.isOpen = false
	return d.port.Close()
}

func (d *Driver) checkOpen() error {
	if !d.isOpen {
		return ErrNotOpen
	}
	return nil
}

// EnableTorque enables torque on the given motors.
func (d *Driver) EnableTorque(motorIDs []int) error {
	return d.writeTorque(motorIDs, 1)
}

// DisableTorque disables torque on the given motors.
func (d *Driver) DisableTorque(motorIDs []int) error {
	return d.writeTorque(motorIDs, 0)
}

func (d *Driver) writeTorque(motorIDs []int, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	for _, id := range motorIDs {
		if err := d.handler.Write(byte(id), AddrTorqueEnable, value); err != nil {
			return errors.Wrapf(err, "failed to set torque on motor %d", id)
		}
	}
	return nil
}

// SetOperatingMode sets the operating mode of a motor. Torque must be
// disabled before changing the mode.
func (d *Driver) SetOperatingMode(motorID, mode int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := d.handler.Write(byte(motorID), AddrOperatingMode, byte(mode)); err != nil {
		return errors.Wrapf(err, "failed to set operating mode on motor %d", motorID)
	}
	return nil
}

// ReadJointPositions reads the present position of every arm joint, in
// radians, in joint order.
func (d *Driver) ReadJointPositions() ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	positions := make([]float64, NumJoints)
	for i, cfg := range ArmJoints {
		data, err := d.handler.Read(byte(cfg.MotorID), AddrPresentPosition, 4)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read position from motor %d", cfg.MotorID)
		}
		positions[i] = TicksToRadians(int(BytesToInt32(data)))
	}
	return positions, nil
}

// WriteJointVelocities writes goal velocities (rad/s, joint order) to all arm
// joints, clamped to each joint's velocity cap.
func (d *Driver) WriteJointVelocities(velocities []float64) error {
	if len(velocities) != NumJoints {
		return errors.Errorf("expected %d velocities, got %d", NumJoints, len(velocities))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	for i, vel := range velocities {
		cfg := ArmJoints[i]
		units := RadPerSecToVelocityUnits(ClampJointVelocity(i, vel))
		data := Int32ToBytes(int32(units))
		if err := d.handler.Write(byte(cfg.MotorID), AddrGoalVelocity, data...); err != nil {
			return errors.Wrapf(err, "failed to write velocity to motor %d", cfg.MotorID)
		}
	}
	return nil
}

// IsMoving reports whether any arm motor is currently moving.
func (d *Driver) IsMoving() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return false, err
	}
	for _, id := range ArmMotorIDs {
		data, err := d.handler.Read(byte(id), AddrMoving, 1)
		if err != nil {
			return false, errors.Wrapf(err, "failed to read moving status from motor %d", id)
		}
		if len(data) > 0 && data[0] != 0 {
			return true, nil
		}
	}
	return false, nil
}

// Reboot reboots a motor to clear latched hardware errors.
func (d *Driver) Reboot(motorID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := d.handler.Reboot(byte(motorID)); err != nil {
		return errors.Wrapf(err, "failed to reboot motor %d", motorID)
	}
	// the motor drops off the bus briefly while rebooting
	time.Sleep(500 * time.Millisecond)
	return nil
}
