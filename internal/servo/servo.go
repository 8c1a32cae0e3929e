// Package servo drives the barrier arm.
package servo

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// Actuator opens and closes the barrier. Both calls are idempotent with
// respect to the actuator's own cached position.
type Actuator interface {
	Open() error
	Close() error
}

// Barrier arm angles.
const (
	ClosedAngle = 0 * physic.Degree
	OpenAngle   = 180 * physic.Degree
)

// Defaults for the PCA9685 board.
const (
	DefaultAddress = pca9685.I2CAddr
	DefaultChannel = 0
)

// Pulse limits in PCA9685 counts (out of 4096 at 50Hz).
const (
	minPulse = 102
	maxPulse = 512
)

// PCA9685 is a barrier arm on one channel of a PCA9685 PWM board.
type PCA9685 struct {
	mu     sync.Mutex
	bus    i2c.BusCloser
	servo  *pca9685.Servo
	closed bool // cached arm position
}

// NewPCA9685 initialises the host drivers, opens the I2C bus, and drives the
// arm to the closed position.
func NewPCA9685(busName string, address uint16, channel int) (*PCA9685, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	dev, err := pca9685.NewI2C(bus, address)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open pca9685 at %#x: %w", address, err)
	}
	if err := dev.SetPwmFreq(50 * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("set pwm frequency: %w", err)
	}

	group := pca9685.NewServoGroup(dev, minPulse, maxPulse, ClosedAngle, OpenAngle)
	p := &PCA9685{
		bus:   bus,
		servo: group.GetServo(channel),
	}
	if err := p.servo.SetAngle(ClosedAngle); err != nil {
		bus.Close()
		return nil, fmt.Errorf("move to closed: %w", err)
	}
	p.closed = true
	return p, nil
}

// Open implements Actuator.Open.
func (p *PCA9685) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return nil
	}
	if err := p.servo.SetAngle(OpenAngle); err != nil {
		return fmt.Errorf("servo open: %w", err)
	}
	p.closed = false
	return nil
}

// Close implements Actuator.Close.
func (p *PCA9685) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if err := p.servo.SetAngle(ClosedAngle); err != nil {
		return fmt.Errorf("servo close: %w", err)
	}
	p.closed = true
	return nil
}

// Release closes the I2C bus. The arm is left where it is.
func (p *PCA9685) Release() error {
	return p.bus.Close()
}
