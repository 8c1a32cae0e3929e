//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// DefaultChip is the GPIO character device the sensors are wired to.
const DefaultChip = "gpiochip0"

// RealRanger is not available on non-Linux platforms.
type RealRanger struct{}

// NewRealRanger returns an error on non-Linux platforms.
func NewRealRanger(name, chipName string, trigPin, echoPin int, echoTimeout time.Duration) (*RealRanger, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// MeasureDistance always reports no echo.
func (r *RealRanger) MeasureDistance() float64 {
	return NoEcho
}

// Close is a no-op on non-Linux platforms.
func (r *RealRanger) Close() error {
	return nil
}
