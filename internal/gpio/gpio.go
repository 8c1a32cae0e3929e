// Package gpio provides distance measurement with hardware abstraction.
// The real implementation drives an HC-SR04 ultrasonic module over the Linux
// GPIO character device. The fake implementation allows testing without
// hardware.
package gpio

import (
	"math"
	"time"
)

// NoEcho is the distance reported when no echo arrives within the timeout.
// It compares as farther than any threshold, so a missing echo reads as
// "no object".
var NoEcho = math.Inf(1)

// Ranger measures the distance to the nearest object.
type Ranger interface {
	// MeasureDistance returns the distance in centimetres, or NoEcho.
	// It never fails: every failure mode reads as NoEcho.
	MeasureDistance() float64

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering), matching the barrier wiring.
const (
	DefaultInsideTrig  = 21
	DefaultInsideEcho  = 20
	DefaultOutsideTrig = 19
	DefaultOutsideEcho = 16
)

// DefaultEchoTimeout bounds each wait on the echo line.
const DefaultEchoTimeout = 20 * time.Millisecond

// speedOfSound in centimetres per second, at roughly 20 celsius.
const speedOfSound = 34300.0

// EchoToCentimeters converts a round-trip echo pulse width into distance.
func EchoToCentimeters(pulse time.Duration) float64 {
	return pulse.Seconds() * speedOfSound / 2
}
