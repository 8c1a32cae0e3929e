//go:build linux

package gpio

import (
	"fmt"
	"log"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device the sensors are wired to.
const DefaultChip = "gpiochip0"

// RealRanger measures distance with an HC-SR04 on two GPIO lines.
type RealRanger struct {
	name        string
	chip        *gpiocdev.Chip
	trig        *gpiocdev.Line
	echo        *gpiocdev.Line
	echoTimeout time.Duration

	failing bool // a read error has been logged and not yet recovered
}

// NewRealRanger opens the trigger and echo lines of one HC-SR04 module.
func NewRealRanger(name, chipName string, trigPin, echoPin int, echoTimeout time.Duration) (*RealRanger, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("parking-barrier"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	trig, err := chip.RequestLine(trigPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request %s trigger pin %d: %w", name, trigPin, err)
	}

	echo, err := chip.RequestLine(echoPin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		trig.Close()
		chip.Close()
		return nil, fmt.Errorf("request %s echo pin %d: %w", name, echoPin, err)
	}

	// Let the module settle with the trigger held low.
	time.Sleep(50 * time.Millisecond)

	return &RealRanger{
		name:        name,
		chip:        chip,
		trig:        trig,
		echo:        echo,
		echoTimeout: echoTimeout,
	}, nil
}

// MeasureDistance sends a 10µs trigger pulse and times the echo pulse.
// A missing or stuck echo, and any line error, reads as NoEcho.
func (r *RealRanger) MeasureDistance() float64 {
	pulse, err := r.ping()
	if err != nil {
		if !r.failing {
			log.Printf("gpio: %s sensor read error: %v", r.name, err)
			r.failing = true
		}
		return NoEcho
	}
	if r.failing {
		log.Printf("gpio: %s sensor recovered", r.name)
		r.failing = false
	}
	if pulse == 0 {
		return NoEcho
	}
	return EchoToCentimeters(pulse)
}

// ping returns the echo pulse width, or zero on timeout.
func (r *RealRanger) ping() (time.Duration, error) {
	if err := r.trig.SetValue(1); err != nil {
		return 0, fmt.Errorf("raise trigger: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := r.trig.SetValue(0); err != nil {
		return 0, fmt.Errorf("lower trigger: %w", err)
	}

	start, ok, err := r.waitFor(1)
	if err != nil || !ok {
		return 0, err
	}
	end, ok, err := r.waitFor(0)
	if err != nil || !ok {
		return 0, err
	}
	return end.Sub(start), nil
}

// waitFor polls the echo line until it reads want or the timeout passes.
func (r *RealRanger) waitFor(want int) (time.Time, bool, error) {
	deadline := time.Now().Add(r.echoTimeout)
	for {
		v, err := r.echo.Value()
		if err != nil {
			return time.Time{}, false, fmt.Errorf("read echo: %w", err)
		}
		now := time.Now()
		if v == want {
			return now, true, nil
		}
		if now.After(deadline) {
			return time.Time{}, false, nil
		}
	}
}

// Close releases GPIO resources, leaving the trigger as a pulled-down input.
func (r *RealRanger) Close() error {
	var errs []error

	if r.trig != nil {
		if err := r.trig.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure trigger pin: %w", err))
		}
		if err := r.trig.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trigger pin: %w", err))
		}
	}
	if r.echo != nil {
		if err := r.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
