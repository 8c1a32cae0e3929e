// Package presence turns a noisy distance source into debounced occupancy
// and a rising-edge event stream for one side of the barrier.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/parking-barrier/internal/gpio"
)

// Defaults.
const (
	DefaultThresholdCm  = 10.0
	DefaultSamples      = 3
	DefaultQuorum       = 2
	DefaultSampleDelay  = 50 * time.Millisecond
	DefaultPollInterval = 50 * time.Millisecond
)

// Config controls debouncing and polling.
type Config struct {
	ThresholdCm  float64       // readings strictly below this count as near
	Samples      int           // readings per occupancy evaluation
	Quorum       int           // near readings required to declare occupancy
	SampleDelay  time.Duration // pause after each reading
	PollInterval time.Duration // pause between evaluations in Run
}

// DefaultConfig returns the stock debounce settings.
func DefaultConfig() Config {
	return Config{
		ThresholdCm:  DefaultThresholdCm,
		Samples:      DefaultSamples,
		Quorum:       DefaultQuorum,
		SampleDelay:  DefaultSampleDelay,
		PollInterval: DefaultPollInterval,
	}
}

// Detector samples one sensor. SampleOccupancy may be called concurrently
// with Run; readings are serialized so only one caller triggers the sensor
// at a time.
type Detector struct {
	name   string
	ranger gpio.Ranger
	cfg    Config

	// Logger receives debug lines. Nil means log.Default().
	Logger *log.Logger

	// Sleep pauses between readings. Nil means time.Sleep.
	Sleep func(time.Duration)

	mu sync.Mutex
}

// NewDetector creates a Detector for the named side.
func NewDetector(name string, ranger gpio.Ranger, cfg Config) *Detector {
	return &Detector{name: name, ranger: ranger, cfg: cfg}
}

// Name returns the side this detector watches.
func (d *Detector) Name() string {
	return d.name
}

// SampleOccupancy takes Samples readings and reports whether at least
// Quorum of them were below the threshold. A missing echo reads as far.
func (d *Detector) SampleOccupancy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	near := 0
	for i := 0; i < d.cfg.Samples; i++ {
		if d.ranger.MeasureDistance() < d.cfg.ThresholdCm {
			near++
		}
		d.sleep(d.cfg.SampleDelay)
	}
	return near >= d.cfg.Quorum
}

// Distance takes a single raw reading.
func (d *Detector) Distance() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ranger.MeasureDistance()
}

// Run polls occupancy until ctx is cancelled, calling onEdge on every
// false to true transition. Occupancy starts as false, so a vehicle that is
// already present at startup produces one edge.
func (d *Detector) Run(ctx context.Context, onEdge func()) {
	var edges EdgeTracker
	for {
		if ctx.Err() != nil {
			return
		}
		if edges.Update(d.SampleOccupancy()) {
			d.logger().Printf("presence: %s rising edge", d.name)
			onEdge()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

func (d *Detector) sleep(dur time.Duration) {
	if dur <= 0 {
		return
	}
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

func (d *Detector) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// EdgeTracker detects rising edges in a boolean signal.
type EdgeTracker struct {
	prev bool
}

// Update records the current value and reports whether it is a rising edge.
func (e *EdgeTracker) Update(cur bool) bool {
	rising := cur && !e.prev
	e.prev = cur
	return rising
}

// Current returns the last recorded value.
func (e *EdgeTracker) Current() bool {
	return e.prev
}
