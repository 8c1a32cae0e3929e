package gpio

import "sync"

// FakeRanger is a test double that returns scripted distances.
// Safe for concurrent use.
type FakeRanger struct {
	mu sync.Mutex

	// samples are consumed one per MeasureDistance call. When exhausted the
	// last sample repeats. With no samples, NoEcho is returned.
	samples []float64
	index   int
	calls   int
	closed  bool
}

// NewFakeRanger creates a FakeRanger with the given distances.
func NewFakeRanger(samples ...float64) *FakeRanger {
	return &FakeRanger{samples: samples}
}

// MeasureDistance returns the next scripted distance.
func (f *FakeRanger) MeasureDistance() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.samples) == 0 {
		return NoEcho
	}
	d := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return d
}

// Set replaces the script and rewinds it.
func (f *FakeRanger) Set(samples ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = samples
	f.index = 0
}

// Exhausted reports whether the script has reached its last sample.
func (f *FakeRanger) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples) == 0 || f.index == len(f.samples)-1
}

// Calls returns the number of MeasureDistance calls so far.
func (f *FakeRanger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Close marks the ranger as closed.
func (f *FakeRanger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeRanger) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
