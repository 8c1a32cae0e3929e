package servo

import "sync"

// FakeActuator records commands for test assertions.
type FakeActuator struct {
	mu sync.Mutex

	// OpenError, if set, is returned by Open and the position is unchanged.
	OpenError error

	// CloseError, if set, is returned by Close and the position is unchanged.
	CloseError error

	open   bool
	opens  int
	closes int
}

// NewFakeActuator creates a FakeActuator in the closed position.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Open implements Actuator.Open.
func (f *FakeActuator) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenError != nil {
		return f.OpenError
	}
	if !f.open {
		f.open = true
		f.opens++
	}
	return nil
}

// Close implements Actuator.Close.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CloseError != nil {
		return f.CloseError
	}
	if f.open {
		f.open = false
		f.closes++
	}
	return nil
}

// SetFaults sets the errors returned by Open and Close.
func (f *FakeActuator) SetFaults(openErr, closeErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenError = openErr
	f.CloseError = closeErr
}

// IsOpen reports the fake's physical position.
func (f *FakeActuator) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Moves returns how many times the arm physically opened and closed.
func (f *FakeActuator) Moves() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}
