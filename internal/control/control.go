// Package control is the operator-facing surface of the barrier: manual
// open, validated manual close, and a status query.
package control

import (
	"log"
	"time"

	"github.com/sweeney/parking-barrier/internal/logic"
)

// Rejection reasons for a manual close.
const (
	ReasonVehiclePresent     = "vehicle present"
	ReasonSequenceInProgress = "sequence in progress"
)

// Prober measures fresh occupancy on one side.
type Prober interface {
	SampleOccupancy() bool
}

// Machine is the subset of logic.Machine the gateway drives.
type Machine interface {
	TryForceClose(insideOccupied, outsideOccupied bool) (bool, error)
	ForceOpen() error
	Snapshot() logic.Snapshot
}

// CloseResult reports the outcome of a manual close request.
type CloseResult struct {
	Accepted bool
	Reason   string // set when not accepted
}

// Status is the public status view.
type Status struct {
	BarrierPosition logic.Position
	VehicleCount    int
	Timestamp       time.Time
}

// Gateway translates operator requests into machine operations.
type Gateway struct {
	machine Machine
	inside  Prober
	outside Prober
	now     func() time.Time
}

// NewGateway creates a Gateway. now may be nil for time.Now.
func NewGateway(m Machine, inside, outside Prober, now func() time.Time) *Gateway {
	if now == nil {
		now = time.Now
	}
	return &Gateway{machine: m, inside: inside, outside: outside, now: now}
}

// RequestClose re-measures both sides and closes the barrier only if no
// vehicle is present and no sequence is in progress. The measurement runs
// before the machine lock is taken.
func (g *Gateway) RequestClose() (CloseResult, error) {
	insideOccupied := g.inside.SampleOccupancy()
	outsideOccupied := g.outside.SampleOccupancy()

	ok, err := g.machine.TryForceClose(insideOccupied, outsideOccupied)
	if err != nil {
		return CloseResult{Accepted: true}, err
	}
	if ok {
		return CloseResult{Accepted: true}, nil
	}

	reason := ReasonSequenceInProgress
	if insideOccupied || outsideOccupied {
		reason = ReasonVehiclePresent
	}
	log.Printf("control: manual close refused (%s)", reason)
	return CloseResult{Reason: reason}, nil
}

// RequestOpen opens the barrier unconditionally.
func (g *Gateway) RequestOpen() error {
	return g.machine.ForceOpen()
}

// Status returns the barrier position and vehicle count.
func (g *Gateway) Status() Status {
	s := g.machine.Snapshot()
	return Status{
		BarrierPosition: s.Position,
		VehicleCount:    s.Count,
		Timestamp:       g.now(),
	}
}
