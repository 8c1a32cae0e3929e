package control

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/sweeney/parking-barrier/internal/logic"
	"github.com/sweeney/parking-barrier/internal/servo"
	"github.com/sweeney/parking-barrier/internal/timer"
)

type fakeProber struct {
	occupied bool
	calls    int
}

func (p *fakeProber) SampleOccupancy() bool {
	p.calls++
	return p.occupied
}

type fixture struct {
	gw      *Gateway
	machine *logic.Machine
	act     *servo.FakeActuator
	sched   *timer.Fake
	inside  *fakeProber
	outside *fakeProber
}

var now = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	act := servo.NewFakeActuator()
	sched := timer.NewFake()
	m := logic.NewMachine(act, sched, logic.Config{Logger: log.New(io.Discard, "", 0)})
	f := &fixture{
		machine: m,
		act:     act,
		sched:   sched,
		inside:  &fakeProber{},
		outside: &fakeProber{},
	}
	f.gw = NewGateway(m, f.inside, f.outside, func() time.Time { return now })
	return f
}

func TestRequestCloseAccepted(t *testing.T) {
	f := newFixture(t)
	f.gw.RequestOpen()

	res, err := f.gw.RequestClose()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Accepted || res.Reason != "" {
		t.Errorf("got %+v, want accepted", res)
	}
	if f.machine.Snapshot().Position != logic.PositionClosed {
		t.Error("barrier should be closed")
	}
	if f.inside.calls != 1 || f.outside.calls != 1 {
		t.Errorf("each side should be measured once: inside=%d outside=%d", f.inside.calls, f.outside.calls)
	}
}

func TestRequestCloseVehiclePresent(t *testing.T) {
	for _, side := range []string{"inside", "outside"} {
		t.Run(side, func(t *testing.T) {
			f := newFixture(t)
			f.gw.RequestOpen()
			if side == "inside" {
				f.inside.occupied = true
			} else {
				f.outside.occupied = true
			}

			res, err := f.gw.RequestClose()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Accepted || res.Reason != ReasonVehiclePresent {
				t.Errorf("got %+v, want rejected with %q", res, ReasonVehiclePresent)
			}
			if f.machine.Snapshot().Position != logic.PositionOpen {
				t.Error("barrier should stay open")
			}
		})
	}
}

func TestRequestCloseSequenceInProgress(t *testing.T) {
	f := newFixture(t)
	f.machine.NotifyOutsideEdge()

	res, err := f.gw.RequestClose()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Accepted || res.Reason != ReasonSequenceInProgress {
		t.Errorf("got %+v, want rejected with %q", res, ReasonSequenceInProgress)
	}
	if f.machine.Snapshot().Pending != logic.EntryPending {
		t.Error("entry should still be pending")
	}
}

func TestRequestCloseFault(t *testing.T) {
	f := newFixture(t)
	f.gw.RequestOpen()
	f.act.SetFaults(nil, errors.New("jammed"))

	res, err := f.gw.RequestClose()
	if !errors.Is(err, logic.ErrActuatorFault) {
		t.Fatalf("expected actuator fault, got %v", err)
	}
	if !res.Accepted {
		t.Error("request passed validation and should report accepted")
	}
	if f.machine.Snapshot().Position != logic.PositionOpen {
		t.Error("position must stay at last confirmed value")
	}
}

func TestRequestOpenAlwaysAccepted(t *testing.T) {
	f := newFixture(t)
	f.inside.occupied = true
	f.machine.NotifyOutsideEdge()

	if err := f.gw.RequestOpen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := f.machine.Snapshot()
	if s.Position != logic.PositionOpen || s.Pending != logic.TransitionNone {
		t.Errorf("got (%s, %s), want (OPEN, NONE)", s.Position, s.Pending)
	}
	if f.inside.calls != 0 {
		t.Error("open must not measure occupancy")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.machine.NotifyOutsideEdge()
	f.machine.NotifyInsideEdge()

	st := f.gw.Status()
	if st.BarrierPosition != logic.PositionClosed {
		t.Errorf("position: got %s", st.BarrierPosition)
	}
	if st.VehicleCount != 1 {
		t.Errorf("count: got %d, want 1", st.VehicleCount)
	}
	if !st.Timestamp.Equal(now) {
		t.Errorf("timestamp: got %v, want %v", st.Timestamp, now)
	}
}
