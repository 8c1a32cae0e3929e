package logic

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/parking-barrier/internal/idgen"
	"github.com/sweeney/parking-barrier/internal/timer"
)

// Actuator opens and closes the physical barrier.
type Actuator interface {
	Open() error
	Close() error
}

// Default timeouts.
const (
	DefaultPendingTimeout     = 3 * time.Second
	DefaultManualCloseTimeout = 5 * time.Second
	DefaultEventBuffer        = 64
)

// Config holds Machine settings. Zero values select defaults.
type Config struct {
	// PendingTimeout is how long an entry or exit waits for the opposite
	// sensor before the barrier closes without counting.
	PendingTimeout time.Duration

	// ManualCloseTimeout is the auto-close delay after a manual open.
	ManualCloseTimeout time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

// Machine sequences the barrier. Every operation holds one mutex for its
// full duration, so transitions never interleave and snapshots are
// consistent. Methods with a Locked suffix expect the mutex to be held.
type Machine struct {
	act   Actuator
	sched timer.Scheduler
	cfg   Config
	log   *log.Logger

	mu        sync.Mutex
	position  Position
	pending   Transition
	count     int
	sequence  string
	counts    EventCounts
	lastFault *Fault

	entryTimer  slot
	exitTimer   slot
	manualTimer slot

	events chan Event
}

// slot holds at most one scheduled callback. gen is bumped on every arm and
// cancel; a callback only acts if its generation is still current.
type slot struct {
	name   string
	handle timer.Handle
	gen    uint64
}

// NewMachine creates a Machine in the closed position with no vehicles.
func NewMachine(act Actuator, sched timer.Scheduler, cfg Config) *Machine {
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.ManualCloseTimeout <= 0 {
		cfg.ManualCloseTimeout = DefaultManualCloseTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.MustGenerate
	}

	return &Machine{
		act:         act,
		sched:       sched,
		cfg:         cfg,
		log:         cfg.Logger,
		position:    PositionClosed,
		pending:     TransitionNone,
		entryTimer:  slot{name: "entry"},
		exitTimer:   slot{name: "exit"},
		manualTimer: slot{name: "manual"},
		events:      make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the channel barrier events are delivered on. Events are
// dropped, with a log line, if the channel is full.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// NotifyOutsideEdge handles a rising edge on the outside sensor. It ends a
// pending exit, or starts an entry if the barrier is closed and idle.
func (m *Machine) NotifyOutsideEdge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Printf("sensor: outside rising edge")
	switch m.pending {
	case ExitPending:
		m.cancelLocked(&m.exitTimer)
		return m.completeExitLocked()
	case EntryPending:
		m.log.Printf("sensor: outside edge ignored, entry already pending")
		return nil
	case TransitionNone:
		if m.position != PositionClosed {
			m.log.Printf("sensor: outside edge ignored, barrier is open")
			return nil
		}
		return m.startLocked(EntryPending, &m.entryTimer, m.entryTimeoutLocked, EventEntryStarted)
	}
	return nil
}

// NotifyInsideEdge handles a rising edge on the inside sensor. It ends a
// pending entry, or starts an exit if the barrier is closed and idle and at
// least one vehicle is parked.
func (m *Machine) NotifyInsideEdge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Printf("sensor: inside rising edge")
	switch m.pending {
	case EntryPending:
		m.cancelLocked(&m.entryTimer)
		return m.completeEntryLocked()
	case ExitPending:
		m.log.Printf("sensor: inside edge ignored, exit already pending")
		return nil
	case TransitionNone:
		if m.position != PositionClosed {
			m.log.Printf("sensor: inside edge ignored, barrier is open")
			return nil
		}
		if m.count == 0 {
			m.log.Printf("sensor: inside edge ignored, no vehicles parked")
			return nil
		}
		return m.startLocked(ExitPending, &m.exitTimer, m.exitTimeoutLocked, EventExitStarted)
	}
	return nil
}

// startLocked opens the barrier and arms the pending-window timer for a new
// entry or exit sequence.
func (m *Machine) startLocked(t Transition, s *slot, onTimeout func() error, started EventType) error {
	m.log.Printf("sequence: starting %s", t)
	m.cancelLocked(&m.manualTimer)
	m.sequence = m.cfg.NewID()
	if err := m.openLocked(); err != nil {
		m.sequence = ""
		return err
	}
	m.pending = t
	m.armLocked(s, m.cfg.PendingTimeout, onTimeout)
	m.emitLocked(started, "")
	m.logStateLocked()
	return nil
}

// EntryTimeout closes the barrier without counting if an entry is still
// pending. A stale call is a no-op.
func (m *Machine) EntryTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked(&m.entryTimer)
	return m.entryTimeoutLocked()
}

func (m *Machine) entryTimeoutLocked() error {
	if m.pending != EntryPending {
		m.log.Printf("timer: entry timeout ignored, pending=%s", m.pending)
		return nil
	}
	m.log.Printf("timer: entry timeout after %v, closing without count", m.cfg.PendingTimeout)
	err := m.closeLocked()
	m.pending = TransitionNone
	m.counts.EntryTimeouts++
	m.emitLocked(EventEntryTimeout, "")
	m.sequence = ""
	m.logStateLocked()
	return err
}

// ExitTimeout closes the barrier without counting if an exit is still
// pending. A stale call is a no-op.
func (m *Machine) ExitTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked(&m.exitTimer)
	return m.exitTimeoutLocked()
}

func (m *Machine) exitTimeoutLocked() error {
	if m.pending != ExitPending {
		m.log.Printf("timer: exit timeout ignored, pending=%s", m.pending)
		return nil
	}
	m.log.Printf("timer: exit timeout after %v, closing without count", m.cfg.PendingTimeout)
	err := m.closeLocked()
	m.pending = TransitionNone
	m.counts.ExitTimeouts++
	m.emitLocked(EventExitTimeout, "")
	m.sequence = ""
	m.logStateLocked()
	return err
}

// ManualCloseTimeout closes a barrier left open by a manual open with no
// sequence in progress.
func (m *Machine) ManualCloseTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked(&m.manualTimer)
	return m.manualCloseTimeoutLocked()
}

func (m *Machine) manualCloseTimeoutLocked() error {
	if m.position != PositionOpen || m.pending != TransitionNone {
		m.log.Printf("timer: manual auto-close ignored, barrier=%s pending=%s", m.position, m.pending)
		return nil
	}
	m.log.Printf("timer: auto-close after %v", m.cfg.ManualCloseTimeout)
	err := m.closeLocked()
	if err == nil {
		m.counts.AutoCloses++
		m.emitLocked(EventAutoClose, "")
	}
	m.sequence = ""
	m.logStateLocked()
	return err
}

// completeEntryLocked counts a vehicle in. The vehicle has physically
// crossed, so the count changes even if the close faults.
func (m *Machine) completeEntryLocked() error {
	err := m.closeLocked()
	m.count++
	m.counts.Entries++
	m.pending = TransitionNone
	m.log.Printf("sequence: entry complete, +1 vehicle")
	m.emitLocked(EventEntryCompleted, "")
	m.sequence = ""
	m.logStateLocked()
	return err
}

// completeExitLocked counts a vehicle out.
func (m *Machine) completeExitLocked() error {
	err := m.closeLocked()
	if m.count > 0 {
		m.count--
	} else {
		m.log.Printf("sequence: exit completed with count already zero")
	}
	m.counts.Exits++
	m.pending = TransitionNone
	m.log.Printf("sequence: exit complete, -1 vehicle")
	m.emitLocked(EventExitCompleted, "")
	m.sequence = ""
	m.logStateLocked()
	return err
}

// CanForceClose reports whether a manual close is safe given freshly
// measured occupancy. It does not change state.
func (m *Machine) CanForceClose(insideOccupied, outsideOccupied bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canForceCloseLocked(insideOccupied, outsideOccupied)
}

func (m *Machine) canForceCloseLocked(insideOccupied, outsideOccupied bool) bool {
	m.log.Printf("manual: close check inside=%v outside=%v pending=%s", insideOccupied, outsideOccupied, m.pending)
	return m.pending == TransitionNone && !insideOccupied && !outsideOccupied
}

// ForceClose cancels every timer and closes the barrier. It does no safety
// check of its own; callers validate with CanForceClose, or use
// TryForceClose.
func (m *Machine) ForceClose() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forceCloseLocked()
}

// TryForceClose checks CanForceClose and, if it holds, closes the barrier,
// all under one lock acquisition. Returns whether the close was accepted.
func (m *Machine) TryForceClose(insideOccupied, outsideOccupied bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.canForceCloseLocked(insideOccupied, outsideOccupied) {
		m.log.Printf("manual: close refused")
		return false, nil
	}
	return true, m.forceCloseLocked()
}

func (m *Machine) forceCloseLocked() error {
	m.log.Printf("manual: close requested")
	m.cancelAllLocked()
	err := m.closeLocked()
	m.pending = TransitionNone
	m.counts.ManualCloses++
	m.emitLocked(EventManualClose, "")
	m.sequence = ""
	m.logStateLocked()
	return err
}

// ForceOpen cancels every timer, opens the barrier, clears any pending
// sequence and arms the manual auto-close timer. It is valid from any state.
func (m *Machine) ForceOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Printf("manual: open requested")
	m.cancelAllLocked()
	m.pending = TransitionNone
	m.sequence = m.cfg.NewID()
	if err := m.openLocked(); err != nil {
		m.sequence = ""
		m.logStateLocked()
		return err
	}
	m.armLocked(&m.manualTimer, m.cfg.ManualCloseTimeout, m.manualCloseTimeoutLocked)
	m.counts.ManualOpens++
	m.emitLocked(EventManualOpen, "")
	m.logStateLocked()
	return nil
}

// Snapshot returns a consistent copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Position:         m.position,
		Pending:          m.pending,
		Count:            m.count,
		SequenceID:       m.sequence,
		Counts:           m.counts,
		EntryTimerArmed:  m.entryTimer.handle != nil,
		ExitTimerArmed:   m.exitTimer.handle != nil,
		ManualTimerArmed: m.manualTimer.handle != nil,
	}
	if m.lastFault != nil {
		f := *m.lastFault
		s.LastFault = &f
	}
	return s
}

// openLocked opens the barrier if it is closed.
func (m *Machine) openLocked() error {
	if m.position == PositionOpen {
		m.log.Printf("barrier: already open")
		return nil
	}
	if err := m.act.Open(); err != nil {
		return m.faultLocked("open", err)
	}
	m.position = PositionOpen
	m.log.Printf("barrier: opened")
	return nil
}

// closeLocked closes the barrier if it is open.
func (m *Machine) closeLocked() error {
	if m.position == PositionClosed {
		m.log.Printf("barrier: already closed")
		return nil
	}
	if err := m.act.Close(); err != nil {
		return m.faultLocked("close", err)
	}
	m.position = PositionClosed
	m.log.Printf("barrier: closed")
	return nil
}

// faultLocked records an actuator failure. The position is not touched.
func (m *Machine) faultLocked(command string, err error) error {
	m.log.Printf("barrier: actuator fault on %s, position stays %s: %v", command, m.position, err)
	m.lastFault = &Fault{
		Time:    m.cfg.Now(),
		Command: command,
		Message: err.Error(),
	}
	m.counts.Faults++
	m.emitLocked(EventActuatorFault, command+": "+err.Error())
	return &FaultError{Command: command, Err: err}
}

// armLocked schedules onFire in slot s, replacing anything already there.
func (m *Machine) armLocked(s *slot, d time.Duration, onFire func() error) {
	m.cancelLocked(s)
	gen := s.gen
	s.handle = m.sched.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if s.gen != gen {
			m.log.Printf("timer: stale %s callback ignored", s.name)
			return
		}
		s.handle = nil
		s.gen++
		if err := onFire(); err != nil {
			m.log.Printf("timer: %s callback: %v", s.name, err)
		}
	})
	m.log.Printf("timer: %s armed for %v", s.name, d)
}

// cancelLocked stops the callback in slot s, if any, and invalidates any
// copy of it that is already in flight.
func (m *Machine) cancelLocked(s *slot) {
	s.gen++
	if s.handle == nil {
		return
	}
	if s.handle.Stop() {
		m.log.Printf("timer: %s cancelled", s.name)
	}
	s.handle = nil
}

func (m *Machine) cancelAllLocked() {
	m.cancelLocked(&m.entryTimer)
	m.cancelLocked(&m.exitTimer)
	m.cancelLocked(&m.manualTimer)
}

func (m *Machine) emitLocked(t EventType, detail string) {
	e := Event{
		Timestamp:  m.cfg.Now(),
		Type:       t,
		SequenceID: m.sequence,
		Position:   m.position,
		Pending:    m.pending,
		Count:      m.count,
		Detail:     detail,
	}
	select {
	case m.events <- e:
	default:
		m.log.Printf("events: buffer full, dropped %s", t)
	}
}

func (m *Machine) logStateLocked() {
	m.log.Printf("state: barrier=%s pending=%s count=%d", m.position, m.pending, m.count)
}
