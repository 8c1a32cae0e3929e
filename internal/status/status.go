// Package status provides a thread-safe status tracker for the barrier
// daemon. It is read by HTTP handlers, the websocket hub and MQTT lifecycle
// events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/parking-barrier/internal/logic"
)

// Source supplies the live barrier state.
type Source interface {
	Snapshot() logic.Snapshot
}

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ThresholdCm      float64
	Samples          int
	Quorum           int
	SampleDelayMs    int64
	PollMs           int64
	PendingTimeoutMs int64
	ManualCloseMs    int64
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Barrier       logic.Snapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds daemon state that the barrier machine does not own, behind
// an RWMutex, and merges it with the machine's snapshot on read.
type Tracker struct {
	source Source

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. source may be nil, in which case the
// barrier fields read as the initial machine state.
func NewTracker(startTime time.Time, cfg Config, source Source) *Tracker {
	return &Tracker{
		source: source,
		snap: Snapshot{
			Barrier: logic.Snapshot{
				Position: logic.PositionClosed,
				Pending:  logic.TransitionNone,
			},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if t.source != nil {
		s.Barrier = t.source.Snapshot()
	}
	s.Now = time.Now()
	return s
}
