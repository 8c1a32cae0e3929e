package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Barrier       string       `json:"barrier"`
	Pending       string       `json:"pending"`
	VehicleCount  int          `json:"vehicle_count"`
	SequenceID    string       `json:"sequence_id,omitempty"`
	Timers        TimersJSON   `json:"timers"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	LastFault     *FaultJSON   `json:"last_fault,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// TimersJSON reports which timer slots are armed.
type TimersJSON struct {
	Entry  bool `json:"entry"`
	Exit   bool `json:"exit"`
	Manual bool `json:"manual"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Entries       int `json:"entries"`
	Exits         int `json:"exits"`
	EntryTimeouts int `json:"entry_timeouts"`
	ExitTimeouts  int `json:"exit_timeouts"`
	ManualOpens   int `json:"manual_opens"`
	ManualCloses  int `json:"manual_closes"`
	AutoCloses    int `json:"auto_closes"`
	Faults        int `json:"faults"`
}

// FaultJSON is the JSON representation of the last actuator fault.
type FaultJSON struct {
	Time    string `json:"time"`
	Command string `json:"command"`
	Message string `json:"message"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ThresholdCm      float64 `json:"distance_threshold_cm"`
	Samples          int     `json:"debounce_sample_count"`
	Quorum           int     `json:"debounce_quorum"`
	SampleDelayMs    int64   `json:"inter_sample_delay_ms"`
	PollMs           int64   `json:"sensor_poll_interval_ms"`
	PendingTimeoutMs int64   `json:"pending_timeout_ms"`
	ManualCloseMs    int64   `json:"manual_close_ms"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	b := snap.Barrier
	inner := StatusInner{
		Barrier:      string(b.Position),
		Pending:      string(b.Pending),
		VehicleCount: b.Count,
		SequenceID:   b.SequenceID,
		Timers: TimersJSON{
			Entry:  b.EntryTimerArmed,
			Exit:   b.ExitTimerArmed,
			Manual: b.ManualTimerArmed,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Entries:       b.Counts.Entries,
			Exits:         b.Counts.Exits,
			EntryTimeouts: b.Counts.EntryTimeouts,
			ExitTimeouts:  b.Counts.ExitTimeouts,
			ManualOpens:   b.Counts.ManualOpens,
			ManualCloses:  b.Counts.ManualCloses,
			AutoCloses:    b.Counts.AutoCloses,
			Faults:        b.Counts.Faults,
		},
		Config: ConfigJSON{
			ThresholdCm:      snap.Config.ThresholdCm,
			Samples:          snap.Config.Samples,
			Quorum:           snap.Config.Quorum,
			SampleDelayMs:    snap.Config.SampleDelayMs,
			PollMs:           snap.Config.PollMs,
			PendingTimeoutMs: snap.Config.PendingTimeoutMs,
			ManualCloseMs:    snap.Config.ManualCloseMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if inner.Barrier == "" {
		inner.Barrier = "UNKNOWN"
	}
	if inner.Pending == "" {
		inner.Pending = "UNKNOWN"
	}
	if f := b.LastFault; f != nil {
		inner.LastFault = &FaultJSON{
			Time:    f.Time.UTC().Format(time.RFC3339),
			Command: f.Command,
			Message: f.Message,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatCompact returns the JSON status on a single line, for websocket
// frames.
func FormatCompact(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
