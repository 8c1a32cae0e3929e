package main

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/parking-barrier/internal/config"
	"github.com/sweeney/parking-barrier/internal/logic"
	"github.com/sweeney/parking-barrier/internal/mqtt"
	"github.com/sweeney/parking-barrier/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "CarPark")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "CarPark",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "ethernet")
	t.Setenv(envNetworkIP, "")
	t.Setenv(envNetworkGateway, "")
	t.Setenv(envNetworkWifiStatus, "")
	t.Setenv(envNetworkWifiSSID, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Type != "ethernet" {
		t.Errorf("Type: got %q, want ethernet", info.Type)
	}
	if info.SSID != "" {
		t.Errorf("SSID: got %q, want empty", info.SSID)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.cfg != config.Default() {
		t.Errorf("expected defaults, got %+v", opts.cfg)
	}
	if opts.printState {
		t.Error("print-state should default to false")
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	opts, err := parseFlags([]string{
		"--broker", "tcp://10.0.0.2:1883",
		"--http", "",
		"--heartbeat", "1m",
		"--threshold", "12.5",
		"--pending-timeout", "4s",
		"--manual-timeout", "1500ms",
		"--print-state",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := opts.cfg
	if cfg.Broker != "tcp://10.0.0.2:1883" {
		t.Errorf("Broker: got %q", cfg.Broker)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr: got %q, want empty", cfg.HTTPAddr)
	}
	if cfg.Heartbeat() != time.Minute {
		t.Errorf("Heartbeat: got %v, want 1m", cfg.Heartbeat())
	}
	if cfg.DistanceThresholdCm != 12.5 {
		t.Errorf("DistanceThresholdCm: got %v, want 12.5", cfg.DistanceThresholdCm)
	}
	if cfg.PendingTimeout() != 4*time.Second {
		t.Errorf("PendingTimeout: got %v, want 4s", cfg.PendingTimeout())
	}
	if cfg.ManualCloseTimeout() != 1500*time.Millisecond {
		t.Errorf("ManualCloseTimeout: got %v, want 1.5s", cfg.ManualCloseTimeout())
	}
	if !opts.printState {
		t.Error("expected printState=true")
	}
}

func TestParseFlagsFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barrier.toml")
	data := `
broker = "tcp://file:1883"
distance_threshold_cm = 25.0

[hardware]
servo_channel = 3
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := parseFlags([]string{"--config", path, "--threshold", "8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.cfg.Broker != "tcp://file:1883" {
		t.Errorf("Broker should come from file, got %q", opts.cfg.Broker)
	}
	if opts.cfg.DistanceThresholdCm != 8 {
		t.Errorf("explicit flag should win over file, got %v", opts.cfg.DistanceThresholdCm)
	}
	if opts.cfg.Hardware.ServoChannel != 3 {
		t.Errorf("ServoChannel: got %d, want 3", opts.cfg.Hardware.ServoChannel)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid threshold", []string{"--threshold", "0"}},
		{"invalid pending timeout", []string{"--pending-timeout", "0s"}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "missing.toml")}},
		{"unknown flag", []string{"--pin-ch", "27"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDistanceString(t *testing.T) {
	if got := distanceString(math.Inf(1)); got != "no echo" {
		t.Errorf("got %q, want no echo", got)
	}
	if got := distanceString(7.25); got != "7.2cm" && got != "7.3cm" {
		t.Errorf("got %q", got)
	}
}

// fakeSource is a fixed machine snapshot for the tracker.
type fakeSource struct {
	mu   sync.Mutex
	snap logic.Snapshot
}

func (f *fakeSource) Snapshot() logic.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	frames [][]byte
}

func (b *fakeBroadcaster) Broadcast(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, msg)
}

var testNow = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type loop struct {
	events    chan logic.Event
	heartbeat chan time.Time
	sig       chan os.Signal
	done      chan error
	pub       *mqtt.FakePublisher
	live      *fakeBroadcaster
	tracker   *status.Tracker
	source    *fakeSource
}

func startLoop(t *testing.T, pub *mqtt.FakePublisher) *loop {
	t.Helper()
	l := &loop{
		events:    make(chan logic.Event),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal),
		done:      make(chan error, 1),
		pub:       pub,
		live:      &fakeBroadcaster{},
		source:    &fakeSource{snap: logic.Snapshot{Position: logic.PositionClosed, Pending: logic.TransitionNone}},
	}
	l.tracker = status.NewTracker(testNow.Add(-time.Hour), status.Config{Broker: "tcp://test:1883"}, l.source)
	go func() {
		l.done <- runLoop(l.events, pub, pub, l.tracker, l.live, fixedClock, l.heartbeat, l.sig)
	}()
	return l
}

func (l *loop) stop(t *testing.T, s os.Signal) {
	t.Helper()
	l.sig <- s
	select {
	case err := <-l.done:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
	}
}

func TestRunLoopPublishesEvents(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l := startLoop(t, pub)

	l.events <- logic.Event{Timestamp: testNow, Type: logic.EventEntryStarted, Position: logic.PositionOpen, Pending: logic.EntryPending}
	l.events <- logic.Event{Timestamp: testNow, Type: logic.EventEntryCompleted, Position: logic.PositionClosed, Pending: logic.TransitionNone, Count: 1}
	l.stop(t, syscall.SIGTERM)

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.Events))
	}
	if pub.Events[0].Type != logic.EventEntryStarted || pub.Events[1].Type != logic.EventEntryCompleted {
		t.Errorf("unexpected event order: %s, %s", pub.Events[0].Type, pub.Events[1].Type)
	}
	if len(l.live.frames) != 2 {
		t.Errorf("expected 2 websocket frames, got %d", len(l.live.frames))
	}
}

func TestRunLoopBroadcastsTrackerState(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	l := startLoop(t, pub)

	l.source.mu.Lock()
	l.source.snap = logic.Snapshot{Position: logic.PositionOpen, Pending: logic.TransitionNone, Count: 2}
	l.source.mu.Unlock()
	l.events <- logic.Event{Timestamp: testNow, Type: logic.EventManualOpen, Position: logic.PositionOpen}
	l.stop(t, syscall.SIGTERM)

	var sj status.StatusJSON
	if err := json.Unmarshal(l.live.frames[0], &sj); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	if sj.Status.Barrier != "OPEN" || sj.Status.VehicleCount != 2 {
		t.Errorf("frame: got barrier=%s count=%d", sj.Status.Barrier, sj.Status.VehicleCount)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("frame should report MQTT connected")
	}
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	l := startLoop(t, pub)

	l.events <- logic.Event{Timestamp: testNow, Type: logic.EventExitStarted}
	l.events <- logic.Event{Timestamp: testNow, Type: logic.EventExitTimeout}
	l.stop(t, syscall.SIGINT)

	if len(pub.SystemEvents) != 1 {
		t.Errorf("loop should survive publish errors and still shut down cleanly")
	}
	if len(l.live.frames) != 2 {
		t.Errorf("websocket frames should not depend on MQTT, got %d", len(l.live.frames))
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			pub := mqtt.NewFakePublisher()
			l := startLoop(t, pub)
			l.stop(t, tt.sig)

			if len(pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
			}
			ev := pub.SystemEvents[0]
			if ev.Event != mqtt.EventShutdown {
				t.Errorf("Event: got %s, want SHUTDOWN", ev.Event)
			}
			if ev.Reason != tt.want {
				t.Errorf("Reason: got %s, want %s", ev.Reason, tt.want)
			}
			if !ev.Retained {
				t.Error("SHUTDOWN should be retained")
			}

			var sj status.StatusJSON
			if err := json.Unmarshal(pub.SystemPayloads[0], &sj); err != nil {
				t.Fatalf("invalid payload: %v", err)
			}
			if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != tt.want {
				t.Errorf("payload: event=%q reason=%q", sj.Status.Event, sj.Status.Reason)
			}
		})
	}
}

func TestRunLoopDrainsEventsBeforeShutdown(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	events := make(chan logic.Event, 4)
	events <- logic.Event{Type: logic.EventManualClose}
	events <- logic.Event{Type: logic.EventAutoClose}
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	if err := runLoop(events, pub, pub, nil, nil, fixedClock, nil, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(pub.Events))
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != mqtt.EventShutdown {
		t.Errorf("expected SHUTDOWN last, got %+v", pub.SystemEvents)
	}
	if pub.SystemEvents[0].RawPayload != nil {
		t.Error("without a tracker SHUTDOWN uses the simple payload")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l := startLoop(t, pub)

	l.source.mu.Lock()
	l.source.snap.Counts = logic.EventCounts{Entries: 4, Exits: 1}
	l.source.snap.Count = 3
	l.source.mu.Unlock()

	l.heartbeat <- testNow
	l.stop(t, syscall.SIGTERM)

	if len(pub.SystemEvents) != 2 {
		t.Fatalf("expected HEARTBEAT and SHUTDOWN, got %d", len(pub.SystemEvents))
	}
	hb := pub.SystemEvents[0]
	if hb.Event != mqtt.EventHeartbeat {
		t.Errorf("Event: got %s, want HEARTBEAT", hb.Event)
	}
	if hb.Retained {
		t.Error("HEARTBEAT should not be retained")
	}
	if !hb.Timestamp.Equal(testNow) {
		t.Errorf("Timestamp: got %v, want %v", hb.Timestamp, testNow)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" {
		t.Errorf("payload event: got %q", sj.Status.Event)
	}
	if sj.Status.VehicleCount != 3 || sj.Status.Counts.Entries != 4 {
		t.Errorf("payload counts: vehicles=%d entries=%d", sj.Status.VehicleCount, sj.Status.Counts.Entries)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.50")

	pub := mqtt.NewFakePublisher()
	l := startLoop(t, pub)
	l.heartbeat <- testNow
	l.stop(t, syscall.SIGTERM)

	if !strings.Contains(string(pub.SystemPayloads[0]), `"ip":"192.168.1.50"`) {
		t.Errorf("heartbeat payload missing network info: %s", pub.SystemPayloads[0])
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	sc := statusConfig(cfg)
	if sc.PendingTimeoutMs != 3000 || sc.ManualCloseMs != 5000 {
		t.Errorf("timeouts: got %d/%d", sc.PendingTimeoutMs, sc.ManualCloseMs)
	}
	if sc.HeartbeatMs != 900000 {
		t.Errorf("HeartbeatMs: got %d", sc.HeartbeatMs)
	}
	if sc.Quorum != cfg.DebounceQuorum || sc.Samples != cfg.DebounceSampleCount {
		t.Errorf("debounce: got %d/%d", sc.Quorum, sc.Samples)
	}
}
