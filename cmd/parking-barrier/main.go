// Command parking-barrier drives a car-park barrier from two ultrasonic
// sensors, counts vehicles and publishes barrier events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/parking-barrier/internal/config"
	"github.com/sweeney/parking-barrier/internal/control"
	"github.com/sweeney/parking-barrier/internal/gpio"
	"github.com/sweeney/parking-barrier/internal/logic"
	"github.com/sweeney/parking-barrier/internal/mqtt"
	"github.com/sweeney/parking-barrier/internal/presence"
	"github.com/sweeney/parking-barrier/internal/servo"
	"github.com/sweeney/parking-barrier/internal/status"
	"github.com/sweeney/parking-barrier/internal/timer"
	"github.com/sweeney/parking-barrier/internal/web"
)

const clientID = "parking-barrier"

type options struct {
	cfg        config.Config
	printState bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("fatal: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags loads the config file and applies the flags that were set
// explicitly on top of it.
func parseFlags(args []string) (options, error) {
	def := config.Default()
	fs := flag.NewFlagSet("parking-barrier", flag.ContinueOnError)

	configPath := fs.String("config", "", "TOML config file (optional)")
	broker := fs.String("broker", def.Broker, "MQTT broker address")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP control address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.Heartbeat(), "Heartbeat interval (0 to disable)")
	threshold := fs.Float64("threshold", def.DistanceThresholdCm, "Occupancy distance threshold in cm")
	pendingTimeout := fs.Duration("pending-timeout", def.PendingTimeout(), "Entry/exit confirmation window")
	manualTimeout := fs.Duration("manual-timeout", def.ManualCloseTimeout(), "Auto-close delay after a manual open")
	printState := fs.Bool("print-state", false, "Print sensor readings and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return options{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.Broker = *broker
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "heartbeat":
			cfg.HeartbeatS = int(heartbeat.Seconds())
		case "threshold":
			cfg.DistanceThresholdCm = *threshold
		case "pending-timeout":
			cfg.PendingTransitionTimeoutS = pendingTimeout.Seconds()
		case "manual-timeout":
			cfg.ManualAutoCloseTimeoutS = manualTimeout.Seconds()
		}
	})

	if err := cfg.Validate(); err != nil {
		return options{}, fmt.Errorf("invalid config: %w", err)
	}
	return options{cfg: cfg, printState: *printState}, nil
}

func run(opts options) error {
	cfg := opts.cfg
	hw := cfg.Hardware

	// Initialize sensors
	insideRanger, err := gpio.NewRealRanger("inside", hw.GPIOChip, hw.InsideTrigPin, hw.InsideEchoPin, cfg.EchoTimeout())
	if err != nil {
		return fmt.Errorf("init inside sensor: %w", err)
	}
	defer insideRanger.Close()

	outsideRanger, err := gpio.NewRealRanger("outside", hw.GPIOChip, hw.OutsideTrigPin, hw.OutsideEchoPin, cfg.EchoTimeout())
	if err != nil {
		return fmt.Errorf("init outside sensor: %w", err)
	}
	defer outsideRanger.Close()

	inside := presence.NewDetector("inside", insideRanger, cfg.Presence())
	outside := presence.NewDetector("outside", outsideRanger, cfg.Presence())

	// Print state mode
	if opts.printState {
		for _, d := range []*presence.Detector{inside, outside} {
			fmt.Printf("%s: occupied=%v distance=%s\n", d.Name(), d.SampleOccupancy(), distanceString(d.Distance()))
		}
		return nil
	}

	// Initialize servo
	actuator, err := servo.NewPCA9685(hw.I2CBus, hw.ServoAddress, hw.ServoChannel)
	if err != nil {
		return fmt.Errorf("init servo: %w", err)
	}
	defer actuator.Release()

	machine := logic.NewMachine(actuator, timer.Real{}, logic.Config{
		PendingTimeout:     cfg.PendingTimeout(),
		ManualCloseTimeout: cfg.ManualCloseTimeout(),
	})

	// Start presence loops
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	startDetector(ctx, &wg, inside, machine.NotifyInsideEdge)
	startDetector(ctx, &wg, outside, machine.NotifyOutsideEdge)
	defer func() {
		cancel()
		wg.Wait()
	}()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(cfg.Broker, clientID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg), machine)
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP control server
	hub := web.NewHub(func() []byte { return status.FormatCompact(tracker.Snapshot()) })
	if cfg.HTTPAddr != "" {
		gateway := control.NewGateway(machine, inside, outside, nil)
		srv := web.New(cfg.HTTPAddr, tracker, gateway, hub)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http control server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: threshold=%vcm debounce=%d/%d pending=%v manual=%v broker=%s heartbeat=%v",
		cfg.DistanceThresholdCm, cfg.DebounceQuorum, cfg.DebounceSampleCount,
		cfg.PendingTimeout(), cfg.ManualCloseTimeout(), cfg.Broker, cfg.Heartbeat())

	var heartbeatC <-chan time.Time
	if cfg.Heartbeat() > 0 {
		ticker := time.NewTicker(cfg.Heartbeat())
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(machine.Events(), publisher, publisher, tracker, hub, time.Now, heartbeatC, sigCh)
}

// startDetector runs d until ctx is cancelled, feeding its rising edges to
// notify.
func startDetector(ctx context.Context, wg *sync.WaitGroup, d *presence.Detector, notify func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Run(ctx, func() {
			if err := notify(); err != nil {
				log.Printf("%s edge: %v", d.Name(), err)
			}
		})
	}()
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		ThresholdCm:      cfg.DistanceThresholdCm,
		Samples:          cfg.DebounceSampleCount,
		Quorum:           cfg.DebounceQuorum,
		SampleDelayMs:    int64(cfg.InterSampleDelayMs),
		PollMs:           int64(cfg.SensorPollIntervalMs),
		PendingTimeoutMs: cfg.PendingTimeout().Milliseconds(),
		ManualCloseMs:    cfg.ManualCloseTimeout().Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat().Milliseconds(),
		Broker:           cfg.Broker,
		HTTPAddr:         cfg.HTTPAddr,
	}
}

// broadcaster pushes status frames to live clients.
type broadcaster interface {
	Broadcast(msg []byte)
}

func runLoop(events <-chan logic.Event, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, live broadcaster, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() {
		if tracker != nil && mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	handle := func(event logic.Event) {
		log.Printf("event: %s (barrier=%s pending=%s count=%d)", event.Type, event.Position, event.Pending, event.Count)
		if err := publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
		if tracker != nil && live != nil {
			refresh()
			live.Broadcast(status.FormatCompact(tracker.Snapshot()))
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)

			// Publish whatever the machine already emitted before SHUTDOWN.
			for drained := false; !drained; {
				select {
				case event := <-events:
					handle(event)
				default:
					drained = true
				}
			}

			name := signalName(s)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     mqtt.EventShutdown,
				Reason:    name,
				Retained:  true,
			}
			if tracker != nil {
				refresh()
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), mqtt.EventShutdown, name)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case event := <-events:
			handle(event)

		case <-heartbeat:
			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     mqtt.EventHeartbeat,
			}
			if tracker != nil {
				refresh()
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v barrier=%s count=%d entries=%d exits=%d faults=%d",
					snap.Uptime().Truncate(time.Second), snap.Barrier.Position, snap.Barrier.Count,
					snap.Barrier.Counts.Entries, snap.Barrier.Counts.Exits, snap.Barrier.Counts.Faults)
				hbEvent.RawPayload = status.FormatStatusEvent(snap, mqtt.EventHeartbeat, "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func distanceString(cm float64) string {
	if math.IsInf(cm, 1) {
		return "no echo"
	}
	return fmt.Sprintf("%.1fcm", cm)
}
