package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sweeney/meter-sensor/internal/advert"
	"github.com/sweeney/meter-sensor/internal/battery"
	"github.com/sweeney/meter-sensor/internal/config"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/logic"
	"github.com/sweeney/meter-sensor/internal/mqtt"
	"github.com/sweeney/meter-sensor/internal/sensor"
	"github.com/sweeney/meter-sensor/internal/status"
	"github.com/sweeney/meter-sensor/internal/web"
)

// statusRefresh is how often the status page and heartbeat check run.
const statusRefresh = time.Second

func newRunCmd(a *app) *cobra.Command {
	var (
		broker    string
		httpAddr  string
		heartbeat time.Duration
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Count flashes on the sense pin and advertise readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("broker") {
				a.cfg.MQTT.Broker = broker
			}
			if f.Changed("http") {
				a.cfg.HTTP = httpAddr
			}
			if f.Changed("heartbeat") {
				a.cfg.Heartbeat = heartbeat
			}
			if f.Changed("debounce") {
				a.cfg.GPIO.Debounce = debounce
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return run(a.cfg, a.log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&broker, "broker", "", "MQTT broker address (empty to disable)")
	f.StringVar(&httpAddr, "http", "", "HTTP status address (empty to disable)")
	f.DurationVar(&heartbeat, "heartbeat", 0, "heartbeat interval (0 to disable)")
	f.DurationVar(&debounce, "debounce", 0, "minimum spacing between counted flashes")
	return cmd
}

func run(cfg *config.Config, log zerolog.Logger) error {
	start := time.Now()
	bootID := uuid.NewString()
	device, err := os.Hostname()
	if err != nil {
		device = cfg.MQTT.ClientID
	}

	board, err := gpio.NewRealBoard(cfg.GPIO.Chip, cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	adv, err := advert.NewHCIAdvertiser(cfg.Advertising.HCIDevice, cfg.Advertising.Name)
	if err != nil {
		return fmt.Errorf("init advertiser: %w", err)
	}
	defer adv.Close()

	handler := sensor.New(board, adv, batteryReader(battery.DefaultSysfsRoot, cfg.Battery, log), sensor.Config{
		Advert:   cfg.AdvertConfig(),
		Pulse:    cfg.GPIO.Pulse,
		Debounce: cfg.GPIO.Debounce,
		Device:   device,
		BootID:   bootID,
	}, start, log)
	readings := make(chan logic.Reading, 64)
	handler.SetSink(readings)

	d := &daemon{
		handler:   handler,
		readings:  readings,
		heartbeat: cfg.Heartbeat,
		log:       log,
		now:       time.Now,
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
			ImpPerKWh:  cfg.ImpPerKWh,
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		d.publisher = pub
		d.mqttStatus = pub
	} else {
		log.Info().Msg("mqtt disabled")
	}

	// Tracker exists before STARTUP so the event carries a full snapshot.
	d.tracker = status.NewTracker(start, bootID, statusConfig(cfg))
	if net := readNetworkInfo(os.Getenv); net != nil {
		d.tracker.SetNetwork(net)
	}

	if err := handler.Init(); err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	d.refresh()
	d.publishSystem(d.now(), "STARTUP", "", true)

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, d.tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP).Msg("http status server listening")
	}

	log.Info().
		Str("boot_id", bootID).
		Str("chip", cfg.GPIO.Chip).
		Int("sense", cfg.GPIO.Sense).
		Dur("debounce", cfg.GPIO.Debounce).
		Dur("interval", cfg.Advertising.Interval).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(ticker.C, sigCh)
}

// batteryReader picks the configured supply, else the first one found under
// root, else a fixed level for mains-powered hosts.
func batteryReader(root string, cfg config.BatteryConfig, log zerolog.Logger) battery.Reader {
	supply := cfg.Supply
	if supply == "" {
		found, err := battery.Detect(root)
		if err != nil {
			log.Info().Err(err).Uint8("level", cfg.FixedLevel).Msg("no battery found, advertising fixed level")
			return battery.FixedReader(cfg.FixedLevel)
		}
		supply = found
	}
	log.Info().Str("supply", supply).Msg("reading battery level")
	return battery.NewSysfsReader(root, supply)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Chip:             cfg.GPIO.Chip,
		PinSense:         cfg.GPIO.Sense,
		PinGround:        cfg.GPIO.Ground,
		PinIndicator:     cfg.GPIO.Indicator,
		DebounceMs:       cfg.GPIO.Debounce.Milliseconds(),
		PulseMs:          cfg.GPIO.Pulse.Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		AdvertIntervalMs: cfg.Advertising.Interval.Milliseconds(),
		ManufacturerID:   cfg.Advertising.ManufacturerID,
		Connectable:      cfg.Advertising.Connectable,
		ImpPerKWh:        cfg.ImpPerKWh,
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP,
	}
}

// daemon forwards readings from the edge handler to MQTT and keeps the
// status tracker current. publisher, mqttStatus and tracker may be nil.
type daemon struct {
	handler    *sensor.Handler
	readings   <-chan logic.Reading
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// backlog is implemented by publishers that queue while offline.
type backlog interface {
	Buffered() int
	Dropped() int
}

func (d *daemon) runLoop(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.log.Info().Stringer("signal", s).Msg("shutting down")
			d.drain()
			d.refresh()
			d.publishSystem(d.now(), "SHUTDOWN", signalName(s), true)
			return nil

		case r := <-d.readings:
			d.publish(r)
			d.refresh()

		case <-tick:
			t := d.now()
			d.refresh()

			if hb := d.handler.CheckHeartbeat(t, d.heartbeat); hb != nil {
				d.log.Info().
					Dur("uptime", hb.Uptime).
					Uint32("count", hb.Counter.Count).
					Uint32("rate", hb.Counter.Rate).
					Int("rejected", hb.Counter.Rejected).
					Msg("heartbeat")
				if d.tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(os.Getenv); net != nil {
						d.tracker.SetNetwork(net)
					}
				}
				d.publishSystem(hb.Timestamp, "HEARTBEAT", "", false)
			}
		}
	}
}

// drain publishes readings already queued by the handler.
func (d *daemon) drain() {
	for {
		select {
		case r := <-d.readings:
			d.publish(r)
		default:
			return
		}
	}
}

func (d *daemon) publish(r logic.Reading) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(r); err != nil {
		// Don't crash on publish failure
		d.log.Warn().Err(err).Uint32("count", r.Count).Msg("publish error")
	}
}

// refresh copies handler and MQTT state into the tracker.
func (d *daemon) refresh() {
	if d.tracker == nil {
		return
	}
	d.tracker.Update(d.handler.Snapshot())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if b, ok := d.publisher.(backlog); ok {
		d.tracker.SetMQTTBuffered(b.Buffered())
		d.tracker.SetMQTTDropped(b.Dropped())
	}
}

// publishSystem sends a lifecycle event carrying the full status.
func (d *daemon) publishSystem(t time.Time, event, reason string, retained bool) {
	if d.publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if d.tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	d.log.Info().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
