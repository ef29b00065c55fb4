package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sweeney/meter-sensor/internal/carbon"
	"github.com/sweeney/meter-sensor/internal/config"
	"github.com/sweeney/meter-sensor/internal/mqtt"
	"github.com/sweeney/meter-sensor/internal/receiver"
	"github.com/sweeney/meter-sensor/internal/store"
)

func newReceiveCmd(a *app) *cobra.Command {
	var devices []string

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Scan for meter sensors and record their readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("device") {
				a.cfg.Receiver.Devices = devices
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sc, err := receiver.NewBluetoothScanner()
			if err != nil {
				return err
			}
			return receive(ctx, a.cfg, sc, a.log)
		},
	}
	cmd.Flags().StringSliceVar(&devices, "device", nil, "BLE address to accept (repeatable, default any)")
	return cmd
}

// receive records readings from sc until ctx is done.
func receive(ctx context.Context, cfg *config.Config, sc receiver.Scanner, log zerolog.Logger) error {
	var writers []store.Writer

	if ic := cfg.Receiver.Influx; ic.URL != "" {
		w := store.NewInfluxWriter(store.InfluxConfig{
			URL:    ic.URL,
			Token:  ic.Token,
			Org:    ic.Org,
			Bucket: ic.Bucket,
		})
		if err := w.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("url", ic.URL).Msg("influxdb not reachable, writes will be retried per reading")
		}
		writers = append(writers, w)
	}
	if cfg.Receiver.PostURL != "" {
		writers = append(writers, store.NewFormPoster(cfg.Receiver.PostURL))
	}
	defer func() {
		for _, w := range writers {
			if err := w.Close(); err != nil {
				log.Warn().Err(err).Msg("close writer")
			}
		}
	}()

	rcv := receiver.New(receiver.Config{
		Devices:        cfg.Receiver.Devices,
		ManufacturerID: cfg.Advertising.ManufacturerID,
		DedupTTL:       cfg.Receiver.DedupTTL,
		ImpPerKWh:      cfg.ImpPerKWh,
	}, log, writers...)

	if pc := cfg.Receiver.Postcode; pc != "" {
		rcv.SetIntensitySource(carbon.New(cfg.Receiver.CarbonURL, pc, log))
		log.Info().Str("postcode", pc).Msg("carbon intensity enabled")
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID + "-receiver",
			BufferSize: cfg.MQTT.BufferSize,
			ImpPerKWh:  cfg.ImpPerKWh,
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		rcv.SetPublisher(pub)
	}

	err := rcv.Run(ctx, sc)

	st := rcv.Stats()
	log.Info().
		Int("sightings", st.Sightings).
		Int("recorded", st.Recorded).
		Int("duplicates", st.Duplicates).
		Int("ignored", st.Ignored).
		Int("invalid", st.Invalid).
		Int("no_carbon", st.NoCarbon).
		Msg("receiver stopped")
	return err
}
