package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/meter-sensor/internal/advert"
	"github.com/sweeney/meter-sensor/internal/carbon"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/logic"
)

func newPrintStateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the current sense pin level and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := gpio.ReadSense(a.cfg.GPIO.Chip, a.cfg.GPIO.Sense)
			if err != nil {
				return fmt.Errorf("read gpio: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sense (%s line %d): %s\n", a.cfg.GPIO.Chip, a.cfg.GPIO.Sense, levelString(v))
			return nil
		},
	}
}

func levelString(v int) string {
	if v == 0 {
		return "LOW"
	}
	return "HIGH"
}

func newDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a manufacturer data payload",
		Long: `Decode the 9-byte manufacturer data broadcast by the sensor.

Spaces and colons are ignored, and a leading company identifier as printed
by most scanners (90 05) is stripped:

  meter-sensor decode "57 00 00 00 2A 00 00 00 64"
  meter-sensor decode 9005570000002a00000064`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := advert.ParseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			total, kw := logic.Energy(r.Count, r.Rate, a.cfg.ImpPerKWh)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "battery: %d%%\n", r.Battery)
			fmt.Fprintf(out, "count:   %d\n", r.Count)
			fmt.Fprintf(out, "rate:    %d/h\n", r.Rate)
			fmt.Fprintf(out, "energy:  %.3f kWh\n", total)
			fmt.Fprintf(out, "power:   %.3f kW\n", kw)
			return nil
		},
	}
}

func newCarbonCmd(a *app) *cobra.Command {
	var (
		postcode string
		from     string
		span     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "carbon",
		Short: "Print the regional carbon intensity forecast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("postcode") {
				postcode = a.cfg.Receiver.Postcode
			}
			if postcode == "" {
				return errors.New("no postcode: set receiver.postcode or pass --postcode")
			}
			if !carbon.ValidOutwardCode(postcode) {
				return fmt.Errorf("invalid postcode %q: use the outward part, e.g. RH13", postcode)
			}

			start := carbon.Window(time.Now())
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				start = carbon.Window(t)
			}

			c := carbon.New(a.cfg.Receiver.CarbonURL, postcode, a.log)
			windows, err := c.Fetch(cmd.Context(), start, start.Add(span))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range windows {
				fmt.Fprintf(out, "%s  %4d gCO2/kWh  %s\n", w.From.Format("2006-01-02 15:04"), w.Forecast, w.Index)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&postcode, "postcode", "", "outward postcode (default receiver.postcode)")
	f.StringVar(&from, "from", "", "start time, RFC 3339 (default now)")
	f.DurationVar(&span, "span", 24*time.Hour, "length of the forecast to print")
	return cmd
}
