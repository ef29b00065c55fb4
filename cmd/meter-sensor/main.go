// Command meter-sensor counts LED flashes on a utility meter and broadcasts
// the running total over BLE. The receive subcommand decodes those
// broadcasts on another host and records energy readings.
//
// Usage:
//
//	meter-sensor run                  # count flashes and advertise
//	meter-sensor receive              # scan for sensors and record readings
//	meter-sensor print-state          # print the sense pin level and exit
//	meter-sensor decode 57000000...   # decode a manufacturer data payload
//	meter-sensor carbon --span 6h     # print the regional carbon intensity forecast
//	meter-sensor version
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sweeney/meter-sensor/internal/config"
	"github.com/sweeney/meter-sensor/internal/logging"
)

// Set at build time via -ldflags "-X main.version=1.2.3".
var (
	version = "dev"
	commit  = "none"
)

const defaultConfigPath = "/etc/meter-sensor/config.yaml"

// app carries state shared by the subcommands.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

// load reads and validates the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", a.configPath, err)
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:               "meter-sensor",
		Short:             "Count meter LED flashes and broadcast them over BLE",
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "config file (missing file uses defaults)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newReceiveCmd(a),
		newPrintStateCmd(a),
		newDecodeCmd(a),
		newCarbonCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meter-sensor %s (%s)\n", version, commit)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
