package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool

	// Operation flags.
	power     string
	enableWOL bool
	getPower  bool
)

var rootCmd = &cobra.Command{
	Use:   "bravia-ctrl",
	Short: "Scheduled power control for a fleet of Bravia displays",
	Long: `bravia-ctrl powers a fixed roster of Sony Bravia displays on and off:
  - --Power on    wake displays with Wake-on-LAN and switch them on
  - --Power off   switch displays off
  - --enableWol   enable Wake-on-LAN on every display
  - --getPower    report the power state of every display

Flags combine. Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Args:          cobra.NoArgs,
	RunE:          runFleet,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: search for bravia-ctrl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.Flags().StringVar(&power, "Power", "", "power the configured displays on or off (on|off)")
	rootCmd.Flags().BoolVar(&enableWOL, "enableWol", false, "enable WOL on the configured displays")
	rootCmd.Flags().BoolVar(&getPower, "getPower", false, "get power status of all displays")

	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("bravia-ctrl failed")
	}
	return err
}
