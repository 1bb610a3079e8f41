package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without contacting any display.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Control API:")
	fmt.Printf("  Path: %s\n", cfg.API.Path)
	fmt.Printf("  Timeout: %s\n", cfg.API.Timeout)
	if cfg.API.PSK != "" {
		fmt.Printf("  Pre-shared key: (configured)\n")
	} else {
		fmt.Printf("  Pre-shared key: (none)\n")
	}
	fmt.Println()
	fmt.Println("Wake-on-LAN:")
	fmt.Printf("  Broadcast: %s:%d\n", cfg.Wake.BroadcastIP, cfg.Wake.Port)
	fmt.Printf("  Settle wait: %s\n", cfg.Wake.SettleWait)
	fmt.Println()
	fmt.Println("Reachability probe:")
	fmt.Printf("  Status wait: %s\n", cfg.Probe.StatusWait)
	fmt.Printf("  Confirm wait: %s\n", cfg.Probe.ConfirmWait)
	fmt.Println()
	fmt.Printf("Displays (%d):\n", len(cfg.Devices))
	for _, d := range cfg.Devices {
		fmt.Printf("  %s  %s\n", d.Address, d.MACAddress)
	}
	if len(cfg.Devices) == 0 {
		fmt.Println("  (none)")
	}
	fmt.Println()
	fmt.Printf("Telegram: %v\n", cfg.Telegram != nil)
	if cfg.Telegram != nil {
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
