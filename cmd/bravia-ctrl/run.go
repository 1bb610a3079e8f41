package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tritondm/Bravia-CTRL/internal/config"
	"github.com/tritondm/Bravia-CTRL/internal/models"
	"github.com/tritondm/Bravia-CTRL/internal/services/fleet"
)

func runFleet(cmd *cobra.Command, args []string) error {
	ops, err := config.ParseOperations(power, enableWOL, getPower)
	if err != nil {
		return err
	}

	if ops.Empty() {
		log.Debug().Msg("no operation selected")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Device failures are reported on stdout and never change the exit status.
	fleetSvc := fleet.New(log.Logger, *cfg, os.Stdout)
	fleetSvc.Run(ctx, ops)

	return nil
}

func loadConfig() (*models.FleetConfig, error) {
	parser := config.NewParser()

	var (
		cfg *models.FleetConfig
		err error
	)
	if configFile != "" {
		cfg, err = parser.LoadFile(configFile)
	} else {
		cfg, err = parser.LoadDefault()
	}
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	log.Debug().
		Str("config", parser.ConfigFileUsed()).
		Int("devices", len(cfg.Devices)).
		Dur("timeout", cfg.API.Timeout).
		Msg("configuration loaded")

	return cfg, nil
}
