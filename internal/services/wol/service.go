// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
	"github.com/tritondm/Bravia-CTRL/internal/models"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WakeConfig, macAddress string) (*models.WakeResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(addr string, mac net.HardwareAddr) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet for mac to the UDP address addr.
func (c *DefaultClient) Wake(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(addr, mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		logger:    logger,
	}
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, wolClient Client) *Impl {
	return &Impl{
		wolClient: wolClient,
		logger:    logger,
	}
}

// Wake broadcasts a magic packet for macAddress. It does not wait for
// the target to come up.
func (s *Impl) Wake(ctx context.Context, cfg models.WakeConfig, macAddress string) (*models.WakeResult, error) {
	result := &models.WakeResult{}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	// Parse MAC address
	mac, err := net.ParseMAC(macAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", macAddress, err)
		return result, nil
	}

	// Parse broadcast IP
	ip := net.ParseIP(cfg.BroadcastIP)
	if ip == nil {
		result.Error = fmt.Errorf("invalid broadcast IP: %s", cfg.BroadcastIP)
		return result, nil
	}

	port := cfg.Port
	if port == 0 {
		port = 9
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))

	s.logger.Info().
		Str("mac", macAddress).
		Str("broadcast", addr).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(addr, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.PacketSent = true
	s.logger.Debug().Str("mac", macAddress).Msg("WOL packet sent successfully")

	return result, nil
}
