// Package fleet runs the power flows over the display roster.
package fleet

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/tritondm/Bravia-CTRL/internal/models"
	"github.com/tritondm/Bravia-CTRL/internal/services/bravia"
	"github.com/tritondm/Bravia-CTRL/internal/services/probe"
	"github.com/tritondm/Bravia-CTRL/internal/services/telegram"
	"github.com/tritondm/Bravia-CTRL/internal/services/wol"
)

// Service defines the interface for the fleet controller.
type Service interface {
	Run(ctx context.Context, ops models.Operations) *models.RunSummary
	PowerOn(ctx context.Context) []models.DeviceOutcome
	PowerOff(ctx context.Context) []models.DeviceOutcome
	EnableWOL(ctx context.Context) []models.DeviceOutcome
	GetPower(ctx context.Context) []models.DeviceOutcome
}

// Impl implements the fleet Service interface. Devices are handled one
// at a time, in roster order.
type Impl struct {
	cfg         models.FleetConfig
	braviaSvc   bravia.Service
	wolSvc      wol.Service
	probeSvc    probe.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
	out         io.Writer
}

// New creates a new fleet controller reporting to out.
func New(logger zerolog.Logger, cfg models.FleetConfig, out io.Writer) *Impl {
	return &Impl{
		cfg:         cfg,
		braviaSvc:   bravia.New(logger, cfg.API),
		wolSvc:      wol.New(logger),
		probeSvc:    probe.New(logger),
		telegramSvc: telegram.New(logger),
		logger:      logger,
		out:         out,
	}
}

// NewWithServices creates a new fleet controller with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.FleetConfig,
	out io.Writer,
	braviaSvc bravia.Service,
	wolSvc wol.Service,
	probeSvc probe.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		cfg:         cfg,
		braviaSvc:   braviaSvc,
		wolSvc:      wolSvc,
		probeSvc:    probeSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
		out:         out,
	}
}

// Run executes the selected flows in order: power, enable WOL, get power.
// Device failures are reported but never returned.
func (s *Impl) Run(ctx context.Context, ops models.Operations) *models.RunSummary {
	summary := &models.RunSummary{StartTime: time.Now()}

	if ops.Empty() {
		s.logger.Debug().Msg("no operation selected")
		return summary
	}

	s.logger.Info().
		Int("devices", len(s.cfg.Devices)).
		Str("power", ops.Power).
		Bool("enable_wol", ops.EnableWOL).
		Bool("get_power", ops.GetPower).
		Msg("starting run")

	switch ops.Power {
	case models.PowerOn:
		summary.Outcomes = append(summary.Outcomes, s.PowerOn(ctx)...)
	case models.PowerOff:
		summary.Outcomes = append(summary.Outcomes, s.PowerOff(ctx)...)
	}

	if ops.EnableWOL {
		summary.Outcomes = append(summary.Outcomes, s.EnableWOL(ctx)...)
	}

	if ops.GetPower {
		summary.Outcomes = append(summary.Outcomes, s.GetPower(ctx)...)
	}

	summary.Duration = time.Since(summary.StartTime)

	s.logger.Info().
		Int("outcomes", len(summary.Outcomes)).
		Int("failed", summary.Failed()).
		Dur("duration", summary.Duration).
		Msg("run completed")

	if s.cfg.Telegram != nil {
		s.sendNotification(ctx, ops, summary)
	}

	return summary
}

// PowerOn wakes every display that is not already on and switches it on
// once it answers the reachability probe.
func (s *Impl) PowerOn(ctx context.Context) []models.DeviceOutcome {
	var outcomes []models.DeviceOutcome

	for _, d := range s.cfg.Devices {
		if ctx.Err() != nil {
			s.logger.Warn().Str("address", d.Address).Msg("run cancelled, skipping remaining devices")
			break
		}
		outcomes = append(outcomes, s.powerOnDevice(ctx, d))
	}

	return outcomes
}

func (s *Impl) powerOnDevice(ctx context.Context, d models.Device) models.DeviceOutcome {
	outcome := models.DeviceOutcome{Operation: models.OpPowerOn, Address: d.Address}

	if s.powerStatus(ctx, d).Value {
		fmt.Fprintln(s.out, "The monitor is on")
		outcome.Success = true
		outcome.Detail = "already on"
		return outcome
	}

	fmt.Fprintf(s.out, "Powering on monitor with IP %s\n", d.Address)

	wake, err := s.wolSvc.Wake(ctx, s.cfg.Wake, d.MACAddress)
	if err == nil && wake.Error != nil {
		err = wake.Error
	}
	if err != nil {
		// Keep going: a display in network standby answers without WOL.
		fmt.Fprintf(s.out, "Error sending WOL packet to %s: %v\n", d.Address, err)
		s.logger.Debug().Err(err).Str("address", d.Address).Str("mac", d.MACAddress).Msg("WOL failed")
	}

	if err := s.settle(ctx); err != nil {
		outcome.Detail = err.Error()
		return outcome
	}

	if !s.probeSvc.Up(ctx, d.Address, s.cfg.Probe.ConfirmWait) {
		s.logger.Warn().
			Str("address", d.Address).
			Dur("wait", s.cfg.Probe.ConfirmWait).
			Msg("display not reachable after wake")
		outcome.Detail = "not reachable after wake"
		return outcome
	}

	fmt.Fprintf(s.out, "Powering on monitor with IP %s\n", d.Address)

	res := s.braviaSvc.SetPowerStatus(ctx, d.Address, true)
	if !res.OK() {
		s.reportFailure(res, "Error powering on the TV")
		outcome.Detail = res.Failure.String()
		return outcome
	}

	outcome.Success = true
	outcome.Detail = "powered on"
	return outcome
}

// PowerOff sends the power-off command to every display without
// checking its current state.
func (s *Impl) PowerOff(ctx context.Context) []models.DeviceOutcome {
	var outcomes []models.DeviceOutcome

	for _, d := range s.cfg.Devices {
		if ctx.Err() != nil {
			s.logger.Warn().Str("address", d.Address).Msg("run cancelled, skipping remaining devices")
			break
		}

		outcome := models.DeviceOutcome{Operation: models.OpPowerOff, Address: d.Address}

		res := s.braviaSvc.SetPowerStatus(ctx, d.Address, false)
		if res.Delivered() {
			if !res.OK() {
				s.logger.Warn().Err(res.Error).Str("address", d.Address).Msg("unexpected reply to power off")
			}
			fmt.Fprintf(s.out, "Powered off the monitor: %s\n", d.Address)
			outcome.Success = true
			outcome.Detail = "powered off"
		} else {
			s.reportFailure(res, "Error powering off the TV")
			fmt.Fprintf(s.out, "Unable to power off the monitor: %s\n", d.Address)
			outcome.Detail = res.Failure.String()
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// EnableWOL turns on Wake-on-LAN on every display and reads the setting
// back.
func (s *Impl) EnableWOL(ctx context.Context) []models.DeviceOutcome {
	var outcomes []models.DeviceOutcome

	for _, d := range s.cfg.Devices {
		if ctx.Err() != nil {
			s.logger.Warn().Str("address", d.Address).Msg("run cancelled, skipping remaining devices")
			break
		}

		outcome := models.DeviceOutcome{Operation: models.OpEnableWOL, Address: d.Address}

		set := s.braviaSvc.SetWolMode(ctx, d.Address, true)
		if !set.OK() {
			s.reportFailure(set, "Error enabling WOL mode")
		}

		if set.Delivered() {
			get := s.braviaSvc.GetWolMode(ctx, d.Address)
			if !get.OK() {
				s.reportFailure(get, "Error getting WOL mode")
			}
			outcome.Success = get.Value
		}

		if outcome.Success {
			fmt.Fprintf(s.out, "WOL for %s is enabled\n", d.Address)
			outcome.Detail = "enabled"
		} else {
			fmt.Fprintf(s.out, "Unable to enable WOL for %s\n", d.Address)
			outcome.Detail = "not enabled"
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// GetPower reports the power state of every display.
func (s *Impl) GetPower(ctx context.Context) []models.DeviceOutcome {
	var outcomes []models.DeviceOutcome

	for _, d := range s.cfg.Devices {
		if ctx.Err() != nil {
			s.logger.Warn().Str("address", d.Address).Msg("run cancelled, skipping remaining devices")
			break
		}

		res := s.powerStatus(ctx, d)
		outcome := models.DeviceOutcome{
			Operation: models.OpGetPower,
			Address:   d.Address,
			Success:   res.OK(),
		}

		if res.Value {
			fmt.Fprintf(s.out, "%s is ON\n", d.Address)
			outcome.Detail = "ON"
		} else {
			fmt.Fprintf(s.out, "%s is OFF\n", d.Address)
			outcome.Detail = "OFF"
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// powerStatus probes the display first and only queries it when it
// answers. Any failure reads as off.
func (s *Impl) powerStatus(ctx context.Context, d models.Device) models.CommandResult {
	if !s.probeSvc.Up(ctx, d.Address, s.cfg.Probe.StatusWait) {
		s.logger.Debug().Str("address", d.Address).Msg("display did not answer probe")
		return models.CommandResult{
			Address: d.Address,
			Method:  bravia.MethodGetPowerStatus,
			Failure: models.FailureUnreachable,
			Error:   fmt.Errorf("%w: %s did not answer probe", bravia.ErrUnreachable, d.Address),
		}
	}

	res := s.braviaSvc.GetPowerStatus(ctx, d.Address)
	if !res.OK() {
		s.reportFailure(res, "Error getting PowerStatus")
	}
	return res
}

// reportFailure prints a failed command for the console and logs it.
func (s *Impl) reportFailure(res models.CommandResult, prefix string) {
	if res.Failure == models.FailureUnreachable {
		fmt.Fprintf(s.out, "Error connecting to IP: %s\n", res.Address)
	} else {
		fmt.Fprintf(s.out, "%s for %s: %v\n", prefix, res.Address, res.Error)
	}

	s.logger.Debug().
		Err(res.Error).
		Str("address", res.Address).
		Str("method", res.Method).
		Stringer("failure", res.Failure).
		Msg("command failed")
}

// settle pauses after a wake broadcast.
func (s *Impl) settle(ctx context.Context) error {
	if s.cfg.Wake.SettleWait <= 0 {
		return nil
	}

	s.logger.Debug().Dur("wait", s.cfg.Wake.SettleWait).Msg("waiting for display to wake")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Wake.SettleWait):
		return nil
	}
}

func (s *Impl) sendNotification(ctx context.Context, ops models.Operations, summary *models.RunSummary) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	msg := models.TelegramMessage{
		Host:       host,
		Operations: ops,
		StartTime:  summary.StartTime,
		Duration:   summary.Duration,
		Outcomes:   summary.Outcomes,
	}

	result, err := s.telegramSvc.SendNotification(ctx, *s.cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
