package fleet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tritondm/Bravia-CTRL/internal/models"
	"github.com/tritondm/Bravia-CTRL/internal/services/bravia"
)

// Mock implementations.
type mockBraviaService struct {
	calls []string

	executeFunc        func(ctx context.Context, address string, cmd bravia.Command) (*bravia.Response, error)
	getPowerStatusFunc func(ctx context.Context, address string) models.CommandResult
	setPowerStatusFunc func(ctx context.Context, address string, on bool) models.CommandResult
	setWolModeFunc     func(ctx context.Context, address string, enabled bool) models.CommandResult
	getWolModeFunc     func(ctx context.Context, address string) models.CommandResult
}

func (m *mockBraviaService) Execute(ctx context.Context, address string, cmd bravia.Command) (*bravia.Response, error) {
	m.calls = append(m.calls, bravia.Method(cmd)+" "+address)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, address, cmd)
	}
	return &bravia.Response{}, nil
}

func (m *mockBraviaService) GetPowerStatus(ctx context.Context, address string) models.CommandResult {
	m.calls = append(m.calls, "getPowerStatus "+address)
	if m.getPowerStatusFunc != nil {
		return m.getPowerStatusFunc(ctx, address)
	}
	return models.CommandResult{Address: address, Method: bravia.MethodGetPowerStatus}
}

func (m *mockBraviaService) SetPowerStatus(ctx context.Context, address string, on bool) models.CommandResult {
	m.calls = append(m.calls, fmt.Sprintf("setPowerStatus(%t) %s", on, address))
	if m.setPowerStatusFunc != nil {
		return m.setPowerStatusFunc(ctx, address, on)
	}
	return models.CommandResult{Address: address, Method: bravia.MethodSetPowerStatus, Value: true}
}

func (m *mockBraviaService) SetWolMode(ctx context.Context, address string, enabled bool) models.CommandResult {
	m.calls = append(m.calls, fmt.Sprintf("setWolMode(%t) %s", enabled, address))
	if m.setWolModeFunc != nil {
		return m.setWolModeFunc(ctx, address, enabled)
	}
	return models.CommandResult{Address: address, Method: bravia.MethodSetWolMode, Value: true}
}

func (m *mockBraviaService) GetWolMode(ctx context.Context, address string) models.CommandResult {
	m.calls = append(m.calls, "getWolMode "+address)
	if m.getWolModeFunc != nil {
		return m.getWolModeFunc(ctx, address)
	}
	return models.CommandResult{Address: address, Method: bravia.MethodGetWolMode, Value: true}
}

type mockWOLService struct {
	woken    []string
	wakeFunc func(ctx context.Context, cfg models.WakeConfig, mac string) (*models.WakeResult, error)
}

func (m *mockWOLService) Wake(ctx context.Context, cfg models.WakeConfig, mac string) (*models.WakeResult, error) {
	m.woken = append(m.woken, mac)
	if m.wakeFunc != nil {
		return m.wakeFunc(ctx, cfg, mac)
	}
	return &models.WakeResult{PacketSent: true}, nil
}

type mockProbeService struct {
	probes []time.Duration
	upFunc func(ctx context.Context, host string, wait time.Duration) bool
}

func (m *mockProbeService) Up(ctx context.Context, host string, wait time.Duration) bool {
	m.probes = append(m.probes, wait)
	if m.upFunc != nil {
		return m.upFunc(ctx, host, wait)
	}
	return true
}

type mockTelegramService struct {
	sent     []models.TelegramMessage
	sendFunc func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

func (m *mockTelegramService) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	m.sent = append(m.sent, msg)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, cfg, msg)
	}
	return &models.TelegramResult{MessageSent: true}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

const (
	statusWait  = 2 * time.Second
	confirmWait = 10 * time.Second
)

func testConfig(devices ...models.Device) models.FleetConfig {
	if len(devices) == 0 {
		devices = []models.Device{{Address: "10.0.0.5", MACAddress: "AA:BB:CC:DD:EE:FF"}}
	}
	return models.FleetConfig{
		API:     models.APIConfig{Timeout: time.Second, Path: "/sony/system"},
		Wake:    models.WakeConfig{BroadcastIP: "255.255.255.255", Port: 9},
		Probe:   models.ProbeConfig{StatusWait: statusWait, ConfirmWait: confirmWait},
		Devices: devices,
	}
}

type fixture struct {
	bravia   *mockBraviaService
	wol      *mockWOLService
	probe    *mockProbeService
	telegram *mockTelegramService
	out      *bytes.Buffer
	svc      *Impl
}

func newFixture(cfg models.FleetConfig) *fixture {
	f := &fixture{
		bravia:   &mockBraviaService{},
		wol:      &mockWOLService{},
		probe:    &mockProbeService{},
		telegram: &mockTelegramService{},
		out:      &bytes.Buffer{},
	}
	f.svc = NewWithServices(testLogger(), cfg, f.out, f.bravia, f.wol, f.probe, f.telegram)
	return f
}

func (f *fixture) lines() []string {
	return strings.Split(strings.TrimSpace(f.out.String()), "\n")
}

func powerStatus(value bool) func(ctx context.Context, address string) models.CommandResult {
	return func(ctx context.Context, address string) models.CommandResult {
		return models.CommandResult{Address: address, Method: bravia.MethodGetPowerStatus, Value: value}
	}
}

func unreachable(address, method string) models.CommandResult {
	return models.CommandResult{
		Address: address,
		Method:  method,
		Failure: models.FailureUnreachable,
		Error:   fmt.Errorf("%w: %s", bravia.ErrUnreachable, address),
	}
}

func TestPowerOn_WakesAndPowersOnWhenReachable(t *testing.T) {
	f := newFixture(testConfig())

	// Off and silent for the pre-check, reachable after the wake pause.
	f.probe.upFunc = func(ctx context.Context, host string, wait time.Duration) bool {
		return wait == confirmWait
	}

	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, models.OpPowerOn, outcomes[0].Operation)
	assert.Equal(t, []string{
		"Powering on monitor with IP 10.0.0.5",
		"Powering on monitor with IP 10.0.0.5",
	}, f.lines())
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, f.wol.woken)
	assert.Equal(t, []time.Duration{statusWait, confirmWait}, f.probe.probes)
	assert.Equal(t, []string{"setPowerStatus(true) 10.0.0.5"}, f.bravia.calls)
}

func TestPowerOn_AlreadyOnIsNoOp(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.getPowerStatusFunc = powerStatus(true)

	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, "already on", outcomes[0].Detail)
	assert.Equal(t, []string{"The monitor is on"}, f.lines())
	assert.Empty(t, f.wol.woken)
	assert.Equal(t, []string{"getPowerStatus 10.0.0.5"}, f.bravia.calls)
}

func TestPowerOn_StandbyDisplayIsWoken(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.getPowerStatusFunc = powerStatus(false)

	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Len(t, f.wol.woken, 1)
	assert.Equal(t, []string{"getPowerStatus 10.0.0.5", "setPowerStatus(true) 10.0.0.5"}, f.bravia.calls)
}

func TestPowerOn_NotReachableAfterWake(t *testing.T) {
	f := newFixture(testConfig())
	f.probe.upFunc = func(ctx context.Context, host string, wait time.Duration) bool {
		return false
	}

	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, "not reachable after wake", outcomes[0].Detail)
	assert.Len(t, f.wol.woken, 1)
	assert.Empty(t, f.bravia.calls)
	assert.Equal(t, []string{"Powering on monitor with IP 10.0.0.5"}, f.lines())
}

func TestPowerOn_WakeFailureStillProbes(t *testing.T) {
	f := newFixture(testConfig())
	f.wol.wakeFunc = func(ctx context.Context, cfg models.WakeConfig, mac string) (*models.WakeResult, error) {
		return &models.WakeResult{Error: errors.New("network is unreachable")}, nil
	}
	f.probe.upFunc = func(ctx context.Context, host string, wait time.Duration) bool {
		return wait == confirmWait
	}

	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Contains(t, f.out.String(), "Error sending WOL packet to 10.0.0.5: network is unreachable")
	assert.Equal(t, []string{"setPowerStatus(true) 10.0.0.5"}, f.bravia.calls)
}

func TestPowerOn_CommandFailureContinues(t *testing.T) {
	cfg := testConfig(
		models.Device{Address: "10.0.0.5", MACAddress: "AA:BB:CC:DD:EE:01"},
		models.Device{Address: "10.0.0.6", MACAddress: "AA:BB:CC:DD:EE:02"},
	)
	f := newFixture(cfg)
	f.bravia.getPowerStatusFunc = powerStatus(false)
	f.bravia.setPowerStatusFunc = func(ctx context.Context, address string, on bool) models.CommandResult {
		if address == "10.0.0.5" {
			return unreachable(address, bravia.MethodSetPowerStatus)
		}
		return models.CommandResult{Address: address, Value: true}
	}

	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, "unreachable", outcomes[0].Detail)
	assert.True(t, outcomes[1].Success)
	assert.Contains(t, f.out.String(), "Error connecting to IP: 10.0.0.5")
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02"}, f.wol.woken)
}

func TestPowerOn_SettleWait(t *testing.T) {
	cfg := testConfig()
	cfg.Wake.SettleWait = 30 * time.Millisecond
	f := newFixture(cfg)
	f.bravia.getPowerStatusFunc = powerStatus(false)

	start := time.Now()
	outcomes := f.svc.PowerOn(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.GreaterOrEqual(t, time.Since(start), cfg.Wake.SettleWait)
}

func TestPowerOn_CancelledDuringSettle(t *testing.T) {
	cfg := testConfig()
	cfg.Wake.SettleWait = 10 * time.Second
	f := newFixture(cfg)
	f.bravia.getPowerStatusFunc = powerStatus(false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcomes := f.svc.PowerOn(ctx)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, context.Canceled.Error(), outcomes[0].Detail)
	assert.Equal(t, []string{"getPowerStatus 10.0.0.5"}, f.bravia.calls)
}

func TestPowerOff_AlwaysSendsCommand(t *testing.T) {
	cfg := testConfig(
		models.Device{Address: "10.0.0.5", MACAddress: "AA:BB:CC:DD:EE:01"},
		models.Device{Address: "10.0.0.6", MACAddress: "AA:BB:CC:DD:EE:02"},
	)
	f := newFixture(cfg)

	outcomes := f.svc.PowerOff(context.Background())

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Success)
	assert.True(t, outcomes[1].Success)
	assert.Equal(t, []string{"setPowerStatus(false) 10.0.0.5", "setPowerStatus(false) 10.0.0.6"}, f.bravia.calls)
	assert.Empty(t, f.probe.probes)
	assert.Equal(t, []string{
		"Powered off the monitor: 10.0.0.5",
		"Powered off the monitor: 10.0.0.6",
	}, f.lines())
}

func TestPowerOff_ConnectionFailureContinues(t *testing.T) {
	cfg := testConfig(
		models.Device{Address: "10.0.0.5", MACAddress: "AA:BB:CC:DD:EE:01"},
		models.Device{Address: "10.0.0.6", MACAddress: "AA:BB:CC:DD:EE:02"},
	)
	f := newFixture(cfg)
	f.bravia.setPowerStatusFunc = func(ctx context.Context, address string, on bool) models.CommandResult {
		if address == "10.0.0.5" {
			return unreachable(address, bravia.MethodSetPowerStatus)
		}
		return models.CommandResult{Address: address, Value: true}
	}

	outcomes := f.svc.PowerOff(context.Background())

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.True(t, outcomes[1].Success)
	assert.Equal(t, []string{
		"Error connecting to IP: 10.0.0.5",
		"Unable to power off the monitor: 10.0.0.5",
		"Powered off the monitor: 10.0.0.6",
	}, f.lines())
}

func TestPowerOff_MalformedReplyCountsAsDelivered(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.setPowerStatusFunc = func(ctx context.Context, address string, on bool) models.CommandResult {
		return models.CommandResult{Address: address, Failure: models.FailureDecode, Error: bravia.ErrDecode}
	}

	outcomes := f.svc.PowerOff(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, []string{"Powered off the monitor: 10.0.0.5"}, f.lines())
}

func TestEnableWOL_Enabled(t *testing.T) {
	f := newFixture(testConfig())

	outcomes := f.svc.EnableWOL(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, []string{"WOL for 10.0.0.5 is enabled"}, f.lines())
	assert.Equal(t, []string{"setWolMode(true) 10.0.0.5", "getWolMode 10.0.0.5"}, f.bravia.calls)
}

func TestEnableWOL_NotEnabled(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.getWolModeFunc = func(ctx context.Context, address string) models.CommandResult {
		return models.CommandResult{Address: address, Value: false}
	}

	outcomes := f.svc.EnableWOL(context.Background())

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, []string{"Unable to enable WOL for 10.0.0.5"}, f.lines())
}

func TestEnableWOL_DecodeFailureReadsBack(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.setWolModeFunc = func(ctx context.Context, address string, enabled bool) models.CommandResult {
		return models.CommandResult{
			Address: address,
			Failure: models.FailureDecode,
			Error:   errors.New("malformed response"),
		}
	}

	outcomes := f.svc.EnableWOL(context.Background())

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, []string{
		"Error enabling WOL mode for 10.0.0.5: malformed response",
		"WOL for 10.0.0.5 is enabled",
	}, f.lines())
}

func TestEnableWOL_UnreachableSkipsReadBack(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.setWolModeFunc = func(ctx context.Context, address string, enabled bool) models.CommandResult {
		return unreachable(address, bravia.MethodSetWolMode)
	}

	outcomes := f.svc.EnableWOL(context.Background())

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, []string{"setWolMode(true) 10.0.0.5"}, f.bravia.calls)
	assert.Equal(t, []string{
		"Error connecting to IP: 10.0.0.5",
		"Unable to enable WOL for 10.0.0.5",
	}, f.lines())
}

func TestGetPower(t *testing.T) {
	cfg := testConfig(
		models.Device{Address: "10.0.0.5", MACAddress: "AA:BB:CC:DD:EE:01"},
		models.Device{Address: "10.0.0.6", MACAddress: "AA:BB:CC:DD:EE:02"},
		models.Device{Address: "10.0.0.7", MACAddress: "AA:BB:CC:DD:EE:03"},
		models.Device{Address: "10.0.0.8", MACAddress: "AA:BB:CC:DD:EE:04"},
	)
	f := newFixture(cfg)
	f.probe.upFunc = func(ctx context.Context, host string, wait time.Duration) bool {
		return host != "10.0.0.7"
	}
	f.bravia.getPowerStatusFunc = func(ctx context.Context, address string) models.CommandResult {
		switch address {
		case "10.0.0.5":
			return models.CommandResult{Address: address, Value: true}
		case "10.0.0.8":
			return models.CommandResult{Address: address, Failure: models.FailureDecode, Error: errors.New("bad json")}
		default:
			return models.CommandResult{Address: address, Value: false}
		}
	}

	outcomes := f.svc.GetPower(context.Background())

	require.Len(t, outcomes, 4)
	assert.Equal(t, []string{
		"10.0.0.5 is ON",
		"10.0.0.6 is OFF",
		"10.0.0.7 is OFF",
		"Error getting PowerStatus for 10.0.0.8: bad json",
		"10.0.0.8 is OFF",
	}, f.lines())
	assert.Equal(t, []string{"getPowerStatus 10.0.0.5", "getPowerStatus 10.0.0.6", "getPowerStatus 10.0.0.8"}, f.bravia.calls)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[2].Success)
	assert.False(t, outcomes[3].Success)
}

func TestRun_NoOperations(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "t", ChatID: "c"}
	f := newFixture(cfg)

	summary := f.svc.Run(context.Background(), models.Operations{})

	assert.Empty(t, summary.Outcomes)
	assert.Empty(t, f.bravia.calls)
	assert.Empty(t, f.probe.probes)
	assert.Empty(t, f.telegram.sent)
	assert.Empty(t, f.out.String())
}

func TestRun_OrderOfFlows(t *testing.T) {
	f := newFixture(testConfig())
	f.bravia.getPowerStatusFunc = powerStatus(true)

	summary := f.svc.Run(context.Background(), models.Operations{
		Power:     models.PowerOff,
		EnableWOL: true,
		GetPower:  true,
	})

	require.Len(t, summary.Outcomes, 3)
	assert.Equal(t, models.OpPowerOff, summary.Outcomes[0].Operation)
	assert.Equal(t, models.OpEnableWOL, summary.Outcomes[1].Operation)
	assert.Equal(t, models.OpGetPower, summary.Outcomes[2].Operation)
	assert.Equal(t, 0, summary.Failed())
	assert.Equal(t, []string{
		"Powered off the monitor: 10.0.0.5",
		"WOL for 10.0.0.5 is enabled",
		"10.0.0.5 is ON",
	}, f.lines())
}

func TestRun_EmptyRoster(t *testing.T) {
	f := newFixture(models.FleetConfig{})

	summary := f.svc.Run(context.Background(), models.Operations{Power: models.PowerOn, GetPower: true})

	assert.Empty(t, summary.Outcomes)
	assert.Empty(t, f.out.String())
}

func TestRun_SendsNotification(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "123:abc", ChatID: "-100"}
	f := newFixture(cfg)

	summary := f.svc.Run(context.Background(), models.Operations{Power: models.PowerOff})

	require.Len(t, f.telegram.sent, 1)
	msg := f.telegram.sent[0]
	assert.Equal(t, models.PowerOff, msg.Operations.Power)
	assert.Equal(t, summary.Outcomes, msg.Outcomes)
	assert.NotEmpty(t, msg.Host)
}

func TestRun_NotificationFailureIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "123:abc", ChatID: "-100"}
	f := newFixture(cfg)
	f.telegram.sendFunc = func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
		return &models.TelegramResult{Error: errors.New("status 401")}, nil
	}

	summary := f.svc.Run(context.Background(), models.Operations{GetPower: true})

	require.Len(t, summary.Outcomes, 1)
	assert.Len(t, f.telegram.sent, 1)
}

func TestRun_NoNotificationWithoutTelegram(t *testing.T) {
	f := newFixture(testConfig())

	f.svc.Run(context.Background(), models.Operations{GetPower: true})

	assert.Empty(t, f.telegram.sent)
}

func TestRun_CancelledContextSkipsDevices(t *testing.T) {
	cfg := testConfig(
		models.Device{Address: "10.0.0.5", MACAddress: "AA:BB:CC:DD:EE:01"},
		models.Device{Address: "10.0.0.6", MACAddress: "AA:BB:CC:DD:EE:02"},
	)
	f := newFixture(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := f.svc.Run(ctx, models.Operations{Power: models.PowerOff, GetPower: true})

	assert.Empty(t, summary.Outcomes)
	assert.Empty(t, f.bravia.calls)
}
