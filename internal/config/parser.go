// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tritondm/Bravia-CTRL/internal/models"
)

// Defaults applied when the config file leaves a setting out.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultAPIPath     = "/sony/system"
	DefaultBroadcastIP = "255.255.255.255"
	DefaultWakePort    = 9
	DefaultSettleWait  = 10 * time.Second
	DefaultStatusWait  = 2 * time.Second
	DefaultConfirmWait = 10 * time.Second
)

// ConfigName is the file name searched for when no path is given.
const ConfigName = "bravia-ctrl"

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	_ = v.BindEnv("api.psk", "BRAVIA_PSK")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.FleetConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadDefault searches the standard locations for bravia-ctrl.yaml.
func (p *Parser) LoadDefault() (*models.FleetConfig, error) {
	p.v.SetConfigName(ConfigName)
	p.v.AddConfigPath("/etc/bravia-ctrl")
	p.v.AddConfigPath("$HOME/.config/bravia-ctrl")
	p.v.AddConfigPath(".")

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.FleetConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (p *Parser) ConfigFileUsed() string {
	return p.v.ConfigFileUsed()
}

type deviceEntry struct {
	Address    string `mapstructure:"address"`
	MACAddress string `mapstructure:"mac_address"`
}

func (p *Parser) parse() (*models.FleetConfig, error) {
	cfg := &models.FleetConfig{}

	// Parse API settings.
	cfg.API = models.APIConfig{
		Timeout: p.duration("api.timeout"),
		PSK:     p.expandEnv(p.v.GetString("api.psk")),
		Path:    p.v.GetString("api.path"),
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = DefaultTimeout
	}
	if cfg.API.Path == "" {
		cfg.API.Path = DefaultAPIPath
	}
	if !strings.HasPrefix(cfg.API.Path, "/") {
		cfg.API.Path = "/" + cfg.API.Path
	}

	// Parse wake settings.
	cfg.Wake = models.WakeConfig{
		BroadcastIP: p.v.GetString("wake.broadcast_ip"),
		Port:        p.v.GetInt("wake.port"),
		SettleWait:  p.duration("wake.settle_wait"),
	}
	if cfg.Wake.BroadcastIP == "" {
		cfg.Wake.BroadcastIP = DefaultBroadcastIP
	}
	if cfg.Wake.Port == 0 {
		cfg.Wake.Port = DefaultWakePort
	}
	if !p.v.IsSet("wake.settle_wait") {
		cfg.Wake.SettleWait = DefaultSettleWait
	}

	// Parse probe settings.
	cfg.Probe = models.ProbeConfig{
		StatusWait:  p.duration("probe.status_wait"),
		ConfirmWait: p.duration("probe.confirm_wait"),
	}
	if cfg.Probe.StatusWait == 0 {
		cfg.Probe.StatusWait = DefaultStatusWait
	}
	if cfg.Probe.ConfirmWait == 0 {
		cfg.Probe.ConfirmWait = DefaultConfirmWait
	}

	// Parse the roster. A list rather than a map: viper splits keys on
	// dots, which rules out IP addresses as keys.
	var entries []deviceEntry
	if err := p.v.UnmarshalKey("devices", &entries); err != nil {
		return nil, fmt.Errorf("devices must be a list of address/mac_address entries: %w", err)
	}
	for i, e := range entries {
		d := models.Device{
			Address:    strings.TrimSpace(e.Address),
			MACAddress: strings.TrimSpace(e.MACAddress),
		}
		if d.Address == "" {
			return nil, fmt.Errorf("devices[%d].address is required", i)
		}
		if d.MACAddress == "" {
			return nil, fmt.Errorf("devices[%d].mac_address is required", i)
		}
		cfg.Devices = append(cfg.Devices, d)
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// duration reads a duration setting. Bare numbers are taken as seconds.
func (p *Parser) duration(key string) time.Duration {
	switch n := p.v.Get(key).(type) {
	case int:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	case float64:
		return time.Duration(n * float64(time.Second))
	}
	return p.v.GetDuration(key)
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.FleetConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	if net.ParseIP(cfg.Wake.BroadcastIP) == nil {
		return fmt.Errorf("wake.broadcast_ip is not an IP address: %s", cfg.Wake.BroadcastIP)
	}

	if cfg.Wake.Port < 1 || cfg.Wake.Port > 65535 {
		return fmt.Errorf("wake.port must be between 1 and 65535")
	}

	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.Address == "" || d.MACAddress == "" {
			return fmt.Errorf("devices[%d]: address and mac_address are required", i)
		}
		if _, err := net.ParseMAC(d.MACAddress); err != nil {
			return fmt.Errorf("devices[%d]: invalid mac_address %q: %w", i, d.MACAddress, err)
		}
		if seen[d.Address] {
			return fmt.Errorf("devices[%d]: duplicate address %s", i, d.Address)
		}
		seen[d.Address] = true
	}

	return nil
}

// ParseOperations builds the flow selection from command-line values.
func ParseOperations(power string, enableWOL, getPower bool) (models.Operations, error) {
	ops := models.Operations{EnableWOL: enableWOL, GetPower: getPower}

	switch power {
	case "", models.PowerOn, models.PowerOff:
		ops.Power = power
	default:
		return ops, fmt.Errorf("invalid --Power value %q: must be one of: on, off", power)
	}

	return ops, nil
}
