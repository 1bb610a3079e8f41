// Package models contains the data structures used throughout bravia-ctrl.
package models

import "time"

// FleetConfig holds the complete configuration for a controller run.
type FleetConfig struct {
	API      APIConfig
	Wake     WakeConfig
	Probe    ProbeConfig
	Devices  []Device
	Telegram *TelegramConfig // nil if not configured
}

// APIConfig holds settings for the display control API.
type APIConfig struct {
	Timeout time.Duration
	PSK     string // pre-shared key, optional
	Path    string // e.g. "/sony/system"
}

// WakeConfig holds Wake-on-LAN broadcast settings.
type WakeConfig struct {
	BroadcastIP string
	Port        int
	SettleWait  time.Duration // pause after the magic packet before probing
}

// ProbeConfig holds reachability probe wait bounds.
type ProbeConfig struct {
	StatusWait  time.Duration // pre-check before a status query
	ConfirmWait time.Duration // post-wake confirmation
}

// Operations is the set of flows selected for one invocation.
type Operations struct {
	Power     string // "", PowerOn or PowerOff
	EnableWOL bool
	GetPower  bool
}

// Power flow selectors.
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// Empty reports whether no flow is selected.
func (o Operations) Empty() bool {
	return o.Power == "" && !o.EnableWOL && !o.GetPower
}
