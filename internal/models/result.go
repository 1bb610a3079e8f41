package models

import "time"

// Failure classifies why a device command did not produce a usable result.
type Failure int

// Failure kinds.
const (
	FailureNone        Failure = iota
	FailureUnreachable         // transport exchange could not reach the device
	FailureDecode              // body is not well-formed JSON
	FailureMismatch            // decoded body lacks the expected fields
	FailureDevice              // device replied with an error member
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureUnreachable:
		return "unreachable"
	case FailureDecode:
		return "decode"
	case FailureMismatch:
		return "mismatch"
	case FailureDevice:
		return "device"
	default:
		return "unknown"
	}
}

// CommandResult holds the result of one command sent to one device.
type CommandResult struct {
	Address string
	Method  string
	Value   bool // power on / WOL enabled for queries, acknowledged for setters
	Failure Failure
	Error   error
}

// OK reports whether the command produced a usable reply.
func (r CommandResult) OK() bool {
	return r.Failure == FailureNone
}

// Delivered reports whether the transport exchange went through,
// whatever the reply contained.
func (r CommandResult) Delivered() bool {
	return r.Failure != FailureUnreachable
}

// WakeResult holds the result of a Wake-on-LAN broadcast.
type WakeResult struct {
	PacketSent bool
	Error      error
}

// Flow names used in outcomes.
const (
	OpPowerOn   = "power_on"
	OpPowerOff  = "power_off"
	OpEnableWOL = "enable_wol"
	OpGetPower  = "get_power"
)

// DeviceOutcome is the reported outcome of one flow for one device.
type DeviceOutcome struct {
	Operation string
	Address   string
	Success   bool
	Detail    string
}

// RunSummary collects the outcomes of one invocation.
type RunSummary struct {
	StartTime time.Time
	Duration  time.Duration
	Outcomes  []DeviceOutcome
}

// Failed returns the number of unsuccessful outcomes.
func (s *RunSummary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}
