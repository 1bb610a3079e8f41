package models

// Device is a single roster entry.
type Device struct {
	Address    string // IP address or hostname of the display
	MACAddress string
}
