package bravia

import (
	"encoding/json"
	"fmt"
)

// Vendor method names.
const (
	MethodGetPowerStatus = "getPowerStatus"
	MethodSetPowerStatus = "setPowerStatus"
	MethodSetWolMode     = "setWolMode"
	MethodGetWolMode     = "getWolMode"
)

// APIVersion is the protocol version sent with every request.
const APIVersion = "1.0"

// Request ids used by the vendor console: 50 for queries, 55 for setters.
const (
	queryID  = 50
	setterID = 55
)

// Command is one of the supported vendor requests. The set is closed:
// only the types in this file implement it.
type Command interface {
	request() Request
}

// Request is the wire form of a command.
type Request struct {
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
	Version string `json:"version"`
}

// GetPowerStatus queries the current power state.
type GetPowerStatus struct{}

// SetPowerStatus switches the display on or off.
type SetPowerStatus struct {
	On bool
}

// SetWolMode toggles the display's Wake-on-LAN setting.
type SetWolMode struct {
	Enabled bool
}

// GetWolMode queries the display's Wake-on-LAN setting.
type GetWolMode struct{}

func (GetPowerStatus) request() Request {
	return Request{Method: MethodGetPowerStatus, Params: []any{}, ID: queryID, Version: APIVersion}
}

func (c SetPowerStatus) request() Request {
	return Request{
		Method:  MethodSetPowerStatus,
		Params:  []any{map[string]bool{"status": c.On}},
		ID:      setterID,
		Version: APIVersion,
	}
}

func (c SetWolMode) request() Request {
	return Request{
		Method:  MethodSetWolMode,
		Params:  []any{map[string]bool{"enabled": c.Enabled}},
		ID:      setterID,
		Version: APIVersion,
	}
}

func (GetWolMode) request() Request {
	return Request{Method: MethodGetWolMode, Params: []any{}, ID: queryID, Version: APIVersion}
}

// Method returns the vendor method name of cmd.
func Method(cmd Command) string {
	return cmd.request().Method
}

// Encode serializes cmd to a request body.
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd.request())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", Method(cmd), err)
	}
	return body, nil
}

// Response is the decoded reply to a command.
type Response struct {
	ID     int               `json:"id"`
	Result []json.RawMessage `json:"result"`
	Error  json.RawMessage   `json:"error"`
}

// field returns result[0][name], or ErrMismatch when it is absent.
func (r *Response) field(name string) (any, error) {
	if len(r.Result) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrMismatch)
	}

	var first map[string]any
	if err := json.Unmarshal(r.Result[0], &first); err != nil {
		return nil, fmt.Errorf("%w: result[0] is not an object", ErrMismatch)
	}

	v, ok := first[name]
	if !ok {
		return nil, fmt.Errorf("%w: result[0] has no %q", ErrMismatch, name)
	}
	return v, nil
}
