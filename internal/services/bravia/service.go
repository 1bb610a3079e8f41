// Package bravia provides the display control API client.
package bravia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tritondm/Bravia-CTRL/internal/models"
)

// Reply markers compared literally against decoded result fields.
const (
	PowerActive = "active"
	WolEnabled  = "True"
)

// maxBodySize caps how much of a reply is read.
const maxBodySize = 1 << 20

// Errors returned by Execute, checked with errors.Is.
var (
	ErrUnreachable = errors.New("device unreachable")
	ErrDecode      = errors.New("malformed response")
	ErrMismatch    = errors.New("unexpected response shape")
	ErrDevice      = errors.New("device returned an error")
)

// Service defines the interface for display control operations.
type Service interface {
	Execute(ctx context.Context, address string, cmd Command) (*Response, error)
	GetPowerStatus(ctx context.Context, address string) models.CommandResult
	SetPowerStatus(ctx context.Context, address string, on bool) models.CommandResult
	SetWolMode(ctx context.Context, address string, enabled bool) models.CommandResult
	GetWolMode(ctx context.Context, address string) models.CommandResult
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the bravia Service interface.
type Impl struct {
	httpClient HTTPClient
	cfg        models.APIConfig
	logger     zerolog.Logger
}

// New creates a new display control client.
func New(logger zerolog.Logger, cfg models.APIConfig) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// NewWithClient creates a new client with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, cfg models.APIConfig, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
	}
}

// Execute sends cmd to the display at address and decodes the reply.
// A transport failure yields an error wrapping ErrUnreachable.
func (s *Impl) Execute(ctx context.Context, address string, cmd Command) (*Response, error) {
	method := Method(cmd)

	body, err := Encode(cmd)
	if err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	url := "http://" + address + s.cfg.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("X-Auth-PSK", s.cfg.PSK)
	if s.cfg.PSK != "" {
		req.SetBasicAuth("", s.cfg.PSK)
	}

	s.logger.Debug().
		Str("address", address).
		Str("method", method).
		Msg("sending command")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrUnreachable, address, err)
	}

	s.logger.Debug().
		Str("address", address).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("response received")

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w from %s (HTTP %d): %w", ErrDecode, address, resp.StatusCode, err)
	}

	if len(decoded.Error) > 0 && !bytes.Equal(decoded.Error, []byte("null")) {
		return &decoded, fmt.Errorf("%w: %s: %s", ErrDevice, method, string(decoded.Error))
	}

	return &decoded, nil
}

// GetPowerStatus reports whether the display is on. Value is true only
// when result[0].status is exactly "active".
func (s *Impl) GetPowerStatus(ctx context.Context, address string) models.CommandResult {
	return s.query(ctx, address, GetPowerStatus{}, "status", PowerActive)
}

// SetPowerStatus switches the display on or off.
func (s *Impl) SetPowerStatus(ctx context.Context, address string, on bool) models.CommandResult {
	return s.set(ctx, address, SetPowerStatus{On: on})
}

// SetWolMode toggles the display's Wake-on-LAN setting.
func (s *Impl) SetWolMode(ctx context.Context, address string, enabled bool) models.CommandResult {
	return s.set(ctx, address, SetWolMode{Enabled: enabled})
}

// GetWolMode reports whether Wake-on-LAN is enabled. Value is true only
// when result[0].enabled is the string "True".
func (s *Impl) GetWolMode(ctx context.Context, address string) models.CommandResult {
	return s.query(ctx, address, GetWolMode{}, "enabled", WolEnabled)
}

func (s *Impl) query(ctx context.Context, address string, cmd Command, field, want string) models.CommandResult {
	result := models.CommandResult{Address: address, Method: Method(cmd)}

	resp, err := s.Execute(ctx, address, cmd)
	if err != nil {
		result.Failure = Classify(err)
		result.Error = err
		return result
	}

	v, err := resp.field(field)
	if err != nil {
		result.Failure = models.FailureMismatch
		result.Error = err
		return result
	}

	got, _ := v.(string)
	result.Value = got == want

	s.logger.Debug().
		Str("address", address).
		Str("method", result.Method).
		Interface(field, v).
		Bool("value", result.Value).
		Msg("query decoded")

	return result
}

func (s *Impl) set(ctx context.Context, address string, cmd Command) models.CommandResult {
	result := models.CommandResult{Address: address, Method: Method(cmd)}

	if _, err := s.Execute(ctx, address, cmd); err != nil {
		result.Failure = Classify(err)
		result.Error = err
		return result
	}

	result.Value = true
	return result
}

// Classify maps an Execute error to its failure kind.
func Classify(err error) models.Failure {
	switch {
	case err == nil:
		return models.FailureNone
	case errors.Is(err, ErrUnreachable):
		return models.FailureUnreachable
	case errors.Is(err, ErrDecode):
		return models.FailureDecode
	case errors.Is(err, ErrDevice):
		return models.FailureDevice
	default:
		return models.FailureMismatch
	}
}
