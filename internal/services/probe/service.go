// Package probe provides a best-effort reachability check.
package probe

import (
	"context"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWait is used when a caller passes no wait bound.
const DefaultWait = 10 * time.Second

// Service defines the interface for reachability checks.
type Service interface {
	Up(ctx context.Context, host string, wait time.Duration) bool
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Run executes name with args, discarding its output.
func (e *DefaultExecutor) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Impl implements the probe Service interface with a single ICMP echo
// sent by the system ping binary.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new probe service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new probe service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Up reports whether host answers one echo request within wait.
func (s *Impl) Up(ctx context.Context, host string, wait time.Duration) bool {
	if host == "" || strings.HasPrefix(host, "-") {
		s.logger.Warn().Str("host", host).Msg("refusing to probe invalid host")
		return false
	}
	if wait <= 0 {
		wait = DefaultWait
	}

	// ping -W takes whole seconds.
	secs := int(math.Ceil(wait.Seconds()))

	ctx, cancel := context.WithTimeout(ctx, wait+time.Second)
	defer cancel()

	err := s.executor.Run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), host)

	s.logger.Debug().
		Str("host", host).
		Dur("wait", wait).
		Bool("up", err == nil).
		Msg("reachability probe")

	return err == nil
}
