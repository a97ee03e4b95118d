// Package cmd holds the startup plumbing shared by service commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/onboarding.space/internal/platform/config"
	"github.com/louisbranch/onboarding.space/internal/platform/logging"
	"github.com/louisbranch/onboarding.space/internal/platform/otel"
	"github.com/louisbranch/onboarding.space/internal/platform/timeouts"
	"go.uber.org/zap"
)

// ServiceOnboarding names the onboarding wizard service in telemetry.
const ServiceOnboarding = "onboarding"

// RunOptions controls shared entrypoint behavior for service commands.
type RunOptions struct {
	// ShutdownTimeout bounds the trace flush on exit. Zero uses
	// timeouts.Shutdown.
	ShutdownTimeout time.Duration
	// Logger receives telemetry shutdown failures. Nil discards them.
	Logger *zap.Logger
}

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry runs the service with tracing installed and flushes
// pending spans once run returns.
func RunWithTelemetry(ctx context.Context, service string, options RunOptions, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.OrNop(options.Logger).With(zap.String("service", service))
	flushTimeout := options.ShutdownTimeout
	if flushTimeout <= 0 {
		flushTimeout = timeouts.Shutdown
	}

	flush, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("set up tracing for %s: %w", service, err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := flush(flushCtx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()
	logger.Debug("tracing installed")
	return run(ctx)
}
