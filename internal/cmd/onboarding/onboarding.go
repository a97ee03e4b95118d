// Package onboarding parses onboarding command flags and launches the
// onboarding runtime.
package onboarding

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/onboarding.space/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/onboarding.space/internal/platform/grpc"
	"github.com/louisbranch/onboarding.space/internal/platform/logging"
	onboardingserver "github.com/louisbranch/onboarding.space/internal/services/onboarding/app"
)

// Config holds onboarding command configuration.
type Config struct {
	HTTPAddr            string        `env:"ONBOARDING_SPACE_HTTP_ADDR" envDefault:":8095"`
	HealthPort          int           `env:"ONBOARDING_SPACE_HEALTH_PORT" envDefault:"8096"`
	StoreDriver         string        `env:"ONBOARDING_SPACE_STORE_DRIVER" envDefault:"sqlite"`
	DBPath              string        `env:"ONBOARDING_SPACE_DB_PATH" envDefault:"data/onboarding.db"`
	APIURL              string        `env:"ONBOARDING_SPACE_API_URL"`
	PaymentAPIURL       string        `env:"ONBOARDING_SPACE_PAYMENT_API_URL"`
	SessionSecret       string        `env:"ONBOARDING_SPACE_SESSION_SECRET"`
	SessionIdleTTL      time.Duration `env:"ONBOARDING_SPACE_SESSION_IDLE_TTL" envDefault:"30m"`
	SessionRetention    time.Duration `env:"ONBOARDING_SPACE_SESSION_RETENTION" envDefault:"720h"`
	ThankYouURL         string        `env:"ONBOARDING_SPACE_THANK_YOU_URL" envDefault:"/vielen-dank"`
	VerifyPollInterval  time.Duration `env:"ONBOARDING_SPACE_VERIFY_POLL_INTERVAL" envDefault:"3s"`
	ResendCooldown      time.Duration `env:"ONBOARDING_SPACE_RESEND_COOLDOWN" envDefault:"60s"`
	GatewayTimeout      time.Duration `env:"ONBOARDING_SPACE_GATEWAY_TIMEOUT" envDefault:"10s"`
	GatewayMaxAttempts  int           `env:"ONBOARDING_SPACE_GATEWAY_MAX_ATTEMPTS" envDefault:"3"`
	LogLevel            string        `env:"ONBOARDING_SPACE_LOG_LEVEL" envDefault:"info"`
	LogDevelopment      bool          `env:"ONBOARDING_SPACE_LOG_DEVELOPMENT" envDefault:"false"`
	DefaultLocale       string        `env:"ONBOARDING_SPACE_DEFAULT_LOCALE" envDefault:"de-DE"`
	TrustForwardedProto bool          `env:"ONBOARDING_SPACE_TRUST_FORWARDED_PROTO" envDefault:"false"`

	// Probe checks a running instance's health endpoint and exits.
	Probe        bool
	ProbeTimeout time.Duration
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The gRPC health server port")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Session store driver: sqlite, bbolt or memory")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The session store file path")
	fs.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Base URL of the onboarding API")
	fs.StringVar(&cfg.PaymentAPIURL, "payment-api-url", cfg.PaymentAPIURL, "Base URL of the payment API (defaults to the API URL)")
	fs.DurationVar(&cfg.SessionIdleTTL, "session-idle-ttl", cfg.SessionIdleTTL, "Idle time before an in-memory session is disposed")
	fs.DurationVar(&cfg.SessionRetention, "session-retention", cfg.SessionRetention, "Idle time before stored session values are purged")
	fs.StringVar(&cfg.ThankYouURL, "thank-you-url", cfg.ThankYouURL, "Redirect target when the page URL has no onboarding segment")
	fs.DurationVar(&cfg.VerifyPollInterval, "verify-poll-interval", cfg.VerifyPollInterval, "Email verification poll interval")
	fs.DurationVar(&cfg.ResendCooldown, "resend-cooldown", cfg.ResendCooldown, "Cooldown before a verification email can be resent")
	fs.DurationVar(&cfg.GatewayTimeout, "gateway-timeout", cfg.GatewayTimeout, "Timeout of one remote API call")
	fs.IntVar(&cfg.GatewayMaxAttempts, "gateway-max-attempts", cfg.GatewayMaxAttempts, "Attempts for idempotent remote reads")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.DefaultLocale, "default-locale", cfg.DefaultLocale, "Locale used without Accept-Language")
	fs.BoolVar(&cfg.Probe, "probe", false, "Check the local health endpoint and exit")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", 3*time.Second, "Health probe timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the onboarding runtime, or probes a running one when Probe
// is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Probe {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.HealthPort)
		return platformgrpc.Probe(ctx, addr, onboardingserver.HealthService, cfg.ProbeTimeout)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOnboarding, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return onboardingserver.Run(ctx, onboardingserver.RuntimeConfig{
			HTTPAddr:            cfg.HTTPAddr,
			HealthPort:          cfg.HealthPort,
			StoreDriver:         cfg.StoreDriver,
			DBPath:              cfg.DBPath,
			APIURL:              cfg.APIURL,
			PaymentAPIURL:       cfg.PaymentAPIURL,
			SessionSecret:       cfg.SessionSecret,
			SessionIdleTTL:      cfg.SessionIdleTTL,
			SessionRetention:    cfg.SessionRetention,
			ThankYouURL:         cfg.ThankYouURL,
			VerifyPollInterval:  cfg.VerifyPollInterval,
			ResendCooldown:      cfg.ResendCooldown,
			GatewayTimeout:      cfg.GatewayTimeout,
			GatewayMaxAttempts:  cfg.GatewayMaxAttempts,
			DefaultLocale:       cfg.DefaultLocale,
			TrustForwardedProto: cfg.TrustForwardedProto,
			Logger:              logger,
		})
	})
}
