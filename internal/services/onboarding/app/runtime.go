// Package app wires the onboarding wizard into a running service: the
// session store, the remote gateway, the session registry, the HTTP JSON
// API and the gRPC health endpoint.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/onboarding.space/internal/platform/grpc"
	"github.com/louisbranch/onboarding.space/internal/platform/httpclient"
	"github.com/louisbranch/onboarding.space/internal/platform/i18n/catalog"
	"github.com/louisbranch/onboarding.space/internal/platform/logging"
	"github.com/louisbranch/onboarding.space/internal/platform/timeouts"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/orchestrator"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	boltstore "github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/bbolt"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/memory"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/sqlite"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBbolt  = "bbolt"
	DriverMemory = "memory"
)

// HealthService is the named service reported by the health endpoint.
const HealthService = "onboarding.runtime"

const (
	defaultHTTPAddr   = ":8095"
	defaultHealthPort = 8096
	defaultDBPath     = "data/onboarding.db"
	defaultCookieTTL  = 30 * 24 * time.Hour
)

// RuntimeConfig controls service startup and dependencies.
type RuntimeConfig struct {
	HTTPAddr    string
	HealthPort  int
	StoreDriver string
	DBPath      string

	APIURL        string
	PaymentAPIURL string

	SessionSecret    string
	SessionIdleTTL   time.Duration
	SessionRetention time.Duration

	ThankYouURL        string
	VerifyPollInterval time.Duration
	ResendCooldown     time.Duration
	GatewayTimeout     time.Duration
	GatewayMaxAttempts int

	DefaultLocale       string
	TrustForwardedProto bool

	Logger *zap.Logger
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultHealthPort
	}
	if strings.TrimSpace(cfg.StoreDriver) == "" {
		cfg.StoreDriver = DriverSQLite
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if strings.TrimSpace(cfg.PaymentAPIURL) == "" {
		cfg.PaymentAPIURL = cfg.APIURL
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = timeouts.SessionIdle
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = timeouts.GatewayRequest
	}
	if strings.TrimSpace(cfg.DefaultLocale) == "" {
		cfg.DefaultLocale = catalog.BaseLocale
	}
	cfg.Logger = logging.OrNop(cfg.Logger)
	return cfg
}

// runtime is the assembled service without its listeners.
type runtime struct {
	cfg      RuntimeConfig
	store    storage.Store
	registry *Registry
	handler  *Handler
	logger   *zap.Logger
}

// Run starts the HTTP API and the health endpoint and blocks until ctx
// ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	defer httpListener.Close()

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	defer healthListener.Close()

	return serve(ctx, cfg, httpListener, healthListener)
}

func serve(ctx context.Context, cfg RuntimeConfig, httpListener, healthListener net.Listener) error {
	rt, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		rt.registry.RunSweeper(sweepCtx, 0)
	}()
	defer func() {
		stopSweep()
		<-sweepDone
	}()

	healthServer := platformgrpc.NewHealthServer(HealthService)
	healthServer.Serve(healthListener)
	defer func() {
		if err := healthServer.Stop(); err != nil {
			rt.logger.Warn("stop health server", zap.Error(err))
		}
	}()

	server := &http.Server{
		Handler:           rt.handler.Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(httpListener)
	}()
	rt.logger.Info("onboarding listening",
		zap.String("http_addr", httpListener.Addr().String()),
		zap.String("health_addr", healthListener.Addr().String()),
		zap.String("store_driver", rt.cfg.StoreDriver),
	)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	<-serveErr
	return nil
}

// build opens the store and assembles the registry and handler.
func build(ctx context.Context, cfg RuntimeConfig) (*runtime, error) {
	cfg = cfg.normalized()
	logger := cfg.Logger.Named("onboarding")
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("api url is required")
	}
	locale, err := language.Parse(cfg.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("parse default locale %q: %w", cfg.DefaultLocale, err)
	}
	bundle, err := catalog.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load message catalogs: %w", err)
	}
	secret, err := sessionSecret(cfg.SessionSecret, logger)
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenCodec(secret, sessionCookieTTL(cfg), nil)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.StoreDriver, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	retry := httpclient.DefaultRetryConfig()
	if cfg.GatewayMaxAttempts > 0 {
		retry.MaxAttempts = cfg.GatewayMaxAttempts
	}
	client := httpclient.New(cfg.GatewayTimeout,
		httpclient.WithRetry(retry),
		httpclient.WithLogger(logger.Named("httpclient")),
	)
	gw := gateway.NewHTTP(client, gateway.Endpoints{APIBase: cfg.APIURL, PaymentBase: cfg.PaymentAPIURL})

	registry := NewRegistry(ctx, store, gw, RegistryConfig{
		IdleTTL:   cfg.SessionIdleTTL,
		Retention: cfg.SessionRetention,
		Locale:    locale,
		Orchestrator: orchestrator.Config{
			PollInterval:   cfg.VerifyPollInterval,
			ResendCooldown: cfg.ResendCooldown,
			ThankYouURL:    cfg.ThankYouURL,
			Locale:         locale,
		},
	}, logger)
	handler := newHandler(registry, tokens, bundle, HandlerConfig{
		DefaultLocale:       cfg.DefaultLocale,
		TrustForwardedProto: cfg.TrustForwardedProto,
	}, logger)

	return &runtime{
		cfg:      cfg,
		store:    store,
		registry: registry,
		handler:  handler,
		logger:   logger,
	}, nil
}

func (rt *runtime) close() {
	rt.registry.Close()
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("close session store", zap.Error(err))
	}
}

// openStore opens the configured session store driver.
func openStore(ctx context.Context, driver, path string) (storage.Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == DriverMemory {
		return memory.New(), nil
	}
	if driver != DriverSQLite && driver != DriverBbolt {
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session storage dir: %w", err)
		}
	}
	if driver == DriverBbolt {
		store, err := boltstore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bbolt session store: %w", err)
		}
		return store, nil
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite session store: %w", err)
	}
	return store, nil
}

// sessionSecret returns the configured secret, or a random one that does
// not survive restarts.
func sessionSecret(configured string, logger *zap.Logger) ([]byte, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn("no session secret configured, sessions will not survive a restart")
	return secret, nil
}

// sessionCookieTTL keeps the cookie at least as long as stored sessions.
func sessionCookieTTL(cfg RuntimeConfig) time.Duration {
	if cfg.SessionRetention > 0 {
		return cfg.SessionRetention
	}
	return defaultCookieTTL
}
