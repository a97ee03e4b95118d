package app

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/onboarding.space/internal/platform/requestctx"
	"github.com/louisbranch/onboarding.space/internal/platform/timeouts"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/orchestrator"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/session"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/wizard"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// RegistryConfig tunes session lifetimes and the per-session wiring.
type RegistryConfig struct {
	// IdleTTL disposes in-memory sessions without activity for this long.
	IdleTTL time.Duration
	// Retention purges stored values of sessions untouched for this long,
	// when the store supports it.
	Retention    time.Duration
	Locale       language.Tag
	Orchestrator orchestrator.Config
	Now          func() time.Time
}

func (c RegistryConfig) normalized() RegistryConfig {
	if c.IdleTTL <= 0 {
		c.IdleTTL = timeouts.SessionIdle
	}
	if c.Locale == language.Und {
		c.Locale = language.German
	}
	if c.Orchestrator.Locale == language.Und {
		c.Orchestrator.Locale = c.Locale
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Orchestrator.Now == nil {
		c.Orchestrator.Now = c.Now
	}
	return c
}

// idlePurger is implemented by stores that can drop abandoned sessions.
type idlePurger interface {
	PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// sessionEntry is everything one browser session owns.
type sessionEntry struct {
	sess *session.Context
	view *view.Recorder
	ctrl *wizard.Controller
	orch *orchestrator.Orchestrator
}

// Registry keeps live sessions by id and disposes idle ones.
type Registry struct {
	base     context.Context
	store    storage.Store
	gw       gateway.Gateway
	catalogs *session.CatalogLoader
	cfg      RegistryConfig
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewRegistry builds a registry. Session lifecycles end with base.
func NewRegistry(base context.Context, store storage.Store, gw gateway.Gateway, cfg RegistryConfig, logger *zap.Logger) *Registry {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		base:     base,
		store:    store,
		gw:       gw,
		catalogs: session.NewCatalogLoader(gw.Providers),
		cfg:      cfg.normalized(),
		logger:   logger.Named("registry"),
		entries:  map[string]*sessionEntry{},
	}
}

// open returns the live entry for id, creating it when needed. A new entry
// picks up whatever the store still holds for id.
func (r *Registry) open(id string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	sess := session.New(id, r.store, r.logger.Named("session"))
	sess.Init(requestctx.WithSessionID(r.base, id))
	rec := view.NewRecorder()
	orch := orchestrator.New(sess, rec, r.gw, r.cfg.Orchestrator)
	ctrl := wizard.New(sess, rec, r.gw, r.catalogs, orch, wizard.Config{Locale: r.cfg.Locale, Now: r.cfg.Now})
	orch.OnFinish(ctrl.Rewind)
	e := &sessionEntry{sess: sess, view: rec, ctrl: ctrl, orch: orch}
	r.entries[id] = e
	r.logger.Debug("session opened", zap.String("session_id", id))
	return e
}

// forget drops e if it is still the live entry for id.
func (r *Registry) forget(id string, e *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep disposes sessions idle since before now minus the idle TTL and
// returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTTL)
	var idle []*sessionEntry
	r.mu.Lock()
	for id, e := range r.entries {
		if e.sess.IdleSince().Before(cutoff) {
			idle = append(idle, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		e.sess.Dispose()
	}
	if len(idle) > 0 {
		r.logger.Info("idle sessions disposed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Purge drops stored values of abandoned sessions when the store supports
// it and a retention is configured.
func (r *Registry) Purge(ctx context.Context, now time.Time) {
	purger, ok := r.store.(idlePurger)
	if !ok || r.cfg.Retention <= 0 {
		return
	}
	n, err := purger.PurgeIdle(ctx, now.Add(-r.cfg.Retention))
	if err != nil {
		r.logger.Warn("purge idle sessions", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("stored sessions purged", zap.Int64("rows", n))
	}
}

// RunSweeper sweeps and purges every interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = r.cfg.IdleTTL / 4
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := r.cfg.Now()
			r.Sweep(now)
			r.Purge(ctx, now)
		}
	}
}

// Close disposes every live session.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*sessionEntry{}
	r.mu.Unlock()
	for _, e := range entries {
		e.sess.Dispose()
	}
}
