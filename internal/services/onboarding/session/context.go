// Package session holds the per-browser-session context object: one lock
// serializing every entry point, named restartable tickers, tracked
// background work, and the in-memory provider catalog.
//
// Entry points (HTTP handlers, ticker callbacks, background completions)
// enter through Do. Code already running inside Do calls the other methods
// directly and must never call Do again.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"go.uber.org/zap"
)

// ErrDisposed is returned by Do after Dispose.
var ErrDisposed = errors.New("session disposed")

// Context is the explicit state of one wizard session.
type Context struct {
	id     string
	store  *storage.Session
	logger *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	disposed bool
	gen      uint64
	tickers  map[string]*ticker

	lastActive atomic.Int64

	catalog         domain.ProviderCatalog
	catalogLoading  bool
	pendingPassword string
	pageURL         string
}

type ticker struct {
	gen  uint64
	stop chan struct{}
}

// New builds a context bound to one session id. Call Init before use.
func New(id string, store storage.Store, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Context{
		id:      id,
		store:   storage.NewSession(store, id),
		logger:  logger.With(zap.String("session_id", id)),
		tickers: map[string]*ticker{},
	}
	c.Touch()
	return c
}

// Init starts the lifecycle. Background work and tickers stop when parent
// is done or Dispose is called.
func (c *Context) Init(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	c.ctx, c.cancel = context.WithCancel(parent)
}

// Dispose stops every ticker and background task and waits for them to
// return. It must not be called from inside Do.
func (c *Context) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	for name := range c.tickers {
		c.stopLocked(name)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Debug("session disposed")
}

// Do runs fn holding the session lock.
func (c *Context) Do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	return fn()
}

// ID returns the session id.
func (c *Context) ID() string { return c.id }

// Store returns the session-bound persistent store.
func (c *Context) Store() *storage.Session { return c.store }

// Logger returns the session logger.
func (c *Context) Logger() *zap.Logger { return c.logger }

// Background is the lifecycle context for work outliving a request.
func (c *Context) Background() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Touch marks user activity.
func (c *Context) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// IdleSince reports the last user activity.
func (c *Context) IdleSince() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Go runs fn in the background under the lifecycle context. Call it inside
// Do; fn applies its results through Do.
func (c *Context) Go(fn func(ctx context.Context)) {
	if c.disposed {
		return
	}
	ctx := c.Background()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

// StartTicker runs tick under the lock every interval until it returns
// false or the ticker is stopped. Starting a name that is already running
// replaces it. Call it inside Do.
func (c *Context) StartTicker(name string, every time.Duration, tick func(ctx context.Context) bool) {
	c.stopLocked(name)
	if c.disposed || every <= 0 {
		return
	}
	c.gen++
	t := &ticker{gen: c.gen, stop: make(chan struct{})}
	c.tickers[name] = t
	ctx := c.Background()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		clock := time.NewTicker(every)
		defer clock.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ctx.Done():
				return
			case <-clock.C:
			}
			keep := true
			err := c.Do(func() error {
				if cur, ok := c.tickers[name]; !ok || cur.gen != t.gen {
					keep = false
					return nil
				}
				if !tick(ctx) {
					c.stopLocked(name)
					keep = false
				}
				return nil
			})
			if err != nil || !keep {
				return
			}
		}
	}()
}

// StopTicker cancels a named ticker. Stopping an idle name is a no-op.
func (c *Context) StopTicker(name string) {
	c.stopLocked(name)
}

// TickerActive reports whether name is running.
func (c *Context) TickerActive(name string) bool {
	_, ok := c.tickers[name]
	return ok
}

func (c *Context) stopLocked(name string) {
	t, ok := c.tickers[name]
	if !ok {
		return
	}
	delete(c.tickers, name)
	close(t.stop)
}

// Catalog returns the full provider catalog once loaded.
func (c *Context) Catalog() (domain.ProviderCatalog, bool) {
	return c.catalog, c.catalog != nil
}

// SetCatalog stores the full provider catalog and ends loading.
func (c *Context) SetCatalog(catalog domain.ProviderCatalog) {
	c.catalog = catalog
	c.catalogLoading = false
}

// CatalogLoading reports an in-flight full catalog load.
func (c *Context) CatalogLoading() bool { return c.catalogLoading }

// SetCatalogLoading marks the full catalog load as started or abandoned.
func (c *Context) SetCatalogLoading(loading bool) { c.catalogLoading = loading }

// SetPendingPassword holds the password captured at submission in memory
// only, until the account exists.
func (c *Context) SetPendingPassword(password string) { c.pendingPassword = password }

// PendingPassword returns the captured password, if any.
func (c *Context) PendingPassword() string { return c.pendingPassword }

// PurgePassword forgets the captured password.
func (c *Context) PurgePassword() { c.pendingPassword = "" }

// SetPageURL records the browser page the wizard is embedded in.
func (c *Context) SetPageURL(url string) {
	if url != "" {
		c.pageURL = url
	}
}

// PageURL returns the last known embedding page.
func (c *Context) PageURL() string { return c.pageURL }
