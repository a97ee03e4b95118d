package session

import (
	"context"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader shares one in-flight full provider catalog fetch between
// every session asking at the same time.
type CatalogLoader struct {
	group singleflight.Group
	fetch func(ctx context.Context) (domain.ProviderCatalog, error)
}

// NewCatalogLoader wraps fetch.
func NewCatalogLoader(fetch func(ctx context.Context) (domain.ProviderCatalog, error)) *CatalogLoader {
	return &CatalogLoader{fetch: fetch}
}

// Load returns the catalog, joining a fetch already in flight. The result is
// shared and must be treated as read-only. The shared fetch outlives ctx so
// other waiters still get it, but Load itself returns once ctx ends.
func (l *CatalogLoader) Load(ctx context.Context) (domain.ProviderCatalog, error) {
	ch := l.group.DoChan("providers", func() (any, error) {
		return l.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.ProviderCatalog), nil
	}
}
