package wizard

import (
	"context"
	"slices"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/checkout"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"go.uber.org/zap"
)

// Loaders read the refreshed reference data back from the store. A missing
// or broken value yields the zero value, which the hooks render as empty.

func (c *Controller) survey(ctx context.Context) domain.SurveyDefinition {
	var v domain.SurveyDefinition
	if _, err := c.store.Load(ctx, storage.KeyOnboardingSurvey, &v); err != nil {
		c.logger.Warn("load survey", zap.Error(err))
	}
	return v
}

func (c *Controller) courses(ctx context.Context) []domain.Course {
	var v []domain.Course
	if _, err := c.store.Load(ctx, storage.KeyCourses, &v); err != nil {
		c.logger.Warn("load courses", zap.Error(err))
	}
	return v
}

func (c *Controller) pricing(ctx context.Context) domain.Pricing {
	var v domain.Pricing
	if _, err := c.store.Load(ctx, storage.KeyPricing, &v); err != nil {
		c.logger.Warn("load pricing", zap.Error(err))
	}
	return v
}

// provider returns the selected provider's record, empty while the catalog
// is unknown.
func (c *Controller) provider(ctx context.Context) domain.HealthProvider {
	key := c.chosen
	if key == "" {
		_, _ = c.store.Load(ctx, storage.KeySelectedHealthProvider, &key)
	}
	catalog, ok := c.sess.Catalog()
	if !ok {
		_, _ = c.store.Load(ctx, storage.KeyHealthProviders, &catalog)
	}
	return catalog[key]
}

// namePrefixes fetches the salutation options once per session.
func (c *Controller) namePrefixes(ctx context.Context) []domain.NamePrefix {
	if c.prefixes != nil {
		return c.prefixes
	}
	prefixes, err := c.gw.NamePrefixes(ctx)
	if err != nil {
		c.logger.Warn("fetch name prefixes", zap.Error(err))
		return nil
	}
	c.prefixes = prefixes
	return prefixes
}

func (c *Controller) showProviderInfo(key string) {
	catalog, _ := c.sess.Catalog()
	c.view.ShowProviderInfo(checkout.DescribeProvider(key, catalog[key]))
}

func sortedKeys(catalog domain.ProviderCatalog) []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
