package wizard

import (
	"context"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/checkout"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/recommend"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// enterProvider lists provider keys right away, starts the full catalog
// load when nothing is cached, and refreshes the rest of the reference
// data.
func (c *Controller) enterProvider(ctx context.Context) error {
	keys, err := c.gw.ProviderKeys(ctx)
	if err != nil {
		c.logger.Warn("fetch provider keys", zap.Error(err))
		keys = nil
	}
	if c.chosen == "" {
		_, _ = c.store.Load(ctx, storage.KeySelectedHealthProvider, &c.chosen)
	}
	c.ensureCatalog(ctx)
	if len(keys) == 0 {
		if catalog, ok := c.sess.Catalog(); ok {
			keys = sortedKeys(catalog)
		}
	}
	c.view.ShowProviders(view.ProviderList{Keys: keys, Selected: c.chosen, Loading: c.sess.CatalogLoading()})
	if c.chosen != "" && !c.sess.CatalogLoading() {
		c.showProviderInfo(c.chosen)
	}
	c.refreshReference(ctx)
	return nil
}

// ensureCatalog restores the provider catalog from memory or the store, or
// loads it in the background and re-renders on arrival.
func (c *Controller) ensureCatalog(ctx context.Context) {
	if _, ok := c.sess.Catalog(); ok || c.sess.CatalogLoading() {
		return
	}
	var cached domain.ProviderCatalog
	if ok, err := c.store.Load(ctx, storage.KeyHealthProviders, &cached); err == nil && ok && len(cached) > 0 {
		c.sess.SetCatalog(cached)
		return
	}
	c.sess.SetCatalogLoading(true)
	c.sess.Go(func(bg context.Context) {
		catalog, err := c.catalogs.Load(bg)
		_ = c.sess.Do(func() error {
			c.applyCatalog(bg, catalog, err)
			return nil
		})
	})
}

func (c *Controller) applyCatalog(ctx context.Context, catalog domain.ProviderCatalog, err error) {
	if err != nil {
		// Not cached: the next visit to the first step fetches again.
		c.logger.Warn("fetch provider catalog", zap.Error(err))
		c.sess.SetCatalogLoading(false)
	} else {
		if err := c.store.Save(ctx, storage.KeyHealthProviders, catalog); err != nil {
			c.logger.Warn("cache provider catalog", zap.Error(err))
		}
		c.sess.SetCatalog(catalog)
	}
	if c.step != domain.StepHealthProvider {
		return
	}
	keys, kerr := c.gw.ProviderKeys(ctx)
	if kerr != nil || len(keys) == 0 {
		keys = sortedKeys(catalog)
	}
	c.view.ShowProviders(view.ProviderList{Keys: keys, Selected: c.chosen})
	if c.chosen != "" {
		c.showProviderInfo(c.chosen)
	}
}

// refreshReference fetches pricing, contraindications, courses and the
// survey in parallel. Failures keep whatever was stored before.
func (c *Controller) refreshReference(ctx context.Context) {
	var g errgroup.Group
	refresh := func(name, key string, fetch func(context.Context) (any, error)) {
		g.Go(func() error {
			v, err := fetch(ctx)
			if err != nil {
				c.logger.Warn("refresh reference data", zap.String("document", name), zap.Error(err))
				return nil
			}
			if err := c.store.Save(ctx, key, v); err != nil {
				c.logger.Warn("store reference data", zap.String("document", name), zap.Error(err))
			}
			return nil
		})
	}
	refresh("pricing", storage.KeyPricing, func(ctx context.Context) (any, error) { return c.gw.Pricing(ctx) })
	refresh("contraindications", storage.KeyContraindications, func(ctx context.Context) (any, error) { return c.gw.Contraindications(ctx) })
	refresh("courses", storage.KeyCourses, func(ctx context.Context) (any, error) { return c.gw.Courses(ctx) })
	refresh("survey", storage.KeyOnboardingSurvey, func(ctx context.Context) (any, error) { return c.gw.Survey(ctx) })
	_ = g.Wait()
}

func (c *Controller) enterSurveyA(ctx context.Context) error {
	return c.showSurvey(ctx, 0, storage.KeySurveyAnswers1)
}

func (c *Controller) enterSurveyB(ctx context.Context) error {
	return c.showSurvey(ctx, 1, storage.KeySurveyAnswers2)
}

func (c *Controller) showSurvey(ctx context.Context, group int, key string) error {
	answers, err := c.store.Answers(ctx, key)
	if err != nil {
		return err
	}
	selected := make([]string, 0, len(answers))
	for _, a := range answers {
		selected = append(selected, a.ID)
	}
	c.view.ShowSurvey(group+1, c.survey(ctx).Group(group).Items, selected)
	return nil
}

// enterRecommendation recomputes the recommendation from both answer
// groups. It overwrites the previous result and selection and leaves trial
// mode.
func (c *Controller) enterRecommendation(ctx context.Context) error {
	first, err := c.store.Answers(ctx, storage.KeySurveyAnswers1)
	if err != nil {
		return err
	}
	second, err := c.store.Answers(ctx, storage.KeySurveyAnswers2)
	if err != nil {
		return err
	}
	courses := c.courses(ctx)
	res := recommend.FromAnswers(first, second, courses)

	for key, value := range map[string]any{
		storage.KeySurveyTypeCounts:   res.Counts.Map(),
		storage.KeyRecommendedCourses: res.Courses,
		storage.KeySelectedCourses:    res.Courses,
		storage.KeyTrial:              false,
	} {
		if err := c.store.Save(ctx, key, value); err != nil {
			return err
		}
	}
	c.logger.Debug("recommended", zap.Strings("types", res.Types), zap.Strings("courses", res.Courses))
	c.showRecommendation(ctx, res.Courses, res.Courses)
	return nil
}

func (c *Controller) showRecommendation(ctx context.Context, recommended, selected []string) {
	var shown []domain.Course
	for _, course := range c.courses(ctx) {
		for _, slug := range recommended {
			if course.Slug == slug {
				shown = append(shown, course)
				break
			}
		}
	}
	c.view.ShowRecommendation(view.Recommendation{
		Courses:  shown,
		Selected: selected,
		Summary:  checkout.Summarize(c.cfg.Locale, selected, c.pricing(ctx), c.provider(ctx)),
	})
	c.view.SetContinueEnabled(len(selected) > 0)
}

func (c *Controller) enterConsent(ctx context.Context) error {
	recommended, err := c.store.Strings(ctx, storage.KeyRecommendedCourses)
	if err != nil {
		return err
	}
	var contra []domain.Contraindication
	if _, err := c.store.Load(ctx, storage.KeyContraindications, &contra); err != nil {
		return err
	}
	c.view.ShowContraindications(checkout.FilterContraindications(contra, recommended))
	return c.restoreForm(ctx, false)
}

func (c *Controller) enterAccount(ctx context.Context) error {
	selected, err := c.store.Strings(ctx, storage.KeySelectedCourses)
	if err != nil {
		return err
	}
	trial, err := c.store.Bool(ctx, storage.KeyTrial)
	if err != nil {
		return err
	}
	c.view.ShowCheckout(checkout.Build(c.cfg.Locale, c.courses(ctx), selected, c.pricing(ctx), trial))
	c.view.SetSubmit(view.Submit{Enabled: true})
	return c.restoreForm(ctx, true)
}

// restoreForm shows the saved draft once the salutation options are known.
// A saved salutation that is no longer offered is dropped.
func (c *Controller) restoreForm(ctx context.Context, consents bool) error {
	prefixes := c.namePrefixes(ctx)
	c.enforce(ctx)
	draft, err := c.store.Draft(ctx)
	if err != nil {
		return err
	}
	if draft.NamePrefix != "" && !domain.ContainsPrefix(prefixes, draft.NamePrefix) {
		draft.NamePrefix = ""
	}
	userID, err := c.store.UserID(ctx)
	if err != nil {
		return err
	}
	exists := userID != ""
	c.view.ShowForm(view.Form{
		Draft:           draft,
		NamePrefixes:    prefixes,
		AccountExists:   exists,
		FieldsLocked:    exists,
		PasswordHidden:  exists,
		RestoreConsents: consents,
	})
	return nil
}

// enforce re-applies the standing form rules: no password survives in the
// store or the input, and the communication opt-in stays checked.
func (c *Controller) enforce(ctx context.Context) {
	if err := c.store.PurgePassword(ctx); err != nil {
		c.logger.Warn("purge stored password", zap.Error(err))
	}
	if c.step < domain.StepConsent {
		return
	}
	c.view.ClearPassword()
	draft, err := c.store.Draft(ctx)
	if err != nil || draft.CommunicationViaEmail {
		return
	}
	if _, err := c.store.MergeDraft(ctx, func(d *domain.UserDraft) { d.CommunicationViaEmail = true }); err != nil {
		c.logger.Warn("recheck communication opt-in", zap.Error(err))
	}
}
