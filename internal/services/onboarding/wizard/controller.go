// Package wizard is the step state machine of the onboarding flow. It owns
// the current step, runs validation on "next", persists progress and
// applies each step's entry hook.
//
// Every exported method runs inside the owning session's Do.
package wizard

import (
	"context"
	"slices"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	platformotel "github.com/louisbranch/onboarding.space/internal/platform/otel"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/session"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/validate"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Submitter takes over once the last step validates.
type Submitter interface {
	Submit(ctx context.Context, draft domain.UserDraft) error
	Reset()
}

// Config tunes the controller.
type Config struct {
	Locale language.Tag
	Now    func() time.Time
}

// stepDef pairs a step's entry hook with what it persists once valid.
type stepDef struct {
	enter  func(c *Controller, ctx context.Context) error
	commit func(c *Controller, ctx context.Context, res validate.Result, snap validate.Snapshot) error
}

var steps = map[domain.StepID]stepDef{
	domain.StepHealthProvider:    {enter: (*Controller).enterProvider, commit: (*Controller).commitProvider},
	domain.StepSurveyA:           {enter: (*Controller).enterSurveyA, commit: (*Controller).commitSurveyA},
	domain.StepSurveyB:           {enter: (*Controller).enterSurveyB, commit: (*Controller).commitSurveyB},
	domain.StepRecommendation:    {enter: (*Controller).enterRecommendation, commit: (*Controller).commitRecommendation},
	domain.StepConsent:           {enter: (*Controller).enterConsent, commit: (*Controller).commitConsent},
	domain.StepAccountAndPayment: {enter: (*Controller).enterAccount, commit: (*Controller).commitAccount},
}

// Controller drives one session's wizard.
type Controller struct {
	sess      *session.Context
	store     *storage.Session
	view      view.View
	gw        gateway.Gateway
	catalogs  *session.CatalogLoader
	submitter Submitter
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer

	step     domain.StepID
	started  bool
	chosen   string
	prefixes []domain.NamePrefix
}

// New builds a controller. catalogs may be shared between sessions.
func New(sess *session.Context, v view.View, gw gateway.Gateway, catalogs *session.CatalogLoader, submitter Submitter, cfg Config) *Controller {
	if cfg.Locale == language.Und {
		cfg.Locale = language.German
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if catalogs == nil {
		catalogs = session.NewCatalogLoader(gw.Providers)
	}
	return &Controller{
		sess:      sess,
		store:     sess.Store(),
		view:      v,
		gw:        gw,
		catalogs:  catalogs,
		submitter: submitter,
		cfg:       cfg,
		logger:    sess.Logger().Named("wizard"),
		tracer:    platformotel.Tracer("onboarding/wizard"),
	}
}

// Step returns the current step.
func (c *Controller) Step() domain.StepID { return c.step }

// Started reports whether Start ran.
func (c *Controller) Started() bool { return c.started }

// Rewind drops the in-memory wizard state once the flow has finished, so
// the next request starts over from whatever the store still holds.
func (c *Controller) Rewind() {
	c.started = false
	c.step = domain.FirstStep
	c.chosen = ""
	c.view.ShowForm(view.Form{NamePrefixes: c.prefixes})
	c.view.SetContinueEnabled(true)
}

// Start restores the saved step, falling back to the first one. Any
// password left in the stored draft is purged first.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.store.PurgePassword(ctx); err != nil {
		c.logger.Warn("purge stored password", zap.Error(err))
	}
	step, err := c.store.CurrentStep(ctx)
	if err != nil {
		c.logger.Warn("load current step", zap.Error(err))
	}
	c.started = true
	if err := c.GoTo(ctx, step); err != nil {
		return c.GoTo(ctx, domain.FirstStep)
	}
	return nil
}

// GoTo shows step, persists it and runs its entry hook. A step without a
// panel is reported and leaves the wizard where it was.
func (c *Controller) GoTo(ctx context.Context, step domain.StepID) error {
	panel, ok := domain.PanelFor(step)
	if !ok {
		c.logger.Error("step out of range", zap.Int("step", int(step)))
		return apperrors.E(apperrors.KindOutOfRange, "no panel for step "+strconv.Itoa(int(step)))
	}
	ctx, span := c.tracer.Start(ctx, "wizard.GoTo", trace.WithAttributes(attribute.String("step", step.String())))
	defer span.End()

	c.view.ShowStep(step, panel)
	c.step = step
	if err := c.store.SaveCurrentStep(ctx, step); err != nil {
		c.logger.Warn("save current step", zap.Int("step", int(step)), zap.Error(err))
	}
	if err := steps[step].enter(c, ctx); err != nil {
		span.RecordError(err)
		c.logger.Warn("step entry", zap.Int("step", int(step)), zap.Error(err))
	}
	c.enforce(ctx)
	return nil
}

// Next validates the current step against snap and advances on success.
// On the last step a valid form is handed to the submitter instead. An
// invalid step is not an error: the result carries the messages.
func (c *Controller) Next(ctx context.Context, snap validate.Snapshot) (validate.Result, error) {
	step := c.step
	ctx, span := c.tracer.Start(ctx, "wizard.Next", trace.WithAttributes(attribute.String("step", step.String())))
	defer span.End()

	userID, err := c.store.UserID(ctx)
	if err != nil {
		c.logger.Warn("resolve user id", zap.Error(err))
	}
	snap.Selected = c.knownSelection(ctx, step, snap.Selected)
	res := validate.Validate(step, snap, validate.Env{HasAccount: userID != "", Now: c.cfg.Now()})
	if !res.Valid {
		c.logger.Debug("step invalid", zap.Int("step", int(step)), zap.Strings("errors", res.Errors))
		c.view.ShowErrors(step, res.Errors, res.InvalidFields)
		return res, nil
	}
	c.view.ClearErrors(step)

	def := steps[step]
	if err := def.commit(c, ctx, res, snap); err != nil {
		span.RecordError(err)
		return res, err
	}
	// The last step hands over to the submitter, which may have finished
	// the flow and rewound the wizard already.
	if step == domain.LastStep {
		return res, nil
	}
	return res, c.GoTo(ctx, domain.Clamp(step+1))
}

// Prev steps back without validation.
func (c *Controller) Prev(ctx context.Context) error {
	return c.GoTo(ctx, domain.Clamp(c.step-1))
}

func (c *Controller) commitProvider(ctx context.Context, res validate.Result, _ validate.Snapshot) error {
	c.chosen = res.Provider
	if err := c.store.Save(ctx, storage.KeySelectedHealthProvider, res.Provider); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save provider", err)
	}
	return nil
}

func (c *Controller) commitSurveyA(ctx context.Context, _ validate.Result, snap validate.Snapshot) error {
	return c.saveAnswers(ctx, 0, storage.KeySurveyAnswers1, snap.Selected)
}

func (c *Controller) commitSurveyB(ctx context.Context, _ validate.Result, snap validate.Snapshot) error {
	return c.saveAnswers(ctx, 1, storage.KeySurveyAnswers2, snap.Selected)
}

func (c *Controller) commitRecommendation(ctx context.Context, _ validate.Result, snap validate.Snapshot) error {
	if err := c.store.Save(ctx, storage.KeySelectedCourses, snap.Selected); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save selection", err)
	}
	return nil
}

func (c *Controller) commitConsent(ctx context.Context, _ validate.Result, snap validate.Snapshot) error {
	_, err := c.store.MergeDraft(ctx, func(d *domain.UserDraft) {
		d.CommunicationViaEmail = snap.Consents[0]
		d.PrivacyPolicy = snap.Consents[1]
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save consents", err)
	}
	return nil
}

// commitAccount merges the form into the draft, keeps the password in
// memory only, and submits.
func (c *Controller) commitAccount(ctx context.Context, res validate.Result, _ validate.Snapshot) error {
	if res.Draft.Password != "" {
		c.sess.SetPendingPassword(res.Draft.Password)
	}
	draft, err := c.store.MergeDraft(ctx, func(d *domain.UserDraft) {
		for _, field := range domain.TextFields {
			if field == domain.FieldPassword {
				continue
			}
			if v, _ := res.Draft.Text(field); v != "" {
				d.SetText(field, v)
			}
		}
		d.CommunicationViaEmail = res.Draft.CommunicationViaEmail
		d.NewsletterSignUp = res.Draft.NewsletterSignUp
		d.PrivacyPolicy = res.Draft.PrivacyPolicy
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save draft", err)
	}
	c.view.ClearPassword()
	return c.submitter.Submit(ctx, draft)
}

// knownSelection reduces the checked ids of a survey or result step to
// distinct options that exist there, so the selection limits count what
// is stored. Other steps pass through.
func (c *Controller) knownSelection(ctx context.Context, step domain.StepID, selected []string) []string {
	var known func(string) bool
	switch step {
	case domain.StepSurveyA, domain.StepSurveyB:
		items := c.survey(ctx).Group(surveyGroup(step))
		known = func(id string) bool {
			_, ok := items.Lookup(id)
			return ok
		}
	case domain.StepRecommendation:
		recommended, err := c.store.Strings(ctx, storage.KeyRecommendedCourses)
		if err != nil {
			c.logger.Warn("load recommendation", zap.Error(err))
		}
		known = func(slug string) bool { return slices.Contains(recommended, slug) }
	default:
		return selected
	}
	kept := make([]string, 0, len(selected))
	for _, id := range selected {
		if slices.Contains(kept, id) {
			continue
		}
		if !known(id) {
			c.logger.Warn("unknown option dropped", zap.String("id", id), zap.Int("step", int(step)))
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

func surveyGroup(step domain.StepID) int {
	if step == domain.StepSurveyB {
		return 1
	}
	return 0
}

// saveAnswers stores the selected options of a survey group as answers.
// The ids were already reduced to known options.
func (c *Controller) saveAnswers(ctx context.Context, group int, key string, selected []string) error {
	items := c.survey(ctx).Group(group)
	answers := make([]domain.SurveyAnswer, 0, len(selected))
	for _, id := range selected {
		if item, ok := items.Lookup(id); ok {
			answers = append(answers, domain.SurveyAnswer{ID: item.ID, Type: item.Type})
		}
	}
	if err := c.store.Save(ctx, key, answers); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save answers", err)
	}
	return nil
}
