// Package orchestrator sequences the end of the wizard: account creation,
// the email verification gate, then either trial completion or payment.
//
// Every method runs inside the owning session's Do.
package orchestrator

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	platformotel "github.com/louisbranch/onboarding.space/internal/platform/otel"
	"github.com/louisbranch/onboarding.space/internal/platform/timeouts"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/session"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Ticker names.
const (
	tickerCooldown = "resend-cooldown"
	tickerPoll     = "verify-poll"
)

// BillingCountry is sent with every payment confirmation.
const BillingCountry = "DE"

// Config tunes timing and destinations.
type Config struct {
	PollInterval   time.Duration
	ResendCooldown time.Duration
	CooldownTick   time.Duration
	ThankYouURL    string
	Locale         language.Tag
	Now            func() time.Time
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = timeouts.VerificationPoll
	}
	if c.ResendCooldown <= 0 {
		c.ResendCooldown = timeouts.ResendCooldown
	}
	if c.CooldownTick <= 0 {
		c.CooldownTick = timeouts.CooldownTick
	}
	if c.ThankYouURL == "" {
		c.ThankYouURL = "/vielen-dank"
	}
	if c.Locale == language.Und {
		c.Locale = language.German
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Orchestrator owns the submission flow of one session.
type Orchestrator struct {
	sess   *session.Context
	store  *storage.Session
	view   view.View
	gw     gateway.Gateway
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer

	// blocked is set when the email belongs to an account this browser
	// does not know; submission cannot succeed until a restart.
	blocked  bool
	verify   *pendingVerification
	payment  *pendingPayment
	finished func()
}

type pendingVerification struct {
	userID    string
	email     string
	countdown int
	sent      bool
	then      func(context.Context) error
}

type pendingPayment struct {
	userID   string
	amount   float64
	selected []string
	billing  view.Billing
	intent   string
	paying   bool
}

// New builds an orchestrator for sess.
func New(sess *session.Context, v view.View, gw gateway.Gateway, cfg Config) *Orchestrator {
	return &Orchestrator{
		sess:   sess,
		store:  sess.Store(),
		view:   v,
		gw:     gw,
		cfg:    cfg.normalized(),
		logger: sess.Logger().Named("orchestrator"),
		tracer: platformotel.Tracer("onboarding/orchestrator"),
	}
}

// OnFinish registers fn to run after a completed flow was cleared.
func (o *Orchestrator) OnFinish(fn func()) { o.finished = fn }

// Submit is the submission boundary for a validated sign-up. It disables
// the submit control, runs account creation and the verification gate, and
// on failure re-enables the control before surfacing the error.
func (o *Orchestrator) Submit(ctx context.Context, draft domain.UserDraft) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Submit")
	defer span.End()

	o.view.SetSubmit(view.Submit{Enabled: false, Loading: true})
	o.view.ClearErrors(domain.StepAccountAndPayment)
	if err := o.submit(ctx, draft); err != nil {
		span.RecordError(err)
		o.surface(err)
		return err
	}
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, draft domain.UserDraft) error {
	if o.blocked {
		return apperrors.EK(apperrors.KindConflict, domain.MsgUserExistsNoLocal, "account exists without local id")
	}
	trial, err := o.store.Bool(ctx, storage.KeyTrial)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "load trial flag", err)
	}
	userID, err := o.ensureAccount(ctx, draft, trial)
	if err != nil {
		return err
	}
	if trial {
		return o.afterVerification(ctx, userID, draft.Email, o.completeTrial)
	}
	return o.afterVerification(ctx, userID, draft.Email, func(ctx context.Context) error {
		return o.startPayment(ctx, userID, draft)
	})
}

// surface re-enables submission and shows err on the last step.
func (o *Orchestrator) surface(err error) {
	o.view.SetSubmit(view.Submit{Enabled: true})
	key := apperrors.LocalizationKey(err)
	if key == "" {
		key = domain.MsgUnknown
	}
	o.view.ShowErrors(domain.StepAccountAndPayment, []string{key}, nil)
	if apperrors.Is(err, apperrors.KindInvalidInput) || apperrors.Is(err, apperrors.KindCanceled) {
		o.logger.Info("submission stopped", zap.Error(err))
		return
	}
	o.logger.Error("submission failed", zap.Error(err))
}

// Reset forgets in-flight flow state, for a restart.
func (o *Orchestrator) Reset() {
	o.stopVerificationTimers()
	o.blocked = false
	o.verify = nil
	o.payment = nil
	o.view.HideVerification()
	o.view.HidePayment()
	o.view.SetSubmit(view.Submit{Enabled: true})
}

// finish clears the wizard keys and leaves for the thank-you page.
func (o *Orchestrator) finish(ctx context.Context) {
	if err := o.store.ClearAfterPayment(ctx); err != nil {
		o.logger.Error("clear after payment", zap.Error(err))
	}
	o.sess.PurgePassword()
	o.stopVerificationTimers()
	o.verify = nil
	o.payment = nil
	o.view.HideVerification()
	o.view.HidePayment()
	o.view.SetSubmit(view.Submit{Enabled: true})
	o.view.Redirect(domain.ThankYouURL(o.sess.PageURL(), o.cfg.ThankYouURL))
	if o.finished != nil {
		o.finished()
	}
}

func (o *Orchestrator) completeTrial(ctx context.Context) error {
	userID, err := o.store.UserID(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgTrialCompletion, "resolve user id", err)
	}
	if userID == "" {
		return apperrors.EK(apperrors.KindUnknown, domain.MsgTrialCompletion, "no user id after account creation")
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.CompleteTrial", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()
	if err := o.gw.CompleteOnboarding(ctx, userID, true); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(apperrors.KindUnavailable, domain.MsgTrialCompletion, "complete trial onboarding", err)
	}
	o.finish(ctx)
	return nil
}

func fullName(d domain.UserDraft) string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}
