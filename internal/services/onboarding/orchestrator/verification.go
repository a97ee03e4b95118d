package orchestrator

import (
	"context"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.uber.org/zap"
)

// afterVerification runs then immediately when the email is verified, or
// opens the verification modal and defers then until polling sees it.
func (o *Orchestrator) afterVerification(ctx context.Context, userID, email string, then func(context.Context) error) error {
	if o.emailVerified(ctx, userID) {
		return then(ctx)
	}
	o.stopVerificationTimers()
	o.verify = &pendingVerification{userID: userID, email: email, then: then}
	o.renderVerification("", "")
	return nil
}

// emailVerified treats every failure as "not yet".
func (o *Orchestrator) emailVerified(ctx context.Context, userID string) bool {
	ok, err := o.gw.IsEmailVerified(ctx, userID)
	if err != nil {
		o.logger.Warn("check email verification", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

// VerificationOpen reports whether the modal is waiting on the user.
func (o *Orchestrator) VerificationOpen() bool { return o.verify != nil }

// SendVerification sends the first link. On failure the modal stays open
// with an error and no timers start.
func (o *Orchestrator) SendVerification(ctx context.Context) error {
	if o.verify == nil {
		return apperrors.EK(apperrors.KindInvalidInput, domain.MsgUnknown, "no verification pending")
	}
	if err := o.gw.SendVerificationEmail(ctx, o.verify.userID); err != nil {
		o.logger.Error("send verification email", zap.Error(err))
		o.renderVerification("", domain.MsgVerificationSend)
		return nil
	}
	o.verify.sent = true
	o.startVerificationTimers()
	o.renderVerification(domain.MsgVerifySent, "")
	return nil
}

// ResendVerification sends another link once the cooldown has run out.
// Requests during the cooldown are ignored.
func (o *Orchestrator) ResendVerification(ctx context.Context) error {
	if o.verify == nil {
		return apperrors.EK(apperrors.KindInvalidInput, domain.MsgUnknown, "no verification pending")
	}
	if !o.verify.sent || o.verify.countdown > 0 {
		return nil
	}
	if err := o.gw.SendVerificationEmail(ctx, o.verify.userID); err != nil {
		o.logger.Error("resend verification email", zap.Error(err))
		o.renderVerification("", domain.MsgVerificationSend)
		return nil
	}
	o.startVerificationTimers()
	o.renderVerification(domain.MsgVerifyResent, "")
	return nil
}

// CancelVerification closes the modal and aborts the submission. Earlier
// state, including the created account, is kept.
func (o *Orchestrator) CancelVerification(context.Context) error {
	if o.verify == nil {
		return nil
	}
	o.stopVerificationTimers()
	o.verify = nil
	o.view.HideVerification()
	o.surface(apperrors.EK(apperrors.KindCanceled, domain.MsgVerificationCancel, "verification canceled"))
	return nil
}

// startVerificationTimers (re)starts the resend countdown and the status
// poll.
func (o *Orchestrator) startVerificationTimers() {
	v := o.verify
	v.countdown = int(o.cfg.ResendCooldown / o.cfg.CooldownTick)
	o.sess.StartTicker(tickerCooldown, o.cfg.CooldownTick, func(context.Context) bool {
		if o.verify != v {
			return false
		}
		v.countdown--
		o.renderVerification("", "")
		return v.countdown > 0
	})
	o.sess.StartTicker(tickerPoll, o.cfg.PollInterval, func(ctx context.Context) bool {
		if o.verify != v {
			return false
		}
		if !o.emailVerified(ctx, v.userID) {
			return true
		}
		o.logger.Info("email verified", zap.String("user_id", v.userID))
		o.stopVerificationTimers()
		o.verify = nil
		o.view.HideVerification()
		if err := v.then(ctx); err != nil {
			o.surface(err)
		}
		return false
	})
}

func (o *Orchestrator) stopVerificationTimers() {
	o.sess.StopTicker(tickerCooldown)
	o.sess.StopTicker(tickerPoll)
}

// renderVerification keeps the last status unless a new one is given.
func (o *Orchestrator) renderVerification(status, errKey string) {
	v := o.verify
	if v == nil {
		return
	}
	o.view.ShowVerification(view.Verification{
		Email:         v.email,
		StatusKey:     status,
		ErrorKey:      errKey,
		SendEnabled:   !v.sent,
		ResendEnabled: v.sent && v.countdown <= 0,
		Countdown:     max(v.countdown, 0),
		Polling:       o.sess.TickerActive(tickerPoll),
	})
}
