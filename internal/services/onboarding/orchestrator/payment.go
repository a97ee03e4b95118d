package orchestrator

import (
	"context"
	"slices"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/checkout"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PaymentResult is what the payment widget reported after confirmation.
type PaymentResult struct {
	// Error is the widget's message when confirmation failed outright.
	Error           string               `json:"error,omitempty"`
	PaymentIntentID string               `json:"paymentIntentId,omitempty"`
	Status          domain.PaymentStatus `json:"status,omitempty"`
}

// startPayment requests a client secret for the selected courses and opens
// the payment widget.
func (o *Orchestrator) startPayment(ctx context.Context, userID string, draft domain.UserDraft) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.StartPayment", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	var pricing domain.Pricing
	if _, err := o.store.Load(ctx, storage.KeyPricing, &pricing); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgPayment, "load pricing", err)
	}
	selected, err := o.store.Strings(ctx, storage.KeySelectedCourses)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgPayment, "load selection", err)
	}
	amount := checkout.Total(pricing, len(selected))
	if amount <= 0 {
		return apperrors.EK(apperrors.KindPayment, domain.MsgPayment, "nothing to pay")
	}

	req := gateway.PaymentIntentRequest{
		Amount:      checkout.TotalCents(pricing, len(selected)),
		UserID:      userID,
		CourseSlugs: slices.Clone(selected),
	}
	if err := o.store.Save(ctx, storage.KeyPaymentIntentPayload, req); err != nil {
		o.logger.Warn("save payment intent payload", zap.Error(err))
	}
	intent, err := o.gw.CreatePaymentIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		if apperrors.Is(err, apperrors.KindPayment) {
			return err
		}
		return apperrors.Wrap(apperrors.KindPayment, domain.MsgPayment, "create payment intent", err)
	}
	if err := o.store.Save(ctx, storage.KeyPaymentIntentResponse, intent); err != nil {
		o.logger.Warn("save payment intent response", zap.Error(err))
	}

	o.payment = &pendingPayment{
		userID:   userID,
		amount:   amount,
		selected: selected,
		intent:   intent.ClientSecret,
		billing: view.Billing{
			Name:    fullName(draft),
			Email:   draft.Email,
			Country: BillingCountry,
		},
	}
	o.renderPayment("", "")
	return nil
}

// BeginPayment is the pay button. It returns false while a confirmation is
// already in flight so double clicks are dropped.
func (o *Orchestrator) BeginPayment(context.Context) (bool, error) {
	p := o.payment
	if p == nil {
		return false, apperrors.EK(apperrors.KindInvalidInput, domain.MsgPayment, "no payment pending")
	}
	if p.paying {
		return false, nil
	}
	p.paying = true
	o.renderPayment("", "")
	return true, nil
}

// ConfirmPayment applies the widget's outcome. Settled payments clear the
// wizard and redirect; anything else leaves the widget open for a retry.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, res PaymentResult) error {
	p := o.payment
	if p == nil {
		return apperrors.EK(apperrors.KindInvalidInput, domain.MsgPayment, "no payment pending")
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.ConfirmPayment", trace.WithAttributes(
		attribute.String("payment.status", string(res.Status)),
		attribute.String("payment.intent_id", res.PaymentIntentID),
	))
	defer span.End()

	switch {
	case res.Error != "":
		p.paying = false
		o.logger.Warn("payment failed", zap.String("message", res.Error))
		o.renderPayment(domain.MsgPayment, res.Error)
		return apperrors.EK(apperrors.KindPayment, domain.MsgPayment, res.Error)
	case !res.Status.Settled():
		p.paying = false
		o.logger.Warn("payment incomplete", zap.String("status", string(res.Status)))
		o.renderPayment(domain.MsgPaymentIncomplete, "")
		return apperrors.EK(apperrors.KindPayment, domain.MsgPaymentIncomplete, "payment status "+string(res.Status))
	}

	state := domain.PaymentState{
		PaymentIntentID: res.PaymentIntentID,
		Amount:          p.amount,
		Status:          res.Status,
		Timestamp:       o.cfg.Now().UTC(),
	}
	if err := o.store.Save(ctx, storage.KeyPaymentSuccess, state); err != nil {
		o.logger.Warn("save payment state", zap.Error(err))
	}

	if res.Status == domain.PaymentSucceeded {
		o.finalize(ctx, p, res.PaymentIntentID)
	} else {
		o.logger.Info("payment processing, finalization deferred", zap.String("payment_intent_id", res.PaymentIntentID))
		o.view.ShowNotice(domain.MsgSepaProcessing)
	}
	o.view.HidePayment()
	o.finish(ctx)
	return nil
}

// finalize runs invoice, welcome email and completion in order. The money
// is already captured, so failures are logged and noted, never fatal.
func (o *Orchestrator) finalize(ctx context.Context, p *pendingPayment, intentID string) {
	failed := false
	invoice, err := o.gw.PurchaseAndInvoice(ctx, gateway.InvoiceRequest{
		PaymentIntentID: intentID,
		Amount:          p.amount,
		UserID:          p.userID,
	})
	if err != nil {
		failed = true
		o.logger.Error("purchase and invoice", zap.String("user_id", p.userID), zap.Error(err))
	} else if invoice.PDFURL != "" {
		if err := o.store.Save(ctx, storage.KeyInvoiceURL, invoice.PDFURL); err != nil {
			o.logger.Warn("save invoice url", zap.Error(err))
		}
	}
	if err := o.gw.SendWelcomeEmail(ctx, p.userID, domain.UpperSlugs(p.selected)); err != nil {
		failed = true
		o.logger.Error("send welcome email", zap.String("user_id", p.userID), zap.Error(err))
	}
	if err := o.gw.CompleteOnboarding(ctx, p.userID, false); err != nil {
		failed = true
		o.logger.Error("complete onboarding", zap.String("user_id", p.userID), zap.Error(err))
	}
	if failed {
		o.view.ShowNotice(domain.MsgFinalize)
	}
}

// ClosePayment hides the widget and gives the submit control back.
func (o *Orchestrator) ClosePayment(context.Context) error {
	if o.payment != nil {
		o.payment.paying = false
	}
	o.stopVerificationTimers()
	o.view.HidePayment()
	o.view.SetSubmit(view.Submit{Enabled: true})
	return nil
}

func (o *Orchestrator) renderPayment(errKey, errText string) {
	p := o.payment
	if p == nil {
		return
	}
	o.view.ShowPayment(view.Payment{
		ClientSecret: p.intent,
		Amount:       p.amount,
		AmountText:   checkout.FormatAmount(o.cfg.Locale, p.amount),
		Billing:      p.billing,
		Processing:   p.paying,
		ErrorKey:     errKey,
		ErrorText:    errText,
	})
}
