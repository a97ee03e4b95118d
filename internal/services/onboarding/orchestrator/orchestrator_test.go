package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway/gatewaytest"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/session"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/memory"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	sess  *session.Context
	store *storage.Session
	raw   *memory.Store
	view  *view.Recorder
	gw    *gatewaytest.Fake
	orch  *Orchestrator
}

func newFixture(t *testing.T, gw *gatewaytest.Fake, trial bool) *fixture {
	t.Helper()
	raw := memory.New()
	sess := session.New("sess-1", raw, zap.NewNop())
	sess.Init(context.Background())
	t.Cleanup(sess.Dispose)

	rec := view.NewRecorder()
	f := &fixture{
		sess:  sess,
		store: sess.Store(),
		raw:   raw,
		view:  rec,
		gw:    gw,
		orch: New(sess, rec, gw, Config{
			PollInterval:   5 * time.Millisecond,
			ResendCooldown: 40 * time.Millisecond,
			CooldownTick:   10 * time.Millisecond,
			ThankYouURL:    "/danke",
			Now:            func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		}),
	}
	ctx := context.Background()
	for key, value := range map[string]any{
		storage.KeySelectedCourses:        []string{"STRESS", "FITNESS"},
		storage.KeyRecommendedCourses:     []string{"STRESS", "FITNESS"},
		storage.KeyPricing:                gw.PricingData,
		storage.KeyTrial:                  trial,
		storage.KeySelectedHealthProvider: "aok",
		storage.KeyCurrentStep:            int(domain.StepAccountAndPayment),
	} {
		if err := f.store.Save(ctx, key, value); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	return f
}

func (f *fixture) do(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	var out error
	if err := f.sess.Do(func() error {
		out = fn(context.Background())
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	return out
}

func (f *fixture) model(t *testing.T) view.Model {
	t.Helper()
	var m view.Model
	f.do(t, func(context.Context) error {
		m = f.view.Model()
		return nil
	})
	return m
}

func (f *fixture) eventually(t *testing.T, what string, cond func(view.Model) bool) view.Model {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m := f.model(t)
		if cond(m) {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %+v", what, m)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) has(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := f.raw.Get(context.Background(), "sess-1", key)
	if err != nil {
		t.Fatalf("Get %s: %v", key, err)
	}
	return ok
}

func sampleDraft() domain.UserDraft {
	return domain.UserDraft{
		NamePrefix:            "frau",
		FirstName:             "Erika",
		LastName:              "Mustermann",
		DateOfBirth:           "1980-04-02",
		Email:                 "erika@example.de",
		Password:              "geheim123",
		CommunicationViaEmail: true,
		PrivacyPolicy:         true,
	}
}

func TestSubmitTrialCompletesAndRedirects(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFixture(t, gw, true)
	if err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	reqs := gw.CreateRequests()
	if len(reqs) != 1 || !reqs[0].IsTrial {
		t.Fatalf("create requests = %+v, want one trial request", reqs)
	}
	if got := gw.CompletedAsTrial(); !cmp.Equal(got, []bool{true}) {
		t.Fatalf("completed as trial = %v, want [true]", got)
	}
	if gw.Count("CreatePaymentIntent") != 0 {
		t.Fatal("trial must not create a payment intent")
	}
	m := f.model(t)
	if m.Redirect != "/danke" {
		t.Fatalf("redirect = %q, want /danke", m.Redirect)
	}
	for _, key := range []string{storage.KeyTrial, storage.KeyUserID, storage.KeyCurrentStep, storage.KeySelectedCourses} {
		if f.has(t, key) {
			t.Fatalf("%s survived completion", key)
		}
	}
}

func TestFinishRunsHookOnlyOnCompletion(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.CompleteErr = gatewaytest.ErrOffline
	f := newFixture(t, gw, true)
	finished := 0
	f.orch.OnFinish(func() { finished++ })

	_ = f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	if finished != 0 {
		t.Fatalf("finish hook ran %d times after a failed completion", finished)
	}

	gw.CompleteErr = nil
	if err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if finished != 1 {
		t.Fatalf("finish hook ran %d times, want 1", finished)
	}
	m := f.model(t)
	if m.Payment.Open || m.Verification.Open || !m.Submit.Enabled {
		t.Fatalf("model after finish = payment %v verification %v submit %+v", m.Payment.Open, m.Verification.Open, m.Submit)
	}
}

func TestSubmitTrialCompletionFailureIsRetryable(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.CompleteErr = gatewaytest.ErrOffline
	f := newFixture(t, gw, true)
	err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	if apperrors.LocalizationKey(err) != domain.MsgTrialCompletion {
		t.Fatalf("error key = %q, want %q", apperrors.LocalizationKey(err), domain.MsgTrialCompletion)
	}
	m := f.model(t)
	if m.Redirect != "" {
		t.Fatalf("redirect = %q, want none", m.Redirect)
	}
	if !m.Submit.Enabled {
		t.Fatal("submit stays disabled after failure")
	}
	if got := m.Errors[domain.StepAccountAndPayment]; !cmp.Equal(got, []string{domain.MsgTrialCompletion}) {
		t.Fatalf("errors = %v", got)
	}

	gw.CompleteErr = nil
	if err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) }); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if gw.Count("CreateUser") != 2 {
		t.Fatalf("CreateUser calls = %d, want 2", gw.Count("CreateUser"))
	}
	if got := f.model(t).Redirect; got != "/danke" {
		t.Fatalf("redirect = %q, want /danke", got)
	}
}

func TestPaidFlowSucceeded(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFixture(t, gw, false)
	if err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	m := f.model(t)
	if !m.Payment.Open || m.Payment.ClientSecret != "pi_secret_1" {
		t.Fatalf("payment = %+v, want open with secret", m.Payment)
	}
	if m.Payment.AmountText != "179,80 €" {
		t.Fatalf("amount text = %q, want 179,80 €", m.Payment.AmountText)
	}
	if m.Payment.Billing != (view.Billing{Name: "Erika Mustermann", Email: "erika@example.de", Country: "DE"}) {
		t.Fatalf("billing = %+v", m.Payment.Billing)
	}
	intents := gw.IntentRequests()
	if len(intents) != 1 || intents[0].Amount != 17980 || intents[0].UserID != "user-1" {
		t.Fatalf("intent requests = %+v", intents)
	}

	var started, again bool
	f.do(t, func(ctx context.Context) error {
		started, _ = f.orch.BeginPayment(ctx)
		again, _ = f.orch.BeginPayment(ctx)
		return nil
	})
	if !started || again {
		t.Fatalf("BeginPayment = %v then %v, want true then false", started, again)
	}

	if err := f.do(t, func(ctx context.Context) error {
		return f.orch.ConfirmPayment(ctx, PaymentResult{PaymentIntentID: "pi_1", Status: domain.PaymentSucceeded})
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	for _, call := range []string{"PurchaseAndInvoice", "SendWelcomeEmail", "CompleteOnboarding"} {
		if gw.Count(call) != 1 {
			t.Fatalf("%s calls = %d, want 1", call, gw.Count(call))
		}
	}
	if got := gw.CompletedAsTrial(); !cmp.Equal(got, []bool{false}) {
		t.Fatalf("completed as trial = %v, want [false]", got)
	}
	m = f.model(t)
	if m.Redirect != "/danke" || m.Payment.Open {
		t.Fatalf("model = %+v, want redirect with payment closed", m)
	}
	if f.has(t, storage.KeyPaymentSuccess) || f.has(t, storage.KeyInvoiceURL) {
		t.Fatal("payment keys survived completion")
	}
}

func TestPaidFlowProcessingSkipsFinalization(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	if err := f.do(t, func(ctx context.Context) error {
		return f.orch.ConfirmPayment(ctx, PaymentResult{PaymentIntentID: "pi_2", Status: domain.PaymentProcessing})
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if gw.Count("PurchaseAndInvoice") != 0 || gw.Count("CompleteOnboarding") != 0 {
		t.Fatalf("calls = %v, want no finalization", gw.Calls())
	}
	m := f.model(t)
	if m.Redirect != "/danke" || m.Notice != domain.MsgSepaProcessing {
		t.Fatalf("redirect = %q notice = %q", m.Redirect, m.Notice)
	}
}

func TestPaidFlowFinalizeFailureStillRedirects(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.InvoiceErr = gatewaytest.ErrOffline
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	if err := f.do(t, func(ctx context.Context) error {
		return f.orch.ConfirmPayment(ctx, PaymentResult{PaymentIntentID: "pi_3", Status: domain.PaymentSucceeded})
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if gw.Count("SendWelcomeEmail") != 1 || gw.Count("CompleteOnboarding") != 1 {
		t.Fatalf("calls = %v, want welcome and completion after invoice failure", gw.Calls())
	}
	m := f.model(t)
	if m.Notice != domain.MsgFinalize || m.Redirect != "/danke" {
		t.Fatalf("notice = %q redirect = %q", m.Notice, m.Redirect)
	}
}

func TestPaymentFailuresAllowRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  PaymentResult
		wantKey string
	}{
		{name: "widget error", result: PaymentResult{Error: "Karte abgelehnt"}, wantKey: domain.MsgPayment},
		{name: "needs method", result: PaymentResult{PaymentIntentID: "pi_4", Status: domain.PaymentRequiresMethod}, wantKey: domain.MsgPaymentIncomplete},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gw := gatewaytest.New()
			f := newFixture(t, gw, false)
			f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
			err := f.do(t, func(ctx context.Context) error {
				if _, err := f.orch.BeginPayment(ctx); err != nil {
					return err
				}
				return f.orch.ConfirmPayment(ctx, tc.result)
			})
			if !apperrors.Is(err, apperrors.KindPayment) {
				t.Fatalf("error = %v, want payment kind", err)
			}
			m := f.model(t)
			if !m.Payment.Open || m.Payment.Processing || m.Payment.ErrorKey != tc.wantKey {
				t.Fatalf("payment = %+v", m.Payment)
			}
			if tc.result.Error != "" && m.Payment.ErrorText != tc.result.Error {
				t.Fatalf("error text = %q, want %q", m.Payment.ErrorText, tc.result.Error)
			}
			if m.Redirect != "" {
				t.Fatalf("redirect = %q, want none", m.Redirect)
			}
			var again bool
			f.do(t, func(ctx context.Context) error {
				again, _ = f.orch.BeginPayment(ctx)
				return nil
			})
			if !again {
				t.Fatal("BeginPayment refused after a failed attempt")
			}
		})
	}
}

func TestClosePaymentReenablesSubmit(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	f.do(t, func(ctx context.Context) error { return f.orch.ClosePayment(ctx) })
	m := f.model(t)
	if m.Payment.Open || !m.Submit.Enabled {
		t.Fatalf("payment = %+v submit = %+v", m.Payment, m.Submit)
	}
}

func emailInUse() error {
	return &gateway.EnvelopeError{Endpoint: "createUser", StatusCode: 400, Message: "auth/email-already-in-use"}
}

func TestEmailInUseReusesLocalAccount(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.CreateUserFunc = func(gateway.CreateUserRequest) (domain.AccountRecord, error) { return domain.AccountRecord{}, emailInUse() }
	f := newFixture(t, gw, false)
	ctx := context.Background()
	if err := f.store.SaveAccount(ctx, domain.AccountRecord{UserID: "user-9", Success: true}); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	draft := sampleDraft()
	draft.Password = ""
	for range 2 {
		if err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, draft) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		var rec domain.AccountRecord
		if _, err := f.store.Load(ctx, storage.KeyCreateUserResponse, &rec); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if rec != (domain.AccountRecord{UserID: "user-9", Success: true}) {
			t.Fatalf("account = %+v, want user-9", rec)
		}
	}
	for _, req := range gw.CreateRequests() {
		if req.Password != "" {
			t.Fatal("password sent for an existing account")
		}
	}
	if intents := gw.IntentRequests(); len(intents) == 0 || intents[0].UserID != "user-9" {
		t.Fatalf("intent requests = %+v", intents)
	}
}

func TestEmailInUseWithoutLocalAccountBlocks(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.CreateUserFunc = func(gateway.CreateUserRequest) (domain.AccountRecord, error) { return domain.AccountRecord{}, emailInUse() }
	f := newFixture(t, gw, false)

	for range 2 {
		err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
		if !apperrors.Is(err, apperrors.KindConflict) {
			t.Fatalf("error = %v, want conflict", err)
		}
	}
	if gw.Count("CreateUser") != 1 {
		t.Fatalf("CreateUser calls = %d, want 1", gw.Count("CreateUser"))
	}
	if got := f.model(t).Errors[domain.StepAccountAndPayment]; !cmp.Equal(got, []string{domain.MsgUserExistsNoLocal}) {
		t.Fatalf("errors = %v", got)
	}

	f.do(t, func(context.Context) error {
		f.orch.Reset()
		return nil
	})
	gw.CreateUserFunc = nil
	if err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) }); err != nil {
		t.Fatalf("Submit after reset: %v", err)
	}
}

func TestCreateUserFailureIsSurfaced(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.CreateUserFunc = func(gateway.CreateUserRequest) (domain.AccountRecord, error) {
		return domain.AccountRecord{}, gatewaytest.ErrOffline
	}
	f := newFixture(t, gw, false)
	err := f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	if apperrors.LocalizationKey(err) != domain.MsgUserCreation {
		t.Fatalf("error key = %q", apperrors.LocalizationKey(err))
	}
	if f.has(t, storage.KeyUserID) {
		t.Fatal("user id stored after failed creation")
	}
}

func TestPasswordNeverPersisted(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error {
		f.sess.SetPendingPassword("geheim123")
		draft := sampleDraft()
		draft.Password = ""
		return f.orch.Submit(ctx, draft)
	})

	if reqs := gw.CreateRequests(); len(reqs) != 1 || reqs[0].Password != "geheim123" {
		t.Fatalf("create requests = %+v", reqs)
	}
	payload, _, _ := f.raw.Get(context.Background(), "sess-1", storage.KeyCreateUserPayload)
	if strings.Contains(string(payload), "geheim123") {
		t.Fatalf("payload persisted the password: %s", payload)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if _, ok := decoded["password"]; ok {
		t.Fatal("payload has a password key")
	}
	f.do(t, func(context.Context) error {
		if f.sess.PendingPassword() != "" {
			t.Error("pending password kept after account creation")
		}
		return nil
	})
	if !f.model(t).ClearPassword {
		t.Fatal("password field not cleared")
	}
}

func unverified(gw *gatewaytest.Fake) *atomic.Bool {
	flag := &atomic.Bool{}
	gw.VerifiedFunc = func(string) (bool, error) { return flag.Load(), nil }
	return flag
}

func TestVerificationSendFailureStartsNoTimers(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	unverified(gw)
	gw.SendErr = gatewaytest.ErrOffline
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })

	m := f.model(t)
	if !m.Verification.Open || !m.Verification.SendEnabled || m.Verification.Email != "erika@example.de" {
		t.Fatalf("verification = %+v", m.Verification)
	}
	f.do(t, func(ctx context.Context) error { return f.orch.SendVerification(ctx) })
	m = f.model(t)
	if m.Verification.ErrorKey != domain.MsgVerificationSend {
		t.Fatalf("error key = %q", m.Verification.ErrorKey)
	}
	f.do(t, func(context.Context) error {
		if f.sess.TickerActive(tickerPoll) || f.sess.TickerActive(tickerCooldown) {
			t.Error("timers started after a failed send")
		}
		return nil
	})
}

func TestVerificationPollResumesPayment(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	verified := unverified(gw)
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	f.do(t, func(ctx context.Context) error { return f.orch.SendVerification(ctx) })

	m := f.model(t)
	if m.Verification.StatusKey != domain.MsgVerifySent || m.Verification.ResendEnabled || m.Verification.Countdown == 0 {
		t.Fatalf("verification = %+v", m.Verification)
	}
	if gw.Count("CreatePaymentIntent") != 0 {
		t.Fatal("payment started before verification")
	}

	verified.Store(true)
	m = f.eventually(t, "payment after verification", func(m view.Model) bool { return m.Payment.Open })
	if m.Verification.Open {
		t.Fatal("verification still open")
	}
	f.do(t, func(context.Context) error {
		if f.sess.TickerActive(tickerPoll) || f.sess.TickerActive(tickerCooldown) {
			t.Error("timers still running after verification")
		}
		return nil
	})
}

func TestResendWaitsForCooldown(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	unverified(gw)
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	f.do(t, func(ctx context.Context) error { return f.orch.SendVerification(ctx) })
	f.do(t, func(ctx context.Context) error { return f.orch.ResendVerification(ctx) })
	if gw.Count("SendVerificationEmail") != 1 {
		t.Fatalf("sends = %d, want 1 during cooldown", gw.Count("SendVerificationEmail"))
	}

	f.eventually(t, "cooldown to elapse", func(m view.Model) bool { return m.Verification.ResendEnabled })
	f.do(t, func(ctx context.Context) error { return f.orch.ResendVerification(ctx) })
	if gw.Count("SendVerificationEmail") != 2 {
		t.Fatalf("sends = %d, want 2", gw.Count("SendVerificationEmail"))
	}
	m := f.model(t)
	if m.Verification.StatusKey != domain.MsgVerifyResent || m.Verification.ResendEnabled {
		t.Fatalf("verification = %+v", m.Verification)
	}
}

func TestCancelVerification(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	unverified(gw)
	f := newFixture(t, gw, false)
	f.do(t, func(ctx context.Context) error { return f.orch.Submit(ctx, sampleDraft()) })
	f.do(t, func(ctx context.Context) error { return f.orch.SendVerification(ctx) })
	f.do(t, func(ctx context.Context) error { return f.orch.CancelVerification(ctx) })

	m := f.model(t)
	if m.Verification.Open || !m.Submit.Enabled {
		t.Fatalf("verification = %+v submit = %+v", m.Verification, m.Submit)
	}
	if got := m.Errors[domain.StepAccountAndPayment]; !cmp.Equal(got, []string{domain.MsgVerificationCancel}) {
		t.Fatalf("errors = %v", got)
	}
	if !f.has(t, storage.KeyUserID) {
		t.Fatal("account dropped on cancel")
	}
	f.do(t, func(context.Context) error {
		if f.orch.VerificationOpen() || f.sess.TickerActive(tickerPoll) {
			t.Error("verification still pending after cancel")
		}
		return nil
	})
}
