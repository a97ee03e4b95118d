package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/platform/httpx"
	"github.com/louisbranch/onboarding.space/internal/platform/i18n/catalog"
	"github.com/louisbranch/onboarding.space/internal/platform/requestctx"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/orchestrator"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/session"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/validate"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/wizard"
	"go.uber.org/zap"
)

// HeaderPageURL carries the browser's current page URL. Referer is used
// when it is missing.
const HeaderPageURL = "X-Onboarding-Page"

const apiPrefix = "/api/onboarding/"

// HandlerConfig configures the HTTP API.
type HandlerConfig struct {
	// DefaultLocale is used when the request has no Accept-Language.
	DefaultLocale string
	// TrustForwardedProto marks the cookie Secure behind a TLS proxy.
	TrustForwardedProto bool
}

// Handler serves the wizard JSON API.
type Handler struct {
	registry *Registry
	tokens   *tokenCodec
	bundle   *catalog.Bundle
	cfg      HandlerConfig
	logger   *zap.Logger
}

func newHandler(registry *Registry, tokens *tokenCodec, bundle *catalog.Bundle, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if strings.TrimSpace(cfg.DefaultLocale) == "" {
		cfg.DefaultLocale = catalog.BaseLocale
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		tokens:   tokens,
		bundle:   bundle,
		cfg:      cfg,
		logger:   logger.Named("http"),
	}
}

// response is the body of every API call.
type response struct {
	State    view.Model        `json:"state"`
	Messages map[string]string `json:"messages,omitempty"`
	Result   *stepResult       `json:"result,omitempty"`
	Billing  *view.Billing     `json:"billing,omitempty"`
	Error    *httpx.ErrorBody  `json:"error,omitempty"`
}

type stepResult struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors,omitempty"`
	InvalidFields []string `json:"invalidFields,omitempty"`
}

type providerRequest struct {
	Key string `json:"key"`
}

type coursesRequest struct {
	Selected []string `json:"selected"`
}

// operation runs inside the session lock and may add to out.
type operation func(ctx context.Context, e *sessionEntry, out *response) error

// Routes returns the API mux wrapped in the shared middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	get := func(path string, op operation) {
		mux.Handle(apiPrefix+path, httpx.Chain(h.serve(op, nil), httpx.RequireMethod(http.MethodGet)))
	}
	post := func(path string, op operation) {
		mux.Handle(apiPrefix+path, httpx.Chain(h.serve(op, nil), httpx.RequireMethod(http.MethodPost)))
	}
	postJSON := func(path string, decode func(*http.Request) (operation, error)) {
		mux.Handle(apiPrefix+path, httpx.Chain(h.serve(nil, decode), httpx.RequireMethod(http.MethodPost)))
	}

	get("state", func(context.Context, *sessionEntry, *response) error { return nil })
	postJSON("next", h.step(false))
	postJSON("trial", h.step(true))
	post("prev", func(ctx context.Context, e *sessionEntry, _ *response) error { return e.ctrl.Prev(ctx) })
	post("redo-survey", func(ctx context.Context, e *sessionEntry, _ *response) error { return e.ctrl.RedoSurvey(ctx) })
	post("restart", func(ctx context.Context, e *sessionEntry, _ *response) error { return e.ctrl.Restart(ctx) })
	post("resume-verified", func(ctx context.Context, e *sessionEntry, _ *response) error {
		return e.ctrl.ResumeAfterVerification(ctx)
	})
	postJSON("provider", func(r *http.Request) (operation, error) {
		var req providerRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, e *sessionEntry, _ *response) error {
			return e.ctrl.SelectProvider(ctx, strings.TrimSpace(req.Key))
		}, nil
	})
	postJSON("courses", func(r *http.Request) (operation, error) {
		var req coursesRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, e *sessionEntry, _ *response) error {
			return e.ctrl.ToggleCourses(ctx, req.Selected)
		}, nil
	})
	postJSON("field", func(r *http.Request) (operation, error) {
		var req wizard.FieldUpdate
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, e *sessionEntry, _ *response) error {
			return e.ctrl.SaveField(ctx, req)
		}, nil
	})

	post("verification/send", func(ctx context.Context, e *sessionEntry, _ *response) error {
		return e.orch.SendVerification(ctx)
	})
	post("verification/resend", func(ctx context.Context, e *sessionEntry, _ *response) error {
		return e.orch.ResendVerification(ctx)
	})
	post("verification/cancel", func(ctx context.Context, e *sessionEntry, _ *response) error {
		return e.orch.CancelVerification(ctx)
	})

	post("payment/pay", func(ctx context.Context, e *sessionEntry, out *response) error {
		ok, err := e.orch.BeginPayment(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.EK(apperrors.KindConflict, domain.MsgPaymentProcessing, "payment confirmation already in flight")
		}
		billing := e.view.Model().Payment.Billing
		out.Billing = &billing
		return nil
	})
	postJSON("payment/confirm", func(r *http.Request) (operation, error) {
		var req orchestrator.PaymentResult
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, e *sessionEntry, _ *response) error {
			return e.orch.ConfirmPayment(ctx, req)
		}, nil
	})
	post("payment/close", func(ctx context.Context, e *sessionEntry, _ *response) error {
		return e.orch.ClosePayment(ctx)
	})

	return httpx.Chain(mux,
		httpx.RequestID(),
		httpx.RecoverPanic(h.logger),
		httpx.AccessLog(h.logger),
	)
}

// step validates a form snapshot and advances. Invalid input is reported
// in the result, not as an error.
func (h *Handler) step(trial bool) func(*http.Request) (operation, error) {
	return func(r *http.Request) (operation, error) {
		var snap validate.Snapshot
		if err := httpx.DecodeJSON(r, &snap); err != nil {
			return nil, err
		}
		return func(ctx context.Context, e *sessionEntry, out *response) error {
			var (
				res validate.Result
				err error
			)
			if trial {
				res, err = e.ctrl.StartTrial(ctx, snap)
			} else {
				res, err = e.ctrl.Next(ctx, snap)
			}
			out.Result = &stepResult{Valid: res.Valid, Errors: res.Errors, InvalidFields: res.InvalidFields}
			return err
		}, nil
	}
}

// serve decodes the request outside the session lock, then runs the
// operation inside it. Exactly one of op and decode is set.
func (h *Handler) serve(op operation, decode func(*http.Request) (operation, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := h.locale(r)
		run := op
		if decode != nil {
			decoded, err := decode(r)
			if err != nil {
				h.write(w, locale, &response{}, err)
				return
			}
			run = decoded
		}
		id := h.sessionID(w, r)
		out, err := h.run(httpx.RequestContext(r), id, pageURL(r), run)
		h.write(w, locale, out, err)
	})
}

// run executes op for the session. A session disposed between lookup and
// lock is reopened once.
func (h *Handler) run(ctx context.Context, id, page string, op operation) (*response, error) {
	ctx = requestctx.WithSessionID(ctx, id)
	out := &response{}
	var opErr error
	for attempt := 0; attempt < 2; attempt++ {
		e := h.registry.open(id)
		err := e.sess.Do(func() error {
			e.sess.Touch()
			if page != "" {
				e.sess.SetPageURL(page)
			}
			if !e.ctrl.Started() {
				if err := e.ctrl.Start(ctx); err != nil {
					return err
				}
			}
			opErr = op(ctx, e, out)
			out.State = e.view.TakeTransient()
			return nil
		})
		if errors.Is(err, session.ErrDisposed) {
			h.registry.forget(id, e)
			continue
		}
		if err != nil {
			return out, err
		}
		return out, opErr
	}
	return out, apperrors.EK(apperrors.KindUnavailable, domain.MsgUnknown, "session unavailable")
}

func (h *Handler) write(w http.ResponseWriter, locale string, out *response, err error) {
	status := http.StatusOK
	if err != nil {
		status = apperrors.HTTPStatus(err)
		key := apperrors.LocalizationKey(err)
		if key == "" {
			key = domain.MsgUnknown
		}
		out.Error = &httpx.ErrorBody{
			Kind:    string(apperrors.KindOf(err)),
			Key:     key,
			Message: h.bundle.Localize(locale, key),
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("onboarding request failed", zap.Error(err))
		} else {
			h.logger.Debug("onboarding request rejected", zap.Error(err))
		}
	}
	out.Messages = h.messages(locale, out)
	if werr := httpx.WriteJSON(w, status, out); werr != nil {
		h.logger.Warn("write response", zap.Error(werr))
	}
}

// messages localizes every message key the response refers to.
func (h *Handler) messages(locale string, out *response) map[string]string {
	msgs := map[string]string{}
	add := func(key string, args ...any) {
		if key != "" {
			msgs[key] = h.bundle.Localize(locale, key, args...)
		}
	}
	m := out.State
	for _, keys := range m.Errors {
		for _, key := range keys {
			add(key)
		}
	}
	add(m.Notice)
	add(m.Verification.StatusKey)
	add(m.Verification.ErrorKey)
	if m.Verification.Open && m.Verification.Countdown > 0 {
		add(domain.MsgVerifyCountdown, m.Verification.Countdown)
	}
	add(m.Payment.ErrorKey)
	if m.Payment.Open {
		add(domain.MsgPayNow)
		add(domain.MsgClosePayment)
	}
	if m.Checkout != nil {
		add(m.Checkout.ButtonKey)
	}
	if m.Recommendation != nil {
		add(m.Recommendation.Summary.AccessKey)
		if months := m.Recommendation.Summary.Months; months > 0 {
			add(domain.MsgMonths, months)
		}
	}
	if out.Result != nil {
		for _, key := range out.Result.Errors {
			add(key)
		}
	}
	if out.Error != nil {
		add(out.Error.Key)
	}
	if len(msgs) == 0 {
		return nil
	}
	return msgs
}

func (h *Handler) locale(r *http.Request) string {
	accept := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if accept == "" {
		return h.cfg.DefaultLocale
	}
	return h.bundle.Match(accept)
}

// sessionID returns the id from a valid cookie or starts a new session
// and sets its cookie.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		id, perr := h.tokens.Parse(c.Value)
		if perr == nil {
			return id
		}
		h.logger.Debug("session cookie rejected", zap.Error(perr))
	}
	id := uuid.NewString()
	token, err := h.tokens.Issue(id)
	if err != nil {
		h.logger.Error("issue session token", zap.Error(err))
		return id
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.ttl / time.Second),
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *Handler) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.cfg.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func pageURL(r *http.Request) string {
	if page := strings.TrimSpace(r.Header.Get(HeaderPageURL)); page != "" {
		return page
	}
	return strings.TrimSpace(r.Referer())
}
