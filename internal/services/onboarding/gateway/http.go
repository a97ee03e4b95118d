package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/platform/httpclient"
	platformotel "github.com/louisbranch/onboarding.space/internal/platform/otel"
	"github.com/louisbranch/onboarding.space/internal/platform/requestctx"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTP implements Gateway over the remote JSON API.
type HTTP struct {
	client    *httpclient.Client
	endpoints Endpoints
	tracer    trace.Tracer
}

// NewHTTP builds an HTTP gateway.
func NewHTTP(client *httpclient.Client, endpoints Endpoints) *HTTP {
	return &HTTP{
		client:    client,
		endpoints: endpoints,
		tracer:    platformotel.Tracer("onboarding/gateway"),
	}
}

var _ Gateway = (*HTTP)(nil)

func (h *HTTP) ProviderKeys(ctx context.Context) ([]string, error) {
	env, err := h.get(ctx, "ProviderKeys", h.endpoints.ProviderKeys())
	if err != nil {
		return nil, err
	}
	var data struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, unavailable("ProviderKeys", fmt.Errorf("decode keys: %w", err))
	}
	return data.Keys, nil
}

func (h *HTTP) Providers(ctx context.Context) (domain.ProviderCatalog, error) {
	env, err := h.getDocument(ctx, "Providers", DocumentProviders)
	if err != nil {
		return nil, err
	}
	catalog, err := decodeProviders(env.Data)
	if err != nil {
		return nil, unavailable("Providers", err)
	}
	return catalog, nil
}

func (h *HTTP) Pricing(ctx context.Context) (domain.Pricing, error) {
	env, err := h.getDocument(ctx, "Pricing", DocumentPricing)
	if err != nil {
		return domain.Pricing{}, err
	}
	pricing, err := decodePricing(env.Data)
	if err != nil {
		return domain.Pricing{}, unavailable("Pricing", err)
	}
	return pricing, nil
}

func (h *HTTP) Courses(ctx context.Context) ([]domain.Course, error) {
	env, err := h.getDocument(ctx, "Courses", DocumentCourses)
	if err != nil {
		return nil, err
	}
	courses, err := decodeCourses(env.Data)
	if err != nil {
		return nil, unavailable("Courses", err)
	}
	return courses, nil
}

func (h *HTTP) NamePrefixes(ctx context.Context) ([]domain.NamePrefix, error) {
	env, err := h.getDocument(ctx, "NamePrefixes", DocumentNamePrefixes)
	if err != nil {
		return nil, err
	}
	prefixes, err := decodeNamePrefixes(env.Data)
	if err != nil {
		return nil, unavailable("NamePrefixes", err)
	}
	return prefixes, nil
}

func (h *HTTP) Contraindications(ctx context.Context) ([]domain.Contraindication, error) {
	story, err := h.story(ctx, "Contraindications", StoryContraindications)
	if err != nil {
		return nil, err
	}
	return story.Story.Content.Contraindications, nil
}

func (h *HTTP) Survey(ctx context.Context) (domain.SurveyDefinition, error) {
	story, err := h.story(ctx, "Survey", StorySurvey)
	if err != nil {
		return domain.SurveyDefinition{}, err
	}
	return story.survey(), nil
}

// CreateUser submits the account. Upstream rejections come back as
// *EnvelopeError; check IsEmailAlreadyInUse for the existing-account case.
func (h *HTTP) CreateUser(ctx context.Context, req CreateUserRequest) (domain.AccountRecord, error) {
	var record domain.AccountRecord
	err := h.post(ctx, "CreateUser", h.endpoints.CreateUser(), req, &record, true)
	if err != nil {
		return domain.AccountRecord{}, err
	}
	if record.UserID == "" {
		return domain.AccountRecord{}, unavailable("CreateUser", errors.New("response carried no user id"))
	}
	record.Success = true
	return record, nil
}

func (h *HTTP) IsEmailVerified(ctx context.Context, userID string) (bool, error) {
	ctx, span := h.start(ctx, "IsEmailVerified")
	defer span.End()

	var body json.RawMessage
	if err := h.client.GetJSON(ctx, h.endpoints.IsEmailVerified(userID), &body); err != nil {
		return false, h.fail(span, "IsEmailVerified", err)
	}
	var resp struct {
		Success       bool `json:"success"`
		EmailVerified bool `json:"emailVerified"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, h.fail(span, "IsEmailVerified", fmt.Errorf("decode: %w", err))
	}
	if !resp.Success {
		return false, h.fail(span, "IsEmailVerified", &EnvelopeError{Endpoint: "IsEmailVerified", Message: "check failed"})
	}
	return resp.EmailVerified, nil
}

func (h *HTTP) SendVerificationEmail(ctx context.Context, userID string) error {
	return h.post(ctx, "SendVerificationEmail", h.endpoints.VerifyEmail(), map[string]string{"userId": userID}, nil, true)
}

// CreatePaymentIntent requests a client secret. A response without one is
// a payment failure.
func (h *HTTP) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error) {
	var intent PaymentIntent
	if err := h.post(ctx, "CreatePaymentIntent", h.endpoints.PaymentIntent(), req, &intent, false); err != nil {
		return PaymentIntent{}, err
	}
	if intent.ClientSecret == "" {
		return PaymentIntent{}, apperrors.EK(apperrors.KindPayment, domain.MsgPayment, "no client secret received from payment intent")
	}
	return intent, nil
}

func (h *HTTP) PurchaseAndInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	var invoice Invoice
	if err := h.post(ctx, "PurchaseAndInvoice", h.endpoints.PurchaseAndInvoice(), req, &invoice, true); err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

func (h *HTTP) SendWelcomeEmail(ctx context.Context, userID string, programSlugs []string) error {
	body := struct {
		UserID       string   `json:"userId"`
		ProgramSlugs []string `json:"programSlugs"`
	}{UserID: userID, ProgramSlugs: programSlugs}
	return h.post(ctx, "SendWelcomeEmail", h.endpoints.WelcomeEmail(), body, nil, false)
}

func (h *HTTP) CompleteOnboarding(ctx context.Context, userID string, isTrial bool) error {
	body := struct {
		UserID  string `json:"userId"`
		IsTrial bool   `json:"isTrial"`
	}{UserID: userID, IsTrial: isTrial}
	return h.post(ctx, "CompleteOnboarding", h.endpoints.CompleteOnboarding(), body, nil, false)
}

// start opens the span for one gateway call, tagged with the calling
// session when there is one.
func (h *HTTP) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if id := requestctx.SessionIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("session.id", id))
	}
	return h.tracer.Start(ctx, "gateway."+op, trace.WithAttributes(attrs...))
}

func (h *HTTP) getDocument(ctx context.Context, op, document string) (envelope, error) {
	return h.get(ctx, op, h.endpoints.ConfigDocument(document))
}

// get reads an envelope that must carry data and must not report failure.
func (h *HTTP) get(ctx context.Context, op, url string) (envelope, error) {
	ctx, span := h.start(ctx, op)
	defer span.End()

	var body json.RawMessage
	if err := h.client.GetJSON(ctx, url, &body); err != nil {
		return envelope{}, h.fail(span, op, err)
	}
	env, ok := parseEnvelope(body)
	if !ok || env.failed() || len(env.Data) == 0 || string(env.Data) == "null" {
		return envelope{}, h.fail(span, op, &EnvelopeError{Endpoint: op, Message: env.Message, Detail: env.errorText()})
	}
	return env, nil
}

func (h *HTTP) story(ctx context.Context, op, slug string) (storyWire, error) {
	ctx, span := h.start(ctx, op, attribute.String("story.slug", slug))
	defer span.End()

	var body json.RawMessage
	if err := h.client.GetJSON(ctx, h.endpoints.Story(slug), &body); err != nil {
		return storyWire{}, h.fail(span, op, err)
	}
	story, err := decodeStory(body)
	if err != nil {
		return storyWire{}, h.fail(span, op, err)
	}
	return story, nil
}

// post sends one mutation. Non-2xx bodies are still inspected for an
// envelope so upstream messages survive. requireSuccess demands an explicit
// success=true; otherwise only success=false fails.
func (h *HTTP) post(ctx context.Context, op, url string, in, out any, requireSuccess bool) error {
	ctx, span := h.start(ctx, op)
	defer span.End()

	var body json.RawMessage
	err := h.client.PostJSON(ctx, url, in, &body)
	if err != nil {
		var herr *httpclient.HTTPError
		if errors.As(err, &herr) {
			if env, ok := parseEnvelope(herr.Body); ok && (env.Message != "" || env.errorText() != "") {
				return h.fail(span, op, &EnvelopeError{
					Endpoint:   op,
					StatusCode: herr.StatusCode,
					Message:    env.Message,
					Detail:     env.errorText(),
				})
			}
		}
		return h.fail(span, op, err)
	}

	env, ok := parseEnvelope(body)
	if env.failed() || (requireSuccess && (!ok || env.Success == nil)) {
		return h.fail(span, op, &EnvelopeError{Endpoint: op, Message: env.Message, Detail: env.errorText()})
	}
	if out != nil && ok {
		if err := json.Unmarshal(body, out); err != nil {
			return h.fail(span, op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func (h *HTTP) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return apperrors.Wrap(apperrors.KindUnavailable, domain.MsgNetwork, "gateway "+op, err)
}
