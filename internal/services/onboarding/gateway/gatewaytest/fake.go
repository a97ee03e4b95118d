// Package gatewaytest provides an in-memory Gateway for tests.
package gatewaytest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
)

// ErrOffline is a convenient transport failure.
var ErrOffline = errors.New("gateway offline")

// Fake serves canned reference data and scripted mutation outcomes. Zero
// funcs succeed.
type Fake struct {
	mu sync.Mutex

	Keys             []string
	Catalog          domain.ProviderCatalog
	CatalogGate      chan struct{}
	PricingData      domain.Pricing
	CoursesData      []domain.Course
	Contra           []domain.Contraindication
	SurveyData       domain.SurveyDefinition
	Prefixes         []domain.NamePrefix
	ReferenceErr     error
	CreateUserFunc   func(gateway.CreateUserRequest) (domain.AccountRecord, error)
	VerifiedFunc     func(userID string) (bool, error)
	SendErr          error
	IntentFunc       func(gateway.PaymentIntentRequest) (gateway.PaymentIntent, error)
	InvoiceErr       error
	WelcomeErr       error
	CompleteErr      error
	calls            []string
	createRequests   []gateway.CreateUserRequest
	intentRequests   []gateway.PaymentIntentRequest
	completedAsTrial []bool
}

var _ gateway.Gateway = (*Fake)(nil)

// New returns a fake with a small German catalog.
func New() *Fake {
	return &Fake{
		Keys: []string{"aok", "tk"},
		Catalog: domain.ProviderCatalog{
			"aok": {Name: "AOK", MaxCoursePrice: "75", Takeover: "Die AOK übernimmt bis zu 75 €."},
			"tk":  {Name: "TK", MaxCoursePrice: "100", Takeover: "Die TK übernimmt bis zu 100 €."},
		},
		PricingData: domain.Pricing{ProgramPrice: 89.9},
		CoursesData: []domain.Course{
			{Slug: "STRESS", Name: "Stressfrei"},
			{Slug: "FITNESS", Name: "Fit im Alltag"},
			{Slug: "NUTRITION", Name: "Gesund essen"},
		},
		Contra: []domain.Contraindication{{CourseSlug: "FITNESS", Text: "Herz-Kreislauf"}},
		SurveyData: domain.SurveyDefinition{Groups: []domain.SurveyGroup{
			{Items: []domain.SurveyItem{
				{ID: "a1", Type: "STRESS", Text: "Ich bin oft gestresst"},
				{ID: "a2", Type: "FITNESS", Text: "Ich bewege mich zu wenig"},
				{ID: "a3", Type: "NUTRITION", Text: "Ich esse unregelmäßig"},
			}},
			{Items: []domain.SurveyItem{
				{ID: "b1", Type: "STRESS", Text: "Schlaf"},
				{ID: "b2", Type: "FITNESS", Text: "Rücken"},
				{ID: "b3", Type: "NUTRITION", Text: "Gewicht"},
			}},
		}},
		Prefixes: []domain.NamePrefix{{Value: "frau", Label: "Frau"}, {Value: "herr", Label: "Herr"}},
	}
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Calls returns the invoked operations in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Count returns how often call was invoked.
func (f *Fake) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// CreateRequests returns the submitted account payloads.
func (f *Fake) CreateRequests() []gateway.CreateUserRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.createRequests)
}

// IntentRequests returns the payment intent payloads.
func (f *Fake) IntentRequests() []gateway.PaymentIntentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.intentRequests)
}

func (f *Fake) ProviderKeys(context.Context) ([]string, error) {
	f.record("ProviderKeys")
	return slices.Clone(f.Keys), f.ReferenceErr
}

func (f *Fake) Providers(ctx context.Context) (domain.ProviderCatalog, error) {
	f.record("Providers")
	if f.CatalogGate != nil {
		select {
		case <-f.CatalogGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.ReferenceErr != nil {
		return nil, f.ReferenceErr
	}
	return f.Catalog, nil
}

func (f *Fake) Pricing(context.Context) (domain.Pricing, error) {
	f.record("Pricing")
	return f.PricingData, f.ReferenceErr
}

func (f *Fake) Contraindications(context.Context) ([]domain.Contraindication, error) {
	f.record("Contraindications")
	return slices.Clone(f.Contra), f.ReferenceErr
}

func (f *Fake) Courses(context.Context) ([]domain.Course, error) {
	f.record("Courses")
	return slices.Clone(f.CoursesData), f.ReferenceErr
}

func (f *Fake) Survey(context.Context) (domain.SurveyDefinition, error) {
	f.record("Survey")
	return f.SurveyData, f.ReferenceErr
}

func (f *Fake) NamePrefixes(context.Context) ([]domain.NamePrefix, error) {
	f.record("NamePrefixes")
	return slices.Clone(f.Prefixes), f.ReferenceErr
}

func (f *Fake) CreateUser(_ context.Context, req gateway.CreateUserRequest) (domain.AccountRecord, error) {
	f.record("CreateUser")
	f.mu.Lock()
	f.createRequests = append(f.createRequests, req)
	fn := f.CreateUserFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return domain.AccountRecord{UserID: "user-1", Success: true}, nil
}

func (f *Fake) IsEmailVerified(_ context.Context, userID string) (bool, error) {
	f.record("IsEmailVerified")
	if f.VerifiedFunc != nil {
		return f.VerifiedFunc(userID)
	}
	return true, nil
}

func (f *Fake) SendVerificationEmail(context.Context, string) error {
	f.record("SendVerificationEmail")
	return f.SendErr
}

func (f *Fake) CreatePaymentIntent(_ context.Context, req gateway.PaymentIntentRequest) (gateway.PaymentIntent, error) {
	f.record("CreatePaymentIntent")
	f.mu.Lock()
	f.intentRequests = append(f.intentRequests, req)
	f.mu.Unlock()
	if f.IntentFunc != nil {
		return f.IntentFunc(req)
	}
	return gateway.PaymentIntent{ClientSecret: "pi_secret_1"}, nil
}

func (f *Fake) PurchaseAndInvoice(context.Context, gateway.InvoiceRequest) (gateway.Invoice, error) {
	f.record("PurchaseAndInvoice")
	if f.InvoiceErr != nil {
		return gateway.Invoice{}, f.InvoiceErr
	}
	return gateway.Invoice{PDFURL: "https://invoices.example/1.pdf"}, nil
}

func (f *Fake) SendWelcomeEmail(context.Context, string, []string) error {
	f.record("SendWelcomeEmail")
	return f.WelcomeErr
}

func (f *Fake) CompleteOnboarding(_ context.Context, _ string, isTrial bool) error {
	f.record("CompleteOnboarding")
	f.mu.Lock()
	f.completedAsTrial = append(f.completedAsTrial, isTrial)
	f.mu.Unlock()
	return f.CompleteErr
}

// CompletedAsTrial returns the isTrial flag of each completion call.
func (f *Fake) CompletedAsTrial() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.completedAsTrial)
}
