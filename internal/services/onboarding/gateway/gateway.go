// Package gateway is the onboarding service's view of the remote API:
// reference data reads plus account, verification and payment mutations.
package gateway

import (
	"context"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// Gateway is the remote data contract the wizard and orchestrator consume.
// Payment confirmation itself happens in the browser's payment widget; the
// result is reported back to the orchestrator.
type Gateway interface {
	ProviderKeys(ctx context.Context) ([]string, error)
	Providers(ctx context.Context) (domain.ProviderCatalog, error)
	Pricing(ctx context.Context) (domain.Pricing, error)
	Contraindications(ctx context.Context) ([]domain.Contraindication, error)
	Courses(ctx context.Context) ([]domain.Course, error)
	Survey(ctx context.Context) (domain.SurveyDefinition, error)
	NamePrefixes(ctx context.Context) ([]domain.NamePrefix, error)

	CreateUser(ctx context.Context, req CreateUserRequest) (domain.AccountRecord, error)
	IsEmailVerified(ctx context.Context, userID string) (bool, error)
	SendVerificationEmail(ctx context.Context, userID string) error
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	PurchaseAndInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error)
	SendWelcomeEmail(ctx context.Context, userID string, programSlugs []string) error
	CompleteOnboarding(ctx context.Context, userID string, isTrial bool) error
}

// CreateUserRequest is the account creation payload.
type CreateUserRequest struct {
	Email            string            `json:"email"`
	FirstName        string            `json:"firstName"`
	LastName         string            `json:"lastName"`
	DateOfBirth      string            `json:"dateOfBirth"`
	NamePrefix       string            `json:"namePrefix"`
	NewsletterSignUp bool              `json:"newsletterSignUp"`
	HasPreconditions bool              `json:"hasPreconditions"`
	IsTrial          bool              `json:"isTrial,omitempty"`
	HealthProvider   ProviderSnapshot  `json:"healthProvider"`
	SelectedCourses  []string          `json:"selectedCourses"`
	Onboarding       OnboardingAnswers `json:"onboarding"`
	Password         string            `json:"password,omitempty"`
}

// ProviderSnapshot freezes the chosen provider into the account.
type ProviderSnapshot struct {
	MaxCoursePrice  string `json:"maxCoursePrice"`
	Name            string `json:"name"`
	NumberOfCourses string `json:"numberOfCourses"`
	Takeover        string `json:"takeover"`
}

// OnboardingAnswers carries the survey answer types per step.
type OnboardingAnswers struct {
	Answers struct {
		Step1 []string `json:"step1"`
		Step2 []string `json:"step2"`
	} `json:"answers"`
}

// WithoutPassword returns a copy safe to persist.
func (r CreateUserRequest) WithoutPassword() CreateUserRequest {
	r.Password = ""
	return r
}

// PaymentIntentRequest asks for a client secret. Amount is in cents.
type PaymentIntentRequest struct {
	Amount      int64    `json:"amount"`
	UserID      string   `json:"userId"`
	CourseSlugs []string `json:"courseSlugs"`
}

// PaymentIntent is the issued payment handle.
type PaymentIntent struct {
	ClientSecret string `json:"paymentIntent"`
}

// InvoiceRequest finalizes a captured payment. Amount is in euros.
type InvoiceRequest struct {
	PaymentIntentID string  `json:"paymentIntentId"`
	Amount          float64 `json:"amount"`
	UserID          string  `json:"userId"`
}

// Invoice is the generated invoice document.
type Invoice struct {
	PDFURL string `json:"pdfUrl"`
}
