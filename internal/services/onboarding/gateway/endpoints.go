package gateway

import (
	"net/url"
	"strings"
)

// Reference documents served by getConfigData.
const (
	DocumentPricing        = "pricing"
	DocumentCourses        = "courses"
	DocumentProviders      = "healthInsuranceProviders"
	DocumentNamePrefixes   = "namePrefixes"
	StoryContraindications = "health-contraindications"
	StorySurvey            = "onboarding-survey"
)

// Endpoints builds remote URLs from the API and payment base URLs.
type Endpoints struct {
	APIBase     string
	PaymentBase string
}

func (e Endpoints) api(path string) string {
	return strings.TrimRight(e.APIBase, "/") + "/" + path
}

// ConfigDocument reads a reference document.
func (e Endpoints) ConfigDocument(document string) string {
	return e.api("getConfigData") + "?" + url.Values{"document": {document}}.Encode()
}

// ProviderKeys reads only the provider keys.
func (e Endpoints) ProviderKeys() string {
	return e.api("getConfigData") + "?" + url.Values{
		"document": {DocumentProviders},
		"view":     {"keys"},
	}.Encode()
}

// Story reads CMS content by slug.
func (e Endpoints) Story(slug string) string {
	return e.api("getWebflowStory") + "?" + url.Values{
		"draft": {"true"},
		"slug":  {slug},
	}.Encode()
}

func (e Endpoints) CreateUser() string         { return e.api("createUser") }
func (e Endpoints) VerifyEmail() string        { return e.api("verifyEmail") }
func (e Endpoints) PurchaseAndInvoice() string { return e.api("handlePurchaseAndInvoice") }
func (e Endpoints) WelcomeEmail() string       { return e.api("sendWebWelcomeEmail") }
func (e Endpoints) CompleteOnboarding() string { return e.api("complete-onboarding") }

// IsEmailVerified checks the verification flag for userID.
func (e Endpoints) IsEmailVerified(userID string) string {
	return e.api("isEmailVerified") + "?" + url.Values{"userId": {userID}}.Encode()
}

// PaymentIntent lives on the payment base, falling back to the API base.
func (e Endpoints) PaymentIntent() string {
	base := e.PaymentBase
	if strings.TrimSpace(base) == "" {
		base = e.APIBase
	}
	return strings.TrimRight(base, "/") + "/createPaymentIntent"
}
