// Package view is the narrow screen contract the wizard drives. Nothing here
// renders markup; implementations decide how state reaches the browser.
package view

import (
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/checkout"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// View receives screen updates from the wizard and orchestrator. Calls are
// made under the session lock.
type View interface {
	ShowStep(step domain.StepID, panel domain.Panel)
	ShowErrors(step domain.StepID, keys []string, fields []string)
	ClearErrors(step domain.StepID)

	ShowProviders(list ProviderList)
	ShowProviderInfo(info checkout.ProviderInfo)
	ShowSurvey(group int, items []domain.SurveyItem, selected []string)
	ShowRecommendation(rec Recommendation)
	SetContinueEnabled(enabled bool)
	ShowContraindications(items []domain.Contraindication)
	ShowForm(form Form)
	LockAccountFields()
	ClearPassword()
	ShowCheckout(cart checkout.Checkout)
	SetSubmit(state Submit)

	ShowVerification(v Verification)
	HideVerification()
	ShowPayment(p Payment)
	HidePayment()

	ShowNotice(key string)
	Redirect(url string)
}

// ProviderList is the provider dropdown. Loading is set while only keys are
// known and the full catalog is still on its way.
type ProviderList struct {
	Keys     []string `json:"keys"`
	Selected string   `json:"selected,omitempty"`
	Loading  bool     `json:"loading"`
}

// Recommendation is the result step.
type Recommendation struct {
	Courses  []domain.Course  `json:"courses"`
	Selected []string         `json:"selected"`
	Summary  checkout.Summary `json:"summary"`
}

// Form is the sign-up form state. It never carries a password.
type Form struct {
	Draft         domain.UserDraft    `json:"draft"`
	NamePrefixes  []domain.NamePrefix `json:"namePrefixes"`
	AccountExists bool                `json:"accountExists"`
	// FieldsLocked disables identity fields once an account exists.
	FieldsLocked bool `json:"fieldsLocked"`
	// PasswordHidden hides the password inputs once an account exists.
	PasswordHidden bool `json:"passwordHidden"`
	// RestoreConsents re-applies the consent checkboxes from the draft.
	RestoreConsents bool `json:"restoreConsents"`
}

// Submit is the final button.
type Submit struct {
	Enabled bool `json:"enabled"`
	Loading bool `json:"loading"`
}

// Verification is the email verification modal.
type Verification struct {
	Open          bool   `json:"open"`
	Email         string `json:"email,omitempty"`
	StatusKey     string `json:"statusKey,omitempty"`
	ErrorKey      string `json:"errorKey,omitempty"`
	SendEnabled   bool   `json:"sendEnabled"`
	ResendEnabled bool   `json:"resendEnabled"`
	Countdown     int    `json:"countdown"`
	Polling       bool   `json:"polling"`
}

// Payment is the payment widget modal.
type Payment struct {
	Open         bool    `json:"open"`
	ClientSecret string  `json:"clientSecret,omitempty"`
	Amount       float64 `json:"amount"`
	AmountText   string  `json:"amountText,omitempty"`
	Billing      Billing `json:"billing"`
	Processing   bool    `json:"processing"`
	ErrorKey     string  `json:"errorKey,omitempty"`
	ErrorText    string  `json:"errorText,omitempty"`
}

// Billing is passed to the payment widget on confirmation.
type Billing struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Country string `json:"country"`
}
