package view

import (
	"maps"
	"slices"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/checkout"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// Model is the JSON view model a Recorder accumulates.
type Model struct {
	Step              domain.StepID               `json:"step"`
	StepName          string                      `json:"stepName"`
	Panel             domain.Panel                `json:"panel"`
	Errors            map[domain.StepID][]string  `json:"errors,omitempty"`
	InvalidFields     []string                    `json:"invalidFields,omitempty"`
	Providers         ProviderList                `json:"providers"`
	ProviderInfo      *checkout.ProviderInfo      `json:"providerInfo,omitempty"`
	Survey            map[int][]domain.SurveyItem `json:"survey,omitempty"`
	SurveySelected    map[int][]string            `json:"surveySelected,omitempty"`
	Recommendation    *Recommendation             `json:"recommendation,omitempty"`
	ContinueEnabled   bool                        `json:"continueEnabled"`
	Contraindications []domain.Contraindication   `json:"contraindications,omitempty"`
	Form              *Form                       `json:"form,omitempty"`
	ClearPassword     bool                        `json:"clearPassword"`
	Checkout          *checkout.Checkout          `json:"checkout,omitempty"`
	Submit            Submit                      `json:"submit"`
	Verification      Verification                `json:"verification"`
	Payment           Payment                     `json:"payment"`
	Notice            string                      `json:"notice,omitempty"`
	Redirect          string                      `json:"redirect,omitempty"`
}

// Recorder is a View that keeps the latest screen state. It is not safe for
// concurrent use; callers hold the session lock.
type Recorder struct {
	model Model
}

// NewRecorder returns a recorder with the submit button enabled.
func NewRecorder() *Recorder {
	return &Recorder{model: Model{Submit: Submit{Enabled: true}, ContinueEnabled: true}}
}

var _ View = (*Recorder)(nil)

// Model returns a copy of the current state.
func (r *Recorder) Model() Model {
	m := r.model
	m.Errors = maps.Clone(r.model.Errors)
	m.Survey = maps.Clone(r.model.Survey)
	m.SurveySelected = maps.Clone(r.model.SurveySelected)
	m.InvalidFields = slices.Clone(r.model.InvalidFields)
	return m
}

// TakeTransient returns the model and resets one-shot signals (notice,
// password clearing, redirect) so they are delivered once.
func (r *Recorder) TakeTransient() Model {
	m := r.Model()
	r.model.Notice = ""
	r.model.ClearPassword = false
	r.model.Redirect = ""
	return m
}

func (r *Recorder) ShowStep(step domain.StepID, panel domain.Panel) {
	r.model.Step = step
	r.model.StepName = step.String()
	r.model.Panel = panel
}

func (r *Recorder) ShowErrors(step domain.StepID, keys []string, fields []string) {
	if r.model.Errors == nil {
		r.model.Errors = map[domain.StepID][]string{}
	}
	r.model.Errors[step] = slices.Clone(keys)
	r.model.InvalidFields = slices.Clone(fields)
}

func (r *Recorder) ClearErrors(step domain.StepID) {
	delete(r.model.Errors, step)
	r.model.InvalidFields = nil
}

func (r *Recorder) ShowProviders(list ProviderList) {
	list.Keys = slices.Clone(list.Keys)
	r.model.Providers = list
}

func (r *Recorder) ShowProviderInfo(info checkout.ProviderInfo) {
	r.model.ProviderInfo = &info
}

func (r *Recorder) ShowSurvey(group int, items []domain.SurveyItem, selected []string) {
	if r.model.Survey == nil {
		r.model.Survey = map[int][]domain.SurveyItem{}
		r.model.SurveySelected = map[int][]string{}
	}
	r.model.Survey[group] = slices.Clone(items)
	r.model.SurveySelected[group] = slices.Clone(selected)
}

func (r *Recorder) ShowRecommendation(rec Recommendation) {
	r.model.Recommendation = &rec
}

func (r *Recorder) SetContinueEnabled(enabled bool) {
	r.model.ContinueEnabled = enabled
}

func (r *Recorder) ShowContraindications(items []domain.Contraindication) {
	r.model.Contraindications = slices.Clone(items)
}

func (r *Recorder) ShowForm(form Form) {
	form.Draft = form.Draft.WithoutPassword()
	r.model.Form = &form
}

// LockAccountFields marks the form as belonging to an existing account.
func (r *Recorder) LockAccountFields() {
	if r.model.Form == nil {
		r.model.Form = &Form{}
	}
	r.model.Form.AccountExists = true
	r.model.Form.FieldsLocked = true
	r.model.Form.PasswordHidden = true
	r.model.ClearPassword = true
}

func (r *Recorder) ClearPassword() {
	r.model.ClearPassword = true
}

func (r *Recorder) ShowCheckout(cart checkout.Checkout) {
	r.model.Checkout = &cart
}

func (r *Recorder) SetSubmit(state Submit) {
	r.model.Submit = state
}

func (r *Recorder) ShowVerification(v Verification) {
	v.Open = true
	r.model.Verification = v
}

func (r *Recorder) HideVerification() {
	r.model.Verification = Verification{}
}

func (r *Recorder) ShowPayment(p Payment) {
	p.Open = true
	r.model.Payment = p
}

func (r *Recorder) HidePayment() {
	r.model.Payment = Payment{}
}

func (r *Recorder) ShowNotice(key string) {
	r.model.Notice = key
}

func (r *Recorder) Redirect(url string) {
	r.model.Redirect = url
}
