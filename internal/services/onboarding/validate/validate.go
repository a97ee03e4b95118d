// Package validate checks one wizard step against a snapshot of the form.
//
// Validate is pure: it reads only its arguments and never touches storage
// or the network. Callers persist Result.Provider and Result.Draft.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// DateLayout is the date-of-birth wire format (HTML date input).
const DateLayout = "2006-01-02"

// MinimumAge in whole years.
const MinimumAge = 18

// MinPasswordLength for new accounts.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Snapshot is the form state posted with a "next" action.
type Snapshot struct {
	// Provider is the dropdown value on the first step.
	Provider string `json:"provider,omitempty"`
	// Selected holds checked option ids for the survey and result steps.
	Selected []string `json:"selected,omitempty"`
	// Consents are the two checkboxes of the consent popup.
	Consents [2]bool `json:"consents"`
	// Fields holds sign-up text inputs by name. A missing key is a missing
	// input, which differs from an empty one.
	Fields map[string]string `json:"fields,omitempty"`
	// Checks holds sign-up checkboxes by name.
	Checks map[string]bool `json:"checks,omitempty"`
}

// Env is the context a rule may depend on.
type Env struct {
	HasAccount bool
	Now        time.Time
}

// Result is the outcome of one step validation.
type Result struct {
	Valid bool
	// Errors are message keys in rule order.
	Errors []string
	// InvalidFields names the sign-up inputs to highlight.
	InvalidFields []string
	// Provider is the accepted selection on the first step.
	Provider string
	// Draft carries the sign-up values, password included, on the last step.
	Draft domain.UserDraft
}

func (r *Result) fail(key string, field string) {
	r.Valid = false
	r.Errors = append(r.Errors, key)
	if field != "" {
		r.InvalidFields = append(r.InvalidFields, field)
	}
}

type rule func(Snapshot, Env, *Result)

var rules = map[domain.StepID]rule{
	domain.StepHealthProvider:    validateProvider,
	domain.StepSurveyA:           validateSurveyA,
	domain.StepSurveyB:           validateSurveyB,
	domain.StepRecommendation:    validateRecommendation,
	domain.StepConsent:           validateConsent,
	domain.StepAccountAndPayment: validateSignUp,
}

// Validate runs the rules of step against snap.
func Validate(step domain.StepID, snap Snapshot, env Env) Result {
	res := Result{Valid: true}
	check, ok := rules[step]
	if !ok {
		res.fail(domain.MsgUnknown, "")
		return res
	}
	check(snap, env, &res)
	return res
}

func validateProvider(snap Snapshot, _ Env, res *Result) {
	provider := strings.TrimSpace(snap.Provider)
	if provider == "" {
		res.fail(domain.MsgHealthProvider, "")
		return
	}
	res.Provider = provider
}

func validateSurveyA(snap Snapshot, _ Env, res *Result) {
	switch n := len(snap.Selected); {
	case n < 1:
		res.fail(domain.MsgSelectOptions, "")
	case n > 2:
		res.fail(domain.MsgTooManyOptions, "")
	}
}

func validateSurveyB(snap Snapshot, _ Env, res *Result) {
	if len(snap.Selected) < 1 {
		res.fail(domain.MsgSelectOptions, "")
	}
}

func validateRecommendation(snap Snapshot, _ Env, res *Result) {
	if len(snap.Selected) < 1 {
		res.fail(domain.MsgSelectPrograms, "")
	}
}

func validateConsent(snap Snapshot, _ Env, res *Result) {
	if !snap.Consents[0] || !snap.Consents[1] {
		res.fail(domain.MsgAgreeToTerms, "")
	}
}

var requiredKeys = map[string]string{
	domain.FieldNamePrefix:  domain.MsgNamePrefix,
	domain.FieldFirstName:   domain.MsgFirstName,
	domain.FieldLastName:    domain.MsgLastName,
	domain.FieldDateOfBirth: domain.MsgDateOfBirth,
	domain.FieldEmail:       domain.MsgEmail,
	domain.FieldPassword:    domain.MsgPassword,
}

// validateSignUp checks every field independently and collects all
// violations. The password input is absent once an account exists.
func validateSignUp(snap Snapshot, env Env, res *Result) {
	draft := domain.UserDraft{}
	for _, field := range domain.TextFields {
		if field == domain.FieldPassword && env.HasAccount {
			continue
		}
		raw, ok := snap.Fields[field]
		if !ok {
			res.fail(domain.MsgRequiredFields, "")
			continue
		}
		draft.SetText(field, raw)
		value, _ := draft.Text(field)
		if value == "" {
			res.fail(requiredKeys[field], field)
			continue
		}
		switch field {
		case domain.FieldEmail:
			if !emailPattern.MatchString(value) {
				res.fail(domain.MsgEmailInvalid, field)
			}
		case domain.FieldPassword:
			if len([]rune(value)) < MinPasswordLength {
				res.fail(domain.MsgPasswordLength, field)
			}
		case domain.FieldDateOfBirth:
			if !OldEnough(value, env.Now) {
				res.fail(domain.MsgAgeRestriction, field)
			}
		}
	}

	for _, field := range domain.CheckboxFields {
		checked, ok := snap.Checks[field]
		if !ok {
			res.fail(domain.MsgRequiredFields, "")
			continue
		}
		draft.SetChecked(field, checked)
		switch {
		case field == domain.FieldCommunicationViaEmail && !checked:
			res.fail(domain.MsgCommunication, field)
		case field == domain.FieldPrivacyPolicy && !checked:
			res.fail(domain.MsgPrivacyPolicy, field)
		}
	}
	res.Draft = draft
}

// OldEnough reports whether dob (DateLayout) is a real date, not in the
// future, and at least MinimumAge years before now. Someone turning 18
// today is accepted.
func OldEnough(dob string, now time.Time) bool {
	born, err := time.Parse(DateLayout, strings.TrimSpace(dob))
	if err != nil {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if born.After(today) {
		return false
	}
	return !born.After(today.AddDate(-MinimumAge, 0, 0))
}
