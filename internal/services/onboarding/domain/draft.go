package domain

import "strings"

// UserDraft is the accumulated, autosaved form record of a session.
type UserDraft struct {
	NamePrefix            string `json:"namePrefix,omitempty"`
	FirstName             string `json:"firstName,omitempty"`
	LastName              string `json:"lastName,omitempty"`
	DateOfBirth           string `json:"dateOfBirth,omitempty"`
	Email                 string `json:"email,omitempty"`
	Password              string `json:"password,omitempty"`
	CommunicationViaEmail bool   `json:"communicationViaEmail"`
	NewsletterSignUp      bool   `json:"newsletterSignUp"`
	PrivacyPolicy         bool   `json:"privacyPolicy"`
}

// Field names as posted by the form.
const (
	FieldNamePrefix            = "namePrefix"
	FieldFirstName             = "firstName"
	FieldLastName              = "lastName"
	FieldDateOfBirth           = "dateOfBirth"
	FieldEmail                 = "email"
	FieldPassword              = "password"
	FieldCommunicationViaEmail = "communicationViaEmail"
	FieldNewsletterSignUp      = "newsletterSignUp"
	FieldPrivacyPolicy         = "privacyPolicy"
)

// TextFields lists the text inputs in form order.
var TextFields = []string{
	FieldNamePrefix,
	FieldFirstName,
	FieldLastName,
	FieldDateOfBirth,
	FieldEmail,
	FieldPassword,
}

// CheckboxFields lists the checkbox inputs in form order.
var CheckboxFields = []string{
	FieldCommunicationViaEmail,
	FieldNewsletterSignUp,
	FieldPrivacyPolicy,
}

// WithoutPassword returns a copy with the password cleared.
func (d UserDraft) WithoutPassword() UserDraft {
	d.Password = ""
	return d
}

// Text returns a text field value by name.
func (d UserDraft) Text(field string) (string, bool) {
	switch field {
	case FieldNamePrefix:
		return d.NamePrefix, true
	case FieldFirstName:
		return d.FirstName, true
	case FieldLastName:
		return d.LastName, true
	case FieldDateOfBirth:
		return d.DateOfBirth, true
	case FieldEmail:
		return d.Email, true
	case FieldPassword:
		return d.Password, true
	default:
		return "", false
	}
}

// SetText assigns a text field by name, trimming surrounding space except
// for the password.
func (d *UserDraft) SetText(field, value string) bool {
	if field != FieldPassword {
		value = strings.TrimSpace(value)
	}
	switch field {
	case FieldNamePrefix:
		d.NamePrefix = value
	case FieldFirstName:
		d.FirstName = value
	case FieldLastName:
		d.LastName = value
	case FieldDateOfBirth:
		d.DateOfBirth = value
	case FieldEmail:
		d.Email = value
	case FieldPassword:
		d.Password = value
	default:
		return false
	}
	return true
}

// SetChecked assigns a checkbox field by name.
func (d *UserDraft) SetChecked(field string, checked bool) bool {
	switch field {
	case FieldCommunicationViaEmail:
		d.CommunicationViaEmail = checked
	case FieldNewsletterSignUp:
		d.NewsletterSignUp = checked
	case FieldPrivacyPolicy:
		d.PrivacyPolicy = checked
	default:
		return false
	}
	return true
}

// HasIdentity reports whether the fields needed to resume a submission are
// present.
func (d UserDraft) HasIdentity() bool {
	return d.Email != "" && d.FirstName != "" && d.LastName != ""
}
