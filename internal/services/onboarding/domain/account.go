package domain

import (
	"strings"
	"time"
)

// AccountRecord is the outcome of a successful account creation.
type AccountRecord struct {
	UserID  string `json:"userId"`
	Success bool   `json:"success"`
}

// PaymentStatus is the state reported by payment confirmation.
type PaymentStatus string

const (
	PaymentSucceeded      PaymentStatus = "succeeded"
	PaymentProcessing     PaymentStatus = "processing"
	PaymentRequiresAction PaymentStatus = "requires_action"
	PaymentRequiresMethod PaymentStatus = "requires_payment_method"
	PaymentCanceled       PaymentStatus = "canceled"
)

// Settled reports whether the status allows leaving the wizard.
func (s PaymentStatus) Settled() bool {
	return s == PaymentSucceeded || s == PaymentProcessing
}

// PaymentState records one confirmed payment attempt. Amount is in euros.
type PaymentState struct {
	PaymentIntentID string        `json:"paymentIntentId"`
	Amount          float64       `json:"amount"`
	Status          PaymentStatus `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
}

// ThankYouURL derives the post-checkout destination from the onboarding
// page URL by swapping the first "onboarding" segment.
func ThankYouURL(pageURL string, fallback string) string {
	if strings.Contains(pageURL, "onboarding") {
		return strings.Replace(pageURL, "onboarding", "vielen-dank", 1)
	}
	return fallback
}
