// Package storage defines the durable per-session key-value store backing the
// onboarding wizard, plus a typed view bound to one session.
package storage

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by nil or closed stores.
var ErrNotConfigured = errors.New("storage is not configured")

// Store persists JSON values by session and key. Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Remove(ctx context.Context, sessionID string, keys ...string) error
	Close() error
}

// Keys written by the wizard.
const (
	KeyCurrentStep            = "currentStep"
	KeyUserData               = "userData"
	KeySelectedHealthProvider = "selectedHealthProvider"
	KeyHealthProviders        = "healthProviders"
	KeyPricing                = "pricing"
	KeyContraindications      = "contraindications"
	KeyCourses                = "courses"
	KeyOnboardingSurvey       = "onboardingSurvey"
	KeySurveyAnswers1         = "onboardingSurveyAnswers_1"
	KeySurveyAnswers2         = "onboardingSurveyAnswers_2"
	KeySurveyTypeCounts       = "SurveyAnswersCourseTypes"
	KeyRecommendedCourses     = "recommendedCourses"
	KeySelectedCourses        = "selectedCourses"
	KeyTrial                  = "trial"
	KeyInvoiceURL             = "invoiceUrl"
	KeyPaymentIntentPayload   = "paymentIntentPayload"
	KeyPaymentIntentResponse  = "paymentIntentResponse"
	KeyPaymentSuccess         = "paymentSuccess"
	KeyCreateUserPayload      = "createUserPayload"
	KeyCreateUserResponse     = "createUserResponse"
	KeyUserID                 = "userId"
)

// AfterPaymentKeys is everything cleared once the flow completes. The cached
// provider catalog survives.
var AfterPaymentKeys = []string{
	KeyCurrentStep,
	KeyUserData,
	KeySelectedHealthProvider,
	KeyPricing,
	KeyContraindications,
	KeyCourses,
	KeyOnboardingSurvey,
	KeySurveyAnswers1,
	KeySurveyAnswers2,
	KeySurveyTypeCounts,
	KeyRecommendedCourses,
	KeySelectedCourses,
	KeyTrial,
	KeyInvoiceURL,
	KeyPaymentIntentPayload,
	KeyPaymentIntentResponse,
	KeyPaymentSuccess,
	KeyCreateUserPayload,
	KeyCreateUserResponse,
	KeyUserID,
}

// SurveyKeys is what "redo survey" clears.
var SurveyKeys = []string{
	KeySurveyAnswers1,
	KeySurveyAnswers2,
	KeySurveyTypeCounts,
	KeyRecommendedCourses,
	KeySelectedCourses,
}
