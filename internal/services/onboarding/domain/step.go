// Package domain holds the onboarding wizard's core types: steps and panels,
// the user draft, reference catalogs, and account and payment records.
package domain

import "fmt"

// StepID identifies one wizard step. Values are the persisted step index.
type StepID int

const (
	StepHealthProvider StepID = iota
	StepSurveyA
	StepSurveyB
	StepRecommendation
	StepConsent
	StepAccountAndPayment
)

// FirstStep and LastStep bound the wizard.
const (
	FirstStep = StepHealthProvider
	LastStep  = StepAccountAndPayment
)

var stepNames = map[StepID]string{
	StepHealthProvider:    "health_provider",
	StepSurveyA:           "survey_a",
	StepSurveyB:           "survey_b",
	StepRecommendation:    "recommendation",
	StepConsent:           "consent",
	StepAccountAndPayment: "account_and_payment",
}

func (s StepID) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Steps returns the wizard steps in order.
func Steps() []StepID {
	return []StepID{
		StepHealthProvider,
		StepSurveyA,
		StepSurveyB,
		StepRecommendation,
		StepConsent,
		StepAccountAndPayment,
	}
}

// Panel is one of the three visible containers steps render into.
type Panel string

const (
	PanelOne   Panel = "#step1"
	PanelTwo   Panel = "#step2"
	PanelThree Panel = "#step3"
)

var stepPanels = map[StepID]Panel{
	StepHealthProvider:    PanelOne,
	StepSurveyA:           PanelTwo,
	StepSurveyB:           PanelTwo,
	StepRecommendation:    PanelThree,
	StepConsent:           PanelThree,
	StepAccountAndPayment: PanelThree,
}

// PanelFor returns the panel a step index renders into.
func PanelFor(step StepID) (Panel, bool) {
	panel, ok := stepPanels[step]
	return panel, ok
}

// Clamp bounds step into [FirstStep, LastStep].
func Clamp(step StepID) StepID {
	if step < FirstStep {
		return FirstStep
	}
	if step > LastStep {
		return LastStep
	}
	return step
}
