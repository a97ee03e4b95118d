package domain

import "strings"

// HealthProvider is one entry of the provider catalog.
type HealthProvider struct {
	Name           string `json:"name,omitempty"`
	MaxCoursePrice string `json:"maxCoursePrice"`
	Takeover       string `json:"takeover"`
}

// ProviderCatalog maps provider key to provider.
type ProviderCatalog map[string]HealthProvider

// Pricing carries the price per course in euros.
type Pricing struct {
	ProgramPrice float64 `json:"programPrice"`
}

// Course is one purchasable program. Slug doubles as the survey type it
// serves.
type Course struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Cover       string `json:"course_cover,omitempty"`
	Description string `json:"recommendation_description,omitempty"`
	Color       string `json:"course_color,omitempty"`
}

// Contraindication is a health warning attached to a course.
type Contraindication struct {
	CourseSlug string `json:"course_slug"`
	Text       string `json:"contraindication"`
}

// SurveyItem is one selectable survey option.
type SurveyItem struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// SurveyGroup is the option set of one survey step.
type SurveyGroup struct {
	Items []SurveyItem `json:"answers"`
}

// SurveyDefinition holds the survey groups in order.
type SurveyDefinition struct {
	Groups []SurveyGroup `json:"groups"`
}

// Group returns the zero-based group, or an empty group when absent.
func (s SurveyDefinition) Group(index int) SurveyGroup {
	if index < 0 || index >= len(s.Groups) {
		return SurveyGroup{}
	}
	return s.Groups[index]
}

// Lookup finds an item by id inside one group.
func (g SurveyGroup) Lookup(id string) (SurveyItem, bool) {
	for _, item := range g.Items {
		if item.ID == id {
			return item, true
		}
	}
	return SurveyItem{}, false
}

// SurveyAnswer is one selected survey option.
type SurveyAnswer struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AnswerTypes returns the answer types in order.
func AnswerTypes(answers []SurveyAnswer) []string {
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		out = append(out, a.Type)
	}
	return out
}

// NamePrefix is one salutation option. Order is significant.
type NamePrefix struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ContainsPrefix reports whether value is one of the options.
func ContainsPrefix(options []NamePrefix, value string) bool {
	for _, opt := range options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// UpperSlugs upper-cases course slugs for the account API.
func UpperSlugs(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, strings.ToUpper(s))
	}
	return out
}
