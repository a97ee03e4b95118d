package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// flexString accepts a JSON string or number and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string, with a comma decimal
// separator allowed.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(s)), "€"))
	if text == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", text, err)
	}
	*f = flexFloat(v)
	return nil
}

type providerWire struct {
	Name           string     `json:"name"`
	MaxCoursePrice flexString `json:"maxCoursePrice"`
	Takeover       string     `json:"takeover"`
}

func decodeProviders(raw json.RawMessage) (domain.ProviderCatalog, error) {
	var wire map[string]providerWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	catalog := make(domain.ProviderCatalog, len(wire))
	for key, p := range wire {
		catalog[key] = domain.HealthProvider{
			Name:           p.Name,
			MaxCoursePrice: string(p.MaxCoursePrice),
			Takeover:       p.Takeover,
		}
	}
	return catalog, nil
}

func decodePricing(raw json.RawMessage) (domain.Pricing, error) {
	var wire struct {
		ProgramPrice flexFloat `json:"programPrice"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.Pricing{}, fmt.Errorf("decode pricing: %w", err)
	}
	return domain.Pricing{ProgramPrice: float64(wire.ProgramPrice)}, nil
}

func decodeCourses(raw json.RawMessage) ([]domain.Course, error) {
	var wire struct {
		Courses []domain.Course `json:"courses-info"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode courses: %w", err)
	}
	return wire.Courses, nil
}

// decodeNamePrefixes walks the object token by token so server order is
// kept; a map would lose it.
func decodeNamePrefixes(raw json.RawMessage) ([]domain.NamePrefix, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode name prefixes: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode name prefixes: expected object")
	}
	var out []domain.NamePrefix
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode name prefixes: %w", err)
		}
		key, _ := keyTok.(string)
		var label flexString
		if err := dec.Decode(&label); err != nil {
			return nil, fmt.Errorf("decode name prefix %q: %w", key, err)
		}
		out = append(out, domain.NamePrefix{Value: key, Label: string(label)})
	}
	return out, nil
}

type storyWire struct {
	Story struct {
		Content struct {
			Contraindications []domain.Contraindication `json:"contraindications"`
			SurveySteps       []surveyStepWire          `json:"onboarding_survey_steps"`
		} `json:"content"`
	} `json:"story"`
}

type surveyStepWire struct {
	Answers []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Text       string `json:"text"`
		ImageCover struct {
			Filename string `json:"filename"`
		} `json:"image_cover"`
	} `json:"answers"`
}

func decodeStory(body []byte) (storyWire, error) {
	var story storyWire
	if err := json.Unmarshal(body, &story); err != nil {
		return storyWire{}, fmt.Errorf("decode story: %w", err)
	}
	return story, nil
}

func (s storyWire) survey() domain.SurveyDefinition {
	def := domain.SurveyDefinition{Groups: make([]domain.SurveyGroup, 0, len(s.Story.Content.SurveySteps))}
	for _, step := range s.Story.Content.SurveySteps {
		group := domain.SurveyGroup{Items: make([]domain.SurveyItem, 0, len(step.Answers))}
		for _, a := range step.Answers {
			group.Items = append(group.Items, domain.SurveyItem{
				ID:    a.ID,
				Type:  a.Type,
				Text:  a.Text,
				Image: a.ImageCover.Filename,
			})
		}
		def.Groups = append(def.Groups, group)
	}
	return def
}
