// Package checkout computes prices, access summaries and line items for the
// recommendation and payment steps.
package checkout

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Symbol is appended to displayed amounts.
const Symbol = "€"

// Placeholder is shown when a provider has no known amount.
const Placeholder = "—"

// Total is the price per course times the selected course count, in euros.
func Total(pricing domain.Pricing, selected int) float64 {
	if selected <= 0 || pricing.ProgramPrice <= 0 {
		return 0
	}
	return pricing.ProgramPrice * float64(selected)
}

// TotalCents is Total in the smallest currency unit.
func TotalCents(pricing domain.Pricing, selected int) int64 {
	return int64(math.Round(Total(pricing, selected) * 100))
}

// FormatAmount renders euros with the locale's separators and the
// currency's standard precision.
func FormatAmount(tag language.Tag, euros float64) string {
	scale, _ := currency.Standard.Rounding(currency.EUR)
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(euros, number.Scale(scale))) + " " + Symbol
}

// AccessMonths maps the selected course count to the access period and the
// summary text key. Anything but one or two courses prompts for a choice.
func AccessMonths(selected int) (int, string) {
	switch selected {
	case 1:
		return 12, domain.MsgAccessOne
	case 2:
		return 18, domain.MsgAccessTwo
	default:
		return 12, domain.MsgAccessNone
	}
}

// Summary is the recommendation step's price box.
type Summary struct {
	Selected  []string `json:"selected"`
	Total     float64  `json:"total"`
	TotalText string   `json:"totalText"`
	Months    int      `json:"months"`
	AccessKey string   `json:"accessKey"`
	Takeover  string   `json:"takeover"`
}

// Summarize builds the summary for the current selection.
func Summarize(tag language.Tag, selected []string, pricing domain.Pricing, provider domain.HealthProvider) Summary {
	total := Total(pricing, len(selected))
	months, key := AccessMonths(len(selected))
	return Summary{
		Selected:  slices.Clone(selected),
		Total:     total,
		TotalText: FormatAmount(tag, total),
		Months:    months,
		AccessKey: key,
		Takeover:  provider.Takeover,
	}
}

// LineItem is one purchased course.
type LineItem struct {
	Slug      string  `json:"slug"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	PriceText string  `json:"priceText"`
}

// Checkout is the payment step's cart.
type Checkout struct {
	Items     []LineItem `json:"items,omitempty"`
	Total     float64    `json:"total,omitempty"`
	TotalText string     `json:"totalText,omitempty"`
	Trial     bool       `json:"trial"`
	ButtonKey string     `json:"buttonKey"`
}

// Build lists the selected courses in catalog order. A trial hides prices
// and relabels the submit button.
func Build(tag language.Tag, courses []domain.Course, selected []string, pricing domain.Pricing, trial bool) Checkout {
	if trial {
		return Checkout{Trial: true, ButtonKey: domain.MsgTryUnit}
	}
	out := Checkout{ButtonKey: domain.MsgBuyNow}
	for _, course := range courses {
		if !slices.Contains(selected, course.Slug) {
			continue
		}
		out.Items = append(out.Items, LineItem{
			Slug:      course.Slug,
			Name:      course.Name,
			Price:     pricing.ProgramPrice,
			PriceText: FormatAmount(tag, pricing.ProgramPrice),
		})
	}
	out.Total = Total(pricing, len(selected))
	out.TotalText = FormatAmount(tag, out.Total)
	return out
}

// FilterContraindications keeps the warnings of the given courses.
func FilterContraindications(all []domain.Contraindication, slugs []string) []domain.Contraindication {
	var out []domain.Contraindication
	for _, c := range all {
		if slices.Contains(slugs, c.CourseSlug) {
			out = append(out, c)
		}
	}
	return out
}

// HasPreconditions reports whether any recommended course carries a warning.
func HasPreconditions(all []domain.Contraindication, recommended []string) bool {
	return len(FilterContraindications(all, recommended)) > 0
}

// ProviderInfo is the info box shown for the chosen provider.
type ProviderInfo struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Takeover string `json:"takeover"`
}

var takeoverAmount = regexp.MustCompile(`(\d+[.,]?\d*)\s*€`)

// DescribeProvider fills the info box. The amount is the max course price,
// or the first euro figure in the takeover text.
func DescribeProvider(key string, provider domain.HealthProvider) ProviderInfo {
	info := ProviderInfo{Name: key, Amount: Placeholder, Takeover: provider.Takeover}
	if info.Name == "" {
		info.Name = Placeholder
	}
	if price := strings.TrimSpace(provider.MaxCoursePrice); price != "" {
		if !strings.Contains(price, Symbol) {
			price += Symbol
		}
		info.Amount = price
		return info
	}
	if m := takeoverAmount.FindStringSubmatch(provider.Takeover); m != nil {
		info.Amount = m[1] + Symbol
	}
	return info
}
