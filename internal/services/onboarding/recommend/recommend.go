// Package recommend turns survey answers into course recommendations.
package recommend

import (
	"sort"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// Course types the survey scores against.
const (
	TypeStress    = "STRESS"
	TypeFitness   = "FITNESS"
	TypeNutrition = "NUTRITION"
)

// TopN is how many course types are recommended.
const TopN = 2

// companion is injected when the survey only ever named one type.
var companion = map[string]string{
	TypeStress:    TypeFitness,
	TypeFitness:   TypeNutrition,
	TypeNutrition: TypeStress,
}

// TypeCount is one tallied course type.
type TypeCount struct {
	Type  string
	Count int
}

// Counts tallies answer types in first-seen order.
type Counts []TypeCount

// Tally counts the types of both answer groups.
func Tally(first, second []domain.SurveyAnswer) Counts {
	var counts Counts
	index := map[string]int{}
	for _, group := range [][]domain.SurveyAnswer{first, second} {
		for _, answer := range group {
			if i, ok := index[answer.Type]; ok {
				counts[i].Count++
				continue
			}
			index[answer.Type] = len(counts)
			counts = append(counts, TypeCount{Type: answer.Type, Count: 1})
		}
	}
	return counts
}

// Map returns the counts keyed by type, the persisted shape.
func (c Counts) Map() map[string]int {
	out := make(map[string]int, len(c))
	for _, tc := range c {
		out[tc.Type] = tc.Count
	}
	return out
}

// Result is a computed recommendation.
type Result struct {
	// Counts is the tally before any companion injection.
	Counts Counts
	// Types are the top course types, best first.
	Types []string
	// Courses are the matching course slugs in catalog order.
	Courses []string
}

// Recommend ranks counts and filters catalog to the top types. Ties keep
// first-seen order.
func Recommend(counts Counts, catalog []domain.Course) Result {
	ranked := append(Counts(nil), counts...)
	if len(ranked) == 1 {
		if extra, ok := companion[ranked[0].Type]; ok {
			ranked = append(ranked, TypeCount{Type: extra, Count: 1})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}

	res := Result{Counts: counts}
	top := make(map[string]bool, len(ranked))
	for _, tc := range ranked {
		res.Types = append(res.Types, tc.Type)
		top[tc.Type] = true
	}
	for _, course := range catalog {
		if top[course.Slug] {
			res.Courses = append(res.Courses, course.Slug)
		}
	}
	return res
}

// FromAnswers tallies and recommends in one call.
func FromAnswers(first, second []domain.SurveyAnswer, catalog []domain.Course) Result {
	return Recommend(Tally(first, second), catalog)
}
