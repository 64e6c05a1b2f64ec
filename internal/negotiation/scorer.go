package negotiation

import (
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// Scoring weights for the offer quality components. Preference fit dominates;
// the budget-headroom term only breaks near-ties between selections.
const (
	ratingWeight     = 0.6
	interestWeight   = 0.3
	refundableWeight = 0.1
	headroomWeight   = 0.1
)

// OfferQuality scores one offer on its intrinsic attributes, in [0,1].
func OfferQuality(o trip.Offer) float64 {
	q := ratingWeight * clamp01(o.Rating/5.0)
	q += interestWeight * clamp01(o.InterestMatch)
	if o.Refundable {
		q += refundableWeight
	}
	return clamp01(q)
}

// Score computes the preference score for a selection: the category-weighted
// mean of offer quality plus a headroom bonus for feasible selections.
//
// Pure and deterministic: no side effects, no external calls, no randomness.
// Categories are visited in canonical order so repeated invocations over the
// same selection and preferences always yield the same value.
func Score(sel trip.CandidateSelection, intent trip.UserIntent) float64 {
	var weightSum, acc float64
	for _, c := range trip.Categories {
		o, ok := sel.Offers[c]
		if !ok {
			continue
		}
		w := intent.Weight(c)
		weightSum += w
		acc += w * OfferQuality(o)
	}
	if weightSum == 0 {
		return 0
	}
	score := acc / weightSum
	if intent.BudgetCents > 0 && sel.TotalCents > 0 && sel.TotalCents <= intent.BudgetCents {
		headroom := float64(intent.BudgetCents-sel.TotalCents) / float64(intent.BudgetCents)
		score += headroomWeight * headroom
	}
	return score
}

// Feasible reports whether an aggregate price fits the intent budget.
func Feasible(totalCents int64, intent trip.UserIntent) bool {
	return totalCents <= intent.BudgetCents
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
