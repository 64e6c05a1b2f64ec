package negotiation

import (
	"log"
	"strconv"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// Proposal is the optimizer's output for one round.
type Proposal struct {
	Selection    trip.CandidateSelection
	Improved     bool                // beats the previous best feasible score
	Exhausted    bool                // no candidate improves on the previous best
	NeedsPricing []trip.PricingQuery // selected legs lacking a usable quote
}

// Input bundles everything one optimization round may consult.
type Input struct {
	Pool     map[trip.Category][]trip.Offer // insertion-ordered per category
	Intent   trip.UserIntent
	Previous *trip.CandidateSelection   // best feasible selection so far, nil on first round
	Quotes   map[string]trip.PriceQuote // negotiated quotes by offer ID
	Excluded map[string]bool            // offers unpriceable this round
	Now      time.Time
}

// Optimizer performs the per-round assignment search: one offer per mandatory
// category maximizing the preference score subject to the budget. Category
// counts are small, so the search enumerates exhaustively. Deterministic by
// construction: identical inputs always propose the same selection.
type Optimizer struct {
	logger *log.Logger
}

// NewOptimizer creates the assignment optimizer.
func NewOptimizer(logger *log.Logger) *Optimizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[OPTIMIZER] ", log.LstdFlags)
	}
	return &Optimizer{logger: logger}
}

// Propose picks the best selection available from the pool. Ties on score
// break by lower aggregate price, then by the earliest offer encountered.
// Offers without a listed price or usable quote are skipped rather than
// priced by guesswork; legs of the winning selection lacking a fresh quote
// come back marked for pricing.
func (o *Optimizer) Propose(in Input) (Proposal, error) {
	cats := in.Intent.Mandatory
	lists := make([][]trip.Offer, len(cats))
	for i, c := range cats {
		var usable []trip.Offer
		for _, of := range in.Pool[c] {
			if !of.Valid || in.Excluded[of.ID] {
				continue
			}
			if _, _, ok := effectivePrice(of, in.Quotes, in.Now); !ok {
				continue
			}
			usable = append(usable, of)
		}
		if len(usable) == 0 {
			return Proposal{}, ErrNoOffers{Category: c}
		}
		lists[i] = usable
	}

	var (
		found     bool
		bestCombo []trip.Offer
		bestTotal int64
		bestScore float64
		bestFea   bool
	)
	scratch := make(map[trip.Category]trip.Offer, len(cats))
	combo := make([]trip.Offer, len(cats))
	idx := make([]int, len(cats))
	for {
		var total int64
		for i := range cats {
			combo[i] = lists[i][idx[i]]
			price, _, _ := effectivePrice(combo[i], in.Quotes, in.Now)
			total += price
		}
		for i, c := range cats {
			scratch[c] = combo[i]
		}
		fea := Feasible(total, in.Intent)
		score := Score(trip.CandidateSelection{Offers: scratch, TotalCents: total}, in.Intent)
		if !found || better(fea, score, total, bestFea, bestScore, bestTotal) {
			found = true
			bestCombo = append(bestCombo[:0], combo...)
			bestTotal, bestScore, bestFea = total, score, fea
		}

		// odometer advance over the cartesian product
		k := len(idx) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < len(lists[k]) {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			break
		}
	}

	sel := trip.CandidateSelection{
		Offers:         make(map[trip.Category]trip.Offer, len(cats)),
		Quotes:         make(map[trip.Category]trip.PriceQuote, len(cats)),
		EffectiveDates: in.Intent.Dates,
		TotalCents:     bestTotal,
		Score:          bestScore,
		Feasible:       bestFea,
	}
	var needs []trip.PricingQuery
	for i, c := range cats {
		of := bestCombo[i]
		sel.Offers[c] = of
		if q, ok := in.Quotes[of.ID]; ok && q.Usable(in.Now) {
			sel.Quotes[c] = q
			continue
		}
		needs = append(needs, trip.PricingQuery{
			Signature: of.QuerySignature,
			OfferID:   of.ID,
			Params:    pricingParams(in.Intent, of),
		})
	}

	improved := bestFea && (in.Previous == nil || bestScore > in.Previous.Score)
	exhausted := in.Previous != nil && !improved
	return Proposal{Selection: sel, Improved: improved, Exhausted: exhausted, NeedsPricing: needs}, nil
}

// better reports whether candidate a beats candidate b. Feasible selections
// dominate infeasible ones; among feasible, higher score wins with price as
// the tie break; among infeasible, closest to budget wins.
func better(aFea bool, aScore float64, aTotal int64, bFea bool, bScore float64, bTotal int64) bool {
	if aFea != bFea {
		return aFea
	}
	if aFea {
		if aScore != bScore {
			return aScore > bScore
		}
		return aTotal < bTotal
	}
	if aTotal != bTotal {
		return aTotal < bTotal
	}
	return aScore > bScore
}

// effectivePrice resolves an offer's price from a usable quote first, falling
// back to the listed research price. ok is false when neither exists; the
// optimizer never fabricates a price.
func effectivePrice(o trip.Offer, quotes map[string]trip.PriceQuote, now time.Time) (int64, bool, bool) {
	if q, ok := quotes[o.ID]; ok && q.Usable(now) {
		return q.PriceCents, true, true
	}
	if o.PriceCents > 0 {
		return o.PriceCents, false, true
	}
	return 0, false, false
}

// pricingParams pins the negotiation parameters for an offer under an intent.
// Stable for a given (intent, offer) pair so repeated negotiations hit the
// same quote cache key.
func pricingParams(intent trip.UserIntent, o trip.Offer) map[string]string {
	return pricingParamsFor(intent.Dates, intent.PartySize, o)
}

// pricingParamsFor builds negotiation parameters for an explicit travel
// window. Exploratory re-negotiations shift the window to probe cheaper
// dates, producing distinct quote cache keys.
func pricingParamsFor(dates trip.DateRange, partySize int, o trip.Offer) map[string]string {
	p := map[string]string{
		"party_size": strconv.Itoa(partySize),
		"date_start": dates.Start.UTC().Format("2006-01-02"),
		"date_end":   dates.End.UTC().Format("2006-01-02"),
	}
	if o.Category == trip.CategoryHotel {
		p["nights"] = strconv.Itoa(dates.Nights())
	}
	return p
}
