package trip

import (
	"testing"
	"time"
)

func sampleQuery() Query {
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	return Query{
		Category:    CategoryHotel,
		Destination: "Paris",
		Dates:       DateRange{Start: start, End: start.AddDate(0, 0, 3)},
		PartySize:   2,
		Constraints: map[string]string{"stars": "4", "district": "montmartre"},
	}
}

func TestQuerySignatureStable(t *testing.T) {
	a := sampleQuery()
	b := sampleQuery()
	if a.Signature() != b.Signature() {
		t.Fatalf("identical queries must share a signature")
	}
	if a.Signature() != a.Signature() {
		t.Fatalf("signature must be deterministic across calls")
	}
}

func TestQuerySignatureNormalizesText(t *testing.T) {
	a := sampleQuery()
	b := sampleQuery()
	b.Destination = "  PARIS "
	if a.Signature() != b.Signature() {
		t.Fatalf("destination casing and whitespace must not change the signature")
	}
}

func TestQuerySignatureDiscriminates(t *testing.T) {
	base := sampleQuery()
	variants := []func(*Query){
		func(q *Query) { q.Category = CategoryFlight },
		func(q *Query) { q.Destination = "Rome" },
		func(q *Query) { q.PartySize = 4 },
		func(q *Query) { q.Dates = q.Dates.Shift(1) },
		func(q *Query) { q.Constraints = map[string]string{"stars": "5", "district": "montmartre"} },
	}
	for i, mutate := range variants {
		q := sampleQuery()
		mutate(&q)
		if q.Signature() == base.Signature() {
			t.Fatalf("variant %d: expected a different signature", i)
		}
	}
}

func TestPricingQueryKey(t *testing.T) {
	a := PricingQuery{Signature: sampleQuery().Signature(), OfferID: "h1", Params: map[string]string{"nights": "3"}}
	b := PricingQuery{Signature: a.Signature, OfferID: "h1", Params: map[string]string{"nights": "3"}}
	if a.Key() != b.Key() {
		t.Fatalf("identical pricing queries must share a key")
	}
	c := b
	c.Params = map[string]string{"nights": "4"}
	if c.Key() == a.Key() {
		t.Fatalf("different params must produce a different key")
	}
	d := b
	d.OfferID = "h2"
	if d.Key() == a.Key() {
		t.Fatalf("different offers must produce a different key")
	}
}
