package trip

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Signature returns a stable digest identifying the query for caching and dedup.
// The digest covers category and normalized constraints; constraint map ordering
// never changes the result.
func (q Query) Signature() string {
	payload := map[string]interface{}{
		"category":    string(q.Category),
		"origin":      strings.ToLower(strings.TrimSpace(q.Origin)),
		"destination": strings.ToLower(strings.TrimSpace(q.Destination)),
		"date_start":  q.Dates.Start.UTC().Format("2006-01-02"),
		"date_end":    q.Dates.End.UTC().Format("2006-01-02"),
		"party_size":  q.PartySize,
		"constraints": q.Constraints,
	}
	return digest(payload)
}

// Key returns the quote cache key for this pricing request. Identical
// signature and parameters always map to the same key.
func (p PricingQuery) Key() string {
	payload := map[string]interface{}{
		"signature": p.Signature,
		"offer_id":  p.OfferID,
		"params":    p.Params,
	}
	return digest(payload)
}

// digest canonicalizes via JSON (map keys are emitted sorted) and hashes.
func digest(payload map[string]interface{}) string {
	normalized, _ := json.Marshal(payload)
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
