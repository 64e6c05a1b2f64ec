package offers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// indexedOffer is the document shape stored in the full-text index.
type indexedOffer struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Supplier    string `json:"supplier"`
	Tags        string `json:"tags"`
}

// Pool is the passive per-session store of candidate offers, keyed by
// category. The research collaborator populates it; the optimizer reads it.
// An in-memory full-text index annotates each offer with how well it matches
// the traveler's stated interests.
type Pool struct {
	mu         sync.RWMutex
	byCategory map[trip.Category][]string // offer IDs in insertion order
	offers     map[string]trip.Offer
	index      bleve.Index
}

// NewPool creates an empty pool with a memory-only index.
func NewPool() (*Pool, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("offer index: %w", err)
	}
	return &Pool{
		byCategory: make(map[trip.Category][]string),
		offers:     make(map[string]trip.Offer),
		index:      index,
	}, nil
}

// Add stores offers and indexes their text. Offers are immutable once
// received: re-adding an already known ID is ignored.
func (p *Pool) Add(offers ...trip.Offer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range offers {
		if o.ID == "" {
			return fmt.Errorf("offer without ID for category %s", o.Category)
		}
		if _, exists := p.offers[o.ID]; exists {
			continue
		}
		p.offers[o.ID] = o
		p.byCategory[o.Category] = append(p.byCategory[o.Category], o.ID)
		doc := indexedOffer{
			Title:       o.Title,
			Description: o.Description,
			Supplier:    o.Supplier,
			Tags:        strings.Join(o.Tags, " "),
		}
		if err := p.index.Index(o.ID, doc); err != nil {
			return fmt.Errorf("index offer %s: %w", o.ID, err)
		}
	}
	return nil
}

// AnnotateInterests searches the index with the traveler's expanded interest
// vocabulary and writes a normalized match score onto each offer. Offers that
// match nothing keep a zero score. Safe to call again after more offers arrive.
func (p *Pool) AnnotateInterests(interests []string) error {
	words := ExpandInterests(interests)
	if len(words) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	query := bleve.NewMatchQuery(strings.Join(words, " "))
	req := bleve.NewSearchRequestOptions(query, len(p.offers), 0, false)
	res, err := p.index.Search(req)
	if err != nil {
		return fmt.Errorf("interest search: %w", err)
	}
	var top float64
	for _, hit := range res.Hits {
		if hit.Score > top {
			top = hit.Score
		}
	}
	if top == 0 {
		return nil
	}
	for _, hit := range res.Hits {
		o, ok := p.offers[hit.ID]
		if !ok {
			continue
		}
		o.InterestMatch = hit.Score / top
		p.offers[hit.ID] = o
	}
	return nil
}

// ByCategory returns the category's offers in insertion order.
func (p *Pool) ByCategory(c trip.Category) []trip.Offer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := p.byCategory[c]
	out := make([]trip.Offer, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.offers[id])
	}
	return out
}

// Snapshot returns all offers grouped by category, insertion order preserved.
// The optimizer consumes this shape directly.
func (p *Pool) Snapshot() map[trip.Category][]trip.Offer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[trip.Category][]trip.Offer, len(p.byCategory))
	for c, ids := range p.byCategory {
		list := make([]trip.Offer, 0, len(ids))
		for _, id := range ids {
			list = append(list, p.offers[id])
		}
		out[c] = list
	}
	return out
}

// CountValid returns how many valid offers the category holds.
func (p *Pool) CountValid(c trip.Category) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, id := range p.byCategory[c] {
		if p.offers[id].Valid {
			n++
		}
	}
	return n
}

// Close releases the underlying index.
func (p *Pool) Close() error {
	return p.index.Close()
}
