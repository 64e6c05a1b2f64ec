package research

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/httpx"
	"github.com/Ashwinipuranik30/VoyAIge/internal/telemetry"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// searchRequest is the wire shape sent to the research collaborator.
type searchRequest struct {
	Category    string            `json:"category"`
	Origin      string            `json:"origin,omitempty"`
	Destination string            `json:"destination"`
	DateStart   string            `json:"date_start"`
	DateEnd     string            `json:"date_end"`
	PartySize   int               `json:"party_size"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

// searchResult is one offer as the research collaborator reports it.
type searchResult struct {
	ID            string   `json:"id"`
	Supplier      string   `json:"supplier"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	PriceCents    int64    `json:"price_cents"`
	Currency      string   `json:"currency"`
	Rating        float64  `json:"rating"`
	DurationHours float64  `json:"duration_hours"`
	Refundable    bool     `json:"refundable"`
	Tags          []string `json:"tags,omitempty"`
	DetailURL     string   `json:"detail_url,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Client searches the external offer-discovery collaborator. An empty result
// is not an error; the orchestrator decides whether the gap is fatal.
type Client struct {
	cfg       config.ResearchConfig
	http      *httpx.Client
	enricher  *Enricher
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewClient builds the research client. Enrichment is only active when the
// config enables it.
func NewClient(cfg config.ResearchConfig, tele *telemetry.Telemetry, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags)
	}
	c := &Client{
		cfg:       cfg,
		http:      httpx.New(cfg.Timeout, cfg.MaxRetries, cfg.Backoff),
		telemetry: tele,
		logger:    logger,
	}
	if cfg.EnrichEnabled {
		c.enricher = NewEnricher(cfg.EnrichTimeout, logger)
	}
	return c
}

// Search returns candidate offers for the query, stamped with the query
// signature and fetch time.
func (c *Client) Search(ctx context.Context, query trip.Query) ([]trip.Offer, error) {
	var resp searchResponse
	url := c.cfg.BaseURL + "/search"
	err := c.http.DoJSON(ctx, http.MethodPost, url, nil, searchRequest{
		Category:    string(query.Category),
		Origin:      query.Origin,
		Destination: query.Destination,
		DateStart:   query.Dates.Start.UTC().Format("2006-01-02"),
		DateEnd:     query.Dates.End.UTC().Format("2006-01-02"),
		PartySize:   query.PartySize,
		Constraints: query.Constraints,
	}, &resp)
	if c.telemetry != nil {
		c.telemetry.RecordResearch(len(resp.Results), err)
	}
	if err != nil {
		return nil, fmt.Errorf("research search for %s: %w", query.Category, err)
	}

	sig := query.Signature()
	now := time.Now()
	offers := make([]trip.Offer, 0, len(resp.Results))
	for i, r := range resp.Results {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		o := trip.Offer{
			ID:             id,
			QuerySignature: sig,
			Category:       query.Category,
			Supplier:       r.Supplier,
			Title:          r.Title,
			Description:    r.Description,
			PriceCents:     r.PriceCents,
			Currency:       r.Currency,
			Rating:         r.Rating,
			DurationHours:  r.DurationHours,
			Refundable:     r.Refundable,
			Tags:           r.Tags,
			FetchedAt:      now,
			Valid:          r.PriceCents > 0,
		}
		if c.enricher != nil && r.DetailURL != "" && o.Description == "" && i < c.cfg.EnrichLimit {
			if text, err := c.enricher.Describe(ctx, r.DetailURL); err == nil && text != "" {
				o.Description = text
			} else if err != nil {
				c.logger.Printf("enrichment skipped for %s: %v", r.DetailURL, err)
			}
		}
		offers = append(offers, o)
	}
	return offers, nil
}
