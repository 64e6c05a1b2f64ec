package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/booking"
	"github.com/Ashwinipuranik30/VoyAIge/internal/capability"
	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/pricing"
	"github.com/Ashwinipuranik30/VoyAIge/internal/research"
	"github.com/Ashwinipuranik30/VoyAIge/internal/store"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// planCMD runs a single negotiation end to end without the HTTP server or
// Postgres: sessions live in memory and the result prints to stdout. The
// research and pricing collaborators still come from config.
func planCMD() *cobra.Command {
	var (
		cfgPath     string
		destination string
		origin      string
		startDate   string
		endDate     string
		partySize   int
		budgetCents int64
		currency    string
		mandatory   []string
		interests   []string
		timeout     time.Duration
	)

	var plan = &cobra.Command{
		Use:   "plan",
		Short: "Negotiate one itinerary and print the resulting plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			intent, err := buildPlanIntent(destination, origin, startDate, endDate,
				partySize, budgetCents, currency, mandatory, interests)
			if err != nil {
				return err
			}

			registry, err := capability.NewRegistry(capability.DefaultRoleCards(),
				cfg.Capability.SigningSecret, cfg.Capability.RequiredRoles)
			if err != nil {
				return fmt.Errorf("capability registry: %w", err)
			}

			mem := store.NewMemory()
			researchClient := research.NewClient(cfg.Research, nil, nil)
			pricingClient := pricing.NewClient(cfg.Pricing, nil, nil, nil)
			bookingClient := booking.NewClient(cfg.Booking, nil, nil)

			orch, err := negotiation.NewOrchestrator(negotiation.Defaults{
				MaxRounds:         cfg.Negotiation.MaxRounds,
				EpsilonCents:      cfg.Negotiation.EpsilonCents,
				MaxTimeSeconds:    int64(cfg.Negotiation.MaxSessionTime.Seconds()),
				ExplorationRounds: cfg.Negotiation.ExplorationRounds,
				MinConfidence:     cfg.Negotiation.MinConfidence,
			}, negotiation.Options{}, registry, researchClient, pricingClient, bookingClient,
				mem, nil, nil)
			if err != nil {
				return fmt.Errorf("orchestrator: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sess, err := orch.Submit(ctx, "cli", intent, negotiation.Limits{})
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}

			status, err := waitTerminal(ctx, orch, sess.SessionID)
			if err != nil {
				return err
			}
			if status.State != negotiation.StateFinalized {
				return fmt.Errorf("negotiation ended in %s: %s", status.State, status.Error)
			}

			finalized, ok, err := mem.GetPlan(ctx, sess.SessionID)
			if err != nil {
				return fmt.Errorf("load plan: %w", err)
			}
			if !ok {
				return fmt.Errorf("no plan recorded for session %s", sess.SessionID)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(finalized)
		},
	}

	plan.Flags().StringVar(&destination, "destination", "", "trip destination (required)")
	plan.Flags().StringVar(&origin, "origin", "", "trip origin")
	plan.Flags().StringVar(&startDate, "start", "", "start date YYYY-MM-DD (required)")
	plan.Flags().StringVar(&endDate, "end", "", "end date YYYY-MM-DD (required)")
	plan.Flags().IntVar(&partySize, "party", 1, "party size")
	plan.Flags().Int64Var(&budgetCents, "budget-cents", 0, "total budget in minor units (required)")
	plan.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	plan.Flags().StringSliceVar(&mandatory, "mandatory", nil, "mandatory categories (default all)")
	plan.Flags().StringSliceVar(&interests, "interests", nil, "interest tags")
	plan.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	plan.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return plan
}

func buildPlanIntent(destination, origin, startDate, endDate string, partySize int,
	budgetCents int64, currency string, mandatory, interests []string) (trip.UserIntent, error) {

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return trip.UserIntent{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return trip.UserIntent{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	cats := make([]trip.Category, 0, len(mandatory))
	for _, m := range mandatory {
		cats = append(cats, trip.Category(m))
	}
	if len(cats) == 0 {
		cats = append(cats, trip.Categories...)
	}
	if code, ok := trip.NormalizeCurrency(currency); ok {
		currency = code
	}

	intent := trip.UserIntent{
		Origin:      origin,
		Destination: destination,
		Dates:       trip.DateRange{Start: start, End: end},
		PartySize:   partySize,
		BudgetCents: budgetCents,
		Currency:    currency,
		Interests:   interests,
		Mandatory:   cats,
	}
	if err := intent.Validate(); err != nil {
		return trip.UserIntent{}, err
	}
	return intent, nil
}

func waitTerminal(ctx context.Context, orch *negotiation.Orchestrator, sessionID string) (negotiation.Status, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		status, err := orch.Status(ctx, sessionID)
		if err != nil {
			return negotiation.Status{}, fmt.Errorf("status: %w", err)
		}
		if status.State.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			orch.Cancel(sessionID)
			return negotiation.Status{}, fmt.Errorf("negotiation deadline exceeded in state %s", status.State)
		case <-ticker.C:
		}
	}
}
