/*
seed.go - Demo world loader

PURPOSE:
  Populates the ledger with a small cast of characters and a running
  bonus event so the API can be exercised immediately. Development
  convenience only; seeding an existing account is skipped, never an
  error, so the endpoint is safe to hit twice.
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stormhold/gold-engine/ledger"
	"github.com/stormhold/gold-engine/modifier"
)

// RulePutter is implemented by stores that persist bonus rules.
type RulePutter interface {
	PutRule(ctx context.Context, r modifier.Rule) error
}

var seedAccounts = []struct {
	ID      ledger.AccountID
	Opening int64
}{
	{"aldric-the-bold", 500},
	{"mira-shadowstep", 120},
	{"old-toma", 0},
	{"guildmaster-hale", 10000},
}

// Seed loads the demo world.
// POST /api/seed
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	created := 0
	for _, a := range seedAccounts {
		err := h.Store.CreateAccount(ctx, a.ID, a.Opening)
		if errors.Is(err, ledger.ErrAccountExists) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed accounts", err)
			return
		}
		created++
	}

	// A week-long harvest festival: +50% quest gold.
	if rules, ok := h.Store.(RulePutter); ok {
		festival := modifier.Rule{
			ID:         "harvest-festival",
			Name:       "Harvest Festival",
			Sources:    []ledger.Source{ledger.SourceQuestReward},
			Multiplier: decimal.NewFromFloat(1.5),
			StartsAt:   time.Now().UTC(),
			EndsAt:     time.Now().UTC().Add(7 * 24 * time.Hour),
		}
		if err := rules.PutRule(ctx, festival); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed bonus rules", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts_created": created,
		"accounts_total":   len(seedAccounts),
	})
}
