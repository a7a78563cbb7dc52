/*
Package modifier applies contextual bonus rules to credited gold.

PURPOSE:
  The game world runs bonus events - a harvest festival doubling quest
  gold, a server-wide +10% weekend. This package looks up the rules
  active at credit time and scales the amount before it is journaled.

CONTRACT:
  The lookup is read-only and BEST-EFFORT. Any failure (timeout, missing
  dependency, bad rule data) degrades to "no modifier applied". A gold
  award must never fail because the bonus-event system is down; the
  Pipeline therefore never returns an error from Apply.

RULE SEMANTICS:
  - A rule is active when startsAt <= now < endsAt
  - An empty Sources list matches every source category
  - Multipliers compose multiplicatively, then flat bonuses add:
      result = floor(amount * m1 * m2 * ...) + b1 + b2 + ...
  - A result below zero clamps to zero (penalty events cannot take gold
    the credit never contained)

PRECISION:
  Multipliers use decimal.Decimal so a 1.1x event on 35 gold yields a
  predictable 38, not float drift.

SEE ALSO:
  - ledger/service.go: The only caller, via the AmountModifier contract
  - store/sqlite, store/postgres: Rule providers backed by SQL tables
*/
package modifier

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stormhold/gold-engine/ledger"
)

// =============================================================================
// RULE - One active bonus/penalty event
// =============================================================================

type Rule struct {
	ID         string
	Name       string
	Sources    []ledger.Source // empty = all sources
	Multiplier decimal.Decimal // 1 = neutral
	Bonus      int64           // flat gold added after multipliers
	StartsAt   time.Time
	EndsAt     time.Time
}

// ActiveAt reports whether the rule is in effect at the given instant.
func (r Rule) ActiveAt(at time.Time) bool {
	return !at.Before(r.StartsAt) && at.Before(r.EndsAt)
}

// Matches reports whether the rule applies to the given source category.
func (r Rule) Matches(source ledger.Source) bool {
	if len(r.Sources) == 0 {
		return true
	}
	for _, s := range r.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// =============================================================================
// PROVIDER - Where the rules come from
// =============================================================================

// Provider returns the rules that are candidates for a credit. Providers may
// pre-filter by account or source but are not required to; the Pipeline
// re-checks ActiveAt and Matches.
type Provider interface {
	ActiveRules(ctx context.Context, id ledger.AccountID, source ledger.Source) ([]Rule, error)
}

// StaticProvider serves a fixed rule set. Useful for tests and for worlds
// that configure events at boot.
type StaticProvider struct {
	Rules []Rule
}

func (p *StaticProvider) ActiveRules(_ context.Context, _ ledger.AccountID, _ ledger.Source) ([]Rule, error) {
	return p.Rules, nil
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, id ledger.AccountID, source ledger.Source) ([]Rule, error)

func (f ProviderFunc) ActiveRules(ctx context.Context, id ledger.AccountID, source ledger.Source) ([]Rule, error) {
	return f(ctx, id, source)
}

// =============================================================================
// PIPELINE - Best-effort application
// =============================================================================

// DefaultLookupTimeout bounds the rule lookup so a stuck provider cannot
// stall a credit.
const DefaultLookupTimeout = 250 * time.Millisecond

// Pipeline implements ledger.AmountModifier over a Provider.
type Pipeline struct {
	Provider      Provider
	LookupTimeout time.Duration // zero = DefaultLookupTimeout
	Logger        *log.Logger
	Now           func() time.Time // zero = time.Now
}

func NewPipeline(provider Provider) *Pipeline {
	return &Pipeline{Provider: provider}
}

// ModifyCredit returns the amount after all matching active rules. Provider
// failures are logged and yield the unmodified amount with a nil error; the
// ledger.Service additionally guards against erroring implementations.
func (p *Pipeline) ModifyCredit(ctx context.Context, id ledger.AccountID, source ledger.Source, amount int64) (int64, error) {
	if p.Provider == nil {
		return amount, nil
	}

	timeout := p.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rules, err := p.Provider.ActiveRules(lookupCtx, id, source)
	if err != nil {
		p.logf("bonus rule lookup failed for account %s source %s: %v", id, source, err)
		return amount, nil
	}

	return p.apply(rules, source, amount), nil
}

func (p *Pipeline) apply(rules []Rule, source ledger.Source, amount int64) int64 {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	result := decimal.NewFromInt(amount)
	var bonus int64
	for _, r := range rules {
		if !r.ActiveAt(now) || !r.Matches(source) {
			continue
		}
		if !r.Multiplier.IsZero() {
			result = result.Mul(r.Multiplier)
		}
		bonus += r.Bonus
	}

	modified := result.Floor().IntPart() + bonus
	if modified < 0 {
		return 0
	}
	return modified
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

var _ ledger.AmountModifier = (*Pipeline)(nil)
