// Package settlement turns a trip's expenses into per-member balances and a
// short list of payments that clears them.
//
// All money is fixed point (shopspring/decimal). Balances are computed per
// settlement unit: a member linked to another member (a household) is folded
// into that member before aggregation.
package settlement

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// EmptySplitPolicy decides how an expense with no split entries is treated.
type EmptySplitPolicy string

const (
	// EmptySplitPayer charges the whole amount to the payer. Net effect on
	// balances is zero but the amount still counts as spending.
	EmptySplitPayer EmptySplitPolicy = "payer"
	// EmptySplitExclude ignores the expense everywhere.
	EmptySplitExclude EmptySplitPolicy = "exclude"
	// EmptySplitEveryone splits the amount equally across all settlement units.
	EmptySplitEveryone EmptySplitPolicy = "everyone"
)

// ParseEmptySplitPolicy validates a policy name. The empty string selects
// EmptySplitPayer.
func ParseEmptySplitPolicy(s string) (EmptySplitPolicy, error) {
	switch p := EmptySplitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return EmptySplitPayer, nil
	case EmptySplitPayer, EmptySplitExclude, EmptySplitEveryone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown empty split policy %q", s)
	}
}

// Engine computes balances and settlements. It holds configuration only and
// is safe for concurrent use.
type Engine struct {
	tolerance  decimal.Decimal
	emptySplit EmptySplitPolicy
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance overrides DefaultTolerance. Values below half a minor unit
// are raised to it, since balances are rounded to the minor unit before
// settlement.
func WithTolerance(t decimal.Decimal) Option {
	return func(e *Engine) { e.tolerance = decimal.Max(t.Abs(), minTolerance) }
}

// WithEmptySplitPolicy sets how unsplit expenses are handled.
func WithEmptySplitPolicy(p EmptySplitPolicy) Option {
	return func(e *Engine) { e.emptySplit = p }
}

// WithLogger sets the logger used to report invariant violations.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine with the default tolerance and the payer
// empty-split policy.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tolerance:  DefaultTolerance,
		emptySplit: EmptySplitPayer,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Tolerance returns the rounding tolerance of the engine.
func (e *Engine) Tolerance() decimal.Decimal {
	return e.tolerance
}

// EmptySplitPolicy returns the configured policy for unsplit expenses.
func (e *Engine) EmptySplitPolicy() EmptySplitPolicy {
	return e.emptySplit
}

var defaultEngine = NewEngine()

// ComputeBalances runs Engine.ComputeBalances with default settings.
func ComputeBalances(members []Member, expenses []Expense) (Balances, error) {
	return defaultEngine.ComputeBalances(members, expenses)
}

// ComputeSettlement runs Engine.ComputeSettlement with default settings.
func ComputeSettlement(balances Balances) ([]Transaction, error) {
	return defaultEngine.ComputeSettlement(balances)
}
