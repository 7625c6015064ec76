package settlement

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/splitopus/splitopus/internal/models"
)

// UnitSummary is the aggregate position of one settlement unit.
type UnitSummary struct {
	UnitID string
	Paid   decimal.Decimal // total amount paid across all expenses, repayments included
	Owed   decimal.Decimal // total of the unit's split shares
	Net    decimal.Decimal // Positive = owed money, Negative = owes money
}

// Repayment is a recorded settlement between two units.
type Repayment struct {
	Counterparty string
	Amount       decimal.Decimal
	CreatedAt    int64
}

// TripStats summarizes spending across a whole trip.
type TripStats struct {
	TotalSpent decimal.Decimal // repayments excluded
	ByCategory map[models.Category]decimal.Decimal
	Units      []UnitSummary // ordered by unit id
}

// MemberStats summarizes one settlement unit's share of a trip.
type MemberStats struct {
	UnitID             string
	TotalShare         decimal.Decimal
	ByCategory         map[models.Category]decimal.Decimal
	RepaymentsMade     []Repayment
	RepaymentsReceived []Repayment
}

// TripStats computes trip-wide totals. Expenses are validated with the same
// rules as Aggregate.
func (e *Engine) TripStats(roster *Roster, expenses []Expense) (*TripStats, error) {
	balances, err := e.Aggregate(roster, expenses)
	if err != nil {
		return nil, err
	}

	stats := &TripStats{
		TotalSpent: decimal.Zero,
		ByCategory: make(map[models.Category]decimal.Decimal),
	}
	paid := make(map[string]decimal.Decimal, len(roster.units))
	owed := make(map[string]decimal.Decimal, len(roster.units))

	for _, exp := range expenses {
		payer, shares, err := e.unitShares(roster, exp)
		if err != nil {
			return nil, err
		}
		if shares == nil {
			continue
		}

		paid[payer] = paid[payer].Add(exp.Amount)
		for unit, share := range shares {
			owed[unit] = owed[unit].Add(share)
		}

		if exp.Category == models.CategoryRepayment {
			continue
		}
		stats.TotalSpent = stats.TotalSpent.Add(exp.Amount)
		stats.ByCategory[exp.Category] = stats.ByCategory[exp.Category].Add(exp.Amount)
	}

	for _, unit := range roster.units {
		stats.Units = append(stats.Units, UnitSummary{
			UnitID: unit,
			Paid:   paid[unit],
			Owed:   owed[unit],
			Net:    balances[unit],
		})
	}
	return stats, nil
}

// MemberStats computes the personal view of memberID. A linked member sees
// the figures of its household master.
func (e *Engine) MemberStats(roster *Roster, memberID string, expenses []Expense) (*MemberStats, error) {
	unit, err := roster.Resolve(memberID)
	if err != nil {
		return nil, err
	}

	stats := &MemberStats{
		UnitID:     unit,
		TotalShare: decimal.Zero,
		ByCategory: make(map[models.Category]decimal.Decimal),
	}

	for _, exp := range expenses {
		payer, shares, err := e.unitShares(roster, exp)
		if err != nil {
			return nil, err
		}
		if shares == nil {
			continue
		}

		if exp.Category == models.CategoryRepayment {
			for target, amount := range shares {
				switch {
				case payer == unit && target != unit:
					stats.RepaymentsMade = append(stats.RepaymentsMade,
						Repayment{Counterparty: target, Amount: amount, CreatedAt: exp.CreatedAt})
				case target == unit && payer != unit:
					stats.RepaymentsReceived = append(stats.RepaymentsReceived,
						Repayment{Counterparty: payer, Amount: amount, CreatedAt: exp.CreatedAt})
				}
			}
			continue
		}

		share, ok := shares[unit]
		if !ok || !share.IsPositive() {
			continue
		}
		stats.TotalShare = stats.TotalShare.Add(share)
		stats.ByCategory[exp.Category] = stats.ByCategory[exp.Category].Add(share)
	}

	sortRepayments(stats.RepaymentsMade)
	sortRepayments(stats.RepaymentsReceived)
	return stats, nil
}

func sortRepayments(r []Repayment) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].CreatedAt != r[j].CreatedAt {
			return r[i].CreatedAt < r[j].CreatedAt
		}
		return r[i].Counterparty < r[j].Counterparty
	})
}
