package settlement

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/splitopus/splitopus/internal/models"
)

// Expense is an expense with the minimal information needed for balance calculations.
type Expense struct {
	ID        string
	PayerID   string
	Amount    decimal.Decimal
	Category  models.Category
	Split     map[string]decimal.Decimal // member or settlement-unit id -> share
	CreatedAt int64
}

// Balances maps a settlement unit id to its net balance.
// Positive = is owed money, negative = owes money.
type Balances map[string]decimal.Decimal

// Sum returns the sum of all balances.
func (b Balances) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b {
		sum = sum.Add(v)
	}
	return sum
}

// Clone returns a copy of the balances.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for id, v := range b {
		out[id] = v
	}
	return out
}

// IDs returns the member ids in lexical order.
func (b Balances) IDs() []string {
	return sortedIDs(b)
}

// ComputeBalances aggregates expenses into net balances per settlement unit.
//
// For every expense the payer's unit is credited and every share is debited
// from the share holder's unit. Members linked to a household master never
// appear in the result; their shares accrue to the master. The returned
// values are rounded to the minor unit and add up to exactly zero.
func (e *Engine) ComputeBalances(members []Member, expenses []Expense) (Balances, error) {
	roster, err := NewRoster(members)
	if err != nil {
		return nil, err
	}
	return e.Aggregate(roster, expenses)
}

// Aggregate is ComputeBalances over an already validated roster.
func (e *Engine) Aggregate(roster *Roster, expenses []Expense) (Balances, error) {
	exact := make(map[string]decimal.Decimal, len(roster.units))
	for _, unit := range roster.units {
		exact[unit] = decimal.Zero
	}

	for _, exp := range expenses {
		payer, shares, err := e.unitShares(roster, exp)
		if err != nil {
			return nil, err
		}
		if shares == nil {
			continue
		}

		// The payer is credited with what the shares add up to. Any residual
		// within tolerance stays with the payer so the ledger remains zero-sum.
		credited := decimal.Zero
		for unit, share := range shares {
			exact[unit] = exact[unit].Sub(share)
			credited = credited.Add(share)
		}
		exact[payer] = exact[payer].Add(credited)
	}

	return Balances(roundPreservingSum(exact)), nil
}

// unitShares validates one expense and returns its payer unit and the shares
// keyed by settlement unit. A nil map means the expense is excluded.
func (e *Engine) unitShares(roster *Roster, exp Expense) (string, map[string]decimal.Decimal, error) {
	payer, err := roster.Resolve(exp.PayerID)
	if err != nil {
		return "", nil, withExpense(err, exp.ID)
	}

	if !exp.Amount.IsPositive() {
		return "", nil, &InvalidSplitError{
			ExpenseID: exp.ID,
			Amount:    exp.Amount,
			SplitSum:  decimal.Zero,
			Reason:    "amount must be positive",
		}
	}

	if len(exp.Split) == 0 {
		switch e.emptySplit {
		case EmptySplitExclude:
			return payer, nil, nil
		case EmptySplitEveryone:
			shares, err := EqualSplit(exp.Amount, roster.units)
			if err != nil {
				return "", nil, err
			}
			return payer, shares, nil
		default:
			return payer, map[string]decimal.Decimal{payer: exp.Amount}, nil
		}
	}

	shares := make(map[string]decimal.Decimal, len(exp.Split))
	sum := decimal.Zero
	for memberID, share := range exp.Split {
		if share.IsNegative() {
			return "", nil, &InvalidSplitError{
				ExpenseID: exp.ID,
				Amount:    exp.Amount,
				SplitSum:  share,
				Reason:    "share of " + memberID + " is negative",
			}
		}
		unit, err := roster.Resolve(memberID)
		if err != nil {
			return "", nil, withExpense(err, exp.ID)
		}
		shares[unit] = shares[unit].Add(share)
		sum = sum.Add(share)
	}

	if sum.Sub(exp.Amount).Abs().GreaterThan(e.tolerance) {
		return "", nil, &InvalidSplitError{
			ExpenseID: exp.ID,
			Amount:    exp.Amount,
			SplitSum:  sum,
			Reason:    "split does not add up to the amount",
		}
	}

	return payer, shares, nil
}

func withExpense(err error, expenseID string) error {
	var unknown *UnknownMemberError
	if errors.As(err, &unknown) {
		return &UnknownMemberError{MemberID: unknown.MemberID, ExpenseID: expenseID}
	}
	return err
}
