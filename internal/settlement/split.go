package settlement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// EqualSplit divides amount equally among participants, in minor units.
// Cents that do not divide evenly go one each to the first participants in
// lexical order, so the shares always add up to the amount exactly.
func EqualSplit(amount decimal.Decimal, participants []string) (map[string]decimal.Decimal, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	ids := dedupe(participants)
	n := decimal.NewFromInt(int64(len(ids)))

	totalCents := RoundMoney(amount).Shift(MinorUnitPlaces)
	baseCents := totalCents.Div(n).Floor()
	remainder := totalCents.Sub(baseCents.Mul(n)).IntPart()

	shares := make(map[string]decimal.Decimal, len(ids))
	for i, id := range ids {
		cents := baseCents
		if int64(i) < remainder {
			cents = cents.Add(decimal.NewFromInt(1))
		}
		shares[id] = cents.Shift(-MinorUnitPlaces)
	}
	return shares, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
