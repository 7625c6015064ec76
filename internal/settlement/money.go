package settlement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the number of decimal places of the currency minor unit.
const MinorUnitPlaces = 2

var (
	// MinorUnit is the smallest representable amount (one cent).
	MinorUnit = decimal.New(1, -MinorUnitPlaces)

	// DefaultTolerance is the rounding tolerance used for split sums,
	// zero-sum checks and settlement participation.
	DefaultTolerance = MinorUnit

	minTolerance = MinorUnit.Div(decimal.NewFromInt(2))
)

// RoundMoney rounds an amount to the currency minor unit.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitPlaces)
}

// roundPreservingSum rounds every value to the minor unit and then moves
// single cents between entries so the rounded values add up to the rounded
// exact total. Cents go to the entries that lost the most to rounding first,
// ties broken by id.
func roundPreservingSum(exact map[string]decimal.Decimal) map[string]decimal.Decimal {
	rounded := make(map[string]decimal.Decimal, len(exact))
	exactSum := decimal.Zero
	roundedSum := decimal.Zero
	for id, v := range exact {
		r := RoundMoney(v)
		rounded[id] = r
		exactSum = exactSum.Add(v)
		roundedSum = roundedSum.Add(r)
	}

	residual := RoundMoney(exactSum).Sub(roundedSum)
	if residual.IsZero() || len(rounded) == 0 {
		return rounded
	}

	ids := sortedIDs(exact)
	loss := func(id string) decimal.Decimal { return exact[id].Sub(rounded[id]) }

	step := MinorUnit
	if residual.IsNegative() {
		step = MinorUnit.Neg()
	}
	sort.SliceStable(ids, func(i, j int) bool {
		li, lj := loss(ids[i]), loss(ids[j])
		if residual.IsPositive() {
			return li.GreaterThan(lj)
		}
		return li.LessThan(lj)
	})

	cents := residual.Abs().Div(MinorUnit).IntPart()
	for k := int64(0); k < cents; k++ {
		id := ids[int(k)%len(ids)]
		rounded[id] = rounded[id].Add(step)
	}
	return rounded
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
