package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Transaction is one payment instruction: From pays To the Amount.
type Transaction struct {
	From   string
	To     string
	Amount decimal.Decimal
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s -> %s: %s", t.From, t.To, t.Amount.StringFixed(MinorUnitPlaces))
}

type party struct {
	id     string
	amount decimal.Decimal // always positive
}

// ComputeSettlement produces payments that bring every balance close to zero,
// within the bound Verify checks.
//
// Balances are rounded to the minor unit first. Then, greedily:
//   - creditors are balances above the tolerance, debtors below minus the tolerance
//   - take the largest debtor and the largest creditor, ties broken by id
//   - settle min(debt, credit) between them and drop whoever is left within tolerance
//
// Every step drops at least one party, so at most N-1 transactions are
// produced for N balances outside the tolerance. Balances within tolerance
// take no part and keep their dust. Output is deterministic for equal input.
func (e *Engine) ComputeSettlement(balances Balances) ([]Transaction, error) {
	sum := balances.Sum()
	if sum.Abs().GreaterThan(e.tolerance) {
		err := &UnbalancedInputError{Sum: sum, Balances: balances.Clone()}
		e.logger.Error("Settlement input is not zero-sum",
			"sum", sum.String(),
			"members", len(balances),
			"balances", formatBalances(balances),
		)
		return nil, err
	}

	rounded := Balances(roundPreservingSum(balances))

	var creditors, debtors []*party
	for id, amount := range rounded {
		switch {
		case amount.GreaterThan(e.tolerance):
			creditors = append(creditors, &party{id: id, amount: amount})
		case amount.LessThan(e.tolerance.Neg()):
			debtors = append(debtors, &party{id: id, amount: amount.Neg()})
		}
	}

	var txs []Transaction
	for len(debtors) > 0 && len(creditors) > 0 {
		di, ci := largest(debtors), largest(creditors)
		debtor, creditor := debtors[di], creditors[ci]

		amount := decimal.Min(debtor.amount, creditor.amount)
		txs = append(txs, Transaction{From: debtor.id, To: creditor.id, Amount: amount})

		debtor.amount = debtor.amount.Sub(amount)
		creditor.amount = creditor.amount.Sub(amount)

		if !debtor.amount.GreaterThan(e.tolerance) {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
		if !creditor.amount.GreaterThan(e.tolerance) {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
	}

	if err := e.Verify(rounded, txs); err != nil {
		e.logger.Error("Settlement does not clear balances",
			"balances", formatBalances(balances),
			"transactions", len(txs),
			"error", err,
		)
		return nil, err
	}

	return txs, nil
}

// largest returns the index of the party with the largest amount; equal
// amounts are ordered by id.
func largest(parties []*party) int {
	best := 0
	for i := 1; i < len(parties); i++ {
		p, b := parties[i], parties[best]
		if p.amount.GreaterThan(b.amount) || (p.amount.Equal(b.amount) && p.id < b.id) {
			best = i
		}
	}
	return best
}

// Replay applies transactions to a copy of the balances. Paying raises the
// payer's balance towards zero and lowers the receiver's.
func Replay(balances Balances, txs []Transaction) Balances {
	out := balances.Clone()
	for _, tx := range txs {
		out[tx.From] = out[tx.From].Add(tx.Amount)
		out[tx.To] = out[tx.To].Sub(tx.Amount)
	}
	return out
}

// Verify checks that txs only carry positive amounts and that replaying them
// leaves every balance near zero. The bound is the tolerance once per member:
// dust left on members excluded from settlement can end up on one creditor.
func (e *Engine) Verify(balances Balances, txs []Transaction) error {
	for _, tx := range txs {
		if !tx.Amount.IsPositive() {
			return &SettlementMismatchError{Reason: fmt.Sprintf("non-positive amount in %s", tx)}
		}
	}
	rest := Replay(balances, txs)
	bound := residualBound(e.tolerance, len(balances))
	for _, id := range rest.IDs() {
		if rest[id].Abs().GreaterThan(bound) {
			return &SettlementMismatchError{
				Reason:   fmt.Sprintf("%s left with %s", id, rest[id]),
				Residual: rest,
			}
		}
	}
	return nil
}

func residualBound(tolerance decimal.Decimal, members int) decimal.Decimal {
	return tolerance.Mul(decimal.NewFromInt(int64(max(members, 1))))
}

func formatBalances(b Balances) string {
	out := make([]byte, 0, 16*len(b))
	for i, id := range b.IDs() {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = append(out, id...)
		out = append(out, '=')
		out = append(out, b[id].String()...)
	}
	return string(out)
}
