package settlement

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(from, to, amount string) Transaction {
	return Transaction{From: from, To: to, Amount: d(amount)}
}

func bal(kv ...string) Balances {
	return Balances(split(kv...))
}

func TestComputeSettlement(t *testing.T) {
	tests := []struct {
		name     string
		balances Balances
		want     []Transaction
	}{
		{
			name:     "one creditor two debtors",
			balances: bal("A", "200", "B", "-100", "C", "-100"),
			want:     []Transaction{tx("B", "A", "100"), tx("C", "A", "100")},
		},
		{
			name:     "two members",
			balances: bal("A", "25", "B", "-25"),
			want:     []Transaction{tx("B", "A", "25")},
		},
		{
			name:     "tie broken by lexical id",
			balances: bal("A", "100", "C", "-50", "B", "-50"),
			want:     []Transaction{tx("B", "A", "50"), tx("C", "A", "50")},
		},
		{
			name:     "largest pair first",
			balances: bal("A", "70", "B", "30", "C", "-60", "D", "-40"),
			want:     []Transaction{tx("C", "A", "60"), tx("D", "B", "30"), tx("D", "A", "10")},
		},
		{
			name:     "all settled",
			balances: bal("A", "0", "B", "0"),
			want:     nil,
		},
		{
			name:     "empty",
			balances: Balances{},
			want:     nil,
		},
		{
			name:     "balances at the tolerance are excluded",
			balances: bal("A", "0.01", "B", "-0.01"),
			want:     nil,
		},
		{
			name:     "just above the tolerance settles",
			balances: bal("A", "0.02", "B", "-0.02"),
			want:     []Transaction{tx("B", "A", "0.02")},
		},
		{
			name:     "dust debtors do not pay",
			balances: bal("A", "0.02", "B", "-0.01", "C", "-0.01"),
			want:     nil,
		},
		{
			name:     "dust stays with the creditor",
			balances: bal("A", "10.01", "B", "-10", "C", "-0.01"),
			want:     []Transaction{tx("B", "A", "10")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeSettlement(tt.balances)
			require.NoError(t, err)
			assertTransactions(t, tt.want, got)

			bound := residualBound(DefaultTolerance, len(tt.balances))
			for id, v := range Replay(tt.balances, got) {
				assert.True(t, v.Abs().LessThanOrEqual(bound), "%s left with %s", id, v)
			}
		})
	}
}

func TestComputeSettlementUnbalanced(t *testing.T) {
	_, err := ComputeSettlement(bal("A", "100", "B", "-50"))
	var unbalanced *UnbalancedInputError
	require.True(t, errors.As(err, &unbalanced))
	assert.True(t, unbalanced.Sum.Equal(d("50")))
}

func TestComputeSettlementWithinTolerance(t *testing.T) {
	balances := bal("A", "10.005", "B", "-10")
	txs, err := ComputeSettlement(balances)
	require.NoError(t, err)
	assertTransactions(t, []Transaction{tx("B", "A", "10")}, txs)
}

func TestComputeSettlementSubCentTolerance(t *testing.T) {
	engine := NewEngine(WithTolerance(decimal.Zero))
	assert.True(t, engine.Tolerance().Equal(d("0.005")))

	txs, err := engine.ComputeSettlement(bal("A", "0.005", "B", "-0.005"))
	require.NoError(t, err)
	assertTransactions(t, []Transaction{tx("B", "A", "0.01")}, txs)

	assert.True(t, NewEngine(WithTolerance(d("-0.5"))).Tolerance().Equal(d("0.5")))
}

func TestVerify(t *testing.T) {
	engine := NewEngine()
	balances := bal("A", "30", "B", "-30")

	assert.NoError(t, engine.Verify(balances, []Transaction{tx("B", "A", "30")}))
	assert.NoError(t, engine.Verify(balances, []Transaction{tx("B", "A", "29.98")}))

	var mismatch *SettlementMismatchError
	require.ErrorAs(t, engine.Verify(balances, []Transaction{tx("B", "A", "20")}), &mismatch)
	assert.True(t, mismatch.Residual["A"].Equal(d("10")))
	assert.Contains(t, mismatch.Error(), "A left with 10")

	err := engine.Verify(balances, []Transaction{tx("B", "A", "0"), tx("B", "A", "30")})
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, err.Error(), "non-positive amount")

	var unbalanced *UnbalancedInputError
	assert.False(t, errors.As(err, &unbalanced))
}

func TestScenarios(t *testing.T) {
	t.Run("household debt settles through the master", func(t *testing.T) {
		roster := []Member{{ID: "A"}, {ID: "B1"}, {ID: "B2", LinkedTo: "B1"}}
		balances, err := ComputeBalances(roster, []Expense{
			{ID: "e1", PayerID: "A", Amount: d("100"), Split: split("B1", "50", "B2", "50")},
		})
		require.NoError(t, err)
		_, hasLinked := balances["B2"]
		assert.False(t, hasLinked)

		txs, err := ComputeSettlement(balances)
		require.NoError(t, err)
		assertTransactions(t, []Transaction{tx("B1", "A", "100")}, txs)
	})

	t.Run("three-way tie is stable across runs", func(t *testing.T) {
		want := []Transaction{tx("B", "A", "50"), tx("C", "A", "50")}
		for i := 0; i < 50; i++ {
			got, err := ComputeSettlement(bal("A", "100", "B", "-50", "C", "-50"))
			require.NoError(t, err)
			assertTransactions(t, want, got)
		}
	})
}

// randomTrip builds a trip with households and cent-exact or sub-cent splits.
func randomTrip(r *rand.Rand) ([]Member, []Expense) {
	n := 2 + r.Intn(9)
	var ms []Member
	for i := 0; i < n; i++ {
		m := Member{ID: fmt.Sprintf("m%02d", i)}
		if i > 0 && r.Intn(4) == 0 && ms[0].LinkedTo == "" {
			m.LinkedTo = ms[0].ID
		}
		ms = append(ms, m)
	}

	var exps []Expense
	count := r.Intn(30)
	for e := 0; e < count; e++ {
		amount := decimal.New(int64(1+r.Intn(500000)), -2)
		payer := ms[r.Intn(n)].ID

		var participants []string
		for _, m := range ms {
			if r.Intn(2) == 0 {
				participants = append(participants, m.ID)
			}
		}
		if len(participants) == 0 {
			participants = []string{payer}
		}

		shares, err := EqualSplit(amount, participants)
		if err != nil {
			panic(err)
		}
		if r.Intn(3) == 0 {
			// thirds of a cent, still summing to the amount
			third := amount.Div(decimal.NewFromInt(3))
			shares = map[string]decimal.Decimal{
				participants[0]: third,
				payer:           amount.Sub(third),
			}
			if participants[0] == payer {
				shares = map[string]decimal.Decimal{payer: amount}
			}
		}
		exps = append(exps, Expense{ID: fmt.Sprintf("e%d", e), PayerID: payer, Amount: amount, Split: shares})
	}
	return ms, exps
}

func TestSettlementProperties(t *testing.T) {
	r := rand.New(rand.NewSource(20260101))

	for i := 0; i < 300; i++ {
		ms, exps := randomTrip(r)

		balances, err := ComputeBalances(ms, exps)
		require.NoError(t, err, "trip %d", i)
		require.True(t, balances.Sum().IsZero(), "trip %d: balances sum to %s", i, balances.Sum())

		outside := 0
		for _, v := range balances {
			assert.True(t, v.Equal(RoundMoney(v)), "trip %d: %s not in minor units", i, v)
			if v.Abs().GreaterThan(DefaultTolerance) {
				outside++
			}
		}

		txs, err := ComputeSettlement(balances)
		require.NoError(t, err, "trip %d", i)

		if outside > 0 {
			assert.LessOrEqual(t, len(txs), outside-1, "trip %d", i)
		} else {
			assert.Empty(t, txs)
		}

		for _, tr := range txs {
			assert.True(t, tr.Amount.IsPositive())
			assert.NotEqual(t, tr.From, tr.To)
		}

		bound := residualBound(DefaultTolerance, len(balances))
		for id, v := range Replay(balances, txs) {
			assert.True(t, v.Abs().LessThanOrEqual(bound), "trip %d: %s left with %s", i, id, v)
		}

		again, err := ComputeSettlement(balances.Clone())
		require.NoError(t, err)
		assertTransactions(t, txs, again)
	}
}

func TestTransactionString(t *testing.T) {
	assert.Equal(t, "B -> A: 12.50", tx("B", "A", "12.5").String())
}
