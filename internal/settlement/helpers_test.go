package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func split(kv ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = d(kv[i+1])
	}
	return out
}

func members(ids ...string) []Member {
	out := make([]Member, len(ids))
	for i, id := range ids {
		out[i] = Member{ID: id, Name: id}
	}
	return out
}

// assertBalances compares balances by value, ignoring decimal exponents.
func assertBalances(t *testing.T, want map[string]string, got Balances) {
	t.Helper()
	assert.Len(t, got, len(want), "balances: %v", got)
	for id, w := range want {
		v, ok := got[id]
		if assert.True(t, ok, "missing balance for %s", id) {
			assert.True(t, v.Equal(d(w)), "balance of %s = %s, want %s", id, v, w)
		}
	}
}

func assertTransactions(t *testing.T, want []Transaction, got []Transaction) {
	t.Helper()
	if !assert.Len(t, got, len(want), "transactions: %v", got) {
		return
	}
	for i := range want {
		assert.Equal(t, want[i].From, got[i].From, "tx %d from", i)
		assert.Equal(t, want[i].To, got[i].To, "tx %d to", i)
		assert.True(t, want[i].Amount.Equal(got[i].Amount), "tx %d amount = %s, want %s", i, got[i].Amount, want[i].Amount)
	}
}
