package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEqualSplit(t *testing.T) {
	tests := []struct {
		name         string
		amount       decimal.Decimal
		participants []string
		wantErr      bool
		validateFunc func(t *testing.T, shares map[string]decimal.Decimal)
	}{
		{
			name:         "even split between two",
			amount:       d("50"),
			participants: []string{"Bob", "Alice"},
			validateFunc: func(t *testing.T, shares map[string]decimal.Decimal) {
				for _, person := range []string{"Alice", "Bob"} {
					if !shares[person].Equal(d("25")) {
						t.Errorf("%s share = %s, want 25", person, shares[person])
					}
				}
			},
		},
		{
			name:         "leftover cent goes to the first id",
			amount:       d("100"),
			participants: []string{"Charlie", "Bob", "Alice"},
			validateFunc: func(t *testing.T, shares map[string]decimal.Decimal) {
				// 100 / 3 = 33.33 each, one cent left over
				want := map[string]string{"Alice": "33.34", "Bob": "33.33", "Charlie": "33.33"}
				for person, w := range want {
					if !shares[person].Equal(d(w)) {
						t.Errorf("%s share = %s, want %s", person, shares[person], w)
					}
				}
			},
		},
		{
			name:         "duplicates count once",
			amount:       d("10"),
			participants: []string{"Alice", "Alice", "Bob"},
			validateFunc: func(t *testing.T, shares map[string]decimal.Decimal) {
				if len(shares) != 2 {
					t.Errorf("got %d shares, want 2", len(shares))
				}
			},
		},
		{
			name:         "zero amount",
			amount:       decimal.Zero,
			participants: []string{"Alice"},
			validateFunc: func(t *testing.T, shares map[string]decimal.Decimal) {
				if !shares["Alice"].IsZero() {
					t.Errorf("Alice share = %s, want 0", shares["Alice"])
				}
			},
		},
		{
			name:         "no participants should error",
			amount:       d("10"),
			participants: []string{},
			wantErr:      true,
		},
		{
			name:         "negative amount should error",
			amount:       d("-10"),
			participants: []string{"Alice"},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := EqualSplit(tt.amount, tt.participants)
			if (err != nil) != tt.wantErr {
				t.Errorf("EqualSplit() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			sum := decimal.Zero
			for _, share := range shares {
				sum = sum.Add(share)
			}
			if !sum.Equal(RoundMoney(tt.amount)) {
				t.Errorf("shares sum to %s, want %s", sum, tt.amount)
			}
			if tt.validateFunc != nil {
				tt.validateFunc(t, shares)
			}
		})
	}
}
