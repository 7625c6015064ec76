package models

import "github.com/shopspring/decimal"

// Expense is one payment made by a member on behalf of the trip.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// TripID is the trip this expense belongs to.
	TripID string

	// PayerID is the member who paid.
	PayerID string

	// Amount is the total paid, always positive.
	Amount decimal.Decimal

	Description string

	Category Category

	// Split maps a member (or household master) id to its share of Amount.
	// An empty split means the expense is unsplit.
	Split map[string]decimal.Decimal

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64
}

// IsRepayment reports whether the expense records a settlement payment.
func (e *Expense) IsRepayment() bool {
	return e.Category == CategoryRepayment
}
