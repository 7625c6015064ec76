package models

import "github.com/shopspring/decimal"

// Settlement represents a payment between trip members to clear debts.
// It is persisted as a REPAYMENT expense paid by the debtor with the whole
// amount assigned to the creditor.
type Settlement struct {
	// TripID is the trip this settlement belongs to.
	TripID string

	// FromUserID is the user who paid (debtor settling up).
	FromUserID string

	// ToUserID is the user who received payment (creditor being paid).
	ToUserID string

	// Amount is the payment amount.
	Amount decimal.Decimal

	// Note is an optional description for the settlement.
	Note string
}

// Expense converts the settlement into its REPAYMENT expense.
func (s *Settlement) Expense() *Expense {
	desc := s.Note
	if desc == "" {
		desc = "Repayment"
	}
	return &Expense{
		TripID:      s.TripID,
		PayerID:     s.FromUserID,
		Amount:      s.Amount,
		Description: desc,
		Category:    CategoryRepayment,
		Split:       map[string]decimal.Decimal{s.ToUserID: s.Amount},
	}
}
