package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// UnknownMemberError is returned when a payer or split key does not resolve
// to a member of the trip.
type UnknownMemberError struct {
	MemberID  string
	ExpenseID string
}

func (e *UnknownMemberError) Error() string {
	if e.ExpenseID != "" {
		return fmt.Sprintf("unknown member %q in expense %s", e.MemberID, e.ExpenseID)
	}
	return fmt.Sprintf("unknown member %q", e.MemberID)
}

// InvalidSplitError is returned when an expense amount or its split is malformed.
type InvalidSplitError struct {
	ExpenseID string
	Amount    decimal.Decimal
	SplitSum  decimal.Decimal
	Reason    string
}

func (e *InvalidSplitError) Error() string {
	return fmt.Sprintf("invalid split for expense %s: %s (amount %s, split sum %s)",
		e.ExpenseID, e.Reason, e.Amount, e.SplitSum)
}

// InvalidLinkError is returned when a household link points to a missing
// member, to itself or to a member that is linked elsewhere.
type InvalidLinkError struct {
	MemberID string
	LinkedTo string
	Reason   string
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid link %s -> %s: %s", e.MemberID, e.LinkedTo, e.Reason)
}

// UnbalancedInputError signals that balances handed to settlement do not add
// up to zero. It indicates a bug upstream of the settlement step.
type UnbalancedInputError struct {
	Sum      decimal.Decimal
	Balances Balances
}

func (e *UnbalancedInputError) Error() string {
	return fmt.Sprintf("balances do not sum to zero: sum %s over %d members", e.Sum, len(e.Balances))
}

// SettlementMismatchError is returned when replaying the computed
// transactions does not clear the balances. Like UnbalancedInputError it is
// an internal invariant violation.
type SettlementMismatchError struct {
	Reason   string
	Residual Balances
}

func (e *SettlementMismatchError) Error() string {
	return "settlement does not clear balances: " + e.Reason
}

// DuplicateMemberError is returned when a roster lists the same member twice.
type DuplicateMemberError struct {
	MemberID string
}

func (e *DuplicateMemberError) Error() string {
	return fmt.Sprintf("duplicate member %q", e.MemberID)
}
