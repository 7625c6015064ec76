package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/notify"
	"github.com/splitopus/splitopus/internal/settlement"
)

// ExpenseInput carries a new expense. Either Split or SplitEqually may be
// set; with neither the expense is unsplit.
type ExpenseInput struct {
	TripID      string
	PayerID     string
	Amount      decimal.Decimal
	Description string
	Category    string
	Split       map[string]decimal.Decimal
	// SplitEqually lists member ids to divide Amount between in whole cents.
	SplitEqually []string
}

// ListExpenses returns the trip expenses, newest first.
func (s *TripService) ListExpenses(ctx context.Context, userID, tripID string) ([]*models.Expense, error) {
	if _, _, err := s.tripForMember(ctx, userID, tripID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return expenses, nil
}

// CreateExpense validates and stores an expense, then notifies the members
// who got a share of it.
func (s *TripService) CreateExpense(ctx context.Context, userID string, in ExpenseInput) (*models.Expense, error) {
	trip, members, err := s.tripForMember(ctx, userID, in.TripID)
	if err != nil {
		return nil, err
	}

	category, err := models.ParseCategory(in.Category)
	if err != nil {
		return nil, invalid("%v", err)
	}

	payerID := in.PayerID
	if payerID == "" {
		payerID = userID
	}

	split := in.Split
	if len(in.SplitEqually) > 0 {
		if len(in.Split) > 0 {
			return nil, invalid("split and split_equally are mutually exclusive")
		}
		split, err = settlement.EqualSplit(in.Amount, in.SplitEqually)
		if err != nil {
			return nil, invalid("%v", err)
		}
	}

	expense := &models.Expense{
		TripID:      trip.ID,
		PayerID:     payerID,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		Split:       split,
	}
	return s.saveExpense(ctx, trip, members, expense)
}

// RecordRepayment stores a settlement payment as a REPAYMENT expense. The
// caller must be the payer (the default) or the receiver.
func (s *TripService) RecordRepayment(ctx context.Context, userID string, st models.Settlement) (*models.Expense, error) {
	trip, members, err := s.tripForMember(ctx, userID, st.TripID)
	if err != nil {
		return nil, err
	}
	if st.FromUserID == "" {
		st.FromUserID = userID
	}
	if st.FromUserID == st.ToUserID {
		return nil, invalid("cannot repay yourself")
	}
	if userID != st.FromUserID && userID != st.ToUserID {
		return nil, ErrForbidden
	}
	return s.saveExpense(ctx, trip, members, st.Expense())
}

// saveExpense runs the expense through the engine's validation before
// persisting it, so stored data always aggregates cleanly.
func (s *TripService) saveExpense(ctx context.Context, trip *models.Trip, members []models.Member, expense *models.Expense) (*models.Expense, error) {
	roster, err := settlement.NewRoster(toEngineMembers(members))
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Aggregate(roster, []settlement.Expense{toEngineExpense(expense)}); err != nil {
		s.logger.Warn("Expense rejected", "trip_id", trip.ID, "payer_id", expense.PayerID, "error", err)
		return nil, err
	}

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		s.logger.Error("CreateExpense failed", "trip_id", trip.ID, "error", err)
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	s.logger.Info("Expense created",
		"trip_id", trip.ID,
		"expense_id", expense.ID,
		"amount", expense.Amount.String(),
		"category", expense.Category,
	)

	s.notifyExpense(ctx, trip, members, roster, expense)
	return expense, nil
}

// notifyExpense sends share notifications in the background. Every
// settlement unit other than the payer's with a positive share is told.
func (s *TripService) notifyExpense(ctx context.Context, trip *models.Trip, members []models.Member, roster *settlement.Roster, expense *models.Expense) {
	if s.notifier == nil {
		return
	}

	payerUnit, err := roster.Resolve(expense.PayerID)
	if err != nil {
		return
	}
	perUnit := make(map[string]decimal.Decimal)
	for memberID, share := range expense.Split {
		unit, err := roster.Resolve(memberID)
		if err != nil || unit == payerUnit {
			continue
		}
		perUnit[unit] = perUnit[unit].Add(share)
	}

	var shares []notify.Share
	for _, unit := range roster.Units() {
		if amount, ok := perUnit[unit]; ok && amount.IsPositive() {
			shares = append(shares, notify.Share{UserID: unit, Amount: amount})
		}
	}
	if len(shares) == 0 {
		return
	}

	payerName := expense.PayerID
	for _, m := range members {
		if m.ID == expense.PayerID {
			payerName = m.Name
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		s.notifier.NotifyExpense(nctx, trip, payerName, expense, shares)
	}()
}

// DeleteExpense removes an expense of a trip the caller belongs to.
func (s *TripService) DeleteExpense(ctx context.Context, userID, expenseID string) error {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if _, _, err := s.tripForMember(ctx, userID, expense.TripID); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, expenseID); err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	s.logger.Info("Expense deleted", "trip_id", expense.TripID, "expense_id", expenseID, "user_id", userID)
	return nil
}
