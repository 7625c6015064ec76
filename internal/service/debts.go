package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/notify"
	"github.com/splitopus/splitopus/internal/settlement"
)

// Debt is one settlement payment with display names.
type Debt struct {
	FromID string
	From   string
	ToID   string
	To     string
	Amount decimal.Decimal
}

// DebtSummary is the balance sheet of a trip.
type DebtSummary struct {
	// Balances maps a settlement unit id to its net balance.
	Balances settlement.Balances
	// Names maps a settlement unit id to its household display name.
	Names map[string]string
	Debts []Debt
}

// Debts computes balances and the settlement plan of a trip.
func (s *TripService) Debts(ctx context.Context, userID, tripID string) (*DebtSummary, error) {
	trip, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}
	return s.debts(ctx, trip, members)
}

func (s *TripService) debts(ctx context.Context, trip *models.Trip, members []models.Member) (*DebtSummary, error) {
	expenses, err := s.store.ListExpenses(ctx, trip.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	roster, err := settlement.NewRoster(toEngineMembers(members))
	if err != nil {
		return nil, err
	}
	balances, err := s.engine.Aggregate(roster, toEngineExpenses(expenses))
	if err != nil {
		s.logger.Error("Balance aggregation failed", "trip_id", trip.ID, "error", err)
		return nil, err
	}

	txs, err := s.engine.ComputeSettlement(balances)
	s.recorder.ObserveSettlement(len(txs), err)
	if err != nil {
		return nil, err
	}

	names := householdNames(roster, members)
	summary := &DebtSummary{Balances: balances, Names: names}
	for _, tx := range txs {
		summary.Debts = append(summary.Debts, Debt{
			FromID: tx.From,
			From:   names[tx.From],
			ToID:   tx.To,
			To:     names[tx.To],
			Amount: tx.Amount,
		})
	}
	return summary, nil
}

// householdNames joins the names of every household, master first
// (e.g. "Anna + Kid").
func householdNames(roster *settlement.Roster, members []models.Member) map[string]string {
	byID := make(map[string]string, len(members))
	for _, m := range members {
		byID[m.ID] = m.Name
	}
	names := make(map[string]string)
	for unit, ids := range roster.Households() {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = byID[id]
		}
		names[unit] = strings.Join(parts, " + ")
	}
	return names
}

// NotifyDebts sends every debtor and creditor their settlement lines.
func (s *TripService) NotifyDebts(ctx context.Context, userID, tripID string) (notify.Result, error) {
	trip, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return notify.Result{}, err
	}
	return s.notifyDebts(ctx, trip, members)
}

func (s *TripService) notifyDebts(ctx context.Context, trip *models.Trip, members []models.Member) (notify.Result, error) {
	if s.notifier == nil {
		return notify.Result{}, ErrNotificationsDisabled
	}
	summary, err := s.debts(ctx, trip, members)
	if err != nil {
		return notify.Result{}, err
	}

	if len(summary.Debts) == 0 {
		return notify.Result{}, nil
	}

	debts := make([]notify.Debt, len(summary.Debts))
	for i, d := range summary.Debts {
		debts[i] = notify.Debt{FromID: d.FromID, FromName: d.From, ToID: d.ToID, ToName: d.To, Amount: d.Amount}
	}
	return s.notifier.NotifyDebts(ctx, trip, debts)
}

// RemindDebtors notifies debtors of every trip. Trips in cooldown or
// without debts are skipped; failures of single trips are collected.
func (s *TripService) RemindDebtors(ctx context.Context) error {
	trips, err := s.store.ListTrips(ctx)
	if err != nil {
		return fmt.Errorf("failed to list trips: %w", err)
	}

	var errs []error
	reminded := 0
	for _, trip := range trips {
		members, err := s.store.ListMembers(ctx, trip.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("trip %s: %w", trip.ID, err))
			continue
		}
		res, err := s.notifyDebts(ctx, trip, members)
		switch {
		case errors.Is(err, notify.ErrCooldown):
			continue
		case err != nil:
			s.logger.Warn("Debtor reminder failed", "trip_id", trip.ID, "error", err)
			errs = append(errs, fmt.Errorf("trip %s: %w", trip.ID, err))
		case res.Sent > 0:
			reminded++
		}
	}

	s.logger.Info("Debtor reminders done", "trips", len(trips), "reminded", reminded, "failed", len(errs))
	return errors.Join(errs...)
}
