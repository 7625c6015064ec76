package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/splitopus/splitopus/internal/settlement"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportExpenses writes the trip expenses to w as CSV, oldest first, with
// payer names resolved. Payers who are no longer members keep their id.
func (s *TripService) ExportExpenses(ctx context.Context, userID, tripID string, w io.Writer) error {
	trip, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return err
	}
	expenses, err := s.store.ListExpenses(ctx, tripID)
	if err != nil {
		return fmt.Errorf("failed to list expenses: %w", err)
	}
	slices.Reverse(expenses)

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Category", "Payer", fmt.Sprintf("Amount (%s)", trip.Currency), "Description"}); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, e := range expenses {
		payer, ok := names[e.PayerID]
		if !ok {
			payer = e.PayerID
		}
		record := []string{
			time.Unix(e.CreatedAt, 0).UTC().Format(exportTimeLayout),
			string(e.Category),
			payer,
			e.Amount.StringFixed(settlement.MinorUnitPlaces),
			e.Description,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write expense %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}

	s.logger.Info("Expenses exported", "trip_id", tripID, "user_id", userID, "expenses", len(expenses))
	return nil
}
