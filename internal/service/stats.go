package service

import (
	"context"
	"fmt"

	"github.com/splitopus/splitopus/internal/settlement"
)

// TripStats combines the trip wide and personal spending summaries.
type TripStats struct {
	Trip  *settlement.TripStats
	Mine  *settlement.MemberStats
	Names map[string]string
}

// Stats returns spending statistics of a trip as seen by memberID. An empty
// memberID means the caller.
func (s *TripService) Stats(ctx context.Context, userID, tripID, memberID string) (*TripStats, error) {
	_, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}
	if memberID == "" {
		memberID = userID
	}

	expenses, err := s.store.ListExpenses(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	roster, err := settlement.NewRoster(toEngineMembers(members))
	if err != nil {
		return nil, err
	}
	engineExpenses := toEngineExpenses(expenses)

	overall, err := s.engine.TripStats(roster, engineExpenses)
	if err != nil {
		return nil, err
	}
	mine, err := s.engine.MemberStats(roster, memberID, engineExpenses)
	if err != nil {
		return nil, err
	}

	return &TripStats{Trip: overall, Mine: mine, Names: householdNames(roster, members)}, nil
}
