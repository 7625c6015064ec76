package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/splitopus/splitopus/internal/models"
)

const maxNoteLength = 4000

// ListNotes returns the notes of a trip.
func (s *TripService) ListNotes(ctx context.Context, userID, tripID string) ([]*models.Note, error) {
	if _, _, err := s.tripForMember(ctx, userID, tripID); err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// AddNote stores a note signed with the caller's name.
func (s *TripService) AddNote(ctx context.Context, userID, tripID, text string) (*models.Note, error) {
	_, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("note text is required")
	}
	if len(text) > maxNoteLength {
		return nil, invalid("note is longer than %d bytes", maxNoteLength)
	}

	author := userID
	for _, m := range members {
		if m.ID == userID {
			author = m.Name
		}
	}

	note := &models.Note{TripID: tripID, AuthorName: author, Text: text}
	if err := s.store.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return note, nil
}
