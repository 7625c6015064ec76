package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitopus/splitopus/internal/models"
)

// CreateNote persists a new note.
func (s *SQLiteStore) CreateNote(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.CreatedAt == 0 {
		note.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notes (id, trip_id, author_name, text, created_at) VALUES (?, ?, ?, ?, ?)",
		note.ID, note.TripID, note.AuthorName, note.Text, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// ListNotes returns the notes of a trip, newest first.
func (s *SQLiteStore) ListNotes(ctx context.Context, tripID string) ([]*models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, trip_id, author_name, text, created_at FROM notes WHERE trip_id = ? ORDER BY created_at DESC, id",
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note := &models.Note{}
		if err := rows.Scan(&note.ID, &note.TripID, &note.AuthorName, &note.Text, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}
