package models

import "github.com/shopspring/decimal"

// Trip is a shared context for expenses, members and notes.
type Trip struct {
	// ID is the unique identifier for the trip (UUID format).
	ID string

	// Code is the 6 character join code shared with friends.
	Code string

	// Name is the display name of the trip (e.g., "Phuket 2026").
	Name string

	// Currency is the trip currency code (THB, USD, ...).
	Currency string

	// Rate converts the trip currency to RUB for display. Zero means unset.
	Rate decimal.Decimal

	// CreatorID is the user who created the trip.
	CreatorID string

	// CreatedAt is the Unix timestamp when the trip was created.
	CreatedAt int64
}

// Member is a user as a participant of a trip.
type Member struct {
	ID   string
	Name string

	// LinkedTo is the household master this member settles through.
	// Empty when the member settles on their own.
	LinkedTo string

	// LinkRequest is the master this member asked to link to, pending
	// that master's approval.
	LinkRequest string
}

// Note is a free-form trip note.
type Note struct {
	ID         string
	TripID     string
	AuthorName string
	Text       string
	CreatedAt  int64
}
