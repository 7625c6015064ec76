// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/splitopus/splitopus/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMember is returned when a user joins a trip twice.
	ErrAlreadyMember = errors.New("already a member")
)

// Store defines the interface for trip ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	// UpsertUser creates the user or refreshes its name and username.
	UpsertUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by Telegram id.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// CreateTrip persists a new trip and adds its creator as the first member.
	// trip.ID, trip.Code and trip.CreatedAt are populated by the store when empty.
	CreateTrip(ctx context.Context, trip *models.Trip) error

	// GetTrip retrieves a trip by its ID.
	GetTrip(ctx context.Context, tripID string) (*models.Trip, error)

	// GetTripByCode retrieves a trip by its join code.
	GetTripByCode(ctx context.Context, code string) (*models.Trip, error)

	// UpdateTrip updates name, currency and rate of an existing trip.
	UpdateTrip(ctx context.Context, trip *models.Trip) error

	// ListTripsByUser returns the trips a user belongs to, newest first.
	ListTripsByUser(ctx context.Context, userID string) ([]*models.Trip, error)

	// ListTrips returns every trip, newest first.
	ListTrips(ctx context.Context) ([]*models.Trip, error)

	// AddMember adds a user to a trip. Returns ErrAlreadyMember on repeat joins.
	AddMember(ctx context.Context, tripID, userID string) error

	// ListMembers returns the members of a trip ordered by name.
	ListMembers(ctx context.Context, tripID string) ([]models.Member, error)

	// SetMemberLink sets (or clears, with an empty linkedTo) a household link
	// and drops the member's pending link request.
	SetMemberLink(ctx context.Context, tripID, memberID, linkedTo string) error

	// SetLinkRequest records (or withdraws, with an empty masterID) a
	// member's request to join a household.
	SetLinkRequest(ctx context.Context, tripID, memberID, masterID string) error

	// CreateExpense persists a new expense. expense.ID and CreatedAt are
	// populated by the store when empty.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense by its ID.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// ListExpenses returns the expenses of a trip, newest first.
	ListExpenses(ctx context.Context, tripID string) ([]*models.Expense, error)

	// DeleteExpense removes an expense.
	DeleteExpense(ctx context.Context, expenseID string) error

	// CreateNote persists a new note.
	CreateNote(ctx context.Context, note *models.Note) error

	// ListNotes returns the notes of a trip, newest first.
	ListNotes(ctx context.Context, tripID string) ([]*models.Note, error)

	// Close releases any resources held by the store.
	Close() error
}
