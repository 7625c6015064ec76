// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
	joinCodeAttempts = 5
)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps PRAGMA foreign_keys in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrip persists a new trip and adds its creator as the first member.
// A fresh join code is drawn again if it collides with an existing one.
func (s *SQLiteStore) CreateTrip(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.CreatedAt == 0 {
		trip.CreatedAt = time.Now().Unix()
	}
	if trip.Currency == "" {
		trip.Currency = "THB"
	}
	generated := trip.Code == ""

	var err error
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		if generated {
			trip.Code = newJoinCode()
		}
		err = s.insertTrip(ctx, trip)
		if err == nil || !generated || !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("failed to allocate join code: %w", err)
}

func (s *SQLiteStore) insertTrip(ctx context.Context, trip *models.Trip) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trips (id, code, name, currency, rate, creator_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.Code, trip.Name, trip.Currency, trip.Rate, trip.CreatorID, trip.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO trip_members (trip_id, user_id, joined_at) VALUES (?, ?, ?)",
		trip.ID, trip.CreatorID, trip.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add trip creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const tripColumns = "id, code, name, currency, rate, creator_id, created_at"

// GetTrip retrieves a trip by ID.
func (s *SQLiteStore) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id = ?", tripID)
	trip, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip %s: %w", tripID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// GetTripByCode retrieves a trip by its join code, case-insensitively.
func (s *SQLiteStore) GetTripByCode(ctx context.Context, code string) (*models.Trip, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	row := s.db.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE code = ?", code)
	trip, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip code %s: %w", code, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip by code: %w", err)
	}
	return trip, nil
}

// UpdateTrip updates the mutable trip fields.
func (s *SQLiteStore) UpdateTrip(ctx context.Context, trip *models.Trip) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE trips SET name = ?, currency = ?, rate = ? WHERE id = ?",
		trip.Name, trip.Currency, trip.Rate, trip.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("trip %s: %w", trip.ID, storage.ErrNotFound)
	}
	return nil
}

// ListTripsByUser returns the trips the user is a member of.
func (s *SQLiteStore) ListTripsByUser(ctx context.Context, userID string) ([]*models.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.code, t.name, t.currency, t.rate, t.creator_id, t.created_at
		 FROM trips t
		 INNER JOIN trip_members m ON m.trip_id = t.id
		 WHERE m.user_id = ?
		 ORDER BY t.created_at DESC, t.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips by user: %w", err)
	}
	return collectTrips(rows)
}

// ListTrips returns every trip.
func (s *SQLiteStore) ListTrips(ctx context.Context) ([]*models.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tripColumns+" FROM trips ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return collectTrips(rows)
}

// AddMember adds a user to a trip.
func (s *SQLiteStore) AddMember(ctx context.Context, tripID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO trip_members (trip_id, user_id, joined_at) VALUES (?, ?, ?)",
		tripID, userID, time.Now().Unix(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s in trip %s: %w", userID, tripID, storage.ErrAlreadyMember)
	}
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// ListMembers returns trip members with their names and household links.
func (s *SQLiteStore) ListMembers(ctx context.Context, tripID string) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name, m.linked_to, m.link_request
		 FROM trip_members m
		 INNER JOIN users u ON u.id = m.user_id
		 WHERE m.trip_id = ?
		 ORDER BY u.name, u.id`,
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		var linked, requested sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &linked, &requested); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.LinkedTo = linked.String
		m.LinkRequest = requested.String
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// SetMemberLink stores the household master of a member and drops any
// pending link request. An empty linkedTo clears the link.
func (s *SQLiteStore) SetMemberLink(ctx context.Context, tripID, memberID, linkedTo string) error {
	return s.updateMember(ctx, "set member link",
		"UPDATE trip_members SET linked_to = ?, link_request = NULL WHERE trip_id = ? AND user_id = ?",
		nullable(linkedTo), tripID, memberID,
	)
}

// SetLinkRequest records that a member asked to join masterID's household.
// An empty masterID withdraws the request.
func (s *SQLiteStore) SetLinkRequest(ctx context.Context, tripID, memberID, masterID string) error {
	return s.updateMember(ctx, "set link request",
		"UPDATE trip_members SET link_request = ? WHERE trip_id = ? AND user_id = ?",
		nullable(masterID), tripID, memberID,
	)
}

func (s *SQLiteStore) updateMember(ctx context.Context, op, query string, value any, tripID, memberID string) error {
	res, err := s.db.ExecContext(ctx, query, value, tripID, memberID)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("member %s in trip %s: %w", memberID, tripID, storage.ErrNotFound)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (*models.Trip, error) {
	trip := &models.Trip{}
	err := row.Scan(&trip.ID, &trip.Code, &trip.Name, &trip.Currency, &trip.Rate, &trip.CreatorID, &trip.CreatedAt)
	if err != nil {
		return nil, err
	}
	return trip, nil
}

func collectTrips(rows *sql.Rows) ([]*models.Trip, error) {
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trips: %w", err)
	}
	return trips, nil
}

// newJoinCode draws a join code without look-alike characters (0/O, 1/I).
func newJoinCode() string {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
