// Package service implements the trip ledger use cases on top of storage,
// the settlement engine and notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/notify"
	"github.com/splitopus/splitopus/internal/settlement"
	"github.com/splitopus/splitopus/internal/storage"
)

var (
	// ErrForbidden is returned when the caller is not a member of the trip
	// or may not act for the member concerned.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is wrapped by request validation errors.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotificationsDisabled is returned by notification requests when no
	// bot token is configured.
	ErrNotificationsDisabled = errors.New("notifications are disabled")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Notifier delivers trip notifications.
type Notifier interface {
	NotifyDebts(ctx context.Context, trip *models.Trip, debts []notify.Debt) (notify.Result, error)
	NotifyExpense(ctx context.Context, trip *models.Trip, payerName string, expense *models.Expense, shares []notify.Share) notify.Result
}

// SettlementRecorder observes settlement computations.
type SettlementRecorder interface {
	ObserveSettlement(transactions int, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSettlement(int, error) {}

const notifyTimeout = 30 * time.Second

// TripService implements every trip scoped operation. All methods taking a
// userID check that the user is a member of the trip.
type TripService struct {
	store    storage.Store
	engine   *settlement.Engine
	notifier Notifier
	recorder SettlementRecorder
	logger   *slog.Logger

	// background notifications
	wg sync.WaitGroup
}

// Option configures a TripService.
type Option func(*TripService)

// WithNotifier enables Telegram notifications.
func WithNotifier(n Notifier) Option {
	return func(s *TripService) { s.notifier = n }
}

// WithRecorder sets the settlement metrics recorder.
func WithRecorder(r SettlementRecorder) Option {
	return func(s *TripService) { s.recorder = r }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *TripService) { s.logger = l }
}

// NewTripService creates a new TripService with the given storage backend.
func NewTripService(store storage.Store, engine *settlement.Engine, opts ...Option) *TripService {
	s := &TripService{
		store:    store,
		engine:   engine,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until background notifications have finished.
func (s *TripService) Wait() {
	s.wg.Wait()
}

// ListTrips returns the trips of userID. Users may only list their own trips.
func (s *TripService) ListTrips(ctx context.Context, callerID, userID string) ([]*models.Trip, error) {
	if callerID != userID {
		return nil, ErrForbidden
	}
	trips, err := s.store.ListTripsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// TripInput carries the fields of a new trip.
type TripInput struct {
	Name     string
	Currency string
	Rate     decimal.Decimal
}

// CreateTrip creates a trip with the caller as its first member.
func (s *TripService) CreateTrip(ctx context.Context, userID string, in TripInput) (*models.Trip, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("trip name is required")
	}
	if in.Rate.IsNegative() {
		return nil, invalid("rate cannot be negative")
	}

	trip := &models.Trip{
		Name:      name,
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		Rate:      in.Rate,
		CreatorID: userID,
	}
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		s.logger.Error("CreateTrip failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	s.logger.Info("Trip created", "trip_id", trip.ID, "code", trip.Code, "user_id", userID)
	return trip, nil
}

// JoinTrip adds the caller to the trip with the given join code. Joining a
// trip twice is not an error.
func (s *TripService) JoinTrip(ctx context.Context, userID, code string) (*models.Trip, error) {
	if strings.TrimSpace(code) == "" {
		return nil, invalid("join code is required")
	}
	trip, err := s.store.GetTripByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	err = s.store.AddMember(ctx, trip.ID, userID)
	if errors.Is(err, storage.ErrAlreadyMember) {
		return trip, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join trip: %w", err)
	}

	s.logger.Info("Member joined trip", "trip_id", trip.ID, "user_id", userID)
	return trip, nil
}

// TripUpdate lists the trip fields to change. Nil fields are left as is.
type TripUpdate struct {
	Name     *string
	Currency *string
	Rate     *decimal.Decimal
}

// UpdateTrip changes name, currency or conversion rate.
func (s *TripService) UpdateTrip(ctx context.Context, userID, tripID string, upd TripUpdate) (*models.Trip, error) {
	trip, _, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("trip name cannot be empty")
		}
		trip.Name = name
	}
	if upd.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*upd.Currency))
		if currency == "" {
			return nil, invalid("currency cannot be empty")
		}
		trip.Currency = currency
	}
	if upd.Rate != nil {
		if upd.Rate.IsNegative() {
			return nil, invalid("rate cannot be negative")
		}
		trip.Rate = *upd.Rate
	}

	if err := s.store.UpdateTrip(ctx, trip); err != nil {
		return nil, fmt.Errorf("failed to update trip: %w", err)
	}
	s.logger.Info("Trip updated", "trip_id", trip.ID, "currency", trip.Currency, "rate", trip.Rate.String())
	return trip, nil
}

// MemberList is the member roster of a trip with household grouping.
type MemberList struct {
	Members []models.Member
	// Households maps every settlement unit to its member ids, master first.
	Households map[string][]string
}

// Members returns the trip members and their households.
func (s *TripService) Members(ctx context.Context, userID, tripID string) (*MemberList, error) {
	_, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}
	roster, err := settlement.NewRoster(toEngineMembers(members))
	if err != nil {
		return nil, err
	}
	return &MemberList{Members: members, Households: roster.Households()}, nil
}

// LinkState is the outcome of a LinkMember call.
type LinkState string

const (
	LinkRequested LinkState = "requested"
	LinkApproved  LinkState = "linked"
	LinkRemoved   LinkState = "unlinked"
)

// LinkMember changes memberID's household. Joining takes two calls: the
// member asks (userID == memberID) and the master approves
// (userID == linkedTo). An empty linkedTo leaves the household or withdraws
// the request; either the member or its current master may do that.
func (s *TripService) LinkMember(ctx context.Context, userID, tripID, memberID, linkedTo string) (LinkState, error) {
	_, members, err := s.tripForMember(ctx, userID, tripID)
	if err != nil {
		return "", err
	}

	idx := slices.IndexFunc(members, func(m models.Member) bool { return m.ID == memberID })
	if idx < 0 {
		return "", &settlement.UnknownMemberError{MemberID: memberID}
	}
	member := members[idx]

	if linkedTo == "" {
		if userID != memberID && userID != member.LinkedTo {
			return "", ErrForbidden
		}
		if err := s.store.SetMemberLink(ctx, tripID, memberID, ""); err != nil {
			return "", fmt.Errorf("failed to unlink member: %w", err)
		}
		s.logger.Info("Member unlinked", "trip_id", tripID, "member_id", memberID, "by", userID)
		return LinkRemoved, nil
	}

	requesting := userID == memberID
	approving := userID == linkedTo && member.LinkRequest == linkedTo
	if !requesting && !approving {
		return "", ErrForbidden
	}

	members[idx].LinkedTo = linkedTo
	if _, err := settlement.NewRoster(toEngineMembers(members)); err != nil {
		return "", err
	}

	if requesting {
		if err := s.store.SetLinkRequest(ctx, tripID, memberID, linkedTo); err != nil {
			return "", fmt.Errorf("failed to request link: %w", err)
		}
		s.logger.Info("Link requested", "trip_id", tripID, "member_id", memberID, "master_id", linkedTo)
		return LinkRequested, nil
	}

	if err := s.store.SetMemberLink(ctx, tripID, memberID, linkedTo); err != nil {
		return "", fmt.Errorf("failed to link member: %w", err)
	}
	s.logger.Info("Member linked", "trip_id", tripID, "member_id", memberID, "master_id", linkedTo)
	return LinkApproved, nil
}

// tripForMember loads the trip and its members and checks that userID
// belongs to it.
func (s *TripService) tripForMember(ctx context.Context, userID, tripID string) (*models.Trip, []models.Member, error) {
	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list members: %w", err)
	}
	for _, m := range members {
		if m.ID == userID {
			return trip, members, nil
		}
	}
	return nil, nil, ErrForbidden
}

func toEngineMembers(members []models.Member) []settlement.Member {
	out := make([]settlement.Member, len(members))
	for i, m := range members {
		out[i] = settlement.Member{ID: m.ID, Name: m.Name, LinkedTo: m.LinkedTo}
	}
	return out
}

func toEngineExpenses(expenses []*models.Expense) []settlement.Expense {
	out := make([]settlement.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = toEngineExpense(e)
	}
	return out
}

func toEngineExpense(e *models.Expense) settlement.Expense {
	return settlement.Expense{
		ID:        e.ID,
		PayerID:   e.PayerID,
		Amount:    e.Amount,
		Category:  e.Category,
		Split:     e.Split,
		CreatedAt: e.CreatedAt,
	}
}
