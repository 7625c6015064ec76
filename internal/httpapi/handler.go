// Package httpapi exposes the trip ledger as a REST/JSON API for the
// Telegram Mini App.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/splitopus/splitopus/internal/auth"
	"github.com/splitopus/splitopus/internal/middleware"
	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/service"
)

const serviceName = "splitopus"

// Pinger reports whether an optional dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the REST API.
type Handler struct {
	svc     *service.TripService
	authn   auth.Authenticator
	tokens  *auth.JWTManager
	metrics http.Handler
	pingers map[string]Pinger
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(a *Handler) { a.metrics = h }
}

// WithHealthCheck adds a dependency to the health report.
func WithHealthCheck(name string, p Pinger) Option {
	return func(a *Handler) { a.pingers[name] = p }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Handler) { a.logger = l }
}

// NewHandler creates the API handler.
func NewHandler(svc *service.TripService, authn auth.Authenticator, tokens *auth.JWTManager, opts ...Option) *Handler {
	h := &Handler{
		svc:     svc,
		authn:   authn,
		tokens:  tokens,
		pingers: make(map[string]Pinger),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint on a new mux. Everything under /api
// except the Telegram login requires a bearer token.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	protected := middleware.RequireAuth(h.tokens, h.unauthorized)
	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protected(fn))
	}

	mux.HandleFunc("GET /{$}", h.health)
	mux.HandleFunc("GET /healthz", h.health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	mux.HandleFunc("POST /api/auth/telegram", h.authTelegram)

	authed("GET /api/trips/{userId}", h.listTrips)
	authed("POST /api/trips", h.createTrip)
	authed("POST /api/trips/join", h.joinTrip)
	authed("PATCH /api/trips/{tripId}", h.updateTrip)

	authed("GET /api/members/{tripId}", h.listMembers)
	authed("POST /api/members/link", h.linkMember)

	authed("GET /api/expenses/{tripId}", h.listExpenses)
	authed("POST /api/expenses", h.createExpense)
	authed("DELETE /api/expenses/{expenseId}", h.deleteExpense)
	authed("GET /api/export/{tripId}", h.exportExpenses)
	authed("POST /api/repayments", h.recordRepayment)

	authed("GET /api/debts/{tripId}", h.debts)
	authed("POST /api/debts/{tripId}/notify", h.notifyDebts)
	authed("GET /api/stats/{tripId}", h.stats)

	authed("GET /api/notes/{tripId}", h.listNotes)
	authed("POST /api/notes", h.addNote)

	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ok", "service": serviceName}
	status := http.StatusOK
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "dependency", name, "error", err)
			resp[name] = "unavailable"
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (h *Handler) authTelegram(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, token, err := h.authn.Authenticate(r.Context(), req.InitData)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  userJSON{ID: user.ID, Name: user.Name, Username: user.Username},
	})
}

func (h *Handler) listTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := h.svc.ListTrips(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]tripJSON, len(trips))
	for i, t := range trips {
		out[i] = newTripJSON(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trip, err := h.svc.CreateTrip(r.Context(), middleware.GetUserID(r.Context()), service.TripInput{
		Name:     req.Name,
		Currency: req.Currency,
		Rate:     req.Rate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTripJSON(trip))
}

func (h *Handler) joinTrip(w http.ResponseWriter, r *http.Request) {
	var req joinTripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trip, err := h.svc.JoinTrip(r.Context(), middleware.GetUserID(r.Context()), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripJSON(trip))
}

func (h *Handler) updateTrip(w http.ResponseWriter, r *http.Request) {
	var req updateTripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trip, err := h.svc.UpdateTrip(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"), service.TripUpdate{
		Name:     req.Name,
		Currency: req.Currency,
		Rate:     req.Rate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripJSON(trip))
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Members(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMembersResponse(list))
}

func (h *Handler) linkMember(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	state, err := h.svc.LinkMember(r.Context(), middleware.GetUserID(r.Context()), req.TripID, req.MemberID, req.LinkedTo)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(state)})
}

func (h *Handler) exportExpenses(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripId")
	var buf bytes.Buffer
	if err := h.svc.ExportExpenses(r.Context(), middleware.GetUserID(r.Context()), tripID, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "expenses-"+tripID+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.svc.ListExpenses(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]expenseJSON, len(expenses))
	for i, e := range expenses {
		out[i] = newExpenseJSON(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	expense, err := h.svc.CreateExpense(r.Context(), middleware.GetUserID(r.Context()), service.ExpenseInput{
		TripID:       req.TripID,
		PayerID:      req.PayerID,
		Amount:       req.Amount,
		Description:  req.Description,
		Category:     req.Category,
		Split:        req.Split,
		SplitEqually: req.SplitEqually,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseJSON(expense))
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteExpense(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("expenseId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordRepayment(w http.ResponseWriter, r *http.Request) {
	var req repaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	expense, err := h.svc.RecordRepayment(r.Context(), middleware.GetUserID(r.Context()), models.Settlement{
		TripID:     req.TripID,
		FromUserID: req.FromID,
		ToUserID:   req.ToID,
		Amount:     req.Amount,
		Note:       req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseJSON(expense))
}

func (h *Handler) debts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Debts(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDebtsResponse(summary))
}

func (h *Handler) notifyDebts(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.NotifyDebts(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"), r.URL.Query().Get("user_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatsResponse(stats))
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.ListNotes(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("tripId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]noteJSON, len(notes))
	for i, n := range notes {
		out[i] = newNoteJSON(n)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	note, err := h.svc.AddNote(r.Context(), middleware.GetUserID(r.Context()), req.TripID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newNoteJSON(note))
}
