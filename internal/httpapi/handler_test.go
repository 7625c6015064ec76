package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitopus/splitopus/internal/auth"
	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/notify"
	"github.com/splitopus/splitopus/internal/service"
	"github.com/splitopus/splitopus/internal/settlement"
	"github.com/splitopus/splitopus/internal/storage"
	"github.com/splitopus/splitopus/internal/storage/sqlite"
	"github.com/splitopus/splitopus/internal/telegram"
)

func TestMain(m *testing.M) {
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}

const testBotToken = "123456:TEST-token"

type stubNotifier struct {
	debtErr error
}

func (s *stubNotifier) NotifyDebts(_ context.Context, _ *models.Trip, debts []notify.Debt) (notify.Result, error) {
	if s.debtErr != nil {
		return notify.Result{}, s.debtErr
	}
	return notify.Result{Sent: 2 * len(debts)}, nil
}

func (s *stubNotifier) NotifyExpense(_ context.Context, _ *models.Trip, _ string, _ *models.Expense, shares []notify.Share) notify.Result {
	return notify.Result{Sent: len(shares)}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	t         *testing.T
	server    *httptest.Server
	validator *auth.InitDataValidator
	notifier  *stubNotifier
	svc       *service.TripService
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	notifier := &stubNotifier{}
	svc := service.NewTripService(store, settlement.NewEngine(), service.WithNotifier(notifier))
	tokens := auth.NewJWTManager("test-secret", time.Hour)
	validator := auth.NewInitDataValidator(testBotToken, 0)
	authn := auth.NewTelegramAuthenticator(validator, tokens, store)

	h := NewHandler(svc, authn, tokens, opts...)
	server := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		server.Close()
		svc.Wait()
		store.Close()
	})
	return &testServer{t: t, server: server, validator: validator, notifier: notifier, svc: svc}
}

func (s *testServer) initData(id int64, name string) string {
	values := url.Values{}
	values.Set("auth_date", fmt.Sprint(time.Now().Unix()))
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":%q}`, id, name))
	values.Set("hash", s.validator.Sign(values))
	return values.Encode()
}

// login authenticates a Telegram user and returns their bearer token.
func (s *testServer) login(id int64, name string) string {
	var resp authResponse
	status := s.do(http.MethodPost, "/api/auth/telegram", "", authRequest{InitData: s.initData(id, name)}, &resp)
	require.Equal(s.t, http.StatusOK, status)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func (s *testServer) do(method, path, token string, body, out any) int {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s := newTestServer(t)
		var resp map[string]any
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil, &resp))
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, "splitopus", resp["service"])

		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/", "", nil, nil))
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/unknown", "", nil, nil))
	})

	t.Run("degraded dependency", func(t *testing.T) {
		s := newTestServer(t, WithHealthCheck("redis", failingPinger{errors.New("dial tcp: refused")}))
		var resp map[string]any
		assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/healthz", "", nil, &resp))
		assert.Equal(t, "degraded", resp["status"])
		assert.Equal(t, "unavailable", resp["redis"])
	})
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	t.Run("bad init data", func(t *testing.T) {
		var resp errorResponse
		status := s.do(http.MethodPost, "/api/auth/telegram", "", authRequest{InitData: "user=%7B%7D&hash=00"}, &resp)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "error", resp.Status)
	})

	t.Run("protected route without token", func(t *testing.T) {
		var resp errorResponse
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/trips/1", "", nil, &resp))
		assert.Equal(t, auth.ErrMissingToken.Error(), resp.Message)
	})

	t.Run("other user's trips", func(t *testing.T) {
		token := s.login(1, "Anna")
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/trips/2", token, nil, nil))
	})
}

func TestAuthWithoutBotToken(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens := auth.NewJWTManager("test-secret", time.Hour)
	validator := auth.NewInitDataValidator("", 0)
	authn := auth.NewTelegramAuthenticator(validator, tokens, store)
	h := NewHandler(service.NewTripService(store, settlement.NewEngine()), authn, tokens)
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)
	s := &testServer{t: t, server: server, validator: validator}

	var resp errorResponse
	status := s.do(http.MethodPost, "/api/auth/telegram", "", authRequest{InitData: s.initData(7, "Mallory")}, &resp)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "error", resp.Status)

	_, err = store.GetUser(context.Background(), "7")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTripFlow(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(1, "Anna")
	boris := s.login(2, "Boris")
	vera := s.login(3, "Vera")

	var trip tripJSON
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", anna,
		map[string]any{"name": "Phuket", "currency": "THB", "rate": 2.5}, &trip))
	assert.Len(t, trip.Code, 6)
	assert.True(t, trip.Rate.Equal(decimal.RequireFromString("2.5")))

	for _, token := range []string{boris, vera} {
		var joined tripJSON
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/trips/join", token, joinTripRequest{Code: trip.Code}, &joined))
		assert.Equal(t, trip.ID, joined.ID)
	}

	var trips []tripJSON
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/trips/2", boris, nil, &trips))
	require.Len(t, trips, 1)

	// Anna pays 300 for everyone, Boris pays 90 for Vera.
	var expense expenseJSON
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/expenses", anna, map[string]any{
		"trip_id":  trip.ID,
		"amount":   300,
		"category": "food",
		"split":    map[string]any{"1": 100, "2": 100, "3": 100},
	}, &expense))
	assert.Equal(t, models.CategoryFood, expense.Category)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/expenses", boris, map[string]any{
		"trip_id":       trip.ID,
		"amount":        "90",
		"description":   "taxi",
		"category":      "TRANSPORT",
		"split_equally": []string{"3"},
	}, nil))

	t.Run("debts", func(t *testing.T) {
		var resp debtsResponse
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/debts/"+trip.ID, vera, nil, &resp))
		assert.True(t, resp.Balances["Anna"].Equal(decimal.NewFromInt(200)))
		assert.True(t, resp.Balances["Boris"].Equal(decimal.NewFromInt(-10)))
		assert.True(t, resp.Balances["Vera"].Equal(decimal.NewFromInt(-190)))
		require.Len(t, resp.Debts, 2)
		assert.Equal(t, debtJSON{From: "Vera", To: "Anna", FromID: "3", ToID: "1", Amount: resp.Debts[0].Amount}, resp.Debts[0])
		assert.True(t, resp.Debts[0].Amount.Equal(decimal.NewFromInt(190)))
	})

	t.Run("amounts are JSON numbers", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/api/debts/"+trip.ID, nil)
		req.Header.Set("Authorization", "Bearer "+anna)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `"Anna":200`)
	})

	t.Run("household link", func(t *testing.T) {
		link := linkRequest{TripID: trip.ID, MemberID: "3", LinkedTo: "2"}
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/members/link", anna, link, nil))

		var state map[string]string
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/members/link", vera, link, &state))
		assert.Equal(t, "requested", state["status"])

		var members membersResponse
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/members/"+trip.ID, anna, nil, &members))
		require.Len(t, members.Households, 3)
		assert.Contains(t, members.Members, memberJSON{ID: "3", Name: "Vera", LinkRequest: "2"})

		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/members/link", boris, link, &state))
		assert.Equal(t, "linked", state["status"])

		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/members/"+trip.ID, anna, nil, &members))
		require.Len(t, members.Households, 2)
		assert.Equal(t, householdJSON{Master: "2", Members: []string{"2", "3"}}, members.Households[1])

		var resp debtsResponse
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/debts/"+trip.ID, anna, nil, &resp))
		assert.True(t, resp.Balances["Boris + Vera"].Equal(decimal.NewFromInt(-200)))

		var errResp errorResponse
		assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodPost, "/api/members/link", anna,
			linkRequest{TripID: trip.ID, MemberID: "1", LinkedTo: "3"}, &errResp))
		assert.Contains(t, errResp.Message, "invalid link")
	})

	t.Run("repayment for other members is forbidden", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/repayments", vera,
			map[string]any{"trip_id": trip.ID, "from_id": "2", "to_id": "1", "amount": 200}, nil))
	})

	t.Run("repayment", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/repayments", boris,
			map[string]any{"trip_id": trip.ID, "to_id": "1", "amount": 200}, nil))

		var resp debtsResponse
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/debts/"+trip.ID, anna, nil, &resp))
		assert.Empty(t, resp.Debts)
	})

	t.Run("stats", func(t *testing.T) {
		var resp statsResponse
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/stats/"+trip.ID+"?user_id=1", boris, nil, &resp))
		assert.True(t, resp.TotalSpent.Equal(decimal.NewFromInt(390)))
		assert.Equal(t, "1", resp.UnitID)
		require.NotEmpty(t, resp.Overall)
		assert.Equal(t, models.CategoryFood, resp.Overall[0].Category)
		require.Len(t, resp.RepaymentsReceived, 1)
		assert.Equal(t, "Boris + Vera", resp.RepaymentsReceived[0].Name)
	})

	t.Run("invalid split", func(t *testing.T) {
		var resp errorResponse
		status := s.do(http.MethodPost, "/api/expenses", anna, map[string]any{
			"trip_id": trip.ID,
			"amount":  100,
			"split":   map[string]any{"1": 10},
		}, &resp)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, resp.Message, "split does not add up")
	})

	t.Run("export", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/api/export/"+trip.ID, nil)
		req.Header.Set("Authorization", "Bearer "+vera)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "expenses-"+trip.ID+".csv")

		records, err := csv.NewReader(resp.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "Amount (THB)", records[0][3])
		payers := []string{records[1][2], records[2][2], records[3][2]}
		assert.ElementsMatch(t, []string{"Anna", "Boris", "Boris"}, payers)

		outsider := s.login(5, "Dina")
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/export/"+trip.ID, outsider, nil, nil))
	})

	t.Run("list and delete expense", func(t *testing.T) {
		var expenses []expenseJSON
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/expenses/"+trip.ID, vera, nil, &expenses))
		require.Len(t, expenses, 3)
		categories := make([]models.Category, len(expenses))
		for i, e := range expenses {
			categories[i] = e.Category
		}
		assert.ElementsMatch(t, []models.Category{models.CategoryFood, models.CategoryTransport, models.CategoryRepayment}, categories)

		assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/expenses/"+expense.ID, vera, nil, nil))
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/expenses/"+expense.ID, vera, nil, nil))
	})

	t.Run("update trip", func(t *testing.T) {
		var updated tripJSON
		require.Equal(t, http.StatusOK, s.do(http.MethodPatch, "/api/trips/"+trip.ID, vera,
			map[string]any{"currency": "usd"}, &updated))
		assert.Equal(t, "USD", updated.Currency)
		assert.Equal(t, "Phuket", updated.Name)
	})

	t.Run("notes", func(t *testing.T) {
		var note noteJSON
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/notes", vera,
			addNoteRequest{TripID: trip.ID, Text: "Ferry at 9"}, &note))
		assert.Equal(t, "Vera", note.AuthorName)

		var notes []noteJSON
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/notes/"+trip.ID, anna, nil, &notes))
		assert.Len(t, notes, 1)
	})

	t.Run("outsider", func(t *testing.T) {
		outsider := s.login(4, "Gleb")
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/debts/"+trip.ID, outsider, nil, nil))
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/debts/nope", outsider, nil, nil))
	})
}

func TestNotifyDebtsEndpoint(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(1, "Anna")
	boris := s.login(2, "Boris")

	var trip tripJSON
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", anna, createTripRequest{Name: "Bali"}, &trip))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/trips/join", boris, joinTripRequest{Code: trip.Code}, nil))
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/expenses", anna, map[string]any{
		"trip_id": trip.ID, "amount": 50, "split": map[string]any{"2": 50},
	}, nil))

	var res notify.Result
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/debts/"+trip.ID+"/notify", boris, nil, &res))
	assert.Equal(t, 2, res.Sent)

	s.notifier.debtErr = notify.ErrCooldown
	var errResp errorResponse
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/debts/"+trip.ID+"/notify", boris, nil, &errResp))
	assert.Equal(t, "error", errResp.Status)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get trip: %w", storage.ErrNotFound), http.StatusNotFound},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"invalid input", fmt.Errorf("%w: name", service.ErrInvalidInput), http.StatusBadRequest},
		{"cooldown", notify.ErrCooldown, http.StatusTooManyRequests},
		{"disabled", service.ErrNotificationsDisabled, http.StatusServiceUnavailable},
		{"no bot token", telegram.ErrNotConfigured, http.StatusServiceUnavailable},
		{"expired init data", auth.ErrExpiredInitData, http.StatusUnauthorized},
		{"unknown member", &settlement.UnknownMemberError{MemberID: "x"}, http.StatusUnprocessableEntity},
		{"invalid split", &settlement.InvalidSplitError{Reason: "r"}, http.StatusUnprocessableEntity},
		{"invalid link", &settlement.InvalidLinkError{Reason: "r"}, http.StatusUnprocessableEntity},
		{"duplicate member", &settlement.DuplicateMemberError{MemberID: "x"}, http.StatusUnprocessableEntity},
		{"unbalanced", &settlement.UnbalancedInputError{}, http.StatusInternalServerError},
		{"settlement mismatch", &settlement.SettlementMismatchError{}, http.StatusInternalServerError},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := errorStatus(tt.err)
			assert.Equal(t, tt.want, status)
			if status == http.StatusInternalServerError {
				assert.False(t, strings.Contains(msg, "disk"), "internal details leaked: %s", msg)
			}
		})
	}
}
