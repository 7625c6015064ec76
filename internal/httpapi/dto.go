package httpapi

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/service"
	"github.com/splitopus/splitopus/internal/settlement"
)

type authRequest struct {
	InitData string `json:"init_data"`
}

type userJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userJSON `json:"user"`
}

type tripJSON struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Rate      decimal.Decimal `json:"rate"`
	CreatorID string          `json:"creator_id"`
	CreatedAt int64           `json:"created_at"`
}

func newTripJSON(t *models.Trip) tripJSON {
	return tripJSON{
		ID:        t.ID,
		Code:      t.Code,
		Name:      t.Name,
		Currency:  t.Currency,
		Rate:      t.Rate,
		CreatorID: t.CreatorID,
		CreatedAt: t.CreatedAt,
	}
}

type createTripRequest struct {
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

type joinTripRequest struct {
	Code string `json:"code"`
}

type updateTripRequest struct {
	Name     *string          `json:"name"`
	Currency *string          `json:"currency"`
	Rate     *decimal.Decimal `json:"rate"`
}

type memberJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LinkedTo    string `json:"linked_to,omitempty"`
	LinkRequest string `json:"link_request,omitempty"`
}

type householdJSON struct {
	Master  string   `json:"master"`
	Members []string `json:"members"`
}

type membersResponse struct {
	Members    []memberJSON    `json:"members"`
	Households []householdJSON `json:"households"`
}

func newMembersResponse(list *service.MemberList) membersResponse {
	resp := membersResponse{
		Members:    make([]memberJSON, len(list.Members)),
		Households: make([]householdJSON, 0, len(list.Households)),
	}
	for i, m := range list.Members {
		resp.Members[i] = memberJSON{ID: m.ID, Name: m.Name, LinkedTo: m.LinkedTo, LinkRequest: m.LinkRequest}
	}
	for _, master := range sortedKeys(list.Households) {
		resp.Households = append(resp.Households, householdJSON{Master: master, Members: list.Households[master]})
	}
	return resp
}

type linkRequest struct {
	TripID   string `json:"trip_id"`
	MemberID string `json:"member_id"`
	LinkedTo string `json:"linked_to"`
}

type expenseJSON struct {
	ID          string                     `json:"id"`
	TripID      string                     `json:"trip_id"`
	PayerID     string                     `json:"payer_id"`
	Amount      decimal.Decimal            `json:"amount"`
	Description string                     `json:"description"`
	Category    models.Category            `json:"category"`
	Split       map[string]decimal.Decimal `json:"split"`
	CreatedAt   int64                      `json:"created_at"`
}

func newExpenseJSON(e *models.Expense) expenseJSON {
	split := e.Split
	if split == nil {
		split = map[string]decimal.Decimal{}
	}
	return expenseJSON{
		ID:          e.ID,
		TripID:      e.TripID,
		PayerID:     e.PayerID,
		Amount:      e.Amount,
		Description: e.Description,
		Category:    e.Category,
		Split:       split,
		CreatedAt:   e.CreatedAt,
	}
}

type createExpenseRequest struct {
	TripID       string                     `json:"trip_id"`
	PayerID      string                     `json:"payer_id"`
	Amount       decimal.Decimal            `json:"amount"`
	Description  string                     `json:"description"`
	Category     string                     `json:"category"`
	Split        map[string]decimal.Decimal `json:"split"`
	SplitEqually []string                   `json:"split_equally"`
}

type repaymentRequest struct {
	TripID string          `json:"trip_id"`
	FromID string          `json:"from_id"`
	ToID   string          `json:"to_id"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type debtJSON struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	FromID string          `json:"from_id"`
	ToID   string          `json:"to_id"`
	Amount decimal.Decimal `json:"amount"`
}

type debtsResponse struct {
	// Balances is keyed by household display name.
	Balances map[string]decimal.Decimal `json:"balances"`
	Debts    []debtJSON                 `json:"debts"`
}

func newDebtsResponse(s *service.DebtSummary) debtsResponse {
	resp := debtsResponse{
		Balances: make(map[string]decimal.Decimal, len(s.Balances)),
		Debts:    make([]debtJSON, len(s.Debts)),
	}
	for _, unit := range s.Balances.IDs() {
		name := displayName(s.Names, unit)
		if _, taken := resp.Balances[name]; taken {
			name += " (" + unit + ")"
		}
		resp.Balances[name] = s.Balances[unit]
	}
	for i, d := range s.Debts {
		resp.Debts[i] = debtJSON{From: d.From, To: d.To, FromID: d.FromID, ToID: d.ToID, Amount: d.Amount}
	}
	return resp
}

type categoryAmount struct {
	Category models.Category `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

type unitJSON struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Paid decimal.Decimal `json:"paid"`
	Owed decimal.Decimal `json:"owed"`
	Net  decimal.Decimal `json:"net"`
}

type repaymentJSON struct {
	Counterparty string          `json:"counterparty"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    int64           `json:"created_at"`
}

type statsResponse struct {
	TotalSpent         decimal.Decimal  `json:"total_spent"`
	Overall            []categoryAmount `json:"overall"`
	Units              []unitJSON       `json:"units"`
	UnitID             string           `json:"unit_id"`
	MyTotal            decimal.Decimal  `json:"my_total"`
	My                 []categoryAmount `json:"my"`
	RepaymentsMade     []repaymentJSON  `json:"repayments_made"`
	RepaymentsReceived []repaymentJSON  `json:"repayments_received"`
}

func newStatsResponse(s *service.TripStats) statsResponse {
	resp := statsResponse{
		TotalSpent:         s.Trip.TotalSpent,
		Overall:            byCategory(s.Trip.ByCategory),
		Units:              make([]unitJSON, len(s.Trip.Units)),
		UnitID:             s.Mine.UnitID,
		MyTotal:            s.Mine.TotalShare,
		My:                 byCategory(s.Mine.ByCategory),
		RepaymentsMade:     repayments(s.Names, s.Mine.RepaymentsMade),
		RepaymentsReceived: repayments(s.Names, s.Mine.RepaymentsReceived),
	}
	for i, u := range s.Trip.Units {
		resp.Units[i] = unitJSON{ID: u.UnitID, Name: displayName(s.Names, u.UnitID), Paid: u.Paid, Owed: u.Owed, Net: u.Net}
	}
	return resp
}

// byCategory lists amounts largest first, ties by category name.
func byCategory(m map[models.Category]decimal.Decimal) []categoryAmount {
	out := make([]categoryAmount, 0, len(m))
	for c, amount := range m {
		out = append(out, categoryAmount{Category: c, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func repayments(names map[string]string, in []settlement.Repayment) []repaymentJSON {
	out := make([]repaymentJSON, len(in))
	for i, r := range in {
		out[i] = repaymentJSON{Counterparty: r.Counterparty, Name: displayName(names, r.Counterparty), Amount: r.Amount, CreatedAt: r.CreatedAt}
	}
	return out
}

type noteJSON struct {
	ID         string `json:"id"`
	TripID     string `json:"trip_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
}

func newNoteJSON(n *models.Note) noteJSON {
	return noteJSON{ID: n.ID, TripID: n.TripID, AuthorName: n.AuthorName, Text: n.Text, CreatedAt: n.CreatedAt}
}

type addNoteRequest struct {
	TripID string `json:"trip_id"`
	Text   string `json:"text"`
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
