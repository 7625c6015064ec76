// Package notify delivers settlement and expense notifications over Telegram.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/splitopus/splitopus/internal/models"
	"github.com/splitopus/splitopus/internal/telegram"
)

const (
	KindDebt    = "debt"
	KindExpense = "expense"

	defaultConcurrency = 4
)

// Recorder receives one observation per delivery attempt.
type Recorder interface {
	ObserveNotification(kind, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveNotification(string, string) {}

// Debt is one settlement line with display names resolved.
type Debt struct {
	FromID   string
	FromName string
	ToID     string
	ToName   string
	Amount   decimal.Decimal
}

// Share is the part of a new expense that falls on one recipient.
type Share struct {
	UserID string
	Amount decimal.Decimal
}

// Result counts delivered and failed messages.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Notifier fans messages out to trip members.
type Notifier struct {
	sender      telegram.Sender
	cooldown    Cooldown
	ttl         time.Duration
	recorder    Recorder
	logger      *slog.Logger
	concurrency int
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithCooldown limits debt notifications per trip to one per ttl.
func WithCooldown(c Cooldown, ttl time.Duration) Option {
	return func(n *Notifier) {
		n.cooldown = c
		n.ttl = ttl
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// WithLogger sets the notifier logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithConcurrency bounds the number of messages in flight.
func WithConcurrency(c int) Option {
	return func(n *Notifier) {
		if c > 0 {
			n.concurrency = c
		}
	}
}

// NewNotifier creates a notifier sending through sender.
func NewNotifier(sender telegram.Sender, opts ...Option) *Notifier {
	n := &Notifier{
		sender:      sender,
		recorder:    nopRecorder{},
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type message struct {
	chatID string
	text   string
}

// NotifyDebts tells every debtor whom to pay and every creditor who owes
// them. Returns ErrCooldown when the trip was notified within the window.
func (n *Notifier) NotifyDebts(ctx context.Context, trip *models.Trip, debts []Debt) (Result, error) {
	if len(debts) == 0 {
		return Result{}, nil
	}

	key := "debts:" + trip.ID
	acquired := false
	if n.cooldown != nil && n.ttl > 0 {
		ok, err := n.cooldown.Acquire(ctx, key, n.ttl)
		if err != nil {
			// Fail open when the cooldown store is unreachable.
			n.logger.Warn("Cooldown check failed", "trip_id", trip.ID, "error", err)
		} else if !ok {
			return Result{}, ErrCooldown
		}
		acquired = ok
	}

	msgs := make([]message, 0, 2*len(debts))
	for _, d := range debts {
		amount := FormatMoney(d.Amount, trip)
		msgs = append(msgs,
			message{chatID: d.FromID, text: fmt.Sprintf("💸 *%s*: please transfer *%s* to *%s*.", trip.Name, amount, d.ToName)},
			message{chatID: d.ToID, text: fmt.Sprintf("💰 *%s*: *%s* owes you *%s*.", trip.Name, d.FromName, amount)},
		)
	}

	res := n.send(ctx, KindDebt, msgs)
	n.logger.Info("Debt notifications sent", "trip_id", trip.ID, "sent", res.Sent, "failed", res.Failed)

	// Nothing was delivered: reopen the window.
	if acquired && res.Sent == 0 {
		if err := n.cooldown.Release(context.WithoutCancel(ctx), key); err != nil {
			n.logger.Warn("Cooldown release failed", "trip_id", trip.ID, "error", err)
		}
	}
	return res, nil
}

// NotifyExpense tells every recipient about their share of a new expense.
func (n *Notifier) NotifyExpense(ctx context.Context, trip *models.Trip, payerName string, expense *models.Expense, shares []Share) Result {
	title := "🧾 New expense"
	if expense.IsRepayment() {
		title = "💸 Repayment"
	}

	msgs := make([]message, 0, len(shares))
	for _, s := range shares {
		var b strings.Builder
		fmt.Fprintf(&b, "%s in *%s*\n", title, trip.Name)
		fmt.Fprintf(&b, "👤 *%s* paid *%s*\n", payerName, FormatMoney(expense.Amount, trip))
		if expense.Description != "" {
			fmt.Fprintf(&b, "📝 %s\n", expense.Description)
		}
		fmt.Fprintf(&b, "📉 Your share: %s", FormatMoney(s.Amount, trip))
		msgs = append(msgs, message{chatID: s.UserID, text: b.String()})
	}

	res := n.send(ctx, KindExpense, msgs)
	n.logger.Info("Expense notifications sent", "trip_id", trip.ID, "expense_id", expense.ID, "sent", res.Sent, "failed", res.Failed)
	return res
}

// send delivers msgs concurrently. Individual failures are logged and
// counted; they never cancel the remaining messages.
func (n *Notifier) send(ctx context.Context, kind string, msgs []message) Result {
	var sent, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, m := range msgs {
		g.Go(func() error {
			if err := n.sender.SendMessage(gctx, m.chatID, m.text); err != nil {
				failed.Add(1)
				n.recorder.ObserveNotification(kind, "failed")
				n.logger.Warn("Notification failed", "kind", kind, "chat_id", m.chatID, "error", err)
				return nil
			}
			sent.Add(1)
			n.recorder.ObserveNotification(kind, "sent")
			return nil
		})
	}
	_ = g.Wait()

	return Result{Sent: int(sent.Load()), Failed: int(failed.Load())}
}

// FormatMoney renders an amount in the trip currency, with an approximate
// RUB value when the trip has a conversion rate.
func FormatMoney(amount decimal.Decimal, trip *models.Trip) string {
	currency := trip.Currency
	if currency == "" {
		currency = "THB"
	}
	out := amount.StringFixed(2) + " " + currency
	if trip.Rate.IsPositive() && currency != "RUB" {
		out += " (~" + amount.Mul(trip.Rate).StringFixed(0) + " RUB)"
	}
	return out
}
