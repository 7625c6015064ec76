package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const reminderTimeout = 2 * time.Minute

// Reminder sends debt reminders for every trip.
type Reminder interface {
	RemindDebtors(ctx context.Context) error
}

// Scheduler runs debtor reminders on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	reminder Reminder
	logger   *slog.Logger
}

// NewScheduler registers reminder on the standard 5-field cron spec.
func NewScheduler(spec string, reminder Reminder, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		reminder: reminder,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule debtor reminders %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	start := time.Now()
	if err := s.reminder.RemindDebtors(ctx); err != nil {
		s.logger.Error("Debtor reminder job failed", "error", err)
		return
	}
	s.logger.Info("Debtor reminder job finished", "duration_ms", time.Since(start).Milliseconds())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Debtor reminders scheduled", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
