package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/notifier"
	"FamilyPoints/internal/recorder"
)

// Broadcaster delivers the weekly summary.
type Broadcaster interface {
	SendWithRetry(ctx context.Context, chatID, text string, keyboard [][]notifier.InlineButton) (int64, error)
}

// Expirer drops abandoned dialogues.
type Expirer interface {
	ExpireIdle(ttl time.Duration) int
}

// Options configures the maintenance tasks.
type Options struct {
	PruneCron       string
	Retention       time.Duration
	SummaryWeekday  time.Weekday
	SummaryHour     int
	SummaryMinute   int
	BroadcastChatID string
	RecentLimit     int
	SessionTTL      time.Duration
	Now             func() time.Time
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Store    *ledger.Store
	Registry *ledger.Registry
	Sessions Expirer
	Notifier Broadcaster
	Recorder recorder.Recorder
	Ctx      context.Context

	opts   Options
	logger *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, store *ledger.Store, reg *ledger.Registry, sessions Expirer,
	tn Broadcaster, rec recorder.Recorder, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Store:    store,
		Registry: reg,
		Sessions: sessions,
		Notifier: tn,
		Recorder: rec,
		Ctx:      ctx,
		opts:     opts,
		logger:   logger.Named("scheduler"),
	}
}

// SummarySpec is the cron expression firing at hour:minute on weekday.
func SummarySpec(weekday time.Weekday, hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * %d", minute, hour, int(weekday))
}

// RegisterAll registers pruning, session expiry and, when a broadcast chat is
// configured, the weekly summary.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.Cron.AddFunc(s.opts.PruneCron, s.pruneTask); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	if s.Sessions != nil && s.opts.SessionTTL > 0 {
		if _, err := s.Cron.AddFunc("@every 1m", s.expireTask); err != nil {
			return fmt.Errorf("register session expiry: %w", err)
		}
	}
	if s.opts.BroadcastChatID == "" {
		s.logger.Info("no broadcast chat configured, weekly summary disabled")
		return nil
	}
	spec := SummarySpec(s.opts.SummaryWeekday, s.opts.SummaryHour, s.opts.SummaryMinute)
	if _, err := s.Cron.AddFunc(spec, s.summaryTask); err != nil {
		return fmt.Errorf("register summary task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunSummaryNow sends the weekly summary immediately.
func (s *Scheduler) RunSummaryNow() error {
	if s.opts.BroadcastChatID == "" {
		return fmt.Errorf("no broadcast chat configured")
	}
	return s.sendSummary()
}

// RunPruneNow prunes history immediately and returns the removed count.
func (s *Scheduler) RunPruneNow() (int, error) {
	return s.prune()
}

func (s *Scheduler) pruneTask() {
	if _, err := s.prune(); err != nil {
		s.logger.Error("prune history", zap.Error(err))
	}
}

func (s *Scheduler) prune() (int, error) {
	cutoff := s.opts.Now().Add(-s.opts.Retention)
	removed, err := s.Store.PruneHistoryBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		s.logger.Debug("nothing to prune", zap.Time("cutoff", cutoff))
		return 0, nil
	}
	s.logger.Info("history pruned", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	if err := s.Recorder.RecordPrune(removed, cutoff); err != nil {
		s.logger.Error("record prune", zap.Error(err))
	}
	return removed, nil
}

func (s *Scheduler) expireTask() {
	if n := s.Sessions.ExpireIdle(s.opts.SessionTTL); n > 0 {
		s.logger.Info("expired idle dialogues", zap.Int("count", n))
	}
}

func (s *Scheduler) summaryTask() {
	if err := s.sendSummary(); err != nil {
		s.logger.Error("send weekly summary", zap.Error(err))
	}
}

func (s *Scheduler) sendSummary() error {
	to := s.opts.Now()
	from := to.AddDate(0, 0, -7)
	entries := s.Store.HistorySince(from)
	if limit := s.opts.RecentLimit; limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	text := notifier.FormatWeeklySummary(s.Store.Standings(), entries, s.Registry.Resolve, from, to)
	if _, err := s.Notifier.SendWithRetry(s.Ctx, s.opts.BroadcastChatID, text, nil); err != nil {
		return err
	}
	s.logger.Info("weekly summary sent", zap.Int("entries", len(entries)))
	return nil
}
