package summary

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/metrics"
	"smartbin-backend/internal/models"
)

const window = 7 * 24 * time.Hour

// Summarizer is implemented by Aggregator.
type Summarizer interface {
	Summarize(ctx context.Context, weekStart, weekEnd time.Time) ([]models.Summary, error)
}

// Scheduler runs the summarizer once a week at a fixed local time.
type Scheduler struct {
	summarizer Summarizer
	weekday    time.Weekday
	hour       int
	loc        *time.Location
	retries    int
	backoff    time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewScheduler builds a scheduler firing every weekday at hour:00 in loc.
// A failed run is retried up to retries times.
func NewScheduler(s Summarizer, weekday time.Weekday, hour int, loc *time.Location, retries int) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		summarizer: s,
		weekday:    weekday,
		hour:       hour,
		loc:        loc,
		retries:    retries,
		backoff:    30 * time.Second,
		now:        time.Now,
		log:        logger.WithComponent("summary_scheduler"),
	}
}

// NextRun returns the first weekday at hour:00 in loc strictly after t.
func NextRun(t time.Time, weekday time.Weekday, hour int, loc *time.Location) time.Time {
	local := t.In(loc)
	days := (int(weekday) - int(local.Weekday()) + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day()+days, hour, 0, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// Run fires on schedule until ctx is cancelled. A failed run does not
// stop the next one.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.weekday, s.hour, s.loc)
		s.log.Info().Time("next_run", next).Msg("Weekly summary scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		_, _ = s.RunOnce(ctx, next)
	}
}

// RunOnce summarizes the week ending at end, retrying failures. On final
// failure it logs and returns the error; nothing has been persisted.
func (s *Scheduler) RunOnce(ctx context.Context, end time.Time) ([]models.Summary, error) {
	start := end.Add(-window)
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			metrics.SummaryRuns.WithLabelValues("retry").Inc()
			wait := s.backoff << (attempt - 1)
			s.log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Retrying weekly summary")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		summaries, err := s.summarizer.Summarize(ctx, start, end)
		if err == nil {
			metrics.SummaryRuns.WithLabelValues("success").Inc()
			return summaries, nil
		}
		lastErr = err
	}

	metrics.SummaryRuns.WithLabelValues("failed").Inc()
	s.log.Error().
		Err(lastErr).
		Int("attempts", s.retries+1).
		Msg("Weekly summary failed, giving up until next run")
	return nil, lastErr
}
