// Package alerts maintains at most one unacknowledged alert per bin and
// moves it through warning, full and resolved as readings arrive.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/metrics"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type namedNotifier struct {
	name     string
	notifier Notifier
}

// Manager is the alert lifecycle manager. It is safe for concurrent use;
// calls for the same bin are serialized in-process and again inside the
// store's critical section.
type Manager struct {
	store     store.AlertStore
	policy    Policy
	clock     Clock
	notifiers []namedNotifier
	locks     *keyedMutex
	newID     func() string
	log       zerolog.Logger
}

// Option customizes the manager.
type Option func(*Manager)

// WithPolicy overrides the 80/95 cutoffs.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithNotifier registers a notifier under a name used in logs and metrics.
func WithNotifier(name string, n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifiers = append(m.notifiers, namedNotifier{name: name, notifier: n})
		}
	}
}

// WithIDGenerator replaces uuid generation for new alerts.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager constructs a Manager backed by s.
func NewManager(s store.AlertStore, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		policy: DefaultPolicy(),
		clock:  systemClock{},
		locks:  newKeyedMutex(),
		newID:  func() string { return uuid.New().String() },
		log:    logger.WithComponent("alerts"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the active cutoffs.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Reconcile brings the bin's alert state in line with percentFull. The
// returned Outcome may be ignored; a non-nil error means nothing was
// committed.
func (m *Manager) Reconcile(ctx context.Context, binID string, percentFull int) (Outcome, error) {
	binID = strings.TrimSpace(binID)
	if binID == "" {
		return Outcome{}, &models.ValidationError{Field: "binId", Reason: "binId is required"}
	}
	pct := ClampPercent(float64(percentFull))
	target := m.policy.Decide(pct)

	unlock := m.locks.Lock(binID)
	defer unlock()

	var (
		outcome  Outcome
		repaired int
	)
	err := m.store.Reconcile(ctx, binID, func(ctx context.Context, tx store.AlertTx) error {
		// fn may run more than once when the store retries on contention.
		outcome = Outcome{BinID: binID, Action: ActionNone}
		repaired = 0
		now := m.clock.Now().Unix()

		open, err := tx.OpenAlerts(ctx, binID)
		if err != nil {
			return err
		}

		if len(open) > 1 {
			for i := 1; i < len(open); i++ {
				dup := open[i]
				dup.Ack = true
				dup.ResolvedAt = &now
				if err := tx.UpdateAlert(ctx, &dup); err != nil {
					return err
				}
				repaired++
			}
		}

		if len(open) == 0 {
			if target == models.AlertKindNone {
				return nil
			}
			alert := &models.Alert{
				ID:          m.newID(),
				BinID:       binID,
				Kind:        target,
				Message:     Message(binID, target, pct),
				PercentFull: pct,
				TS:          now,
				CreatedAt:   now,
			}
			if err := tx.InsertAlert(ctx, alert); err != nil {
				return err
			}
			outcome.Action = ActionCreated
			outcome.Alert = alert
			return nil
		}

		current := open[0]
		outcome.PreviousKind = current.Kind

		switch {
		case target == models.AlertKindNone:
			current.Ack = true
			current.ResolvedAt = &now
			outcome.Action = ActionResolved
		case current.Kind != target:
			if target == models.AlertKindFull {
				outcome.Action = ActionEscalated
			} else {
				outcome.Action = ActionDeescalated
			}
			current.Kind = target
			current.Message = Message(binID, target, pct)
			current.PercentFull = pct
			current.TS = now
		default:
			current.Message = Message(binID, target, pct)
			current.PercentFull = pct
			current.TS = now
			outcome.Action = ActionRefreshed
		}

		if err := tx.UpdateAlert(ctx, &current); err != nil {
			return err
		}
		outcome.Alert = &current
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile alerts for bin %s: %w", binID, err)
	}

	if repaired > 0 {
		metrics.InvariantRepairs.Add(float64(repaired))
		m.log.Error().
			Err(fmt.Errorf("%w: %d unacknowledged alerts for bin %s", models.ErrInvariantViolation, repaired+1, binID)).
			Str("bin_id", binID).
			Int("collapsed", repaired).
			Msg("Duplicate open alerts collapsed")
	}

	metrics.AlertTransitions.WithLabelValues(string(outcome.Action)).Inc()
	m.logOutcome(outcome)
	if outcome.Changed() {
		m.notify(ctx, outcome)
	}
	return outcome, nil
}

// Acknowledge records an operator handling the alert. It does not stamp
// resolvedAt. Acknowledging twice is a no-op.
func (m *Manager) Acknowledge(ctx context.Context, alertID, userID string) (*models.Alert, error) {
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return nil, &models.ValidationError{Field: "alertId", Reason: "alert id is required"}
	}

	existing, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(existing.BinID)
	defer unlock()

	alert, changed, err := m.store.Acknowledge(ctx, alertID, userID, m.clock.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %s: %w", alertID, err)
	}
	if !changed {
		return alert, nil
	}

	metrics.AlertTransitions.WithLabelValues(string(ActionAcknowledged)).Inc()
	m.log.Info().
		Str("alert_id", alert.ID).
		Str("bin_id", alert.BinID).
		Str("user_id", userID).
		Msg("Alert acknowledged")

	m.notify(ctx, Outcome{BinID: alert.BinID, Action: ActionAcknowledged, PreviousKind: alert.Kind, Alert: alert})
	return alert, nil
}

func (m *Manager) logOutcome(o Outcome) {
	switch o.Action {
	case ActionCreated:
		m.log.Info().
			Str("bin_id", o.BinID).
			Str("alert_id", o.Alert.ID).
			Str("kind", string(o.Alert.Kind)).
			Int("percent_full", o.Alert.PercentFull).
			Msg("Alert created")
	case ActionEscalated, ActionDeescalated:
		m.log.Info().
			Str("bin_id", o.BinID).
			Str("alert_id", o.Alert.ID).
			Str("from", string(o.PreviousKind)).
			Str("to", string(o.Alert.Kind)).
			Int("percent_full", o.Alert.PercentFull).
			Msg("Alert updated")
	case ActionRefreshed:
		m.log.Debug().
			Str("bin_id", o.BinID).
			Str("alert_id", o.Alert.ID).
			Int("percent_full", o.Alert.PercentFull).
			Msg("Alert refreshed")
	case ActionResolved:
		m.log.Info().
			Str("bin_id", o.BinID).
			Str("alert_id", o.Alert.ID).
			Msg("Alert resolved")
	}
}

func (m *Manager) notify(ctx context.Context, o Outcome) {
	for _, n := range m.notifiers {
		if err := n.notifier.NotifyAlert(ctx, o); err != nil {
			metrics.NotificationFailures.WithLabelValues(n.name).Inc()
			m.log.Warn().
				Err(err).
				Str("notifier", n.name).
				Str("bin_id", o.BinID).
				Str("action", string(o.Action)).
				Msg("Alert notification failed")
		}
	}
}

