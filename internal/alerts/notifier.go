package alerts

import (
	"context"

	"smartbin-backend/internal/models"
)

// Action describes what a reconciliation or acknowledgement did.
type Action string

const (
	ActionNone         Action = "none"
	ActionCreated      Action = "created"
	ActionEscalated    Action = "escalated"
	ActionDeescalated  Action = "deescalated"
	ActionRefreshed    Action = "refreshed"
	ActionResolved     Action = "resolved"
	ActionAcknowledged Action = "acknowledged"
)

// Outcome is the committed effect of one call. Alert is nil for ActionNone.
type Outcome struct {
	BinID        string
	Action       Action
	PreviousKind models.AlertKind
	Alert        *models.Alert
}

// Changed reports whether the alert store was written.
func (o Outcome) Changed() bool {
	return o.Action != ActionNone
}

// Notifier is told about committed alert changes. Errors are logged by the
// manager and never undo the change.
type Notifier interface {
	NotifyAlert(ctx context.Context, outcome Outcome) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, outcome Outcome) error

func (f NotifierFunc) NotifyAlert(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}
