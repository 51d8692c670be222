package alerts

import (
	"fmt"
	"math"

	"smartbin-backend/internal/models"
)

// Policy holds the global alert cutoffs in percent full.
type Policy struct {
	WarningPct float64
	FullPct    float64
}

// DefaultPolicy returns the 80/95 cutoffs.
func DefaultPolicy() Policy {
	return Policy{WarningPct: 80, FullPct: 95}
}

// Decide returns the alert level a bin should be in. Bin.ThresholdPct is
// not consulted.
func (p Policy) Decide(percentFull int) models.AlertKind {
	pct := float64(percentFull)
	switch {
	case pct >= p.FullPct:
		return models.AlertKindFull
	case pct >= p.WarningPct:
		return models.AlertKindWarning
	default:
		return models.AlertKindNone
	}
}

// ClampPercent rounds to an integer in [0,100].
func ClampPercent(pct float64) int {
	if math.IsNaN(pct) || pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return int(math.Round(pct))
}

// Message renders the display text for an alert.
func Message(binID string, kind models.AlertKind, percentFull int) string {
	switch kind {
	case models.AlertKindFull:
		return fmt.Sprintf("Bin %s is %d%% full and needs immediate attention", binID, percentFull)
	case models.AlertKindWarning:
		return fmt.Sprintf("Bin %s is %d%% full - approaching capacity", binID, percentFull)
	default:
		return ""
	}
}
