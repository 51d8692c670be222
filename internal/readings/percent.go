package readings

import (
	"math"

	"smartbin-backend/internal/models"
)

// PercentFull converts a weight into a fill level in [0,100]. A missing or
// non-positive capacity falls back to the default bin capacity.
func PercentFull(weightKg, capacityKg float64) int {
	if capacityKg <= 0 || math.IsNaN(capacityKg) {
		capacityKg = models.DefaultCapacityKg
	}
	if weightKg <= 0 || math.IsNaN(weightKg) {
		return 0
	}
	pct := math.Round(weightKg / capacityKg * 100)
	if pct > 100 {
		return 100
	}
	return int(pct)
}
