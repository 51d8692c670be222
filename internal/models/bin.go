package models

import (
	"strings"
	"time"
)

const (
	DefaultCapacityKg   = 10.0
	DefaultThresholdPct = 80.0
)

// Bin is a monitored waste receptacle. The core only reads it.
type Bin struct {
	ID           string  `json:"id" db:"id" firestore:"id"`
	Name         string  `json:"name" db:"name" firestore:"name"`
	Location     string  `json:"location" db:"location" firestore:"location"`
	CapacityKg   float64 `json:"capacity_kg" db:"capacity_kg" firestore:"capacity_kg"`
	ThresholdPct float64 `json:"threshold_pct" db:"threshold_pct" firestore:"threshold_pct"`
	Active       bool    `json:"active" db:"active" firestore:"active"`
	CreatedAt    int64   `json:"created_at" db:"created_at" firestore:"created_at"` // Unix timestamp
	UpdatedAt    int64   `json:"updated_at" db:"updated_at" firestore:"updated_at"` // Unix timestamp
}

// BinResponse is what we send to the client with ISO timestamps
type BinResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Location     string  `json:"location"`
	CapacityKg   float64 `json:"capacityKg"`
	ThresholdPct float64 `json:"thresholdPct"`
	Active       bool    `json:"active"`
	CreatedAtIso string  `json:"createdAtIso"`
	UpdatedAtIso string  `json:"updatedAtIso"`
}

// UpsertBinRequest is the request body for POST /api/bins
type UpsertBinRequest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	CapacityKg   *float64 `json:"capacityKg,omitempty"`
	ThresholdPct *float64 `json:"thresholdPct,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

// ToBin validates the request and fills in defaults.
func (r *UpsertBinRequest) ToBin() (Bin, error) {
	bin := Bin{
		ID:           strings.TrimSpace(r.ID),
		Name:         strings.TrimSpace(r.Name),
		Location:     strings.TrimSpace(r.Location),
		CapacityKg:   DefaultCapacityKg,
		ThresholdPct: DefaultThresholdPct,
		Active:       true,
	}
	if bin.ID == "" {
		return Bin{}, &ValidationError{Field: "id", Reason: "id is required"}
	}
	if r.CapacityKg != nil {
		if *r.CapacityKg <= 0 {
			return Bin{}, &ValidationError{Field: "capacityKg", Reason: "capacityKg must be greater than 0"}
		}
		bin.CapacityKg = *r.CapacityKg
	}
	if r.ThresholdPct != nil {
		if *r.ThresholdPct <= 0 || *r.ThresholdPct > 100 {
			return Bin{}, &ValidationError{Field: "thresholdPct", Reason: "thresholdPct must be in (0, 100]"}
		}
		bin.ThresholdPct = *r.ThresholdPct
	}
	if r.Active != nil {
		bin.Active = *r.Active
	}
	return bin, nil
}

// EffectiveCapacity returns the capacity used for fill computation.
func (b *Bin) EffectiveCapacity() float64 {
	if b.CapacityKg <= 0 {
		return DefaultCapacityKg
	}
	return b.CapacityKg
}

// ToBinResponse converts a Bin to BinResponse
func (b *Bin) ToBinResponse() BinResponse {
	return BinResponse{
		ID:           b.ID,
		Name:         b.Name,
		Location:     b.Location,
		CapacityKg:   b.CapacityKg,
		ThresholdPct: b.ThresholdPct,
		Active:       b.Active,
		CreatedAtIso: time.Unix(b.CreatedAt, 0).UTC().Format(time.RFC3339),
		UpdatedAtIso: time.Unix(b.UpdatedAt, 0).UTC().Format(time.RFC3339),
	}
}
