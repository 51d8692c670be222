package models

import "time"

// AlertKind is the severity of an alert.
type AlertKind string

const (
	AlertKindNone    AlertKind = ""
	AlertKindWarning AlertKind = "warning"
	AlertKindFull    AlertKind = "full"
)

// Alert is a capacity concern for one bin. At most one alert per bin may
// have Ack=false at any time.
type Alert struct {
	ID          string    `json:"id" db:"id" firestore:"id"`
	BinID       string    `json:"bin_id" db:"bin_id" firestore:"bin_id"`
	Kind        AlertKind `json:"kind" db:"kind" firestore:"kind"`
	Message     string    `json:"message" db:"message" firestore:"message"`
	PercentFull int       `json:"percent_full" db:"percent_full" firestore:"percent_full"`
	TS          int64     `json:"ts" db:"ts" firestore:"ts"` // last transition, Unix timestamp
	Ack         bool      `json:"ack" db:"ack" firestore:"ack"`
	ResolvedAt  *int64    `json:"resolved_at,omitempty" db:"resolved_at" firestore:"resolved_at"`
	AckedBy     *string   `json:"acked_by,omitempty" db:"acked_by" firestore:"acked_by"`
	CreatedAt   int64     `json:"created_at" db:"created_at" firestore:"created_at"`
}

// AlertResponse is what we send to the client
type AlertResponse struct {
	ID            string    `json:"id"`
	BinID         string    `json:"binId"`
	Kind          AlertKind `json:"kind"`
	Message       string    `json:"message"`
	PercentFull   int       `json:"percentFull"`
	TsIso         string    `json:"tsIso"`
	Ack           bool      `json:"ack"`
	ResolvedAtIso *string   `json:"resolvedAtIso,omitempty"`
	AckedBy       *string   `json:"ackedBy,omitempty"`
}

// AlertFilter narrows ListAlerts. Zero values mean "any".
type AlertFilter struct {
	BinID    string
	OpenOnly bool
	Since    int64
	Limit    int
}

// ToAlertResponse converts an Alert to AlertResponse
func (a *Alert) ToAlertResponse() AlertResponse {
	resp := AlertResponse{
		ID:          a.ID,
		BinID:       a.BinID,
		Kind:        a.Kind,
		Message:     a.Message,
		PercentFull: a.PercentFull,
		TsIso:       time.Unix(a.TS, 0).UTC().Format(time.RFC3339),
		Ack:         a.Ack,
		AckedBy:     a.AckedBy,
	}
	if a.ResolvedAt != nil {
		iso := time.Unix(*a.ResolvedAt, 0).UTC().Format(time.RFC3339)
		resp.ResolvedAtIso = &iso
	}
	return resp
}
