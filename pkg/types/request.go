package types

import (
	"time"
)

type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
	RequestStatusRejected   RequestStatus = "rejected"
)

// Terminal reports whether no further transitions are legal from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled || s == RequestStatusRejected
}

type Request struct {
	ID        string  `db:"id" json:"id"`
	PatientID string  `db:"patient_id" json:"patient_id"`
	NurseID   *string `db:"nurse_id" json:"nurse_id,omitempty"`

	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	ServiceType string `db:"service_type" json:"service_type"`

	Status RequestStatus `db:"status" json:"status"`

	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	Address   string  `db:"address" json:"address"`

	ScheduledDate *time.Time `db:"scheduled_date" json:"scheduled_date,omitempty"`

	// Budget is in minor currency units (piastres).
	Budget int64 `db:"budget" json:"budget"`

	AcceptedAt         *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	NurseCompleted     bool       `db:"nurse_completed" json:"nurse_completed"`
	NurseCompletedAt   *time.Time `db:"nurse_completed_at" json:"nurse_completed_at,omitempty"`
	PatientCompleted   bool       `db:"patient_completed" json:"patient_completed"`
	PatientCompletedAt *time.Time `db:"patient_completed_at" json:"patient_completed_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RequestFilter narrows list queries. Zero-value fields are ignored.
type RequestFilter struct {
	Status    RequestStatus `form:"status"`
	PatientID string        `form:"patient_id"`
	NurseID   string        `form:"nurse_id"`
}
