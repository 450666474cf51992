package types

import (
	"time"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Application is a nurse's bid on a request. At most one exists per
// (request_id, nurse_id) pair, enforced by a unique index.
type Application struct {
	ID        string `db:"id" json:"id"`
	RequestID string `db:"request_id" json:"request_id"`
	NurseID   string `db:"nurse_id" json:"nurse_id"`

	// Price is in minor currency units (piastres).
	Price         int64  `db:"price" json:"price"`
	EstimatedTime string `db:"estimated_time" json:"estimated_time"`

	Status ApplicationStatus `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
