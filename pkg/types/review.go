package types

import (
	"time"
)

type ReviewType string

const (
	ReviewTypeUserToUser ReviewType = "user_to_user"
	ReviewTypeService    ReviewType = "service_review"
)

// Review is feedback tied to a completed request. RevieweeID is nil for
// service reviews. Soft-deleted via IsActive, never removed.
type Review struct {
	ID           string     `db:"id" json:"id"`
	RequestID    string     `db:"request_id" json:"request_id"`
	ReviewerID   string     `db:"reviewer_id" json:"reviewer_id"`
	ReviewerRole Role       `db:"reviewer_role" json:"reviewer_role"`
	RevieweeID   *string    `db:"reviewee_id" json:"reviewee_id,omitempty"`
	ReviewType   ReviewType `db:"review_type" json:"review_type"`
	Rating       int        `db:"rating" json:"rating"`
	Feedback     string     `db:"feedback" json:"feedback"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
}
