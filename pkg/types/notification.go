package types

import (
	"time"
)

// Notification is a persisted user-facing alert. Delivery beyond this row
// (push, email) belongs to consumers outside the core.
type Notification struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Kind      string         `db:"kind" json:"kind"`
	Payload   map[string]any `db:"payload" json:"payload,omitempty"`
	ReadAt    *time.Time     `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
