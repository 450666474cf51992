package types

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment is the local mirror of a payment-processor transaction.
// ExternalTransactionID is the processor's intent id and the join key used by
// webhook reconciliation.
type Payment struct {
	ID        string `db:"id" json:"id"`
	PatientID string `db:"patient_id" json:"patient_id"`
	NurseID   string `db:"nurse_id" json:"nurse_id"`
	RequestID string `db:"request_id" json:"request_id"`

	// Amounts are in minor currency units (piastres).
	Amount      int64  `db:"amount" json:"amount"`
	Currency    string `db:"currency" json:"currency"`
	PlatformFee int64  `db:"platform_fee" json:"platform_fee"`
	NetAmount   int64  `db:"net_amount" json:"net_amount"`

	Status        PaymentStatus `db:"status" json:"status"`
	PaymentMethod string        `db:"payment_method" json:"payment_method"`
	PaymentType   string        `db:"payment_type" json:"payment_type"`

	ExternalTransactionID string `db:"external_transaction_id" json:"external_transaction_id"`

	ProcessedAt   *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	FailedAt      *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`

	RefundedAt   *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	RefundAmount *int64     `db:"refund_amount" json:"refund_amount,omitempty"`
	RefundReason *string    `db:"refund_reason" json:"refund_reason,omitempty"`

	Metadata map[string]string `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
