// Package payments creates, confirms and reconciles local Payment records
// against Stripe, tolerating duplicate and out-of-order webhook deliveries.
// Both the synchronous confirm path and the webhook path write the absolute
// status reported by the processor, so whichever lands last still reflects
// upstream truth.
package payments

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/notify"
	"carebridge/pkg/types"

	"github.com/sirupsen/logrus"
)

// Processor is the external payment processor surface the engine needs.
// Stripe is the production implementation; tests substitute a fake.
type Processor interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, intentID string, amount int64) (*Refund, error)
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	FailureMsg   string
}

type Refund struct {
	ID string
}

// IntentStatusSucceeded is the processor status that marks a payment done.
const IntentStatusSucceeded = "succeeded"

type PaymentStore interface {
	Payment(ctx context.Context, paymentID string) (*types.Payment, error)
	PaymentByIntent(ctx context.Context, externalTransactionID string) (*types.Payment, error)
	PaymentByChargeID(ctx context.Context, chargeID string) (*types.Payment, error)
	ActivePaymentForRequest(ctx context.Context, requestID string) (*types.Payment, error)
	PaymentsByPatient(ctx context.Context, patientID string) ([]*types.Payment, error)
	CreatePayment(ctx context.Context, payment *types.Payment) error
	MarkCompletedByIntent(ctx context.Context, externalTransactionID string, at time.Time, metadata map[string]string) (*types.Payment, error)
	MarkFailedByIntent(ctx context.Context, externalTransactionID string, at time.Time, reason string) (*types.Payment, error)
	MarkRefunded(ctx context.Context, paymentID string, at time.Time, amount int64, reason string) (*types.Payment, error)
	MergeMetadata(ctx context.Context, paymentID string, metadata map[string]string, at time.Time) (*types.Payment, error)
}

type RequestStore interface {
	Request(ctx context.Context, requestID string) (*types.Request, error)
}

type Engine struct {
	logger    *logrus.Logger
	payments  PaymentStore
	requests  RequestStore
	processor Processor
	notifier  notify.Notifier

	webhookSecret string
	feePercent    int64
	currency      string
}

func NewEngine(
	logger *logrus.Logger,
	payments PaymentStore,
	requests RequestStore,
	processor Processor,
	notifier notify.Notifier,
	webhookSecret string,
	feePercent int64,
	currency string,
) *Engine {
	return &Engine{
		logger:        logger,
		payments:      payments,
		requests:      requests,
		processor:     processor,
		notifier:      notifier,
		webhookSecret: webhookSecret,
		feePercent:    feePercent,
		currency:      currency,
	}
}

// PlatformFee computes the platform's cut of amount in minor units,
// rounded to the nearest unit.
func PlatformFee(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}

type CreateIntentInput struct {
	RequestID     string `json:"request_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

type IntentResult struct {
	Payment      *types.Payment `json:"payment"`
	ClientSecret string         `json:"client_secret"`
	PlatformFee  int64          `json:"platform_fee"`
	NetAmount    int64          `json:"net_amount"`
}

// CreatePaymentIntent opens a payment for a completed request: computes the
// fee breakdown, creates the processor intent, and persists the pending local
// mirror keyed by the intent id.
func (e *Engine) CreatePaymentIntent(ctx context.Context, actor types.Actor, input CreateIntentInput) (*IntentResult, error) {

	if input.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", types.ErrValidation)
	}

	request, err := e.requests.Request(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}

	if request.PatientID != actor.ID {
		return nil, fmt.Errorf("request belongs to another patient: %w", types.ErrForbidden)
	}
	if request.Status != types.RequestStatusCompleted {
		return nil, fmt.Errorf("request is %s, payment requires completed: %w", request.Status, types.ErrInvalidState)
	}

	active, err := e.payments.ActivePaymentForRequest(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, types.ErrPaymentExists
	}

	currency := input.Currency
	if currency == "" {
		currency = e.currency
	}

	fee := PlatformFee(input.Amount, e.feePercent)
	net := input.Amount - fee

	intent, err := e.processor.CreateIntent(ctx, input.Amount, currency, map[string]string{
		"request_id": input.RequestID,
		"patient_id": actor.ID,
	})
	if err != nil {
		// Raw processor errors stay in the logs, not in the response.
		e.logger.WithError(err).WithField("request_id", input.RequestID).Error("processor intent creation failed")
		return nil, fmt.Errorf("payment intent creation failed: %w", types.ErrUpstream)
	}

	payment := &types.Payment{
		PatientID:             request.PatientID,
		NurseID:               *request.NurseID,
		RequestID:             request.ID,
		Amount:                input.Amount,
		Currency:              currency,
		PlatformFee:           fee,
		NetAmount:             net,
		Status:                types.PaymentStatusPending,
		PaymentMethod:         input.PaymentMethod,
		PaymentType:           "service_payment",
		ExternalTransactionID: intent.ID,
	}

	if err := e.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	return &IntentResult{
		Payment:      payment,
		ClientSecret: intent.ClientSecret,
		PlatformFee:  fee,
		NetAmount:    net,
	}, nil
}

// ConfirmPayment is the caller-initiated reconciliation path for immediate UI
// feedback. It asks the processor for the intent's current status and records
// the same verdict the webhook path would.
func (e *Engine) ConfirmPayment(ctx context.Context, actor types.Actor, externalTransactionID, requestID string) (*types.Payment, error) {

	payment, err := e.payments.PaymentByIntent(ctx, externalTransactionID)
	if err != nil {
		return nil, err
	}
	if payment.RequestID != requestID || payment.PatientID != actor.ID {
		return nil, types.ErrPaymentNotFound
	}

	intent, err := e.processor.RetrieveIntent(ctx, externalTransactionID)
	if err != nil {
		e.logger.WithError(err).WithField("external_transaction_id", externalTransactionID).Error("processor intent retrieval failed")
		return nil, fmt.Errorf("payment confirmation failed: %w", types.ErrUpstream)
	}

	now := time.Now()

	if intent.Status == IntentStatusSucceeded {
		wasCompleted := payment.Status == types.PaymentStatusCompleted
		updated, err := e.payments.MarkCompletedByIntent(ctx, externalTransactionID, now, nil)
		if err != nil {
			return nil, err
		}
		if !wasCompleted && updated.Status == types.PaymentStatusCompleted {
			e.notify(ctx, updated.PatientID, notify.KindPaymentCompleted, map[string]any{
				"payment_id": updated.ID,
				"request_id": updated.RequestID,
			})
		}
		return updated, nil
	}

	reason := intent.FailureMsg
	if reason == "" {
		reason = intent.Status
	}

	updated, err := e.payments.MarkFailedByIntent(ctx, externalTransactionID, now, reason)
	if err != nil {
		return nil, err
	}

	if updated.Status == types.PaymentStatusFailed {
		e.notify(ctx, updated.PatientID, notify.KindPaymentFailed, map[string]any{
			"payment_id": updated.ID,
			"request_id": updated.RequestID,
			"reason":     reason,
		})
	}

	return updated, fmt.Errorf("intent status %q: %w", intent.Status, types.ErrPaymentFailed)
}

type RefundInput struct {
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
}

// RefundPayment refunds a completed payment through the processor. Amount
// defaults to the full original charge. Local state changes only after the
// processor accepted the refund.
func (e *Engine) RefundPayment(ctx context.Context, actor types.Actor, paymentID string, input RefundInput) (*types.Payment, error) {

	payment, err := e.payments.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.PatientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("payment belongs to another patient: %w", types.ErrForbidden)
	}
	if payment.Status != types.PaymentStatusCompleted {
		return nil, fmt.Errorf("payment is %s, refund requires completed: %w", payment.Status, types.ErrInvalidState)
	}

	amount := payment.Amount
	if input.Amount != nil && *input.Amount > 0 {
		amount = *input.Amount
	}
	if amount > payment.Amount {
		return nil, fmt.Errorf("refund exceeds original amount: %w", types.ErrValidation)
	}

	if _, err := e.processor.CreateRefund(ctx, payment.ExternalTransactionID, amount); err != nil {
		e.logger.WithError(err).WithField("payment_id", paymentID).Error("processor refund failed")
		return nil, fmt.Errorf("refund failed: %w", types.ErrUpstream)
	}

	updated, err := e.payments.MarkRefunded(ctx, paymentID, time.Now(), amount, input.Reason)
	if err != nil {
		return nil, err
	}

	e.notify(ctx, updated.PatientID, notify.KindPaymentRefunded, map[string]any{
		"payment_id":    updated.ID,
		"request_id":    updated.RequestID,
		"refund_amount": amount,
	})

	return updated, nil
}

func (e *Engine) Payment(ctx context.Context, actor types.Actor, paymentID string) (*types.Payment, error) {
	payment, err := e.payments.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.PatientID != actor.ID && !actor.IsAdmin() {
		return nil, types.ErrPaymentNotFound
	}

	return payment, nil
}

func (e *Engine) PaymentsByPatient(ctx context.Context, actor types.Actor, patientID string) ([]*types.Payment, error) {
	if patientID == "" {
		patientID = actor.ID
	}
	if patientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("payments belong to another patient: %w", types.ErrForbidden)
	}

	return e.payments.PaymentsByPatient(ctx, patientID)
}

func (e *Engine) notify(ctx context.Context, userID, kind string, payload map[string]any) {
	if err := e.notifier.Notify(ctx, userID, kind, payload); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"kind":    kind,
		}).Warn("failed to send notification")
	}
}
