package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carebridge/internal/notify"
	"carebridge/pkg/types"

	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// ErrBadSignature rejects a webhook delivery whose signature does not verify
// against the configured endpoint secret. Nothing is processed in that case.
var ErrBadSignature = errors.New("webhook signature verification failed")

// ErrBadPayload rejects a correctly signed delivery whose body cannot be
// parsed, including an event pinned to a different API version.
var ErrBadPayload = errors.New("webhook payload rejected")

// HandleWebhookEvent verifies and applies one Stripe event. Reconciliation is
// a pure "set field to X" per event type, so at-least-once delivery is safe:
// replays converge on the same payment state. Unmatched intent ids and
// unrecognized event types are logged and acknowledged, never retried.
func (e *Engine) HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) error {

	event, err := webhook.ConstructEvent(payload, signatureHeader, e.webhookSecret)
	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return fmt.Errorf("%w: %s", ErrBadSignature, err)
	case err != nil:
		return fmt.Errorf("%w: %s", ErrBadPayload, err)
	}

	logger := e.logger.WithField("event_type", event.Type).WithField("event_id", event.ID)

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return fmt.Errorf("parse payment_intent.succeeded payload: %w", err)
		}
		return e.applyIntentSucceeded(ctx, &intent)

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return fmt.Errorf("parse payment_intent.payment_failed payload: %w", err)
		}
		return e.applyIntentFailed(ctx, &intent)

	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return fmt.Errorf("parse charge.dispute.created payload: %w", err)
		}
		return e.applyDisputeCreated(ctx, &dispute)

	default:
		logger.Debug("ignoring unhandled webhook event")
		return nil
	}
}

func (e *Engine) applyIntentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {

	payment, err := e.payments.PaymentByIntent(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, types.ErrPaymentNotFound) {
			// Not an error: an intent this service never created.
			e.logger.WithField("external_transaction_id", intent.ID).Info("webhook success for unmatched payment, ignoring")
			return nil
		}
		return err
	}

	metadata := map[string]string{}
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		metadata["charge_id"] = intent.LatestCharge.ID
		if intent.LatestCharge.ReceiptURL != "" {
			metadata["receipt_url"] = intent.LatestCharge.ReceiptURL
		}
	}

	wasCompleted := payment.Status == types.PaymentStatusCompleted

	updated, err := e.payments.MarkCompletedByIntent(ctx, intent.ID, time.Now(), metadata)
	if err != nil {
		return err
	}

	if !wasCompleted && updated.Status == types.PaymentStatusCompleted {
		e.notify(ctx, updated.PatientID, notify.KindPaymentCompleted, map[string]any{
			"payment_id": updated.ID,
			"request_id": updated.RequestID,
		})
	}

	return nil
}

func (e *Engine) applyIntentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {

	payment, err := e.payments.PaymentByIntent(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, types.ErrPaymentNotFound) {
			e.logger.WithField("external_transaction_id", intent.ID).Info("webhook failure for unmatched payment, ignoring")
			return nil
		}
		return err
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}

	wasFailed := payment.Status == types.PaymentStatusFailed

	updated, err := e.payments.MarkFailedByIntent(ctx, intent.ID, time.Now(), reason)
	if err != nil {
		return err
	}

	if !wasFailed && updated.Status == types.PaymentStatusFailed {
		e.notify(ctx, updated.PatientID, notify.KindPaymentFailed, map[string]any{
			"payment_id": updated.ID,
			"request_id": updated.RequestID,
			"reason":     reason,
		})
	}

	return nil
}

// applyDisputeCreated merges dispute details into the payment's metadata.
// Status is untouched; disputes are informational until resolved.
func (e *Engine) applyDisputeCreated(ctx context.Context, dispute *stripe.Dispute) error {

	var payment *types.Payment
	var err error

	if dispute.PaymentIntent != nil && dispute.PaymentIntent.ID != "" {
		payment, err = e.payments.PaymentByIntent(ctx, dispute.PaymentIntent.ID)
	} else if dispute.Charge != nil && dispute.Charge.ID != "" {
		payment, err = e.payments.PaymentByChargeID(ctx, dispute.Charge.ID)
	} else {
		e.logger.WithField("dispute_id", dispute.ID).Warn("dispute event carries no charge or intent reference, ignoring")
		return nil
	}

	if err != nil {
		if errors.Is(err, types.ErrPaymentNotFound) {
			e.logger.WithField("dispute_id", dispute.ID).Info("dispute for unmatched payment, ignoring")
			return nil
		}
		return err
	}

	metadata := map[string]string{
		"dispute_id":     dispute.ID,
		"dispute_reason": string(dispute.Reason),
		"dispute_status": string(dispute.Status),
	}

	_, err = e.payments.MergeMetadata(ctx, payment.ID, metadata, time.Now())
	return err
}
