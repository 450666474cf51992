package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"carebridge/pkg/types"

	stripe "github.com/stripe/stripe-go/v84"
)

func signPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

// openPayment creates a request payment and returns its intent id.
func openPayment(t *testing.T, env *testEnv) string {
	t.Helper()

	result, err := env.engine.CreatePaymentIntent(context.Background(), patient, CreateIntentInput{
		RequestID: "req_done",
		Amount:    15000,
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return result.Payment.ExternalTransactionID
}

func TestWebhookBadSignature(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload := eventPayload(t, "payment_intent.succeeded", map[string]any{"id": intentID})

	mac := hmac.New(sha256.New, []byte("whsec_wrong_secret"))
	ts := time.Now().Unix()
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	err := env.engine.HandleWebhookEvent(ctx, payload, header)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want bad signature", err)
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Status != types.PaymentStatusPending {
		t.Errorf("status changed to %s after rejected delivery", stored.Status)
	}
	if len(env.notifier.sent) != 0 {
		t.Errorf("notifications sent after rejected delivery: %d", len(env.notifier.sent))
	}
}

func TestWebhookIntentSucceeded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload := eventPayload(t, "payment_intent.succeeded", map[string]any{
		"id": intentID,
		"latest_charge": map[string]any{
			"id":          "ch_test_1",
			"receipt_url": "https://pay.stripe.test/receipts/ch_test_1",
		},
	})

	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Status != types.PaymentStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.ProcessedAt == nil {
		t.Error("completed payment has no processed_at")
	}
	if stored.Metadata["charge_id"] != "ch_test_1" {
		t.Errorf("charge_id metadata = %q", stored.Metadata["charge_id"])
	}
	if stored.Metadata["receipt_url"] == "" {
		t.Error("receipt_url metadata missing")
	}
	if got := env.notifier.count("payment_completed"); got != 1 {
		t.Errorf("payment_completed notifications = %d, want 1", got)
	}

	// Redelivery converges on the same state without a second notification.
	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}
	replayed, _ := env.payments.PaymentByIntent(ctx, intentID)
	if replayed.Status != types.PaymentStatusCompleted {
		t.Errorf("status after redelivery = %s, want completed", replayed.Status)
	}
	if got := env.notifier.count("payment_completed"); got != 1 {
		t.Errorf("payment_completed notifications after redelivery = %d, want 1", got)
	}
}

func TestWebhookIntentFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload := eventPayload(t, "payment_intent.payment_failed", map[string]any{
		"id": intentID,
		"last_payment_error": map[string]any{
			"message": "Your card has insufficient funds.",
		},
	})

	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Status != types.PaymentStatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "Your card has insufficient funds." {
		t.Errorf("failure reason = %v", stored.FailureReason)
	}
	if got := env.notifier.count("payment_failed"); got != 1 {
		t.Errorf("payment_failed notifications = %d, want 1", got)
	}

	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}
	if got := env.notifier.count("payment_failed"); got != 1 {
		t.Errorf("payment_failed notifications after redelivery = %d, want 1", got)
	}
}

func TestWebhookSucceededReplayAfterRefund(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload := eventPayload(t, "payment_intent.succeeded", map[string]any{
		"id":            intentID,
		"latest_charge": map[string]any{"id": "ch_test_1"},
	})
	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	settled, _ := env.payments.PaymentByIntent(ctx, intentID)
	refunded, err := env.engine.RefundPayment(ctx, admin, settled.ID, RefundInput{Reason: "service dispute"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	// A late redelivery of the success event must not resurrect the payment.
	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}

	stored, _ := env.payments.Payment(ctx, refunded.ID)
	if stored.Status != types.PaymentStatusRefunded {
		t.Errorf("status after replay = %s, want refunded", stored.Status)
	}
	if stored.RefundAmount == nil || *stored.RefundAmount != 15000 {
		t.Errorf("refund amount after replay = %v", stored.RefundAmount)
	}
	if got := env.notifier.count("payment_completed"); got != 1 {
		t.Errorf("payment_completed notifications = %d, want 1", got)
	}

	// Same for a straggling failure event.
	failed := eventPayload(t, "payment_intent.payment_failed", map[string]any{"id": intentID})
	if err := env.engine.HandleWebhookEvent(ctx, failed, signPayload(failed)); err != nil {
		t.Fatalf("handle stale failure: %v", err)
	}
	stored, _ = env.payments.Payment(ctx, refunded.ID)
	if stored.Status != types.PaymentStatusRefunded {
		t.Errorf("status after stale failure = %s, want refunded", stored.Status)
	}
	if got := env.notifier.count("payment_failed"); got != 0 {
		t.Errorf("payment_failed notifications = %d, want 0", got)
	}
}

func TestWebhookVersionMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        "payment_intent.succeeded",
		"api_version": "2014-01-31",
		"data":        map[string]any{"object": map[string]any{"id": intentID}},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	// Correctly signed but unparseable: a payload problem, not a signature one.
	err = env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want bad payload", err)
	}
	if errors.Is(err, ErrBadSignature) {
		t.Fatal("version mismatch reported as signature failure")
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Status != types.PaymentStatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
}

func TestWebhookUnmatchedIntent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	payload := eventPayload(t, "payment_intent.succeeded", map[string]any{"id": "pi_somebody_elses"})

	// Acknowledged, not retried: an unmatched intent returns nil.
	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(env.notifier.sent) != 0 {
		t.Errorf("notifications sent for unmatched intent: %d", len(env.notifier.sent))
	}
}

func TestWebhookDisputeCreated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload := eventPayload(t, "charge.dispute.created", map[string]any{
		"id":             "dp_test_1",
		"reason":         "fraudulent",
		"status":         "needs_response",
		"payment_intent": map[string]any{"id": intentID},
	})

	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Metadata["dispute_id"] != "dp_test_1" {
		t.Errorf("dispute_id metadata = %q", stored.Metadata["dispute_id"])
	}
	if stored.Metadata["dispute_reason"] != "fraudulent" {
		t.Errorf("dispute_reason metadata = %q", stored.Metadata["dispute_reason"])
	}
	if stored.Status != types.PaymentStatusPending {
		t.Errorf("dispute changed payment status to %s", stored.Status)
	}
}

func TestWebhookDisputeLookupByCharge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	// Settle the payment first so the charge id lands in metadata.
	settle := eventPayload(t, "payment_intent.succeeded", map[string]any{
		"id":            intentID,
		"latest_charge": map[string]any{"id": "ch_lookup_1"},
	})
	if err := env.engine.HandleWebhookEvent(ctx, settle, signPayload(settle)); err != nil {
		t.Fatalf("handle succeeded event: %v", err)
	}

	payload := eventPayload(t, "charge.dispute.created", map[string]any{
		"id":     "dp_test_2",
		"reason": "product_not_received",
		"status": "needs_response",
		"charge": map[string]any{"id": "ch_lookup_1"},
	})
	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle dispute event: %v", err)
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Metadata["dispute_id"] != "dp_test_2" {
		t.Errorf("dispute_id metadata = %q", stored.Metadata["dispute_id"])
	}
}

func TestWebhookUnknownEventType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	intentID := openPayment(t, env)

	payload := eventPayload(t, "customer.subscription.created", map[string]any{"id": "sub_test_1"})

	if err := env.engine.HandleWebhookEvent(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	stored, _ := env.payments.PaymentByIntent(ctx, intentID)
	if stored.Status != types.PaymentStatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
}
