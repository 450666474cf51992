// Package notify is the fire-and-forget side-channel for user-facing alerts.
// Engines call it after their own writes commit; a failed notification never
// rolls back or fails the triggering transition.
package notify

import (
	"context"

	"carebridge/internal/store"
	"carebridge/pkg/types"
)

const (
	KindApplicationReceived = "application_received"
	KindApplicationAccepted = "application_accepted"
	KindApplicationRejected = "application_rejected"
	KindRequestCompleted    = "request_completed"
	KindRequestCancelled    = "request_cancelled"
	KindRequestRejected     = "request_rejected"
	KindPaymentCompleted    = "payment_completed"
	KindPaymentFailed       = "payment_failed"
	KindPaymentRefunded     = "payment_refunded"
)

type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) error
}

// StoreNotifier persists notifications as rows; anything downstream (push,
// email, polling UI) reads them from there.
type StoreNotifier struct {
	repo *store.NotificationRepository
}

func NewStoreNotifier(repo *store.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{repo: repo}
}

func (n *StoreNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	return n.repo.CreateNotification(ctx, &types.Notification{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
	})
}
