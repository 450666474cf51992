package server

import (
	"errors"
	"io"
	"net/http"

	"carebridge/internal/payments"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 64 << 10

func (s *Service) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = s.payments.HandleWebhookEvent(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			s.logger.WithError(err).Warn("rejected webhook with bad signature")
			s.respondError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		if errors.Is(err, payments.ErrBadPayload) {
			// Redelivery cannot fix a malformed body.
			s.logger.WithError(err).Warn("rejected unparseable webhook payload")
			s.respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		// Internal failure: ask Stripe to redeliver.
		s.logger.WithError(err).Error("failed to process webhook event")
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
