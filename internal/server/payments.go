package server

import (
	"net/http"

	"carebridge/internal/payments"
)

func (s *Service) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var input payments.CreateIntentInput
	if !s.decodeBody(w, r, &input) {
		return
	}

	result, err := s.payments.CreatePaymentIntent(ctx, actor, input)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Service) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body struct {
		ExternalTransactionID string `json:"external_transaction_id"`
		RequestID             string `json:"request_id"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	payment, err := s.payments.ConfirmPayment(ctx, actor, body.ExternalTransactionID, body.RequestID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, payment)
}

func (s *Service) handleListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	list, err := s.payments.PaymentsByPatient(ctx, actor, r.URL.Query().Get("patient_id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, list)
}

func (s *Service) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	payment, err := s.payments.Payment(ctx, actor, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, payment)
}

func (s *Service) handleRefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var input payments.RefundInput
	if !s.decodeBody(w, r, &input) {
		return
	}

	payment, err := s.payments.RefundPayment(ctx, actor, r.PathValue("id"), input)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, payment)
}
