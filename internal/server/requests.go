package server

import (
	"net/http"

	"carebridge/internal/lifecycle"
	"carebridge/pkg/types"
)

func (s *Service) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var input lifecycle.CreateRequestInput
	if !s.decodeBody(w, r, &input) {
		return
	}

	request, err := s.lifecycle.CreateRequest(ctx, actor, input)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, request)
}

func (s *Service) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter types.RequestFilter
	if err := decoder.Decode(&filter, r.URL.Query()); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid query parameters")
		return
	}

	requests, err := s.lifecycle.Requests(ctx, filter)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, requests)
}

func (s *Service) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	request, err := s.lifecycle.Request(ctx, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, request)
}

func (s *Service) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	request, err := s.lifecycle.CancelRequest(ctx, actor, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, request)
}

func (s *Service) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	request, err := s.lifecycle.RejectRequest(ctx, actor, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, request)
}

func (s *Service) handleMarkCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body struct {
		Role types.Role `json:"role"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	request, err := s.lifecycle.MarkCompleted(ctx, actor, r.PathValue("id"), body.Role)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, request)
}
