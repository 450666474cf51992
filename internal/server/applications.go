package server

import (
	"net/http"
)

type applicationBody struct {
	Price         int64  `json:"price"`
	EstimatedTime string `json:"estimated_time"`
}

func (s *Service) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body applicationBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	application, err := s.lifecycle.Apply(ctx, actor, r.PathValue("id"), body.Price, body.EstimatedTime)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, application)
}

func (s *Service) handleRequestApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	applications, err := s.lifecycle.ApplicationsByRequest(ctx, actor, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, applications)
}

func (s *Service) handleMyApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	applications, err := s.lifecycle.ApplicationsByNurse(ctx, actor)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, applications)
}

func (s *Service) handleAcceptApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	request, application, err := s.lifecycle.AcceptApplication(ctx, actor, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"request":     request,
		"application": application,
	})
}

func (s *Service) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body applicationBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	application, err := s.lifecycle.UpdateApplication(ctx, actor, r.PathValue("id"), body.Price, body.EstimatedTime)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, application)
}

func (s *Service) handleCancelApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if err := s.lifecycle.CancelApplication(ctx, actor, r.PathValue("id")); err != nil {
		s.respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
