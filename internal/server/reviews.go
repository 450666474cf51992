package server

import (
	"net/http"

	"carebridge/internal/reviews"
)

func (s *Service) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var input reviews.CreateReviewInput
	if !s.decodeBody(w, r, &input) {
		return
	}

	review, err := s.reviews.CreateReview(ctx, actor, input)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, review)
}

func (s *Service) handleRequestReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := s.reviews.ReviewsForRequest(ctx, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, list)
}

func (s *Service) handleUserReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := s.reviews.ReviewsForUser(ctx, r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, list)
}

func (s *Service) handleDeactivateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if err := s.reviews.DeactivateReview(ctx, actor, r.PathValue("id")); err != nil {
		s.respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
