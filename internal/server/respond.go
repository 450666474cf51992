package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"carebridge/pkg/types"
)

func (s *Service) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Service) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is a 500 and the detail stays in the logs.
func (s *Service) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrForbidden):
		s.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, types.ErrConflict):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrInvalidState):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, types.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrUpstream):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.WithError(err).Error("unhandled error")
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
