package server

import (
	"net/http"
	"time"
)

func (s *Service) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	list, err := s.notifications.NotificationsByUser(ctx, actor.ID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, list)
}

func (s *Service) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := s.actorFromContext(ctx)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	ok, err := s.notifications.MarkRead(ctx, r.PathValue("id"), actor.ID, time.Now())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "notification not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
