// Package reviews handles post-completion feedback. A review is only legal
// once its parent request is completed and only from a participant; each
// (request, reviewer, reviewee, type) slot is filled at most once.
package reviews

import (
	"context"
	"fmt"

	"carebridge/internal/notify"
	"carebridge/pkg/types"

	"github.com/sirupsen/logrus"
)

type ReviewStore interface {
	Review(ctx context.Context, reviewID string) (*types.Review, error)
	ReviewsByRequest(ctx context.Context, requestID string) ([]*types.Review, error)
	ReviewsByReviewee(ctx context.Context, revieweeID string) ([]*types.Review, error)
	ReviewExists(ctx context.Context, requestID, reviewerID string, revieweeID *string, reviewType types.ReviewType) (bool, error)
	CreateReview(ctx context.Context, review *types.Review) error
	DeactivateReview(ctx context.Context, reviewID string) error
}

type RequestStore interface {
	Request(ctx context.Context, requestID string) (*types.Request, error)
}

type Service struct {
	logger   *logrus.Logger
	reviews  ReviewStore
	requests RequestStore
	notifier notify.Notifier
}

func NewService(logger *logrus.Logger, reviews ReviewStore, requests RequestStore, notifier notify.Notifier) *Service {
	return &Service{
		logger:   logger,
		reviews:  reviews,
		requests: requests,
		notifier: notifier,
	}
}

type CreateReviewInput struct {
	RequestID  string           `json:"request_id"`
	ReviewType types.ReviewType `json:"review_type"`
	RevieweeID *string          `json:"reviewee_id"`
	Rating     int              `json:"rating"`
	Feedback   string           `json:"feedback"`
}

func (s *Service) CreateReview(ctx context.Context, actor types.Actor, input CreateReviewInput) (*types.Review, error) {

	if input.Rating < 1 || input.Rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5: %w", types.ErrValidation)
	}
	if input.ReviewType != types.ReviewTypeUserToUser && input.ReviewType != types.ReviewTypeService {
		return nil, fmt.Errorf("unknown review type %q: %w", input.ReviewType, types.ErrValidation)
	}

	request, err := s.requests.Request(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}

	if request.Status != types.RequestStatusCompleted {
		return nil, fmt.Errorf("request is %s, reviews require completed: %w", request.Status, types.ErrInvalidState)
	}

	reviewerRole, counterpart, err := participant(request, actor.ID)
	if err != nil {
		return nil, err
	}

	switch input.ReviewType {
	case types.ReviewTypeUserToUser:
		if input.RevieweeID == nil || *input.RevieweeID != counterpart {
			return nil, fmt.Errorf("reviewee must be the other participant: %w", types.ErrValidation)
		}
	case types.ReviewTypeService:
		if input.RevieweeID != nil {
			return nil, fmt.Errorf("service reviews have no reviewee: %w", types.ErrValidation)
		}
	}

	exists, err := s.reviews.ReviewExists(ctx, input.RequestID, actor.ID, input.RevieweeID, input.ReviewType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, types.ErrReviewExists
	}

	review := &types.Review{
		RequestID:    input.RequestID,
		ReviewerID:   actor.ID,
		ReviewerRole: reviewerRole,
		RevieweeID:   input.RevieweeID,
		ReviewType:   input.ReviewType,
		Rating:       input.Rating,
		Feedback:     input.Feedback,
	}

	// The partial unique index backstops the precheck under races.
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		return nil, err
	}

	if review.RevieweeID != nil {
		if err := s.notifier.Notify(ctx, *review.RevieweeID, "review_received", map[string]any{
			"request_id": review.RequestID,
			"review_id":  review.ID,
			"rating":     review.Rating,
		}); err != nil {
			s.logger.WithError(err).WithField("review_id", review.ID).Warn("failed to send review notification")
		}
	}

	return review, nil
}

func (s *Service) ReviewsForRequest(ctx context.Context, requestID string) ([]*types.Review, error) {
	return s.reviews.ReviewsByRequest(ctx, requestID)
}

func (s *Service) ReviewsForUser(ctx context.Context, userID string) ([]*types.Review, error) {
	return s.reviews.ReviewsByReviewee(ctx, userID)
}

// DeactivateReview soft-deletes; only the author or an admin may do it.
func (s *Service) DeactivateReview(ctx context.Context, actor types.Actor, reviewID string) error {

	review, err := s.reviews.Review(ctx, reviewID)
	if err != nil {
		return err
	}

	if review.ReviewerID != actor.ID && !actor.IsAdmin() {
		return fmt.Errorf("review belongs to another user: %w", types.ErrForbidden)
	}
	if !review.IsActive {
		return nil
	}

	return s.reviews.DeactivateReview(ctx, reviewID)
}

// participant returns the actor's role on the request and the id of the other
// party.
func participant(request *types.Request, actorID string) (types.Role, string, error) {
	if request.PatientID == actorID {
		if request.NurseID == nil {
			return "", "", fmt.Errorf("request has no assigned nurse: %w", types.ErrInvalidState)
		}
		return types.RolePatient, *request.NurseID, nil
	}
	if request.NurseID != nil && *request.NurseID == actorID {
		return types.RoleNurse, request.PatientID, nil
	}

	return "", "", fmt.Errorf("reviewer was not a participant: %w", types.ErrForbidden)
}
