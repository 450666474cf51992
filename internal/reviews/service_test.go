package reviews

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"carebridge/internal/utils"
	"carebridge/pkg/types"

	"github.com/sirupsen/logrus"
)

type memReviews struct {
	mu      sync.Mutex
	seq     int
	reviews map[string]*types.Review
}

func newMemReviews() *memReviews {
	return &memReviews{reviews: map[string]*types.Review{}}
}

func copyReview(r *types.Review) *types.Review {
	cp := *r
	return &cp
}

func (m *memReviews) Review(_ context.Context, reviewID string) (*types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reviews[reviewID]
	if !ok {
		return nil, types.ErrReviewNotFound
	}
	return copyReview(r), nil
}

func (m *memReviews) ReviewsByRequest(_ context.Context, requestID string) ([]*types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Review, 0)
	for _, r := range m.reviews {
		if r.RequestID == requestID && r.IsActive {
			out = append(out, copyReview(r))
		}
	}
	return out, nil
}

func (m *memReviews) ReviewsByReviewee(_ context.Context, revieweeID string) ([]*types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Review, 0)
	for _, r := range m.reviews {
		if r.RevieweeID != nil && *r.RevieweeID == revieweeID && r.IsActive {
			out = append(out, copyReview(r))
		}
	}
	return out, nil
}

func (m *memReviews) ReviewExists(_ context.Context, requestID, reviewerID string, revieweeID *string, reviewType types.ReviewType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.reviews {
		if r.RequestID != requestID || r.ReviewerID != reviewerID || r.ReviewType != reviewType || !r.IsActive {
			continue
		}
		if (r.RevieweeID == nil) != (revieweeID == nil) {
			continue
		}
		if r.RevieweeID != nil && *r.RevieweeID != *revieweeID {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (m *memReviews) CreateReview(_ context.Context, review *types.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	review.ID = fmt.Sprintf("rev_%d", m.seq)
	review.IsActive = true
	review.SubmittedAt = time.Now()
	m.reviews[review.ID] = copyReview(review)
	return nil
}

func (m *memReviews) DeactivateReview(_ context.Context, reviewID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reviews[reviewID]
	if !ok {
		return types.ErrReviewNotFound
	}
	r.IsActive = false
	return nil
}

type memRequests struct {
	requests map[string]*types.Request
}

func (m *memRequests) Request(_ context.Context, requestID string) (*types.Request, error) {
	r, ok := m.requests[requestID]
	if !ok {
		return nil, types.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Notify(_ context.Context, userID, kind string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, kind+":"+userID)
	return nil
}

var (
	patient  = types.Actor{ID: "patient_1", Role: types.RolePatient}
	nurse    = types.Actor{ID: "nurse_1", Role: types.RoleNurse}
	stranger = types.Actor{ID: "nurse_2", Role: types.RoleNurse}
	admin    = types.Actor{ID: "admin_1", Role: types.RoleAdmin}
)

func newTestService() (*Service, *memReviews, *recordingNotifier) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	requests := &memRequests{requests: map[string]*types.Request{
		"req_done": {
			ID:        "req_done",
			PatientID: patient.ID,
			NurseID:   utils.StringPtr(nurse.ID),
			Status:    types.RequestStatusCompleted,
		},
		"req_open": {
			ID:        "req_open",
			PatientID: patient.ID,
			Status:    types.RequestStatusPending,
		},
	}}

	store := newMemReviews()
	notifier := &recordingNotifier{}
	return NewService(logger, store, requests, notifier), store, notifier
}

func TestCreateReview(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newTestService()

	review, err := svc.CreateReview(ctx, patient, CreateReviewInput{
		RequestID:  "req_done",
		ReviewType: types.ReviewTypeUserToUser,
		RevieweeID: utils.StringPtr(nurse.ID),
		Rating:     5,
		Feedback:   "punctual and kind",
	})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	if review.ReviewerRole != types.RolePatient {
		t.Errorf("reviewer role = %s, want patient", review.ReviewerRole)
	}
	if !review.IsActive {
		t.Error("new review is not active")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "review_received:"+nurse.ID {
		t.Errorf("notifications = %v", notifier.sent)
	}

	// The nurse reviews back independently.
	if _, err := svc.CreateReview(ctx, nurse, CreateReviewInput{
		RequestID:  "req_done",
		ReviewType: types.ReviewTypeUserToUser,
		RevieweeID: utils.StringPtr(patient.ID),
		Rating:     4,
	}); err != nil {
		t.Fatalf("nurse review: %v", err)
	}

	reviews, err := svc.ReviewsForRequest(ctx, "req_done")
	if err != nil {
		t.Fatalf("reviews for request: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("reviews = %d, want 2", len(reviews))
	}
}

func TestCreateReviewValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	cases := []struct {
		name  string
		actor types.Actor
		input CreateReviewInput
		want  error
	}{
		{
			name:  "rating out of range",
			actor: patient,
			input: CreateReviewInput{RequestID: "req_done", ReviewType: types.ReviewTypeUserToUser, RevieweeID: utils.StringPtr(nurse.ID), Rating: 6},
			want:  types.ErrValidation,
		},
		{
			name:  "unknown review type",
			actor: patient,
			input: CreateReviewInput{RequestID: "req_done", ReviewType: "drive_by", Rating: 3},
			want:  types.ErrValidation,
		},
		{
			name:  "request not completed",
			actor: patient,
			input: CreateReviewInput{RequestID: "req_open", ReviewType: types.ReviewTypeService, Rating: 3},
			want:  types.ErrInvalidState,
		},
		{
			name:  "reviewer not a participant",
			actor: stranger,
			input: CreateReviewInput{RequestID: "req_done", ReviewType: types.ReviewTypeService, Rating: 3},
			want:  types.ErrForbidden,
		},
		{
			name:  "user review targets non-participant",
			actor: patient,
			input: CreateReviewInput{RequestID: "req_done", ReviewType: types.ReviewTypeUserToUser, RevieweeID: utils.StringPtr("nurse_2"), Rating: 3},
			want:  types.ErrValidation,
		},
		{
			name:  "service review with reviewee",
			actor: patient,
			input: CreateReviewInput{RequestID: "req_done", ReviewType: types.ReviewTypeService, RevieweeID: utils.StringPtr(nurse.ID), Rating: 3},
			want:  types.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateReview(ctx, tc.actor, tc.input)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateReviewDuplicateSlot(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	input := CreateReviewInput{
		RequestID:  "req_done",
		ReviewType: types.ReviewTypeUserToUser,
		RevieweeID: utils.StringPtr(nurse.ID),
		Rating:     4,
	}
	if _, err := svc.CreateReview(ctx, patient, input); err != nil {
		t.Fatalf("first review: %v", err)
	}

	_, err := svc.CreateReview(ctx, patient, input)
	if !errors.Is(err, types.ErrReviewExists) {
		t.Fatalf("second review err = %v, want review exists", err)
	}

	// A service review by the same patient occupies a different slot.
	if _, err := svc.CreateReview(ctx, patient, CreateReviewInput{
		RequestID:  "req_done",
		ReviewType: types.ReviewTypeService,
		Rating:     5,
	}); err != nil {
		t.Fatalf("service review: %v", err)
	}
}

func TestDeactivateReview(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	review, err := svc.CreateReview(ctx, patient, CreateReviewInput{
		RequestID:  "req_done",
		ReviewType: types.ReviewTypeUserToUser,
		RevieweeID: utils.StringPtr(nurse.ID),
		Rating:     2,
	})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	if err := svc.DeactivateReview(ctx, nurse, review.ID); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("deactivate by reviewee err = %v, want forbidden", err)
	}

	if err := svc.DeactivateReview(ctx, patient, review.ID); err != nil {
		t.Fatalf("deactivate by author: %v", err)
	}
	stored, _ := store.Review(ctx, review.ID)
	if stored.IsActive {
		t.Error("review still active after deactivation")
	}

	// Already inactive: a repeat is a no-op, and admins may act on any review.
	if err := svc.DeactivateReview(ctx, admin, review.ID); err != nil {
		t.Errorf("admin deactivate of inactive review: %v", err)
	}

	if err := svc.DeactivateReview(ctx, admin, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("deactivate missing review err = %v, want not found", err)
	}

	reviews, _ := svc.ReviewsForUser(ctx, nurse.ID)
	if len(reviews) != 0 {
		t.Errorf("deactivated review still listed: %d", len(reviews))
	}
}
