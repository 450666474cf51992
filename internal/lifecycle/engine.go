// Package lifecycle enforces the request/application state machine and its
// cross-entity invariants. Request status transitions:
//
//	pending     -> in_progress (accept), cancelled, rejected
//	in_progress -> completed (both parties), cancelled
//
// completed, cancelled and rejected are terminal. Only this package writes
// Request.status/nurse_id and Application.status.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/notify"
	"carebridge/pkg/types"

	"github.com/sirupsen/logrus"
)

// RequestStore is the slice of the request repository the engine depends on.
// AcceptRequest and UpdateStatus carry compare-and-swap semantics: they report
// false when the conditional write affected zero rows.
type RequestStore interface {
	Request(ctx context.Context, requestID string) (*types.Request, error)
	CreateRequest(ctx context.Context, request *types.Request) error
	RequestsByFilter(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error)
	AcceptRequest(ctx context.Context, requestID, nurseID string, at time.Time) (bool, error)
	CompleteForRole(ctx context.Context, requestID string, role types.Role, at time.Time) (*types.Request, error)
	UpdateStatus(ctx context.Context, requestID string, from, to types.RequestStatus, at time.Time) (bool, error)
}

type ApplicationStore interface {
	Application(ctx context.Context, applicationID string) (*types.Application, error)
	ApplicationByRequestAndNurse(ctx context.Context, requestID, nurseID string) (*types.Application, error)
	ApplicationsByRequest(ctx context.Context, requestID string) ([]*types.Application, error)
	ApplicationsByNurse(ctx context.Context, nurseID string) ([]*types.Application, error)
	CreateApplication(ctx context.Context, application *types.Application) error
	UpdateApplication(ctx context.Context, applicationID string, price int64, estimatedTime string, at time.Time) error
	SetStatus(ctx context.Context, applicationID string, status types.ApplicationStatus, at time.Time) error
	RejectSiblings(ctx context.Context, requestID, winnerID string, at time.Time) ([]*types.Application, error)
	DeleteApplication(ctx context.Context, applicationID string) error
}

type Engine struct {
	logger       *logrus.Logger
	requests     RequestStore
	applications ApplicationStore
	notifier     notify.Notifier
}

func NewEngine(logger *logrus.Logger, requests RequestStore, applications ApplicationStore, notifier notify.Notifier) *Engine {
	return &Engine{
		logger:       logger,
		requests:     requests,
		applications: applications,
		notifier:     notifier,
	}
}

type CreateRequestInput struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ServiceType   string     `json:"service_type"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	Address       string     `json:"address"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Budget        int64      `json:"budget"`
}

func (e *Engine) CreateRequest(ctx context.Context, actor types.Actor, input CreateRequestInput) (*types.Request, error) {
	if actor.Role != types.RolePatient {
		return nil, fmt.Errorf("only patients can post requests: %w", types.ErrForbidden)
	}

	if input.Title == "" {
		return nil, fmt.Errorf("title is required: %w", types.ErrValidation)
	}
	if input.Budget < 0 {
		return nil, fmt.Errorf("budget must not be negative: %w", types.ErrValidation)
	}

	request := &types.Request{
		PatientID:     actor.ID,
		Title:         input.Title,
		Description:   input.Description,
		ServiceType:   input.ServiceType,
		Latitude:      input.Latitude,
		Longitude:     input.Longitude,
		Address:       input.Address,
		ScheduledDate: input.ScheduledDate,
		Budget:        input.Budget,
	}

	if err := e.requests.CreateRequest(ctx, request); err != nil {
		return nil, err
	}

	return request, nil
}

func (e *Engine) Request(ctx context.Context, requestID string) (*types.Request, error) {
	return e.requests.Request(ctx, requestID)
}

func (e *Engine) Requests(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error) {
	return e.requests.RequestsByFilter(ctx, filter)
}

// Apply records a nurse's bid on a pending request.
func (e *Engine) Apply(ctx context.Context, actor types.Actor, requestID string, price int64, estimatedTime string) (*types.Application, error) {
	if actor.Role != types.RoleNurse {
		return nil, fmt.Errorf("only nurses can apply: %w", types.ErrForbidden)
	}
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive: %w", types.ErrValidation)
	}

	request, err := e.requests.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != types.RequestStatusPending {
		return nil, fmt.Errorf("request is %s: %w", request.Status, types.ErrInvalidState)
	}

	existing, err := e.applications.ApplicationByRequestAndNurse(ctx, requestID, actor.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.ErrDuplicateApplication
	}

	application := &types.Application{
		RequestID:     requestID,
		NurseID:       actor.ID,
		Price:         price,
		EstimatedTime: estimatedTime,
	}

	// The unique index catches the apply/apply race the precheck misses.
	if err := e.applications.CreateApplication(ctx, application); err != nil {
		return nil, err
	}

	// Recheck after the insert: an accept that raced us has already rejected
	// the siblings it could see, so a bid landing behind it rejects itself.
	current, err := e.requests.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.Status != types.RequestStatusPending {
		if err := e.applications.SetStatus(ctx, application.ID, types.ApplicationStatusRejected, time.Now()); err != nil {
			e.logger.WithError(err).WithField("application_id", application.ID).Error("failed to reject late application")
		}
		return nil, types.ErrRequestNotPending
	}

	e.notify(ctx, request.PatientID, notify.KindApplicationReceived, map[string]any{
		"request_id":     requestID,
		"application_id": application.ID,
		"nurse_id":       actor.ID,
		"price":          price,
	})

	return application, nil
}

// AcceptApplication resolves the bidding on a request: the target application
// wins, the request flips to in_progress with the winner assigned, every
// sibling is rejected. The conditional nurse assignment on the request row is
// the single serialization point; when it affects zero rows a concurrent
// accept already won and the call aborts with a conflict before touching any
// sibling.
func (e *Engine) AcceptApplication(ctx context.Context, actor types.Actor, applicationID string) (*types.Request, *types.Application, error) {

	application, err := e.applications.Application(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}

	request, err := e.requests.Request(ctx, application.RequestID)
	if err != nil {
		return nil, nil, err
	}

	if application.Status != types.ApplicationStatusPending {
		// A resolved application on a resolved request means an accept
		// already won the race; that is a conflict, not a state error.
		if request.Status != types.RequestStatusPending {
			return nil, nil, types.ErrRequestNotPending
		}
		return nil, nil, fmt.Errorf("application is %s: %w", application.Status, types.ErrInvalidState)
	}

	if request.PatientID != actor.ID && !actor.IsAdmin() {
		return nil, nil, fmt.Errorf("only the request's patient can accept: %w", types.ErrForbidden)
	}

	if request.Status != types.RequestStatusPending {
		return nil, nil, types.ErrRequestNotPending
	}

	now := time.Now()

	won, err := e.requests.AcceptRequest(ctx, request.ID, application.NurseID, now)
	if err != nil {
		return nil, nil, err
	}
	if !won {
		return nil, nil, types.ErrRequestNotPending
	}

	if err := e.applications.SetStatus(ctx, application.ID, types.ApplicationStatusAccepted, now); err != nil {
		return nil, nil, fmt.Errorf("request accepted but failed to mark winning application: %w", err)
	}

	rejected, err := e.applications.RejectSiblings(ctx, request.ID, application.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("request accepted but failed to reject sibling applications: %w", err)
	}

	e.notify(ctx, application.NurseID, notify.KindApplicationAccepted, map[string]any{
		"request_id":     request.ID,
		"application_id": application.ID,
	})
	for _, sibling := range rejected {
		e.notify(ctx, sibling.NurseID, notify.KindApplicationRejected, map[string]any{
			"request_id":     request.ID,
			"application_id": sibling.ID,
		})
	}

	request.NurseID = &application.NurseID
	request.Status = types.RequestStatusInProgress
	request.AcceptedAt = &now
	request.UpdatedAt = now
	application.Status = types.ApplicationStatusAccepted
	application.UpdatedAt = now

	return request, application, nil
}

// UpdateApplication lets the owning nurse revise price and estimate while the
// bid is still pending.
func (e *Engine) UpdateApplication(ctx context.Context, actor types.Actor, applicationID string, price int64, estimatedTime string) (*types.Application, error) {

	application, err := e.applications.Application(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if application.NurseID != actor.ID {
		return nil, fmt.Errorf("application belongs to another nurse: %w", types.ErrForbidden)
	}
	if application.Status != types.ApplicationStatusPending {
		return nil, fmt.Errorf("application is %s: %w", application.Status, types.ErrInvalidState)
	}
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive: %w", types.ErrValidation)
	}

	now := time.Now()
	if err := e.applications.UpdateApplication(ctx, applicationID, price, estimatedTime, now); err != nil {
		return nil, err
	}

	application.Price = price
	application.EstimatedTime = estimatedTime
	application.UpdatedAt = now

	return application, nil
}

// CancelApplication hard-deletes a still-pending bid. Accepted or rejected
// applications are part of the request's history and cannot be withdrawn.
func (e *Engine) CancelApplication(ctx context.Context, actor types.Actor, applicationID string) error {

	application, err := e.applications.Application(ctx, applicationID)
	if err != nil {
		return err
	}

	if application.NurseID != actor.ID && !actor.IsAdmin() {
		return fmt.Errorf("application belongs to another nurse: %w", types.ErrForbidden)
	}
	if application.Status != types.ApplicationStatusPending {
		return fmt.Errorf("application is %s: %w", application.Status, types.ErrInvalidState)
	}

	return e.applications.DeleteApplication(ctx, applicationID)
}

// MarkCompleted records one party's completion flag. The request becomes
// completed only once both flags are set. Re-marking an already set flag is a
// no-op, not an error.
func (e *Engine) MarkCompleted(ctx context.Context, actor types.Actor, requestID string, role types.Role) (*types.Request, error) {

	if role != types.RoleNurse && role != types.RolePatient {
		return nil, fmt.Errorf("completion role must be nurse or patient: %w", types.ErrValidation)
	}

	request, err := e.requests.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch role {
	case types.RoleNurse:
		if request.NurseID == nil || *request.NurseID != actor.ID {
			return nil, fmt.Errorf("request is not assigned to this nurse: %w", types.ErrForbidden)
		}
		if request.NurseCompleted {
			return request, nil
		}
	case types.RolePatient:
		if request.PatientID != actor.ID {
			return nil, fmt.Errorf("request belongs to another patient: %w", types.ErrForbidden)
		}
		if request.PatientCompleted {
			return request, nil
		}
	}

	if request.Status != types.RequestStatusInProgress {
		return nil, fmt.Errorf("request is %s: %w", request.Status, types.ErrInvalidState)
	}

	updated, err := e.requests.CompleteForRole(ctx, requestID, role, time.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("request state changed concurrently: %w", types.ErrConflict)
	}

	if updated.Status == types.RequestStatusCompleted {
		payload := map[string]any{"request_id": updated.ID}
		e.notify(ctx, updated.PatientID, notify.KindRequestCompleted, payload)
		if updated.NurseID != nil {
			e.notify(ctx, *updated.NurseID, notify.KindRequestCompleted, payload)
		}
	}

	return updated, nil
}

// CancelRequest is legal from pending or in_progress. Cancelling a pending
// request also rejects all open bids on it.
func (e *Engine) CancelRequest(ctx context.Context, actor types.Actor, requestID string) (*types.Request, error) {

	request, err := e.requests.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.PatientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("request belongs to another patient: %w", types.ErrForbidden)
	}
	if request.Status.Terminal() {
		return nil, fmt.Errorf("request is %s: %w", request.Status, types.ErrInvalidState)
	}

	now := time.Now()

	ok, err := e.requests.UpdateStatus(ctx, requestID, request.Status, types.RequestStatusCancelled, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("request state changed concurrently: %w", types.ErrConflict)
	}

	if request.Status == types.RequestStatusPending {
		rejected, err := e.applications.RejectSiblings(ctx, requestID, "", now)
		if err != nil {
			e.logger.WithError(err).WithField("request_id", requestID).Error("failed to reject applications for cancelled request")
		} else {
			for _, application := range rejected {
				e.notify(ctx, application.NurseID, notify.KindApplicationRejected, map[string]any{
					"request_id":     requestID,
					"application_id": application.ID,
				})
			}
		}
	}

	if request.NurseID != nil {
		e.notify(ctx, *request.NurseID, notify.KindRequestCancelled, map[string]any{"request_id": requestID})
	}

	request.Status = types.RequestStatusCancelled
	request.UpdatedAt = now

	return request, nil
}

// RejectRequest is the admin console's refusal of a pending request.
func (e *Engine) RejectRequest(ctx context.Context, actor types.Actor, requestID string) (*types.Request, error) {

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can reject requests: %w", types.ErrForbidden)
	}

	request, err := e.requests.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != types.RequestStatusPending {
		return nil, fmt.Errorf("request is %s: %w", request.Status, types.ErrInvalidState)
	}

	now := time.Now()

	ok, err := e.requests.UpdateStatus(ctx, requestID, types.RequestStatusPending, types.RequestStatusRejected, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("request state changed concurrently: %w", types.ErrConflict)
	}

	rejected, err := e.applications.RejectSiblings(ctx, requestID, "", now)
	if err != nil {
		e.logger.WithError(err).WithField("request_id", requestID).Error("failed to reject applications for rejected request")
	} else {
		for _, application := range rejected {
			e.notify(ctx, application.NurseID, notify.KindApplicationRejected, map[string]any{
				"request_id":     requestID,
				"application_id": application.ID,
			})
		}
	}

	e.notify(ctx, request.PatientID, notify.KindRequestRejected, map[string]any{"request_id": requestID})

	request.Status = types.RequestStatusRejected
	request.UpdatedAt = now

	return request, nil
}

func (e *Engine) ApplicationsByRequest(ctx context.Context, actor types.Actor, requestID string) ([]*types.Application, error) {

	request, err := e.requests.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.PatientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("request belongs to another patient: %w", types.ErrForbidden)
	}

	return e.applications.ApplicationsByRequest(ctx, requestID)
}

func (e *Engine) ApplicationsByNurse(ctx context.Context, actor types.Actor) ([]*types.Application, error) {
	return e.applications.ApplicationsByNurse(ctx, actor.ID)
}

// notify is best-effort: failures are logged and swallowed so the committed
// state transition is never reported as failed.
func (e *Engine) notify(ctx context.Context, userID, kind string, payload map[string]any) {
	if err := e.notifier.Notify(ctx, userID, kind, payload); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"kind":    kind,
		}).Warn("failed to send notification")
	}
}
