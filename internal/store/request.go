package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carebridge/internal/utils"
	"carebridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestTableName = "carebridge.requests"

var requestColumns = utils.StructTagValues(types.Request{})

type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

func (r *RequestRepository) Request(ctx context.Context, requestID string) (*types.Request, error) {

	query, args, err := psql().Select(requestColumns...).From(requestTableName).
		Where(sq.Eq{"id": requestID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request query: %w", err)
	}

	var request = new(types.Request)
	err = pgxscan.Get(ctx, r.pool, request, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to fetch request: %w", err)
	}

	return request, nil
}

func (r *RequestRepository) RequestsByFilter(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error) {

	builder := psql().Select(requestColumns...).From(requestTableName).
		OrderBy("created_at desc")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.PatientID != "" {
		builder = builder.Where(sq.Eq{"patient_id": filter.PatientID})
	}
	if filter.NurseID != "" {
		builder = builder.Where(sq.Eq{"nurse_id": filter.NurseID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate requests query: %w", err)
	}

	var requests = make([]*types.Request, 0)
	err = pgxscan.Select(ctx, r.pool, &requests, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list requests")
	}

	return requests, nil
}

func (r *RequestRepository) CreateRequest(ctx context.Context, request *types.Request) error {

	now := time.Now()
	request.ID = utils.NanoID()
	request.Status = types.RequestStatusPending
	request.CreatedAt = now
	request.UpdatedAt = now

	requestMap := utils.StructToMap(request)

	query, args, err := psql().Insert(requestTableName).SetMap(requestMap).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert request query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create request")
}

// AcceptRequest performs the conditional assignment that serializes the whole
// accept transition: the update lands only if the request is still pending.
// Returns false when zero rows were affected, i.e. a concurrent caller won.
func (r *RequestRepository) AcceptRequest(ctx context.Context, requestID, nurseID string, at time.Time) (bool, error) {

	query, args, err := psql().Update(requestTableName).
		Set("nurse_id", nurseID).
		Set("status", types.RequestStatusInProgress).
		Set("accepted_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": requestID, "status": types.RequestStatusPending}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to generate accept request query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, utils.ErrorWrapOrNil(err, "failed to accept request")
	}

	return tag.RowsAffected() > 0, nil
}

// CompleteForRole sets the role-specific completion flag and flips the request
// to completed when the counterpart flag is already set, in one conditional
// update. Returns (nil, nil) when the request was not in_progress anymore.
func (r *RequestRepository) CompleteForRole(ctx context.Context, requestID string, role types.Role, at time.Time) (*types.Request, error) {

	builder := psql().Update(requestTableName).
		Set("updated_at", at).
		Where(sq.Eq{"id": requestID, "status": types.RequestStatusInProgress})

	switch role {
	case types.RoleNurse:
		builder = builder.
			Set("nurse_completed", true).
			Set("nurse_completed_at", at).
			Set("status", sq.Expr("(case when patient_completed then 'completed' else status end)")).
			Set("completed_at", sq.Expr("(case when patient_completed then ?::timestamptz else completed_at end)", at))
	case types.RolePatient:
		builder = builder.
			Set("patient_completed", true).
			Set("patient_completed_at", at).
			Set("status", sq.Expr("(case when nurse_completed then 'completed' else status end)")).
			Set("completed_at", sq.Expr("(case when nurse_completed then ?::timestamptz else completed_at end)", at))
	default:
		return nil, fmt.Errorf("unsupported completion role %q", role)
	}

	query, args, err := builder.
		Suffix("RETURNING " + strings.Join(requestColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion query: %w", err)
	}

	var request = new(types.Request)
	err = pgxscan.Get(ctx, r.pool, request, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark request completed: %w", err)
	}

	return request, nil
}

// UpdateStatus transitions status from -> to with compare-and-swap semantics.
// Returns false when the request was no longer in the expected status.
func (r *RequestRepository) UpdateStatus(ctx context.Context, requestID string, from, to types.RequestStatus, at time.Time) (bool, error) {

	query, args, err := psql().Update(requestTableName).
		Set("status", to).
		Set("updated_at", at).
		Where(sq.Eq{"id": requestID, "status": from}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to generate status update query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, utils.ErrorWrapOrNil(err, "failed to update request status")
	}

	return tag.RowsAffected() > 0, nil
}
