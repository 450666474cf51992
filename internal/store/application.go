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

const applicationTableName = "carebridge.applications"

var applicationColumns = utils.StructTagValues(types.Application{})

type ApplicationRepository struct {
	pool *pgxpool.Pool
}

func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

func (r *ApplicationRepository) Application(ctx context.Context, applicationID string) (*types.Application, error) {

	query, args, err := psql().Select(applicationColumns...).From(applicationTableName).
		Where(sq.Eq{"id": applicationID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate application query: %w", err)
	}

	var application = new(types.Application)
	err = pgxscan.Get(ctx, r.pool, application, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to fetch application: %w", err)
	}

	return application, nil
}

// ApplicationByRequestAndNurse returns (nil, nil) when the nurse has no
// application on the request.
func (r *ApplicationRepository) ApplicationByRequestAndNurse(ctx context.Context, requestID, nurseID string) (*types.Application, error) {

	query, args, err := psql().Select(applicationColumns...).From(applicationTableName).
		Where(sq.Eq{"request_id": requestID, "nurse_id": nurseID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate application lookup query: %w", err)
	}

	var application = new(types.Application)
	err = pgxscan.Get(ctx, r.pool, application, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch application: %w", err)
	}

	return application, nil
}

func (r *ApplicationRepository) ApplicationsByRequest(ctx context.Context, requestID string) ([]*types.Application, error) {

	query, args, err := psql().Select(applicationColumns...).From(applicationTableName).
		Where(sq.Eq{"request_id": requestID}).
		OrderBy("created_at asc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate applications query: %w", err)
	}

	var applications = make([]*types.Application, 0)
	err = pgxscan.Select(ctx, r.pool, &applications, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list applications")
	}

	return applications, nil
}

func (r *ApplicationRepository) ApplicationsByNurse(ctx context.Context, nurseID string) ([]*types.Application, error) {

	query, args, err := psql().Select(applicationColumns...).From(applicationTableName).
		Where(sq.Eq{"nurse_id": nurseID}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate applications query: %w", err)
	}

	var applications = make([]*types.Application, 0)
	err = pgxscan.Select(ctx, r.pool, &applications, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list applications")
	}

	return applications, nil
}

func (r *ApplicationRepository) CreateApplication(ctx context.Context, application *types.Application) error {

	now := time.Now()
	application.ID = utils.NanoID()
	application.Status = types.ApplicationStatusPending
	application.CreatedAt = now
	application.UpdatedAt = now

	applicationMap := utils.StructToMap(application)

	query, args, err := psql().Insert(applicationTableName).SetMap(applicationMap).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert application query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateApplication
		}
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

func (r *ApplicationRepository) UpdateApplication(ctx context.Context, applicationID string, price int64, estimatedTime string, at time.Time) error {

	query, args, err := psql().Update(applicationTableName).
		Set("price", price).
		Set("estimated_time", estimatedTime).
		Set("updated_at", at).
		Where(sq.Eq{"id": applicationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update application query for application %s: %w", applicationID, err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to update application")
}

func (r *ApplicationRepository) SetStatus(ctx context.Context, applicationID string, status types.ApplicationStatus, at time.Time) error {

	query, args, err := psql().Update(applicationTableName).
		Set("status", status).
		Set("updated_at", at).
		Where(sq.Eq{"id": applicationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate application status query for application %s: %w", applicationID, err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to set application status")
}

// RejectSiblings flips every still-pending application on the request to
// rejected, excluding winnerID. Pass an empty winnerID to reject all pending
// applications (request cancelled or rejected with no winner). Returns the
// applications that were transitioned so callers can notify their nurses.
func (r *ApplicationRepository) RejectSiblings(ctx context.Context, requestID, winnerID string, at time.Time) ([]*types.Application, error) {

	builder := psql().Update(applicationTableName).
		Set("status", types.ApplicationStatusRejected).
		Set("updated_at", at).
		Where(sq.Eq{"request_id": requestID, "status": types.ApplicationStatusPending})

	if winnerID != "" {
		builder = builder.Where(sq.NotEq{"id": winnerID})
	}

	query, args, err := builder.
		Suffix("RETURNING " + strings.Join(applicationColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reject siblings query: %w", err)
	}

	var rejected = make([]*types.Application, 0)
	err = pgxscan.Select(ctx, r.pool, &rejected, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to reject sibling applications")
	}

	return rejected, nil
}

func (r *ApplicationRepository) DeleteApplication(ctx context.Context, applicationID string) error {

	query, args, err := psql().Delete(applicationTableName).Where(sq.Eq{"id": applicationID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete application query for application %s: %w", applicationID, err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to delete application")
}
