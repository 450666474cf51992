package store

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/utils"
	"carebridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reviewTableName = "carebridge.reviews"

var reviewColumns = utils.StructTagValues(types.Review{})

type ReviewRepository struct {
	pool *pgxpool.Pool
}

func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Review(ctx context.Context, reviewID string) (*types.Review, error) {

	query, args, err := psql().Select(reviewColumns...).From(reviewTableName).
		Where(sq.Eq{"id": reviewID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate review query: %w", err)
	}

	var review = new(types.Review)
	err = pgxscan.Get(ctx, r.pool, review, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to fetch review: %w", err)
	}

	return review, nil
}

func (r *ReviewRepository) ReviewsByRequest(ctx context.Context, requestID string) ([]*types.Review, error) {

	query, args, err := psql().Select(reviewColumns...).From(reviewTableName).
		Where(sq.Eq{"request_id": requestID, "is_active": true}).
		OrderBy("submitted_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reviews query: %w", err)
	}

	var reviews = make([]*types.Review, 0)
	err = pgxscan.Select(ctx, r.pool, &reviews, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list reviews")
	}

	return reviews, nil
}

func (r *ReviewRepository) ReviewsByReviewee(ctx context.Context, revieweeID string) ([]*types.Review, error) {

	query, args, err := psql().Select(reviewColumns...).From(reviewTableName).
		Where(sq.Eq{"reviewee_id": revieweeID, "is_active": true}).
		OrderBy("submitted_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reviews query: %w", err)
	}

	var reviews = make([]*types.Review, 0)
	err = pgxscan.Select(ctx, r.pool, &reviews, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list reviews")
	}

	return reviews, nil
}

// ReviewExists reports whether an active review already fills the
// (request, reviewer, reviewee, type) slot.
func (r *ReviewRepository) ReviewExists(ctx context.Context, requestID, reviewerID string, revieweeID *string, reviewType types.ReviewType) (bool, error) {

	builder := psql().Select("1").From(reviewTableName).
		Where(sq.Eq{
			"request_id":  requestID,
			"reviewer_id": reviewerID,
			"review_type": reviewType,
			"is_active":   true,
		}).
		Limit(1)

	if revieweeID != nil {
		builder = builder.Where(sq.Eq{"reviewee_id": *revieweeID})
	} else {
		builder = builder.Where(sq.Eq{"reviewee_id": nil})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to generate review exists query: %w", err)
	}

	var one int
	err = pgxscan.Get(ctx, r.pool, &one, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check review existence: %w", err)
	}

	return true, nil
}

func (r *ReviewRepository) CreateReview(ctx context.Context, review *types.Review) error {

	review.ID = utils.NanoID()
	review.IsActive = true
	review.SubmittedAt = time.Now()

	reviewMap := utils.StructToMap(review)

	query, args, err := psql().Insert(reviewTableName).SetMap(reviewMap).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert review query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrReviewExists
		}
		return fmt.Errorf("failed to create review: %w", err)
	}

	return nil
}

// DeactivateReview soft-deletes; review rows are never removed.
func (r *ReviewRepository) DeactivateReview(ctx context.Context, reviewID string) error {

	query, args, err := psql().Update(reviewTableName).
		Set("is_active", false).
		Where(sq.Eq{"id": reviewID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate deactivate review query for review %s: %w", reviewID, err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to deactivate review")
}
