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

const notificationTableName = "carebridge.notifications"

var notificationColumns = utils.StructTagValues(types.Notification{})

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, notification *types.Notification) error {

	notification.ID = utils.NanoID()
	notification.CreatedAt = time.Now()
	if notification.Payload == nil {
		notification.Payload = map[string]any{}
	}

	notificationMap := utils.StructToMap(notification)

	query, args, err := psql().Insert(notificationTableName).SetMap(notificationMap).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert notification query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create notification")
}

func (r *NotificationRepository) NotificationsByUser(ctx context.Context, userID string) ([]*types.Notification, error) {

	query, args, err := psql().Select(notificationColumns...).From(notificationTableName).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate notifications query: %w", err)
	}

	var notifications = make([]*types.Notification, 0)
	err = pgxscan.Select(ctx, r.pool, &notifications, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list notifications")
	}

	return notifications, nil
}

// MarkRead scopes the update to the owning user; returns false when no row
// matched (unknown id or someone else's notification).
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {

	query, args, err := psql().Update(notificationTableName).
		Set("read_at", at).
		Where(sq.Eq{"id": notificationID, "user_id": userID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to generate mark read query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, utils.ErrorWrapOrNil(err, "failed to mark notification read")
	}

	return tag.RowsAffected() > 0, nil
}
