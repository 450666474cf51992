package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carebridge/internal/utils"
	"carebridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentTableName = "carebridge.payments"

var paymentColumns = utils.StructTagValues(types.Payment{})

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Payment(ctx context.Context, paymentID string) (*types.Payment, error) {
	return r.paymentWhere(ctx, sq.Eq{"id": paymentID})
}

// PaymentByIntent looks up the local mirror by the processor's intent id, the
// join key used by webhook reconciliation.
func (r *PaymentRepository) PaymentByIntent(ctx context.Context, externalTransactionID string) (*types.Payment, error) {
	return r.paymentWhere(ctx, sq.Eq{"external_transaction_id": externalTransactionID})
}

// PaymentByChargeID resolves a payment from the charge id merged into its
// metadata at success time. Dispute events reference charges, not intents.
func (r *PaymentRepository) PaymentByChargeID(ctx context.Context, chargeID string) (*types.Payment, error) {
	return r.paymentWhere(ctx, sq.Expr("metadata->>'charge_id' = ?", chargeID))
}

func (r *PaymentRepository) paymentWhere(ctx context.Context, pred any) (*types.Payment, error) {

	query, args, err := psql().Select(paymentColumns...).From(paymentTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment query: %w", err)
	}

	var payment = new(types.Payment)
	err = pgxscan.Get(ctx, r.pool, payment, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}

	return payment, nil
}

// ActivePaymentForRequest returns (nil, nil) when the request has no payment
// in processing or completed status. Guards the no-double-charge invariant.
func (r *PaymentRepository) ActivePaymentForRequest(ctx context.Context, requestID string) (*types.Payment, error) {

	query, args, err := psql().Select(paymentColumns...).From(paymentTableName).
		Where(sq.Eq{
			"request_id": requestID,
			"status":     []types.PaymentStatus{types.PaymentStatusProcessing, types.PaymentStatusCompleted},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate active payment query: %w", err)
	}

	var payment = new(types.Payment)
	err = pgxscan.Get(ctx, r.pool, payment, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch active payment: %w", err)
	}

	return payment, nil
}

func (r *PaymentRepository) PaymentsByPatient(ctx context.Context, patientID string) ([]*types.Payment, error) {

	query, args, err := psql().Select(paymentColumns...).From(paymentTableName).
		Where(sq.Eq{"patient_id": patientID}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payments query: %w", err)
	}

	var payments = make([]*types.Payment, 0)
	err = pgxscan.Select(ctx, r.pool, &payments, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to list payments")
	}

	return payments, nil
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *types.Payment) error {

	now := time.Now()
	payment.ID = utils.NanoID()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.Metadata == nil {
		payment.Metadata = map[string]string{}
	}

	paymentMap := utils.StructToMap(payment)

	query, args, err := psql().Insert(paymentTableName).SetMap(paymentMap).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert payment query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create payment")
}

// MarkCompletedByIntent records the processor's success verdict. The write is
// absolute (set status=completed) so replayed webhook deliveries converge on
// the same row state. Refunded is terminal: a late success report leaves the
// row alone and returns it as-is.
func (r *PaymentRepository) MarkCompletedByIntent(ctx context.Context, externalTransactionID string, at time.Time, metadata map[string]string) (*types.Payment, error) {

	builder := psql().Update(paymentTableName).
		Set("status", types.PaymentStatusCompleted).
		Set("processed_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"external_transaction_id": externalTransactionID}).
		Where(sq.NotEq{"status": types.PaymentStatusRefunded})

	if len(metadata) > 0 {
		builder = builder.Set("metadata", sq.Expr("metadata || ?", metadata))
	}

	payment, err := r.updateReturning(ctx, builder)
	if errors.Is(err, types.ErrPaymentNotFound) {
		return r.PaymentByIntent(ctx, externalTransactionID)
	}
	return payment, err
}

func (r *PaymentRepository) MarkFailedByIntent(ctx context.Context, externalTransactionID string, at time.Time, reason string) (*types.Payment, error) {

	builder := psql().Update(paymentTableName).
		Set("status", types.PaymentStatusFailed).
		Set("failed_at", at).
		Set("failure_reason", nullable(reason)).
		Set("updated_at", at).
		Where(sq.Eq{"external_transaction_id": externalTransactionID}).
		Where(sq.NotEq{"status": types.PaymentStatusRefunded})

	payment, err := r.updateReturning(ctx, builder)
	if errors.Is(err, types.ErrPaymentNotFound) {
		return r.PaymentByIntent(ctx, externalTransactionID)
	}
	return payment, err
}

func (r *PaymentRepository) MarkRefunded(ctx context.Context, paymentID string, at time.Time, amount int64, reason string) (*types.Payment, error) {

	builder := psql().Update(paymentTableName).
		Set("status", types.PaymentStatusRefunded).
		Set("refunded_at", at).
		Set("refund_amount", amount).
		Set("refund_reason", nullable(reason)).
		Set("updated_at", at).
		Where(sq.Eq{"id": paymentID})

	return r.updateReturning(ctx, builder)
}

func (r *PaymentRepository) MergeMetadata(ctx context.Context, paymentID string, metadata map[string]string, at time.Time) (*types.Payment, error) {

	builder := psql().Update(paymentTableName).
		Set("metadata", sq.Expr("metadata || ?", metadata)).
		Set("updated_at", at).
		Where(sq.Eq{"id": paymentID})

	return r.updateReturning(ctx, builder)
}

func (r *PaymentRepository) updateReturning(ctx context.Context, builder sq.UpdateBuilder) (*types.Payment, error) {

	query, args, err := builder.
		Suffix("RETURNING " + strings.Join(paymentColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment update query: %w", err)
	}

	var payment = new(types.Payment)
	err = pgxscan.Get(ctx, r.pool, payment, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	return payment, nil
}
