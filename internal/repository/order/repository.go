package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/paygate/internal/database"
	"github.com/Additional-Code/paygate/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/paygate/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a terminal order is asked to move to a different state.
	ErrConflict = errors.New("order already settled")
)

// TransitionFunc runs inside the settlement transaction after the row changed.
// Returning an error rolls the transition back.
type TransitionFunc func(ctx context.Context, order *entity.Order) error

// Repository encapsulates read/write access for payment orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
	now    func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new order using the write connection.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	if order.UID == uuid.Nil {
		order.UID = uuid.New()
	}
	if order.Status == "" {
		order.Status = entity.OrderPending
	}
	now := r.now()
	order.CreatedAt = now
	order.UpdatedAt = now

	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(
		attribute.String("order.uid", order.UID.String()),
		attribute.String("order.course_id", order.CourseID),
	))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(order).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// GetByUID fetches an order by its public identifier. Reads go to the writer
// so a webhook arriving right after checkout never sees replica lag.
func (r *Repository) GetByUID(ctx context.Context, uid uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByUID", trace.WithAttributes(attribute.String("order.uid", uid.String())))
	defer span.End()

	order := new(entity.Order)
	err := r.writer.NewSelect().Model(order).Where("o.uid = ?", uid).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// AttachExternalTxnID records the processor transaction id while the order is still PENDING.
// It reports whether a row was updated.
func (r *Repository) AttachExternalTxnID(ctx context.Context, uid uuid.UUID, txnID string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.AttachExternalTxnID", trace.WithAttributes(attribute.String("order.uid", uid.String())))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("external_txn_id = ?", txnID).
		Set("updated_at = ?", r.now()).
		Where("uid = ?", uid).
		Where("status = ?", entity.OrderPending).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Settle moves a PENDING order to a terminal status in one transaction.
//
// The row is locked, then updated only while still PENDING. fn runs inside the
// transaction only when this call performed the transition; an error from fn
// rolls everything back. When the order already holds the requested status the
// call is a no-op and changed is false. Any other terminal status yields ErrConflict.
func (r *Repository) Settle(ctx context.Context, uid uuid.UUID, to entity.OrderStatus, txnID string, fn TransitionFunc) (changed bool, settled *entity.Order, err error) {
	if !to.Terminal() {
		return false, nil, fmt.Errorf("settle: %s is not a terminal status", to)
	}

	ctx, span := repoTracer.Start(ctx, "OrderRepository.Settle", trace.WithAttributes(
		attribute.String("order.uid", uid.String()),
		attribute.String("order.status", string(to)),
	))
	defer span.End()

	err = r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		current, err := lockOrder(ctx, tx, uid)
		if err != nil {
			return err
		}
		if current.Status != entity.OrderPending {
			settled = current
			return checkRedelivery(current, to)
		}

		now := r.now()
		update := tx.NewUpdate().
			Model((*entity.Order)(nil)).
			Set("status = ?", to).
			Set("updated_at = ?", now)
		if txnID != "" {
			update = update.Set("external_txn_id = ?", txnID)
		}
		res, err := update.
			Where("uid = ?", uid).
			Where("status = ?", entity.OrderPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Lost the race on a dialect without row locks.
			latest, err := lockOrder(ctx, tx, uid)
			if err != nil {
				return err
			}
			settled = latest
			return checkRedelivery(latest, to)
		}

		current.Status = to
		current.UpdatedAt = now
		if txnID != "" {
			current.ExternalTxnID = txnID
		}
		settled = current
		changed = true

		if fn != nil {
			return fn(ctx, current)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "settle failed")
		}
		return false, settled, err
	}
	span.SetAttributes(attribute.Bool("order.changed", changed))
	return changed, settled, nil
}

// ListStalePending returns PENDING orders whose last update is older than the cutoff, newest first.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListStalePending")
	defer span.End()

	var orders []entity.Order
	q := r.reader.NewSelect().
		Model(&orders).
		Where("o.status = ?", entity.OrderPending).
		Where("o.updated_at < ?", cutoff).
		OrderExpr("o.created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

func lockOrder(ctx context.Context, tx bun.Tx, uid uuid.UUID) (*entity.Order, error) {
	order := new(entity.Order)
	q := tx.NewSelect().Model(order).Where("o.uid = ?", uid)
	// SQLite has no FOR UPDATE; its single writer serializes the transaction.
	// Only reachable from binaries that link a sqlite3 driver.
	if tx.Dialect().Name() != dialect.SQLite {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func checkRedelivery(current *entity.Order, to entity.OrderStatus) error {
	if current.Status == to {
		return nil
	}
	return fmt.Errorf("%w: order is %s", ErrConflict, current.Status)
}
