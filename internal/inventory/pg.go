package inventory

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brianphil/ecommerce-app/internal/metrics"
)

// PG is the postgres ledger. Each reserve locks the product row
// (SELECT ... FOR UPDATE) so concurrent reserves for one product serialize,
// and bumps the row's version counter on every stock mutation.
type PG struct{ DB *pgxpool.Pool }

func (l *PG) Reserve(ctx context.Context, orderID, productID string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidArgument
	}

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, err
	}
	if stock < qty {
		return Reservation{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, version = version + 1, updated_at = now()
		WHERE id=$1`, productID, qty); err != nil {
		return Reservation{}, err
	}

	res := Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(id, order_id, product_id, qty, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		res.ID, res.OrderID, res.ProductID, res.Qty, resReserved, res.CreatedAt); err != nil {
		return Reservation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (l *PG) Release(ctx context.Context, res Reservation) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE reservations SET status=$2 WHERE id=$1 AND status=$3`,
		res.ID, resReleased, resReserved)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// Already released or committed; nothing to restore.
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2, version = version + 1, updated_at = now()
		WHERE id=$1`, res.ProductID, res.Qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PG) Commit(ctx context.Context, res Reservation) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE reservations SET status=$2 WHERE id=$1 AND status=$3`,
		res.ID, resCommitted, resReserved)
	return err
}

// CommitOrder finalizes every open reservation of an order. The stock was
// already decremented at reserve time, so this only flips reservation status
// and checks for low-stock thresholds.
func (l *PG) CommitOrder(ctx context.Context, orderID string) error {
	if err := l.applyInTx(ctx, EffectCommit, orderID); err != nil {
		return err
	}
	AlertLowStock(ctx, l.DB, orderID)
	return nil
}

func (l *PG) ReleaseOrder(ctx context.Context, orderID string) error {
	return l.applyInTx(ctx, EffectRelease, orderID)
}

// RestockOrder returns committed quantities to the shelf; used when a
// confirmed or processing order is cancelled.
func (l *PG) RestockOrder(ctx context.Context, orderID string) error {
	return l.applyInTx(ctx, EffectRestock, orderID)
}

func (l *PG) applyInTx(ctx context.Context, effect Effect, orderID string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := ApplyEffectTx(ctx, tx, effect, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyEffectTx applies an order-scoped stock effect inside the caller's
// transaction, so the effect commits or rolls back together with whatever
// else the caller is writing (the order store records transitions this way).
func ApplyEffectTx(ctx context.Context, tx pgx.Tx, effect Effect, orderID string) error {
	switch effect {
	case EffectCommit:
		_, err := tx.Exec(ctx, `
			UPDATE reservations SET status=$2 WHERE order_id=$1 AND status=$3`,
			orderID, resCommitted, resReserved)
		return err
	case EffectRelease:
		return returnStockTx(ctx, tx, orderID, resReserved, resReleased)
	case EffectRestock:
		return returnStockTx(ctx, tx, orderID, resCommitted, resRestocked)
	}
	return nil
}

func returnStockTx(ctx context.Context, tx pgx.Tx, orderID, fromStatus, toStatus string) error {
	rows, err := tx.Query(ctx, `
		SELECT product_id, qty FROM reservations WHERE order_id=$1 AND status=$2`,
		orderID, fromStatus)
	if err != nil {
		return err
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, version = version + 1, updated_at = now()
			WHERE id=$1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status=$3 WHERE order_id=$1 AND status=$2`,
		orderID, fromStatus, toStatus); err != nil {
		return err
	}
	return nil
}

// AlertLowStock logs and counts products an order's commit pushed to or below
// their threshold. Best effort, run after the committing transaction.
func AlertLowStock(ctx context.Context, db *pgxpool.Pool, orderID string) {
	rows, err := db.Query(ctx, `
		SELECT p.id, p.stock, p.low_stock_at
		FROM products p
		JOIN reservations r ON r.product_id = p.id
		WHERE r.order_id = $1 AND p.stock <= p.low_stock_at`, orderID)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var stock, threshold int
		if err := rows.Scan(&id, &stock, &threshold); err != nil {
			return
		}
		metrics.LowStockAlerts.Inc()
		log.Printf("low stock: product=%s stock=%d threshold=%d", id, stock, threshold)
	}
}
