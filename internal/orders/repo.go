package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brianphil/ecommerce-app/internal/inventory"
	"github.com/brianphil/ecommerce-app/internal/notify"
)

// PGStore persists orders, line items, transition history and the
// notification job outbox. It also serves catalog reads for the snapshot
// builder and product listing.
type PGStore struct{ DB *pgxpool.Pool }

func (r *PGStore) Create(ctx context.Context, o *Order, jobs []notify.Job) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, customer_id, contact_phone, contact_email,
		                   status, total_cents, tracking_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.Number, o.CustomerID, o.Contact.Phone, o.Contact.Email,
		o.Status, o.TotalCents, o.TrackingNumber, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Name, it.Qty, it.PriceCents); err != nil {
			return err
		}
	}

	// Initial history row: the order entered PENDING.
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_transitions(order_id, from_status, to_status, actor, note, occurred_at)
		VALUES ($1,'',$2,$3,'order placed',$4)`,
		o.ID, o.Status, ActorSystem, o.CreatedAt); err != nil {
		return err
	}

	if err := insertJobs(ctx, tx, jobs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGStore) Get(ctx context.Context, orderID string) (*Order, error) {
	o := &Order{ID: orderID}
	err := r.DB.QueryRow(ctx, `
		SELECT order_number, customer_id, contact_phone, contact_email, status,
		       total_cents, tracking_number, created_at, updated_at
		FROM orders WHERE id=$1`, orderID).Scan(
		&o.Number, &o.CustomerID, &o.Contact.Phone, &o.Contact.Email, &o.Status,
		&o.TotalCents, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, qty, price_cents FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.PriceCents); err != nil {
			rows.Close()
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.DB.Query(ctx, `
		SELECT from_status, to_status, actor, note, occurred_at
		FROM order_transitions WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.From, &tr.To, &tr.Actor, &tr.Note, &tr.OccurredAt); err != nil {
			return nil, err
		}
		o.History = append(o.History, tr)
	}
	return o, rows.Err()
}

func (r *PGStore) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_number, status, total_cents, tracking_number, created_at, updated_at
		FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o := Order{CustomerID: customerID}
		if err := rows.Scan(&o.ID, &o.Number, &o.Status, &o.TotalCents,
			&o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecordTransition persists a validated transition together with its stock
// effect. The order row is locked and its status re-checked so two processes
// cannot interleave; the in-process keyed mutex already serializes transitions
// within one instance. Status, history, reservations and jobs commit or roll
// back as one unit.
func (r *PGStore) RecordTransition(ctx context.Context, o *Order, tr Transition, effect inventory.Effect, jobs []notify.Job) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, o.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if current != tr.From {
		return fmt.Errorf("order %s moved to %s concurrently", o.ID, current)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, tracking_number=$3, updated_at=$4 WHERE id=$1`,
		o.ID, o.Status, o.TrackingNumber, o.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_transitions(order_id, from_status, to_status, actor, note, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, tr.From, tr.To, tr.Actor, tr.Note, tr.OccurredAt); err != nil {
		return err
	}
	if err := inventory.ApplyEffectTx(ctx, tx, effect, o.ID); err != nil {
		return err
	}
	if err := insertJobs(ctx, tx, jobs); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if effect == inventory.EffectCommit {
		inventory.AlertLowStock(ctx, r.DB, o.ID)
	}
	return nil
}

func insertJobs(ctx context.Context, tx pgx.Tx, jobs []notify.Job) error {
	for _, j := range jobs {
		payload, err := json.Marshal(j.Payload)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO notification_jobs(id, order_id, event_kind, channel, recipient,
			                              payload, attempts, state, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8)`,
			j.ID, j.OrderID, j.Kind, j.Channel, j.Recipient, payload,
			notify.StatePending, j.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGStore) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, low_stock_at, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents,
			&p.LowStockAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProductsByID resolves a set of products for snapshot building.
func (r *PGStore) ProductsByID(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	args := make([]any, 0, len(ids))
	params := ""
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, low_stock_at, created_at, updated_at
		FROM products WHERE id IN (`+params+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents,
			&p.LowStockAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
