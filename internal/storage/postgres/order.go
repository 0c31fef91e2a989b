package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/franchise-orders/internal/domain/order"
)

const (
	lockOrderSQL = `SELECT id, client_id, status, version FROM orders WHERE id = $1 FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (
			client_id, client_code, store_code, issued_on, message, nature,
			status, payment_rule_id, freight_rule_id, total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	updateOrderHeaderSQL = `UPDATE orders SET
			issued_on = $2,
			message = $3,
			nature = $4,
			payment_rule_id = $5,
			freight_rule_id = $6,
			total = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING version`

	deleteOrderLinesSQL = `DELETE FROM order_lines WHERE order_id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	setOrderStatusSQL = `UPDATE orders SET
			status = $2,
			issued_on = COALESCE($3::date, issued_on),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING version`

	getOrderSQL = `SELECT id, client_id, client_code, store_code, issued_on, message, nature,
			status, payment_rule_id, freight_rule_id, total, version, created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderLinesSQL = `SELECT product_id, product_code, description, quantity, unit_price, amount
		FROM order_lines WHERE order_id = $1 ORDER BY position`
)

var orderLineColumns = []string{
	"order_id", "position", "product_id", "product_code", "description",
	"quantity", "unit_price", "amount",
}

var (
	_ order.Store  = (*OrderStore)(nil)
	_ order.Reader = (*OrderStore)(nil)
	_ order.Tx     = (*orderTx)(nil)
)

// OrderStore implements order.Store and order.Reader backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Begin opens a read-committed transaction. Mutations lock the order row
// before reading its state.
func (s *OrderStore) Begin(ctx context.Context) (order.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("beginning order transaction: %w", err)
	}
	return &orderTx{tx: tx}, nil
}

// ReadOrder loads the header and lines from one repeatable-read snapshot, so
// the lines always match the stored total.
func (s *OrderStore) ReadOrder(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getOrderSQL, id)
		if err != nil {
			return fmt.Errorf("getting order %d: %w", id, err)
		}
		o, err = pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrOrderNotFound
			}
			return fmt.Errorf("getting order %d: %w", id, err)
		}

		rows, err = tx.Query(ctx, getOrderLinesSQL, id)
		if err != nil {
			return fmt.Errorf("getting lines of order %d: %w", id, err)
		}
		o.Lines, err = pgx.CollectRows(rows, scanOrderLine)
		if err != nil {
			return fmt.Errorf("getting lines of order %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// orderTx adapts pgx.Tx to order.Tx.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockOrder(ctx context.Context, id int64) (order.Snapshot, error) {
	var (
		snap   order.Snapshot
		status string
	)
	err := t.tx.QueryRow(ctx, lockOrderSQL, id).Scan(&snap.ID, &snap.ClientID, &status, &snap.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Snapshot{}, order.ErrOrderNotFound
		}
		return order.Snapshot{}, fmt.Errorf("locking order %d: %w", id, err)
	}
	snap.Status = order.Status(status)
	return snap, nil
}

func (t *orderTx) InsertOrder(ctx context.Context, h *order.Header) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		h.ClientID, h.ClientCode, h.StoreCode, h.IssuedOn, h.Message, h.Nature,
		string(h.Status), h.PaymentRuleID, h.FreightRuleID, h.Total,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting order for client %d: %w", h.ClientID, err)
	}
	return id, nil
}

func (t *orderTx) InsertLines(ctx context.Context, orderID int64, lines []order.Line) error {
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{"order_lines"}, orderLineColumns,
		pgx.CopyFromSlice(len(lines), func(i int) ([]any, error) {
			l := lines[i]
			return []any{
				orderID, i + 1, l.ProductID, l.ProductCode, l.Description,
				l.Quantity, l.UnitPrice, l.Amount,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("inserting lines of order %d: %w", orderID, err)
	}
	if int(n) != len(lines) {
		return fmt.Errorf("inserting lines of order %d: copied %d of %d", orderID, n, len(lines))
	}
	return nil
}

func (t *orderTx) UpdateHeader(ctx context.Context, id int64, h *order.Header) (int, error) {
	var version int
	err := t.tx.QueryRow(ctx, updateOrderHeaderSQL,
		id, h.IssuedOn, h.Message, h.Nature, h.PaymentRuleID, h.FreightRuleID, h.Total,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("updating order %d: %w", id, err)
	}
	return version, nil
}

func (t *orderTx) DeleteLines(ctx context.Context, orderID int64) error {
	if _, err := t.tx.Exec(ctx, deleteOrderLinesSQL, orderID); err != nil {
		return fmt.Errorf("deleting lines of order %d: %w", orderID, err)
	}
	return nil
}

func (t *orderTx) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting order %d: no rows affected", id)
	}
	return nil
}

func (t *orderTx) SetStatus(ctx context.Context, id int64, to order.Status, issuedOn *time.Time) (int, error) {
	var version int
	err := t.tx.QueryRow(ctx, setOrderStatusSQL, id, string(to), issuedOn).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("setting status of order %d to %s: %w", id, to, err)
	}
	return version, nil
}

func (t *orderTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op on a transaction that already ended.
func (t *orderTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.ClientID, &o.ClientCode, &o.StoreCode, &o.IssuedOn, &o.Message, &o.Nature,
		&status, &o.PaymentRuleID, &o.FreightRuleID, &o.Total, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ProductID, &l.ProductCode, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount)
	return l, err
}
