package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer keeps stock updates serialized
	db.SetMaxOpenConns(1)
	return WithSQLite(db)
}

func WithSQLite(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT,
			image_url TEXT,
			barcode TEXT,
			stock INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS product_units (
			product_id TEXT NOT NULL REFERENCES products(id),
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			price INTEGER NOT NULL,
			conversion_factor INTEGER NOT NULL,
			is_base_unit INTEGER NOT NULL,
			PRIMARY KEY (product_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			total INTEGER,
			payment_method TEXT,
			amount_paid INTEGER,
			change_amount INTEGER,
			status TEXT,
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			order_id TEXT,
			position INTEGER,
			product_id TEXT,
			product_name TEXT,
			unit_name TEXT,
			unit_price INTEGER,
			quantity INTEGER,
			base_quantity INTEGER,
			line_total INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id TEXT PRIMARY KEY,
			order_id TEXT,
			reason TEXT,
			total INTEGER,
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS refund_lines (
			refund_id TEXT,
			order_line INTEGER,
			product_id TEXT,
			original_unit_name TEXT,
			original_quantity INTEGER,
			return_unit_name TEXT,
			return_unit_price INTEGER,
			return_quantity INTEGER,
			base_quantity INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS audit_batches (
			id TEXT PRIMARY KEY,
			warehouse_id TEXT,
			note TEXT,
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			batch_id TEXT,
			product_id TEXT,
			product_name TEXT,
			system_stock INTEGER,
			actual_stock INTEGER,
			variance INTEGER,
			status TEXT,
			counted_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS movements (
			id TEXT PRIMARY KEY,
			warehouse_id TEXT,
			type TEXT,
			reference TEXT,
			timestamp TEXT,
			note TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS movement_items (
			movement_id TEXT,
			product_id TEXT,
			unit_name TEXT,
			quantity INTEGER,
			base_quantity INTEGER,
			unit_price INTEGER,
			balance INTEGER
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// FetchProducts lists products matching search by name, category or barcode.
// Matching happens in Go because SQLite LIKE only folds ASCII case.
func (s *SQLiteStore) FetchProducts(ctx context.Context, search string) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, category, image_url, barcode, stock FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.ImageURL, &p.Barcode, &p.Stock); err != nil {
			rows.Close()
			return nil, err
		}
		if p.MatchesSearch(search) {
			products = append(products, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range products {
		units, err := s.loadUnits(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Units = units
	}
	return products, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, image_url, barcode, stock FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Category, &p.ImageURL, &p.Barcode, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return Product{}, err
	}
	if p.Units, err = s.loadUnits(ctx, id); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLiteStore) loadUnits(ctx context.Context, productID string) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, price, conversion_factor, is_base_unit FROM product_units WHERE product_id = ? ORDER BY position`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.Name, &u.Price, &u.ConversionFactor, &u.IsBaseUnit); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO products (id, name, category, image_url, barcode, stock, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, category = excluded.category,
				image_url = excluded.image_url, barcode = excluded.barcode, stock = excluded.stock,
				updated_at = excluded.updated_at`,
			p.ID, p.Name, p.Category, p.ImageURL, p.Barcode, p.Stock, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_units WHERE product_id = ?`, p.ID); err != nil {
			return err
		}
		for i, u := range p.Units {
			_, err := tx.ExecContext(ctx, `INSERT INTO product_units (product_id, position, name, price, conversion_factor, is_base_unit)
				VALUES (?, ?, ?, ?, ?, ?)`, p.ID, i, u.Name, u.Price, u.ConversionFactor, u.IsBaseUnit)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_units WHERE product_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return nil
	})
}

func (s *SQLiteStore) FetchOrders(ctx context.Context) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, total, payment_method, amount_paid, change_amount, status, created_at
		FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Lines, err = s.loadOrderLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, total, payment_method, amount_paid, change_amount, status, created_at
		FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}
	if o.Lines, err = s.loadOrderLines(ctx, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (Order, error) {
	var o Order
	var createdAt string
	err := r.Scan(&o.ID, &o.Total, &o.Payment.Method, &o.Payment.AmountPaid, &o.Payment.Change, &o.Status, &createdAt)
	if err != nil {
		return Order{}, err
	}
	o.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return o, nil
}

func (s *SQLiteStore) loadOrderLines(ctx context.Context, orderID string) ([]OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, product_name, unit_name, unit_price, quantity, base_quantity, line_total
		FROM order_lines WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.UnitName, &l.UnitPrice, &l.Quantity, &l.BaseQuantity, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *SQLiteStore) CreateOrder(ctx context.Context, order Order, mv Movement) (Order, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO orders (id, total, payment_method, amount_paid, change_amount, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.Total, order.Payment.Method, order.Payment.AmountPaid, order.Payment.Change,
			order.Status, order.CreatedAt.Format(timeLayout))
		if err != nil {
			return err
		}
		for i, l := range order.Lines {
			_, err := tx.ExecContext(ctx, `INSERT INTO order_lines (order_id, position, product_id, product_name, unit_name, unit_price, quantity, base_quantity, line_total)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				order.ID, i, l.ProductID, l.ProductName, l.UnitName, l.UnitPrice, l.Quantity, l.BaseQuantity, l.LineTotal)
			if err != nil {
				return err
			}
		}
		_, err = applyMovement(ctx, tx, mv)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// SaveRefund stores the refund and puts its lines back in stock. Every order
// line is checked against all of its refunds inside the transaction, and the
// order status is derived from those totals.
func (s *SQLiteStore) SaveRefund(ctx context.Context, refund *Refund, mv Movement) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO refunds (id, order_id, reason, total, created_at) VALUES (?, ?, ?, ?, ?)`,
			refund.ID, refund.OrderID, refund.Reason, refund.Total(), refund.CreatedAt.Format(timeLayout))
		if err != nil {
			return err
		}
		for _, l := range refund.Returned() {
			_, err := tx.ExecContext(ctx, `INSERT INTO refund_lines (refund_id, order_line, product_id, original_unit_name, original_quantity, return_unit_name, return_unit_price, return_quantity, base_quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				refund.ID, l.OrderLine, l.ProductID, l.OriginalUnitName, l.OriginalQuantity, l.ReturnUnitName, l.ReturnUnitPrice, l.ReturnQuantity, l.BaseQuantity)
			if err != nil {
				return err
			}
		}
		status, err := refundStatus(ctx, tx, refund.OrderID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, refund.OrderID); err != nil {
			return err
		}
		_, err = applyMovement(ctx, tx, mv)
		return err
	})
}

// refundStatus compares every line of the order with the base units refunded
// against it so far.
func refundStatus(ctx context.Context, tx *sql.Tx, orderID string) (string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT l.position, l.base_quantity,
			COALESCE((SELECT SUM(rl.base_quantity) FROM refund_lines rl JOIN refunds r ON r.id = rl.refund_id
				WHERE r.order_id = l.order_id AND rl.order_line = l.position), 0)
		FROM order_lines l WHERE l.order_id = ? ORDER BY l.position`, orderID)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	status := OrderStatusRefunded
	found := false
	for rows.Next() {
		var position int
		var sold, refunded int64
		if err := rows.Scan(&position, &sold, &refunded); err != nil {
			return "", err
		}
		found = true
		if refunded > sold {
			return "", fmt.Errorf("%w: line %d returns %d of %d", ErrRefundExceedsSale, position, refunded, sold)
		}
		if refunded < sold {
			status = OrderStatusPartiallyRefunded
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return status, nil
}

// RefundedQuantities sums the base units already refunded per order line.
func (s *SQLiteStore) RefundedQuantities(ctx context.Context, orderID string) (map[int]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rl.order_line, SUM(rl.base_quantity)
		FROM refund_lines rl JOIN refunds r ON r.id = rl.refund_id
		WHERE r.order_id = ? GROUP BY rl.order_line`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refunded := make(map[int]int64)
	for rows.Next() {
		var line int
		var base int64
		if err := rows.Scan(&line, &base); err != nil {
			return nil, err
		}
		refunded[line] = base
	}
	return refunded, rows.Err()
}

func (s *SQLiteStore) SubmitAudit(ctx context.Context, batch AuditBatch, mv Movement) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO audit_batches (id, warehouse_id, note, created_at) VALUES (?, ?, ?, ?)`,
			batch.ID, batch.WarehouseID, batch.Note, batch.CreatedAt.Format(timeLayout))
		if err != nil {
			return err
		}
		for _, e := range batch.Entries {
			_, err := tx.ExecContext(ctx, `INSERT INTO audit_entries (batch_id, product_id, product_name, system_stock, actual_stock, variance, status, counted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				batch.ID, e.ProductID, e.ProductName, e.SystemStock, e.ActualStock, e.Variance, string(e.Status), e.CountedAt.Format(timeLayout))
			if err != nil {
				return err
			}
		}
		_, err = applyMovement(ctx, tx, mv)
		return err
	})
}

func (s *SQLiteStore) RecordMovement(ctx context.Context, mv Movement) (Movement, error) {
	var out Movement
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = applyMovement(ctx, tx, mv)
		return err
	})
	return out, err
}

func (s *SQLiteStore) RecordTransfer(ctx context.Context, out, in Movement) (Movement, Movement, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if out, err = applyMovement(ctx, tx, out); err != nil {
			return err
		}
		in, err = applyMovement(ctx, tx, in)
		return err
	})
	return out, in, err
}

// applyMovement adds every item delta to the stored stock, refusing to go
// below zero, and stores the movement with the balances read back.
func applyMovement(ctx context.Context, tx *sql.Tx, mv Movement) (Movement, error) {
	_, err := tx.ExecContext(ctx, `INSERT INTO movements (id, warehouse_id, type, reference, timestamp, note) VALUES (?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.WarehouseID, mv.Type, mv.Reference, mv.Timestamp.Format(timeLayout), mv.Note)
	if err != nil {
		return mv, err
	}
	items := make([]MovementItem, len(mv.Items))
	copy(items, mv.Items)
	for i := range items {
		item := &items[i]
		res, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + ? WHERE id = ? AND stock + ? >= 0`,
			item.BaseQuantity, item.ProductID, item.BaseQuantity)
		if err != nil {
			return mv, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var stock int64
			err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, item.ProductID).Scan(&stock)
			if errors.Is(err, sql.ErrNoRows) {
				return mv, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			}
			return mv, fmt.Errorf("%w: %s has %d, change %d", ErrOutOfStock, item.ProductID, stock, item.BaseQuantity)
		}
		if err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, item.ProductID).Scan(&item.Balance); err != nil {
			return mv, err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO movement_items (movement_id, product_id, unit_name, quantity, base_quantity, unit_price, balance)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			mv.ID, item.ProductID, item.UnitName, item.Quantity, item.BaseQuantity, item.UnitPrice, item.Balance)
		if err != nil {
			return mv, err
		}
	}
	mv.Items = items
	return mv, nil
}

func (s *SQLiteStore) FetchMovements(ctx context.Context, productID string) ([]Movement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.id, m.warehouse_id, m.type, m.reference, m.timestamp, m.note,
			i.product_id, i.unit_name, i.quantity, i.base_quantity, i.unit_price, i.balance
		FROM movements m JOIN movement_items i ON i.movement_id = m.id
		WHERE i.product_id = ?
		ORDER BY m.timestamp`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	index := make(map[string]int)
	for rows.Next() {
		var mv Movement
		var item MovementItem
		var ts string
		if err := rows.Scan(&mv.ID, &mv.WarehouseID, &mv.Type, &mv.Reference, &ts, &mv.Note,
			&item.ProductID, &item.UnitName, &item.Quantity, &item.BaseQuantity, &item.UnitPrice, &item.Balance); err != nil {
			return nil, err
		}
		if i, ok := index[mv.ID]; ok {
			movements[i].Items = append(movements[i].Items, item)
			continue
		}
		mv.Timestamp, _ = time.Parse(timeLayout, ts)
		mv.Items = []MovementItem{item}
		index[mv.ID] = len(movements)
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
