package inventory

import "context"

// Store persists the catalog, orders, refunds, audits and stock movements.
// Every write that changes stock receives the Movement describing it and
// applies its deltas atomically with the record it belongs to.
type Store interface {
	FetchProducts(ctx context.Context, search string) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	// UpsertProduct creates or updates p and replaces its unit list.
	UpsertProduct(ctx context.Context, p Product) (Product, error)
	// DeleteProduct removes the product's units, then the product.
	DeleteProduct(ctx context.Context, id string) error

	FetchOrders(ctx context.Context) ([]Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	CreateOrder(ctx context.Context, order Order, mv Movement) (Order, error)
	SaveRefund(ctx context.Context, refund *Refund, mv Movement) error
	// RefundedQuantities returns the base units refunded so far per order
	// line index.
	RefundedQuantities(ctx context.Context, orderID string) (map[int]int64, error)

	SubmitAudit(ctx context.Context, batch AuditBatch, mv Movement) error
	RecordMovement(ctx context.Context, mv Movement) (Movement, error)
	// RecordTransfer applies both sides of a transfer in one transaction.
	RecordTransfer(ctx context.Context, out, in Movement) (Movement, Movement, error)
	FetchMovements(ctx context.Context, productID string) ([]Movement, error)

	Close() error
}
