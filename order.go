package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusCompleted         = "completed"
	OrderStatusPartiallyRefunded = "partially_refunded"
	OrderStatusRefunded          = "refunded"
)

const (
	PaymentCash     = "cash"
	PaymentTransfer = "transfer"
	PaymentCard     = "card"
)

// OrderLine is a quantity of one product at one unit tier. UnitPrice is the
// snapshot taken when the line was created and is never re-derived.
type OrderLine struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	UnitName     string `json:"unit_name"`
	UnitPrice    Money  `json:"unit_price"`
	Quantity     int64  `json:"quantity"`
	BaseQuantity int64  `json:"base_quantity"`
	LineTotal    Money  `json:"line_total"`
}

type CartLine = OrderLine

type Payment struct {
	Method     string `json:"method"`
	AmountPaid Money  `json:"amount_paid"`
	Change     Money  `json:"change"`
}

type Order struct {
	ID        string      `json:"id"`
	Lines     []OrderLine `json:"lines"`
	Total     Money       `json:"total"`
	Payment   Payment     `json:"payment"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewOrder totals the lines and settles the payment. Non-cash payments are
// taken as exact.
func NewOrder(lines []OrderLine, payment Payment) (Order, error) {
	var total Money
	for i := range lines {
		lt, err := ComputeLineTotal(lines[i].UnitPrice, lines[i].Quantity)
		if err != nil {
			return Order{}, err
		}
		if total > math.MaxInt64-lt {
			return Order{}, fmt.Errorf("%w: order total", ErrQuantityOverflow)
		}
		lines[i].LineTotal = lt
		total += lt
	}
	if payment.Method == "" {
		payment.Method = PaymentCash
	}
	if payment.Method != PaymentCash && payment.AmountPaid == 0 {
		payment.AmountPaid = total
	}
	if payment.AmountPaid < total {
		return Order{}, fmt.Errorf("%w: paid %s of %s", ErrInsufficientPayment, payment.AmountPaid, total)
	}
	payment.Change = payment.AmountPaid - total
	return Order{
		ID:        uuid.New().String(),
		Lines:     lines,
		Total:     total,
		Payment:   payment,
		Status:    OrderStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}, nil
}
