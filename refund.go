package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxRefundQuantity is the ceiling of the quantity picker.
const MaxRefundQuantity = 999

// RefundLine returns part of an order line, possibly in another unit tier.
// The return price comes from the product's current unit list.
type RefundLine struct {
	OrderLine        int    `json:"order_line"`
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name"`
	OriginalUnitName string `json:"original_unit_name"`
	OriginalQuantity int64  `json:"original_quantity"`
	ReturnUnitName   string `json:"return_unit_name"`
	ReturnUnitPrice  Money  `json:"return_unit_price"`
	ReturnQuantity   int64  `json:"return_quantity"`
	BaseQuantity     int64  `json:"base_quantity"`
}

type Refund struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	Lines     []RefundLine `json:"lines"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	soldBase  []int64
	priorBase []int64
	products  map[string]Product
}

// NewRefund prepares one refund line per order line with nothing returned.
// Every product of the order must be present in products. refunded holds the
// base units already returned by earlier refunds, keyed by order line index.
func NewRefund(order Order, products map[string]Product, refunded map[int]int64) (*Refund, error) {
	if order.Status == OrderStatusRefunded {
		return nil, fmt.Errorf("%w: order %s is fully refunded", ErrRefundExceedsSale, order.ID)
	}
	r := &Refund{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		CreatedAt: time.Now().UTC(),
		products:  products,
	}
	for i, ol := range order.Lines {
		p, ok := products[ol.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, ol.ProductID)
		}
		line := RefundLine{
			OrderLine:        i,
			ProductID:        ol.ProductID,
			ProductName:      ol.ProductName,
			OriginalUnitName: ol.UnitName,
			OriginalQuantity: ol.Quantity,
			ReturnUnitName:   ol.UnitName,
		}
		if _, err := p.FindUnit(ol.UnitName); err != nil {
			line.ReturnUnitName = p.BaseUnit().Name
		}
		price, err := PriceForUnit(p, line.ReturnUnitName)
		if err != nil {
			return nil, err
		}
		line.ReturnUnitPrice = price
		sold := ol.BaseQuantity
		if sold == 0 {
			if sold, err = ConvertToBaseUnits(p, ol.UnitName, ol.Quantity); err != nil {
				return nil, err
			}
		}
		r.Lines = append(r.Lines, line)
		r.soldBase = append(r.soldBase, sold)
		r.priorBase = append(r.priorBase, refunded[i])
	}
	return r, nil
}

// CycleUnit switches line i to the next unit tier of its product, re-pricing
// it and re-capping the quantity.
func (r *Refund) CycleUnit(i int) (RefundLine, error) {
	if i < 0 || i >= len(r.Lines) {
		return RefundLine{}, fmt.Errorf("%w: refund line %d", ErrLineNotFound, i)
	}
	p := r.products[r.Lines[i].ProductID]
	next, err := CycleUnit(p, r.Lines[i].ReturnUnitName)
	if err != nil {
		return RefundLine{}, err
	}
	r.Lines[i].ReturnUnitName = next.Name
	r.Lines[i].ReturnUnitPrice = next.Price
	return r.SetQuantity(i, r.Lines[i].ReturnQuantity)
}

// SetQuantity sets the returned quantity of line i. It is capped so the base
// units returned by every refund of the order never exceed what was sold on
// that line.
func (r *Refund) SetQuantity(i int, qty int64) (RefundLine, error) {
	if i < 0 || i >= len(r.Lines) {
		return RefundLine{}, fmt.Errorf("%w: refund line %d", ErrLineNotFound, i)
	}
	if qty < 0 {
		return RefundLine{}, fmt.Errorf("%w: %d", ErrNegativeQuantity, qty)
	}
	if qty > MaxRefundQuantity {
		qty = MaxRefundQuantity
	}
	line := &r.Lines[i]
	factor, err := CumulativeFactor(r.products[line.ProductID], line.ReturnUnitName)
	if err != nil {
		return RefundLine{}, err
	}
	if limit := r.Remaining(i) / factor; qty > limit {
		qty = limit
	}
	line.ReturnQuantity = qty
	line.BaseQuantity = qty * factor
	return *line, nil
}

// Remaining is the base units of line i not yet returned by earlier refunds.
func (r *Refund) Remaining(i int) int64 {
	if left := r.soldBase[i] - r.priorBase[i]; left > 0 {
		return left
	}
	return 0
}

func (r *Refund) Total() Money {
	var total Money
	for _, l := range r.Lines {
		total += l.ReturnUnitPrice.Multiply(l.ReturnQuantity)
	}
	return total
}

// StockReturns sums the base units going back on the shelf per product.
func (r *Refund) StockReturns() map[string]int64 {
	out := make(map[string]int64)
	for _, l := range r.Lines {
		if l.BaseQuantity > 0 {
			out[l.ProductID] += l.BaseQuantity
		}
	}
	return out
}

// Returned drops the lines with nothing returned.
func (r *Refund) Returned() []RefundLine {
	var out []RefundLine
	for _, l := range r.Lines {
		if l.ReturnQuantity > 0 {
			out = append(out, l)
		}
	}
	return out
}

// OrderStatusAfter tells whether this refund, with the earlier ones, returns
// the whole order.
func (r *Refund) OrderStatusAfter() string {
	for i, l := range r.Lines {
		if r.priorBase[i]+l.BaseQuantity < r.soldBase[i] {
			return OrderStatusPartiallyRefunded
		}
	}
	return OrderStatusRefunded
}
