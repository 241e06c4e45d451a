package inventory

import (
	"fmt"
	"sync"
)

type HookFunc func(mv Movement, l *Ledger) error

// Ledger produces the stock movements of one warehouse. Each operation checks
// and converts quantities, updates the given products in place and returns a
// Movement carrying the resulting balances. Persisting the movement is up to
// the caller; hooks see every movement as it is made.
type Ledger struct {
	WarehouseID string
	mutex       sync.Mutex
	hooks       []HookFunc
}

func NewLedger(warehouseID string) *Ledger {
	return &Ledger{WarehouseID: warehouseID}
}

func (l *Ledger) AddHook(h HookFunc) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.hooks = append(l.hooks, h)
}

// Import receives qty of the named unit into stock. A zero unitPrice takes
// the unit's catalog price.
func (l *Ledger) Import(p *Product, unitName string, qty int64, unitPrice Money, note string) (Movement, error) {
	base, err := ConvertToBaseUnits(*p, unitName, qty)
	if err != nil {
		return Movement{}, err
	}
	if unitPrice == 0 {
		if unitPrice, err = PriceForUnit(*p, unitName); err != nil {
			return Movement{}, err
		}
	}
	p.Stock += base
	mv := newMovement(l.WarehouseID, MovementImport, "", note)
	mv.Items = []MovementItem{{
		ProductID:    p.ID,
		UnitName:     unitName,
		Quantity:     qty,
		BaseQuantity: base,
		UnitPrice:    unitPrice,
		Balance:      p.Stock,
	}}
	return mv, l.add(mv)
}

// Sell takes the order lines off the shelf. Every line must fit in stock;
// nothing is changed otherwise.
func (l *Ledger) Sell(products map[string]*Product, order Order) (Movement, error) {
	need := make(map[string]int64)
	for _, line := range order.Lines {
		p, ok := products[line.ProductID]
		if !ok {
			return Movement{}, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
		base, err := ConvertToBaseUnits(*p, line.UnitName, line.Quantity)
		if err != nil {
			return Movement{}, err
		}
		need[line.ProductID] += base
		if need[line.ProductID] > p.Stock {
			return Movement{}, fmt.Errorf("%w: %s needs %d, has %d", ErrOutOfStock, p.Name, need[line.ProductID], p.Stock)
		}
	}
	mv := newMovement(l.WarehouseID, MovementSale, order.ID, "")
	for _, line := range order.Lines {
		p := products[line.ProductID]
		base, _ := ConvertToBaseUnits(*p, line.UnitName, line.Quantity)
		p.Stock -= base
		mv.Items = append(mv.Items, MovementItem{
			ProductID:    p.ID,
			UnitName:     line.UnitName,
			Quantity:     line.Quantity,
			BaseQuantity: -base,
			UnitPrice:    line.UnitPrice,
			Balance:      p.Stock,
		})
	}
	return mv, l.add(mv)
}

// Return puts refunded units back on the shelf.
func (l *Ledger) Return(products map[string]*Product, refund *Refund) (Movement, error) {
	mv := newMovement(l.WarehouseID, MovementRefund, refund.OrderID, refund.Reason)
	for _, line := range refund.Returned() {
		p, ok := products[line.ProductID]
		if !ok {
			return Movement{}, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
		p.Stock += line.BaseQuantity
		mv.Items = append(mv.Items, MovementItem{
			ProductID:    p.ID,
			UnitName:     line.ReturnUnitName,
			Quantity:     line.ReturnQuantity,
			BaseQuantity: line.BaseQuantity,
			UnitPrice:    line.ReturnUnitPrice,
			Balance:      p.Stock,
		})
	}
	return mv, l.add(mv)
}

// Transfer moves qty of the named unit from this warehouse to dest. The
// request is clamped to the source stock and arrives in base units, so the
// destination product may name its units differently.
func (l *Ledger) Transfer(from, to *Product, unitName string, qty int64, dest *Ledger, note string) (Movement, Movement, bool, error) {
	base, clamped, err := ApplyQuantityClamp(qty, unitName, *from)
	if err != nil {
		return Movement{}, Movement{}, false, err
	}
	if base == 0 {
		return Movement{}, Movement{}, clamped, fmt.Errorf("%w: %s", ErrOutOfStock, from.Name)
	}
	if len(to.Units) == 0 {
		return Movement{}, Movement{}, clamped, fmt.Errorf("%w: destination has no units", ErrInvalidProduct)
	}
	from.Stock -= base
	to.Stock += base
	baseUnit := from.BaseUnit()

	out := newMovement(l.WarehouseID, MovementTransferOut, dest.WarehouseID, note)
	out.Items = []MovementItem{{
		ProductID:    from.ID,
		UnitName:     baseUnit.Name,
		Quantity:     base,
		BaseQuantity: -base,
		UnitPrice:    baseUnit.Price,
		Balance:      from.Stock,
	}}
	in := newMovement(dest.WarehouseID, MovementTransferIn, l.WarehouseID, note)
	in.Reference = out.ID
	in.Items = []MovementItem{{
		ProductID:    to.ID,
		UnitName:     to.BaseUnit().Name,
		Quantity:     base,
		BaseQuantity: base,
		UnitPrice:    to.BaseUnit().Price,
		Balance:      to.Stock,
	}}
	if err := l.add(out); err != nil {
		return out, in, clamped, err
	}
	return out, in, clamped, dest.add(in)
}

// Adjust reconciles stock with an audit batch: each counted product takes
// its actual stock and the variance is recorded.
func (l *Ledger) Adjust(products map[string]*Product, batch AuditBatch) (Movement, error) {
	mv := newMovement(l.WarehouseID, MovementAudit, batch.ID, batch.Note)
	for _, e := range batch.Entries {
		p, ok := products[e.ProductID]
		if !ok {
			return Movement{}, fmt.Errorf("%w: %s", ErrProductNotFound, e.ProductID)
		}
		if e.ActualStock < 0 {
			return Movement{}, fmt.Errorf("%w: counted %d for %s", ErrNegativeQuantity, e.ActualStock, p.Name)
		}
		delta := e.ActualStock - p.Stock
		p.Stock = e.ActualStock
		mv.Items = append(mv.Items, MovementItem{
			ProductID:    p.ID,
			UnitName:     p.BaseUnit().Name,
			Quantity:     delta,
			BaseQuantity: delta,
			UnitPrice:    p.BaseUnit().Price,
			Balance:      p.Stock,
		})
	}
	return mv, l.add(mv)
}

func (l *Ledger) add(mv Movement) error {
	l.mutex.Lock()
	hooks := append([]HookFunc(nil), l.hooks...)
	l.mutex.Unlock()
	for _, hook := range hooks {
		if err := hook(mv, l); err != nil {
			return err
		}
	}
	return nil
}
