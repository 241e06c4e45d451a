package inventory

import (
	"fmt"
	"math"
)

type CartListener func(c *Cart)

// Cart is owned by the checkout flow. Views that need to react to changes
// register a listener instead of reading a shared store.
type Cart struct {
	lines     []CartLine
	products  map[string]Product
	listeners map[int]CartListener
	nextID    int
}

func NewCart() *Cart {
	return &Cart{
		products:  make(map[string]Product),
		listeners: make(map[int]CartListener),
	}
}

// Subscribe registers fn to run after every change and returns a function
// that removes it.
func (c *Cart) Subscribe(fn CartListener) func() {
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() { delete(c.listeners, id) }
}

func (c *Cart) notify() {
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fn(c)
		}
	}
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []CartLine {
	return append([]CartLine(nil), c.lines...)
}

func (c *Cart) Total() Money {
	var total Money
	for _, l := range c.lines {
		total += l.LineTotal
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Add puts qty of the named unit in the cart, merging with an existing line
// for the same product and unit. The quantity is clamped to the stock not
// already held by other lines of the same product; clamped reports it.
func (c *Cart) Add(p Product, unitName string, qty int64) (CartLine, bool, error) {
	if qty < 0 {
		return CartLine{}, false, fmt.Errorf("%w: %d", ErrNegativeQuantity, qty)
	}
	price, err := PriceForUnit(p, unitName)
	if err != nil {
		return CartLine{}, false, err
	}
	c.products[p.ID] = p

	idx := c.indexOf(p.ID, unitName)
	if idx >= 0 {
		if qty > math.MaxInt64-c.lines[idx].Quantity {
			return CartLine{}, false, fmt.Errorf("%w: %d %s", ErrQuantityOverflow, qty, unitName)
		}
		qty += c.lines[idx].Quantity
	}
	line := CartLine{
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitName:    unitName,
		UnitPrice:   price,
	}
	if idx >= 0 {
		line.UnitPrice = c.lines[idx].UnitPrice
	}
	line, clamped, err := c.fit(line, qty, idx)
	if err != nil {
		return CartLine{}, false, err
	}
	if line.Quantity == 0 {
		if idx >= 0 {
			c.removeAt(idx)
			c.notify()
		}
		return CartLine{}, clamped, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
	}
	if idx >= 0 {
		c.lines[idx] = line
	} else {
		c.lines = append(c.lines, line)
	}
	c.notify()
	return line, clamped, nil
}

// SetQuantity replaces the quantity of a line. Zero removes the line.
func (c *Cart) SetQuantity(productID, unitName string, qty int64) (CartLine, bool, error) {
	if qty < 0 {
		return CartLine{}, false, fmt.Errorf("%w: %d", ErrNegativeQuantity, qty)
	}
	idx := c.indexOf(productID, unitName)
	if idx < 0 {
		return CartLine{}, false, fmt.Errorf("%w: %s/%s", ErrLineNotFound, productID, unitName)
	}
	if qty == 0 {
		c.removeAt(idx)
		c.notify()
		return CartLine{}, false, nil
	}
	line, clamped, err := c.fit(c.lines[idx], qty, idx)
	if err != nil {
		return CartLine{}, false, err
	}
	if line.Quantity == 0 {
		return CartLine{}, clamped, fmt.Errorf("%w: %s", ErrOutOfStock, line.ProductName)
	}
	c.lines[idx] = line
	c.notify()
	return line, clamped, nil
}

// ChangeUnit moves a line to another unit tier, snapshotting that tier's
// price now. The line is merged if the target tier is already in the cart.
func (c *Cart) ChangeUnit(productID, fromUnit, toUnit string) (CartLine, bool, error) {
	idx := c.indexOf(productID, fromUnit)
	if idx < 0 {
		return CartLine{}, false, fmt.Errorf("%w: %s/%s", ErrLineNotFound, productID, fromUnit)
	}
	if fromUnit == toUnit {
		return c.lines[idx], false, nil
	}
	p := c.products[productID]
	if _, err := p.FindUnit(toUnit); err != nil {
		return CartLine{}, false, err
	}
	old := c.lines[idx]
	c.removeAt(idx)
	line, clamped, err := c.Add(p, toUnit, old.Quantity)
	if err != nil {
		if idx > len(c.lines) {
			idx = len(c.lines)
		}
		c.lines = append(c.lines[:idx], append([]CartLine{old}, c.lines[idx:]...)...)
		return CartLine{}, clamped, err
	}
	return line, clamped, nil
}

func (c *Cart) Remove(productID, unitName string) error {
	idx := c.indexOf(productID, unitName)
	if idx < 0 {
		return fmt.Errorf("%w: %s/%s", ErrLineNotFound, productID, unitName)
	}
	c.removeAt(idx)
	c.notify()
	return nil
}

func (c *Cart) Clear() {
	c.lines = nil
	c.products = make(map[string]Product)
	c.notify()
}

// Checkout turns the cart into an order and empties it.
func (c *Cart) Checkout(payment Payment) (Order, error) {
	if c.IsEmpty() {
		return Order{}, fmt.Errorf("%w: cart is empty", ErrLineNotFound)
	}
	order, err := NewOrder(c.Lines(), payment)
	if err != nil {
		return Order{}, err
	}
	c.Clear()
	return order, nil
}

// fit clamps qty of line against the stock left after every other line of
// the same product, rounding down to whole units of the line's tier.
func (c *Cart) fit(line CartLine, qty int64, skip int) (CartLine, bool, error) {
	p := c.products[line.ProductID]
	p.Stock -= c.reserved(line.ProductID, skip)
	base, clamped, err := ApplyQuantityClamp(qty, line.UnitName, p)
	if err != nil {
		return CartLine{}, false, err
	}
	if clamped {
		factor, err := CumulativeFactor(p, line.UnitName)
		if err != nil {
			return CartLine{}, false, err
		}
		qty = base / factor
		base = qty * factor
	}
	total, err := ComputeLineTotal(line.UnitPrice, qty)
	if err != nil {
		return CartLine{}, false, err
	}
	line.Quantity = qty
	line.BaseQuantity = base
	line.LineTotal = total
	return line, clamped, nil
}

func (c *Cart) reserved(productID string, skip int) int64 {
	var n int64
	for i, l := range c.lines {
		if i != skip && l.ProductID == productID {
			n += l.BaseQuantity
		}
	}
	return n
}

func (c *Cart) indexOf(productID, unitName string) int {
	for i, l := range c.lines {
		if l.ProductID == productID && l.UnitName == unitName {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}
