package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type AuditStatus string

const (
	AuditMatch AuditStatus = "MATCH"
	AuditOver  AuditStatus = "OVER"
	AuditUnder AuditStatus = "UNDER"
)

// UnitQuantity is how many whole units of one tier the stock covers.
type UnitQuantity struct {
	UnitName  string `json:"unit_name"`
	Available int64  `json:"available"`
}

// CumulativeFactors returns, per unit, the number of base units in one of it:
// the running product of every conversion factor from the base unit up.
func CumulativeFactors(units []Unit) ([]int64, error) {
	factors := make([]int64, len(units))
	cum := int64(1)
	for i, u := range units {
		f := u.ConversionFactor
		if f < 1 {
			return nil, fmt.Errorf("%w: unit %q has factor %d", ErrInvalidConversionFactor, u.Name, f)
		}
		if cum > math.MaxInt64/f {
			return nil, fmt.Errorf("%w: unit %q holds too many base units", ErrQuantityOverflow, u.Name)
		}
		cum *= f
		factors[i] = cum
	}
	return factors, nil
}

// CumulativeFactor returns the base units in one of the named unit.
func CumulativeFactor(p Product, unitName string) (int64, error) {
	idx, err := p.FindUnit(unitName)
	if err != nil {
		return 0, err
	}
	factors, err := CumulativeFactors(p.Units)
	if err != nil {
		return 0, err
	}
	return factors[idx], nil
}

// StockBreakdown lists, base unit first, how many whole units of each tier
// the current stock amounts to. It never touches p.Stock.
func StockBreakdown(p Product) ([]UnitQuantity, error) {
	factors, err := CumulativeFactors(p.Units)
	if err != nil {
		return nil, err
	}
	out := make([]UnitQuantity, len(p.Units))
	for i, u := range p.Units {
		out[i] = UnitQuantity{UnitName: u.Name, Available: p.Stock / factors[i]}
	}
	return out, nil
}

// ConvertToBaseUnits converts qty of the named unit into base units.
func ConvertToBaseUnits(p Product, unitName string, qty int64) (int64, error) {
	if qty < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeQuantity, qty)
	}
	factor, err := CumulativeFactor(p, unitName)
	if err != nil {
		return 0, err
	}
	if qty > math.MaxInt64/factor {
		return 0, fmt.Errorf("%w: %d %s", ErrQuantityOverflow, qty, unitName)
	}
	return qty * factor, nil
}

// PriceForUnit returns the price authored on the unit. Prices of other tiers
// are never derived here; see DeriveTierPrices.
func PriceForUnit(p Product, unitName string) (Money, error) {
	idx, err := p.FindUnit(unitName)
	if err != nil {
		return 0, err
	}
	return p.Units[idx].Price, nil
}

// DeriveTierPrices splits the price of the largest tier over the smaller ones.
// factors follow the declared unit order, base first. Each tier is rounded
// half up on its own, so tier prices need not add back up exactly.
func DeriveTierPrices(largestPrice Money, factors []int64) ([]Money, error) {
	if largestPrice < 0 {
		return nil, fmt.Errorf("%w: negative price %d", ErrInvalidProduct, largestPrice)
	}
	if len(factors) == 0 {
		return nil, fmt.Errorf("%w: no conversion factors", ErrInvalidConversionFactor)
	}
	cum := make([]int64, len(factors))
	acc := int64(1)
	for i, f := range factors {
		if f < 1 {
			return nil, fmt.Errorf("%w: tier %d has factor %d", ErrInvalidConversionFactor, i, f)
		}
		if acc > math.MaxInt64/f {
			return nil, fmt.Errorf("%w: tier %d", ErrQuantityOverflow, i)
		}
		acc *= f
		cum[i] = acc
	}
	last := cum[len(cum)-1]
	prices := make([]Money, len(factors))
	for i := range cum {
		prices[i] = largestPrice.DivRound(last / cum[i])
	}
	return prices, nil
}

// WithDerivedPrices returns a copy of units priced from the largest tier.
func WithDerivedPrices(units []Unit, largestPrice Money) ([]Unit, error) {
	factors := make([]int64, len(units))
	for i, u := range units {
		factors[i] = u.ConversionFactor
	}
	prices, err := DeriveTierPrices(largestPrice, factors)
	if err != nil {
		return nil, err
	}
	out := make([]Unit, len(units))
	copy(out, units)
	for i := range out {
		out[i].Price = prices[i]
	}
	return out, nil
}

// ApplyQuantityClamp converts the request to base units and caps it at the
// product stock. An empty shelf clamps to zero without an error.
func ApplyQuantityClamp(requested int64, unitName string, p Product) (int64, bool, error) {
	base, err := ConvertToBaseUnits(p, unitName, requested)
	if err != nil {
		return 0, false, err
	}
	stock := p.Stock
	if stock < 0 {
		stock = 0
	}
	if base > stock {
		return stock, true, nil
	}
	return base, false, nil
}

func ComputeAuditVariance(systemStock, actualStock int64) (int64, AuditStatus) {
	variance := actualStock - systemStock
	switch {
	case variance > 0:
		return variance, AuditOver
	case variance < 0:
		return variance, AuditUnder
	default:
		return 0, AuditMatch
	}
}

func ComputeLineTotal(unitPrice Money, qty int64) (Money, error) {
	if qty < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeQuantity, qty)
	}
	if unitPrice > 0 && qty > math.MaxInt64/int64(unitPrice) {
		return 0, fmt.Errorf("%w: %d x %d", ErrQuantityOverflow, qty, unitPrice)
	}
	return unitPrice.Multiply(qty), nil
}

// CycleUnit returns the unit after current, wrapping around to the base unit.
func CycleUnit(p Product, current string) (Unit, error) {
	idx, err := p.FindUnit(current)
	if err != nil {
		return Unit{}, err
	}
	return p.Units[(idx+1)%len(p.Units)], nil
}

// ParseConversionFactor parses a factor typed by an operator. Only whole
// numbers >= 1 are accepted.
func ParseConversionFactor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidConversionFactor, s)
	}
	if f < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidConversionFactor, f)
	}
	return f, nil
}
