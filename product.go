package inventory

import (
	"fmt"
	"strings"
)

// Unit is one packaging tier of a product. ConversionFactor is the number of
// the next smaller unit that make up one of this unit.
type Unit struct {
	Name             string `json:"name"`
	Price            Money  `json:"price"`
	ConversionFactor int64  `json:"conversion_factor"`
	IsBaseUnit       bool   `json:"is_base_unit"`
}

// Product is a sellable item. Stock is always counted in the base unit and
// Units are ordered from the base unit up to the largest pack.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	ImageURL string `json:"image_url"`
	Barcode  string `json:"barcode,omitempty"`
	Stock    int64  `json:"stock"`
	Units    []Unit `json:"units"`
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalidProduct)
	}
	return ValidateUnits(p.Units)
}

// ValidateUnits checks the unit chain: at least one unit, a single base unit
// in first position with factor 1, factors >= 1 and unique names.
func ValidateUnits(units []Unit) error {
	if len(units) == 0 {
		return fmt.Errorf("%w: at least one unit is required", ErrInvalidProduct)
	}
	seen := make(map[string]bool, len(units))
	baseCount := 0
	for i, u := range units {
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("%w: unit %d has no name", ErrInvalidProduct, i)
		}
		if seen[u.Name] {
			return fmt.Errorf("%w: duplicate unit %q", ErrInvalidProduct, u.Name)
		}
		seen[u.Name] = true
		if u.ConversionFactor < 1 {
			return fmt.Errorf("%w: unit %q has factor %d", ErrInvalidConversionFactor, u.Name, u.ConversionFactor)
		}
		if u.Price < 0 {
			return fmt.Errorf("%w: unit %q has negative price", ErrInvalidProduct, u.Name)
		}
		if u.IsBaseUnit {
			baseCount++
		}
	}
	if baseCount != 1 {
		return fmt.Errorf("%w: expected exactly one base unit, got %d", ErrInvalidProduct, baseCount)
	}
	if !units[0].IsBaseUnit {
		return fmt.Errorf("%w: base unit must come first", ErrInvalidProduct)
	}
	if units[0].ConversionFactor != 1 {
		return fmt.Errorf("%w: base unit factor must be 1", ErrInvalidConversionFactor)
	}
	return nil
}

// BaseUnit returns the first unit, which holds the stock count.
func (p Product) BaseUnit() Unit {
	if len(p.Units) == 0 {
		return Unit{}
	}
	return p.Units[0]
}

// FindUnit returns the index of the named unit.
func (p Product) FindUnit(name string) (int, error) {
	for i := range p.Units {
		if p.Units[i].Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q on product %q", ErrUnitNotFound, name, p.ID)
}

// MatchesSearch reports whether term occurs in the name, category or barcode.
func (p Product) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Category), term) ||
		p.Barcode == term
}
