package inventory

// paracetamol is sold by the tablet, the blister of 12 and the box of 10
// blisters.
func paracetamol(stock int64) Product {
	return Product{
		ID:       "p-paracetamol",
		Name:     "Paracetamol 500mg",
		Category: "Giảm đau",
		Barcode:  "8934567000011",
		Stock:    stock,
		Units: []Unit{
			{Name: "Viên", Price: 1500, ConversionFactor: 1, IsBaseUnit: true},
			{Name: "Vỉ", Price: 17500, ConversionFactor: 12},
			{Name: "Hộp", Price: 175000, ConversionFactor: 10},
		},
	}
}

func syrup(stock int64) Product {
	return Product{
		ID:    "p-syrup",
		Name:  "Siro ho",
		Stock: stock,
		Units: []Unit{
			{Name: "Chai", Price: 45000, ConversionFactor: 1, IsBaseUnit: true},
		},
	}
}
