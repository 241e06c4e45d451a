package inventory

import "errors"

var (
	ErrUnitNotFound            = errors.New("unit not found")
	ErrInvalidConversionFactor = errors.New("invalid conversion factor")
	ErrNegativeQuantity        = errors.New("negative quantity")
	ErrQuantityOverflow        = errors.New("quantity too large")

	ErrInvalidProduct      = errors.New("invalid product")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrLineNotFound        = errors.New("line not found")
	ErrRefundExceedsSale   = errors.New("refund exceeds quantity sold")
)
