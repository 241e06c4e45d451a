// Package httpapi exposes the store service over HTTP.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/obs"
)

type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	render.Status(r, status)
	render.JSON(w, r, jsonError{Error: message, Details: details})
}

// writeError maps domain errors to a status code and an error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, inventory.ErrProductNotFound), errors.Is(err, inventory.ErrOrderNotFound):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, inventory.ErrOutOfStock):
		writeJSONError(w, r, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, inventory.ErrRefundExceedsSale):
		writeJSONError(w, r, http.StatusConflict, "refund_exceeds_sale", err.Error())
	case errors.Is(err, inventory.ErrUnitNotFound),
		errors.Is(err, inventory.ErrInvalidConversionFactor),
		errors.Is(err, inventory.ErrNegativeQuantity),
		errors.Is(err, inventory.ErrQuantityOverflow),
		errors.Is(err, inventory.ErrInvalidProduct),
		errors.Is(err, inventory.ErrInsufficientPayment),
		errors.Is(err, inventory.ErrLineNotFound):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	default:
		obs.Logger.Error("request_failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "")
	}
}
