package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/obs"
)

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	UnitName  string `json:"unit_name"`
	Quantity  int64  `json:"quantity"`
}

type createOrderRequest struct {
	Lines   []orderLineRequest `json:"lines"`
	Payment inventory.Payment  `json:"payment"`
}

type createOrderResponse struct {
	Order   inventory.Order `json:"order"`
	Clamped []string        `json:"clamped,omitempty"`
}

type refundLineRequest struct {
	Line           int    `json:"line"`
	ReturnUnitName string `json:"return_unit_name,omitempty"`
	Quantity       int64  `json:"quantity"`
}

type refundRequest struct {
	Reason string              `json:"reason"`
	Lines  []refundLineRequest `json:"lines"`
}

type refundResponse struct {
	Refund      inventory.Refund `json:"refund"`
	Total       inventory.Money  `json:"total"`
	OrderStatus string           `json:"order_status"`
}

func (a *App) loadProducts(ctx context.Context, ids []string) (map[string]*inventory.Product, error) {
	products := make(map[string]*inventory.Product, len(ids))
	for _, id := range ids {
		if _, ok := products[id]; ok {
			continue
		}
		p, err := a.Store.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = &p
	}
	return products, nil
}

func (a *App) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.Store.FetchOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []inventory.Order{}
	}
	render.JSON(w, r, orders)
}

func (a *App) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, o)
}

// createOrder fills a cart from the requested lines, clamping each to the
// stock on hand, then checks out and persists the sale.
func (a *App) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := a.loadProducts(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cart := inventory.NewCart()
	var clamped []string
	for _, l := range req.Lines {
		_, wasClamped, err := cart.Add(*products[l.ProductID], l.UnitName, l.Quantity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if wasClamped {
			clamped = append(clamped, l.ProductID)
		}
	}
	order, err := cart.Checkout(req.Payment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.saveOrder(w, r, products, order, clamped)
}

func (a *App) saveOrder(w http.ResponseWriter, r *http.Request, products map[string]*inventory.Product, order inventory.Order, clamped []string) {
	mv, err := a.newLedger("").Sell(products, order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := a.Store.CreateOrder(r.Context(), order, mv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	obs.Logger.Info("order_created", "order_id", saved.ID, "lines", len(saved.Lines), "total", int64(saved.Total))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, createOrderResponse{Order: saved, Clamped: clamped})
}

func (a *App) createRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !a.decode(w, r, &req) {
		return
	}
	order, err := a.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids := make([]string, 0, len(order.Lines))
	for _, l := range order.Lines {
		ids = append(ids, l.ProductID)
	}
	ptrs, err := a.loadProducts(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	products := make(map[string]inventory.Product, len(ptrs))
	for id, p := range ptrs {
		products[id] = *p
	}
	refunded, err := a.Store.RefundedQuantities(r.Context(), order.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	refund, err := inventory.NewRefund(order, products, refunded)
	if err != nil {
		writeError(w, r, err)
		return
	}
	refund.Reason = req.Reason
	for _, l := range req.Lines {
		if err := selectReturnUnit(refund, l); err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := refund.SetQuantity(l.Line, l.Quantity); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if len(refund.Returned()) == 0 {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "nothing to refund")
		return
	}
	mv, err := a.newLedger("").Return(ptrs, refund)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Store.SaveRefund(r.Context(), refund, mv); err != nil {
		writeError(w, r, err)
		return
	}
	obs.Logger.Info("refund_created",
		"refund_id", refund.ID,
		"order_id", order.ID,
		"total", int64(refund.Total()),
		"restocked", refund.StockReturns(),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, refundResponse{Refund: *refund, Total: refund.Total(), OrderStatus: refund.OrderStatusAfter()})
}

// selectReturnUnit cycles the line's return unit until it matches the
// requested one, the same way the picker does.
func selectReturnUnit(refund *inventory.Refund, l refundLineRequest) error {
	if l.ReturnUnitName == "" {
		return nil
	}
	if l.Line < 0 || l.Line >= len(refund.Lines) {
		return fmt.Errorf("%w: refund line %d", inventory.ErrLineNotFound, l.Line)
	}
	start := refund.Lines[l.Line].ReturnUnitName
	for {
		if refund.Lines[l.Line].ReturnUnitName == l.ReturnUnitName {
			return nil
		}
		if _, err := refund.CycleUnit(l.Line); err != nil {
			return err
		}
		if refund.Lines[l.Line].ReturnUnitName == start {
			break
		}
	}
	return fmt.Errorf("%w: %q", inventory.ErrUnitNotFound, l.ReturnUnitName)
}
