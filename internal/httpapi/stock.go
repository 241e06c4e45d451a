package httpapi

import (
	"net/http"

	"github.com/go-chi/render"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/obs"
)

type importRequest struct {
	ProductID string          `json:"product_id"`
	UnitName  string          `json:"unit_name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice inventory.Money `json:"unit_price"`
	Note      string          `json:"note"`
}

type transferRequest struct {
	FromProductID string `json:"from_product_id"`
	ToProductID   string `json:"to_product_id"`
	ToWarehouseID string `json:"to_warehouse_id"`
	UnitName      string `json:"unit_name"`
	Quantity      int64  `json:"quantity"`
	Note          string `json:"note"`
}

type transferResponse struct {
	Out     inventory.Movement `json:"out"`
	In      inventory.Movement `json:"in"`
	Clamped bool               `json:"clamped"`
}

type auditCount struct {
	ProductID   string `json:"product_id"`
	ActualStock int64  `json:"actual_stock"`
}

type auditRequest struct {
	Note   string       `json:"note"`
	Counts []auditCount `json:"counts"`
}

type auditResponse struct {
	Batch   inventory.AuditBatch   `json:"batch"`
	Summary inventory.AuditSummary `json:"summary"`
}

func (a *App) importStock(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.Store.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mv, err := a.newLedger("").Import(&p, req.UnitName, req.Quantity, req.UnitPrice, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := a.Store.RecordMovement(r.Context(), mv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, saved)
}

func (a *App) transferStock(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.FromProductID == req.ToProductID {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "source and destination must differ")
		return
	}
	products, err := a.loadProducts(r.Context(), []string{req.FromProductID, req.ToProductID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	src := a.newLedger("")
	dest := a.newLedger(req.ToWarehouseID)
	out, in, clamped, err := src.Transfer(products[req.FromProductID], products[req.ToProductID], req.UnitName, req.Quantity, dest, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out, in, err = a.Store.RecordTransfer(r.Context(), out, in); err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, transferResponse{Out: out, In: in, Clamped: clamped})
}

// submitAudit records every count in a session, reconciles stock to the
// counted quantities and stores the batch.
func (a *App) submitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if !a.decode(w, r, &req) {
		return
	}
	ids := make([]string, 0, len(req.Counts))
	for _, c := range req.Counts {
		ids = append(ids, c.ProductID)
	}
	products, err := a.loadProducts(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	session := inventory.NewAuditSession(a.Cfg.WarehouseID)
	for _, c := range req.Counts {
		session.Record(*products[c.ProductID], c.ActualStock)
	}
	batch := session.Batch(req.Note)
	if len(batch.Entries) == 0 {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "no counts")
		return
	}
	if err := a.reconcile(r, products, batch); err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, auditResponse{Batch: batch, Summary: session.Summary()})
}

func (a *App) reconcile(r *http.Request, products map[string]*inventory.Product, batch inventory.AuditBatch) error {
	mv, err := a.newLedger(batch.WarehouseID).Adjust(products, batch)
	if err != nil {
		return err
	}
	if err := a.Store.SubmitAudit(r.Context(), batch, mv); err != nil {
		return err
	}
	sum := inventory.Summarize(batch.Entries)
	obs.Logger.Info("audit_submitted",
		"batch_id", batch.ID,
		"entries", len(batch.Entries),
		"over", sum.Over,
		"under", sum.Under,
		"net_variance", sum.NetVariance,
	)
	return nil
}
