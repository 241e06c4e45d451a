package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/obs"
)

// unitRequest carries the conversion factor as typed so that fractional or
// non-numeric input is rejected as a bad factor.
type unitRequest struct {
	Name             string          `json:"name"`
	Price            inventory.Money `json:"price"`
	ConversionFactor json.Number     `json:"conversion_factor"`
	IsBaseUnit       bool            `json:"is_base_unit"`
}

type productRequest struct {
	inventory.Product
	Units []unitRequest `json:"units"`
	// DerivePrices prices every smaller tier from the largest unit's price.
	DerivePrices bool `json:"derive_prices"`
}

func (req productRequest) units() ([]inventory.Unit, error) {
	units := make([]inventory.Unit, 0, len(req.Units))
	for _, u := range req.Units {
		f, err := inventory.ParseConversionFactor(u.ConversionFactor.String())
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", u.Name, err)
		}
		units = append(units, inventory.Unit{
			Name:             u.Name,
			Price:            u.Price,
			ConversionFactor: f,
			IsBaseUnit:       u.IsBaseUnit,
		})
	}
	return units, nil
}

func parseFactors(in []json.Number) ([]int64, error) {
	factors := make([]int64, 0, len(in))
	for _, n := range in {
		f, err := inventory.ParseConversionFactor(n.String())
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, nil
}

type breakdownResponse struct {
	ProductID string                   `json:"product_id"`
	Stock     int64                    `json:"stock"`
	Breakdown []inventory.UnitQuantity `json:"breakdown"`
}

type derivePricesRequest struct {
	LargestPrice inventory.Money `json:"largest_price"`
	Factors      []json.Number   `json:"factors"`
}

func (a *App) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.Store.FetchProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if products == nil {
		products = []inventory.Product{}
	}
	render.JSON(w, r, products)
}

func (a *App) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, p)
}

func (a *App) upsertProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !a.decode(w, r, &req) {
		return
	}
	p := req.Product
	p.ID = chi.URLParam(r, "id")
	units, err := req.units()
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.Units = units
	if req.DerivePrices && len(p.Units) > 0 {
		priced, err := inventory.WithDerivedPrices(p.Units, p.Units[len(p.Units)-1].Price)
		if err != nil {
			writeError(w, r, err)
			return
		}
		p.Units = priced
	}
	saved, err := a.Store.UpsertProduct(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	obs.Logger.Info("product_upserted", "product_id", saved.ID, "units", len(saved.Units), "stock", saved.Stock)
	render.JSON(w, r, saved)
}

func (a *App) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Store.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	obs.Logger.Info("product_deleted", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) breakdown(w http.ResponseWriter, r *http.Request) {
	p, err := a.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	bd, err := inventory.StockBreakdown(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, breakdownResponse{
		ProductID: p.ID,
		Stock:     p.Stock,
		Breakdown: bd,
	})
}

func (a *App) derivePrices(w http.ResponseWriter, r *http.Request) {
	var req derivePricesRequest
	if !a.decode(w, r, &req) {
		return
	}
	factors, err := parseFactors(req.Factors)
	if err != nil {
		writeError(w, r, err)
		return
	}
	prices, err := inventory.DeriveTierPrices(req.LargestPrice, factors)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"prices": prices})
}

func (a *App) movements(w http.ResponseWriter, r *http.Request) {
	mvs, err := a.Store.FetchMovements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mvs == nil {
		mvs = []inventory.Movement{}
	}
	render.JSON(w, r, mvs)
}
